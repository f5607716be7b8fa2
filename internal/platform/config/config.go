package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Username     string `yaml:"user"`
	Password     string `yaml:"password"`
	DBName       string `yaml:"dbname"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type Certs struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type HTTPConfig struct {
	Addr         string   `yaml:"addr"`
	TLS          bool     `yaml:"tls"`
	AllowOrigins []string `yaml:"allow_origins"`
}

type JWTConfig struct {
	Secret           string `yaml:"secret"`
	TTLHours         int    `yaml:"ttl_hours"`
	ApprovalTTLHours int    `yaml:"approval_ttl_hours"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Addr) != "" }

// 1分あたりのリクエスト上限（エンドポイント区分ごと）
type RateLimitConfig struct {
	WritePerMinute  int `yaml:"write_per_minute"`
	ReadPerMinute   int `yaml:"read_per_minute"`
	StatusPerMinute int `yaml:"status_per_minute"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	StartTLS bool   `yaml:"starttls"`
}

type MailConfig struct {
	Enabled         bool       `yaml:"enabled"`
	From            string     `yaml:"from"`
	MaintenanceTeam []string   `yaml:"maintenance_team"`
	PortalBaseURL   string     `yaml:"portal_base_url"`
	SMTP            SMTPConfig `yaml:"smtp"`
}

type QueueConfig struct {
	Workers        int `yaml:"workers"`
	PollIntervalMS int `yaml:"poll_interval_ms"`
	RetentionDays  int `yaml:"retention_days"`
}

func (q QueueConfig) PollInterval() time.Duration {
	return time.Duration(q.PollIntervalMS) * time.Millisecond
}

type SchedulerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Timezone string `yaml:"timezone"`
}

type SLAConfig struct {
	BusinessHours bool   `yaml:"business_hours"`
	WorkStart     string `yaml:"work_start"` // "08:00"
	WorkEnd       string `yaml:"work_end"`   // "17:00"
}

type ExportConfig struct {
	Dir string `yaml:"dir"`
}

type LoanConfig struct {
	HighValueThreshold float64 `yaml:"high_value_threshold"`
}

type Config struct {
	Version     string          `yaml:"version"`
	Mode        string          `yaml:"mode"`
	DB          DatabaseConfig  `yaml:"database"`
	Certificate Certs           `yaml:"certificate"`
	HTTP        HTTPConfig      `yaml:"http"`
	JWT         JWTConfig       `yaml:"jwt"`
	Redis       RedisConfig     `yaml:"redis"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	Mail        MailConfig      `yaml:"mail"`
	Queue       QueueConfig     `yaml:"queue"`
	Scheduler   SchedulerConfig `yaml:"scheduler"`
	SLA         SLAConfig       `yaml:"sla"`
	Export      ExportConfig    `yaml:"export"`
	Loans       LoanConfig      `yaml:"loans"`
}

func Load(path string) (*Config, error) {
	// .env は任意（無ければそのまま）
	_ = godotenv.Load()

	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込み失敗: %w", err)
	}
	return Parse(buf)
}

func Parse(buf []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("設定ファイルのパース失敗: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// 秘密情報は環境変数で上書きする
func (c *Config) applyEnv() {
	if v := os.Getenv("ICTSERVE_MODE"); v != "" {
		c.Mode = v
	}
	if v := os.Getenv("ICTSERVE_DB_HOST"); v != "" {
		c.DB.Host = v
	}
	if v := os.Getenv("ICTSERVE_DB_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DB.Port = n
		}
	}
	if v := os.Getenv("ICTSERVE_DB_PASSWORD"); v != "" {
		c.DB.Password = v
	}
	if v := os.Getenv("ICTSERVE_JWT_SECRET"); v != "" {
		c.JWT.Secret = v
	}
	if v := os.Getenv("ICTSERVE_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("ICTSERVE_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("ICTSERVE_SMTP_PASSWORD"); v != "" {
		c.Mail.SMTP.Password = v
	}
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = "dev"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 3306
	}
	if c.DB.MaxOpenConns == 0 {
		c.DB.MaxOpenConns = 80
	}
	if c.DB.MaxIdleConns == 0 {
		c.DB.MaxIdleConns = 20
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8443"
	}
	if c.JWT.TTLHours == 0 {
		c.JWT.TTLHours = 24
	}
	if c.JWT.ApprovalTTLHours == 0 {
		c.JWT.ApprovalTTLHours = 72
	}
	if c.RateLimit.WritePerMinute == 0 {
		c.RateLimit.WritePerMinute = 60
	}
	if c.RateLimit.ReadPerMinute == 0 {
		c.RateLimit.ReadPerMinute = 120
	}
	if c.RateLimit.StatusPerMinute == 0 {
		c.RateLimit.StatusPerMinute = 300
	}
	if c.Mail.SMTP.Port == 0 {
		c.Mail.SMTP.Port = 587
	}
	if c.Queue.Workers == 0 {
		c.Queue.Workers = 2
	}
	if c.Queue.PollIntervalMS == 0 {
		c.Queue.PollIntervalMS = 1000
	}
	if c.Queue.RetentionDays == 0 {
		c.Queue.RetentionDays = 7
	}
	if c.Scheduler.Timezone == "" {
		c.Scheduler.Timezone = "Asia/Kuala_Lumpur"
	}
	if c.SLA.WorkStart == "" {
		c.SLA.WorkStart = "08:00"
	}
	if c.SLA.WorkEnd == "" {
		c.SLA.WorkEnd = "17:00"
	}
	if c.Export.Dir == "" {
		c.Export.Dir = "storage/exports"
	}
	if c.Loans.HighValueThreshold == 0 {
		c.Loans.HighValueThreshold = 5000
	}
}

func (c *Config) Validate() error {
	if c.Mode != "dev" && c.Mode != "release" {
		return fmt.Errorf("mode must be dev or release: %q", c.Mode)
	}
	if c.Mode == "release" && strings.TrimSpace(c.JWT.Secret) == "" {
		return errors.New("jwt.secret is required in release mode")
	}
	if c.Mode == "release" && c.Mail.Enabled && c.Mail.From == "" {
		return errors.New("mail.from is required when mail is enabled")
	}
	if c.Loans.HighValueThreshold < 0 {
		return errors.New("loans.high_value_threshold must be >= 0")
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	return nil
}

func (c *Config) IsDev() bool { return c.Mode == "dev" }

// 開発時の既定シークレット（release では Validate で弾く）
func (c *Config) JWTSecret() []byte {
	if c.JWT.Secret == "" {
		return []byte("ictserve-dev-secret")
	}
	return []byte(c.JWT.Secret)
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
