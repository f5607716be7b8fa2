// Package app は設定から各サービス・キュー・スケジューラ・HTTP ルータを組み立てる。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"time"

	"ICTSERVE-backend/internal/asset_mgmt/assets"
	"ICTSERVE-backend/internal/asset_mgmt/loans"
	"ICTSERVE-backend/internal/crossmodule"
	"ICTSERVE-backend/internal/exports"
	"ICTSERVE-backend/internal/helpdesk/categories"
	"ICTSERVE-backend/internal/helpdesk/tickets"
	"ICTSERVE-backend/internal/notifications"
	"ICTSERVE-backend/internal/platform/auth"
	"ICTSERVE-backend/internal/platform/config"
	"ICTSERVE-backend/internal/platform/ids"
	"ICTSERVE-backend/internal/platform/mailer"
	"ICTSERVE-backend/internal/platform/metrics"
	"ICTSERVE-backend/internal/platform/queue"
	"ICTSERVE-backend/internal/platform/ratelimit"
	"ICTSERVE-backend/internal/scheduler"

	"github.com/redis/go-redis/v9"
)

type App struct {
	cfg     *config.Config
	db      *sql.DB
	logger  *log.Logger
	metrics *metrics.Metrics
	limiter ratelimit.Limiter
	mailer  mailer.Mailer
	queue   *queue.Queue

	auth       *auth.Service
	authStore  *auth.Store
	assets     *assets.Service
	loans      *loans.Service
	categories *categories.Service
	tickets    *tickets.Service
	links      *crossmodule.Service
	exports    *exports.Service
	notifier   *notifications.Notifier
	damage     *crossmodule.DamageListener
}

type Option func(*App)

func WithLogger(l *log.Logger) Option { return func(a *App) { a.logger = l } }

// WithLimiter はレート制限のストアを差し替える（未指定なら redis 設定を見て決める）
func WithLimiter(l ratelimit.Limiter) Option { return func(a *App) { a.limiter = l } }

func WithMailer(m mailer.Mailer) Option { return func(a *App) { a.mailer = m } }

func New(cfg *config.Config, sqlDB *sql.DB, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, db: sqlDB, logger: log.Default(), metrics: metrics.Global()}
	for _, o := range opts {
		o(a)
	}
	if a.mailer == nil {
		a.mailer = mailer.New(cfg.Mail, a.logger)
	}
	if a.limiter == nil {
		a.limiter = newLimiter(cfg.Redis, a.logger)
	}

	sla, err := newSLA(cfg)
	if err != nil {
		return nil, err
	}
	loc := cfg.Location()
	secret := cfg.JWTSecret()
	tokens := loans.NewTokenSigner(secret)

	a.queue = queue.New(sqlDB)
	a.auth = auth.NewService(sqlDB, secret, time.Duration(cfg.JWT.TTLHours)*time.Hour)
	a.authStore = auth.NewStore(sqlDB)
	a.assets = assets.NewService(sqlDB)
	a.loans = loans.NewService(sqlDB, a.queue, tokens, time.Duration(cfg.JWT.ApprovalTTLHours)*time.Hour).
		WithLocation(loc)
	a.categories = categories.NewService(sqlDB)
	a.tickets = tickets.NewService(sqlDB, a.queue, sla)
	a.links = crossmodule.NewService(sqlDB)
	a.exports = exports.NewService(sqlDB, a.queue, cfg.Export.Dir).
		WithLocation(loc).
		WithLogger(a.logger)
	a.notifier = notifications.New(sqlDB, a.mailer, tokens, cfg.Mail).WithLogger(a.logger)
	a.damage = crossmodule.NewDamageListener(sqlDB, a.queue, a.tickets, cfg.Loans.HighValueThreshold).
		WithLocation(loc).
		WithLogger(a.logger).
		WithMetrics(a.metrics)

	// enqueue 時にポリシーを引くので、API プロセスでも登録しておく
	a.notifier.Register(a.queue)
	a.exports.Register(a.queue)
	a.damage.Register(a.queue)
	return a, nil
}

func newLimiter(rc config.RedisConfig, logger *log.Logger) ratelimit.Limiter {
	if !rc.Enabled() {
		return ratelimit.NewMemoryLimiter()
	}
	rdb := redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Printf("[WARN] redis unavailable addr=%s, falling back to in-memory rate limiter: %v", rc.Addr, err)
		_ = rdb.Close()
		return ratelimit.NewMemoryLimiter()
	}
	return ratelimit.NewRedisLimiter(rdb)
}

func newSLA(cfg *config.Config) (*tickets.SLA, error) {
	if !cfg.SLA.BusinessHours {
		return tickets.NewSLA(cfg.Location()), nil
	}
	start, err := clock(cfg.SLA.WorkStart)
	if err != nil {
		return nil, fmt.Errorf("sla.work_start: %w", err)
	}
	end, err := clock(cfg.SLA.WorkEnd)
	if err != nil {
		return nil, fmt.Errorf("sla.work_end: %w", err)
	}
	if end <= start {
		return nil, fmt.Errorf("sla: work_end %s must be after work_start %s", cfg.SLA.WorkEnd, cfg.SLA.WorkStart)
	}
	return tickets.NewSLA(cfg.Location(), tickets.WithBusinessHours(start, end,
		tickets.NewYear, tickets.LabourDay, tickets.NationalDay, tickets.MalaysiaDay)), nil
}

// "08:30" → 8h30m
func clock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Worker はキュー消費者。serve でも worker でも同じものを使う。
func (a *App) Worker() *queue.Worker {
	return queue.NewWorker(a.queue,
		queue.WithLogger(a.logger),
		queue.WithMetrics(a.metrics),
		queue.WithConcurrency(a.cfg.Queue.Workers),
		queue.WithPollInterval(a.cfg.Queue.PollInterval()),
	)
}

func (a *App) Scheduler() (*scheduler.Scheduler, error) {
	s := scheduler.New(
		scheduler.WithLogger(a.logger),
		scheduler.WithMetrics(a.metrics),
		scheduler.WithLocation(a.cfg.Location()),
	)
	retention := time.Duration(a.cfg.Queue.RetentionDays) * 24 * time.Hour
	for _, j := range scheduler.BuiltinJobs(a.loans, a.queue.Store(), retention, ids.RealClock{}, a.logger) {
		if err := s.Add(j); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Serve は HTTP(S) を起動し ctx 終了で graceful shutdown する
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if a.cfg.HTTP.TLS {
			certFile, keyFile := a.certPaths()
			a.logger.Printf("[INFO] listening on https://%s", a.cfg.HTTP.Addr)
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			a.logger.Printf("[INFO] listening on http://%s", a.cfg.HTTP.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Println("[INFO] shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// 証明書は config/tls/<mode>/ 配下
func (a *App) certPaths() (string, string) {
	dir := "config/tls/release"
	if a.cfg.IsDev() {
		dir = "config/tls/dev"
	}
	return fmt.Sprintf("%s/%s", dir, a.cfg.Certificate.Cert), fmt.Sprintf("%s/%s", dir, a.cfg.Certificate.Key)
}
