// Package scheduler は定期バッチ（延滞判定・返却前リマインド・キュー掃除）を cron で回す。
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"ICTSERVE-backend/internal/platform/ids"
	"ICTSERVE-backend/internal/platform/metrics"

	"github.com/robfig/cron/v3"
)

const defaultTimeout = 5 * time.Minute

// Job は 1 つの定期処理
type Job struct {
	Name     string
	Schedule string // 5 フィールドの cron 式 or @every
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

type options struct {
	Logger   *log.Logger
	Metrics  *metrics.Metrics
	Location *time.Location
	Clock    ids.Clock
}

// Option applies configuration to the scheduler.
type Option func(*options)

func defaultOptions() options {
	return options{Logger: log.Default(), Location: time.UTC, Clock: ids.RealClock{}}
}

func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.Logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.Metrics = m }
}

// WithLocation sets the timezone cron expressions are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.Location = loc
		}
	}
}

func WithClock(c ids.Clock) Option {
	return func(o *options) { o.Clock = c }
}

type Scheduler struct {
	cron    *cron.Cron
	parser  cron.Parser
	logger  *log.Logger
	metrics *metrics.Metrics
	clock   ids.Clock

	mu   sync.Mutex
	jobs map[string]Job
}

func New(opts ...Option) *Scheduler {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	cl := cron.PrintfLogger(o.Logger)
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(o.Location),
			cron.WithChain(cron.SkipIfStillRunning(cl)),
			cron.WithLogger(cl),
		),
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger:  o.Logger,
		metrics: o.Metrics,
		clock:   o.Clock,
		jobs:    map[string]Job{},
	}
}

// Add は job を登録する。スケジュール式が不正ならエラー。
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("scheduler: job name and run func are required")
	}
	if _, err := s.parser.Parse(job.Schedule); err != nil {
		return fmt.Errorf("scheduler: job %s: invalid schedule %q: %w", job.Name, job.Schedule, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[job.Name]; dup {
		return fmt.Errorf("scheduler: job %s already registered", job.Name)
	}
	if _, err := s.cron.AddFunc(job.Schedule, func() { _ = s.run(context.Background(), job) }); err != nil {
		return fmt.Errorf("scheduler: job %s: %w", job.Name, err)
	}
	s.jobs[job.Name] = job
	return nil
}

// Names は登録済みジョブ名（順不同）
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		out = append(out, name)
	}
	return out
}

// Start は ctx が終わるまで cron を回し、実行中のジョブを待ってから戻る
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	s.logger.Printf("[INFO] scheduler started jobs=%d", len(s.Names()))
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Printf("[INFO] scheduler stopped")
}

// RunNow は名前指定で即時実行する（運用・テスト用）
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown job %s", name)
	}
	return s.run(ctx, job)
}

func (s *Scheduler) run(ctx context.Context, job Job) (err error) {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := s.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		took := s.clock.Now().Sub(start)
		s.metrics.RecordSchedulerRun(job.Name, err == nil, took)
		if err != nil {
			s.logger.Printf("[ERROR] scheduled job failed job=%s took=%s: %v", job.Name, took, err)
		}
	}()
	return job.Run(ctx)
}
