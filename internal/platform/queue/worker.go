package queue

import (
	"context"
	"fmt"
	"io"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"ICTSERVE-backend/internal/platform/metrics"
)

type Worker struct {
	queue       *Queue
	concurrency int
	poll        time.Duration
	logger      *log.Logger
	metrics     *metrics.Metrics
}

type WorkerOption func(*Worker)

func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.poll = d
		}
	}
}

func WithLogger(l *log.Logger) WorkerOption {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

func NewWorker(q *Queue, opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:       q,
		concurrency: 1,
		poll:        time.Second,
		logger:      log.New(io.Discard, "", 0),
	}
	for _, fn := range opts {
		fn(w)
	}
	return w
}

// Run は ctx がキャンセルされるまでジョブを処理する
func (w *Worker) Run(ctx context.Context) {
	w.logger.Printf("[INFO] queue worker started concurrency=%d types=%v", w.concurrency, w.queue.Types())
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()
	w.logger.Printf("[INFO] queue worker stopped")
}

func (w *Worker) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		processed, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Printf("[ERROR] queue reserve failed: %v", err)
		}
		if processed && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce はジョブを1件処理する。処理対象が無ければ false。
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.queue.store.Reserve(ctx, w.queue.clock.Now())
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.process(ctx, job)
	return true, nil
}

func (w *Worker) process(ctx context.Context, job *Job) {
	h, policy, ok := w.queue.lookup(job.Type)
	if !ok {
		w.finish(ctx, job, policy, Permanent(fmt.Errorf("no handler registered for %s", job.Type)), 0)
		return
	}

	timeout := time.Duration(job.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = policy.Timeout
	}
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := safeCall(jobCtx, h, job)
	w.finish(ctx, job, policy, err, time.Since(start))
}

func safeCall(ctx context.Context, h Handler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return h(ctx, job)
}

func (w *Worker) finish(ctx context.Context, job *Job, policy Policy, jobErr error, took time.Duration) {
	// 親 ctx がキャンセルされても結果は書き戻す
	ctx = context.WithoutCancel(ctx)
	now := w.queue.clock.Now()

	if jobErr == nil {
		if err := w.queue.store.Complete(ctx, job.ID, now); err != nil {
			w.logger.Printf("[ERROR] queue complete failed job=%s type=%s: %v", job.ULID, job.Type, err)
		}
		w.metrics.RecordJob(job.Type, "success", took)
		return
	}

	if IsPermanent(jobErr) || job.Attempts >= job.MaxAttempts {
		if err := w.queue.store.Fail(ctx, job.ID, now, jobErr.Error()); err != nil {
			w.logger.Printf("[ERROR] queue fail mark failed job=%s: %v", job.ULID, err)
		}
		w.logger.Printf("[ERROR] queue permanent failure job=%s type=%s attempts=%d/%d err=%v payload=%s",
			job.ULID, job.Type, job.Attempts, job.MaxAttempts, jobErr, string(job.Payload))
		w.metrics.RecordJob(job.Type, "failed", took)
		return
	}

	delay := policy.Delay(job.Attempts)
	if err := w.queue.store.Release(ctx, job.ID, now.Add(delay), jobErr.Error()); err != nil {
		w.logger.Printf("[ERROR] queue release failed job=%s: %v", job.ULID, err)
	}
	w.logger.Printf("[WARN] queue job retry job=%s type=%s attempt=%d/%d retry_in=%s err=%v",
		job.ULID, job.Type, job.Attempts, job.MaxAttempts, delay, jobErr)
	w.metrics.RecordJob(job.Type, "retry", took)
}
