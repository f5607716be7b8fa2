// Package queuetest はテスト用の Enqueuer を提供する
package queuetest

import (
	"context"
	"sync"

	"ICTSERVE-backend/internal/platform/db"
	"ICTSERVE-backend/internal/platform/queue"
)

type Enqueued struct {
	Type      string
	Payload   any
	UniqueKey string
	InTx      bool
}

// Recorder は積まれたジョブを記録する。unique key の重複は queue.ErrDuplicate。
type Recorder struct {
	mu   sync.Mutex
	jobs []Enqueued
	keys map[string]bool
	Err  error
}

var _ queue.Enqueuer = (*Recorder)(nil)

func (r *Recorder) Enqueue(ctx context.Context, jobType string, payload any, opts ...queue.EnqueueOption) (*queue.Job, error) {
	return r.enqueue(jobType, payload, false, opts...)
}

func (r *Recorder) EnqueueTx(ctx context.Context, tx db.DBTX, jobType string, payload any, opts ...queue.EnqueueOption) (*queue.Job, error) {
	return r.enqueue(jobType, payload, tx != nil, opts...)
}

func (r *Recorder) enqueue(jobType string, payload any, inTx bool, opts ...queue.EnqueueOption) (*queue.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	key, _ := queue.ResolveOptions(opts...)
	if key != "" {
		if r.keys == nil {
			r.keys = map[string]bool{}
		}
		if r.keys[key] {
			return nil, queue.ErrDuplicate
		}
		r.keys[key] = true
	}
	r.jobs = append(r.jobs, Enqueued{Type: jobType, Payload: payload, UniqueKey: key, InTx: inTx})
	return &queue.Job{ID: int64(len(r.jobs)), Type: jobType}, nil
}

func (r *Recorder) Jobs() []Enqueued {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Enqueued, len(r.jobs))
	copy(out, r.jobs)
	return out
}

// Types は積まれた順のジョブ種別
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.Type)
	}
	return out
}
