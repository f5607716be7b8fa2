// Package queue は MySQL の queue_jobs テーブルを使った非同期ジョブキュー。
// 呼び出し側の Tx で積んだジョブは COMMIT されるまで worker から見えない。
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"ICTSERVE-backend/internal/platform/apierr"
	"ICTSERVE-backend/internal/platform/db"
	"ICTSERVE-backend/internal/platform/ids"
)

// ErrDuplicate: unique key が既に積まれている
var ErrDuplicate = errors.New("queue: duplicate unique key")

// Enqueuer はサービス層から見たキュー
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload any, opts ...EnqueueOption) (*Job, error)
	EnqueueTx(ctx context.Context, tx db.DBTX, jobType string, payload any, opts ...EnqueueOption) (*Job, error)
}

type Queue struct {
	db    *sql.DB
	store *Store
	clock ids.Clock
	id    ids.IDGen

	mu       sync.RWMutex
	handlers map[string]Handler
	policies map[string]Policy
}

func New(sqlDB *sql.DB) *Queue {
	return &Queue{
		db:       sqlDB,
		store:    NewStore(sqlDB),
		clock:    ids.RealClock{},
		id:       ids.NewULIDGen(),
		handlers: map[string]Handler{},
		policies: map[string]Policy{},
	}
}

func (q *Queue) WithClock(c ids.Clock) *Queue { q.clock = c; return q }
func (q *Queue) WithIDGen(g ids.IDGen) *Queue { q.id = g; return q }

func (q *Queue) Store() *Store { return q.store }

// Register はジョブ種別ごとのハンドラとポリシーを登録する
func (q *Queue) Register(jobType string, h Handler, p Policy) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = h
	q.policies[jobType] = p.normalized()
}

func (q *Queue) lookup(jobType string) (Handler, Policy, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	h, ok := q.handlers[jobType]
	p, hasPolicy := q.policies[jobType]
	if !hasPolicy {
		p = DefaultPolicy
	}
	return h, p, ok
}

func (q *Queue) Types() []string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]string, 0, len(q.handlers))
	for t := range q.handlers {
		out = append(out, t)
	}
	return out
}

func (q *Queue) Enqueue(ctx context.Context, jobType string, payload any, opts ...EnqueueOption) (*Job, error) {
	return q.EnqueueTx(ctx, q.db, jobType, payload, opts...)
}

// EnqueueTx は tx 上に INSERT する。unique key 重複時は ErrDuplicate。
func (q *Queue) EnqueueTx(ctx context.Context, tx db.DBTX, jobType string, payload any, opts ...EnqueueOption) (*Job, error) {
	if jobType == "" {
		return nil, apierr.Invalid("job type is required")
	}
	var o enqueueOptions
	for _, fn := range opts {
		fn(&o)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("queue: encode %s payload: %w", jobType, err)
	}
	ulid, err := q.id.New()
	if err != nil {
		return nil, err
	}
	_, p, _ := q.lookup(jobType)
	now := q.clock.Now()

	j := &Job{
		ULID:           ulid,
		Type:           jobType,
		Payload:        body,
		MaxAttempts:    p.MaxAttempts,
		TimeoutSeconds: int(p.Timeout / time.Second),
		AvailableAt:    now.Add(o.delay),
		CreatedAt:      now,
	}
	if o.uniqueKey != "" {
		j.UniqueKey = sql.NullString{String: o.uniqueKey, Valid: true}
	}
	if err := q.store.Insert(ctx, tx, j); err != nil {
		if o.uniqueKey != "" && apierr.IsDuplicateKey(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return j, nil
}
