package queue

import (
	"context"
	"database/sql"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Job struct {
	ID             int64
	ULID           string
	Type           string
	Payload        []byte
	Attempts       int
	MaxAttempts    int
	TimeoutSeconds int
	AvailableAt    time.Time
	UniqueKey      sql.NullString
	LastError      sql.NullString
	CreatedAt      time.Time
}

// Decode は payload を v にデコードする
func (j *Job) Decode(v any) error {
	return json.Unmarshal(j.Payload, v)
}

type Handler func(ctx context.Context, job *Job) error

// Policy: 試行回数・バックオフ・1回あたりのタイムアウト
type Policy struct {
	MaxAttempts int
	Backoff     []time.Duration
	Timeout     time.Duration
}

var DefaultPolicy = Policy{
	MaxAttempts: 3,
	Backoff:     []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second},
	Timeout:     60 * time.Second,
}

// Delay は attempt 回目（1始まり）失敗後の待ち時間。スライスを超えたら最後の値。
func (p Policy) Delay(attempt int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	i := attempt - 1
	if i < 0 {
		i = 0
	}
	if i >= len(p.Backoff) {
		i = len(p.Backoff) - 1
	}
	return p.Backoff[i]
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultPolicy.Timeout
	}
	if p.Backoff == nil {
		p.Backoff = DefaultPolicy.Backoff
	}
	return p
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent で包んだエラーはリトライせず即 failed にする
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	uniqueKey string
	delay     time.Duration
}

// WithUniqueKey: 同じキーのジョブは一度しか積まれない
func WithUniqueKey(key string) EnqueueOption {
	return func(o *enqueueOptions) { o.uniqueKey = key }
}

func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) { o.delay = d }
}

// ResolveOptions は EnqueueOption を評価する（Enqueuer の代替実装向け）
func ResolveOptions(opts ...EnqueueOption) (uniqueKey string, delay time.Duration) {
	var o enqueueOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o.uniqueKey, o.delay
}
