package scheduler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"ICTSERVE-backend/internal/platform/ids"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 2, 2, 30, 0, 0, time.UTC)

type stubLoans struct {
	overdue, returnDue int
	err                error
	calls              []string
}

func (s *stubLoans) MarkOverdue(context.Context) (int, error) {
	s.calls = append(s.calls, "overdue")
	return s.overdue, s.err
}

func (s *stubLoans) MarkReturnDue(context.Context) (int, error) {
	s.calls = append(s.calls, "return_due")
	return s.returnDue, s.err
}

type stubQueue struct {
	before time.Time
	purged int64
	failed int64
}

func (s *stubQueue) PurgeCompleted(_ context.Context, before time.Time) (int64, error) {
	s.before = before
	return s.purged, nil
}

func (s *stubQueue) CountFailed(context.Context) (int64, error) { return s.failed, nil }

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func newTestScheduler(t *testing.T, lg *log.Logger) *Scheduler {
	t.Helper()
	return New(WithLogger(lg), WithClock(ids.FixedClock{T: fixedNow}), WithLocation(time.UTC))
}

func TestAdd_Validates(t *testing.T) {
	s := newTestScheduler(t, quiet())
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Add(Job{Name: "a", Schedule: "*/15 * * * *", Run: noop}))
	require.NoError(t, s.Add(Job{Name: "b", Schedule: "@every 1h", Run: noop}))

	assert.Error(t, s.Add(Job{Name: "c", Schedule: "not a cron", Run: noop}))
	assert.Error(t, s.Add(Job{Name: "a", Schedule: "0 8 * * *", Run: noop}), "duplicate name")
	assert.Error(t, s.Add(Job{Schedule: "0 8 * * *", Run: noop}))
	assert.Error(t, s.Add(Job{Name: "d", Schedule: "0 8 * * *"}))

	assert.ElementsMatch(t, []string{"a", "b"}, s.Names())
}

func TestRunNow(t *testing.T) {
	var buf bytes.Buffer
	s := newTestScheduler(t, log.New(&buf, "", 0))

	var deadline time.Time
	require.NoError(t, s.Add(Job{
		Name:     "ok",
		Schedule: "0 8 * * *",
		Timeout:  time.Minute,
		Run: func(ctx context.Context) error {
			deadline, _ = ctx.Deadline()
			return nil
		},
	}))
	require.NoError(t, s.Add(Job{
		Name:     "boom",
		Schedule: "0 8 * * *",
		Run:      func(context.Context) error { panic("nil map") },
	}))
	require.NoError(t, s.Add(Job{
		Name:     "fail",
		Schedule: "0 8 * * *",
		Run:      func(context.Context) error { return errors.New("db down") },
	}))

	require.NoError(t, s.RunNow(context.Background(), "ok"))
	assert.False(t, deadline.IsZero())

	err := s.RunNow(context.Background(), "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: nil map")

	require.Error(t, s.RunNow(context.Background(), "fail"))
	assert.Contains(t, buf.String(), "[ERROR] scheduled job failed job=fail")

	assert.Error(t, s.RunNow(context.Background(), "missing"))
}

func TestBuiltinJobs(t *testing.T) {
	var buf bytes.Buffer
	lg := log.New(&buf, "", 0)
	loans := &stubLoans{overdue: 2}
	q := &stubQueue{purged: 10, failed: 1}

	s := newTestScheduler(t, lg)
	for _, j := range BuiltinJobs(loans, q, 7*24*time.Hour, ids.FixedClock{T: fixedNow}, lg) {
		require.NoError(t, s.Add(j))
	}
	assert.ElementsMatch(t, []string{JobMarkOverdue, JobReturnDueReminder, JobQueueHousekeeping}, s.Names())

	require.NoError(t, s.RunNow(context.Background(), JobMarkOverdue))
	require.NoError(t, s.RunNow(context.Background(), JobReturnDueReminder))
	assert.Equal(t, []string{"overdue", "return_due"}, loans.calls)
	assert.Contains(t, buf.String(), "loans marked overdue count=2")
	assert.NotContains(t, buf.String(), "return_due count")

	require.NoError(t, s.RunNow(context.Background(), JobQueueHousekeeping))
	assert.Equal(t, fixedNow.AddDate(0, 0, -7), q.before)
	assert.Contains(t, buf.String(), "purged=10")
	assert.Contains(t, buf.String(), "[WARN] queue has failed jobs count=1")
}

func TestBuiltinJobs_PropagatesError(t *testing.T) {
	loans := &stubLoans{err: errors.New("lock wait timeout")}
	s := newTestScheduler(t, quiet())
	for _, j := range BuiltinJobs(loans, &stubQueue{}, time.Hour, ids.FixedClock{T: fixedNow}, quiet()) {
		require.NoError(t, s.Add(j))
	}
	assert.EqualError(t, s.RunNow(context.Background(), JobMarkOverdue), "lock wait timeout")
}

func TestStart_StopsOnCancel(t *testing.T) {
	s := newTestScheduler(t, quiet())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
