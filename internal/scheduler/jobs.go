package scheduler

import (
	"context"
	"log"
	"time"

	"ICTSERVE-backend/internal/platform/ids"
)

const (
	JobMarkOverdue       = "loans.mark_overdue"
	JobReturnDueReminder = "loans.return_due_reminder"
	JobQueueHousekeeping = "queue.housekeeping"
)

type loanSweeper interface {
	MarkOverdue(ctx context.Context) (int, error)
	MarkReturnDue(ctx context.Context) (int, error)
}

type queueJanitor interface {
	PurgeCompleted(ctx context.Context, before time.Time) (int64, error)
	CountFailed(ctx context.Context) (int64, error)
}

// BuiltinJobs は標準の定期処理一覧を返す
func BuiltinJobs(loans loanSweeper, queue queueJanitor, retention time.Duration, clock ids.Clock, logger *log.Logger) []Job {
	if logger == nil {
		logger = log.Default()
	}
	return []Job{
		{
			Name:     JobMarkOverdue,
			Schedule: "*/15 * * * *",
			Timeout:  2 * time.Minute,
			Run: func(ctx context.Context) error {
				n, err := loans.MarkOverdue(ctx)
				if n > 0 {
					logger.Printf("[INFO] loans marked overdue count=%d", n)
				}
				return err
			},
		},
		{
			Name:     JobReturnDueReminder,
			Schedule: "0 8 * * *",
			Timeout:  2 * time.Minute,
			Run: func(ctx context.Context) error {
				n, err := loans.MarkReturnDue(ctx)
				if n > 0 {
					logger.Printf("[INFO] loans marked return_due count=%d", n)
				}
				return err
			},
		},
		{
			Name:     JobQueueHousekeeping,
			Schedule: "30 2 * * *",
			Timeout:  5 * time.Minute,
			Run: func(ctx context.Context) error {
				return housekeeping(ctx, queue, clock.Now().Add(-retention), logger)
			},
		},
	}
}

func housekeeping(ctx context.Context, q queueJanitor, before time.Time, logger *log.Logger) error {
	purged, err := q.PurgeCompleted(ctx, before)
	if err != nil {
		return err
	}
	failed, err := q.CountFailed(ctx)
	if err != nil {
		return err
	}
	logger.Printf("[INFO] queue housekeeping purged=%d before=%s", purged, before.UTC().Format(time.RFC3339))
	if failed > 0 {
		logger.Printf("[WARN] queue has failed jobs count=%d", failed)
	}
	return nil
}
