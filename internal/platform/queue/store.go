package queue

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ICTSERVE-backend/internal/platform/db"
)

type Store struct{ db *sql.DB }

func NewStore(sqlDB *sql.DB) *Store { return &Store{db: sqlDB} }

const insertJob = `
INSERT INTO queue_jobs
  (job_ulid, job_type, payload, attempts, max_attempts, timeout_seconds, available_at, unique_key, created_at)
VALUES (?, ?, ?, 0, ?, ?, ?, ?, ?)`

func (s *Store) Insert(ctx context.Context, tx db.DBTX, j *Job) error {
	res, err := tx.ExecContext(ctx, insertJob,
		j.ULID, j.Type, j.Payload, j.MaxAttempts, j.TimeoutSeconds, j.AvailableAt, nullStr(j.UniqueKey), j.CreatedAt)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	j.ID = id
	return nil
}

// Reserve は実行可能なジョブを1件ロックして予約する。無ければ (nil, nil)。
// 予約後にタイムアウト＋猶予を過ぎても完了していないジョブ（worker 落ち）は再取得される。
func (s *Store) Reserve(ctx context.Context, now time.Time) (*Job, error) {
	var job *Job
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		const q = `
		SELECT id, job_ulid, job_type, payload, attempts, max_attempts, timeout_seconds, available_at, unique_key, last_error, created_at
		FROM queue_jobs
		WHERE completed_at IS NULL
		  AND failed_at IS NULL
		  AND available_at <= ?
		  AND (reserved_at IS NULL OR reserved_at < DATE_SUB(?, INTERVAL (timeout_seconds + 30) SECOND))
		ORDER BY available_at, id
		LIMIT 1
		FOR UPDATE SKIP LOCKED`
		var j Job
		err := tx.QueryRowContext(ctx, q, now, now).Scan(
			&j.ID, &j.ULID, &j.Type, &j.Payload, &j.Attempts, &j.MaxAttempts, &j.TimeoutSeconds,
			&j.AvailableAt, &j.UniqueKey, &j.LastError, &j.CreatedAt,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		const u = `UPDATE queue_jobs SET reserved_at = ?, attempts = attempts + 1 WHERE id = ?`
		if _, err := tx.ExecContext(ctx, u, now, j.ID); err != nil {
			return err
		}
		j.Attempts++
		job = &j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Store) Complete(ctx context.Context, id int64, now time.Time) error {
	const q = `UPDATE queue_jobs SET completed_at = ?, reserved_at = NULL, last_error = NULL WHERE id = ?`
	_, err := s.db.ExecContext(ctx, q, now, id)
	return err
}

// Release は再試行のために予約を解除し available_at を後ろへずらす
func (s *Store) Release(ctx context.Context, id int64, availableAt time.Time, lastErr string) error {
	const q = `UPDATE queue_jobs SET reserved_at = NULL, available_at = ?, last_error = ? WHERE id = ?`
	_, err := s.db.ExecContext(ctx, q, availableAt, truncate(lastErr), id)
	return err
}

func (s *Store) Fail(ctx context.Context, id int64, now time.Time, lastErr string) error {
	const q = `UPDATE queue_jobs SET failed_at = ?, reserved_at = NULL, last_error = ? WHERE id = ?`
	_, err := s.db.ExecContext(ctx, q, now, truncate(lastErr), id)
	return err
}

// PurgeCompleted は完了済みで before より古いジョブを削除する
func (s *Store) PurgeCompleted(ctx context.Context, before time.Time) (int64, error) {
	const q = `DELETE FROM queue_jobs WHERE completed_at IS NOT NULL AND completed_at < ? LIMIT 1000`
	res, err := s.db.ExecContext(ctx, q, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) CountFailed(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue_jobs WHERE failed_at IS NOT NULL`).Scan(&n)
	return n, err
}

// Retry は failed のジョブを再投入する（管理者操作）
func (s *Store) Retry(ctx context.Context, jobULID string, now time.Time) error {
	const q = `
	UPDATE queue_jobs
	SET failed_at = NULL, attempts = 0, available_at = ?, reserved_at = NULL
	WHERE job_ulid = ? AND failed_at IS NOT NULL`
	res, err := s.db.ExecContext(ctx, q, now, jobULID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return sql.ErrNoRows
	}
	return nil
}

func nullStr(ns sql.NullString) any {
	if ns.Valid {
		return ns.String
	}
	return nil
}

func truncate(s string) string {
	const max = 4000
	if len(s) > max {
		return s[:max]
	}
	return s
}
