package exports

import (
	"context"
	"database/sql"
	"time"

	"ICTSERVE-backend/internal/platform/apierr"
	"ICTSERVE-backend/internal/platform/db"
	"ICTSERVE-backend/internal/platform/paging"
)

type Store struct{ db *sql.DB }

func NewStore(sqlDB *sql.DB) *Store { return &Store{db: sqlDB} }

const columns = `id, export_ulid, format, status, filters, file_path, row_count, error, requested_by, created_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scan(r rowScanner) (*Export, error) {
	var e Export
	var filters sql.NullString
	if err := r.Scan(&e.ID, &e.ULID, &e.Format, &e.Status, &filters, &e.FilePath, &e.RowCount, &e.Error,
		&e.RequestedBy, &e.CreatedAt, &e.CompletedAt); err != nil {
		return nil, err
	}
	if filters.Valid {
		e.Filters = []byte(filters.String)
	}
	return &e, nil
}

func (s *Store) Insert(ctx context.Context, tx db.DBTX, e *Export) error {
	const q = `
	INSERT INTO exports (export_ulid, format, status, filters, requested_by, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, e.ULID, e.Format, e.Status, string(e.Filters), e.RequestedBy, e.CreatedAt)
	if err != nil {
		return err
	}
	e.ID, err = res.LastInsertId()
	return err
}

func (s *Store) GetByID(ctx context.Context, id int64) (*Export, error) {
	return scan(s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM exports WHERE id = ?`, id))
}

func (s *Store) GetByULID(ctx context.Context, ulid string) (*Export, error) {
	return scan(s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM exports WHERE export_ulid = ?`, ulid))
}

func (s *Store) List(ctx context.Context, p paging.Page) ([]Export, int64, error) {
	p = p.Normalize()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+columns+` FROM exports ORDER BY id `+p.SQLOrder()+` LIMIT ? OFFSET ?`, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list := []Export{}
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exports`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// MarkCompleted / MarkFailed は pending の行だけを更新する
func (s *Store) MarkCompleted(ctx context.Context, id int64, path string, rowCount int, at time.Time) error {
	const q = `
	UPDATE exports SET status = ?, file_path = ?, row_count = ?, error = NULL, completed_at = ?
	WHERE id = ? AND status = ?`
	return execOne(ctx, s.db, q, StatusCompleted, path, rowCount, at, id, StatusPending)
}

func (s *Store) MarkFailed(ctx context.Context, id int64, msg string, at time.Time) error {
	const q = `UPDATE exports SET status = ?, error = ?, completed_at = ? WHERE id = ? AND status = ?`
	return execOne(ctx, s.db, q, StatusFailed, msg, at, id, StatusPending)
}

func execOne(ctx context.Context, q db.DBTX, query string, args ...any) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return apierr.Conflict("export is no longer pending")
	}
	return nil
}
