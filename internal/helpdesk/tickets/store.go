package tickets

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ICTSERVE-backend/internal/enums"
	"ICTSERVE-backend/internal/platform/apierr"
	"ICTSERVE-backend/internal/platform/db"
	"ICTSERVE-backend/internal/platform/paging"
)

type Store struct{ db *sql.DB }

func NewStore(sqlDB *sql.DB) *Store { return &Store{db: sqlDB} }

const columns = `
	id, ticket_number, subject, description, category_id, priority, status, requester_name,
	requester_email, asset_id, assigned_to, source, sla_response_due_at, sla_resolution_due_at,
	first_response_at, resolved_at, closed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scan(r rowScanner) (*Ticket, error) {
	var t Ticket
	if err := r.Scan(&t.ID, &t.TicketNumber, &t.Subject, &t.Description, &t.CategoryID, &t.Priority,
		&t.Status, &t.RequesterName, &t.RequesterEmail, &t.AssetID, &t.AssignedTo, &t.Source,
		&t.SLAResponseDueAt, &t.SLAResolutionDueAt, &t.FirstResponseAt, &t.ResolvedAt, &t.ClosedAt,
		&t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) q(q db.DBTX) db.DBTX {
	if q == nil {
		return s.db
	}
	return q
}

// 1) 仮INSERT（ticket_number は仮番号、created_at は呼び出し側の時刻）
func (s *Store) InsertTmp(ctx context.Context, tx db.DBTX, t *Ticket) (int64, error) {
	const q = `
	INSERT INTO helpdesk_tickets
	(ticket_number, subject, description, category_id, priority, status, requester_name, requester_email,
	 asset_id, source, sla_response_due_at, sla_resolution_due_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, t.TicketNumber, t.Subject, t.Description, t.CategoryID, t.Priority,
		t.Status, t.RequesterName, t.RequesterEmail, t.AssetID, t.Source, t.SLAResponseDueAt,
		t.SLAResolutionDueAt, t.CreatedAt, t.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// 2) 確定番号に置換: HD<yyyy><id 6桁>
func (s *Store) UpdateNumberToFinal(ctx context.Context, tx db.DBTX, id int64, tmp string) error {
	const q = `
	UPDATE helpdesk_tickets
	SET ticket_number = CONCAT('HD', DATE_FORMAT(created_at, '%Y'), LPAD(id, GREATEST(6, CHAR_LENGTH(id)), '0'))
	WHERE id = ? AND ticket_number = ?`
	res, err := tx.ExecContext(ctx, q, id, tmp)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return apierr.Conflict("no row updated")
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, q db.DBTX, id int64) (*Ticket, error) {
	return scan(s.q(q).QueryRowContext(ctx, `SELECT `+columns+` FROM helpdesk_tickets WHERE id = ?`, id))
}

func (s *Store) GetForUpdate(ctx context.Context, tx db.DBTX, id int64) (*Ticket, error) {
	return scan(tx.QueryRowContext(ctx, `SELECT `+columns+` FROM helpdesk_tickets WHERE id = ? FOR UPDATE`, id))
}

func (s *Store) GetByNumber(ctx context.Context, number string) (*Ticket, error) {
	return scan(s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM helpdesk_tickets WHERE ticket_number = ?`, number))
}

func buildWhere(f ListFilter) (string, []any) {
	var sb strings.Builder
	args := []any{}
	sb.WriteString(" WHERE 1=1")
	if f.Status != nil {
		sb.WriteString(" AND status = ?")
		args = append(args, *f.Status)
	}
	if f.Priority != nil {
		sb.WriteString(" AND priority = ?")
		args = append(args, *f.Priority)
	}
	if f.CategoryID != nil {
		sb.WriteString(" AND category_id = ?")
		args = append(args, *f.CategoryID)
	}
	if f.AssetID != nil {
		sb.WriteString(" AND asset_id = ?")
		args = append(args, *f.AssetID)
	}
	if f.RequesterEmail != nil && *f.RequesterEmail != "" {
		sb.WriteString(" AND requester_email = ?")
		args = append(args, *f.RequesterEmail)
	}
	return sb.String(), args
}

func (s *Store) List(ctx context.Context, f ListFilter, p paging.Page) ([]Ticket, int64, error) {
	p = p.Normalize()
	where, args := buildWhere(f)
	query := `SELECT ` + columns + ` FROM helpdesk_tickets` + where +
		` ORDER BY created_at ` + p.SQLOrder() + `, id ` + p.SQLOrder() + ` LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list := []Ticket{}
	for rows.Next() {
		t, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM helpdesk_tickets`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (s *Store) SetSLA(ctx context.Context, tx db.DBTX, id int64, resp, res time.Time) error {
	const q = `UPDATE helpdesk_tickets SET sla_response_due_at = ?, sla_resolution_due_at = ? WHERE id = ?`
	return execOne(ctx, tx, q, resp, res, id)
}

func (s *Store) Update(ctx context.Context, tx db.DBTX, id int64, in UpdateRequest) error {
	sets := []string{}
	args := []any{}
	if in.Subject != nil {
		sets = append(sets, "subject = ?")
		args = append(args, *in.Subject)
	}
	if in.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *in.Description)
	}
	if in.CategoryID != nil {
		sets = append(sets, "category_id = ?")
		args = append(args, *in.CategoryID)
	}
	if in.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, *in.Priority)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	return execOne(ctx, tx, fmt.Sprintf(`UPDATE helpdesk_tickets SET %s WHERE id = ?`, strings.Join(sets, ", ")), args...)
}

func (s *Store) Assign(ctx context.Context, tx db.DBTX, id int64, from, to enums.TicketStatus, assignee string, firstResponse sql.NullTime) error {
	const q = `
	UPDATE helpdesk_tickets
	SET assigned_to = ?, status = ?, first_response_at = COALESCE(first_response_at, ?)
	WHERE id = ? AND status = ?`
	return execOne(ctx, tx, q, assignee, to, firstResponse, id, from)
}

// StatusChange は遷移と同時に押すタイムスタンプ
type StatusChange struct {
	From, To        enums.TicketStatus
	FirstResponseAt sql.NullTime // NULL のときだけ埋める
	ResolvedAt      sql.NullTime
	ClosedAt        sql.NullTime
	ClearResolved   bool // 再オープン
}

func (s *Store) ChangeStatus(ctx context.Context, tx db.DBTX, id int64, ch StatusChange) error {
	sets := []string{"status = ?", "first_response_at = COALESCE(first_response_at, ?)"}
	args := []any{ch.To, ch.FirstResponseAt}
	if ch.ResolvedAt.Valid {
		sets = append(sets, "resolved_at = ?")
		args = append(args, ch.ResolvedAt)
	}
	if ch.ClearResolved {
		sets = append(sets, "resolved_at = NULL")
	}
	if ch.ClosedAt.Valid {
		sets = append(sets, "closed_at = ?")
		args = append(args, ch.ClosedAt)
	}
	args = append(args, id, ch.From)
	q := fmt.Sprintf(`UPDATE helpdesk_tickets SET %s WHERE id = ? AND status = ?`, strings.Join(sets, ", "))
	return execOne(ctx, tx, q, args...)
}

func execOne(ctx context.Context, tx db.DBTX, q string, args ...any) error {
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return apierr.Conflict("ticket was modified concurrently")
	}
	return nil
}
