// Package categories はヘルプデスクの分類と SLA 時間を管理する
package categories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"ICTSERVE-backend/internal/platform/apierr"
	"ICTSERVE-backend/internal/platform/db"
)

// 損傷返却ワークフローが起票先に使う分類コード
const MaintenanceCode = "maintenance"

type Category struct {
	ID                 int64
	Code               string
	Name               string
	Description        sql.NullString
	SLAResponseHours   int
	SLAResolutionHours int
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type CreateRequest struct {
	Code               string  `json:"code" binding:"required"`
	Name               string  `json:"name" binding:"required"`
	Description        *string `json:"description,omitempty"`
	SLAResponseHours   int     `json:"sla_response_hours" binding:"required,min=1"`
	SLAResolutionHours int     `json:"sla_resolution_hours" binding:"required,min=1"`
}

type UpdateRequest struct {
	Name               *string `json:"name,omitempty"`
	Description        *string `json:"description,omitempty"`
	SLAResponseHours   *int    `json:"sla_response_hours,omitempty"`
	SLAResolutionHours *int    `json:"sla_resolution_hours,omitempty"`
	IsActive           *bool   `json:"is_active,omitempty"`
}

type Response struct {
	ID                 int64     `json:"id"`
	Code               string    `json:"code"`
	Name               string    `json:"name"`
	Description        *string   `json:"description,omitempty"`
	SLAResponseHours   int       `json:"sla_response_hours"`
	SLAResolutionHours int       `json:"sla_resolution_hours"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (c *Category) Response() Response {
	r := Response{
		ID: c.ID, Code: c.Code, Name: c.Name,
		SLAResponseHours: c.SLAResponseHours, SLAResolutionHours: c.SLAResolutionHours,
		IsActive: c.IsActive, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
	if c.Description.Valid {
		d := c.Description.String
		r.Description = &d
	}
	return r
}

// ===== Store =====

type Store struct{ db *sql.DB }

func NewStore(sqlDB *sql.DB) *Store { return &Store{db: sqlDB} }

const columns = `id, code, name, description, sla_response_hours, sla_resolution_hours, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scan(r rowScanner) (*Category, error) {
	var c Category
	if err := r.Scan(&c.ID, &c.Code, &c.Name, &c.Description, &c.SLAResponseHours, &c.SLAResolutionHours,
		&c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) q(q db.DBTX) db.DBTX {
	if q == nil {
		return s.db
	}
	return q
}

func (s *Store) GetByID(ctx context.Context, q db.DBTX, id int64) (*Category, error) {
	return scan(s.q(q).QueryRowContext(ctx, `SELECT `+columns+` FROM helpdesk_categories WHERE id = ?`, id))
}

// GetActiveByCode は有効な分類だけを返す。無ければ sql.ErrNoRows。
func (s *Store) GetActiveByCode(ctx context.Context, q db.DBTX, code string) (*Category, error) {
	return scan(s.q(q).QueryRowContext(ctx,
		`SELECT `+columns+` FROM helpdesk_categories WHERE code = ? AND is_active = 1`, code))
}

func (s *Store) List(ctx context.Context, activeOnly bool) ([]Category, error) {
	q := `SELECT ` + columns + ` FROM helpdesk_categories`
	if activeOnly {
		q += ` WHERE is_active = 1`
	}
	q += ` ORDER BY name ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []Category{}
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}

func (s *Store) Insert(ctx context.Context, in CreateRequest) (int64, error) {
	const q = `
	INSERT INTO helpdesk_categories (code, name, description, sla_response_hours, sla_resolution_hours, is_active)
	VALUES (?, ?, ?, ?, ?, 1)`
	var desc sql.NullString
	if in.Description != nil {
		desc = sql.NullString{String: *in.Description, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, q, in.Code, in.Name, desc, in.SLAResponseHours, in.SLAResolutionHours)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) Update(ctx context.Context, id int64, in UpdateRequest) error {
	sets := []string{}
	args := []any{}
	if in.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *in.Name)
	}
	if in.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *in.Description)
	}
	if in.SLAResponseHours != nil {
		sets = append(sets, "sla_response_hours = ?")
		args = append(args, *in.SLAResponseHours)
	}
	if in.SLAResolutionHours != nil {
		sets = append(sets, "sla_resolution_hours = ?")
		args = append(args, *in.SLAResolutionHours)
	}
	if in.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *in.IsActive)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`UPDATE helpdesk_categories SET %s WHERE id = ?`, strings.Join(sets, ", ")), args...)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ===== Service =====

var codePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,63}$`)

type Service struct{ store *Store }

func NewService(sqlDB *sql.DB) *Service { return &Service{store: NewStore(sqlDB)} }

func (s *Service) Store() *Store { return s.store }

func (s *Service) Create(ctx context.Context, in CreateRequest) (Response, error) {
	in.Code = strings.TrimSpace(strings.ToLower(in.Code))
	in.Name = strings.TrimSpace(in.Name)
	if !codePattern.MatchString(in.Code) {
		return Response{}, apierr.Invalid("invalid code").WithDetail("code", "lowercase letters, digits and underscore")
	}
	if in.Name == "" {
		return Response{}, apierr.Invalid("name is required")
	}
	if in.SLAResponseHours <= 0 || in.SLAResolutionHours < in.SLAResponseHours {
		return Response{}, apierr.Invalid("invalid SLA hours").WithDetail("sla_resolution_hours", "must be >= sla_response_hours")
	}
	id, err := s.store.Insert(ctx, in)
	if err != nil {
		return Response{}, apierr.FromMySQL(err, "category code already exists", "invalid reference")
	}
	return s.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id int64) (Response, error) {
	c, err := s.store.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Response{}, apierr.NotFound("category not found")
		}
		return Response{}, err
	}
	return c.Response(), nil
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]Response, error) {
	list, err := s.store.List(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	out := make([]Response, 0, len(list))
	for i := range list {
		out = append(out, list[i].Response())
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, id int64, in UpdateRequest) (Response, error) {
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return Response{}, apierr.Invalid("name must not be empty")
	}
	if (in.SLAResponseHours != nil && *in.SLAResponseHours <= 0) || (in.SLAResolutionHours != nil && *in.SLAResolutionHours <= 0) {
		return Response{}, apierr.Invalid("SLA hours must be > 0")
	}
	if err := s.store.Update(ctx, id, in); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Response{}, apierr.NotFound("category not found")
		}
		return Response{}, err
	}
	return s.Get(ctx, id)
}

// Deactivate: 分類は削除せず無効化する（既存チケットの参照を残す）
func (s *Service) Deactivate(ctx context.Context, id int64) (Response, error) {
	off := false
	return s.Update(ctx, id, UpdateRequest{IsActive: &off})
}
