package tickets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"ICTSERVE-backend/internal/enums"
	"ICTSERVE-backend/internal/helpdesk/categories"
	"ICTSERVE-backend/internal/jobs"
	"ICTSERVE-backend/internal/platform/apierr"
	"ICTSERVE-backend/internal/platform/db"
	"ICTSERVE-backend/internal/platform/ids"
	"ICTSERVE-backend/internal/platform/paging"
	"ICTSERVE-backend/internal/platform/queue"
)

type Service struct {
	db         *sql.DB
	store      *Store
	categories *categories.Store
	queue      queue.Enqueuer
	sla        *SLA
	clock      ids.Clock
}

func NewService(sqlDB *sql.DB, q queue.Enqueuer, sla *SLA) *Service {
	if sla == nil {
		sla = NewSLA(nil)
	}
	return &Service{
		db:         sqlDB,
		store:      NewStore(sqlDB),
		categories: categories.NewStore(sqlDB),
		queue:      q,
		sla:        sla,
		clock:      ids.RealClock{},
	}
}

func (s *Service) WithClock(c ids.Clock) *Service { s.clock = c; return s }

func (s *Service) Store() *Store { return s.store }

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apierr.NotFound("ticket not found")
	}
	return err
}

// NewTicket は起票に必要な値。CreateTx は検証済みであることを前提にする。
type NewTicket struct {
	Subject        string
	Description    string
	Category       *categories.Category
	Priority       enums.TicketPriority
	RequesterName  string
	RequesterEmail string
	AssetID        sql.NullInt64
	Source         string
}

// CreateTx は呼び出し側の Tx で起票し、確定番号と SLA 期限を付けて返す。
// 通知ジョブは積まない（呼び出し側の責務）。
func (s *Service) CreateTx(ctx context.Context, tx db.DBTX, in NewTicket) (*Ticket, error) {
	if in.Category == nil {
		return nil, apierr.Invalid("category is required")
	}
	if in.Priority == "" {
		in.Priority = enums.TicketNormal
	}
	now := s.clock.Now().UTC().Truncate(time.Second)
	respDue, resDue := s.sla.Due(now, in.Category, in.Priority)

	t := &Ticket{
		TicketNumber:       ids.TmpNumber(),
		Subject:            in.Subject,
		Description:        in.Description,
		CategoryID:         in.Category.ID,
		Priority:           in.Priority,
		Status:             enums.TicketOpen,
		RequesterName:      in.RequesterName,
		RequesterEmail:     in.RequesterEmail,
		AssetID:            in.AssetID,
		Source:             in.Source,
		SLAResponseDueAt:   sql.NullTime{Time: respDue, Valid: true},
		SLAResolutionDueAt: sql.NullTime{Time: resDue, Valid: true},
		CreatedAt:          now,
	}
	id, err := s.store.InsertTmp(ctx, tx, t)
	if err != nil {
		return nil, apierr.FromMySQL(err, "ticket already exists", "invalid category or asset")
	}
	if err := s.store.UpdateNumberToFinal(ctx, tx, id, t.TicketNumber); err != nil {
		return nil, err
	}
	return s.store.GetByID(ctx, tx, id)
}

func validateCreate(in *CreateRequest) error {
	in.Subject = strings.TrimSpace(in.Subject)
	in.Description = strings.TrimSpace(in.Description)
	in.RequesterName = strings.TrimSpace(in.RequesterName)
	in.RequesterEmail = strings.TrimSpace(in.RequesterEmail)

	verr := apierr.Invalid("validation failed")
	if in.Subject == "" {
		verr.WithDetail("subject", "required")
	}
	if in.Description == "" {
		verr.WithDetail("description", "required")
	}
	if in.RequesterName == "" {
		verr.WithDetail("requester_name", "required")
	}
	if _, err := mail.ParseAddress(in.RequesterEmail); err != nil {
		verr.WithDetail("requester_email", "must be a valid email")
	}
	if in.CategoryID <= 0 {
		verr.WithDetail("category_id", "required")
	}
	if in.Priority != nil && !in.Priority.Valid() {
		verr.WithDetail("priority", "invalid")
	}
	if in.AssetID != nil && *in.AssetID <= 0 {
		verr.WithDetail("asset_id", "must be positive")
	}
	if len(verr.Details) > 0 {
		return verr
	}
	return nil
}

// Create: ポータル/管理画面からの起票。作成通知は同じ Tx で積む。
func (s *Service) Create(ctx context.Context, in CreateRequest, source string) (Response, error) {
	if err := validateCreate(&in); err != nil {
		return Response{}, err
	}
	nt := NewTicket{
		Subject:        in.Subject,
		Description:    in.Description,
		Priority:       enums.TicketNormal,
		RequesterName:  in.RequesterName,
		RequesterEmail: in.RequesterEmail,
		Source:         source,
	}
	if in.Priority != nil {
		nt.Priority = *in.Priority
	}
	if in.AssetID != nil {
		nt.AssetID = sql.NullInt64{Int64: *in.AssetID, Valid: true}
	}

	var created *Ticket
	err := db.ReadCommitted(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		cat, err := s.activeCategory(ctx, tx, in.CategoryID)
		if err != nil {
			return err
		}
		nt.Category = cat
		t, err := s.CreateTx(ctx, tx, nt)
		if err != nil {
			return err
		}
		created = t
		_, err = s.queue.EnqueueTx(ctx, tx, jobs.MailTicketCreated, jobs.TicketMail{TicketID: t.ID},
			queue.WithUniqueKey(fmt.Sprintf("ticket-created:%d", t.ID)))
		return err
	})
	if err != nil {
		return Response{}, err
	}
	return created.Response(), nil
}

func (s *Service) activeCategory(ctx context.Context, q db.DBTX, id int64) (*categories.Category, error) {
	cat, err := s.categories.GetByID(ctx, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.Invalid("validation failed").WithDetail("category_id", "not found")
	}
	if err != nil {
		return nil, err
	}
	if !cat.IsActive {
		return nil, apierr.Invalid("validation failed").WithDetail("category_id", "inactive")
	}
	return cat, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Response, error) {
	t, err := s.store.GetByID(ctx, nil, id)
	if err != nil {
		return Response{}, notFound(err)
	}
	return t.Response(), nil
}

func (s *Service) GetByNumber(ctx context.Context, number string) (Response, error) {
	t, err := s.store.GetByNumber(ctx, number)
	if err != nil {
		return Response{}, notFound(err)
	}
	return t.Response(), nil
}

// Track: ゲストは番号とメールアドレスの組で照会する
func (s *Service) Track(ctx context.Context, number, email string) (TrackResponse, error) {
	if strings.TrimSpace(number) == "" || strings.TrimSpace(email) == "" {
		return TrackResponse{}, apierr.Invalid("ticket_number and email are required")
	}
	t, err := s.store.GetByNumber(ctx, number)
	if err != nil {
		return TrackResponse{}, notFound(err)
	}
	if !strings.EqualFold(t.RequesterEmail, strings.TrimSpace(email)) {
		return TrackResponse{}, apierr.NotFound("ticket not found")
	}
	return t.Track(), nil
}

func (s *Service) List(ctx context.Context, f ListFilter, p paging.Page) ([]Response, int64, error) {
	list, total, err := s.store.List(ctx, f, p)
	if err != nil {
		return nil, 0, err
	}
	out := make([]Response, 0, len(list))
	for i := range list {
		out = append(out, list[i].Response())
	}
	return out, total, nil
}

// mutate は行ロックを取って fn を実行し、更新後の行を返す
func (s *Service) mutate(ctx context.Context, id int64, fn func(ctx context.Context, tx db.DBTX, t *Ticket) error) (Response, error) {
	var out *Ticket
	err := db.ReadCommitted(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		t, err := s.store.GetForUpdate(ctx, tx, id)
		if err != nil {
			return notFound(err)
		}
		if err := fn(ctx, tx, t); err != nil {
			return err
		}
		out, err = s.store.GetByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return Response{}, err
	}
	return out.Response(), nil
}

// Assign: open なら assigned に進める。対応中の担当替えは状態を変えない。
func (s *Service) Assign(ctx context.Context, id int64, assignee string) (Response, error) {
	assignee = strings.TrimSpace(assignee)
	if assignee == "" {
		return Response{}, apierr.Invalid("validation failed").WithDetail("assigned_to", "required")
	}
	return s.mutate(ctx, id, func(ctx context.Context, tx db.DBTX, t *Ticket) error {
		to := t.Status
		switch t.Status {
		case enums.TicketOpen:
			to = enums.TicketAssigned
		case enums.TicketResolved, enums.TicketClosed:
			return apierr.Conflict("ticket is " + string(t.Status))
		}
		now := sql.NullTime{Time: s.clock.Now().UTC(), Valid: true}
		return s.store.Assign(ctx, tx, id, t.Status, to, assignee, now)
	})
}

func (s *Service) ChangeStatus(ctx context.Context, id int64, to enums.TicketStatus) (Response, error) {
	if !to.Valid() {
		return Response{}, apierr.Invalid("validation failed").WithDetail("status", "invalid")
	}
	return s.mutate(ctx, id, func(ctx context.Context, tx db.DBTX, t *Ticket) error {
		if err := enums.EnsureTicketTransition(t.Status, to); err != nil {
			return apierr.Transition(err)
		}
		now := sql.NullTime{Time: s.clock.Now().UTC(), Valid: true}
		ch := StatusChange{From: t.Status, To: to, FirstResponseAt: now}
		switch {
		case to == enums.TicketResolved:
			ch.ResolvedAt = now
		case to == enums.TicketClosed:
			ch.ClosedAt = now
			if !t.ResolvedAt.Valid {
				ch.ResolvedAt = now
			}
		case t.Status == enums.TicketResolved:
			// 再オープン
			ch.ClearResolved = true
		}
		return s.store.ChangeStatus(ctx, tx, id, ch)
	})
}

// RecalculateSLA は作成時刻・現在の分類と優先度から期限を引き直す
func (s *Service) RecalculateSLA(ctx context.Context, id int64) (Response, error) {
	return s.mutate(ctx, id, func(ctx context.Context, tx db.DBTX, t *Ticket) error {
		return s.recalc(ctx, tx, t)
	})
}

func (s *Service) recalc(ctx context.Context, tx db.DBTX, t *Ticket) error {
	cat, err := s.categories.GetByID(ctx, tx, t.CategoryID)
	if err != nil {
		return err
	}
	resp, res := s.sla.Due(t.CreatedAt, cat, t.Priority)
	return s.store.SetSLA(ctx, tx, t.ID, resp, res)
}

// Update: 分類か優先度が変わったら SLA を再計算する
func (s *Service) Update(ctx context.Context, id int64, in UpdateRequest) (Response, error) {
	if in.Subject != nil {
		v := strings.TrimSpace(*in.Subject)
		if v == "" {
			return Response{}, apierr.Invalid("validation failed").WithDetail("subject", "must not be empty")
		}
		in.Subject = &v
	}
	if in.Priority != nil && !in.Priority.Valid() {
		return Response{}, apierr.Invalid("validation failed").WithDetail("priority", "invalid")
	}
	return s.mutate(ctx, id, func(ctx context.Context, tx db.DBTX, t *Ticket) error {
		if t.Status.IsTerminal() {
			return apierr.Conflict("ticket is closed")
		}
		if in.CategoryID != nil {
			if _, err := s.activeCategory(ctx, tx, *in.CategoryID); err != nil {
				return err
			}
		}
		if err := s.store.Update(ctx, tx, id, in); err != nil {
			return err
		}
		if in.CategoryID == nil && in.Priority == nil {
			return nil
		}
		if in.CategoryID != nil {
			t.CategoryID = *in.CategoryID
		}
		if in.Priority != nil {
			t.Priority = *in.Priority
		}
		return s.recalc(ctx, tx, t)
	})
}
