package crossmodule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ICTSERVE-backend/internal/asset_mgmt/loans"
	"ICTSERVE-backend/internal/helpdesk/tickets"
	"ICTSERVE-backend/internal/platform/apierr"
	"ICTSERVE-backend/internal/platform/db"
	"ICTSERVE-backend/internal/platform/ids"
)

type Service struct {
	db      *sql.DB
	store   *Store
	tickets *tickets.Store
	loans   *loans.Store
	clock   ids.Clock
}

func NewService(sqlDB *sql.DB) *Service {
	return &Service{
		db:      sqlDB,
		store:   NewStore(sqlDB),
		tickets: tickets.NewStore(sqlDB),
		loans:   loans.NewStore(sqlDB),
		clock:   ids.RealClock{},
	}
}

func (s *Service) WithClock(c ids.Clock) *Service { s.clock = c; return s }

func manualLinkKey(ticketID, appID int64) string {
	return fmt.Sprintf("manual-link:%d:%d", ticketID, appID)
}

// Link は票と申請を手動で関連付ける。同じ組は既存の行を返す（created=false）。
func (s *Service) Link(ctx context.Context, in LinkRequest) (Response, bool, error) {
	verr := apierr.Invalid("validation failed")
	if in.HelpdeskTicketID <= 0 {
		verr.WithDetail("helpdesk_ticket_id", "required")
	}
	if in.LoanApplicationID <= 0 {
		verr.WithDetail("loan_application_id", "required")
	}
	if len(verr.Details) > 0 {
		return Response{}, false, verr
	}

	key := manualLinkKey(in.HelpdeskTicketID, in.LoanApplicationID)
	var out *Integration
	created := false
	err := db.ReadCommitted(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		existing, err := s.store.GetByKey(ctx, tx, key)
		if err == nil {
			out = existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		t, err := s.tickets.GetByID(ctx, tx, in.HelpdeskTicketID)
		if errors.Is(err, sql.ErrNoRows) {
			return apierr.Invalid("validation failed").WithDetail("helpdesk_ticket_id", "not found")
		}
		if err != nil {
			return err
		}
		app, err := s.loans.GetByID(ctx, tx, in.LoanApplicationID)
		if errors.Is(err, sql.ErrNoRows) {
			return apierr.Invalid("validation failed").WithDetail("loan_application_id", "not found")
		}
		if err != nil {
			return err
		}

		data, err := json.Marshal(map[string]string{
			"ticket_number":      t.TicketNumber,
			"application_number": app.ApplicationNumber,
			"note":               in.Note,
		})
		if err != nil {
			return err
		}
		i := &Integration{
			HelpdeskTicketID:  t.ID,
			LoanApplicationID: app.ID,
			IntegrationType:   TypeManualLink,
			TriggerEvent:      TriggerManual,
			IntegrationData:   data,
			IdempotencyKey:    key,
			ProcessedAt:       s.clock.Now().UTC(),
		}
		if err := s.store.Insert(ctx, tx, i); err != nil {
			if !apierr.IsDuplicateKey(err) {
				return err
			}
			// 並行で先に作られた行を返す
			out, err = s.store.GetByKey(ctx, tx, key)
			return err
		}
		out, err = s.store.GetByID(ctx, tx, i.ID)
		created = true
		return err
	})
	if err != nil {
		return Response{}, false, err
	}
	return out.Response(), created, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Response, error) {
	i, err := s.store.GetByID(ctx, nil, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Response{}, apierr.NotFound("integration not found")
	}
	if err != nil {
		return Response{}, err
	}
	return i.Response(), nil
}

func toResponses(list []Integration) []Response {
	out := make([]Response, 0, len(list))
	for i := range list {
		out = append(out, list[i].Response())
	}
	return out
}

func (s *Service) ListByApplication(ctx context.Context, appID int64) ([]Response, error) {
	list, err := s.store.ListByApplication(ctx, appID)
	if err != nil {
		return nil, err
	}
	return toResponses(list), nil
}

func (s *Service) ListByTicket(ctx context.Context, ticketID int64) ([]Response, error) {
	list, err := s.store.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return toResponses(list), nil
}
