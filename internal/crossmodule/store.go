package crossmodule

import (
	"context"
	"database/sql"

	"ICTSERVE-backend/internal/platform/db"
)

type Store struct{ db *sql.DB }

func NewStore(sqlDB *sql.DB) *Store { return &Store{db: sqlDB} }

const columns = `id, helpdesk_ticket_id, loan_application_id, integration_type, trigger_event,
	integration_data, idempotency_key, processed_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scan(r rowScanner) (*Integration, error) {
	var i Integration
	var data sql.NullString
	if err := r.Scan(&i.ID, &i.HelpdeskTicketID, &i.LoanApplicationID, &i.IntegrationType, &i.TriggerEvent,
		&data, &i.IdempotencyKey, &i.ProcessedAt, &i.CreatedAt); err != nil {
		return nil, err
	}
	if data.Valid {
		i.IntegrationData = []byte(data.String)
	}
	return &i, nil
}

func (s *Store) q(q db.DBTX) db.DBTX {
	if q == nil {
		return s.db
	}
	return q
}

// Insert: idempotency_key 重複は 1062 のまま返す
func (s *Store) Insert(ctx context.Context, tx db.DBTX, i *Integration) error {
	const q = `
	INSERT INTO cross_module_integrations
	(helpdesk_ticket_id, loan_application_id, integration_type, trigger_event, integration_data, idempotency_key, processed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, i.HelpdeskTicketID, i.LoanApplicationID, i.IntegrationType,
		i.TriggerEvent, nullBytes(i.IntegrationData), i.IdempotencyKey, i.ProcessedAt)
	if err != nil {
		return err
	}
	i.ID, err = res.LastInsertId()
	return err
}

func (s *Store) GetByID(ctx context.Context, q db.DBTX, id int64) (*Integration, error) {
	return scan(s.q(q).QueryRowContext(ctx, `SELECT `+columns+` FROM cross_module_integrations WHERE id = ?`, id))
}

// GetByKey: 無ければ sql.ErrNoRows
func (s *Store) GetByKey(ctx context.Context, q db.DBTX, key string) (*Integration, error) {
	return scan(s.q(q).QueryRowContext(ctx,
		`SELECT `+columns+` FROM cross_module_integrations WHERE idempotency_key = ?`, key))
}

func (s *Store) ListByApplication(ctx context.Context, appID int64) ([]Integration, error) {
	return s.list(ctx, `SELECT `+columns+` FROM cross_module_integrations WHERE loan_application_id = ? ORDER BY id ASC`, appID)
}

func (s *Store) ListByTicket(ctx context.Context, ticketID int64) ([]Integration, error) {
	return s.list(ctx, `SELECT `+columns+` FROM cross_module_integrations WHERE helpdesk_ticket_id = ? ORDER BY id ASC`, ticketID)
}

func (s *Store) list(ctx context.Context, q string, args ...any) ([]Integration, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []Integration{}
	for rows.Next() {
		i, err := scan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *i)
	}
	return list, rows.Err()
}
