package categories

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ICTSERVE-backend/internal/platform/apierr"

	"github.com/DATA-DOG/go-sqlmock"
	mysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cols = []string{"id", "code", "name", "description", "sla_response_hours", "sla_resolution_hours", "is_active", "created_at", "updated_at"}

func newSvc(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return NewService(sqlDB), mock
}

func TestCreate(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	t.Run("ok", func(t *testing.T) {
		svc, mock := newSvc(t)
		mock.ExpectExec("INSERT INTO helpdesk_categories").
			WithArgs("printer", "Printer", nil, 4, 24).
			WillReturnResult(sqlmock.NewResult(6, 1))
		mock.ExpectQuery("FROM helpdesk_categories WHERE id = \\?").WithArgs(int64(6)).
			WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(6), "printer", "Printer", nil, 4, 24, true, now, now))

		res, err := svc.Create(context.Background(), CreateRequest{Code: " Printer ", Name: "Printer", SLAResponseHours: 4, SLAResolutionHours: 24})
		require.NoError(t, err)
		assert.Equal(t, "printer", res.Code)
		assert.True(t, res.IsActive)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate code", func(t *testing.T) {
		svc, mock := newSvc(t)
		mock.ExpectExec("INSERT INTO helpdesk_categories").
			WillReturnError(&mysql.MySQLError{Number: 1062})
		_, err := svc.Create(context.Background(), CreateRequest{Code: "network", Name: "Network", SLAResponseHours: 2, SLAResolutionHours: 8})
		assert.True(t, apierr.Is(err, apierr.CodeConflict))
	})

	t.Run("resolution shorter than response", func(t *testing.T) {
		svc, _ := newSvc(t)
		_, err := svc.Create(context.Background(), CreateRequest{Code: "x1", Name: "X", SLAResponseHours: 8, SLAResolutionHours: 4})
		assert.True(t, apierr.Is(err, apierr.CodeInvalidArgument))
	})
}

func TestDeactivate_NotFound(t *testing.T) {
	svc, mock := newSvc(t)
	mock.ExpectExec("UPDATE helpdesk_categories SET is_active = \\? WHERE id = \\?").
		WithArgs(false, int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := svc.Deactivate(context.Background(), 99)
	assert.True(t, apierr.Is(err, apierr.CodeNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActiveByCode_Missing(t *testing.T) {
	svc, mock := newSvc(t)
	mock.ExpectQuery("WHERE code = \\? AND is_active = 1").WithArgs(MaintenanceCode).
		WillReturnRows(sqlmock.NewRows(cols))

	_, err := svc.Store().GetActiveByCode(context.Background(), nil, MaintenanceCode)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
