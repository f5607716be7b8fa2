package tickets

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ICTSERVE-backend/internal/enums"
	"ICTSERVE-backend/internal/helpdesk/categories"
	"ICTSERVE-backend/internal/jobs"
	"ICTSERVE-backend/internal/platform/apierr"
	"ICTSERVE-backend/internal/platform/ids"
	"ICTSERVE-backend/internal/platform/queue/queuetest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) // Monday

var catCols = []string{"id", "code", "name", "description", "sla_response_hours", "sla_resolution_hours", "is_active", "created_at", "updated_at"}

var ticketCols = []string{
	"id", "ticket_number", "subject", "description", "category_id", "priority", "status", "requester_name",
	"requester_email", "asset_id", "assigned_to", "source", "sla_response_due_at", "sla_resolution_due_at",
	"first_response_at", "resolved_at", "closed_at", "created_at", "updated_at",
}

func catRows(active bool) *sqlmock.Rows {
	return sqlmock.NewRows(catCols).AddRow(int64(3), "printer", "Printer", nil, 4, 24, active, fixedNow, fixedNow)
}

func ticketRows(status string, resolvedAt any) *sqlmock.Rows {
	return sqlmock.NewRows(ticketCols).AddRow(
		int64(42), "HD2026000042", "Printer jam", "Paper stuck", int64(3), "normal", status, "Aminah",
		"aminah@example.gov.my", nil, nil, "portal", fixedNow.Add(4*time.Hour), fixedNow.Add(24*time.Hour),
		nil, resolvedAt, nil, fixedNow, fixedNow,
	)
}

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock, *queuetest.Recorder) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	rec := &queuetest.Recorder{}
	svc := NewService(sqlDB, rec, NewSLA(time.UTC)).WithClock(ids.FixedClock{T: fixedNow})
	return svc, mock, rec
}

// ===== SLA =====

func TestSLA_WallClock(t *testing.T) {
	sla := NewSLA(time.UTC)
	cat := &categories.Category{SLAResponseHours: 4, SLAResolutionHours: 24}

	tests := []struct {
		priority enums.TicketPriority
		resp     time.Duration
		res      time.Duration
	}{
		{enums.TicketCritical, time.Hour, 6 * time.Hour},
		{enums.TicketUrgent, 2 * time.Hour, 12 * time.Hour},
		{enums.TicketHigh, 3 * time.Hour, 18 * time.Hour},
		{enums.TicketNormal, 4 * time.Hour, 24 * time.Hour},
		{enums.TicketMedium, 4 * time.Hour, 24 * time.Hour},
		{enums.TicketLow, 6 * time.Hour, 36 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(string(tt.priority), func(t *testing.T) {
			resp, res := sla.Due(fixedNow, cat, tt.priority)
			assert.Equal(t, fixedNow.Add(tt.resp), resp)
			assert.Equal(t, fixedNow.Add(tt.res), res)
		})
	}
}

func TestSLA_BusinessHours(t *testing.T) {
	sla := NewSLA(time.UTC, WithBusinessHours(8*time.Hour, 17*time.Hour, NationalDay))
	cat := &categories.Category{SLAResponseHours: 4, SLAResolutionHours: 2}

	t.Run("same day", func(t *testing.T) {
		monday := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
		resp, _ := sla.Due(monday, cat, enums.TicketNormal)
		assert.Equal(t, time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC), resp)
	})

	t.Run("rolls over the weekend", func(t *testing.T) {
		friday := time.Date(2026, 3, 6, 16, 0, 0, 0, time.UTC)
		_, res := sla.Due(friday, cat, enums.TicketNormal)
		assert.Equal(t, time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC), res)
	})

	t.Run("skips public holiday", func(t *testing.T) {
		// 2026-08-31 (Mon) は祝日
		friday := time.Date(2026, 8, 28, 16, 0, 0, 0, time.UTC)
		_, res := sla.Due(friday, cat, enums.TicketNormal)
		assert.Equal(t, time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC), res)
	})
}

// ===== Service =====

func TestCreate_FinalizesNumberAndQueuesMail(t *testing.T) {
	svc, mock, rec := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM helpdesk_categories WHERE id = \\?").WithArgs(int64(3)).WillReturnRows(catRows(true))
	mock.ExpectExec("INSERT INTO helpdesk_tickets").
		WithArgs(sqlmock.AnyArg(), "Printer jam", "Paper stuck", int64(3), enums.TicketNormal, enums.TicketOpen,
			"Aminah", "aminah@example.gov.my", nil, SourcePortal,
			fixedNow.Add(4*time.Hour), fixedNow.Add(24*time.Hour), fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectExec("UPDATE helpdesk_tickets SET ticket_number = CONCAT\\('HD'").
		WithArgs(int64(42), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM helpdesk_tickets WHERE id = \\?").WithArgs(int64(42)).WillReturnRows(ticketRows("open", nil))
	mock.ExpectCommit()

	res, err := svc.Create(context.Background(), CreateRequest{
		Subject: " Printer jam ", Description: "Paper stuck", CategoryID: 3,
		RequesterName: "Aminah", RequesterEmail: "aminah@example.gov.my",
	}, SourcePortal)
	require.NoError(t, err)
	assert.Equal(t, "HD2026000042", res.TicketNumber)
	assert.Equal(t, enums.TicketOpen, res.Status)

	require.Len(t, rec.Jobs(), 1)
	j := rec.Jobs()[0]
	assert.Equal(t, jobs.MailTicketCreated, j.Type)
	assert.Equal(t, "ticket-created:42", j.UniqueKey)
	assert.True(t, j.InTx)
	assert.Equal(t, jobs.TicketMail{TicketID: 42}, j.Payload)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_Validation(t *testing.T) {
	bad := enums.TicketPriority("whenever")
	tests := []struct {
		name  string
		in    CreateRequest
		field string
	}{
		{"blank subject", CreateRequest{Subject: "  ", Description: "d", CategoryID: 3, RequesterName: "A", RequesterEmail: "a@b.my"}, "subject"},
		{"bad email", CreateRequest{Subject: "s", Description: "d", CategoryID: 3, RequesterName: "A", RequesterEmail: "nope"}, "requester_email"},
		{"bad priority", CreateRequest{Subject: "s", Description: "d", CategoryID: 3, RequesterName: "A", RequesterEmail: "a@b.my", Priority: &bad}, "priority"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock, rec := newTestService(t)
			_, err := svc.Create(context.Background(), tt.in, SourcePortal)
			require.Error(t, err)
			var ae *apierr.Error
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, apierr.CodeInvalidArgument, ae.Code)
			assert.Contains(t, ae.Details, tt.field)
			assert.Empty(t, rec.Jobs())
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCreate_InactiveCategory(t *testing.T) {
	svc, mock, rec := newTestService(t)
	mock.ExpectBegin()
	mock.ExpectQuery("FROM helpdesk_categories WHERE id = \\?").WithArgs(int64(3)).WillReturnRows(catRows(false))
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), CreateRequest{
		Subject: "s", Description: "d", CategoryID: 3, RequesterName: "A", RequesterEmail: "a@b.my",
	}, SourceAdmin)
	assert.True(t, apierr.Is(err, apierr.CodeInvalidArgument))
	assert.Empty(t, rec.Jobs())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeStatus(t *testing.T) {
	resolved := fixedNow.Add(time.Hour)

	t.Run("reopen clears resolved_at", func(t *testing.T) {
		svc, mock, _ := newTestService(t)
		mock.ExpectBegin()
		mock.ExpectQuery("FROM helpdesk_tickets WHERE id = \\? FOR UPDATE").WithArgs(int64(42)).
			WillReturnRows(ticketRows("resolved", resolved))
		mock.ExpectExec("UPDATE helpdesk_tickets SET status = \\?, first_response_at = COALESCE\\(first_response_at, \\?\\), resolved_at = NULL WHERE id = \\? AND status = \\?").
			WithArgs(enums.TicketInProgress, fixedNow, int64(42), enums.TicketResolved).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("FROM helpdesk_tickets WHERE id = \\?").WithArgs(int64(42)).
			WillReturnRows(ticketRows("in_progress", nil))
		mock.ExpectCommit()

		res, err := svc.ChangeStatus(context.Background(), 42, enums.TicketInProgress)
		require.NoError(t, err)
		assert.Equal(t, enums.TicketInProgress, res.Status)
		assert.Nil(t, res.ResolvedAt)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("resolve stamps resolved_at", func(t *testing.T) {
		svc, mock, _ := newTestService(t)
		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").WithArgs(int64(42)).WillReturnRows(ticketRows("in_progress", nil))
		mock.ExpectExec("SET status = \\?, first_response_at = COALESCE\\(first_response_at, \\?\\), resolved_at = \\? WHERE").
			WithArgs(enums.TicketResolved, fixedNow, fixedNow, int64(42), enums.TicketInProgress).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("FROM helpdesk_tickets WHERE id = \\?").WithArgs(int64(42)).
			WillReturnRows(ticketRows("resolved", fixedNow))
		mock.ExpectCommit()

		_, err := svc.ChangeStatus(context.Background(), 42, enums.TicketResolved)
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("in_progress to closed is invalid", func(t *testing.T) {
		svc, mock, _ := newTestService(t)
		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").WithArgs(int64(42)).WillReturnRows(ticketRows("in_progress", nil))
		mock.ExpectRollback()

		_, err := svc.ChangeStatus(context.Background(), 42, enums.TicketClosed)
		assert.True(t, apierr.Is(err, apierr.CodeInvalidTransition))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAssign_ClosedTicketConflicts(t *testing.T) {
	svc, mock, _ := newTestService(t)
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(int64(42)).WillReturnRows(ticketRows("closed", fixedNow))
	mock.ExpectRollback()

	_, err := svc.Assign(context.Background(), 42, "tech01")
	assert.True(t, apierr.Is(err, apierr.CodeConflict))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTrack_EmailMismatch(t *testing.T) {
	svc, mock, _ := newTestService(t)
	mock.ExpectQuery("FROM helpdesk_tickets WHERE ticket_number = \\?").WithArgs("HD2026000042").
		WillReturnRows(ticketRows("open", nil))

	_, err := svc.Track(context.Background(), "HD2026000042", "someone@else.my")
	assert.True(t, apierr.Is(err, apierr.CodeNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildWhere(t *testing.T) {
	st := enums.TicketOpen
	cat := int64(3)
	email := "a@b.my"
	where, args := buildWhere(ListFilter{Status: &st, CategoryID: &cat, RequesterEmail: &email})
	assert.Equal(t, " WHERE 1=1 AND status = ? AND category_id = ? AND requester_email = ?", where)
	assert.Equal(t, []any{st, cat, email}, args)
}

// ===== Handler =====

func TestHandler_PortalCreateMissingFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _, _ := newTestService(t)
	r := gin.New()
	RegisterPortalRoutes(r, svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tickets", bytes.NewBufferString(`{"subject":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_ListRejectsBadStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _, _ := newTestService(t)
	r := gin.New()
	RegisterAdminRoutes(r, svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/helpdesk/tickets?status=lost", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
