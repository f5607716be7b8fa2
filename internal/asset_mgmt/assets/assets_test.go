package assets

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ICTSERVE-backend/internal/enums"
	"ICTSERVE-backend/internal/platform/apierr"
	"ICTSERVE-backend/internal/platform/paging"

	"github.com/DATA-DOG/go-sqlmock"
	mysql "github.com/go-sql-driver/mysql"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var assetCols = []string{
	"asset_id", "asset_tag", "name", "category", "brand", "model", "serial_number", "specification",
	"location", "status", "asset_condition", "current_value", "maintenance_tickets_count",
	"last_maintenance_date", "next_maintenance_date", "retired_reason", "notes", "created_at", "updated_at",
}

var created = time.Date(2026, 1, 15, 3, 0, 0, 0, time.UTC)

func assetRow(id int64, tag string, status, cond string) *sqlmock.Rows {
	return sqlmock.NewRows(assetCols).AddRow(
		id, tag, "ThinkPad T14", "laptop", "Lenovo", "T14 Gen 4", "SN-001", nil,
		"Level 3", status, cond, 4200.0, 0, nil, nil, nil, nil, created, created,
	)
}

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return NewService(sqlDB), mock
}

func TestCreate_FinalizesTag(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO assets").
		WithArgs(sqlmock.AnyArg(), "ThinkPad T14", "laptop", nil, nil, nil, nil, nil,
			enums.AssetAvailable, enums.ConditionGood, 4200.0, "2026-06-30", nil).
		WillReturnResult(sqlmock.NewResult(12, 1))
	mock.ExpectExec("UPDATE assets\\s+SET asset_tag = CONCAT\\('AST-'").
		WithArgs(int64(12), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT .* FROM assets WHERE asset_id = \\?").
		WithArgs(int64(12)).
		WillReturnRows(assetRow(12, "AST-2026-00012", "available", "good"))

	next := "2026-06-30"
	res, err := svc.Create(context.Background(), CreateAssetRequest{
		Name: "ThinkPad T14", Category: "laptop", CurrentValue: 4200, NextMaintenanceDate: &next,
	})
	require.NoError(t, err)
	assert.Equal(t, "AST-2026-00012", res.AssetTag)
	assert.Equal(t, enums.AssetAvailable, res.Status)
	assert.Equal(t, "ThinkPad T14", res.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DuplicateSerial(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO assets").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectRollback()

	sn := "SN-001"
	_, err := svc.Create(context.Background(), CreateAssetRequest{Name: "x", Category: "laptop", SerialNumber: &sn})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.CodeConflict))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_Validation(t *testing.T) {
	svc, mock := newTestService(t)
	bad := "2026/06/30"

	cases := []struct {
		name string
		in   CreateAssetRequest
	}{
		{"missing name", CreateAssetRequest{Category: "laptop"}},
		{"negative value", CreateAssetRequest{Name: "x", Category: "laptop", CurrentValue: -1}},
		{"bad date", CreateAssetRequest{Name: "x", Category: "laptop", NextMaintenanceDate: &bad}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.in)
			assert.True(t, apierr.Is(err, apierr.CodeInvalidArgument))
		})
	}
	// 何も書き込まれない
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_NotFound(t *testing.T) {
	svc, mock := newTestService(t)
	mock.ExpectQuery("SELECT .* FROM assets WHERE asset_id").
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := svc.Get(context.Background(), 99)
	assert.True(t, apierr.Is(err, apierr.CodeNotFound))
}

func TestRetire(t *testing.T) {
	t.Run("refused while loaned", func(t *testing.T) {
		svc, mock := newTestService(t)
		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").WithArgs(int64(5)).
			WillReturnRows(assetRow(5, "AST-2026-00005", "loaned", "good"))
		mock.ExpectRollback()

		_, err := svc.Retire(context.Background(), 5, "obsolete")
		assert.True(t, apierr.Is(err, apierr.CodeConflict))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reason required", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Retire(context.Background(), 5, "  ")
		assert.True(t, apierr.Is(err, apierr.CodeInvalidArgument))
	})

	t.Run("ok", func(t *testing.T) {
		svc, mock := newTestService(t)
		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").WithArgs(int64(5)).
			WillReturnRows(assetRow(5, "AST-2026-00005", "available", "fair"))
		mock.ExpectExec("UPDATE assets SET status = \\?, retired_reason = \\?").
			WithArgs(enums.AssetRetired, "obsolete", int64(5)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
		mock.ExpectQuery("SELECT .* FROM assets WHERE asset_id").WithArgs(int64(5)).
			WillReturnRows(assetRow(5, "AST-2026-00005", "retired", "fair"))

		res, err := svc.Retire(context.Background(), 5, "obsolete")
		require.NoError(t, err)
		assert.Equal(t, enums.AssetRetired, res.Status)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpdate_RejectsLoanedStatus(t *testing.T) {
	svc, mock := newTestService(t)
	st := enums.AssetLoaned
	_, err := svc.Update(context.Background(), 1, UpdateAssetRequest{Status: &st})
	assert.True(t, apierr.Is(err, apierr.CodeInvalidArgument))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildWhere(t *testing.T) {
	st := enums.AssetAvailable
	q := "50%"
	where, args := buildWhere(AssetSearchQuery{Status: &st, Q: &q})
	assert.Equal(t, " WHERE 1=1 AND status = ? AND (name LIKE ? OR asset_tag LIKE ?)", where)
	assert.Equal(t, []any{st, `%50\%%`, `%50\%%`}, args)
}

func TestHandler_ListAndCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, mock := newTestService(t)
	r := gin.New()
	RegisterRoutes(r, svc)

	t.Run("list available", func(t *testing.T) {
		mock.ExpectQuery("SELECT .* FROM assets WHERE 1=1 AND status = \\?").
			WithArgs(enums.AssetAvailable, paging.DefaultLimit, 0).
			WillReturnRows(assetRow(1, "AST-2026-00001", "available", "good"))
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM assets").
			WithArgs(enums.AssetAvailable).
			WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/assets/available", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Items []AssetResponse `json:"items"`
			Total int64           `json:"total"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, int64(1), body.Total)
		require.Len(t, body.Items, 1)
		assert.Equal(t, "AST-2026-00001", body.Items[0].AssetTag)
	})

	t.Run("invalid status filter", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/assets?status=broken", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("create missing fields", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/assets", bytes.NewBufferString(`{"name":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "INVALID_ARGUMENT")
	})

	require.NoError(t, mock.ExpectationsWereMet())
}
