package exports

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ICTSERVE-backend/internal/asset_mgmt/loans"
	"ICTSERVE-backend/internal/enums"
	"ICTSERVE-backend/internal/jobs"
	"ICTSERVE-backend/internal/platform/apierr"
	"ICTSERVE-backend/internal/platform/ids"
	"ICTSERVE-backend/internal/platform/queue"
	"ICTSERVE-backend/internal/platform/queue/queuetest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

var bom = []byte{0xEF, 0xBB, 0xBF}

var (
	exportCols = []string{"id", "export_ulid", "format", "status", "filters", "file_path", "row_count", "error",
		"requested_by", "created_at", "completed_at"}
	appCols = []string{"id", "application_number", "status", "priority", "applicant_name", "applicant_email", "applicant_phone",
		"staff_id", "grade", "division", "purpose", "location", "loan_start_date", "loan_end_date", "approver_email",
		"approved_at", "approved_by_name", "approval_method", "approval_remarks", "rejected_reason",
		"info_request_note", "approval_token", "approval_token_expires_at", "maintenance_required",
		"total_value", "user_id", "created_at", "updated_at", "deleted_at"}
)

func sampleApps() []loans.Application {
	return []loans.Application{{
		ApplicationNumber: "LA2026030007",
		Status:            enums.LoanOverdue,
		Priority:          enums.LoanPriorityNormal,
		ApplicantName:     "Aminah binti Ali",
		ApplicantEmail:    "aminah@example.gov.my",
		ApplicantPhone:    "0123456789",
		Purpose:           "Training, day 1",
		Location:          "Putrajaya",
		LoanStartDate:     time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
		LoanEndDate:       time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		TotalValue:        4200,
		CreatedAt:         fixedNow,
	}}
}

func TestWriteCSV_WithBOM(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleApps(), time.UTC))

	raw := buf.Bytes()
	require.True(t, bytes.HasPrefix(raw, bom))

	records, err := csv.NewReader(bytes.NewReader(raw[len(bom):])).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, header, records[0])
	assert.Equal(t, "LA2026030007", records[1][0])
	assert.Equal(t, "Training, day 1", records[1][7])
	assert.Equal(t, "4200.00", records[1][13])
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleApps(), time.UTC))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Application Number", rows[0][0])
	assert.Equal(t, "LA2026030007", rows[1][0])
	assert.Equal(t, "2026-03-10", rows[1][10])
}

func newTestService(t *testing.T, dir string) (*Service, sqlmock.Sqlmock, *queuetest.Recorder) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	rec := &queuetest.Recorder{}
	svc := NewService(sqlDB, rec, dir).
		WithClock(ids.FixedClock{T: fixedNow}).
		WithIDGen(&ids.SeqGen{Prefix: "EXP"}).
		WithLogger(log.New(io.Discard, "", 0))
	return svc, mock, rec
}

func TestRequest(t *testing.T) {
	t.Run("queues the export job", func(t *testing.T) {
		svc, mock, rec := newTestService(t, t.TempDir())
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO exports").
			WithArgs(sqlmock.AnyArg(), FormatCSV, StatusPending, `{"status":"overdue"}`, "admin01", fixedNow).
			WillReturnResult(sqlmock.NewResult(3, 1))
		mock.ExpectCommit()

		res, err := svc.Request(context.Background(), CreateRequest{Format: "CSV", Filters: Filters{Status: "overdue"}}, "admin01")
		require.NoError(t, err)
		assert.Equal(t, StatusPending, res.Status)
		assert.Empty(t, res.DownloadURL)

		require.Len(t, rec.Jobs(), 1)
		assert.Equal(t, jobs.ExportLoanSubmissions, rec.Jobs()[0].Type)
		assert.Equal(t, jobs.Export{ExportID: 3}, rec.Jobs()[0].Payload)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects unknown format", func(t *testing.T) {
		svc, _, rec := newTestService(t, t.TempDir())
		_, err := svc.Request(context.Background(), CreateRequest{Format: "pdf"}, "")
		assert.True(t, apierr.Is(err, apierr.CodeInvalidArgument))
		assert.Empty(t, rec.Jobs())
	})

	t.Run("rejects inverted date range", func(t *testing.T) {
		svc, _, _ := newTestService(t, t.TempDir())
		_, err := svc.Request(context.Background(), CreateRequest{
			Format: "xlsx", Filters: Filters{StartFrom: "2026-03-10", StartTo: "2026-03-01"},
		}, "")
		assert.True(t, apierr.Is(err, apierr.CodeInvalidArgument))
	})
}

func TestHandle_WritesFileAndCompletes(t *testing.T) {
	dir := t.TempDir()
	svc, mock, _ := newTestService(t, dir)

	mock.ExpectQuery("FROM exports WHERE id = \\?").WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(exportCols).AddRow(int64(3), "01EXPORT", "csv", "pending",
			`{"status":"overdue"}`, nil, 0, nil, "admin01", fixedNow, nil))
	mock.ExpectQuery("FROM loan_applications WHERE deleted_at IS NULL AND status = \\?").
		WithArgs(enums.LoanOverdue).
		WillReturnRows(sqlmock.NewRows(appCols).AddRow(
			int64(7), "LA2026030007", "overdue", "normal", "Aminah", "aminah@example.gov.my", "0123456789",
			nil, nil, "ICT", "Training", "Putrajaya", fixedNow, fixedNow.AddDate(0, 0, 5), nil,
			nil, nil, nil, nil, nil,
			nil, nil, nil, false,
			4200.0, nil, fixedNow, fixedNow, nil))
	want := filepath.Join(dir, "loan-submissions-01EXPORT.csv")
	mock.ExpectExec("UPDATE exports SET status = \\?, file_path = \\?").
		WithArgs(StatusCompleted, want, 1, fixedNow, int64(3), StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.Handle(context.Background(), &queue.Job{Type: jobs.ExportLoanSubmissions, Payload: []byte(`{"export_id":3}`), Attempts: 1, MaxAttempts: 2})
	require.NoError(t, err)

	raw, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, bom))
	assert.Contains(t, string(raw), "LA2026030007")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandle_MissingExportSucceeds(t *testing.T) {
	svc, mock, _ := newTestService(t, t.TempDir())
	mock.ExpectQuery("FROM exports WHERE id = \\?").WillReturnRows(sqlmock.NewRows(exportCols))

	require.NoError(t, svc.Handle(context.Background(), &queue.Job{Payload: []byte(`{"export_id":9}`)}))
}

func TestFile_PendingIsConflict(t *testing.T) {
	svc, mock, _ := newTestService(t, t.TempDir())
	mock.ExpectQuery("FROM exports WHERE export_ulid = \\?").WithArgs("01EXPORT").
		WillReturnRows(sqlmock.NewRows(exportCols).AddRow(int64(3), "01EXPORT", "xlsx", "pending",
			nil, nil, 0, nil, nil, fixedNow, nil))

	_, _, err := svc.File(context.Background(), "01EXPORT")
	assert.True(t, apierr.Is(err, apierr.CodeConflict))
}
