package app

import (
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ICTSERVE-backend/internal/platform/auth"
	"ICTSERVE-backend/internal/platform/config"
	"ICTSERVE-backend/internal/platform/mailer"
	"ICTSERVE-backend/internal/platform/ratelimit"
	"ICTSERVE-backend/internal/scheduler"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

const testConfig = `
mode: dev
jwt:
  secret: test-secret
scheduler:
  timezone: UTC
rate_limit:
  status_per_minute: 1
`

func newTestApp(t *testing.T) (*App, sqlmock.Sqlmock) {
	t.Helper()
	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	a, err := New(cfg, sqlDB,
		WithLogger(log.New(io.Discard, "", 0)),
		WithLimiter(ratelimit.NewMemoryLimiter()),
		WithMailer(&mailer.Recorder{}),
	)
	require.NoError(t, err)
	return a, mock
}

func bearerFor(t *testing.T, sub, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub, "role": role, "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return "Bearer " + s
}

func do(r http.Handler, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthzAndRequestID(t *testing.T) {
	a, _ := newTestApp(t)
	r := a.Router()

	w := do(r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)

	w = do(r, http.MethodGet, "/healthz", map[string]string{RequestIDHeader: "req-123"})
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
}

func TestAdminRequiresStaffRole(t *testing.T) {
	a, _ := newTestApp(t)
	r := a.Router()

	w := do(r, http.MethodGet, "/api/v2/admin/helpdesk/tickets", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodGet, "/api/v2/admin/helpdesk/tickets",
		map[string]string{"Authorization": bearerFor(t, "guest01", auth.RoleUser)})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "FORBIDDEN")

	// アカウント管理は admin のみ
	w = do(r, http.MethodGet, "/api/v2/admin/accounts",
		map[string]string{"Authorization": bearerFor(t, "staff01", auth.RoleStaff)})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAPIv1RequiresAuth(t *testing.T) {
	a, _ := newTestApp(t)
	w := do(a.Router(), http.MethodGet, "/api/v1/integrations?helpdesk_ticket_id=1", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPortalStatusTierIsRateLimited(t *testing.T) {
	a, _ := newTestApp(t)
	r := a.Router()

	// email 無しは DB に触らず 400
	w := do(r, http.MethodGet, "/api/v2/portal/tickets/HD2026000001", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = do(r, http.MethodGet, "/api/v2/portal/tickets/HD2026000001", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
}

func TestDocsAndNoRoute(t *testing.T) {
	a, _ := newTestApp(t)
	r := a.Router()

	w := do(r, http.MethodGet, "/openapi.yaml", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "openapi: 3.0.3"))

	w = do(r, http.MethodGet, "/api/v2/nothing-here", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}

func TestScheduler_RegistersBuiltinJobs(t *testing.T) {
	a, _ := newTestApp(t)
	s, err := a.Scheduler()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		scheduler.JobMarkOverdue, scheduler.JobReturnDueReminder, scheduler.JobQueueHousekeeping,
	}, s.Names())
}

func TestNewSLA(t *testing.T) {
	d, err := clock("08:30")
	require.NoError(t, err)
	assert.Equal(t, 8*time.Hour+30*time.Minute, d)

	cfg, err := config.Parse([]byte(testConfig + "sla:\n  business_hours: true\n  work_start: \"18:00\"\n"))
	require.NoError(t, err)
	_, err = newSLA(cfg)
	assert.Error(t, err, "end before start")

	cfg.SLA.WorkStart = "8am"
	_, err = newSLA(cfg)
	assert.Error(t, err)

	cfg.SLA.WorkStart = "08:00"
	s, err := newSLA(cfg)
	require.NoError(t, err)
	assert.NotNil(t, s)
}
