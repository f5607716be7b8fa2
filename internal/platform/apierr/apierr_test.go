package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	mysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", Invalid("x"), http.StatusBadRequest},
		{"not found", NotFound("x"), http.StatusNotFound},
		{"conflict", Conflict("x"), http.StatusConflict},
		{"transition", Transition(errors.New("draft -> approved")), http.StatusConflict},
		{"unauthorized", Unauthorized("x"), http.StatusUnauthorized},
		{"forbidden", Forbidden("x"), http.StatusForbidden},
		{"rate limited", RateLimited("x"), http.StatusTooManyRequests},
		{"internal", Internal("x"), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("ctx: %w", NotFound("x")), http.StatusNotFound},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestFromMySQL(t *testing.T) {
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	fk := &mysql.MySQLError{Number: 1452, Message: "fk"}
	other := &mysql.MySQLError{Number: 1205, Message: "lock wait"}

	assert.True(t, Is(FromMySQL(dup, "dup", "fk"), CodeConflict))
	assert.True(t, Is(FromMySQL(fk, "dup", "fk"), CodeInvalidArgument))
	assert.Equal(t, error(other), FromMySQL(other, "dup", "fk"))
	assert.True(t, IsDuplicateKey(fmt.Errorf("insert: %w", dup)))

	var me *mysql.MySQLError
	assert.True(t, errors.As(FromMySQL(dup, "dup", "fk"), &me))
}

func TestRespond_Body(t *testing.T) {
	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		Respond(c, Invalid("reason is required").WithDetail("reason", "required"))
	})
	r.GET("/boom", func(c *gin.Context) {
		Respond(c, errors.New("dial tcp: secret host"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_ARGUMENT", body["error"]["code"])
	assert.Equal(t, "reason is required", body["error"]["message"])
	assert.Equal(t, map[string]any{"reason": "required"}, body["error"]["details"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "secret host")
}

func TestFrom_UnwrapsWrappedError(t *testing.T) {
	inner := Invalid("bad date").WithDetail("loan_end_date", "must be YYYY-MM-DD")
	b := From(fmt.Errorf("submit: %w", inner))
	assert.Equal(t, CodeInvalidArgument, b.Error.Code)
	assert.Equal(t, "bad date", b.Error.Message)
	assert.Equal(t, map[string]string{"loan_end_date": "must be YYYY-MM-DD"}, b.Error.Details)

	// Transition の cause を辿っても外側の Error が採用される
	b = From(Transition(errors.New("draft -> approved")))
	assert.Equal(t, CodeInvalidTransition, b.Error.Code)

	b = From(errors.New("boom"))
	assert.Equal(t, CodeInternal, b.Error.Code)
	assert.Empty(t, b.Error.Details)
}
