package auth

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testSecret = []byte("test-secret")

type memStore struct {
	accounts map[string]*Account
	tokens   map[string]string
}

func newMemStore() *memStore {
	return &memStore{accounts: map[string]*Account{}, tokens: map[string]string{}}
}

func (m *memStore) GetByID(_ context.Context, id string) (*Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) Create(_ context.Context, a *Account) error {
	m.accounts[a.ID] = a
	return nil
}

func (m *memStore) SetDisabled(_ context.Context, id string, disabled bool) (int64, error) {
	a, ok := m.accounts[id]
	if !ok {
		return 0, nil
	}
	a.IsDisabled = disabled
	return 1, nil
}

func (m *memStore) List(context.Context) ([]Account, error) {
	out := []Account{}
	for _, a := range m.accounts {
		out = append(out, *a)
	}
	return out, nil
}

func (m *memStore) LookupAPIToken(_ context.Context, raw string) (string, error) {
	return m.tokens[hashToken(raw)], nil
}

func (m *memStore) CreateAPIToken(_ context.Context, name, raw string) error {
	m.tokens[hashToken(raw)] = name
	return nil
}

func newTestService(st *memStore) *Service {
	return &Service{store: st, tokens: st, secret: testSecret, ttl: time.Hour, now: time.Now}
}

func TestService_RegisterAndLogin(t *testing.T) {
	st := newMemStore()
	svc := newTestService(st)
	ctx := context.Background()

	staff := RoleStaff
	require.NoError(t, svc.Register(ctx, RegisterRequest{
		ID: "aisyah", Password: "s3cretpass", Role: &staff, DisplayName: "Aisyah Rahman",
	}))
	assert.ErrorIs(t, svc.Register(ctx, RegisterRequest{ID: "aisyah", Password: "s3cretpass"}), ErrAlreadyExists)

	bogus := "root"
	assert.Error(t, svc.Register(ctx, RegisterRequest{ID: "x", Password: "s3cretpass", Role: &bogus}))
	assert.Error(t, svc.Register(ctx, RegisterRequest{ID: "y", Password: "short"}))

	tok, err := svc.Login(ctx, "aisyah", "s3cretpass")
	require.NoError(t, err)
	p, err := ParseToken(testSecret, tok)
	require.NoError(t, err)
	assert.Equal(t, Principal{Sub: "aisyah", Role: RoleStaff, Name: "Aisyah Rahman"}, p)

	_, err = svc.Login(ctx, "aisyah", "wrong")
	assert.ErrorIs(t, err, ErrAuthFailed)

	require.NoError(t, svc.Disable(ctx, "aisyah"))
	_, err = svc.Login(ctx, "aisyah", "s3cretpass")
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.ErrorIs(t, svc.Disable(ctx, "nobody"), ErrNotFound)
}

func TestParseToken_RejectsOtherAlgAndExpired(t *testing.T) {
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u", "role": "admin", "exp": time.Now().Add(-time.Minute).Unix(),
	})
	s, err := expired.SignedString(testSecret)
	require.NoError(t, err)
	_, err = ParseToken(testSecret, s)
	assert.Error(t, err)

	hs512 := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"sub": "u"})
	s, err = hs512.SignedString(testSecret)
	require.NoError(t, err)
	_, err = ParseToken(testSecret, s)
	assert.Error(t, err)
}

func signed(t *testing.T, sub, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub, "role": role, "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)
	return s
}

func TestRequireAuthAndRole(t *testing.T) {
	r := gin.New()
	r.GET("/admin", RequireAuth(testSecret), RequireRole(RoleAdmin, RoleStaff), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(CtxUserIDKey))
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer abc", http.StatusUnauthorized},
		{"user role", "Bearer " + signed(t, "u1", RoleUser), http.StatusForbidden},
		{"staff", "Bearer " + signed(t, "s1", RoleStaff), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequireAPIAuth(t *testing.T) {
	st := newMemStore()
	svc := newTestService(st)
	raw, err := svc.IssueAPIToken(context.Background(), "asset-scanner")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/v1", RequireAPIAuth(testSecret, st), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(CtxUserIDKey))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1", nil)
	req.Header.Set(APITokenHeader, raw)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "api:asset-scanner", w.Body.String())

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1", nil)
	req.Header.Set(APITokenHeader, "ict_wrong")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1", nil)
	req.Header.Set("Authorization", "Bearer "+signed(t, "s1", RoleStaff))
	r.ServeHTTP(w, req)
	assert.Equal(t, "s1", w.Body.String())
}

func TestAccountPasswordIsHashed(t *testing.T) {
	st := newMemStore()
	svc := newTestService(st)
	require.NoError(t, svc.Register(context.Background(), RegisterRequest{ID: "u", Password: "password1", Email: "U@Example.com"}))
	a := st.accounts["u"]
	assert.NotEqual(t, "password1", a.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte("password1")))
	assert.Equal(t, sql.NullString{String: "u@example.com", Valid: true}, a.Email)
}
