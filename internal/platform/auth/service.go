package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"ICTSERVE-backend/internal/platform/apierr"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
	RoleUser  = "user"
)

var (
	ErrAlreadyExists = errors.New("already exists")
	ErrNotFound      = errors.New("not found")
	ErrAuthFailed    = errors.New("authentication failed")
)

type Service struct {
	store  AccountStore
	tokens TokenStore
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewService(db *sql.DB, secret []byte, ttl time.Duration) *Service {
	st := NewStore(db)
	return &Service{store: st, tokens: st, secret: secret, ttl: ttl, now: time.Now}
}

type AuthService interface {
	Login(ctx context.Context, id, password string) (string, error)
	Register(ctx context.Context, in RegisterRequest) error
	Disable(ctx context.Context, id string) error
	List(ctx context.Context) ([]AccountResponse, error)
	IssueAPIToken(ctx context.Context, name string) (string, error)
}

func (s *Service) Login(ctx context.Context, id, password string) (string, error) {
	acct, err := s.store.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if acct == nil || acct.IsDisabled {
		return "", ErrAuthFailed
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return "", ErrAuthFailed
	}

	claims := jwt.MapClaims{
		"sub":  acct.ID,
		"role": acct.Role,
		"exp":  s.now().Add(s.ttl).Unix(),
		"iat":  s.now().Unix(),
	}
	if acct.DisplayName.Valid {
		claims["name"] = acct.DisplayName.String
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func validRole(r string) bool {
	return r == RoleAdmin || r == RoleStaff || r == RoleUser
}

func (s *Service) Register(ctx context.Context, in RegisterRequest) error {
	role := RoleUser
	if in.Role != nil && *in.Role != "" {
		role = *in.Role
	}
	if !validRole(role) {
		return apierr.Invalid("role must be admin, staff or user")
	}
	if len(in.Password) < 8 {
		return apierr.Invalid("password must be at least 8 characters")
	}

	exists, err := s.store.GetByID(ctx, in.ID)
	if err != nil {
		return err
	}
	if exists != nil {
		return ErrAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	a := &Account{ID: in.ID, PasswordHash: string(hash), Role: role}
	if in.DisplayName != "" {
		a.DisplayName = sql.NullString{String: in.DisplayName, Valid: true}
	}
	if in.Email != "" {
		a.Email = sql.NullString{String: strings.ToLower(in.Email), Valid: true}
	}
	if err := s.store.Create(ctx, a); err != nil {
		if apierr.IsDuplicateKey(err) {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *Service) Disable(ctx context.Context, id string) error {
	n, err := s.store.SetDisabled(ctx, id, true)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) List(ctx context.Context) ([]AccountResponse, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]AccountResponse, 0, len(list))
	for _, a := range list {
		out = append(out, AccountResponse{
			ID:          a.ID,
			Role:        a.Role,
			DisplayName: a.DisplayName.String,
			Email:       a.Email.String,
			IsDisabled:  a.IsDisabled,
			CreatedAt:   a.CreatedAt,
		})
	}
	return out, nil
}

// IssueAPIToken は生トークンを一度だけ返す（DB には sha256 のみ保存）
func (s *Service) IssueAPIToken(ctx context.Context, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", apierr.Invalid("name is required")
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	raw := "ict_" + hex.EncodeToString(buf)
	if err := s.tokens.CreateAPIToken(ctx, name, raw); err != nil {
		return "", err
	}
	return raw, nil
}
