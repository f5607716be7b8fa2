package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"
)

type Account struct {
	ID           string
	PasswordHash string
	Role         string
	DisplayName  sql.NullString
	Email        sql.NullString
	IsDisabled   bool
	CreatedAt    time.Time
}

type AccountStore interface {
	GetByID(ctx context.Context, id string) (*Account, error)
	Create(ctx context.Context, a *Account) error
	SetDisabled(ctx context.Context, id string, disabled bool) (int64, error)
	List(ctx context.Context) ([]Account, error)
}

type TokenStore interface {
	// LookupAPIToken は有効なトークンの名前を返す。無ければ ""。
	LookupAPIToken(ctx context.Context, raw string) (string, error)
	CreateAPIToken(ctx context.Context, name, raw string) error
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) GetByID(ctx context.Context, id string) (*Account, error) {
	const q = `
SELECT id, password_hash, role, display_name, email, is_disabled, created_at
FROM auth_accounts
WHERE id = ?
LIMIT 1
`
	var a Account
	var isDisabledInt int
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&a.ID,
		&a.PasswordHash,
		&a.Role,
		&a.DisplayName,
		&a.Email,
		&isDisabledInt,
		&a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.IsDisabled = isDisabledInt != 0
	return &a, nil
}

func (s *Store) Create(ctx context.Context, a *Account) error {
	const q = `
INSERT INTO auth_accounts (id, password_hash, role, display_name, email, is_disabled, created_at)
VALUES (?, ?, ?, ?, ?, 0, NOW(6))
`
	_, err := s.db.ExecContext(ctx, q, a.ID, a.PasswordHash, a.Role, a.DisplayName, a.Email)
	return err
}

// アカウントは削除せず無効化する（承認履歴などから参照されるため）
func (s *Store) SetDisabled(ctx context.Context, id string, disabled bool) (int64, error) {
	const q = `UPDATE auth_accounts SET is_disabled = ? WHERE id = ?`
	v := 0
	if disabled {
		v = 1
	}
	res, err := s.db.ExecContext(ctx, q, v, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) List(ctx context.Context) ([]Account, error) {
	const q = `
SELECT id, '', role, display_name, email, is_disabled, created_at
FROM auth_accounts
ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []Account{}
	for rows.Next() {
		var a Account
		var dis int
		if err := rows.Scan(&a.ID, &a.PasswordHash, &a.Role, &a.DisplayName, &a.Email, &dis, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.IsDisabled = dis != 0
		list = append(list, a)
	}
	return list, rows.Err()
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func (s *Store) LookupAPIToken(ctx context.Context, raw string) (string, error) {
	const q = `SELECT name FROM api_tokens WHERE token_hash = ? AND revoked_at IS NULL`
	var name string
	err := s.db.QueryRowContext(ctx, q, hashToken(raw)).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	// 最終利用日時の更新は失敗しても認証結果に影響させない
	_, _ = s.db.ExecContext(ctx, `UPDATE api_tokens SET last_used_at = NOW(6) WHERE token_hash = ?`, hashToken(raw))
	return name, nil
}

func (s *Store) CreateAPIToken(ctx context.Context, name, raw string) error {
	const q = `INSERT INTO api_tokens (name, token_hash, created_at) VALUES (?, ?, NOW(6))`
	_, err := s.db.ExecContext(ctx, q, name, hashToken(raw))
	return err
}
