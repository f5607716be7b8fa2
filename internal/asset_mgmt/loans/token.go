package loans

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidApprovalToken = errors.New("invalid approval token")

// ApprovalClaims はメール承認リンクに載せる JWT の中身
type ApprovalClaims struct {
	ApplicationNumber string
	JTI               string
	ExpiresAt         time.Time
}

// TokenSigner はメール承認トークン（HS256）の発行と検証を行う
type TokenSigner struct {
	secret []byte
	now    func() time.Time
}

func NewTokenSigner(secret []byte) *TokenSigner {
	return &TokenSigner{secret: secret, now: time.Now}
}

func (s *TokenSigner) Sign(applicationNumber, jti string, exp time.Time) (string, error) {
	claims := jwt.MapClaims{
		"application_number": applicationNumber,
		"jti":                jti,
		"exp":                exp.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify は署名・有効期限を確認して claims を返す。jti と DB の突き合わせは呼び出し側。
func (s *TokenSigner) Verify(tokenStr string) (ApprovalClaims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || token == nil || !token.Valid {
		return ApprovalClaims{}, ErrInvalidApprovalToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ApprovalClaims{}, ErrInvalidApprovalToken
	}
	num, _ := claims["application_number"].(string)
	jti, _ := claims["jti"].(string)
	if num == "" || jti == "" {
		return ApprovalClaims{}, ErrInvalidApprovalToken
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return ApprovalClaims{}, ErrInvalidApprovalToken
	}
	return ApprovalClaims{ApplicationNumber: num, JTI: jti, ExpiresAt: exp.Time}, nil
}
