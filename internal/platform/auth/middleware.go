package auth

import (
	"errors"
	"strings"

	"ICTSERVE-backend/internal/platform/apierr"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	CtxUserIDKey   = "user_id"
	CtxRoleKey     = "role"
	CtxUserNameKey = "user_name"
	CtxAPITokenKey = "api_token"

	APITokenHeader = "X-API-Token"
)

type Principal struct {
	Sub  string
	Role string
	Name string
}

// ParseToken は HS256 の JWT を検証して sub/role/name を取り出す
func ParseToken(secret []byte, tokenStr string) (Principal, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		// alg 固定（none攻撃とか回避）
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || token == nil || !token.Valid {
		return Principal{}, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, errors.New("invalid claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Principal{}, errors.New("missing sub")
	}
	role, _ := claims["role"].(string)
	name, _ := claims["name"].(string)
	return Principal{Sub: sub, Role: role, Name: name}, nil
}

func bearer(c *gin.Context) (string, error) {
	h := c.GetHeader("Authorization")
	if h == "" {
		return "", errors.New("missing Authorization header")
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid Authorization header")
	}
	tok := strings.TrimSpace(parts[1])
	if tok == "" {
		return "", errors.New("empty token")
	}
	return tok, nil
}

func setPrincipal(c *gin.Context, p Principal) {
	c.Set(CtxUserIDKey, p.Sub)
	c.Set(CtxRoleKey, p.Role)
	name := p.Name
	if name == "" {
		name = p.Sub
	}
	c.Set(CtxUserNameKey, name)
}

// RequireAuth: Authorization: Bearer <token> を検証して context に sub/role を詰める
func RequireAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, err := bearer(c)
		if err != nil {
			apierr.Respond(c, apierr.Unauthorized(err.Error()))
			return
		}
		p, err := ParseToken(secret, tok)
		if err != nil {
			apierr.Respond(c, apierr.Unauthorized(err.Error()))
			return
		}
		setPrincipal(c, p)
		c.Next()
	}
}

// RequireAPIAuth: X-API-Token（連携システム）または Bearer JWT のどちらかで認証
func RequireAPIAuth(secret []byte, tokens TokenStore) gin.HandlerFunc {
	jwtAuth := RequireAuth(secret)
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(APITokenHeader))
		if raw == "" {
			jwtAuth(c)
			return
		}
		name, err := tokens.LookupAPIToken(c.Request.Context(), raw)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if name == "" {
			apierr.Respond(c, apierr.Unauthorized("invalid api token"))
			return
		}
		c.Set(CtxAPITokenKey, name)
		c.Set(CtxUserIDKey, "api:"+name)
		c.Set(CtxUserNameKey, name)
		c.Set(CtxRoleKey, RoleStaff)
		c.Next()
	}
}

// RequireRole: 例) admin のみ許可したい時に追加
func RequireRole(roles ...string) gin.HandlerFunc {
	roleSet := make(map[string]struct{})
	for _, r := range roles {
		if r == "" {
			continue
		}
		roleSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role := c.GetString(CtxRoleKey)
		if role == "" {
			apierr.Respond(c, apierr.Forbidden("missing role"))
			return
		}
		if _, allowed := roleSet[role]; !allowed {
			apierr.Respond(c, apierr.Forbidden("forbidden"))
			return
		}
		c.Next()
	}
}

// OptionalAuth: トークンがあれば検証して詰める。ゲスト申請用（無効なトークンは無視）。
func OptionalAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tok, err := bearer(c); err == nil {
			if p, err := ParseToken(secret, tok); err == nil {
				setPrincipal(c, p)
			}
		}
		c.Next()
	}
}
