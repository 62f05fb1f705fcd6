package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/gigmarket/internal/httpx"
)

// Claims carried by tokens issued by the identity provider. Older tokens put
// the user id under "id" instead of "user_id".
type Claims struct {
	UserID   string `json:"user_id"`
	LegacyID string `json:"id,omitempty"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Identity returns the user id, preferring user_id, then id, then sub.
func (c Claims) Identity() string {
	switch {
	case c.UserID != "":
		return c.UserID
	case c.LegacyID != "":
		return c.LegacyID
	}
	return c.RegisteredClaims.Subject
}

// ParseToken verifies an HMAC-signed token and returns its claims.
func ParseToken(tokenStr string, secret []byte) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return Claims{}, err
	}
	if !token.Valid || claims.Identity() == "" {
		return Claims{}, errors.New("invalid token claims")
	}
	return claims, nil
}

// tokenFrom reads a bearer token from the Authorization header, falling back
// to the token query parameter used by browser websocket clients.
func tokenFrom(c echo.Context) string {
	if h := c.Request().Header.Get(echo.HeaderAuthorization); h != "" {
		if after, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(after)
		}
		return ""
	}
	return c.QueryParam("token")
}

// JWTMiddleware authenticates requests and stores user_id and role in the context.
func JWTMiddleware(secret string) echo.MiddlewareFunc {
	key := []byte(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := tokenFrom(c)
			if raw == "" {
				return httpx.FailStatus(c, http.StatusUnauthorized, httpx.ErrCodeUnauthorized, "missing token")
			}
			claims, err := ParseToken(raw, key)
			if err != nil {
				return httpx.FailStatus(c, http.StatusUnauthorized, httpx.ErrCodeUnauthorized, "invalid token")
			}
			c.Set(httpx.KeyUserID, claims.Identity())
			c.Set(httpx.KeyRole, claims.Role)
			return next(c)
		}
	}
}
