package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	apperrors "tradelink/pkg/errors"
	"tradelink/pkg/response"
)

// TokenVerifier turns a bearer token into a user id. The Firebase auth
// client implements it in production.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
	timeout  time.Duration
}

func NewAuthMiddleware(verifier TokenVerifier, timeout time.Duration) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, timeout: timeout}
}

func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return response.Error(c, apperrors.NewUnauthorized("Authorization header is required", nil))
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return response.Error(c, apperrors.NewUnauthorized("Invalid authorization format", nil))
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), m.timeout)
		defer cancel()

		uid, err := m.verifier.VerifyToken(ctx, parts[1])
		if err != nil {
			return response.Error(c, apperrors.NewUnauthorized("Invalid or expired token", err))
		}

		c.Set("uid", uid)
		return next(c)
	}
}

// VerifyWithTimeout is the query-token path used by the websocket
// handshake, bounded by the same timeout as the header path.
func (m *AuthMiddleware) VerifyWithTimeout(ctx context.Context, token string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.verifier.VerifyToken(ctx, token)
}
