package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/akwaba/rentpay/internal"
	"github.com/akwaba/rentpay/internal/transport"
)

type Middleware struct {
	*transport.BaseHandler
	Validator TokenValidator
}

func NewMiddleware(validator TokenValidator, logger *slog.Logger) *Middleware {
	return &Middleware{
		BaseHandler: transport.NewBaseHandler(logger),
		Validator:   validator,
	}
}

// RequireUser resolves the calling principal from the bearer token and stores
// it in the request context. Requests without a valid token are rejected.
func (m *Middleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := m.ExtractTokenFromHeader(r)
		if token == "" {
			m.Logger.Error("auth middleware: missing authorization token")
			m.HandleError(w, internal.ErrInvalidToken)
			return
		}

		claims, err := m.Validator.ValidateAccessToken(token)
		if err != nil {
			m.Logger.Error("token validation failed", "error", err)
			if errors.Is(err, ErrTokenExpired) {
				m.HandleError(w, internal.ErrTokenExpired)
			} else {
				m.HandleError(w, internal.ErrInvalidToken)
			}
			return
		}

		var uid int64
		if claims.UserID != "" {
			if parsed, perr := strconv.ParseInt(claims.UserID, 10, 64); perr == nil {
				uid = parsed
			} else {
				m.Logger.Warn("failed to parse user id from token claims", "value", claims.UserID, "error", perr)
			}
		}

		if uid == 0 {
			m.Logger.Error("auth middleware: token carries no usable user id")
			m.HandleError(w, internal.ErrInvalidToken)
			return
		}

		user := &internal.User{
			ID:    uid,
			Email: claims.Email,
			Role:  claims.Role,
		}

		ctx := internal.ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
