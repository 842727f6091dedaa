package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const UsernameKey contextKey = "username"

// ErrMissingToken is reported when a request carries no token at all.
var ErrMissingToken = errors.New("missing authentication token")

// TokenValidator resolves a token to the username of a registered chat
// account. It fails for bad signatures, expired tokens and accounts the
// store no longer knows.
type TokenValidator interface {
	ValidateToken(ctx context.Context, tokenString string) (string, error)
}

type AuthMiddleware struct {
	validator TokenValidator
	logger    *slog.Logger
}

func NewAuthMiddleware(v TokenValidator, logger *slog.Logger) *AuthMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthMiddleware{validator: v, logger: logger}
}

// Handle admits requests whose token belongs to a registered account and
// puts that username into the request context.
func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, err := am.authenticate(r)
		if err != nil {
			am.logger.Info("admin request rejected",
				"request_id", chimw.GetReqID(r.Context()), "path", r.URL.Path, "error", err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UsernameKey, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (am *AuthMiddleware) authenticate(r *http.Request) (string, error) {
	tokenString := bearerToken(r.Header.Get("Authorization"))
	if tokenString == "" {
		tokenString = r.URL.Query().Get("token")
	}
	if tokenString == "" {
		return "", ErrMissingToken
	}
	return am.validator.ValidateToken(r.Context(), tokenString)
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Username returns the authenticated username placed by Handle.
func Username(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(UsernameKey).(string)
	return username, ok
}
