package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/unnita1235/ConnectNow-sub000/internal/domain"
)

type contextKey string

const identityKey contextKey = "identity"

// Validator turns a bearer credential into an identity.
type Validator interface {
	Validate(ctx context.Context, credential string) (*domain.Identity, error)
}

func Auth(v Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, `{"error":{"code":"UNAUTHENTICATED","message":"Missing or invalid token"}}`, http.StatusUnauthorized)
				return
			}

			id, err := v.Validate(r.Context(), strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				if !errors.Is(err, domain.ErrUnauthenticated) {
					log.Error().Err(err).Msg("auth middleware: validate failed")
				}
				http.Error(w, `{"error":{"code":"UNAUTHENTICATED","message":"Invalid or expired token"}}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, *id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentity extracts the caller identity stored by Auth.
func GetIdentity(ctx context.Context) domain.Identity {
	return ctx.Value(identityKey).(domain.Identity)
}

// GetUserID extracts user ID from request context
func GetUserID(ctx context.Context) uuid.UUID {
	return GetIdentity(ctx).UserID
}

// WithIdentity returns a context carrying id, as Auth would store it.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}
