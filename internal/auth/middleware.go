package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/sertdev/msgproxy/internal/store"
	"github.com/sertdev/msgproxy/internal/translate"
)

type contextKey int

const (
	ctxKeyID contextKey = iota
	ctxKeyRecord
)

// KeyIDFromContext returns the authenticated key ID, or uuid.Nil.
func KeyIDFromContext(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(ctxKeyID).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// KeyFromContext returns the authenticated key record, or nil.
func KeyFromContext(ctx context.Context) *store.APIKey {
	if k, ok := ctx.Value(ctxKeyRecord).(*store.APIKey); ok {
		return k
	}
	return nil
}

// Middleware authenticates requests via x-api-key or a bearer token and
// injects the key record into the request context. Errors use the Anthropic
// wire shape since every guarded route speaks that protocol.
func Middleware(a *Authenticator, tracker *LastUsedTracker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			plaintext := ClientKey(r)
			if plaintext == "" {
				writeError(w, http.StatusUnauthorized, "authentication_error", "missing API key")
				return
			}

			record, err := a.Authenticate(r.Context(), plaintext)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "api_error", "internal server error")
				return
			}
			if record == nil {
				writeError(w, http.StatusUnauthorized, "authentication_error", "invalid API key")
				return
			}
			if !record.IsActive {
				writeError(w, http.StatusForbidden, "permission_error", "API key is deactivated")
				return
			}

			if tracker != nil {
				tracker.Touch(record.ID)
			}

			ctx := context.WithValue(r.Context(), ctxKeyID, record.ID)
			ctx = context.WithValue(ctx, ctxKeyRecord, record)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientKey extracts the API key from x-api-key or Authorization: Bearer.
func ClientKey(r *http.Request) string {
	if key := r.Header.Get("x-api-key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(translate.EncodeAnthropicError(errType, message))
}
