package ratelimit

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/sertdev/msgproxy/internal/auth"
	"github.com/sertdev/msgproxy/internal/translate"
)

// Middleware enforces the limiter per authenticated key, falling back to the
// remote address for unauthenticated requests. Rejections use the Anthropic
// error shape. onLimited, if non-nil, is called once per rejected request.
func Middleware(l *Limiter, onLimited func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if id := auth.KeyIDFromContext(r.Context()); id != uuid.Nil {
				key = id.String()
			}

			if !l.Allow(key) {
				if onLimited != nil {
					onLimited()
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write(translate.EncodeAnthropicError("rate_limit_error", "rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
