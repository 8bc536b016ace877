package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/msomdec/postwall/internal/domain"
)

type contextKey string

const identityContextKey contextKey = "identity"

// Verifier recovers the caller's identity from a raw credential.
type Verifier interface {
	Verify(credential string) (domain.Identity, error)
}

// Limiter decides whether a caller may perform one more operation.
type Limiter interface {
	Allow(key string) bool
}

// IdentityFromContext extracts the authenticated caller from the request context.
// The second result is false if the request was not authenticated.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(domain.Identity)
	return id, ok && id.UserID != ""
}

// RequireAuth is middleware that protects routes requiring authentication.
// It reads the credential from the given request header, verifies it and
// injects the caller's identity into the request context. Requests without a
// valid credential get 401 and never reach next.
func RequireAuth(verifier Verifier, header string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := verifier.Verify(r.Header.Get(header))
		if err != nil {
			slog.DebugContext(r.Context(), "authentication failed", "path", r.URL.Path, "error", err)
			writeServiceError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RateLimit is middleware that rejects callers who exceed the limiter's budget
// with 429. It keys on the authenticated user and falls back to the remote
// address. A nil limiter disables limiting.
func RateLimit(limiter Limiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if identity, ok := IdentityFromContext(r.Context()); ok {
			key = "user:" + string(identity.UserID)
		}

		if !limiter.Allow(key) {
			writeServiceError(w, r, domain.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SecurityHeaders sets conservative response headers on every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
