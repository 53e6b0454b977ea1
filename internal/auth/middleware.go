package auth

import (
	"context"
	"net/http"
	"strings"
)

// CookieName is the HttpOnly cookie that carries the session JWT.
const CookieName = "token"

// contextKey is unexported so no other package can read or overwrite the
// values this package puts in a request context.
type contextKey string

const subjectKey contextKey = "subject"

// RequireAuth rejects requests without a valid token with 401 and stores
// the token's Subject in the context for the rest.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sub, err := SubjectFromRequest(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error":"unauthorized","message":"valid authentication required"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), sub)))
		})
	}
}

// OptionalAuth attaches the Subject when a valid token is present and lets
// anonymous requests through untouched.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sub, err := SubjectFromRequest(r, tokens); err == nil {
				r = r.WithContext(WithSubject(r.Context(), sub))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithSubject returns a context carrying sub. Exported for handler tests.
func WithSubject(ctx context.Context, sub *Subject) context.Context {
	return context.WithValue(ctx, subjectKey, sub)
}

// SubjectFromContext returns the authenticated Subject, or (nil, false) for
// anonymous requests.
func SubjectFromContext(ctx context.Context) (*Subject, bool) {
	sub, ok := ctx.Value(subjectKey).(*Subject)
	return sub, ok && sub != nil && sub.UserID != ""
}

// UserIDFromContext is SubjectFromContext for callers that only need the id.
func UserIDFromContext(ctx context.Context) (string, bool) {
	sub, ok := SubjectFromContext(ctx)
	if !ok {
		return "", false
	}
	return sub.UserID, true
}

// SubjectFromRequest finds a token in, in order: the "token" cookie, an
// "Authorization: Bearer" header, or a "token" query parameter (browsers
// cannot set headers on a WebSocket handshake).
func SubjectFromRequest(r *http.Request, tokens *TokenService) (*Subject, error) {
	return tokens.Parse(tokenFromRequest(r))
}

func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}
