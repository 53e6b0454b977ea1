package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func echoSubject() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, ok := UserIDFromContext(r.Context())
		if !ok {
			uid = "anonymous"
		}
		_, _ = w.Write([]byte(uid))
	})
}

func TestRequireAuth(t *testing.T) {
	ts := newTestTokenService(t)
	token, _ := ts.Issue(Subject{UserID: "u1", Kind: "account"})

	tests := []struct {
		name     string
		setup    func(r *http.Request)
		wantCode int
		wantBody string
	}{
		{"no token", func(r *http.Request) {}, http.StatusUnauthorized, ""},
		{"cookie", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: CookieName, Value: token})
		}, http.StatusOK, "u1"},
		{"bearer header", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+token)
		}, http.StatusOK, "u1"},
		{"query param", func(r *http.Request) {
			q := r.URL.Query()
			q.Set("token", token)
			r.URL.RawQuery = q.Encode()
		}, http.StatusOK, "u1"},
		{"bad token", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: CookieName, Value: "nope"})
		}, http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()

			RequireAuth(ts)(echoSubject()).ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestOptionalAuth_PassesAnonymous(t *testing.T) {
	ts := newTestTokenService(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	OptionalAuth(ts)(echoSubject()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "anonymous" {
		t.Errorf("got %d %q, want 200 anonymous", rec.Code, rec.Body.String())
	}
}
