package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/rakshak/internal/apperror"
	"github.com/sakif/rakshak/internal/auth"
	"github.com/sakif/rakshak/internal/handler"
	"github.com/sakif/rakshak/internal/model"
	"github.com/sakif/rakshak/internal/service"
)

func sessionCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	return nil
}

func TestAuthHandler_HandleLogin(t *testing.T) {
	logger := testLogger()

	t.Run("success sets the session cookie", func(t *testing.T) {
		gw := &MockGateway{LoginRes: &service.AuthResult{
			Identity:        &model.Identity{UID: "u1", Email: "a@b.co", Kind: model.KindAccount},
			Token:           "jwt-token",
			Message:         "Login successful",
			Redirect:        service.RedirectDashboard,
			RedirectAfterMs: 1000,
		}}
		h := handler.NewAuthHandler(gw, nil, handler.AuthOptions{CookieTTL: time.Hour}, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
			bytes.NewBufferString(`{"email":"a@b.co","password":"secret1"}`))
		rr := httptest.NewRecorder()
		h.HandleLogin(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "a@b.co", gw.CapturedEmail)

		c := sessionCookie(rr)
		require.NotNil(t, c)
		assert.Equal(t, "jwt-token", c.Value)
		assert.True(t, c.HttpOnly)
		assert.Equal(t, 3600, c.MaxAge)

		var body map[string]any
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		assert.Equal(t, "/dashboard", body["redirect"])
		assert.NotContains(t, body, "Token", "the token only travels in the cookie")
	})

	t.Run("unknown email offers a guest session", func(t *testing.T) {
		gw := &MockGateway{
			LoginErr: apperror.NotFoundMessage("No account found with this email."),
			Guest:    true,
		}
		h := handler.NewAuthHandler(gw, nil, handler.AuthOptions{}, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
			bytes.NewBufferString(`{"email":"new@b.co","password":"secret1"}`))
		rr := httptest.NewRecorder()
		h.HandleLogin(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
		var body handler.LoginErrorResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		assert.True(t, body.GuestAvailable)
		assert.Equal(t, "No account found with this email.", body.Message)
		assert.Nil(t, sessionCookie(rr))
	})

	t.Run("unknown email without guests", func(t *testing.T) {
		gw := &MockGateway{LoginErr: apperror.NotFoundMessage("No account found with this email.")}
		h := handler.NewAuthHandler(gw, nil, handler.AuthOptions{}, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
			bytes.NewBufferString(`{"email":"new@b.co","password":"secret1"}`))
		rr := httptest.NewRecorder()
		h.HandleLogin(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.NotContains(t, rr.Body.String(), "guestAvailable")
	})

	t.Run("error mapping", func(t *testing.T) {
		tests := []struct {
			name       string
			err        error
			wantStatus int
			wantType   string
		}{
			{"wrong password", apperror.Unauthorized("Incorrect password."), http.StatusUnauthorized, "unauthorized"},
			{"too many attempts", apperror.RateLimited("Too many attempts."), http.StatusTooManyRequests, "rate_limited"},
			{"provider down", apperror.Unavailable("Network error."), http.StatusServiceUnavailable, "unavailable"},
			{"bad email", apperror.ValidationFailed("email", "Invalid email."), http.StatusBadRequest, "validation_error"},
			{"unexpected", assert.AnError, http.StatusInternalServerError, "internal_error"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				h := handler.NewAuthHandler(&MockGateway{LoginErr: tt.err}, nil, handler.AuthOptions{}, logger)

				req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
					bytes.NewBufferString(`{"email":"a@b.co","password":"x"}`))
				rr := httptest.NewRecorder()
				h.HandleLogin(rr, req)

				assert.Equal(t, tt.wantStatus, rr.Code)
				var body handler.ErrorResponse
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
				assert.Equal(t, tt.wantType, body.Error)
			})
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		h := handler.NewAuthHandler(&MockGateway{}, nil, handler.AuthOptions{}, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{"email":`))
		rr := httptest.NewRecorder()
		h.HandleLogin(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestAuthHandler_HandleRegister(t *testing.T) {
	gw := &MockGateway{LoginRes: &service.AuthResult{
		Identity: &model.Identity{UID: "u2", Kind: model.KindAccount},
		Token:    "t2",
	}}
	h := handler.NewAuthHandler(gw, nil, handler.AuthOptions{}, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBufferString(
		`{"name":"Asha","email":"asha@b.co","password":"secret1","confirmPassword":"secret1","acceptTerms":true}`))
	rr := httptest.NewRecorder()
	h.HandleRegister(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Asha", gw.CapturedRegister.Name)
	assert.Equal(t, "secret1", gw.CapturedRegister.ConfirmPassword)
	require.NotNil(t, sessionCookie(rr))
}

func TestAuthHandler_HandleLogout(t *testing.T) {
	gw := &MockGateway{}
	h := handler.NewAuthHandler(gw, nil, handler.AuthOptions{}, testLogger())

	t.Run("signed in", func(t *testing.T) {
		req := withUser(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil), "u1", model.KindAccount)
		rr := httptest.NewRecorder()
		h.HandleLogout(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "u1", gw.LogoutUID)
		c := sessionCookie(rr)
		require.NotNil(t, c)
		assert.Less(t, c.MaxAge, 0)
	})

	t.Run("anonymous", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
		rr := httptest.NewRecorder()
		h.HandleLogout(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, gw.LogoutUID)
	})
}

func TestAuthHandler_HandleMe(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		h := handler.NewAuthHandler(&MockGateway{}, nil, handler.AuthOptions{}, testLogger())
		rr := httptest.NewRecorder()
		h.HandleMe(rr, httptest.NewRequest(http.MethodGet, "/api/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("account gone clears the cookie", func(t *testing.T) {
		gw := &MockGateway{CurrentErr: apperror.NotFound("user", "u1")}
		h := handler.NewAuthHandler(gw, nil, handler.AuthOptions{}, testLogger())

		rr := httptest.NewRecorder()
		h.HandleMe(rr, withUser(httptest.NewRequest(http.MethodGet, "/api/me", nil), "u1", model.KindAccount))

		assert.Equal(t, http.StatusNotFound, rr.Code)
		c := sessionCookie(rr)
		require.NotNil(t, c)
		assert.Empty(t, c.Value)
	})

	t.Run("signed in", func(t *testing.T) {
		gw := &MockGateway{CurrentID: &model.Identity{UID: "u1", Email: "u1@example.com", Kind: model.KindGuest}}
		h := handler.NewAuthHandler(gw, nil, handler.AuthOptions{}, testLogger())

		rr := httptest.NewRecorder()
		h.HandleMe(rr, withUser(httptest.NewRequest(http.MethodGet, "/api/me", nil), "u1", model.KindGuest))

		assert.Equal(t, http.StatusOK, rr.Code)
		var id model.Identity
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&id))
		assert.Equal(t, model.KindGuest, id.Kind)
	})
}

func TestAuthHandler_Options(t *testing.T) {
	h := handler.NewAuthHandler(&MockGateway{Guest: true}, nil, handler.AuthOptions{}, testLogger())
	assert.Equal(t, handler.SignInOptions{Guest: true}, h.Options())

	rr := httptest.NewRecorder()
	h.HandleGitHubLogin(rr, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))
	assert.Equal(t, http.StatusForbidden, rr.Code, "GitHub routes refuse when not configured")
}

type mockGitHub struct {
	user *auth.GitHubUser
	err  error
}

func (m *mockGitHub) AuthURL(state string) string {
	return "https://github.com/login/oauth/authorize?state=" + state
}

func (m *mockGitHub) Exchange(ctx context.Context, code string) (*auth.GitHubUser, error) {
	return m.user, m.err
}

func TestAuthHandler_GitHubFlow(t *testing.T) {
	gw := &MockGateway{LoginRes: &service.AuthResult{Token: "gh-token", Redirect: service.RedirectDashboard}}
	h := handler.NewAuthHandler(gw, &mockGitHub{user: &auth.GitHubUser{ID: 42, Login: "asha"}}, handler.AuthOptions{}, testLogger())

	rr := httptest.NewRecorder()
	h.HandleGitHubLogin(rr, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))
	require.Equal(t, http.StatusTemporaryRedirect, rr.Code)

	var state *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.StateCookieName {
			state = c
		}
	}
	require.NotNil(t, state)
	assert.Contains(t, rr.Header().Get("Location"), "state="+state.Value)

	t.Run("state mismatch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?code=c&state=other", nil)
		req.AddCookie(state)
		rr := httptest.NewRecorder()
		h.HandleGitHubCallback(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("denied", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?error=access_denied&state="+state.Value, nil)
		req.AddCookie(state)
		rr := httptest.NewRecorder()
		h.HandleGitHubCallback(rr, req)
		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "/login?auth=denied", rr.Header().Get("Location"))
	})

	t.Run("success", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?code=c&state="+state.Value, nil)
		req.AddCookie(state)
		rr := httptest.NewRecorder()
		h.HandleGitHubCallback(rr, req)

		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "/dashboard", rr.Header().Get("Location"))
		c := sessionCookie(rr)
		require.NotNil(t, c)
		assert.Equal(t, "gh-token", c.Value)
	})
}
