package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/rakshak/internal/apperror"
	"github.com/sakif/rakshak/internal/auth"
	"github.com/sakif/rakshak/internal/model"
	"github.com/sakif/rakshak/internal/service"
)

// AuthGateway is the part of service.AuthService the HTTP layer drives.
// Handler tests substitute a fake.
type AuthGateway interface {
	Login(ctx context.Context, email, password string) (*service.AuthResult, error)
	LoginGitHub(ctx context.Context, gh *auth.GitHubUser) (*service.AuthResult, error)
	Register(ctx context.Context, in service.RegisterInput) (*service.AuthResult, error)
	CreateGuest(ctx context.Context, email string) (*service.AuthResult, error)
	LoginDemo(ctx context.Context) (*service.AuthResult, error)
	Logout(ctx context.Context, uid string) (*service.LogoutResult, error)
	Current(ctx context.Context, uid string) (*model.Identity, error)
	GuestAllowed() bool
	DemoAllowed() bool
}

// GitHubOAuth runs the GitHub authorization code flow. *auth.GitHubProvider
// satisfies it.
type GitHubOAuth interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

// AuthHandler serves sign-in, sign-up, sign-out and the current identity.
//
// HANDLER RESPONSIBILITIES:
//   - HandleLogin / HandleRegister → email + password
//   - HandleGuest / HandleDemo     → identities with no provider account
//   - HandleGitHubLogin / Callback → "Sign in with GitHub"
//   - HandleLogout                 → clear the session cookie
//   - HandleMe                     → who is signed in
//
// Every successful sign-in stores the JWT from service.AuthResult in an
// HttpOnly cookie and returns the rest of the result as JSON. The browser
// follows "redirect" after "redirectAfterMs"; the server never waits.
type AuthHandler struct {
	gateway   AuthGateway
	github    GitHubOAuth // nil when GitHub sign-in is not configured
	cookieTTL time.Duration
	secure    bool
	logger    *slog.Logger
}

// AuthOptions configure the session cookie.
type AuthOptions struct {
	CookieTTL    time.Duration // usually the token TTL
	SecureCookie bool          // set behind HTTPS
}

func NewAuthHandler(gateway AuthGateway, github GitHubOAuth, opts AuthOptions, logger *slog.Logger) *AuthHandler {
	if opts.CookieTTL <= 0 {
		opts.CookieTTL = auth.DefaultTokenTTL
	}
	return &AuthHandler{
		gateway:   gateway,
		github:    github,
		cookieTTL: opts.CookieTTL,
		secure:    opts.SecureCookie,
		logger:    logger,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginErrorResponse is a failed login. GuestAvailable is set when the email
// has no account and guest sessions are enabled, so the page can offer
// "continue as guest" with the same email.
type LoginErrorResponse struct {
	ErrorResponse
	GuestAvailable bool `json:"guestAvailable"`
}

// HandleLogin signs in with email and password.
//
// HTTP: POST /api/auth/login
// REQUEST BODY: {"email": "a@b.co", "password": "secret"}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.gateway.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if service.IsUserNotFound(err) && h.gateway.GuestAllowed() {
			status, errorType := statusOf(err)
			writeJSON(w, status, LoginErrorResponse{
				ErrorResponse:  ErrorResponse{Error: errorType, Message: messageOf(err)},
				GuestAvailable: true,
			})
			return
		}
		writeError(w, err)
		return
	}

	h.signedIn(w, res)
}

// HandleRegister creates an account and signs it in.
//
// HTTP: POST /api/auth/register
// REQUEST BODY: {"name", "email", "password", "confirmPassword", "acceptTerms"}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.gateway.Register(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	h.signedIn(w, res)
}

// HandleGuest starts a guest session for an email that has no account.
//
// HTTP: POST /api/auth/guest
// REQUEST BODY: {"email": "a@b.co"}
func (h *AuthHandler) HandleGuest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.gateway.CreateGuest(r.Context(), req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	h.signedIn(w, res)
}

// HandleDemo starts a demo session.
//
// HTTP: POST /api/auth/demo
func (h *AuthHandler) HandleDemo(w http.ResponseWriter, r *http.Request) {
	res, err := h.gateway.LoginDemo(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	h.signedIn(w, res)
}

// HandleLogout signs the caller out and deletes the session cookie.
//
// HTTP: POST /api/auth/logout
//
// Logout always succeeds from the browser's point of view: an anonymous
// caller gets the same response, and the cookie is cleared either way.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	res, err := h.gateway.Logout(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}

	h.clearSession(w)
	writeJSON(w, http.StatusOK, res)
}

// HandleMe returns the signed-in identity.
//
// HTTP: GET /api/me
// Auth: Required
//
// When the account behind the session is gone the cookie is cleared and
// the 404 body tells the browser to go to the login page.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	id, err := h.gateway.Current(r.Context(), uid)
	if err != nil {
		if service.IsUserNotFound(err) {
			h.clearSession(w)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

// SignInOptions tells the login page which sign-in methods are offered.
type SignInOptions struct {
	Guest  bool `json:"guest"`
	Demo   bool `json:"demo"`
	GitHub bool `json:"github"`
}

// HandleOptions reports the enabled sign-in methods.
//
// HTTP: GET /api/auth/options
func (h *AuthHandler) HandleOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Options())
}

// Options is what HandleOptions reports. The login page template uses it too.
func (h *AuthHandler) Options() SignInOptions {
	return SignInOptions{
		Guest:  h.gateway.GuestAllowed(),
		Demo:   h.gateway.DemoAllowed(),
		GitHub: h.github != nil,
	}
}

// HandleGitHubLogin redirects the browser to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state value goes into a short-lived HttpOnly cookie and into the
// authorization URL. The callback only proceeds when both match.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeError(w, apperror.Forbidden("GitHub sign-in is not enabled."))
		return
	}

	state := auth.NewState()
	http.SetCookie(w, &http.Cookie{
		Name:     auth.StateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the GitHub flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Check the state parameter against the state cookie
//  2. Exchange the code for the GitHub profile
//  3. Sign the profile in through the Auth Gateway
//  4. Set the session cookie and redirect to the dashboard
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeError(w, apperror.Forbidden("GitHub sign-in is not enabled."))
		return
	}

	stateCookie, err := r.Cookie(auth.StateCookieName)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("github callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// single use
	http.SetCookie(w, &http.Cookie{
		Name:   auth.StateCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("github callback: authorization denied", slog.String("error", errParam))
		http.Redirect(w, r, service.RedirectLogin+"?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	gh, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("github callback: exchange failed", slog.String("error", err.Error()))
		http.Redirect(w, r, service.RedirectLogin+"?auth=failed", http.StatusSeeOther)
		return
	}

	res, err := h.gateway.LoginGitHub(r.Context(), gh)
	if err != nil {
		h.logger.Error("github callback: sign-in failed",
			slog.Int64("githubID", gh.ID),
			slog.String("error", err.Error()),
		)
		http.Redirect(w, r, service.RedirectLogin+"?auth=failed", http.StatusSeeOther)
		return
	}

	h.setSession(w, res.Token)
	http.Redirect(w, r, res.Redirect, http.StatusSeeOther)
}

func (h *AuthHandler) signedIn(w http.ResponseWriter, res *service.AuthResult) {
	h.setSession(w, res.Token)
	writeJSON(w, http.StatusOK, res)
}

// setSession stores the JWT in an HttpOnly cookie. JavaScript cannot read
// it, and SameSite=Lax keeps it off cross-site POSTs.
func (h *AuthHandler) setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
