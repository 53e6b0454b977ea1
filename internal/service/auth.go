package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/xid"

	"github.com/sakif/rakshak/internal/apperror"
	"github.com/sakif/rakshak/internal/auth"
	"github.com/sakif/rakshak/internal/identity"
	"github.com/sakif/rakshak/internal/metrics"
	"github.com/sakif/rakshak/internal/model"
	"github.com/sakif/rakshak/internal/repository"
)

// DemoEmail is the address every demo identity signs in with.
const DemoEmail = "demo@rakshak.com"

// Where the browser goes after an auth transition, and how long it waits.
const (
	RedirectDashboard = "/dashboard"
	RedirectHome      = "/"
	RedirectLogin     = "/login"

	loginRedirectDelay    = 1500
	registerRedirectDelay = 2000
	logoutRedirectDelay   = 1000
)

// AuthState is the per-uid session state.
type AuthState string

const (
	StateAnonymous     AuthState = "anonymous"
	StateAuthenticated AuthState = "authenticated"
)

// AuthChange is delivered to OnAuthChange handlers on every transition.
// Identity is nil for StateAnonymous.
type AuthChange struct {
	UserID   string          `json:"uid"`
	State    AuthState       `json:"state"`
	Identity *model.Identity `json:"user,omitempty"`
}

// AuthOptions gate the identities that have no provider account.
type AuthOptions struct {
	AllowGuest bool
	AllowDemo  bool
}

// AuthResult is what a successful sign-in returns. The handler puts Token
// in the session cookie and sends the rest to the browser.
type AuthResult struct {
	Identity        *model.Identity `json:"user"`
	Token           string          `json:"-"`
	Message         string          `json:"message"`
	Redirect        string          `json:"redirect"`
	RedirectAfterMs int             `json:"redirectAfterMs"`
}

// LogoutResult tells the browser where to go after signing out.
type LogoutResult struct {
	Message         string `json:"message"`
	Redirect        string `json:"redirect"`
	RedirectAfterMs int    `json:"redirectAfterMs"`
}

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	AcceptTerms     bool   `json:"acceptTerms"`
}

// AuthService is the Auth Gateway.
//
// STATE MACHINE (per uid):
//
//	anonymous     → login | guest | demo | github  → authenticated
//	authenticated → logout | provider has no user  → anonymous
//
// Every transition mirrors (or clears) the identity in the SessionCache and
// is announced to OnAuthChange subscribers.
//
// Guest identities exist only after a login reported "user-not-found", and
// only when AllowGuest is set. No other login failure falls back to a guest.
type AuthService struct {
	provider identity.Provider
	tokens   *auth.TokenService
	session  *SessionCache
	profiles *ProfileService
	docs     repository.DocumentStore
	metrics  *metrics.Metrics
	opts     AuthOptions
	logger   *slog.Logger
	now      clock

	mu        sync.RWMutex
	listeners map[uint64]func(AuthChange)
	nextID    uint64
}

func NewAuthService(
	provider identity.Provider,
	tokens *auth.TokenService,
	session *SessionCache,
	profiles *ProfileService,
	docs repository.DocumentStore,
	m *metrics.Metrics,
	opts AuthOptions,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		provider:  provider,
		tokens:    tokens,
		session:   session,
		profiles:  profiles,
		docs:      docs,
		metrics:   m,
		opts:      opts,
		logger:    logger,
		listeners: make(map[uint64]func(AuthChange)),
	}
}

// GuestAllowed reports whether CreateGuest is enabled.
func (s *AuthService) GuestAllowed() bool { return s.opts.AllowGuest }

// DemoAllowed reports whether LoginDemo is enabled.
func (s *AuthService) DemoAllowed() bool { return s.opts.AllowDemo }

// Login signs in with email and password.
//
// A "user-not-found" failure comes back as an apperror.ErrNotFound error;
// callers may then offer CreateGuest. Other failures carry the provider's
// mapped message and never create a session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperror.ValidationFailed("email", "Please enter both email and password")
	}

	// Address format is the provider's call; it answers invalid-email.
	user, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		s.metrics.AuthAttempt(outcome(err))
		s.logger.Info("login failed",
			slog.String("email", email),
			slog.String("code", string(identity.CodeOf(err))),
		)
		return nil, loginError(err)
	}
	s.metrics.AuthAttempt("success")

	id := s.identityFromUser(user)
	s.recordLogin(ctx, id)
	return s.establish(ctx, id, "Login successful! Redirecting...", loginRedirectDelay)
}

// LoginGitHub finishes "Sign in with GitHub" for a profile returned by the
// OAuth exchange.
func (s *AuthService) LoginGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	user, err := s.provider.SignInGitHub(ctx, gh)
	if err != nil {
		s.metrics.AuthAttempt(outcome(err))
		return nil, loginError(err)
	}
	s.metrics.AuthAttempt("success")

	s.logger.Info("user authenticated via GitHub",
		slog.String("uid", user.UID),
		slog.String("login", gh.Login),
	)

	id := s.identityFromUser(user)
	s.recordLogin(ctx, id)
	return s.establish(ctx, id, "Login successful! Redirecting...", loginRedirectDelay)
}

// Register creates an account. All form checks run before the provider is
// called. Writes to users/{uid} and the profile are best effort.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)

	if err := validateRegistration(in); err != nil {
		return nil, err
	}

	user, err := s.provider.SignUp(ctx, in.Email, in.Password)
	if err != nil {
		s.logger.Info("registration failed",
			slog.String("email", in.Email),
			slog.String("code", string(identity.CodeOf(err))),
		)
		return nil, registerError(err)
	}

	if err := s.provider.UpdateDisplayName(ctx, user.UID, in.Name); err != nil {
		s.logger.Warn("setting display name failed", slog.String("uid", user.UID), slog.String("error", err.Error()))
	} else {
		user.DisplayName = in.Name
	}

	now := s.now.now()
	userDoc := repository.Document{
		"email":     user.Email,
		"name":      in.Name,
		"createdAt": now,
		"lastLogin": now,
		"isActive":  true,
	}
	if err := s.docs.MergeDocument(ctx, model.CollectionUsers, user.UID, userDoc); err != nil {
		s.remoteWriteFailed(model.CollectionUsers, user.UID, err)
	}
	if _, err := s.profiles.Upsert(ctx, user.UID, user.Email, map[string]any{"name": in.Name}); err != nil {
		s.remoteWriteFailed(model.CollectionProfiles, user.UID, err)
	}

	id := s.identityFromUser(user)
	return s.establish(ctx, id, "Account created successfully! Logging you in...", registerRedirectDelay)
}

func validateRegistration(in RegisterInput) error {
	switch {
	case in.Name == "" || in.Email == "" || in.Password == "" || in.ConfirmPassword == "":
		return apperror.ValidationFailed("", "Please fill all fields")
	case !identity.ValidEmail(in.Email):
		return apperror.ValidationFailed("email", "Please enter a valid email")
	case utf8.RuneCountInString(in.Password) < auth.MinPasswordLength:
		return apperror.ValidationFailed("password", "Password must be at least 6 characters")
	case in.Password != in.ConfirmPassword:
		return apperror.ValidationFailed("confirmPassword", "Passwords do not match")
	case !in.AcceptTerms:
		return apperror.ValidationFailed("acceptTerms", "Please accept the terms and conditions")
	}
	return nil
}

// CreateGuest starts a local-only session under email. Guests have no
// provider account and are never written to the shared document store;
// an email that already has an account is refused with a conflict.
func (s *AuthService) CreateGuest(ctx context.Context, email string) (*AuthResult, error) {
	if !s.opts.AllowGuest {
		return nil, apperror.Forbidden("Guest access is disabled.")
	}
	email = identity.NormalizeEmail(email)
	if !identity.ValidEmail(email) {
		return nil, apperror.ValidationFailed("email", "Please enter a valid email address")
	}

	// Guests are only for emails the provider has never seen.
	_, err := s.provider.LookupEmail(ctx, email)
	switch {
	case err == nil:
		return nil, apperror.ConflictMessage("An account exists for this email. Please log in with your password.")
	case identity.CodeOf(err) != identity.CodeUserNotFound:
		return nil, loginError(err)
	}

	now := s.now.now()
	id := &model.Identity{
		UID:         "guest-" + xid.New().String(),
		Email:       email,
		DisplayName: model.DefaultDisplayName(email),
		Kind:        model.KindGuest,
		LastLogin:   now,
		CreatedAt:   now,
	}
	s.metrics.AuthAttempt("guest")
	return s.establish(ctx, id, "Guest account created! Redirecting to dashboard...", loginRedirectDelay)
}

// LoginDemo starts a demo session. Disabled unless AllowDemo is set.
func (s *AuthService) LoginDemo(ctx context.Context) (*AuthResult, error) {
	if !s.opts.AllowDemo {
		return nil, apperror.Forbidden("Demo login is disabled.")
	}

	now := s.now.now()
	id := &model.Identity{
		UID:         fmt.Sprintf("demo-%d", now.UnixMilli()),
		Email:       DemoEmail,
		DisplayName: model.DefaultDisplayName(DemoEmail),
		Kind:        model.KindDemo,
		IsDemo:      true,
		LastLogin:   now,
		CreatedAt:   now,
	}
	s.metrics.AuthAttempt("demo")
	return s.establish(ctx, id, "Demo account created! Redirecting to dashboard...", loginRedirectDelay)
}

// Logout signs uid out. The provider call is best effort; local session
// state is cleared whether or not it succeeds.
func (s *AuthService) Logout(ctx context.Context, uid string) (*LogoutResult, error) {
	res := &LogoutResult{
		Message:         "Logged out successfully!",
		Redirect:        RedirectHome,
		RedirectAfterMs: logoutRedirectDelay,
	}
	if uid == "" {
		return res, nil
	}

	if err := s.provider.SignOut(ctx, uid); err != nil {
		s.logger.Warn("provider sign-out failed", slog.String("uid", uid), slog.String("error", err.Error()))
	}
	if err := s.session.Clear(ctx, uid, model.KeyUser, model.KeySOSEvents, model.KeyPreferences); err != nil {
		s.logger.Error("clearing session failed", slog.String("uid", uid), slog.String("error", err.Error()))
	}

	s.logger.Info("user logged out", slog.String("uid", uid))
	s.emit(AuthChange{UserID: uid, State: StateAnonymous})
	return res, nil
}

// Current returns the signed-in identity for uid.
//
// For provider-backed identities the provider is asked whether the account
// still exists; when it does not, the session is cleared, subscribers see
// StateAnonymous, and a not-found error is returned. If the provider cannot
// be reached the mirrored identity is used as is.
func (s *AuthService) Current(ctx context.Context, uid string) (*model.Identity, error) {
	id, err := s.session.Current(ctx, uid)
	if err != nil {
		return nil, err
	}
	if !id.Remote() {
		return id, nil
	}

	if _, err := s.provider.Lookup(ctx, uid); err != nil {
		switch identity.CodeOf(err) {
		case identity.CodeUserNotFound, identity.CodeUserDisabled:
			if cerr := s.session.Clear(ctx, uid, model.KeyUser, model.KeySOSEvents); cerr != nil {
				s.logger.Error("clearing session failed", slog.String("uid", uid), slog.String("error", cerr.Error()))
			}
			s.emit(AuthChange{UserID: uid, State: StateAnonymous})
			return nil, apperror.NotFoundMessage("Your session has ended. Please log in again.")
		default:
			s.logger.Warn("provider lookup failed, using mirrored identity",
				slog.String("uid", uid),
				slog.String("error", err.Error()),
			)
		}
	}
	return id, nil
}

// OnAuthChange registers fn for every auth transition. Handlers run
// synchronously on the goroutine that caused the transition.
func (s *AuthService) OnAuthChange(fn func(AuthChange)) *Subscription {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return NewSubscription(func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	})
}

func (s *AuthService) emit(ch AuthChange) {
	s.mu.RLock()
	fns := make([]func(AuthChange), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(ch)
	}
}

// establish mirrors id, issues its token and announces the sign-in.
func (s *AuthService) establish(ctx context.Context, id *model.Identity, msg string, delayMs int) (*AuthResult, error) {
	if err := s.session.Mirror(ctx, id); err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	token, err := s.tokens.Issue(auth.Subject{UserID: id.UID, Email: id.Email, Kind: string(id.Kind)})
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for %s: %w", id.UID, err)
	}

	s.emit(AuthChange{UserID: id.UID, State: StateAuthenticated, Identity: id})
	return &AuthResult{
		Identity:        id,
		Token:           token,
		Message:         msg,
		Redirect:        RedirectDashboard,
		RedirectAfterMs: delayMs,
	}, nil
}

// recordLogin merges the login into users/{uid}. Best effort.
func (s *AuthService) recordLogin(ctx context.Context, id *model.Identity) {
	doc := repository.Document{
		"email":      id.Email,
		"lastLogin":  id.LastLogin,
		"loginCount": repository.Increment{N: 1},
	}
	if !id.CreatedAt.IsZero() {
		doc["createdAt"] = id.CreatedAt
	}
	if err := s.docs.MergeDocument(ctx, model.CollectionUsers, id.UID, doc); err != nil {
		s.remoteWriteFailed(model.CollectionUsers, id.UID, err)
	}
}

func (s *AuthService) remoteWriteFailed(collection, uid string, err error) {
	s.metrics.RemoteWriteFailed(collection)
	s.logger.Error("remote write failed",
		slog.String("collection", collection),
		slog.String("uid", uid),
		slog.String("error", err.Error()),
	)
}

func (s *AuthService) identityFromUser(u *identity.User) *model.Identity {
	name := u.DisplayName
	if name == "" {
		name = model.DefaultDisplayName(u.Email)
	}
	return &model.Identity{
		UID:         u.UID,
		Email:       u.Email,
		DisplayName: name,
		PhotoURL:    u.PhotoURL,
		Kind:        u.Kind,
		LastLogin:   s.now.now(),
		CreatedAt:   u.CreatedAt,
	}
}

func outcome(err error) string {
	if code := identity.CodeOf(err); code != "" {
		return string(code)
	}
	return "error"
}

// loginError turns a provider failure into an apperror carrying the fixed
// login message.
func loginError(err error) error {
	msg := identity.LoginMessage(err)
	switch identity.CodeOf(err) {
	case identity.CodeUserNotFound:
		return apperror.NotFoundMessage(msg)
	case identity.CodeWrongPassword:
		return apperror.Unauthorized(msg)
	case identity.CodeUserDisabled:
		return apperror.Forbidden(msg)
	case identity.CodeTooManyRequests:
		return apperror.RateLimited(msg)
	case identity.CodeInvalidEmail:
		return apperror.ValidationFailed("email", msg)
	}
	return apperror.Unavailable(msg)
}

func registerError(err error) error {
	msg := identity.RegisterMessage(err)
	switch identity.CodeOf(err) {
	case identity.CodeEmailAlreadyInUse:
		return apperror.ConflictMessage(msg)
	case identity.CodeInvalidEmail:
		return apperror.ValidationFailed("email", msg)
	case identity.CodeWeakPassword:
		return apperror.ValidationFailed("password", msg)
	case identity.CodeOperationNotAllowed:
		return apperror.Forbidden(msg)
	}
	return apperror.Unavailable(msg)
}

// IsUserNotFound reports whether a Login error means the email has no account.
func IsUserNotFound(err error) bool {
	return errors.Is(err, apperror.ErrNotFound)
}
