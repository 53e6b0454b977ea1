package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/rakshak/internal/apperror"
	"github.com/sakif/rakshak/internal/auth"
	"github.com/sakif/rakshak/internal/model"
	"github.com/sakif/rakshak/internal/ratelimit"
	"github.com/sakif/rakshak/internal/repository"
)

// LocalProvider keeps accounts in the app's own database.
//
// Failed password attempts are counted per email; once the limiter trips,
// SignIn answers too-many-requests without checking the password.
// Store errors surface as network-request-failed: from the caller's side
// the provider could not be reached.
type LocalProvider struct {
	users       repository.UserRepository
	passwords   *auth.PasswordService
	limiter     *ratelimit.Limiter
	allowSignup bool
	logger      *slog.Logger
}

var _ Provider = (*LocalProvider)(nil)

// LocalOptions configure a LocalProvider.
type LocalOptions struct {
	AllowSignup bool
}

// NewLocalProvider builds a provider. limiter may be nil to disable throttling.
func NewLocalProvider(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	limiter *ratelimit.Limiter,
	opts LocalOptions,
	logger *slog.Logger,
) *LocalProvider {
	return &LocalProvider{
		users:       users,
		passwords:   passwords,
		limiter:     limiter,
		allowSignup: opts.AllowSignup,
		logger:      logger,
	}
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*User, error) {
	email = NormalizeEmail(email)
	if !ValidEmail(email) {
		return nil, newError(CodeInvalidEmail, nil)
	}
	if p.limiter != nil && p.limiter.Blocked(email) {
		return nil, newError(CodeTooManyRequests, nil)
	}

	acct, err := p.users.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, newError(CodeUserNotFound, nil)
		}
		return nil, newError(CodeNetworkFailed, err)
	}
	if acct.Disabled {
		return nil, newError(CodeUserDisabled, nil)
	}

	if acct.PasswordHash == "" {
		// GitHub-only account.
		p.recordFailure(email)
		return nil, newError(CodeWrongPassword, nil)
	}
	if err := p.passwords.Verify(acct.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			p.recordFailure(email)
			return nil, newError(CodeWrongPassword, nil)
		}
		return nil, newError(CodeNetworkFailed, err)
	}

	if p.limiter != nil {
		p.limiter.Reset(email)
	}
	return userFromAccount(acct), nil
}

func (p *LocalProvider) recordFailure(email string) {
	if p.limiter == nil {
		return
	}
	if !p.limiter.Allow(email) {
		p.logger.Warn("sign-in attempts throttled", slog.String("email", email))
	}
}

func (p *LocalProvider) SignUp(ctx context.Context, email, password string) (*User, error) {
	if !p.allowSignup {
		return nil, newError(CodeOperationNotAllowed, nil)
	}
	email = NormalizeEmail(email)
	if !ValidEmail(email) {
		return nil, newError(CodeInvalidEmail, nil)
	}
	if err := p.passwords.CheckStrength(password); err != nil {
		return nil, newError(CodeWeakPassword, err)
	}

	hash, err := p.passwords.Hash(password)
	if err != nil {
		return nil, newError(CodeNetworkFailed, err)
	}

	acct := &model.Account{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  model.DefaultDisplayName(email),
	}
	if err := p.users.CreateAccount(ctx, acct); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, newError(CodeEmailAlreadyInUse, nil)
		}
		return nil, newError(CodeNetworkFailed, err)
	}

	p.logger.Info("account created", slog.String("uid", acct.ID))
	return userFromAccount(acct), nil
}

func (p *LocalProvider) UpdateDisplayName(ctx context.Context, uid, name string) error {
	if err := p.users.UpdateDisplayName(ctx, uid, name); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return newError(CodeUserNotFound, nil)
		}
		return newError(CodeNetworkFailed, err)
	}
	return nil
}

// SignOut has nothing to revoke: sessions are stateless JWTs held by the
// browser, and the gateway clears the cookie and local state itself.
func (p *LocalProvider) SignOut(ctx context.Context, uid string) error {
	p.logger.Debug("provider sign-out", slog.String("uid", uid))
	return nil
}

func (p *LocalProvider) Lookup(ctx context.Context, uid string) (*User, error) {
	acct, err := p.users.GetAccountByID(ctx, uid)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, newError(CodeUserNotFound, nil)
		}
		return nil, newError(CodeNetworkFailed, err)
	}
	if acct.Disabled {
		return nil, newError(CodeUserDisabled, nil)
	}
	return userFromAccount(acct), nil
}

func (p *LocalProvider) LookupEmail(ctx context.Context, email string) (*User, error) {
	email = NormalizeEmail(email)
	if !ValidEmail(email) {
		return nil, newError(CodeInvalidEmail, nil)
	}
	acct, err := p.users.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, newError(CodeUserNotFound, nil)
		}
		return nil, newError(CodeNetworkFailed, err)
	}
	return userFromAccount(acct), nil
}

func (p *LocalProvider) SignInGitHub(ctx context.Context, gh *auth.GitHubUser) (*User, error) {
	id := gh.ID
	email := NormalizeEmail(gh.Email)
	if email == "" {
		// Hidden in GitHub settings. Emails are unique, so use the noreply form.
		email = fmt.Sprintf("%d+%s@users.noreply.github.com", gh.ID, strings.ToLower(gh.Login))
	}
	acct := &model.Account{
		Email:       email,
		DisplayName: gh.DisplayName(),
		GitHubID:    &id,
		AvatarURL:   gh.AvatarURL,
	}
	if err := p.users.UpsertGitHubAccount(ctx, acct); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, newError(CodeEmailAlreadyInUse, err)
		}
		return nil, newError(CodeNetworkFailed, err)
	}
	return userFromAccount(acct), nil
}

func userFromAccount(a *model.Account) *User {
	kind := model.KindAccount
	if a.GitHubID != nil {
		kind = model.KindGitHub
	}
	name := a.DisplayName
	if name == "" {
		name = model.DefaultDisplayName(a.Email)
	}
	return &User{
		UID:         a.ID,
		Email:       a.Email,
		DisplayName: name,
		PhotoURL:    a.AvatarURL,
		Kind:        kind,
		CreatedAt:   a.CreatedAt,
	}
}
