// Package identity is the app's identity provider: it owns credentials and
// answers "who is this?" with a User or a coded Error.
//
// ERROR CODES:
// Every failure is an *Error carrying one Code. The Auth Gateway never shows
// raw errors to users; it turns codes into fixed messages with LoginMessage
// and RegisterMessage.
package identity

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/sakif/rakshak/internal/auth"
	"github.com/sakif/rakshak/internal/model"
)

// Code identifies why a provider call failed.
type Code string

const (
	CodeUserNotFound        Code = "user-not-found"
	CodeWrongPassword       Code = "wrong-password"
	CodeInvalidEmail        Code = "invalid-email"
	CodeUserDisabled        Code = "user-disabled"
	CodeTooManyRequests     Code = "too-many-requests"
	CodeNetworkFailed       Code = "network-request-failed"
	CodeEmailAlreadyInUse   Code = "email-already-in-use"
	CodeWeakPassword        Code = "weak-password"
	CodeOperationNotAllowed Code = "operation-not-allowed"
)

// Error is a provider failure.
type Error struct {
	Code Code
	Err  error // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "identity: " + string(e.Code) + ": " + e.Err.Error()
	}
	return "identity: " + string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code Code, cause error) *Error {
	return &Error{Code: code, Err: cause}
}

// CodeOf returns err's Code, or "" when err is not an *Error.
func CodeOf(err error) Code {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Code
	}
	return ""
}

// User is an authenticated provider account.
type User struct {
	UID         string
	Email       string
	DisplayName string
	PhotoURL    string
	Kind        model.IdentityKind
	CreatedAt   time.Time
}

// Provider is the identity backend the Auth Gateway talks to.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*User, error)
	SignUp(ctx context.Context, email, password string) (*User, error)
	UpdateDisplayName(ctx context.Context, uid, name string) error
	SignOut(ctx context.Context, uid string) error
	// Lookup returns the user behind uid, or CodeUserNotFound once the
	// account is gone.
	Lookup(ctx context.Context, uid string) (*User, error)
	// LookupEmail returns the user registered under email, or
	// CodeUserNotFound when the email has no account.
	LookupEmail(ctx context.Context, email string) (*User, error)
	// SignInGitHub creates or refreshes the account linked to a GitHub user.
	SignInGitHub(ctx context.Context, gh *auth.GitHubUser) (*User, error)
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail applies the address format check used at sign-in and sign-up.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var loginMessages = map[Code]string{
	CodeUserNotFound:    "No account found with this email.",
	CodeWrongPassword:   "Incorrect password.",
	CodeInvalidEmail:    "Invalid email format.",
	CodeUserDisabled:    "This account has been disabled.",
	CodeTooManyRequests: "Too many failed attempts. Try again later.",
	CodeNetworkFailed:   "Network error. Check your connection.",
}

var registerMessages = map[Code]string{
	CodeEmailAlreadyInUse:   "This email is already registered.",
	CodeInvalidEmail:        "Invalid email address.",
	CodeWeakPassword:        "Password is too weak.",
	CodeOperationNotAllowed: "Email/password accounts are not enabled.",
}

// LoginMessage is the text shown for a failed sign-in.
func LoginMessage(err error) string {
	if msg, ok := loginMessages[CodeOf(err)]; ok {
		return msg
	}
	return "Login failed. Please try again."
}

// RegisterMessage is the text shown for a failed sign-up.
func RegisterMessage(err error) string {
	if msg, ok := registerMessages[CodeOf(err)]; ok {
		return msg
	}
	return "Registration failed. Please try again."
}
