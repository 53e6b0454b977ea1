// Package auth issues and checks session tokens and hashes passwords.
//
// SESSION FLOW:
//  1. The Auth Gateway (service.AuthService) signs a user in, or fabricates a guest or demo identity
//  2. It asks TokenService for a JWT naming that identity
//  3. The handler stores the JWT in an HttpOnly "token" cookie
//  4. RequireAuth / OptionalAuth read the cookie (or an Authorization header)
//     on later requests and put the Subject in the request context
//
// WHY JWT?
// The token carries everything a request needs (uid, email, identity kind),
// so guests and demo users, who have no row in the users table, are
// authenticated the same way as real accounts.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "rakshak"

	// DefaultTokenTTL is used when a TokenService is built without a TTL.
	DefaultTokenTTL = 24 * time.Hour
)

// Subject is who a token was issued to.
type Subject struct {
	UserID string
	Email  string
	Kind   string // model.IdentityKind as a string; auth does not import model
}

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given secret and the default TTL.
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	return NewTokenServiceWithTTL(secret, DefaultTokenTTL)
}

// NewTokenServiceWithTTL is NewTokenService with an explicit token lifetime.
func NewTokenServiceWithTTL(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL is how long issued tokens stay valid. Handlers use it for cookie MaxAge.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// claims is the JWT payload: the registered claims plus what the app needs
// to rebuild a Subject without a database lookup.
type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

// Issue signs a token for sub with the service TTL.
func (s *TokenService) Issue(sub Subject) (string, error) {
	return s.IssueWithDuration(sub, s.ttl)
}

// IssueWithDuration signs a token with a custom lifetime. Tests use negative
// durations to get already-expired tokens.
func (s *TokenService) IssueWithDuration(sub Subject, d time.Duration) (string, error) {
	if sub.UserID == "" {
		return "", errors.New("auth: cannot issue a token without a user id")
	}
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
		Email: sub.Email,
		Kind:  sub.Kind,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Parse verifies a JWT string and returns its Subject.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid
//   - Token is not expired, and carries an expiry at all
//   - Issuer matches "rakshak"
//   - Algorithm is HS256 (prevents algorithm confusion attacks)
func (s *TokenService) Parse(tokenStr string) (*Subject, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: token expired")
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("auth: token has no subject")
	}

	return &Subject{UserID: c.Subject, Email: c.Email, Kind: c.Kind}, nil
}

// Validate is Parse for callers that only need the user id.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	sub, err := s.Parse(tokenStr)
	if err != nil {
		return "", err
	}
	return sub.UserID, nil
}
