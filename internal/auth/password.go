package auth

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor for production hashes (~250ms).
const defaultCost = 12

// MinPasswordLength is the shortest password the identity provider accepts.
const MinPasswordLength = 6

// maxPasswordBytes is bcrypt's input limit. Longer inputs are silently
// truncated by the algorithm, so they are rejected instead.
const maxPasswordBytes = 72

var (
	// ErrWeakPassword is returned by CheckStrength and Hash.
	ErrWeakPassword = errors.New("auth: password is too weak")
	// ErrPasswordMismatch is returned by Verify when the password is wrong.
	ErrPasswordMismatch = errors.New("auth: invalid password")
)

// PasswordService hashes and verifies passwords with bcrypt.
//
// It's a struct so tests can inject a low cost.
type PasswordService struct {
	cost int
}

// NewPasswordService creates a PasswordService with the default cost (12).
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceForTest creates a PasswordService with the given cost.
// Pass bcrypt.MinCost (4) to keep tests fast. Never use in production.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// CheckStrength applies the provider's password policy.
func (p *PasswordService) CheckStrength(plaintext string) error {
	if utf8.RuneCountInString(plaintext) < MinPasswordLength {
		return ErrWeakPassword
	}
	if len(plaintext) > maxPasswordBytes {
		return fmt.Errorf("auth: password must be %d bytes or fewer: %w", maxPasswordBytes, ErrWeakPassword)
	}
	return nil
}

// Hash returns a self-describing bcrypt hash ($2a$<cost>$<salt><hash>)
// that can be stored as-is.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if err := p.CheckStrength(plaintext); err != nil {
		return "", err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify checks plaintext against a stored hash in constant time.
// Returns ErrPasswordMismatch for a wrong password.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
