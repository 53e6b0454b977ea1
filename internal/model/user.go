// Package model defines the data structures used throughout the application.
package model

import (
	"strings"
	"time"
)

// IdentityKind says where an identity came from.
type IdentityKind string

const (
	KindAccount IdentityKind = "account" // email/password account at the identity provider
	KindGitHub  IdentityKind = "github"  // signed in through GitHub OAuth
	KindGuest   IdentityKind = "guest"   // fabricated locally after "user-not-found", no remote account
	KindDemo    IdentityKind = "demo"    // demo login, only when enabled in config
)

// Account is a row in the identity provider's users table.
//
// The provider owns credentials. Everything else the app knows about a person
// lives in documents (users/{uid}, profiles/{uid}) or in the local store.
//
// GitHubID is a pointer because email/password accounts have none, and the
// column is UNIQUE, so the zero value 0 would collide across accounts.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"displayName"`
	GitHubID     *int64    `json:"githubId,omitempty"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	Disabled     bool      `json:"disabled"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Identity is the session record mirrored into the local store under
// rakshak_user. Field names match what the browser reads.
type Identity struct {
	UID         string       `json:"uid"`
	Email       string       `json:"email"`
	DisplayName string       `json:"displayName"`
	PhotoURL    string       `json:"photoURL,omitempty"`
	Kind        IdentityKind `json:"kind"`
	IsDemo      bool         `json:"isDemo,omitempty"`
	LastLogin   time.Time    `json:"lastLogin"`
	CreatedAt   time.Time    `json:"createdAt,omitempty"`
}

// Remote reports whether this identity has a real provider account, which is
// what gates writes to the shared document store.
func (i *Identity) Remote() bool {
	return i.Kind == KindAccount || i.Kind == KindGitHub
}

// DefaultDisplayName is the local part of an email address ("asha" for
// "asha@example.com"), used when nobody set a name.
func DefaultDisplayName(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}
