// Package repository defines the storage contracts the services depend on.
//
// There are three stores, matching the three places the app keeps data:
//
//   - UserRepository: identity-provider accounts (credentials, GitHub link)
//   - DocumentStore:  the shared document collections (public resources, users,
//     profiles, user_contacts, sos_events), written with merge-upsert
//   - LocalStore:     per-identity opaque values (rakshak_user, rakshak_sos_events, ...)
//
// Implementations live in sub-packages (sqlite, dynamo). Services only ever
// see these interfaces.
package repository

import (
	"context"

	"github.com/sakif/rakshak/internal/model"
)

// UserRepository stores identity-provider accounts.
type UserRepository interface {
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccountByID(ctx context.Context, id string) (*model.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*model.Account, error)
	UpsertGitHubAccount(ctx context.Context, account *model.Account) error
	UpdateDisplayName(ctx context.Context, id, name string) error
}

// DocumentStore is a schemaless collection/document store.
//
// Every document returned by GetDocument and ListDocuments carries its id
// under the "id" key, so callers can decode straight into a model type.
// GetDocument returns an apperror.ErrNotFound error for missing documents.
type DocumentStore interface {
	GetDocument(ctx context.Context, collection, id string) (Document, error)
	ListDocuments(ctx context.Context, collection string, q Query) ([]Document, error)
	// AddDocument stores data under a generated id and returns it.
	AddDocument(ctx context.Context, collection string, data Document) (string, error)
	// MergeDocument creates the document if needed and overwrites only the
	// fields present in data. Nested maps are merged, Increment values add.
	MergeDocument(ctx context.Context, collection, id string, data Document) error
}

// LocalStore keeps small JSON values per owner (an identity uid).
//
// LoadValue returns an apperror.ErrNotFound error when the key is unset.
// UpdateValue runs fn with the current value (nil when unset) and stores
// what it returns, atomically with respect to other writers of the same store.
type LocalStore interface {
	LoadValue(ctx context.Context, owner, key string) ([]byte, error)
	SaveValue(ctx context.Context, owner, key string, value []byte) error
	UpdateValue(ctx context.Context, owner, key string, fn func(current []byte) ([]byte, error)) error
	DeleteValues(ctx context.Context, owner string, keys ...string) error
}
