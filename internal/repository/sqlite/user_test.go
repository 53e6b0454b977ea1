package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/rakshak/internal/apperror"
	"github.com/sakif/rakshak/internal/model"
)

// newTestDB opens a fresh in-memory database that is closed when the test ends.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestAccount(t *testing.T, db *DB, email string) *model.Account {
	t.Helper()
	a := &model.Account{
		Email:        email,
		PasswordHash: "$2a$04$not-a-real-hash",
		DisplayName:  model.DefaultDisplayName(email),
	}
	if err := db.CreateAccount(context.Background(), a); err != nil {
		t.Fatalf("failed to create test account: %v", err)
	}
	return a
}

// =========================================================================
// ACCOUNT TESTS
// =========================================================================

func TestCreateAccount(t *testing.T) {
	db := newTestDB(t)

	a := createTestAccount(t, db, "asha@example.com")

	if a.ID == "" {
		t.Error("CreateAccount() did not set ID")
	}
	if a.CreatedAt.IsZero() {
		t.Error("CreateAccount() did not set CreatedAt")
	}
}

func TestCreateAccount_DuplicateEmailIsConflict(t *testing.T) {
	db := newTestDB(t)
	createTestAccount(t, db, "asha@example.com")

	err := db.CreateAccount(context.Background(), &model.Account{Email: "ASHA@example.com"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("CreateAccount() error = %v, want ErrConflict", err)
	}
}

func TestGetAccountByEmail(t *testing.T) {
	db := newTestDB(t)
	created := createTestAccount(t, db, "asha@example.com")

	got, err := db.GetAccountByEmail(context.Background(), "Asha@Example.com")
	if err != nil {
		t.Fatalf("GetAccountByEmail() error = %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("ID = %q, want %q", got.ID, created.ID)
	}
	if got.PasswordHash != created.PasswordHash {
		t.Errorf("PasswordHash not round-tripped")
	}
	if got.GitHubID != nil {
		t.Errorf("GitHubID = %v, want nil", *got.GitHubID)
	}
}

func TestGetAccount_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetAccountByID(context.Background(), "missing")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetAccountByID() error = %v, want ErrNotFound", err)
	}

	_, err = db.GetAccountByEmail(context.Background(), "nobody@example.com")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetAccountByEmail() error = %v, want ErrNotFound", err)
	}
}

func TestUpsertGitHubAccount_KeepsID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ghID := int64(42)

	first := &model.Account{GitHubID: &ghID, Email: "octo@example.com", DisplayName: "octo"}
	if err := db.UpsertGitHubAccount(ctx, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := &model.Account{GitHubID: &ghID, Email: "octo@example.com", DisplayName: "Octo Cat"}
	if err := db.UpsertGitHubAccount(ctx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("ID changed on upsert: %q -> %q", first.ID, second.ID)
	}

	got, err := db.GetAccountByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetAccountByID() error = %v", err)
	}
	if got.DisplayName != "Octo Cat" {
		t.Errorf("DisplayName = %q, want %q", got.DisplayName, "Octo Cat")
	}
	if got.GitHubID == nil || *got.GitHubID != 42 {
		t.Errorf("GitHubID = %v, want 42", got.GitHubID)
	}
}

func TestUpdateDisplayName(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := createTestAccount(t, db, "asha@example.com")

	if err := db.UpdateDisplayName(ctx, a.ID, "Asha R"); err != nil {
		t.Fatalf("UpdateDisplayName() error = %v", err)
	}
	got, _ := db.GetAccountByID(ctx, a.ID)
	if got.DisplayName != "Asha R" {
		t.Errorf("DisplayName = %q, want %q", got.DisplayName, "Asha R")
	}

	if err := db.UpdateDisplayName(ctx, "missing", "x"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdateDisplayName(missing) error = %v, want ErrNotFound", err)
	}
}
