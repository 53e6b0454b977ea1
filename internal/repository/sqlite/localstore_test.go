package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/rakshak/internal/apperror"
)

// =========================================================================
// LOCAL STORE TESTS
// =========================================================================

func TestSaveAndLoadValue(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.SaveValue(ctx, "u1", "rakshak_user", []byte(`{"uid":"u1"}`)); err != nil {
		t.Fatalf("SaveValue() error = %v", err)
	}
	if err := db.SaveValue(ctx, "u1", "rakshak_user", []byte(`{"uid":"u1","email":"a@b.co"}`)); err != nil {
		t.Fatalf("SaveValue() overwrite error = %v", err)
	}

	got, err := db.LoadValue(ctx, "u1", "rakshak_user")
	if err != nil {
		t.Fatalf("LoadValue() error = %v", err)
	}
	if string(got) != `{"uid":"u1","email":"a@b.co"}` {
		t.Errorf("LoadValue() = %s", got)
	}

	// owners are isolated
	if _, err := db.LoadValue(ctx, "u2", "rakshak_user"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("LoadValue(other owner) error = %v, want ErrNotFound", err)
	}
}

func TestUpdateValue(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	appendByte := func(b byte) func([]byte) ([]byte, error) {
		return func(cur []byte) ([]byte, error) {
			return append(append([]byte{}, cur...), b), nil
		}
	}

	for _, b := range []byte("abc") {
		if err := db.UpdateValue(ctx, "u1", "k", appendByte(b)); err != nil {
			t.Fatalf("UpdateValue() error = %v", err)
		}
	}

	got, err := db.LoadValue(ctx, "u1", "k")
	if err != nil {
		t.Fatalf("LoadValue() error = %v", err)
	}
	if string(got) != "abc" {
		t.Errorf("value = %q, want %q", got, "abc")
	}

	// nil deletes
	if err := db.UpdateValue(ctx, "u1", "k", func([]byte) ([]byte, error) { return nil, nil }); err != nil {
		t.Fatalf("UpdateValue(delete) error = %v", err)
	}
	if _, err := db.LoadValue(ctx, "u1", "k"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("after delete, LoadValue() error = %v, want ErrNotFound", err)
	}
}

func TestUpdateValue_FnErrorRollsBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_ = db.SaveValue(ctx, "u1", "k", []byte("keep"))

	boom := errors.New("boom")
	err := db.UpdateValue(ctx, "u1", "k", func([]byte) ([]byte, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("UpdateValue() error = %v, want boom", err)
	}

	got, _ := db.LoadValue(ctx, "u1", "k")
	if string(got) != "keep" {
		t.Errorf("value = %q, want unchanged", got)
	}
}

func TestDeleteValues(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, k := range []string{"rakshak_user", "rakshak_sos_events", "rakshak_preferences", "rakshak_share_history"} {
		_ = db.SaveValue(ctx, "u1", k, []byte("1"))
	}

	if err := db.DeleteValues(ctx, "u1", "rakshak_user", "rakshak_sos_events", "rakshak_preferences", "missing"); err != nil {
		t.Fatalf("DeleteValues() error = %v", err)
	}

	if _, err := db.LoadValue(ctx, "u1", "rakshak_user"); !errors.Is(err, apperror.ErrNotFound) {
		t.Error("rakshak_user should be gone")
	}
	if _, err := db.LoadValue(ctx, "u1", "rakshak_share_history"); err != nil {
		t.Errorf("rakshak_share_history should survive: %v", err)
	}
}
