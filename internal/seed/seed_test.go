package seed

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sakif/rakshak/internal/model"
	"github.com/sakif/rakshak/internal/repository"
	sqliteRepo "github.com/sakif/rakshak/internal/repository/sqlite"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *sqliteRepo.DB {
	t.Helper()
	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// =========================================================================
// Parse / Load
// =========================================================================

func TestLoad_EmbeddedDefault(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)

	for _, coll := range model.PublicCollections {
		assert.NotEmpty(t, s[coll], "default seed should cover %s", coll)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "safety_tips: [unclosed"},
		{"unknown collection", "users:\n  - id: u1\n"},
		{"missing id", "safety_tips:\n  - title: Hi\n"},
		{"duplicate id", "ambulance:\n  - id: a\n  - id: a\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

// =========================================================================
// Apply
// =========================================================================

func TestApply_WritesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	s, err := Parse([]byte("safety_tips:\n  - id: t1\n    title: One\n  - id: t2\n    title: Two\n"))
	require.NoError(t, err)

	res, err := Apply(ctx, db, s, Options{}, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, res[model.CollectionSafetyTips])

	_, err = Apply(ctx, db, s, Options{}, discardLogger())
	require.NoError(t, err)

	docs, err := db.ListDocuments(ctx, model.CollectionSafetyTips, repository.Query{})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestApply_OnlyEmptySkipsPopulated(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	_, err := db.AddDocument(ctx, model.CollectionAmbulance, repository.Document{"name": "Local"})
	require.NoError(t, err)

	s, err := Parse([]byte("ambulance:\n  - id: a1\n    name: Seeded\nsafety_tips:\n  - id: t1\n"))
	require.NoError(t, err)

	res, err := Apply(ctx, db, s, Options{OnlyEmpty: true}, discardLogger())
	require.NoError(t, err)

	assert.Zero(t, res[model.CollectionAmbulance])
	assert.Equal(t, 1, res[model.CollectionSafetyTips])
}

// =========================================================================
// Watcher
// =========================================================================

func TestWatcher_FiresOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("safety_tips: []\n"), 0o600))

	var calls atomic.Int32
	w, err := NewWatcher(path, func(context.Context) error {
		calls.Add(1)
		return nil
	}, discardLogger())
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.NoError(t, os.WriteFile(path, []byte("safety_tips:\n  - id: t1\n"), 0o600))

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
