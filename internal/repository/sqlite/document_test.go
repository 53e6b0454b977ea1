package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sakif/rakshak/internal/apperror"
	"github.com/sakif/rakshak/internal/repository"
)

// =========================================================================
// DOCUMENT STORE TESTS
// =========================================================================

func TestAddAndGetDocument(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := db.AddDocument(ctx, "safety_tips", repository.Document{
		"title":    "Share your route",
		"category": "travel",
	})
	if err != nil {
		t.Fatalf("AddDocument() error = %v", err)
	}
	if id == "" {
		t.Fatal("AddDocument() returned empty id")
	}

	doc, err := db.GetDocument(ctx, "safety_tips", id)
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if doc.ID() != id {
		t.Errorf("doc id = %q, want %q", doc.ID(), id)
	}
	if doc["title"] != "Share your route" {
		t.Errorf("title = %v", doc["title"])
	}
}

func TestGetDocument_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetDocument(context.Background(), "profiles", "nobody")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetDocument() error = %v, want ErrNotFound", err)
	}
}

func TestMergeDocument_PreservesExistingFields(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.MergeDocument(ctx, "users", "u1", repository.Document{
		"email":      "asha@example.com",
		"createdAt":  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		"loginCount": repository.Increment{N: 1},
	}); err != nil {
		t.Fatalf("first merge: %v", err)
	}

	if err := db.MergeDocument(ctx, "users", "u1", repository.Document{
		"lastSOS":    "2024-02-01T00:00:00Z",
		"loginCount": repository.Increment{N: 1},
	}); err != nil {
		t.Fatalf("second merge: %v", err)
	}

	doc, err := db.GetDocument(ctx, "users", "u1")
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if doc["email"] != "asha@example.com" {
		t.Errorf("email lost on merge: %v", doc["email"])
	}
	if doc["createdAt"] != "2024-01-01T00:00:00Z" {
		t.Errorf("createdAt = %v", doc["createdAt"])
	}
	if doc["lastSOS"] != "2024-02-01T00:00:00Z" {
		t.Errorf("lastSOS = %v", doc["lastSOS"])
	}
	if doc["loginCount"] != float64(2) {
		t.Errorf("loginCount = %v, want 2", doc["loginCount"])
	}
}

func TestMergeDocument_ConcurrentIncrements(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := db.MergeDocument(ctx, "users", "u1", repository.Document{
				"loginCount": repository.Increment{N: 1},
			}); err != nil {
				t.Errorf("MergeDocument() error = %v", err)
			}
		}()
	}
	wg.Wait()

	doc, err := db.GetDocument(ctx, "users", "u1")
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if doc["loginCount"] != float64(10) {
		t.Errorf("loginCount = %v, want 10", doc["loginCount"])
	}
}

func TestListDocuments_FilterOrderLimit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, uid := range []string{"u1", "u2", "u1", "u1"} {
		_, err := db.AddDocument(ctx, "sos_events", repository.Document{
			"userId":    uid,
			"type":      "emergency",
			"timestamp": base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("AddDocument() error = %v", err)
		}
	}

	docs, err := db.ListDocuments(ctx, "sos_events", repository.Query{
		Where:   []repository.Filter{{Field: "userId", Value: "u1"}},
		OrderBy: "timestamp",
		Desc:    true,
		Limit:   2,
	})
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("len = %d, want 2", len(docs))
	}
	if docs[0]["timestamp"] != "2024-05-01T12:03:00Z" {
		t.Errorf("first timestamp = %v, want newest", docs[0]["timestamp"])
	}
	for _, d := range docs {
		if d["userId"] != "u1" {
			t.Errorf("filter leaked doc for %v", d["userId"])
		}
		if d.ID() == "" {
			t.Error("listed document missing id")
		}
	}
}

func TestListDocuments_RejectsOddFieldNames(t *testing.T) {
	db := newTestDB(t)

	_, err := db.ListDocuments(context.Background(), "users", repository.Query{
		Where: []repository.Filter{{Field: "x') OR 1=1 --", Value: "y"}},
	})
	if err == nil {
		t.Error("ListDocuments() should reject non-identifier field names")
	}
}
