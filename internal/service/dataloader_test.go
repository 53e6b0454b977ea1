package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sakif/rakshak/internal/apperror"
	"github.com/sakif/rakshak/internal/metrics"
	"github.com/sakif/rakshak/internal/model"
	"github.com/sakif/rakshak/internal/repository"
)

func newTestLoader(t *testing.T, docs *fakeDocs, m *metrics.Metrics) *DataLoader {
	t.Helper()
	l := NewDataLoader(docs, 0, m, testLogger())
	t.Cleanup(l.Close)
	return l
}

func seedPublic(docs *fakeDocs) {
	docs.seed(model.CollectionSafetyTips, "tip-1", repository.Document{"title": "Walk in lit areas", "category": "night"})
	docs.seed(model.CollectionSafetyTips, "tip-2", repository.Document{"description": "Share your route"})
	docs.seed(model.CollectionEmergencyContacts, "ec-1", repository.Document{"name": "Police", "number": "112"})
	docs.seed(model.CollectionAmbulance, "amb-1", repository.Document{})
	docs.seed(model.CollectionCyberCrime, "cy-1", repository.Document{"name": "Cyber Cell", "content": "Report online fraud"})
	docs.seed(model.CollectionDomesticViolence, "dv-1", repository.Document{"name": "Women Helpline", "number": "181"})
}

func TestLoadAll_NormalizesEveryCollection(t *testing.T) {
	docs := newFakeDocs()
	seedPublic(docs)
	l := newTestLoader(t, docs, nil)

	data := l.LoadAll(context.Background())
	if data.Fallback {
		t.Fatal("LoadAll() fell back with a healthy store")
	}

	if len(data.SafetyTips) != 2 {
		t.Fatalf("SafetyTips = %d, want 2", len(data.SafetyTips))
	}
	if got := data.SafetyTips[1].Title; got != "Safety Tip" {
		t.Errorf("untitled tip Title = %q, want placeholder", got)
	}
	if got := data.SafetyTips[0].ID; got != "tip-1" {
		t.Errorf("tip ID = %q, want document id", got)
	}

	amb := data.Ambulance[0]
	if amb.Name != "Ambulance" || amb.Number != "Call for help" || amb.Description != "24/7 ambulance service" {
		t.Errorf("empty ambulance entry = %+v, want placeholders", amb)
	}
	if got := data.CyberCrime[0].Description; got != "Report online fraud" {
		t.Errorf("cyber Description = %q, want content fallback", got)
	}
	if got := data.DomesticViolence[0].Collection; got != model.CollectionDomesticViolence {
		t.Errorf("Collection = %q", got)
	}
}

func TestLoadAll_AnyFailureUsesFallback(t *testing.T) {
	docs := newFakeDocs()
	seedPublic(docs)
	docs.listErr[model.CollectionCyberCrime] = errStoreDown
	m := metrics.New()
	l := newTestLoader(t, docs, m)

	data := l.LoadAll(context.Background())

	if !data.Fallback {
		t.Fatal("LoadAll() did not fall back")
	}
	if len(data.SafetyTips) != 1 || data.SafetyTips[0].Title != "Stay Safe" {
		t.Errorf("SafetyTips = %+v, want the fallback tip", data.SafetyTips)
	}
	if len(data.EmergencyContacts) != 1 || data.EmergencyContacts[0].Number != "100" {
		t.Errorf("EmergencyContacts = %+v, want the fallback contact", data.EmergencyContacts)
	}
	if len(data.Ambulance) != 0 || data.Ambulance == nil {
		t.Errorf("Ambulance = %#v, want empty non-nil", data.Ambulance)
	}
	const want = `
# HELP rakshak_dataloader_fallback_total Public data loads that failed and served the fallback set
# TYPE rakshak_dataloader_fallback_total counter
rakshak_dataloader_fallback_total 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(want), "rakshak_dataloader_fallback_total"); err != nil {
		t.Errorf("fallback counter: %v", err)
	}

	// fallback results are not cached: a healthy store is picked up next time
	delete(docs.listErr, model.CollectionCyberCrime)
	if l.LoadAll(context.Background()).Fallback {
		t.Error("LoadAll() kept serving the fallback after the store recovered")
	}
}

func TestCollection_CachesAndInvalidates(t *testing.T) {
	docs := newFakeDocs()
	seedPublic(docs)
	l := newTestLoader(t, docs, nil)
	ctx := context.Background()

	tips, err := l.Collection(ctx, model.CollectionSafetyTips)
	if err != nil || len(tips) != 2 {
		t.Fatalf("Collection() = %d items, %v", len(tips), err)
	}

	docs.seed(model.CollectionSafetyTips, "tip-3", repository.Document{"title": "New"})
	tips, _ = l.Collection(ctx, model.CollectionSafetyTips)
	if len(tips) != 2 {
		t.Errorf("Collection() = %d items, want the cached 2", len(tips))
	}

	l.Invalidate()
	tips, _ = l.Collection(ctx, model.CollectionSafetyTips)
	if len(tips) != 3 {
		t.Errorf("Collection() after Invalidate = %d items, want 3", len(tips))
	}
}

func TestCollection_Unknown(t *testing.T) {
	l := newTestLoader(t, newFakeDocs(), nil)

	_, err := l.Collection(context.Background(), "users")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Collection(users) error = %v, want ErrNotFound", err)
	}
}
