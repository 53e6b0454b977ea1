package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/rakshak/internal/apperror"
	"github.com/sakif/rakshak/internal/cache"
	"github.com/sakif/rakshak/internal/metrics"
	"github.com/sakif/rakshak/internal/model"
	"github.com/sakif/rakshak/internal/repository"
)

// DefaultPublicDataTTL is how long a successful load is served from memory.
const DefaultPublicDataTTL = 5 * time.Minute

// DataLoader reads the five public collections.
//
// A load is all-or-nothing: the five reads run in parallel and if any of
// them fails the whole load is replaced by the fallback set (one tip, one
// contact). There is no retry; the next call after a failure simply loads
// again, since fallback results are never cached.
type DataLoader struct {
	docs    repository.DocumentStore
	cache   *cache.TTLCache[string, []model.Resource]
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     clock
}

func NewDataLoader(docs repository.DocumentStore, ttl time.Duration, m *metrics.Metrics, logger *slog.Logger) *DataLoader {
	if ttl <= 0 {
		ttl = DefaultPublicDataTTL
	}
	return &DataLoader{
		docs:    docs,
		cache:   cache.New[string, []model.Resource](ttl, ttl),
		metrics: m,
		logger:  logger,
	}
}

// LoadAll returns every public collection, from cache when all five are
// present and from the store otherwise.
func (l *DataLoader) LoadAll(ctx context.Context) *model.PublicData {
	if data, ok := l.cached(); ok {
		return data
	}

	sections := make([][]model.Resource, len(model.PublicCollections))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range model.PublicCollections {
		g.Go(func() error {
			items, err := l.fetch(gctx, name)
			if err != nil {
				return err
			}
			sections[i] = items
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		l.metrics.DataFallback()
		l.logger.Error("loading public data failed, using fallback", slog.String("error", err.Error()))
		return fallbackData(l.now.now())
	}

	data := &model.PublicData{LoadedAt: l.now.now()}
	for i, name := range model.PublicCollections {
		data.SetSection(name, sections[i])
		l.cache.Set(name, sections[i])
	}

	l.logger.Debug("public data loaded",
		slog.Int("safety_tips", len(data.SafetyTips)),
		slog.Int("emergency_contacts", len(data.EmergencyContacts)),
	)
	return data
}

// Collection returns one public collection. Unknown names are not found.
func (l *DataLoader) Collection(ctx context.Context, name string) ([]model.Resource, error) {
	if !model.IsPublicCollection(name) {
		return nil, apperror.NotFound("collection", name)
	}
	if items, ok := l.cache.Get(name); ok {
		return items, nil
	}
	return l.LoadAll(ctx).Section(name), nil
}

// Invalidate drops every cached collection. The seed watcher calls it
// after re-applying the seed file.
func (l *DataLoader) Invalidate() {
	l.cache.Clear()
}

func (l *DataLoader) Close() {
	l.cache.Close()
}

func (l *DataLoader) cached() (*model.PublicData, bool) {
	data := &model.PublicData{}
	for _, name := range model.PublicCollections {
		items, ok := l.cache.Get(name)
		if !ok {
			return nil, false
		}
		data.SetSection(name, items)
	}
	data.LoadedAt = l.now.now()
	return data, true
}

func (l *DataLoader) fetch(ctx context.Context, collection string) ([]model.Resource, error) {
	docs, err := l.docs.ListDocuments(ctx, collection, repository.Query{})
	if err != nil {
		return nil, fmt.Errorf("service/dataloader: listing %s: %w", collection, err)
	}

	items := make([]model.Resource, 0, len(docs))
	for _, doc := range docs {
		var r model.Resource
		if err := repository.Decode(doc, &r); err != nil {
			return nil, fmt.Errorf("service/dataloader: %s/%s: %w", collection, doc.ID(), err)
		}
		r.ID = doc.ID()
		r.Collection = collection
		items = append(items, model.NormalizeResource(r))
	}
	return items, nil
}

func fallbackData(now time.Time) *model.PublicData {
	return &model.PublicData{
		SafetyTips:        []model.Resource{model.FallbackTip},
		EmergencyContacts: []model.Resource{model.FallbackContact},
		Ambulance:         []model.Resource{},
		CyberCrime:        []model.Resource{},
		DomesticViolence:  []model.Resource{},
		Fallback:          true,
		LoadedAt:          now,
	}
}
