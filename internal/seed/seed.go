// Package seed fills the public collections from a YAML file.
//
// A seed file maps collection names to lists of entries:
//
//	safety_tips:
//	  - id: tip-aware
//	    title: Stay Alert
//	    description: ...
//
// Entries are written with MergeDocument under their id, so applying the
// same file twice leaves one copy of each entry. When no file is given the
// embedded default.yaml is used.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/sakif/rakshak/internal/model"
	"github.com/sakif/rakshak/internal/repository"
)

//go:embed default.yaml
var defaultSeed []byte

// Entry is one seeded resource. Only non-empty fields are written.
type Entry struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title,omitempty"`
	Name        string `yaml:"name,omitempty"`
	Number      string `yaml:"number,omitempty"`
	Description string `yaml:"description,omitempty"`
	Category    string `yaml:"category,omitempty"`
	Content     string `yaml:"content,omitempty"`
}

// Set is a parsed seed file, keyed by collection name.
type Set map[string][]Entry

// Parse decodes and validates a seed file. Every collection must be public
// and every entry needs a unique id.
func Parse(data []byte) (Set, error) {
	var s Set
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("seed: parsing yaml: %w", err)
	}
	for coll, entries := range s {
		if !model.IsPublicCollection(coll) {
			return nil, fmt.Errorf("seed: unknown collection %q", coll)
		}
		seen := make(map[string]bool, len(entries))
		for i, e := range entries {
			if e.ID == "" {
				return nil, fmt.Errorf("seed: %s[%d] has no id", coll, i)
			}
			if seen[e.ID] {
				return nil, fmt.Errorf("seed: %s has duplicate id %q", coll, e.ID)
			}
			seen[e.ID] = true
		}
	}
	return s, nil
}

// Load reads the seed file at path, or the embedded default when path is "".
func Load(path string) (Set, error) {
	if path == "" {
		return Parse(defaultSeed)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Collections returns the set's collection names in a stable order.
func (s Set) Collections() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Options control Apply.
type Options struct {
	// OnlyEmpty skips collections that already hold at least one document.
	// Startup seeding uses it so hand-edited data is never overwritten.
	OnlyEmpty bool
}

// Result maps each collection to the number of entries written.
type Result map[string]int

// Apply writes the set into store.
func Apply(ctx context.Context, store repository.DocumentStore, s Set, opts Options, logger *slog.Logger) (Result, error) {
	res := make(Result, len(s))
	for _, coll := range s.Collections() {
		if opts.OnlyEmpty {
			existing, err := store.ListDocuments(ctx, coll, repository.Query{Limit: 1})
			if err != nil {
				return res, fmt.Errorf("seed: checking %s: %w", coll, err)
			}
			if len(existing) > 0 {
				logger.Debug("seed: collection not empty, skipping", slog.String("collection", coll))
				continue
			}
		}

		for _, e := range s[coll] {
			if err := store.MergeDocument(ctx, coll, e.ID, e.document()); err != nil {
				return res, fmt.Errorf("seed: writing %s/%s: %w", coll, e.ID, err)
			}
			res[coll]++
		}
		logger.Info("seeded collection",
			slog.String("collection", coll),
			slog.Int("entries", res[coll]),
		)
	}
	return res, nil
}

func (e Entry) document() repository.Document {
	doc := repository.Document{}
	set := func(k, v string) {
		if v != "" {
			doc[k] = v
		}
	}
	set("title", e.Title)
	set("name", e.Name)
	set("number", e.Number)
	set("description", e.Description)
	set("category", e.Category)
	set("content", e.Content)
	return doc
}
