// Package service contains the business logic of the safety app.
//
// LAYERS:
//
//	Handler (HTTP)    → parses requests, writes responses
//	Service (this)    → validates, enforces rules, orchestrates
//	Repository (data) → documents, accounts, per-identity local values
//
// Services take repository interfaces, never concrete stores, so tests pass
// in-memory fakes and the server can swap SQLite for DynamoDB without
// touching this package. Nothing here knows about HTTP: errors are
// apperror values and redirects are returned as data.
//
// THE SERVICES:
//   - AuthService:    the Auth Gateway (login, register, guest, demo, logout)
//   - SessionCache:   mirrors the signed-in identity into the local store
//   - ProfileService: profiles/{uid} documents
//   - DataLoader:     the five public collections, with fallback
//   - SOSService:     location capture, emergency and silent SOS, history
//   - Dispatcher:     best-effort background writes of SOS events
//   - SafetyService:  preferences, emergency contacts, safety report
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sakif/rakshak/internal/apperror"
	"github.com/sakif/rakshak/internal/repository"
)

// Subscription is a handle on a registered callback. Close unregisters it
// and may be called any number of times.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// NewSubscription wraps cancel. Other packages use it to hand out
// subscriptions of their own.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// clock is swapped in tests.
type clock func() time.Time

func (c clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

// loadLocal decodes the JSON value at key into dst. It reports false,
// leaving dst untouched, when the key is unset.
func loadLocal(ctx context.Context, store repository.LocalStore, owner, key string, dst any) (bool, error) {
	raw, err := store.LoadValue(ctx, owner, key)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

func saveLocal(ctx context.Context, store repository.LocalStore, owner, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return store.SaveValue(ctx, owner, key, raw)
}

// appendLocal adds item to the JSON list at key in one atomic update.
func appendLocal[T any](ctx context.Context, store repository.LocalStore, owner, key string, item T) error {
	return store.UpdateValue(ctx, owner, key, func(cur []byte) ([]byte, error) {
		var list []T
		if len(cur) > 0 {
			if err := json.Unmarshal(cur, &list); err != nil {
				return nil, fmt.Errorf("decoding %s: %w", key, err)
			}
		}
		list = append(list, item)
		return json.Marshal(list)
	})
}

// loadList returns the JSON list at key, or an empty list when unset.
func loadList[T any](ctx context.Context, store repository.LocalStore, owner, key string) ([]T, error) {
	list := []T{}
	if _, err := loadLocal(ctx, store, owner, key, &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = []T{}
	}
	return list, nil
}
