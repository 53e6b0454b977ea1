package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/rakshak/internal/apperror"
	"github.com/sakif/rakshak/internal/metrics"
	"github.com/sakif/rakshak/internal/model"
	"github.com/sakif/rakshak/internal/repository"
)

// Safety score parameters.
const (
	maxSafetyScore   = 100
	recentSOSPenalty = 10
	monthSOSPenalty  = 5
	sharePoints      = 2
	maxSharePoints   = 10
	recentWindow     = 7 * 24 * time.Hour
	monthWindow      = 30 * 24 * time.Hour
)

// SafetyService holds the per-user extras: preferences, personal emergency
// contacts and the safety report.
type SafetyService struct {
	local   repository.LocalStore
	docs    repository.DocumentStore
	session *SessionCache
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     clock
}

func NewSafetyService(local repository.LocalStore, docs repository.DocumentStore, session *SessionCache, m *metrics.Metrics, logger *slog.Logger) *SafetyService {
	return &SafetyService{
		local:   local,
		docs:    docs,
		session: session,
		metrics: m,
		logger:  logger,
	}
}

// SavePreferences merges values into the stored preferences. Existing keys
// not present in values are kept.
func (s *SafetyService) SavePreferences(ctx context.Context, uid string, values map[string]string) (*model.Preferences, error) {
	var prefs model.Preferences
	err := s.local.UpdateValue(ctx, uid, model.KeyPreferences, func(cur []byte) ([]byte, error) {
		if len(cur) > 0 {
			if err := json.Unmarshal(cur, &prefs); err != nil {
				return nil, fmt.Errorf("decoding preferences: %w", err)
			}
		}
		if prefs.Values == nil {
			prefs.Values = make(map[string]string, len(values))
		}
		for k, v := range values {
			prefs.Values[k] = v
		}
		prefs.UpdatedAt = s.now.now()
		return json.Marshal(prefs)
	})
	if err != nil {
		return nil, fmt.Errorf("service/safety: saving preferences: %w", err)
	}
	return &prefs, nil
}

// Preferences returns the stored preferences, empty when none were saved.
func (s *SafetyService) Preferences(ctx context.Context, uid string) (*model.Preferences, error) {
	var prefs model.Preferences
	if _, err := loadLocal(ctx, s.local, uid, model.KeyPreferences, &prefs); err != nil {
		return nil, fmt.Errorf("service/safety: %w", err)
	}
	if prefs.Values == nil {
		prefs.Values = map[string]string{}
	}
	return &prefs, nil
}

// AddEmergencyContact stores a personal contact locally and, for
// provider-backed identities, in user_contacts. The remote add is best effort.
func (s *SafetyService) AddEmergencyContact(ctx context.Context, uid string, c model.EmergencyContact) (*model.EmergencyContact, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Number = strings.TrimSpace(c.Number)
	c.Relation = strings.TrimSpace(c.Relation)
	if c.Name == "" || c.Number == "" {
		return nil, apperror.ValidationFailed("contact", "Please enter both name and number")
	}

	c.ID = xid.New().String()
	c.UserID = uid
	c.CreatedAt = s.now.now()

	if err := appendLocal(ctx, s.local, uid, model.KeyEmergencyContacts, c); err != nil {
		return nil, fmt.Errorf("service/safety: saving contact: %w", err)
	}

	if s.remote(ctx, uid) {
		doc := repository.Document{
			"userId":    uid,
			"name":      c.Name,
			"number":    c.Number,
			"relation":  c.Relation,
			"createdAt": c.CreatedAt,
		}
		if _, err := s.docs.AddDocument(ctx, model.CollectionUserContacts, doc); err != nil {
			s.metrics.RemoteWriteFailed(model.CollectionUserContacts)
			s.logger.Error("remote contact write failed", slog.String("uid", uid), slog.String("error", err.Error()))
		}
	}
	return &c, nil
}

// EmergencyContacts returns the user's contacts, newest first. Guests and
// failed remote reads get the local list.
func (s *SafetyService) EmergencyContacts(ctx context.Context, uid string) ([]model.EmergencyContact, error) {
	if s.remote(ctx, uid) {
		contacts, err := s.remoteContacts(ctx, uid)
		if err == nil {
			return contacts, nil
		}
		s.logger.Warn("remote contacts unavailable, using local copy", slog.String("uid", uid), slog.String("error", err.Error()))
	}

	local, err := loadList[model.EmergencyContact](ctx, s.local, uid, model.KeyEmergencyContacts)
	if err != nil {
		return nil, fmt.Errorf("service/safety: %w", err)
	}
	for i, j := 0, len(local)-1; i < j; i, j = i+1, j-1 {
		local[i], local[j] = local[j], local[i]
	}
	return local, nil
}

func (s *SafetyService) remoteContacts(ctx context.Context, uid string) ([]model.EmergencyContact, error) {
	docs, err := s.docs.ListDocuments(ctx, model.CollectionUserContacts, repository.Query{
		Where:   []repository.Filter{{Field: "userId", Value: uid}},
		OrderBy: "createdAt",
		Desc:    true,
	})
	if err != nil {
		return nil, err
	}

	contacts := make([]model.EmergencyContact, 0, len(docs))
	for _, doc := range docs {
		var c model.EmergencyContact
		if err := repository.Decode(doc, &c); err != nil {
			return nil, err
		}
		c.ID = doc.ID()
		contacts = append(contacts, c)
	}
	return contacts, nil
}

// Report summarises the locally recorded activity of uid.
func (s *SafetyService) Report(ctx context.Context, uid string) (*model.SafetyReport, error) {
	events, err := loadList[model.SOSEvent](ctx, s.local, uid, model.KeySOSEvents)
	if err != nil {
		return nil, fmt.Errorf("service/safety: %w", err)
	}
	shares, err := loadList[model.ShareRecord](ctx, s.local, uid, model.KeyShareHistory)
	if err != nil {
		return nil, fmt.Errorf("service/safety: %w", err)
	}
	prefs, err := s.Preferences(ctx, uid)
	if err != nil {
		return nil, err
	}

	now := s.now.now()
	report := &model.SafetyReport{
		GeneratedAt:    now,
		SOSEvents:      len(events),
		LocationShares: len(shares),
		Preferences:    prefs,
		SafetyScore:    SafetyScore(now, events, shares),
	}
	if len(events) > 0 {
		last := events[len(events)-1]
		report.LastSOSEvent = &last
	}
	return report, nil
}

// SafetyScore rates recent activity from 0 to 100. Every SOS in the last
// week costs 10 points and every older one within a month costs 5. Shares
// in the last week add 2 points each, at most 10.
func SafetyScore(now time.Time, events []model.SOSEvent, shares []model.ShareRecord) int {
	score := maxSafetyScore

	for _, ev := range events {
		age := now.Sub(ev.Timestamp)
		switch {
		case age < recentWindow:
			score -= recentSOSPenalty
		case age < monthWindow:
			score -= monthSOSPenalty
		}
	}

	recent := 0
	for _, sh := range shares {
		if now.Sub(sh.Timestamp) < recentWindow {
			recent++
		}
	}
	score += min(recent*sharePoints, maxSharePoints)

	return max(0, min(maxSafetyScore, score))
}

func (s *SafetyService) remote(ctx context.Context, uid string) bool {
	id, err := s.session.Current(ctx, uid)
	return err == nil && id.Remote()
}
