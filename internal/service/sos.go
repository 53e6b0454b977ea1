package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/rakshak/internal/apperror"
	"github.com/sakif/rakshak/internal/cache"
	"github.com/sakif/rakshak/internal/geo"
	"github.com/sakif/rakshak/internal/metrics"
	"github.com/sakif/rakshak/internal/model"
	"github.com/sakif/rakshak/internal/repository"
)

// Default limits for History and SubscribeHistory.
const (
	DefaultHistoryLimit      = 20
	DefaultSubscriptionLimit = 10
)

// DefaultLocationTTL is how long a captured location stays usable.
const DefaultLocationTTL = 30 * time.Minute

// DemoLatitude and DemoLongitude are used when the device cannot report a
// position and the demo fallback is on (central New Delhi).
const (
	DemoLatitude  = 28.6139
	DemoLongitude = 77.2090
)

// Notices shown briefly after a silent SOS, depending on whether the
// location reached the clipboard.
const (
	SilentNotice           = "Silent SOS activated. Location copied to clipboard."
	SilentNoticeCopyFailed = "Silent SOS activated but could not copy location. Please note it down manually."
)

// ErrSessionEnded is returned when an SOS arrives for a uid whose session
// is no longer mirrored, e.g. a token still in use after logout.
var ErrSessionEnded = apperror.Unauthorized("Your session has ended. Please log in again.")

// ErrLocationRequired is returned by every SOS operation that runs before a
// location was captured.
var ErrLocationRequired = &apperror.AppError{
	Err:     apperror.ErrValidation,
	Field:   "location",
	Message: "Location not available. Please enable location services and try again.",
}

// Tone is an alarm sound cue.
type Tone struct {
	FrequencyHz int
	Duration    time.Duration
}

// FlashPattern is the visual alarm used when sound is unavailable.
type FlashPattern struct {
	Count    int
	Interval time.Duration
}

// The alarm an emergency SOS raises on the user's device.
var (
	AlarmTone  = Tone{FrequencyHz: 800, Duration: time.Second}
	AlarmFlash = FlashPattern{Count: 5, Interval: 200 * time.Millisecond}
)

// Alerter raises an alarm on the user's device.
type Alerter interface {
	PlayAlarm(ctx context.Context, uid string, tone Tone) error
	Flash(ctx context.Context, uid string, pattern FlashPattern) error
}

// Clipboard puts text on the user's clipboard.
type Clipboard interface {
	WriteText(ctx context.Context, uid, text string) error
}

// SOSOptions configure the SOSService.
type SOSOptions struct {
	DemoFallback bool
	LocationTTL  time.Duration
}

// SilentResult is what a silent SOS hands back to the caller.
type SilentResult struct {
	Event  *model.SOSEvent `json:"event"`
	Text   string          `json:"text"`
	Notice string          `json:"notice"`
}

type historyListener struct {
	uid   string
	limit int
	fn    func([]model.SOSEvent)
}

// SOSService is the SOS Reporter.
//
// Every SOS is recorded locally first and only then handed to the
// Dispatcher. A local write failure fails the SOS; a remote one never does.
// History subscribers for the uid are notified after the remote write was
// attempted (or right away for guests, who are never written remotely).
type SOSService struct {
	local      repository.LocalStore
	docs       repository.DocumentStore
	session    *SessionCache
	dispatcher *Dispatcher
	alerter    Alerter
	clipboard  Clipboard
	metrics    *metrics.Metrics
	opts       SOSOptions
	logger     *slog.Logger
	now        clock

	locations *cache.TTLCache[string, model.Location]

	mu        sync.RWMutex
	listeners map[uint64]historyListener
	nextID    uint64
}

func NewSOSService(
	local repository.LocalStore,
	docs repository.DocumentStore,
	session *SessionCache,
	dispatcher *Dispatcher,
	alerter Alerter,
	clipboard Clipboard,
	m *metrics.Metrics,
	opts SOSOptions,
	logger *slog.Logger,
) *SOSService {
	ttl := opts.LocationTTL
	if ttl <= 0 {
		ttl = DefaultLocationTTL
	}
	return &SOSService{
		local:      local,
		docs:       docs,
		session:    session,
		dispatcher: dispatcher,
		alerter:    alerter,
		clipboard:  clipboard,
		metrics:    m,
		opts:       opts,
		logger:     logger,
		locations:  cache.New[string, model.Location](ttl, ttl),
		listeners:  make(map[uint64]historyListener),
	}
}

// CaptureLocation stores the result of a one-shot geolocation request.
//
// captureErr is the device's failure (permission denied, unavailable,
// timeout). When it is set, or fix is nil, the demo coordinate is stored
// instead if the demo fallback is enabled.
func (s *SOSService) CaptureLocation(ctx context.Context, uid string, fix *model.Location, captureErr error) (*model.Location, error) {
	if captureErr == nil && fix != nil {
		if !fix.Valid() {
			return nil, apperror.ValidationFailed("location", "Invalid coordinates.")
		}
		loc := *fix
		loc.Source = model.SourceDevice
		if loc.Timestamp.IsZero() {
			loc.Timestamp = s.now.now()
		}
		s.locations.Set(uid, loc)
		return &loc, nil
	}

	reason := "no position reported"
	if captureErr != nil {
		reason = captureErr.Error()
	}

	if !s.opts.DemoFallback {
		s.logger.Info("location unavailable", slog.String("uid", uid), slog.String("reason", reason))
		return nil, apperror.ValidationFailed("location", "Unable to get your location. Please enable location services.")
	}

	loc := model.Location{
		Latitude:  DemoLatitude,
		Longitude: DemoLongitude,
		Timestamp: s.now.now(),
		Source:    model.SourceDemo,
	}
	s.locations.Set(uid, loc)
	s.logger.Warn("location unavailable, using demo location",
		slog.String("uid", uid),
		slog.String("reason", reason),
	)
	return &loc, nil
}

// LastLocation returns the captured location for uid, if any.
func (s *SOSService) LastLocation(uid string) (model.Location, bool) {
	return s.locations.Get(uid)
}

// Forget drops the captured location for uid. Called on sign-out.
func (s *SOSService) Forget(uid string) {
	s.locations.Delete(uid)
}

// TriggerEmergency raises the alarm and records an emergency SOS. The user
// must have confirmed the action.
func (s *SOSService) TriggerEmergency(ctx context.Context, uid string, confirmed bool) (*model.SOSEvent, error) {
	loc, ok := s.locations.Get(uid)
	if !ok {
		return nil, ErrLocationRequired
	}
	if !confirmed {
		return nil, apperror.ValidationFailed("confirmed", "Emergency SOS requires confirmation.")
	}
	id, err := s.sessionIdentity(ctx, uid)
	if err != nil {
		return nil, err
	}

	s.alert(ctx, uid)
	return s.record(ctx, uid, id, model.EventEmergency, loc)
}

// TriggerSilent records a silent SOS and copies the location to the
// clipboard. No alarm is raised and no confirmation is asked for.
func (s *SOSService) TriggerSilent(ctx context.Context, uid string) (*SilentResult, error) {
	loc, ok := s.locations.Get(uid)
	if !ok {
		return nil, ErrLocationRequired
	}

	id, err := s.sessionIdentity(ctx, uid)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(loc)
	if err != nil {
		return nil, fmt.Errorf("service/sos: encoding location: %w", err)
	}
	text := "I need help! My location is: " + string(raw)

	notice := SilentNoticeCopyFailed
	if s.clipboard != nil {
		if err := s.clipboard.WriteText(ctx, uid, text); err != nil {
			s.logger.Warn("clipboard write failed", slog.String("uid", uid), slog.String("error", err.Error()))
		} else {
			notice = SilentNotice
		}
	}

	ev, err := s.record(ctx, uid, id, model.EventSilent, loc)
	if err != nil {
		return nil, err
	}
	return &SilentResult{Event: ev, Text: text, Notice: notice}, nil
}

// ShareLocation records a share with a contact and returns the message to send.
func (s *SOSService) ShareLocation(ctx context.Context, uid, contactName, contactNumber string) (string, error) {
	loc, ok := s.locations.Get(uid)
	if !ok {
		return "", ErrLocationRequired
	}

	now := s.now.now()
	rec := model.ShareRecord{
		ContactName:   contactName,
		ContactNumber: contactNumber,
		Location:      model.SharePosition{Lat: loc.Latitude, Lng: loc.Longitude, Timestamp: now},
		Timestamp:     now,
	}
	if err := appendLocal(ctx, s.local, uid, model.KeyShareHistory, rec); err != nil {
		return "", fmt.Errorf("service/sos: recording share: %w", err)
	}

	return "My current location: " + geo.FormatCoordinates(loc.Latitude, loc.Longitude), nil
}

// LocalEvents returns the events recorded locally for uid, oldest first.
func (s *SOSService) LocalEvents(ctx context.Context, uid string) ([]model.SOSEvent, error) {
	events, err := loadList[model.SOSEvent](ctx, s.local, uid, model.KeySOSEvents)
	if err != nil {
		return nil, fmt.Errorf("service/sos: %w", err)
	}
	return events, nil
}

// History returns the remotely stored events for uid, newest first.
func (s *SOSService) History(ctx context.Context, uid string, limit int) ([]model.SOSEvent, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	docs, err := s.docs.ListDocuments(ctx, model.CollectionSOSEvents, repository.Query{
		Where:   []repository.Filter{{Field: "userId", Value: uid}},
		OrderBy: "timestamp",
		Desc:    true,
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("service/sos: listing history for %s: %w", uid, err)
	}

	events := make([]model.SOSEvent, 0, len(docs))
	for _, doc := range docs {
		var ev model.SOSEvent
		if err := repository.Decode(doc, &ev); err != nil {
			return nil, fmt.Errorf("service/sos: %w", err)
		}
		ev.ID = doc.ID()
		events = append(events, ev)
	}
	return events, nil
}

// SubscribeHistory calls fn with the current history snapshot right away
// and again after every new event for uid. Close the returned Subscription
// to stop delivery.
func (s *SOSService) SubscribeHistory(ctx context.Context, uid string, limit int, fn func([]model.SOSEvent)) (*Subscription, error) {
	if limit <= 0 {
		limit = DefaultSubscriptionLimit
	}

	snap, err := s.snapshot(ctx, uid, limit)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = historyListener{uid: uid, limit: limit, fn: fn}
	s.mu.Unlock()

	fn(snap)

	return NewSubscription(func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}), nil
}

func (s *SOSService) Close() {
	s.locations.Close()
}

func (s *SOSService) alert(ctx context.Context, uid string) {
	if s.alerter == nil {
		return
	}
	err := s.alerter.PlayAlarm(ctx, uid, AlarmTone)
	if err == nil {
		return
	}
	s.logger.Info("alarm tone unavailable, flashing instead", slog.String("uid", uid), slog.String("error", err.Error()))
	if err := s.alerter.Flash(ctx, uid, AlarmFlash); err != nil {
		s.logger.Warn("visual alarm failed", slog.String("uid", uid), slog.String("error", err.Error()))
	}
}

// sessionIdentity resolves the mirrored identity an SOS is recorded under.
func (s *SOSService) sessionIdentity(ctx context.Context, uid string) (*model.Identity, error) {
	id, err := s.session.Current(ctx, uid)
	if err == nil {
		return id, nil
	}
	if errors.Is(err, apperror.ErrNotFound) {
		s.logger.Warn("SOS without a mirrored session", slog.String("uid", uid))
		return nil, ErrSessionEnded
	}
	return nil, fmt.Errorf("service/sos: %w", err)
}

func (s *SOSService) record(ctx context.Context, uid string, id *model.Identity, typ model.EventType, loc model.Location) (*model.SOSEvent, error) {
	ev := model.SOSEvent{
		ID:        xid.New().String(),
		Type:      typ,
		Location:  loc,
		Timestamp: s.now.now(),
		UserID:    uid,
		UserEmail: id.Email,
		Status:    model.StatusActivated,
	}
	if err := appendLocal(ctx, s.local, uid, model.KeySOSEvents, ev); err != nil {
		return nil, fmt.Errorf("service/sos: recording event: %w", err)
	}

	s.metrics.SOSRecorded(string(typ))
	s.logger.Info("SOS triggered",
		slog.String("uid", uid),
		slog.String("type", string(typ)),
		slog.String("source", string(loc.Source)),
	)

	if id.Remote() && s.dispatcher != nil {
		if s.dispatcher.Enqueue(DispatchJob{Event: ev, After: func() { s.publish(uid) }}) {
			return &ev, nil
		}
	}
	s.publish(uid)
	return &ev, nil
}

// publish sends a fresh snapshot to every history listener for uid.
func (s *SOSService) publish(uid string) {
	s.mu.RLock()
	var targets []historyListener
	for _, l := range s.listeners {
		if l.uid == uid {
			targets = append(targets, l)
		}
	}
	s.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), remoteWriteTimeout)
	defer cancel()

	for _, l := range targets {
		snap, err := s.snapshot(ctx, uid, l.limit)
		if err != nil {
			s.logger.Error("building SOS history snapshot failed", slog.String("uid", uid), slog.String("error", err.Error()))
			return
		}
		l.fn(snap)
	}
}

// snapshot is the remote history for provider-backed identities and the
// local list, newest first, for everyone else.
func (s *SOSService) snapshot(ctx context.Context, uid string, limit int) ([]model.SOSEvent, error) {
	if id, err := s.session.Current(ctx, uid); err == nil && id.Remote() {
		return s.History(ctx, uid, limit)
	}

	events, err := s.LocalEvents(ctx, uid)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}
