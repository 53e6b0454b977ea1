package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sakif/rakshak/internal/apperror"
	"github.com/sakif/rakshak/internal/auth"
	"github.com/sakif/rakshak/internal/identity"
	"github.com/sakif/rakshak/internal/model"
	"github.com/sakif/rakshak/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// testLogger discards output; only errors would be interesting and the
// assertions already cover those.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

var errStoreDown = errors.New("store unavailable")

// fakeDocs is an in-memory repository.DocumentStore. It stores documents in
// the same normalized form as the real backends and answers queries with
// repository.ApplyQuery.
type fakeDocs struct {
	mu     sync.Mutex
	colls  map[string][]repository.Document
	nextID int

	// set to a non-nil error to simulate a failing backend
	listErr  map[string]error
	addErr   error
	mergeErr error
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{
		colls:   make(map[string][]repository.Document),
		listErr: make(map[string]error),
	}
}

func (f *fakeDocs) GetDocument(_ context.Context, collection, id string) (repository.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.index(collection, id); i >= 0 {
		return copyDoc(f.colls[collection][i]), nil
	}
	return nil, apperror.NotFound(collection, id)
}

func (f *fakeDocs) ListDocuments(_ context.Context, collection string, q repository.Query) ([]repository.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.listErr[collection]; err != nil {
		return nil, err
	}
	all := make([]repository.Document, 0, len(f.colls[collection]))
	for _, d := range f.colls[collection] {
		all = append(all, copyDoc(d))
	}
	return repository.ApplyQuery(all, q), nil
}

func (f *fakeDocs) AddDocument(_ context.Context, collection string, data repository.Document) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return "", f.addErr
	}
	f.nextID++
	id := fmt.Sprintf("doc-%d", f.nextID)
	merged, err := repository.MergeFields(nil, data)
	if err != nil {
		return "", err
	}
	doc, err := repository.Normalize(merged)
	if err != nil {
		return "", err
	}
	doc["id"] = id
	f.colls[collection] = append(f.colls[collection], doc)
	return id, nil
}

func (f *fakeDocs) MergeDocument(_ context.Context, collection, id string, data repository.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mergeErr != nil {
		return f.mergeErr
	}
	i := f.index(collection, id)
	var existing repository.Document
	if i >= 0 {
		existing = f.colls[collection][i]
	}
	merged, err := repository.MergeFields(existing, data)
	if err != nil {
		return err
	}
	doc, err := repository.Normalize(merged)
	if err != nil {
		return err
	}
	doc["id"] = id
	if i >= 0 {
		f.colls[collection][i] = doc
	} else {
		f.colls[collection] = append(f.colls[collection], doc)
	}
	return nil
}

// seed stores doc verbatim under id.
func (f *fakeDocs) seed(collection, id string, doc repository.Document) {
	d := copyDoc(doc)
	d["id"] = id
	f.mu.Lock()
	f.colls[collection] = append(f.colls[collection], d)
	f.mu.Unlock()
}

func (f *fakeDocs) count(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.colls[collection])
}

func (f *fakeDocs) doc(collection, id string) repository.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.index(collection, id); i >= 0 {
		return copyDoc(f.colls[collection][i])
	}
	return nil
}

func (f *fakeDocs) index(collection, id string) int {
	for i, d := range f.colls[collection] {
		if d.ID() == id {
			return i
		}
	}
	return -1
}

func copyDoc(d repository.Document) repository.Document {
	out := make(repository.Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// fakeLocal is an in-memory repository.LocalStore.
type fakeLocal struct {
	mu   sync.Mutex
	data map[string]map[string][]byte

	saveErr error
}

func newFakeLocal() *fakeLocal {
	return &fakeLocal{data: make(map[string]map[string][]byte)}
}

func (f *fakeLocal) LoadValue(_ context.Context, owner, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[owner][key]
	if !ok {
		return nil, apperror.NotFound("value", key)
	}
	return append([]byte(nil), v...), nil
}

func (f *fakeLocal) SaveValue(_ context.Context, owner, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.set(owner, key, value)
	return nil
}

func (f *fakeLocal) UpdateValue(_ context.Context, owner, key string, fn func([]byte) ([]byte, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	next, err := fn(f.data[owner][key])
	if err != nil {
		return err
	}
	if next == nil {
		delete(f.data[owner], key)
		return nil
	}
	f.set(owner, key, next)
	return nil
}

func (f *fakeLocal) DeleteValues(_ context.Context, owner string, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data[owner], k)
	}
	return nil
}

func (f *fakeLocal) has(owner, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[owner][key]
	return ok
}

func (f *fakeLocal) set(owner, key string, value []byte) {
	if f.data[owner] == nil {
		f.data[owner] = make(map[string][]byte)
	}
	f.data[owner][key] = append([]byte(nil), value...)
}

// fakeProvider is an identity.Provider with one configurable account.
type fakeProvider struct {
	mu       sync.Mutex
	users    map[string]*identity.User // keyed by email
	password map[string]string

	// returned from the matching call when non-nil
	signInErr error
	signUpErr error
	lookupErr error

	signInCalls int
	signedOut   []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		users:    make(map[string]*identity.User),
		password: make(map[string]string),
	}
}

func (f *fakeProvider) addUser(email, password string) *identity.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &identity.User{
		UID:       "uid-" + email,
		Email:     email,
		Kind:      model.KindAccount,
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	f.users[email] = u
	f.password[email] = password
	return u
}

func (f *fakeProvider) SignIn(_ context.Context, email, password string) (*identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signInCalls++
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	u, ok := f.users[email]
	if !ok {
		return nil, &identity.Error{Code: identity.CodeUserNotFound}
	}
	if f.password[email] != password {
		return nil, &identity.Error{Code: identity.CodeWrongPassword}
	}
	cp := *u
	return &cp, nil
}

func (f *fakeProvider) SignUp(_ context.Context, email, password string) (*identity.User, error) {
	if f.signUpErr != nil {
		return nil, f.signUpErr
	}
	f.mu.Lock()
	_, exists := f.users[email]
	f.mu.Unlock()
	if exists {
		return nil, &identity.Error{Code: identity.CodeEmailAlreadyInUse}
	}
	u := f.addUser(email, password)
	cp := *u
	return &cp, nil
}

func (f *fakeProvider) UpdateDisplayName(_ context.Context, uid, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.UID == uid {
			u.DisplayName = name
			return nil
		}
	}
	return &identity.Error{Code: identity.CodeUserNotFound}
}

func (f *fakeProvider) SignOut(_ context.Context, uid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signedOut = append(f.signedOut, uid)
	return nil
}

func (f *fakeProvider) Lookup(_ context.Context, uid string) (*identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	for _, u := range f.users {
		if u.UID == uid {
			cp := *u
			return &cp, nil
		}
	}
	return nil, &identity.Error{Code: identity.CodeUserNotFound}
}

func (f *fakeProvider) LookupEmail(_ context.Context, email string) (*identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if u, ok := f.users[email]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, &identity.Error{Code: identity.CodeUserNotFound}
}

func (f *fakeProvider) SignInGitHub(_ context.Context, gh *auth.GitHubUser) (*identity.User, error) {
	email := gh.Email
	if email == "" {
		email = fmt.Sprintf("%d+%s@users.noreply.github.com", gh.ID, gh.Login)
	}
	u := f.addUser(email, "")
	u.Kind = model.KindGitHub
	u.DisplayName = gh.DisplayName()
	cp := *u
	return &cp, nil
}

func (f *fakeProvider) remove(email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, email)
}

// fakeAlerter records alarm cues. playErr makes PlayAlarm fail so the
// flash path runs.
type fakeAlerter struct {
	mu       sync.Mutex
	playErr  error
	flashErr error
	tones    []Tone
	flashes  []FlashPattern
}

func (f *fakeAlerter) PlayAlarm(_ context.Context, _ string, tone Tone) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playErr != nil {
		return f.playErr
	}
	f.tones = append(f.tones, tone)
	return nil
}

func (f *fakeAlerter) Flash(_ context.Context, _ string, p FlashPattern) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flashErr != nil {
		return f.flashErr
	}
	f.flashes = append(f.flashes, p)
	return nil
}

type fakeClipboard struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeClipboard) WriteText(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.texts = append(f.texts, text)
	return nil
}

func newTestTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

func newTestSession(t *testing.T, local repository.LocalStore) *SessionCache {
	t.Helper()
	s := NewSessionCache(local, time.Minute, testLogger())
	t.Cleanup(s.Close)
	return s
}

// fixedClock returns a clock stuck at t.
func fixedClock(t time.Time) clock {
	return func() time.Time { return t }
}

// steppingClock advances by step on every reading.
func steppingClock(start time.Time, step time.Duration) clock {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(step)
		return t
	}
}
