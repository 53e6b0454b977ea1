package handler_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/rakshak/internal/auth"
	"github.com/sakif/rakshak/internal/model"
	"github.com/sakif/rakshak/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// withUser attaches a session subject the way auth.RequireAuth would.
func withUser(r *http.Request, uid string, kind model.IdentityKind) *http.Request {
	return r.WithContext(auth.WithSubject(r.Context(), &auth.Subject{
		UserID: uid,
		Email:  uid + "@example.com",
		Kind:   string(kind),
	}))
}

// MockGateway implements handler.AuthGateway with canned results.
type MockGateway struct {
	LoginRes   *service.AuthResult
	LoginErr   error
	CurrentID  *model.Identity
	CurrentErr error
	LogoutUID  string
	Guest      bool
	Demo       bool

	CapturedEmail    string
	CapturedRegister service.RegisterInput
}

func (m *MockGateway) Login(ctx context.Context, email, password string) (*service.AuthResult, error) {
	m.CapturedEmail = email
	return m.LoginRes, m.LoginErr
}

func (m *MockGateway) LoginGitHub(ctx context.Context, gh *auth.GitHubUser) (*service.AuthResult, error) {
	return m.LoginRes, m.LoginErr
}

func (m *MockGateway) Register(ctx context.Context, in service.RegisterInput) (*service.AuthResult, error) {
	m.CapturedRegister = in
	return m.LoginRes, m.LoginErr
}

func (m *MockGateway) CreateGuest(ctx context.Context, email string) (*service.AuthResult, error) {
	m.CapturedEmail = email
	return m.LoginRes, m.LoginErr
}

func (m *MockGateway) LoginDemo(ctx context.Context) (*service.AuthResult, error) {
	return m.LoginRes, m.LoginErr
}

func (m *MockGateway) Logout(ctx context.Context, uid string) (*service.LogoutResult, error) {
	m.LogoutUID = uid
	return &service.LogoutResult{Message: "Logged out", Redirect: service.RedirectLogin}, nil
}

func (m *MockGateway) Current(ctx context.Context, uid string) (*model.Identity, error) {
	return m.CurrentID, m.CurrentErr
}

func (m *MockGateway) GuestAllowed() bool { return m.Guest }
func (m *MockGateway) DemoAllowed() bool  { return m.Demo }

// MockSOS implements handler.SOSReporter.
type MockSOS struct {
	Event       *model.SOSEvent
	Events      []model.SOSEvent
	Err         error
	Captured    *model.Location
	CapturedErr error
	Confirmed   bool
	Limit       int
}

func (m *MockSOS) CaptureLocation(ctx context.Context, uid string, fix *model.Location, captureErr error) (*model.Location, error) {
	m.Captured, m.CapturedErr = fix, captureErr
	if m.Err != nil {
		return nil, m.Err
	}
	return fix, nil
}

func (m *MockSOS) TriggerEmergency(ctx context.Context, uid string, confirmed bool) (*model.SOSEvent, error) {
	m.Confirmed = confirmed
	return m.Event, m.Err
}

func (m *MockSOS) TriggerSilent(ctx context.Context, uid string) (*service.SilentResult, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return &service.SilentResult{Event: m.Event, Text: "help"}, nil
}

func (m *MockSOS) ShareLocation(ctx context.Context, uid, contactName, contactNumber string) (string, error) {
	return "I am here", m.Err
}

func (m *MockSOS) LocalEvents(ctx context.Context, uid string) ([]model.SOSEvent, error) {
	return m.Events, m.Err
}

func (m *MockSOS) History(ctx context.Context, uid string, limit int) ([]model.SOSEvent, error) {
	m.Limit = limit
	return m.Events, m.Err
}

// MockData implements handler.PublicDataSource.
type MockData struct {
	Data *model.PublicData
	Err  error
}

func (m *MockData) LoadAll(ctx context.Context) *model.PublicData {
	if m.Data == nil {
		return &model.PublicData{}
	}
	return m.Data
}

func (m *MockData) Collection(ctx context.Context, name string) ([]model.Resource, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.LoadAll(ctx).Section(name), nil
}

// MockSafety implements handler.SafetyExtras and handler.Profiles.
type MockSafety struct {
	Prefs    *model.Preferences
	Contacts []model.EmergencyContact
	Profile  *model.Profile
	Err      error

	SavedValues map[string]string
}

func (m *MockSafety) SavePreferences(ctx context.Context, uid string, values map[string]string) (*model.Preferences, error) {
	m.SavedValues = values
	return &model.Preferences{Values: values}, m.Err
}

func (m *MockSafety) Preferences(ctx context.Context, uid string) (*model.Preferences, error) {
	return m.Prefs, m.Err
}

func (m *MockSafety) AddEmergencyContact(ctx context.Context, uid string, c model.EmergencyContact) (*model.EmergencyContact, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	c.ID = "c1"
	c.UserID = uid
	return &c, nil
}

func (m *MockSafety) EmergencyContacts(ctx context.Context, uid string) ([]model.EmergencyContact, error) {
	return m.Contacts, m.Err
}

func (m *MockSafety) Report(ctx context.Context, uid string) (*model.SafetyReport, error) {
	return &model.SafetyReport{SafetyScore: 100}, m.Err
}

func (m *MockSafety) Upsert(ctx context.Context, uid, email string, fields map[string]any) (*model.Profile, error) {
	return &model.Profile{UID: uid, Email: email, Extra: fields}, m.Err
}

func (m *MockSafety) Get(ctx context.Context, uid string) (*model.Profile, error) {
	return m.Profile, m.Err
}
