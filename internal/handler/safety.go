package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/rakshak/internal/apperror"
	"github.com/sakif/rakshak/internal/auth"
	"github.com/sakif/rakshak/internal/model"
)

// SafetyExtras is the per-user safety toolkit. *service.SafetyService
// satisfies it.
type SafetyExtras interface {
	SavePreferences(ctx context.Context, uid string, values map[string]string) (*model.Preferences, error)
	Preferences(ctx context.Context, uid string) (*model.Preferences, error)
	AddEmergencyContact(ctx context.Context, uid string, c model.EmergencyContact) (*model.EmergencyContact, error)
	EmergencyContacts(ctx context.Context, uid string) ([]model.EmergencyContact, error)
	Report(ctx context.Context, uid string) (*model.SafetyReport, error)
}

// Profiles manages profiles/{uid}. *service.ProfileService satisfies it.
type Profiles interface {
	Upsert(ctx context.Context, uid, email string, fields map[string]any) (*model.Profile, error)
	Get(ctx context.Context, uid string) (*model.Profile, error)
}

// SafetyHandler serves preferences, personal emergency contacts, the safety
// report and the profile document. Every route requires a session.
type SafetyHandler struct {
	safety   SafetyExtras
	profiles Profiles
	logger   *slog.Logger
}

func NewSafetyHandler(safety SafetyExtras, profiles Profiles, logger *slog.Logger) *SafetyHandler {
	return &SafetyHandler{safety: safety, profiles: profiles, logger: logger}
}

// HandleGetPreferences
//
// HTTP: GET /api/preferences
func (h *SafetyHandler) HandleGetPreferences(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	prefs, err := h.safety.Preferences(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// HandleSavePreferences merges the posted values into the stored ones.
//
// HTTP: PUT /api/preferences
// REQUEST BODY: {"alarmSound": "on", "language": "hi"}
func (h *SafetyHandler) HandleSavePreferences(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	var values map[string]string
	if err := decodeJSON(r, &values); err != nil {
		writeError(w, err)
		return
	}
	if len(values) == 0 {
		writeError(w, apperror.ValidationFailed("", "No preferences to save"))
		return
	}

	prefs, err := h.safety.SavePreferences(r.Context(), uid, values)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// HandleListContacts returns the caller's personal emergency contacts,
// newest first.
//
// HTTP: GET /api/contacts
func (h *SafetyHandler) HandleListContacts(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	contacts, err := h.safety.EmergencyContacts(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(contacts))
}

// HandleAddContact adds a personal emergency contact.
//
// HTTP: POST /api/contacts
// REQUEST BODY: {"name": "Mom", "number": "+91...", "relation": "mother"}
func (h *SafetyHandler) HandleAddContact(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Name     string `json:"name"`
		Number   string `json:"number"`
		Relation string `json:"relation"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	c, err := h.safety.AddEmergencyContact(r.Context(), uid, model.EmergencyContact{
		Name:     req.Name,
		Number:   req.Number,
		Relation: req.Relation,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HandleReport returns the caller's safety report.
//
// HTTP: GET /api/report
func (h *SafetyHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	report, err := h.safety.Report(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleGetProfile
//
// HTTP: GET /api/profile
func (h *SafetyHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.profileSubject(w, r)
	if !ok {
		return
	}
	p, err := h.profiles.Get(r.Context(), sub.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleUpdateProfile merges the posted fields into the profile.
//
// HTTP: PUT /api/profile
// REQUEST BODY: {"name": "Asha", "city": "Delhi"}
func (h *SafetyHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.profileSubject(w, r)
	if !ok {
		return
	}

	var fields map[string]any
	if err := decodeJSON(r, &fields); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.profiles.Upsert(r.Context(), sub.UserID, sub.Email, fields)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// profileSubject admits provider-backed identities only. Guests and demo
// users have no document in the shared store.
func (h *SafetyHandler) profileSubject(w http.ResponseWriter, r *http.Request) (*auth.Subject, bool) {
	sub, ok := auth.SubjectFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Please log in to continue."))
		return nil, false
	}
	id := model.Identity{Kind: model.IdentityKind(sub.Kind)}
	if !id.Remote() {
		writeError(w, apperror.Forbidden("Profiles are only available for registered accounts."))
		return nil, false
	}
	return sub, true
}
