package model

import "time"

// Local store keys. The values are opaque JSON owned by whoever writes them.
const (
	KeyUser              = "rakshak_user"
	KeySOSEvents         = "rakshak_sos_events"
	KeyPreferences       = "rakshak_preferences"
	KeyShareHistory      = "rakshak_share_history"
	KeyEmergencyContacts = "rakshak_emergency_contacts"
)

// EmergencyContact is a person the user wants notified. Stored in the
// user_contacts collection and mirrored into rakshak_emergency_contacts.
type EmergencyContact struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	Name      string    `json:"name"`
	Number    string    `json:"number"`
	Relation  string    `json:"relation,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Preferences are free-form user settings (alarm on/off, language...).
type Preferences struct {
	Values    map[string]string `json:"values"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// SafetyReport summarises a user's recent activity.
type SafetyReport struct {
	GeneratedAt    time.Time    `json:"generatedAt"`
	SOSEvents      int          `json:"sosEvents"`
	LastSOSEvent   *SOSEvent    `json:"lastSOSEvent"`
	LocationShares int          `json:"locationShares"`
	Preferences    *Preferences `json:"preferences"`
	SafetyScore    int          `json:"safetyScore"`
}

// Profile is the profiles/{uid} document. Extra holds whatever else callers
// merged in; the named fields are the ones the app itself maintains.
type Profile struct {
	UID         string         `json:"uid"`
	Email       string         `json:"email"`
	Name        string         `json:"name,omitempty"`
	IsActive    bool           `json:"isActive"`
	LastUpdated time.Time      `json:"lastUpdated"`
	Extra       map[string]any `json:"extra,omitempty"`
}
