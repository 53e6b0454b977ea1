package model

import "time"

// Public collection names in the document store.
const (
	CollectionSafetyTips        = "safety_tips"
	CollectionEmergencyContacts = "emergency_contacts"
	CollectionAmbulance         = "ambulance"
	CollectionCyberCrime        = "cyber_crime"
	CollectionDomesticViolence  = "domestic_violence"
)

// Per-user collections, all written with merge-upsert semantics.
const (
	CollectionUsers        = "users"
	CollectionProfiles     = "profiles"
	CollectionUserContacts = "user_contacts"
	CollectionSOSEvents    = "sos_events"
)

// PublicCollections lists the five read-only resource collections in render order.
var PublicCollections = []string{
	CollectionSafetyTips,
	CollectionEmergencyContacts,
	CollectionAmbulance,
	CollectionCyberCrime,
	CollectionDomesticViolence,
}

// IsPublicCollection reports whether name is one of PublicCollections.
func IsPublicCollection(name string) bool {
	for _, c := range PublicCollections {
		if c == name {
			return true
		}
	}
	return false
}

// Resource is one tip, contact, or helpline entry. Documents are free-form,
// so every field may be missing; see NormalizeResource.
type Resource struct {
	ID          string `json:"id"`
	Collection  string `json:"collection"`
	Title       string `json:"title,omitempty"`
	Name        string `json:"name,omitempty"`
	Number      string `json:"number,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Content     string `json:"content,omitempty"`
}

// PublicData is one load of all five public collections.
//
// Fallback is true when the load failed and the built-in fallback set was
// substituted. The page still renders in that case, it just shows less.
type PublicData struct {
	SafetyTips        []Resource `json:"safetyTips"`
	EmergencyContacts []Resource `json:"emergencyContacts"`
	Ambulance         []Resource `json:"ambulance"`
	CyberCrime        []Resource `json:"cyberCrime"`
	DomesticViolence  []Resource `json:"domesticViolence"`
	Fallback          bool       `json:"fallback"`
	LoadedAt          time.Time  `json:"loadedAt"`
}

// Section returns the slice for a collection name, or nil for unknown names.
func (p *PublicData) Section(collection string) []Resource {
	switch collection {
	case CollectionSafetyTips:
		return p.SafetyTips
	case CollectionEmergencyContacts:
		return p.EmergencyContacts
	case CollectionAmbulance:
		return p.Ambulance
	case CollectionCyberCrime:
		return p.CyberCrime
	case CollectionDomesticViolence:
		return p.DomesticViolence
	}
	return nil
}

// SetSection is the write side of Section.
func (p *PublicData) SetSection(collection string, items []Resource) {
	switch collection {
	case CollectionSafetyTips:
		p.SafetyTips = items
	case CollectionEmergencyContacts:
		p.EmergencyContacts = items
	case CollectionAmbulance:
		p.Ambulance = items
	case CollectionCyberCrime:
		p.CyberCrime = items
	case CollectionDomesticViolence:
		p.DomesticViolence = items
	}
}

// FallbackTip and FallbackContact are what the dashboard shows when the
// public collections cannot be loaded at all.
var (
	FallbackTip = Resource{
		ID:          "fallback-tip",
		Collection:  CollectionSafetyTips,
		Title:       "Stay Safe",
		Description: "Always be aware of your surroundings",
		Category:    "general",
	}
	FallbackContact = Resource{
		ID:          "fallback-contact",
		Collection:  CollectionEmergencyContacts,
		Name:        "Police",
		Number:      "100",
		Description: "Emergency police",
	}
)

// resourceDefaults holds the placeholder text per collection.
type resourceDefaults struct {
	label       string
	number      string
	description string
}

var defaultsByCollection = map[string]resourceDefaults{
	CollectionSafetyTips:        {label: "Safety Tip", description: "Important safety information"},
	CollectionEmergencyContacts: {label: "Emergency", number: "N/A", description: "Emergency contact"},
	CollectionAmbulance:         {label: "Ambulance", number: "Call for help", description: "24/7 ambulance service"},
	CollectionCyberCrime:        {label: "Cyber Help", number: "Report cyber crime", description: "Cyber security resource"},
	CollectionDomesticViolence:  {label: "Support", number: "Get help", description: "Domestic violence support"},
}

// NormalizeResource fills missing display fields with the collection's
// placeholders. Tips are titled; every other collection is named and numbered.
// Cyber-crime entries fall back to content before the placeholder description.
func NormalizeResource(r Resource) Resource {
	d, ok := defaultsByCollection[r.Collection]
	if !ok {
		return r
	}

	if r.Collection == CollectionSafetyTips {
		if r.Title == "" {
			r.Title = d.label
		}
	} else {
		if r.Name == "" {
			r.Name = d.label
		}
		if r.Number == "" {
			r.Number = d.number
		}
	}

	if r.Description == "" {
		if r.Collection == CollectionCyberCrime && r.Content != "" {
			r.Description = r.Content
		} else {
			r.Description = d.description
		}
	}
	return r
}
