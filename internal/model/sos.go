package model

import "time"

// EventType distinguishes a loud emergency from a silent distress signal.
type EventType string

const (
	EventEmergency EventType = "emergency"
	EventSilent    EventType = "silent"
)

// StatusActivated is the only status the app ever writes. Events are
// append-only and nothing on our side updates them afterwards.
const StatusActivated = "activated"

// LocationSource tells real GPS output apart from the demo coordinate.
type LocationSource string

const (
	SourceDevice LocationSource = "device"
	SourceDemo   LocationSource = "demo"
)

// Location is one geolocation fix.
type Location struct {
	Latitude  float64        `json:"latitude"`
	Longitude float64        `json:"longitude"`
	Accuracy  float64        `json:"accuracy,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Source    LocationSource `json:"source"`
}

// Valid reports whether the coordinates are on the globe.
func (l Location) Valid() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 &&
		l.Longitude >= -180 && l.Longitude <= 180
}

// SOSEvent is a timestamped emergency or silent distress signal.
type SOSEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Location  Location  `json:"location"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"userId,omitempty"`
	UserEmail string    `json:"userEmail,omitempty"`
	Status    string    `json:"status,omitempty"`
}

// ShareRecord is one entry of rakshak_share_history.
type ShareRecord struct {
	ContactName   string        `json:"contactName"`
	ContactNumber string        `json:"contactNumber"`
	Location      SharePosition `json:"location"`
	Timestamp     time.Time     `json:"timestamp"`
}

// SharePosition is the short lat/lng form stored with a share.
type SharePosition struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
}
