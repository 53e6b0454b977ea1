// Package ws pushes real-time updates to the browser over WebSocket.
//
// ARCHITECTURE:
//   - Hub:      tracks open connections per uid
//   - Client:   one connection, with a read pump and a write pump
//   - Handler:  authenticates and upgrades /ws requests
//   - Notifier: the service layer's Alerter and Clipboard, backed by the Hub
//
// EVENT FLOW:
//  1. The browser opens /ws?token=JWT (or sends the session cookie)
//  2. The Handler subscribes the connection to the uid's SOS history
//  3. Services push cues (alarm, flash, clipboard_write) through the Notifier
//  4. Each client's write pump serializes events onto the socket
package ws

import (
	"github.com/sakif/rakshak/internal/model"
)

// Event is one message on the socket.
//
// Seq increases by one for every outbound event, across all users, so the
// browser can notice gaps.
type Event struct {
	Op   string `json:"op"`
	Data any    `json:"d,omitempty"`
	Seq  int64  `json:"seq,omitempty"`
}

// Client → server.
const (
	OpHeartbeat = "heartbeat" // every 30s while the dashboard is open
)

// Server → client.
const (
	OpHeartbeatAck   = "heartbeat_ack"
	OpSOSHistory     = "sos_history"     // full history snapshot, newest first
	OpAlarm          = "alarm"           // play a tone
	OpFlash          = "flash"           // flash the viewport
	OpClipboardWrite = "clipboard_write" // copy text to the clipboard
	OpAuthState      = "auth_state"      // signed in or out elsewhere
)

type SOSHistoryData struct {
	Events []model.SOSEvent `json:"events"`
}

type AlarmData struct {
	FrequencyHz int   `json:"frequencyHz"`
	DurationMs  int64 `json:"durationMs"`
}

type FlashData struct {
	Count      int   `json:"count"`
	IntervalMs int64 `json:"intervalMs"`
}

type ClipboardData struct {
	Text string `json:"text"`
}

type AuthStateData struct {
	State string          `json:"state"`
	User  *model.Identity `json:"user,omitempty"`
}
