package ws

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sakif/rakshak/internal/service"
)

// Notifier delivers service-side cues to the user's open dashboards. It
// implements service.Alerter and service.Clipboard.
type Notifier struct {
	hub    *Hub
	logger *slog.Logger
}

var (
	_ service.Alerter   = (*Notifier)(nil)
	_ service.Clipboard = (*Notifier)(nil)
)

func NewNotifier(hub *Hub, logger *slog.Logger) *Notifier {
	return &Notifier{hub: hub, logger: logger}
}

func (n *Notifier) PlayAlarm(_ context.Context, uid string, tone service.Tone) error {
	return n.hub.SendToUser(uid, Event{Op: OpAlarm, Data: AlarmData{
		FrequencyHz: tone.FrequencyHz,
		DurationMs:  tone.Duration.Milliseconds(),
	}})
}

func (n *Notifier) Flash(_ context.Context, uid string, p service.FlashPattern) error {
	return n.hub.SendToUser(uid, Event{Op: OpFlash, Data: FlashData{
		Count:      p.Count,
		IntervalMs: int64(p.Interval / time.Millisecond),
	}})
}

func (n *Notifier) WriteText(_ context.Context, uid, text string) error {
	return n.hub.SendToUser(uid, Event{Op: OpClipboardWrite, Data: ClipboardData{Text: text}})
}

// AuthChanged forwards an auth transition to the user's other tabs. Pass it
// to AuthService.OnAuthChange.
func (n *Notifier) AuthChanged(ch service.AuthChange) {
	err := n.hub.SendToUser(ch.UserID, Event{Op: OpAuthState, Data: AuthStateData{
		State: string(ch.State),
		User:  ch.Identity,
	}})
	if err != nil && !errors.Is(err, ErrNoClients) {
		n.logger.Warn("auth state push failed", slog.String("uid", ch.UserID), slog.String("error", err.Error()))
	}
}
