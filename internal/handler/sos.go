package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/rakshak/internal/apperror"
	"github.com/sakif/rakshak/internal/model"
	"github.com/sakif/rakshak/internal/service"
)

// SOSReporter is the SOS Reporter. *service.SOSService satisfies it.
type SOSReporter interface {
	CaptureLocation(ctx context.Context, uid string, fix *model.Location, captureErr error) (*model.Location, error)
	TriggerEmergency(ctx context.Context, uid string, confirmed bool) (*model.SOSEvent, error)
	TriggerSilent(ctx context.Context, uid string) (*service.SilentResult, error)
	ShareLocation(ctx context.Context, uid, contactName, contactNumber string) (string, error)
	LocalEvents(ctx context.Context, uid string) ([]model.SOSEvent, error)
	History(ctx context.Context, uid string, limit int) ([]model.SOSEvent, error)
}

// SOSHandler serves location capture, SOS triggers and SOS history.
//
// All routes require a session. Alarm and clipboard cues do not come back
// in these responses; the service pushes them to the user's open
// WebSocket connections.
type SOSHandler struct {
	sos    SOSReporter
	logger *slog.Logger
}

func NewSOSHandler(sos SOSReporter, logger *slog.Logger) *SOSHandler {
	return &SOSHandler{sos: sos, logger: logger}
}

// locationRequest is the browser's geolocation result. Error is set (and
// the coordinates left out) when the browser could not get a fix, e.g.
// "User denied Geolocation".
type locationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Accuracy  float64  `json:"accuracy"`
	Error     string   `json:"error"`
}

// HandleCaptureLocation stores the caller's current position.
//
// HTTP: POST /api/location
// REQUEST BODY: {"latitude": 28.61, "longitude": 77.20, "accuracy": 12}
//
//	or {"error": "User denied Geolocation"}
func (h *SOSHandler) HandleCaptureLocation(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req locationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var (
		fix        *model.Location
		captureErr error
	)
	switch {
	case strings.TrimSpace(req.Error) != "":
		captureErr = errors.New(req.Error)
	case req.Latitude != nil && req.Longitude != nil:
		fix = &model.Location{
			Latitude:  *req.Latitude,
			Longitude: *req.Longitude,
			Accuracy:  req.Accuracy,
			Timestamp: time.Now(),
		}
	}

	loc, err := h.sos.CaptureLocation(r.Context(), uid, fix, captureErr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

// HandleEmergency raises an emergency SOS.
//
// HTTP: POST /api/sos/emergency
// REQUEST BODY: {"confirmed": true}
//
// The browser asks "Are you sure?" first; an unconfirmed request is
// rejected and nothing is recorded.
func (h *SOSHandler) HandleEmergency(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Confirmed bool `json:"confirmed"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ev, err := h.sos.TriggerEmergency(r.Context(), uid, req.Confirmed)
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Warn("emergency SOS activated",
		slog.String("uid", uid),
		slog.String("event", ev.ID),
	)
	writeJSON(w, http.StatusCreated, ev)
}

// HandleSilent raises a silent SOS. No alarm, no confirmation.
//
// HTTP: POST /api/sos/silent
func (h *SOSHandler) HandleSilent(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	res, err := h.sos.TriggerSilent(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("silent SOS activated",
		slog.String("uid", uid),
		slog.String("event", res.Event.ID),
	)
	writeJSON(w, http.StatusCreated, res)
}

// HandleLocalEvents returns the caller's locally recorded events, oldest first.
//
// HTTP: GET /api/sos/events
func (h *SOSHandler) HandleLocalEvents(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	events, err := h.sos.LocalEvents(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(events))
}

// HandleHistory returns the caller's remotely stored events, newest first.
//
// HTTP: GET /api/sos/history?limit=20
func (h *SOSHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			writeError(w, apperror.ValidationFailed("limit", "limit must be between 1 and 100"))
			return
		}
		limit = n
	}

	events, err := h.sos.History(r.Context(), uid, limit)
	if err != nil {
		h.logger.Error("loading SOS history failed", slog.String("uid", uid), slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(events))
}

// ShareResponse carries the text to send to the contact.
type ShareResponse struct {
	Message string `json:"message"`
}

// HandleShare records a location share and returns the text to send.
//
// HTTP: POST /api/share
// REQUEST BODY: {"contactName": "Mom", "contactNumber": "+91..."}
func (h *SOSHandler) HandleShare(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req struct {
		ContactName   string `json:"contactName"`
		ContactNumber string `json:"contactNumber"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	msg, err := h.sos.ShareLocation(r.Context(), uid, strings.TrimSpace(req.ContactName), strings.TrimSpace(req.ContactNumber))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ShareResponse{Message: msg})
}

// nonNil makes empty lists encode as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
