package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/rakshak/internal/apperror"
	"github.com/sakif/rakshak/internal/handler"
	"github.com/sakif/rakshak/internal/model"
)

func TestSOSHandler_HandleCaptureLocation(t *testing.T) {
	logger := testLogger()

	t.Run("fix", func(t *testing.T) {
		mock := &MockSOS{}
		h := handler.NewSOSHandler(mock, logger)

		req := withUser(httptest.NewRequest(http.MethodPost, "/api/location",
			bytes.NewBufferString(`{"latitude":28.61,"longitude":77.2,"accuracy":12}`)), "u1", model.KindAccount)
		rr := httptest.NewRecorder()
		h.HandleCaptureLocation(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		require.NotNil(t, mock.Captured)
		assert.Equal(t, 28.61, mock.Captured.Latitude)
		assert.Equal(t, 77.2, mock.Captured.Longitude)
		assert.NoError(t, mock.CapturedErr)
	})

	t.Run("browser error", func(t *testing.T) {
		mock := &MockSOS{}
		h := handler.NewSOSHandler(mock, logger)

		req := withUser(httptest.NewRequest(http.MethodPost, "/api/location",
			bytes.NewBufferString(`{"error":"User denied Geolocation"}`)), "u1", model.KindAccount)
		rr := httptest.NewRecorder()
		h.HandleCaptureLocation(rr, req)

		assert.Nil(t, mock.Captured)
		require.Error(t, mock.CapturedErr)
		assert.Equal(t, "User denied Geolocation", mock.CapturedErr.Error())
	})

	t.Run("anonymous", func(t *testing.T) {
		h := handler.NewSOSHandler(&MockSOS{}, logger)
		rr := httptest.NewRecorder()
		h.HandleCaptureLocation(rr, httptest.NewRequest(http.MethodPost, "/api/location", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestSOSHandler_HandleEmergency(t *testing.T) {
	logger := testLogger()

	t.Run("confirmed", func(t *testing.T) {
		mock := &MockSOS{Event: &model.SOSEvent{
			ID:        "ev1",
			Type:      model.EventEmergency,
			Location:  model.Location{Latitude: 1, Longitude: 2},
			Timestamp: time.Now(),
		}}
		h := handler.NewSOSHandler(mock, logger)

		req := withUser(httptest.NewRequest(http.MethodPost, "/api/sos/emergency",
			bytes.NewBufferString(`{"confirmed":true}`)), "u1", model.KindAccount)
		rr := httptest.NewRecorder()
		h.HandleEmergency(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)
		assert.True(t, mock.Confirmed)

		var ev model.SOSEvent
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&ev))
		assert.Equal(t, "ev1", ev.ID)
	})

	t.Run("no location yet", func(t *testing.T) {
		mock := &MockSOS{Err: apperror.ValidationFailed("location", "Location not available. Please enable location services.")}
		h := handler.NewSOSHandler(mock, logger)

		req := withUser(httptest.NewRequest(http.MethodPost, "/api/sos/emergency",
			bytes.NewBufferString(`{"confirmed":true}`)), "u1", model.KindAccount)
		rr := httptest.NewRecorder()
		h.HandleEmergency(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		var body handler.ErrorResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		assert.Equal(t, "location", body.Field)
	})
}

func TestSOSHandler_HandleSilent(t *testing.T) {
	mock := &MockSOS{Event: &model.SOSEvent{ID: "ev2", Type: model.EventSilent}}
	h := handler.NewSOSHandler(mock, testLogger())

	rr := httptest.NewRecorder()
	h.HandleSilent(rr, withUser(httptest.NewRequest(http.MethodPost, "/api/sos/silent", nil), "u1", model.KindGuest))

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), `"ev2"`)
}

func TestSOSHandler_HandleHistory(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantLimit  int
	}{
		{"default", "", http.StatusOK, 0},
		{"explicit", "?limit=5", http.StatusOK, 5},
		{"zero", "?limit=0", http.StatusBadRequest, -1},
		{"too large", "?limit=101", http.StatusBadRequest, -1},
		{"not a number", "?limit=ten", http.StatusBadRequest, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockSOS{Limit: -1}
			h := handler.NewSOSHandler(mock, testLogger())

			rr := httptest.NewRecorder()
			h.HandleHistory(rr, withUser(httptest.NewRequest(http.MethodGet, "/api/sos/history"+tt.query, nil), "u1", model.KindAccount))

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantLimit, mock.Limit)
			if tt.wantStatus == http.StatusOK {
				assert.JSONEq(t, `[]`, rr.Body.String())
			}
		})
	}
}

func TestSOSHandler_HandleShare(t *testing.T) {
	h := handler.NewSOSHandler(&MockSOS{}, testLogger())

	req := withUser(httptest.NewRequest(http.MethodPost, "/api/share",
		bytes.NewBufferString(`{"contactName":" Mom ","contactNumber":"+911234"}`)), "u1", model.KindAccount)
	rr := httptest.NewRecorder()
	h.HandleShare(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var body handler.ShareResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "I am here", body.Message)
}
