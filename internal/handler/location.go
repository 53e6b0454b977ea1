package handler

import (
	"net/http"
	"strconv"

	"github.com/sakif/rakshak/internal/apperror"
	"github.com/sakif/rakshak/internal/geo"
)

// NearestResponse lists the safe places around a point, closest first.
type NearestResponse struct {
	Latitude  float64     `json:"latitude"`
	Longitude float64     `json:"longitude"`
	Places    []geo.Place `json:"places"`
}

// HandleNearest returns the known safe locations sorted by distance.
//
// HTTP: GET /api/location/nearest?lat=28.61&lng=77.20
//
// Pure computation, so it is a plain function rather than a method on a
// handler struct.
func HandleNearest(w http.ResponseWriter, r *http.Request) {
	lat, err := parseCoordinate(r, "lat", 90)
	if err != nil {
		writeError(w, err)
		return
	}
	lng, err := parseCoordinate(r, "lng", 180)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, NearestResponse{
		Latitude:  lat,
		Longitude: lng,
		Places:    geo.Nearest(lat, lng),
	})
}

func parseCoordinate(r *http.Request, name string, limit float64) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, apperror.ValidationFailed(name, "Query parameter "+name+" is required")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < -limit || v > limit {
		return 0, apperror.ValidationFailed(name, "Query parameter "+name+" must be a coordinate")
	}
	return v, nil
}
