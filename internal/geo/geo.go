// Package geo has the small amount of spherical geometry the service needs:
// great-circle distance and a nearest-safe-place lookup.
package geo

import (
	"fmt"
	"math"
	"sort"
)

// EarthRadiusKm is the mean Earth radius used by Distance.
const EarthRadiusKm = 6371.0

// Distance returns the haversine great-circle distance in kilometres.
// Distance(a, a) is 0 and Distance(a, b) == Distance(b, a).
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Place is a known safe location.
type Place struct {
	Name       string  `json:"name"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Type       string  `json:"type"`
	DistanceKm float64 `json:"distance"`
}

// SafeLocations returns the fixed list of safe places around New Delhi.
// Each call returns a fresh slice.
func SafeLocations() []Place {
	return []Place{
		{Name: "Police Station", Lat: 28.6140, Lng: 77.2080, Type: "police"},
		{Name: "Hospital", Lat: 28.6150, Lng: 77.2100, Type: "hospital"},
		{Name: "Shopping Mall", Lat: 28.6130, Lng: 77.2070, Type: "public"},
		{Name: "Women's Shelter", Lat: 28.6160, Lng: 77.2095, Type: "shelter"},
	}
}

// Nearest returns every safe location with its distance from (lat, lng),
// closest first.
func Nearest(lat, lng float64) []Place {
	places := SafeLocations()
	for i := range places {
		places[i].DistanceKm = Distance(lat, lng, places[i].Lat, places[i].Lng)
	}
	sort.SliceStable(places, func(i, j int) bool {
		return places[i].DistanceKm < places[j].DistanceKm
	})
	return places
}

// FormatCoordinates renders a position the way it is shared with contacts.
func FormatCoordinates(lat, lng float64) string {
	return fmt.Sprintf("%.6f, %.6f", lat, lng)
}
