// Package geo provides great-circle distance and coordinate helpers for
// location-based image search.
package geo

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// EarthRadiusKM is the mean Earth radius used by Distance.
const EarthRadiusKM = 6371.0

// KMPerDegree is the length of one degree of latitude in kilometers.
const KMPerDegree = EarthRadiusKM * math.Pi / 180

// ErrNoCoordinate is returned when a latitude/longitude pair is missing or malformed.
var ErrNoCoordinate = errors.New("no usable coordinate")

// Coordinate is a point in decimal degrees.
type Coordinate struct {
	Lat float64
	Lng float64
}

// Distance returns the Haversine great-circle distance between a and b in kilometers.
func Distance(a, b Coordinate) float64 {
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + sinLng*sinLng*math.Cos(lat1)*math.Cos(lat2)
	// Rounding can push h marginally outside [0,1] for antipodal points.
	h = math.Min(1, math.Max(0, h))

	return EarthRadiusKM * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Parse converts latitude and longitude strings into a Coordinate.
// Both values must be present, finite and inside the valid degree ranges.
func Parse(lat, lng string) (Coordinate, error) {
	lat = strings.TrimSpace(lat)
	lng = strings.TrimSpace(lng)
	if lat == "" || lng == "" {
		return Coordinate{}, ErrNoCoordinate
	}

	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return Coordinate{}, ErrNoCoordinate
	}
	ln, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return Coordinate{}, ErrNoCoordinate
	}

	c := Coordinate{Lat: la, Lng: ln}
	if !c.Valid() {
		return Coordinate{}, ErrNoCoordinate
	}
	return c, nil
}

// Valid reports whether c is finite and within [-90,90] x [-180,180].
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Format renders c as the latitude and longitude strings stored in the index.
func (c Coordinate) Format() (lat, lng string) {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64), strconv.FormatFloat(c.Lng, 'f', -1, 64)
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
