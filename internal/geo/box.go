package geo

import "math"

// DefaultBoxDegrees is the minimum half-width of the pre-filter box.
const DefaultBoxDegrees = 1.0

// Box is a coarse latitude/longitude window centered on a query point.
// Candidates outside it are rejected without computing the true distance.
type Box struct {
	center Coordinate
	latDeg float64
	lngDeg float64
}

// NewBox builds the pre-filter window around center.
//
// The half-width is at least minDegrees and is widened to cover
// thresholdKM, so the box never rejects a point the threshold would accept.
// Longitude width grows with latitude since meridians converge.
func NewBox(center Coordinate, minDegrees, thresholdKM float64) Box {
	if minDegrees <= 0 {
		minDegrees = DefaultBoxDegrees
	}

	latDeg := minDegrees
	if thresholdKM > 0 {
		latDeg = math.Max(latDeg, thresholdKM/KMPerDegree)
	}

	lngDeg := latDeg
	if cos := math.Cos(toRadians(center.Lat)); cos > 0.01 {
		lngDeg = math.Max(minDegrees, latDeg/cos)
	} else {
		lngDeg = 180
	}

	return Box{center: center, latDeg: latDeg, lngDeg: math.Min(lngDeg, 180)}
}

// Contains reports whether c lies within the box.
func (b Box) Contains(c Coordinate) bool {
	if math.Abs(c.Lat-b.center.Lat) > b.latDeg {
		return false
	}
	return lngDelta(c.Lng, b.center.Lng) <= b.lngDeg
}

// lngDelta is the absolute longitude difference, wrapped across the antimeridian.
func lngDelta(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > 180 {
		d = 360 - d
	}
	return d
}
