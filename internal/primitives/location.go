package primitives

import (
	"fmt"
	"math"
	"time"
)

const earthRadiusMeters = 6371000.0

// LocationSample is a single position fix.
type LocationSample struct {
	Latitude  float64   `json:"latitude" yaml:"latitude"`
	Longitude float64   `json:"longitude" yaml:"longitude"`
	Time      time.Time `json:"time" yaml:"time"`
	Accuracy  *float64  `json:"accuracy,omitempty" yaml:"accuracy,omitempty"`
}

// DistanceTo returns the great-circle distance to other in metres.
func (l LocationSample) DistanceTo(other LocationSample) float64 {
	return HaversineMeters(l.Latitude, l.Longitude, other.Latitude, other.Longitude)
}

func (l LocationSample) String() string {
	return fmt.Sprintf("%.6f:%.6f", l.Latitude, l.Longitude)
}

// HaversineMeters computes the distance between two WGS84 coordinates.
func HaversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
