package primitives

import (
	"fmt"
	"time"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// GeofenceID identifies one of the two regions the coordinator manages.
type GeofenceID string

const (
	// GeofenceStart anchors the position where tracking (re)started.
	GeofenceStart GeofenceID = "start_region"
	// GeofenceLast follows the most recent sample while moving.
	GeofenceLast GeofenceID = "last_region"
)

// AllGeofenceIDs lists every id the coordinator may register.
var AllGeofenceIDs = []GeofenceID{GeofenceStart, GeofenceLast}

// TransitionMask selects which crossings a geofence reports.
type TransitionMask uint8

const (
	MaskEnter TransitionMask = 1 << iota
	MaskExit
	MaskDwell
)

func (m TransitionMask) Has(t TransitionType) bool {
	switch t {
	case TransitionEnter:
		return m&MaskEnter != 0
	case TransitionExit:
		return m&MaskExit != 0
	}
	return false
}

// Placement defaults.
const (
	DefaultGeofenceRadiusMeters = 100.0
	DefaultResponsiveness       = 30 * time.Second
)

// Geofence is a circular region registered with a PerimeterSource.
type Geofence struct {
	ID             GeofenceID
	Center         LocationSample
	RadiusMeters   float64
	Transitions    TransitionMask
	InitialTrigger TransitionMask
	Responsiveness time.Duration
}

// NewGeofence returns an exit-only geofence centred on loc with the given
// radius. A non-positive radius selects the default.
func NewGeofence(id GeofenceID, loc LocationSample, radiusMeters float64) Geofence {
	if radiusMeters <= 0 {
		radiusMeters = DefaultGeofenceRadiusMeters
	}
	return Geofence{
		ID:             id,
		Center:         loc,
		RadiusMeters:   radiusMeters,
		Transitions:    MaskExit,
		InitialTrigger: MaskExit,
		Responsiveness: DefaultResponsiveness,
	}
}

// Contains reports whether loc lies inside the region.
func (g Geofence) Contains(loc LocationSample) bool {
	return g.Center.DistanceTo(loc) <= g.RadiusMeters
}

// Point returns the centre as a WGS84 point.
func (g Geofence) Point() *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{g.Center.Longitude, g.Center.Latitude}).SetSRID(4326)
}

// GeoJSON encodes the centre as a GeoJSON point.
func (g Geofence) GeoJSON() ([]byte, error) {
	data, err := geojson.Marshal(g.Point())
	if err != nil {
		return nil, fmt.Errorf("geofence %s: %w", g.ID, err)
	}
	return data, nil
}

func (g Geofence) String() string {
	return fmt.Sprintf("%s@%s r=%.0fm", g.ID, g.Center, g.RadiusMeters)
}
