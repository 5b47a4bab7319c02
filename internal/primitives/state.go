package primitives

import (
	"fmt"
	"strings"
)

// TrackingState is the binary movement state owned by the coordinator.
type TrackingState int

const (
	Moving TrackingState = iota
	Stationary
)

func (s TrackingState) String() string {
	switch s {
	case Moving:
		return "MOVING"
	case Stationary:
		return "STATIONARY"
	default:
		return fmt.Sprintf("TrackingState(%d)", int(s))
	}
}

// Persisted codec. The wire names are fixed here and never derived from
// String(), so renaming a variant cannot corrupt stored state.
const (
	stateCodecVersion = "v1"
	wireMoving        = "MOVING"
	wireStationary    = "STATIONARY"
)

// EncodeState returns the versioned persisted form, e.g. "v1:MOVING".
func EncodeState(s TrackingState) string {
	switch s {
	case Stationary:
		return stateCodecVersion + ":" + wireStationary
	default:
		return stateCodecVersion + ":" + wireMoving
	}
}

// DecodeState parses a persisted state. Both the versioned form and the
// legacy bare name are accepted. On any other input it returns Moving and
// an error wrapping ErrCorruptPersistedState.
func DecodeState(raw string) (TrackingState, error) {
	body := strings.TrimSpace(raw)
	if version, rest, ok := strings.Cut(body, ":"); ok {
		if version != stateCodecVersion {
			return Moving, fmt.Errorf("state codec version %q: %w", version, ErrCorruptPersistedState)
		}
		body = rest
	}
	switch body {
	case wireMoving:
		return Moving, nil
	case wireStationary:
		return Stationary, nil
	}
	return Moving, fmt.Errorf("state %q: %w", raw, ErrCorruptPersistedState)
}

// MarshalText renders the state by name for JSON and YAML encoders.
func (s TrackingState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the bare name or the versioned persisted form.
func (s *TrackingState) UnmarshalText(text []byte) error {
	v, err := DecodeState(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
