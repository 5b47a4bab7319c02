// Package primitives provides the value types shared by the tracking
// coordinator and its adapters.
//
// Everything here is a plain value: tracking states and their persisted
// codec, location samples, geofences, motion and perimeter events, and the
// sentinel errors used to classify provider failures.
//
// Core invariants:
// - TrackingState is persisted only through EncodeState/DecodeState
// - Events are immutable once constructed
// - Distances are metres, coordinates are WGS84 degrees
package primitives
