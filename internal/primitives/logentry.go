package primitives

import (
	"time"

	"github.com/google/uuid"
)

// LogEntry is one line of the append-only observability log.
type LogEntry struct {
	ID      uuid.UUID `json:"id"`
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// NewLogEntry stamps message with a fresh id.
func NewLogEntry(message string, at time.Time) LogEntry {
	return LogEntry{
		ID:      uuid.New(),
		Time:    at,
		Message: message,
	}
}
