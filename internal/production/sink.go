package production

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/comalice/trackcoord/internal/primitives"
)

// LogSink writes every narration line through logrus at info level.
type LogSink struct {
	log *logrus.Entry
}

func NewLogSink(log *logrus.Entry) *LogSink {
	if log == nil {
		log = logrus.WithField("component", "events")
	}
	return &LogSink{log: log}
}

func (s *LogSink) Append(message string, at time.Time) {
	s.log.WithField("at", at.Format(time.RFC3339Nano)).Info(message)
}

// ChannelSink forwards entries to a Go channel, dropping on backpressure.
type ChannelSink struct {
	ch      chan<- primitives.LogEntry
	dropped atomic.Int64
}

func NewChannelSink(ch chan<- primitives.LogEntry) *ChannelSink {
	return &ChannelSink{ch: ch}
}

func (s *ChannelSink) Append(message string, at time.Time) {
	select {
	case s.ch <- primitives.NewLogEntry(message, at):
	default:
		s.dropped.Add(1)
	}
}

// Dropped reports how many entries were lost to a full channel.
func (s *ChannelSink) Dropped() int64 {
	return s.dropped.Load()
}

// RingSink keeps the most recent entries in memory for status endpoints.
type RingSink struct {
	mu      sync.Mutex
	entries []primitives.LogEntry
	size    int
	next    int
	full    bool
}

func NewRingSink(size int) *RingSink {
	if size <= 0 {
		size = 100
	}
	return &RingSink{entries: make([]primitives.LogEntry, size), size: size}
}

func (s *RingSink) Append(message string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[s.next] = primitives.NewLogEntry(message, at)
	s.next = (s.next + 1) % s.size
	if s.next == 0 {
		s.full = true
	}
}

// Recent returns up to limit entries, newest first.
func (s *RingSink) Recent(limit int) []primitives.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.next
	if s.full {
		n = s.size
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]primitives.LogEntry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (s.next - i + s.size) % s.size
		out = append(out, s.entries[idx])
	}
	return out
}

// EventSink matches core.EventSink without importing it.
type EventSink interface {
	Append(message string, at time.Time)
}

// MultiSink appends to every sink in order.
type MultiSink []EventSink

func (m MultiSink) Append(message string, at time.Time) {
	for _, s := range m {
		s.Append(message, at)
	}
}
