package production

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/comalice/trackcoord/internal/primitives"
)

// DB is the subset of *pgxpool.Pool the sink needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const (
	createEventsTable = `CREATE TABLE IF NOT EXISTS tracking_events (
	id UUID PRIMARY KEY,
	timestamp_ms BIGINT NOT NULL,
	message TEXT NOT NULL
)`
	insertEvent  = `INSERT INTO tracking_events (id, timestamp_ms, message) VALUES ($1, $2, $3)`
	selectRecent = `SELECT id, timestamp_ms, message FROM tracking_events ORDER BY timestamp_ms DESC LIMIT $1`
)

// PostgresSink persists narration lines to the tracking_events table.
// Append hands entries to a single writer goroutine so insert order follows
// append order and the caller never waits on the database.
type PostgresSink struct {
	db      DB
	log     *logrus.Entry
	entries chan primitives.LogEntry
	timeout time.Duration
	dropped atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// NewPostgresSink starts the writer. buffer bounds the entries waiting to be
// written; further appends are dropped and counted.
func NewPostgresSink(db DB, buffer int, log *logrus.Entry) *PostgresSink {
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = logrus.WithField("component", "postgres_sink")
	}
	s := &PostgresSink{
		db:      db,
		log:     log,
		entries: make(chan primitives.LogEntry, buffer),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// EnsureSchema creates the events table if it does not exist.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, createEventsTable); err != nil {
		return fmt.Errorf("create tracking_events: %w", err)
	}
	return nil
}

func (s *PostgresSink) Append(message string, at time.Time) {
	select {
	case s.entries <- primitives.NewLogEntry(message, at):
	default:
		s.dropped.Add(1)
	}
}

func (s *PostgresSink) run() {
	defer close(s.done)
	for e := range s.entries {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		_, err := s.db.Exec(ctx, insertEvent, e.ID.String(), e.Time.UnixMilli(), e.Message)
		cancel()
		if err != nil {
			s.log.WithError(err).WithField("message", e.Message).Warn("insert tracking event")
		}
	}
}

// Dropped reports how many entries were lost to a full buffer.
func (s *PostgresSink) Dropped() int64 {
	return s.dropped.Load()
}

// Close flushes buffered entries and stops the writer. Append must not be
// called after Close.
func (s *PostgresSink) Close() error {
	s.closeOnce.Do(func() { close(s.entries) })
	<-s.done
	return nil
}

// Recent returns up to limit entries, newest first.
func Recent(ctx context.Context, db DB, limit int) ([]primitives.LogEntry, error) {
	rows, err := db.Query(ctx, selectRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("query tracking_events: %w", err)
	}
	defer rows.Close()

	var out []primitives.LogEntry
	for rows.Next() {
		var (
			id      string
			ms      int64
			message string
		)
		if err := rows.Scan(&id, &ms, &message); err != nil {
			return nil, fmt.Errorf("scan tracking_events: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("tracking_events id %q: %w", id, err)
		}
		out = append(out, primitives.LogEntry{ID: parsed, Time: time.UnixMilli(ms), Message: message})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracking_events: %w", err)
	}
	return out, nil
}
