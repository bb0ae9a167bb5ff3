// Package events persists tracker events (node transitions and LED
// toggles) in SQLite, one session per process run.
package events

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/bevandicjuraj/CamCorder/internal/timeutil"
)

// Kind is the event type.
type Kind string

const (
	KindNode Kind = "node"
	KindLED  Kind = "led"
)

// Event is one recorded tracker event. For node events NodeID is nil when
// the subject left every node.
type Event struct {
	ID         string    `json:"id"`
	Session    string    `json:"session"`
	Camera     int       `json:"camera"`
	Kind       Kind      `json:"kind"`
	NodeID     *int      `json:"node_id,omitempty"`
	NodeName   string    `json:"node_name,omitempty"`
	LED        bool      `json:"led"`
	FrameIndex uint64    `json:"frame_index"`
	Tickstamp  uint64    `json:"tickstamp"`
	RecordedAt time.Time `json:"recorded_at"`
}

func (e Event) String() string {
	switch e.Kind {
	case KindNode:
		if e.NodeID == nil {
			return fmt.Sprintf("camera %d frame %d: left node", e.Camera, e.FrameIndex)
		}
		return fmt.Sprintf("camera %d frame %d: node %d (%s)", e.Camera, e.FrameIndex, *e.NodeID, e.NodeName)
	case KindLED:
		return fmt.Sprintf("camera %d frame %d: led %t", e.Camera, e.FrameIndex, e.LED)
	}
	return fmt.Sprintf("camera %d frame %d: %s", e.Camera, e.FrameIndex, e.Kind)
}

// Store is the SQLite event log.
type Store struct {
	db      *sql.DB
	path    string
	session string
	clock   timeutil.Clock
}

// Open opens (creating if needed) the database at path, migrates it and
// starts a new session.
func Open(path string) (*Store, error) {
	return OpenWithClock(path, timeutil.RealClock{})
}

// OpenWithClock is Open with an injected clock for event timestamps.
func OpenWithClock(path string, clock timeutil.Clock) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open event database: %w", err)
	}
	// One writer; SQLite serialises anyway.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, path: path, clock: clock}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}

	s.session = uuid.NewString()
	if _, err := db.Exec(`INSERT INTO sessions (session_id, started_at) VALUES (?, ?)`,
		s.session, clock.Now().UTC()); err != nil {
		db.Close()
		return nil, fmt.Errorf("start session: %w", err)
	}
	return s, nil
}

// Session returns the id of the current run.
func (s *Store) Session() string { return s.session }

// DB exposes the underlying handle for admin tooling.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// Record stores ev, filling in ID, Session and RecordedAt, and returns the
// stored event.
func (s *Store) Record(ctx context.Context, ev Event) (Event, error) {
	if ev.Kind != KindNode && ev.Kind != KindLED {
		return Event{}, fmt.Errorf("record event: unknown kind %q", ev.Kind)
	}
	ev.ID = uuid.NewString()
	ev.Session = s.session
	if ev.RecordedAt.IsZero() {
		ev.RecordedAt = s.clock.Now().UTC()
	}

	var nodeID sql.NullInt64
	if ev.NodeID != nil {
		nodeID = sql.NullInt64{Int64: int64(*ev.NodeID), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tracker_events (
			event_id, session_id, camera, kind, node_id, node_name, led,
			frame_index, tickstamp, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Session, ev.Camera, string(ev.Kind), nodeID, ev.NodeName, ev.LED,
		int64(ev.FrameIndex), int64(ev.Tickstamp), ev.RecordedAt,
	)
	if err != nil {
		return Event{}, fmt.Errorf("record event: %w", err)
	}
	return ev, nil
}

// Publish records ev, discarding the stored copy.
func (s *Store) Publish(ctx context.Context, ev Event) error {
	_, err := s.Record(ctx, ev)
	return err
}

// Recent returns up to limit events, newest first. A negative camera
// selects all cameras.
func (s *Store) Recent(ctx context.Context, camera, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT event_id, session_id, camera, kind, node_id, node_name, led,
			frame_index, tickstamp, recorded_at
		FROM tracker_events`
	args := []any{}
	if camera >= 0 {
		query += ` WHERE camera = ?`
		args = append(args, camera)
	}
	query += ` ORDER BY recorded_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev       Event
			kind     string
			nodeID   sql.NullInt64
			nodeName sql.NullString
			frame    int64
			tick     int64
		)
		if err := rows.Scan(&ev.ID, &ev.Session, &ev.Camera, &kind, &nodeID, &nodeName, &ev.LED,
			&frame, &tick, &ev.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = Kind(kind)
		if nodeID.Valid {
			id := int(nodeID.Int64)
			ev.NodeID = &id
		}
		ev.NodeName = nodeName.String
		ev.FrameIndex = uint64(frame)
		ev.Tickstamp = uint64(tick)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Count returns the number of events of kind in the current session. An
// empty kind counts all of them.
func (s *Store) Count(ctx context.Context, kind Kind) (int, error) {
	query := `SELECT COUNT(*) FROM tracker_events WHERE session_id = ?`
	args := []any{s.session}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}
