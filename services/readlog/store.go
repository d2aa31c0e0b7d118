// Package readlog persists sensor readings and events to SQLite. Each Open
// starts a new session identified by a time-ordered UUID.
package readlog

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"sensorcode-go/types"
)

//go:embed schema.sql
var schemaSQL string

// DefaultQueue is the number of records buffered between listeners and the
// writer.
const DefaultQueue = 256

type Store struct {
	db      *sql.DB
	session string
	log     *slog.Logger

	q     chan record
	drops atomic.Uint64
}

// Reading is one persisted unit of data.
type Reading struct {
	ID      int64
	Session string
	Sensor  string
	Type    string
	Fields  []types.Field
	Time    time.Time
}

// Event is one persisted notification.
type Event struct {
	ID      int64
	Session string
	Sensor  string
	Event   string
	Time    time.Time
}

type record struct {
	reading *Reading
	event   *Event
}

// Open creates or opens the database at path and starts a session.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("readlog: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("readlog: connect: %w", err)
	}
	// One writer; SQLite serialises anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, p := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("readlog: %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("readlog: schema: %w", err)
	}

	session := uuid.Must(uuid.NewV7()).String()
	if _, err := db.Exec(`INSERT INTO sessions (id, started_us) VALUES (?, ?)`, session, time.Now().UnixMicro()); err != nil {
		db.Close()
		return nil, fmt.Errorf("readlog: session: %w", err)
	}
	s := &Store{
		db:      db,
		session: session,
		log:     log.With("component", "readlog", "session", session),
		q:       make(chan record, DefaultQueue),
	}
	s.log.Info("read log opened", "path", path)
	return s, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Session() string { return s.session }

// Drops counts records discarded because the writer fell behind.
func (s *Store) Drops() uint64 { return s.drops.Load() }

func (s *Store) WriteReading(ctx context.Context, r Reading) error {
	fields, err := json.Marshal(r.Fields)
	if err != nil {
		return fmt.Errorf("readlog: marshal fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO readings (session_id, sensor, type, fields, ts_us) VALUES (?, ?, ?, ?, ?)`,
		s.session, r.Sensor, r.Type, string(fields), r.Time.UnixMicro())
	if err != nil {
		return fmt.Errorf("readlog: insert reading: %w", err)
	}
	return nil
}

func (s *Store) WriteEvent(ctx context.Context, e Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (session_id, sensor, event, ts_us) VALUES (?, ?, ?, ?)`,
		s.session, e.Sensor, e.Event, e.Time.UnixMicro())
	if err != nil {
		return fmt.Errorf("readlog: insert event: %w", err)
	}
	return nil
}

// Recent returns up to limit readings of sensor, newest first. An empty
// sensor matches all.
func (s *Store) Recent(ctx context.Context, sensor string, limit int) ([]Reading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, sensor, type, fields, ts_us FROM readings
		WHERE (? = '' OR sensor = ?)
		ORDER BY id DESC LIMIT ?`, sensor, sensor, limit)
	if err != nil {
		return nil, fmt.Errorf("readlog: query readings: %w", err)
	}
	defer rows.Close()

	var out []Reading
	for rows.Next() {
		var (
			r      Reading
			fields string
			ts     int64
		)
		if err := rows.Scan(&r.ID, &r.Session, &r.Sensor, &r.Type, &fields, &ts); err != nil {
			return nil, fmt.Errorf("readlog: scan reading: %w", err)
		}
		if err := json.Unmarshal([]byte(fields), &r.Fields); err != nil {
			return nil, fmt.Errorf("readlog: reading %d fields: %w", r.ID, err)
		}
		r.Time = time.UnixMicro(ts).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentEvents returns up to limit events of sensor, newest first.
func (s *Store) RecentEvents(ctx context.Context, sensor string, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, sensor, event, ts_us FROM events
		WHERE (? = '' OR sensor = ?)
		ORDER BY id DESC LIMIT ?`, sensor, sensor, limit)
	if err != nil {
		return nil, fmt.Errorf("readlog: query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e  Event
			ts int64
		)
		if err := rows.Scan(&e.ID, &e.Session, &e.Sensor, &e.Event, &ts); err != nil {
			return nil, fmt.Errorf("readlog: scan event: %w", err)
		}
		e.Time = time.UnixMicro(ts).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Sessions lists session ids, oldest first.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions ORDER BY started_us, id`)
	if err != nil {
		return nil, fmt.Errorf("readlog: query sessions: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
