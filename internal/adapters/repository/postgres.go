package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/okian/shiftmetrics/internal/domain/model"
	"github.com/okian/shiftmetrics/pkg/logger"
)

const postgresDriver = "postgres"

// uniqueViolation is the SQLSTATE raised when a unique index rejects a row.
const uniqueViolation = "23505"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS workers (
	worker_id TEXT PRIMARY KEY,
	name      TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS workstations (
	station_id   TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	station_type TEXT NOT NULL DEFAULT ''
)`,
	`CREATE TABLE IF NOT EXISTS events (
	seq            BIGSERIAL PRIMARY KEY,
	id             TEXT NOT NULL UNIQUE,
	ts             TIMESTAMPTZ NOT NULL,
	worker_id      TEXT NOT NULL REFERENCES workers (worker_id),
	workstation_id TEXT NOT NULL REFERENCES workstations (station_id),
	event_type     TEXT NOT NULL,
	confidence     DOUBLE PRECISION NOT NULL,
	count          INTEGER NOT NULL DEFAULT 1,
	received_at    TIMESTAMPTZ NOT NULL,
	CONSTRAINT events_identity UNIQUE (ts, worker_id, workstation_id, event_type)
)`,
	`CREATE INDEX IF NOT EXISTS events_worker_ts ON events (worker_id, ts)`,
	`CREATE INDEX IF NOT EXISTS events_workstation_ts ON events (workstation_id, ts)`,
}

const eventColumns = `seq, id, ts, worker_id, workstation_id, event_type, confidence, count, received_at`

// PostgresStore is a Store on database/sql with the pgx driver. The identity
// key is a unique constraint, so insert-if-absent is a single statement.
type PostgresStore struct {
	db           *sql.DB
	log          logger.Logger
	maxConns     int
	ensureSchema bool
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres opens a pool for dsn and prepares the schema.
func OpenPostgres(ctx context.Context, dsn string, opts ...PostgresOption) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	s, err := NewPostgresStore(ctx, db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(ctx context.Context, db *sql.DB, opts ...PostgresOption) (*PostgresStore, error) {
	s := &PostgresStore{
		db:           db,
		log:          logger.Nop(),
		maxConns:     10,
		ensureSchema: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.db.SetMaxOpenConns(s.maxConns)
	s.db.SetMaxIdleConns(s.maxConns)

	if s.ensureSchema {
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// EnsureSchema creates the tables and indexes if they are missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	s.log.Info(ctx, "postgres schema ready")
	return nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks the pool with a short deadline.
func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

// UpsertWorker adds or renames a worker.
func (s *PostgresStore) UpsertWorker(ctx context.Context, w model.Worker) error {
	const q = `
INSERT INTO workers (worker_id, name) VALUES ($1, $2)
ON CONFLICT (worker_id) DO UPDATE SET name = EXCLUDED.name`
	if _, err := s.db.ExecContext(ctx, q, w.WorkerID, w.Name); err != nil {
		return fmt.Errorf("upsert worker %q: %w", w.WorkerID, err)
	}
	return nil
}

// UpsertWorkstation adds or updates a workstation.
func (s *PostgresStore) UpsertWorkstation(ctx context.Context, st model.Workstation) error {
	const q = `
INSERT INTO workstations (station_id, name, station_type) VALUES ($1, $2, $3)
ON CONFLICT (station_id) DO UPDATE SET name = EXCLUDED.name, station_type = EXCLUDED.station_type`
	if _, err := s.db.ExecContext(ctx, q, st.StationID, st.Name, st.StationType); err != nil {
		return fmt.Errorf("upsert workstation %q: %w", st.StationID, err)
	}
	return nil
}

// Worker looks up a worker by id.
func (s *PostgresStore) Worker(ctx context.Context, id string) (model.Worker, error) {
	const q = `SELECT worker_id, name FROM workers WHERE worker_id = $1`
	var w model.Worker
	if err := s.db.QueryRowContext(ctx, q, id).Scan(&w.WorkerID, &w.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Worker{}, fmt.Errorf("worker %q: %w", id, ErrNotFound)
		}
		return model.Worker{}, fmt.Errorf("get worker %q: %w", id, err)
	}
	return w, nil
}

// Workstation looks up a workstation by id.
func (s *PostgresStore) Workstation(ctx context.Context, id string) (model.Workstation, error) {
	const q = `SELECT station_id, name, station_type FROM workstations WHERE station_id = $1`
	var st model.Workstation
	if err := s.db.QueryRowContext(ctx, q, id).Scan(&st.StationID, &st.Name, &st.StationType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Workstation{}, fmt.Errorf("workstation %q: %w", id, ErrNotFound)
		}
		return model.Workstation{}, fmt.Errorf("get workstation %q: %w", id, err)
	}
	return st, nil
}

// ListWorkers returns every worker ordered by id.
func (s *PostgresStore) ListWorkers(ctx context.Context) ([]model.Worker, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT worker_id, name FROM workers ORDER BY worker_id`)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	out := make([]model.Worker, 0)
	for rows.Next() {
		var w model.Worker
		if err := rows.Scan(&w.WorkerID, &w.Name); err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ListWorkstations returns every workstation ordered by id.
func (s *PostgresStore) ListWorkstations(ctx context.Context) ([]model.Workstation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT station_id, name, station_type FROM workstations ORDER BY station_id`)
	if err != nil {
		return nil, fmt.Errorf("list workstations: %w", err)
	}
	defer rows.Close()

	out := make([]model.Workstation, 0)
	for rows.Next() {
		var st model.Workstation
		if err := rows.Scan(&st.StationID, &st.Name, &st.StationType); err != nil {
			return nil, fmt.Errorf("scan workstation: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// FindEvent returns the event stored under key.
func (s *PostgresStore) FindEvent(ctx context.Context, key model.Key) (model.Event, error) {
	start := time.Now()
	defer observe(postgresDriver, "find", start)

	q := `SELECT ` + eventColumns + `
FROM events
WHERE ts = $1 AND worker_id = $2 AND workstation_id = $3 AND event_type = $4`
	row := s.db.QueryRowContext(ctx, q,
		model.NormalizeTimestamp(key.Timestamp), key.WorkerID, key.WorkstationID, string(key.EventType))
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Event{}, ErrNotFound
		}
		return model.Event{}, fmt.Errorf("find event: %w", err)
	}
	return e, nil
}

// InsertEvent stores e or fails with ErrDuplicate.
func (s *PostgresStore) InsertEvent(ctx context.Context, e model.Event) (model.Event, error) {
	start := time.Now()
	defer observe(postgresDriver, "insert", start)

	e.Timestamp = model.NormalizeTimestamp(e.Timestamp)
	const q = `
INSERT INTO events (id, ts, worker_id, workstation_id, event_type, confidence, count, received_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING seq`
	err := s.db.QueryRowContext(ctx, q, insertArgs(e)...).Scan(&e.Seq)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return model.Event{}, fmt.Errorf("insert event %s: %w", e.Key(), ErrDuplicate)
		}
		return model.Event{}, fmt.Errorf("insert event: %w", err)
	}
	return e, nil
}

// InsertIfAbsent inserts e with ON CONFLICT DO NOTHING. When the statement
// returns no row the key was taken and the existing event is fetched.
func (s *PostgresStore) InsertIfAbsent(ctx context.Context, e model.Event) (model.Event, bool, error) {
	start := time.Now()
	defer observe(postgresDriver, "insert_if_absent", start)

	e.Timestamp = model.NormalizeTimestamp(e.Timestamp)
	const q = `
INSERT INTO events (id, ts, worker_id, workstation_id, event_type, confidence, count, received_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (ts, worker_id, workstation_id, event_type) DO NOTHING
RETURNING seq`
	err := s.db.QueryRowContext(ctx, q, insertArgs(e)...).Scan(&e.Seq)
	switch {
	case err == nil:
		return e, true, nil
	case errors.Is(err, sql.ErrNoRows):
		existing, ferr := s.FindEvent(ctx, e.Key())
		if ferr != nil {
			return model.Event{}, false, fmt.Errorf("fetch existing event: %w", ferr)
		}
		s.log.Debug(ctx, "duplicate event",
			logger.String("key", e.Key().String()),
			logger.String("existing_id", existing.ID))
		return existing, false, nil
	default:
		return model.Event{}, false, fmt.Errorf("insert event: %w", err)
	}
}

// EventsForWorker returns the worker's events in insertion order.
func (s *PostgresStore) EventsForWorker(ctx context.Context, workerID string) ([]model.Event, error) {
	return s.queryEvents(ctx, "scan",
		`SELECT `+eventColumns+` FROM events WHERE worker_id = $1 ORDER BY seq`, workerID)
}

// EventsForWorkstation returns the station's events in insertion order.
func (s *PostgresStore) EventsForWorkstation(ctx context.Context, stationID string) ([]model.Event, error) {
	return s.queryEvents(ctx, "scan",
		`SELECT `+eventColumns+` FROM events WHERE workstation_id = $1 ORDER BY seq`, stationID)
}

// ListEvents returns events newest first.
func (s *PostgresStore) ListEvents(ctx context.Context, f model.EventFilter) ([]model.Event, error) {
	var (
		where []string
		args  []any
	)
	if f.WorkerID != "" {
		args = append(args, f.WorkerID)
		where = append(where, fmt.Sprintf("worker_id = $%d", len(args)))
	}
	if f.WorkstationID != "" {
		args = append(args, f.WorkstationID)
		where = append(where, fmt.Sprintf("workstation_id = $%d", len(args)))
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + eventColumns + ` FROM events`)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY ts DESC, seq DESC")
	args = append(args, max(f.Skip, 0))
	fmt.Fprintf(&b, " OFFSET $%d", len(args))
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return s.queryEvents(ctx, "list", b.String(), args...)
}

// Fingerprint summarizes one entity's events with a single aggregate query.
func (s *PostgresStore) Fingerprint(ctx context.Context, scope Scope, id string) (Fingerprint, error) {
	q := `SELECT COUNT(*), MAX(received_at) FROM events`
	var args []any
	switch scope {
	case ScopeWorker:
		q += ` WHERE worker_id = $1`
		args = append(args, id)
	case ScopeWorkstation:
		q += ` WHERE workstation_id = $1`
		args = append(args, id)
	case ScopeFactory:
	default:
		return Fingerprint{}, ErrInvalidScope
	}

	var (
		fp   Fingerprint
		last sql.NullTime
	)
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&fp.Count, &last); err != nil {
		return Fingerprint{}, fmt.Errorf("fingerprint %s %q: %w", scope, id, err)
	}
	if last.Valid {
		fp.LastReceivedAt = last.Time.UTC()
	}
	return fp, nil
}

func (s *PostgresStore) queryEvents(ctx context.Context, op, q string, args ...any) ([]model.Event, error) {
	start := time.Now()
	defer observe(postgresDriver, op, start)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := make([]model.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (model.Event, error) {
	var (
		e         model.Event
		eventType string
	)
	err := row.Scan(&e.Seq, &e.ID, &e.Timestamp, &e.WorkerID, &e.WorkstationID,
		&eventType, &e.Confidence, &e.Count, &e.ReceivedAt)
	if err != nil {
		return model.Event{}, err
	}
	e.EventType = model.EventType(eventType)
	e.Timestamp = e.Timestamp.UTC()
	e.ReceivedAt = e.ReceivedAt.UTC()
	return e, nil
}

func insertArgs(e model.Event) []any {
	return []any{e.ID, e.Timestamp, e.WorkerID, e.WorkstationID, string(e.EventType),
		e.Confidence, e.Count, e.ReceivedAt.UTC()}
}
