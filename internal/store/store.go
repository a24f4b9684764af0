// Package store provides SQLite-backed persistence for tickos: daemon
// sessions, the dispatch trace and the audit log.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fentz26/tickos/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// DefaultListLimit caps list queries that pass a non-positive limit.
const DefaultListLimit = 100

// Store provides access to the tickos SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// WAL lets the control plane read the trace while the recorder writes.
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer at a time
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		freq_hz INTEGER NOT NULL,
		task_capacity INTEGER NOT NULL,
		delay_capacity INTEGER NOT NULL,
		event_capacity INTEGER NOT NULL,
		started_at DATETIME NOT NULL,
		stopped_at DATETIME,
		final_tick INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS dispatches (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		ref INTEGER NOT NULL,
		name TEXT,
		tick INTEGER NOT NULL,
		at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE TABLE IF NOT EXISTS pdr (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		target TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_dispatches_session ON dispatches(session_id);
	CREATE INDEX IF NOT EXISTS idx_dispatches_kind_at ON dispatches(kind, at);
	CREATE INDEX IF NOT EXISTS idx_pdr_timestamp ON pdr(timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Session Operations ---

// StartSession records the start of a daemon run.
func (s *Store) StartSession(freqHz, taskCap, delayCap, eventCap int) (*models.Session, error) {
	sess := &models.Session{
		ID:            uuid.New().String(),
		FreqHz:        freqHz,
		TaskCapacity:  taskCap,
		DelayCapacity: delayCap,
		EventCapacity: eventCap,
		StartedAt:     time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO sessions (id, freq_hz, task_capacity, delay_capacity, event_capacity, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.FreqHz, sess.TaskCapacity, sess.DelayCapacity, sess.EventCapacity, sess.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// EndSession marks a session stopped at finalTick.
func (s *Store) EndSession(id string, finalTick uint32) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET stopped_at = ?, final_tick = ? WHERE id = ?`,
		time.Now().UTC(), int64(finalTick), id,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("end session %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(id string) (*models.Session, error) {
	row := s.db.QueryRow(
		`SELECT id, freq_hz, task_capacity, delay_capacity, event_capacity, started_at, stopped_at, final_tick FROM sessions WHERE id = ?`,
		id,
	)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	return sess, nil
}

// ListSessions returns the most recent sessions first.
func (s *Store) ListSessions(limit int) ([]models.Session, error) {
	rows, err := s.db.Query(
		`SELECT id, freq_hz, task_capacity, delay_capacity, event_capacity, started_at, stopped_at, final_tick FROM sessions ORDER BY started_at DESC LIMIT ?`,
		normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.Session, error) {
	var sess models.Session
	var stoppedAt sql.NullTime
	var finalTick int64
	if err := row.Scan(&sess.ID, &sess.FreqHz, &sess.TaskCapacity, &sess.DelayCapacity, &sess.EventCapacity,
		&sess.StartedAt, &stoppedAt, &finalTick); err != nil {
		return nil, err
	}
	if stoppedAt.Valid {
		sess.StoppedAt = &stoppedAt.Time
	}
	sess.FinalTick = uint32(finalTick)
	return &sess, nil
}

// --- Dispatch Operations ---

// DispatchFilter narrows ListDispatches. Zero fields match everything.
type DispatchFilter struct {
	SessionID string
	Kind      models.DispatchKind
	Ref       *int
	Limit     int
}

// WriteDispatches inserts a batch of dispatch records in one transaction.
// Records without an ID get one.
func (s *Store) WriteDispatches(ctx context.Context, batch []models.Dispatch) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO dispatches (id, session_id, kind, ref, name, tick, at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert dispatch: %w", err)
	}
	defer stmt.Close()

	for i := range batch {
		d := &batch[i]
		if d.ID == "" {
			d.ID = uuid.New().String()
		}
		if d.At.IsZero() {
			d.At = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.SessionID, d.Kind, d.Ref, d.Name, int64(d.Tick), d.At); err != nil {
			return fmt.Errorf("insert dispatch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListDispatches returns matching dispatches, newest first.
func (s *Store) ListDispatches(f DispatchFilter) ([]models.Dispatch, error) {
	query := `SELECT id, session_id, kind, ref, name, tick, at FROM dispatches WHERE 1=1`
	var args []interface{}

	if f.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, f.SessionID)
	}
	if f.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, f.Kind)
	}
	if f.Ref != nil {
		query += ` AND ref = ?`
		args = append(args, *f.Ref)
	}
	query += ` ORDER BY at DESC, tick DESC LIMIT ?`
	args = append(args, normalizeLimit(f.Limit))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}
	defer rows.Close()

	var out []models.Dispatch
	for rows.Next() {
		var d models.Dispatch
		var name sql.NullString
		var tick int64
		if err := rows.Scan(&d.ID, &d.SessionID, &d.Kind, &d.Ref, &name, &tick, &d.At); err != nil {
			return nil, fmt.Errorf("scan dispatch: %w", err)
		}
		d.Name = name.String
		d.Tick = uint32(tick)
		out = append(out, d)
	}
	return out, rows.Err()
}

// CountDispatches returns the number of dispatches per kind for a session.
func (s *Store) CountDispatches(sessionID string) (map[models.DispatchKind]int, error) {
	rows, err := s.db.Query(
		`SELECT kind, COUNT(*) FROM dispatches WHERE session_id = ? GROUP BY kind`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("count dispatches: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.DispatchKind]int)
	for rows.Next() {
		var kind models.DispatchKind
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan dispatch count: %w", err)
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

// PruneDispatches deletes dispatches recorded before cutoff and returns how
// many were removed.
func (s *Store) PruneDispatches(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM dispatches WHERE at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune dispatches: %w", err)
	}
	return res.RowsAffected()
}

// --- PDR Operations ---

// WritePDR inserts a new PDR entry.
func (s *Store) WritePDR(action, inputsHash, outcome, target, details string) (*models.PDREntry, error) {
	pdr := &models.PDREntry{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		Target:     target,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO pdr (id, action, inputs_hash, outcome, target, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pdr.ID, pdr.Action, pdr.InputsHash, pdr.Outcome, pdr.Target, pdr.Details, pdr.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert pdr: %w", err)
	}
	return pdr, nil
}

// ListPDR returns audit entries, newest first.
func (s *Store) ListPDR(limit int) ([]models.PDREntry, error) {
	rows, err := s.db.Query(
		`SELECT id, action, inputs_hash, outcome, target, details, timestamp FROM pdr ORDER BY timestamp DESC LIMIT ?`,
		normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query pdr: %w", err)
	}
	defer rows.Close()

	var out []models.PDREntry
	for rows.Next() {
		var p models.PDREntry
		var target, details sql.NullString
		if err := rows.Scan(&p.ID, &p.Action, &p.InputsHash, &p.Outcome, &target, &details, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("scan pdr: %w", err)
		}
		p.Target = target.String
		p.Details = details.String
		out = append(out, p)
	}
	return out, rows.Err()
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
