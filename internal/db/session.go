package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a simulation session.
type SessionStatus string

const (
	StatusNotStarted SessionStatus = "not-started"
	StatusQueued     SessionStatus = "queued"
	StatusRunning    SessionStatus = "running"
	StatusProcessed  SessionStatus = "processed"
	StatusCancelled  SessionStatus = "cancelled"
	StatusDeleting   SessionStatus = "deleting"
)

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusQueued, StatusRunning, StatusProcessed, StatusCancelled, StatusDeleting:
		return true
	}
	return false
}

var (
	// ErrSessionNotFound is returned for unknown or deleting sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidTransition is returned when a status change is not allowed
	// from the session's current state.
	ErrInvalidTransition = errors.New("invalid session state")
	// ErrParametersMissing is returned when a batch run is started before
	// parameters were submitted.
	ErrParametersMissing = errors.New("session parameters missing")
)

// Session is one simulation request.
type Session struct {
	ID        string        `json:"id"`
	Created   time.Time     `json:"created"`
	Started   *time.Time    `json:"started,omitempty"`
	Status    SessionStatus `json:"status"`
	InputScan string        `json:"input_scan"`
}

const sessionColumns = `session_id, created_unix_nanos, started_unix_nanos, status, input_scan`

func scanSession(scan func(dest ...interface{}) error) (*Session, error) {
	var (
		s       Session
		created int64
		started sql.NullInt64
		status  string
	)
	if err := scan(&s.ID, &created, &started, &status, &s.InputScan); err != nil {
		return nil, err
	}
	s.Created = time.Unix(0, created).UTC()
	if started.Valid {
		t := time.Unix(0, started.Int64).UTC()
		s.Started = &t
	}
	s.Status = SessionStatus(status)
	return &s, nil
}

// CreateSession inserts a not-started session with a fresh UUID.
func (db *DB) CreateSession(inputScan string) (*Session, error) {
	s := &Session{
		ID:        uuid.New().String(),
		Created:   db.now().UTC(),
		Status:    StatusNotStarted,
		InputScan: inputScan,
	}
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, created_unix_nanos, status, input_scan) VALUES (?, ?, ?, ?)`,
		s.ID, s.Created.UnixNano(), string(s.Status), s.InputScan,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

// GetSession returns a session. Deleting sessions are reported as not
// found.
func (db *DB) GetSession(id string) (*Session, error) {
	row := db.QueryRow(
		`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ? AND status != ?`,
		id, string(StatusDeleting),
	)
	s, err := scanSession(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return s, nil
}

// ListSessions returns visible sessions, newest first.
func (db *DB) ListSessions() ([]Session, error) {
	rows, err := db.Query(
		`SELECT `+sessionColumns+` FROM sessions WHERE status != ? ORDER BY created_unix_nanos DESC`,
		string(StatusDeleting),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		s, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

// UpdateSessionStatus moves a session to status unconditionally. It is the
// hook for the render backend that drives running and processed.
func (db *DB) UpdateSessionStatus(id string, status SessionStatus) error {
	if !status.Valid() {
		return fmt.Errorf("unknown status %q: %w", status, ErrInvalidTransition)
	}
	res, err := db.Exec(
		`UPDATE sessions SET status = ? WHERE session_id = ? AND status != ?`,
		string(status), id, string(StatusDeleting),
	)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	return requireOneRow(res, id)
}

// InitiateBatchRun queues a not-started or cancelled session that has
// parameters and stamps its start time.
func (db *DB) InitiateBatchRun(id string) (*Session, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	s, err := scanSession(tx.QueryRow(
		`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ? AND status != ?`,
		id, string(StatusDeleting),
	).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	var hasParams int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM input_parameters WHERE session_id = ?`, id).Scan(&hasParams); err != nil {
		return nil, fmt.Errorf("failed to check parameters: %w", err)
	}
	if hasParams == 0 {
		return nil, fmt.Errorf("%s: %w", id, ErrParametersMissing)
	}
	if s.Status != StatusNotStarted && s.Status != StatusCancelled {
		return nil, fmt.Errorf("cannot start session in state %s: %w", s.Status, ErrInvalidTransition)
	}

	started := db.now().UTC()
	if _, err := tx.Exec(
		`UPDATE sessions SET status = ?, started_unix_nanos = ? WHERE session_id = ?`,
		string(StatusQueued), started.UnixNano(), id,
	); err != nil {
		return nil, fmt.Errorf("failed to queue session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	s.Status = StatusQueued
	s.Started = &started
	return s, nil
}

// CancelBatchRun marks a session cancelled.
func (db *DB) CancelBatchRun(id string) error {
	return db.UpdateSessionStatus(id, StatusCancelled)
}

// DeleteSession hides a session by marking it deleting. PurgeDeletedSessions
// removes the rows.
func (db *DB) DeleteSession(id string) error {
	return db.UpdateSessionStatus(id, StatusDeleting)
}

// PurgeDeletedSessions removes deleting sessions and their parameters and
// returns how many sessions were removed.
func (db *DB) PurgeDeletedSessions() (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM input_parameters WHERE session_id IN (SELECT session_id FROM sessions WHERE status = ?)`,
		string(StatusDeleting),
	); err != nil {
		return 0, fmt.Errorf("failed to delete parameters: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM sessions WHERE status = ?`, string(StatusDeleting))
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted sessions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return n, nil
}

// StuckSessions returns queued or running sessions that started longer ago
// than timeout multiplied by their sample count.
func (db *DB) StuckSessions(timeout time.Duration) ([]Session, error) {
	rows, err := db.Query(
		`SELECT s.session_id, s.created_unix_nanos, s.started_unix_nanos, s.status, s.input_scan
		FROM sessions s
		LEFT JOIN input_parameters p ON p.session_id = s.session_id
		WHERE s.status IN (?, ?)
			AND s.started_unix_nanos IS NOT NULL
			AND s.started_unix_nanos + ? * COALESCE(p.num_samples, 1) < ?
		ORDER BY s.started_unix_nanos ASC`,
		string(StatusQueued), string(StatusRunning), int64(timeout), db.now().UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query stuck sessions: %w", err)
	}
	defer rows.Close()

	stuck := []Session{}
	for rows.Next() {
		s, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		stuck = append(stuck, *s)
	}
	return stuck, rows.Err()
}

// CountSessionsByStatus returns the number of sessions in each status.
func (db *DB) CountSessionsByStatus() (map[SessionStatus]int, error) {
	rows, err := db.Query(`SELECT status, COUNT(*) FROM sessions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	defer rows.Close()

	counts := make(map[SessionStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[SessionStatus(status)] = n
	}
	return counts, rows.Err()
}

func requireOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	return nil
}
