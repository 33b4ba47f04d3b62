// Package checkpoint persists immutable snapshots of session state in a
// local sqlite database. A checkpoint captures the full session document at
// creation time; restoring never mutates the live session on disk.
package checkpoint

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/clio-ai/clio/internal/session"
)

// ErrNotFound is returned when a checkpoint id does not exist.
var ErrNotFound = errors.New("checkpoint not found")

// Store implements session.CheckpointService on sqlite.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// NewStore opens (or creates) the checkpoint database at dbPath.
func NewStore(dbPath string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, log: log}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize checkpoint schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS checkpoints (
		checkpoint_id TEXT PRIMARY KEY,
		session_id    TEXT NOT NULL,
		name          TEXT NOT NULL,
		description   TEXT,
		created_at    INTEGER NOT NULL,
		session_state TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_checkpoints_session ON checkpoints(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func newCheckpointID() string {
	return fmt.Sprintf("checkpoint_%s_%s",
		time.Now().UTC().Format("20060102150405"),
		uuid.NewString()[:8])
}

// Create snapshots the session as it stands and returns the new
// checkpoint's id.
func (s *Store) Create(sess *session.Session, name, description string) (string, error) {
	if sess == nil {
		return "", errors.New("cannot checkpoint a nil session")
	}

	state, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("failed to serialize session %s: %w", sess.ID, err)
	}

	id := newCheckpointID()
	query := `
		INSERT INTO checkpoints (checkpoint_id, session_id, name, description, created_at, session_state)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.Exec(query, id, sess.ID, name, description, time.Now().Unix(), string(state)); err != nil {
		return "", fmt.Errorf("failed to insert checkpoint: %w", err)
	}

	s.log.Debug("checkpoint created",
		zap.String("checkpoint_id", id),
		zap.String("session_id", sess.ID),
		zap.String("name", name))
	return id, nil
}

// Restore rebuilds the session document captured by a checkpoint. The
// returned session is detached: the caller decides whether to save it.
func (s *Store) Restore(checkpointID string) (*session.Session, error) {
	var state string
	query := `SELECT session_state FROM checkpoints WHERE checkpoint_id = ?`
	err := s.db.QueryRow(query, checkpointID).Scan(&state)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("checkpoint %s: %w", checkpointID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint %s: %w", checkpointID, err)
	}

	var sess session.Session
	if err := json.Unmarshal([]byte(state), &sess); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint %s: %w", checkpointID, err)
	}
	sess.UpdatedAt = time.Now().UTC()
	return &sess, nil
}

// ListForSession returns checkpoint ids for a session, newest first.
func (s *Store) ListForSession(sessionID string) ([]string, error) {
	query := `SELECT checkpoint_id FROM checkpoints WHERE session_id = ? ORDER BY created_at DESC`
	rows, err := s.db.Query(query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoints: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteAllForSession removes every checkpoint of a session and reports how
// many were deleted.
func (s *Store) DeleteAllForSession(sessionID string) (int, error) {
	result, err := s.db.Exec(`DELETE FROM checkpoints WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete checkpoints: %w", err)
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}
