package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotFound is returned when an operation references an unknown session id.
var ErrNotFound = errors.New("session not found")

// CheckpointService is the external collaborator that owns checkpoint
// persistence. The store only records the ids it hands back.
type CheckpointService interface {
	Create(sess *Session, name, description string) (string, error)
	Restore(checkpointID string) (*Session, error)
	ListForSession(sessionID string) ([]string, error)
	DeleteAllForSession(sessionID string) (int, error)
}

// MemoryService is the external collaborator that owns memory node
// persistence and distillation.
type MemoryService interface {
	CreateFromSession(sessionID string, entries []HistoryEntry, name, parentID string) (string, error)
	AssociateSession(nodeID, sessionID string) (bool, error)
	SessionNodes(sessionID string) ([]string, error)
	Exists(nodeID string) (bool, error)
}

// Store persists sessions as one JSON document per session under a single
// directory. Every mutation is a full read-modify-write of the backing file;
// writes go through a temp file and rename so a crashed process never leaves
// a half-written session behind.
type Store struct {
	dir         string
	log         *zap.Logger
	checkpoints CheckpointService
	memory      MemoryService
}

// NewStore creates a session store rooted at dir. The directory is created
// lazily on first save.
func NewStore(dir string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{dir: dir, log: log}
}

// AttachCheckpoints wires the checkpoint collaborator. Checkpoint operations
// fail until one is attached.
func (s *Store) AttachCheckpoints(c CheckpointService) { s.checkpoints = c }

// AttachMemory wires the memory collaborator. Memory operations fail until
// one is attached.
func (s *Store) AttachMemory(m MemoryService) { s.memory = m }

// Dir returns the directory the store writes into.
func (s *Store) Dir() string { return s.dir }

func (s *Store) filePath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func newSessionID() string {
	return "session_" + time.Now().UTC().Format("20060102_150405") + "_" + uuid.NewString()[:8]
}

// Create makes a new empty session and persists it.
func (s *Store) Create() (string, error) {
	return s.CreateWithMetadata("", "", nil, "")
}

// CreateWithMetadata makes a new session carrying the given metadata. When
// parentID is set, the new session is also registered as a child of that
// parent.
func (s *Store) CreateWithMetadata(name, description string, tags []string, parentID string) (string, error) {
	now := time.Now().UTC()
	sess := &Session{
		ID:        newSessionID(),
		CreatedAt: now,
		UpdatedAt: now,
		Name:      name,
		Tags:      tags,
	}
	sess.Description = description

	if err := s.Save(sess); err != nil {
		return "", err
	}

	if parentID != "" {
		if err := s.SetParent(sess.ID, parentID); err != nil {
			return "", fmt.Errorf("failed to attach to parent %s: %w", parentID, err)
		}
	}

	s.log.Debug("session created", zap.String("id", sess.ID), zap.String("parent", parentID))
	return sess.ID, nil
}

// Load reads a session from disk. Returns ErrNotFound for unknown ids.
func (s *Store) Load(id string) (*Session, error) {
	data, err := os.ReadFile(s.filePath(id))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", id, err)
	}
	return &sess, nil
}

// Save persists a session. The write is atomic: the document is written to a
// temp file in the same directory and renamed over the target.
func (s *Store) Save(sess *Session) error {
	if sess.ID == "" {
		return fmt.Errorf("cannot save session without an id")
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, sess.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close session file: %w", err)
	}
	if err := os.Rename(tmpName, s.filePath(sess.ID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to commit session file: %w", err)
	}
	return nil
}

// Exists reports whether a session file is present for the id.
func (s *Store) Exists(id string) bool {
	_, err := os.Stat(s.filePath(id))
	return err == nil
}

// Delete removes a session and scrubs its id from related records: the
// parent's child list, each child's parent pointer, and all checkpoints held
// by the checkpoint collaborator.
func (s *Store) Delete(id string) error {
	sess, err := s.Load(id)
	if err != nil {
		return err
	}

	if sess.ParentSessionID != "" {
		if parent, err := s.Load(sess.ParentSessionID); err == nil {
			parent.ChildSessionIDs = removeID(parent.ChildSessionIDs, id)
			parent.UpdatedAt = time.Now().UTC()
			if err := s.Save(parent); err != nil {
				s.log.Warn("failed to detach from parent", zap.String("parent", parent.ID), zap.Error(err))
			}
		}
	}
	for _, childID := range sess.ChildSessionIDs {
		if child, err := s.Load(childID); err == nil {
			child.ParentSessionID = ""
			child.UpdatedAt = time.Now().UTC()
			if err := s.Save(child); err != nil {
				s.log.Warn("failed to orphan child", zap.String("child", childID), zap.Error(err))
			}
		}
	}

	if s.checkpoints != nil {
		if n, err := s.checkpoints.DeleteAllForSession(id); err != nil {
			s.log.Warn("failed to delete checkpoints", zap.String("session", id), zap.Error(err))
		} else if n > 0 {
			s.log.Debug("checkpoints deleted", zap.String("session", id), zap.Int("count", n))
		}
	}

	if err := os.Remove(s.filePath(id)); err != nil {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// AppendEntry adds a conversation turn stamped with the current time.
func (s *Store) AppendEntry(id string, role Role, content string) error {
	entry := HistoryEntry{Role: role, Content: content, Timestamp: time.Now().UTC()}
	if err := entry.Validate(); err != nil {
		return err
	}

	sess, err := s.Load(id)
	if err != nil {
		return err
	}
	sess.Entries = append(sess.Entries, entry)
	sess.UpdatedAt = entry.Timestamp
	return s.Save(sess)
}

// UpdateMetadata overwrites name and description when non-empty and merges
// the given tags into the session's tag set.
func (s *Store) UpdateMetadata(id, name, description string, tags []string) error {
	sess, err := s.Load(id)
	if err != nil {
		return err
	}
	if name != "" {
		sess.Name = name
	}
	if description != "" {
		sess.Description = description
	}
	for _, t := range tags {
		sess.AddTag(t)
	}
	sess.UpdatedAt = time.Now().UTC()
	return s.Save(sess)
}

// AddTags merges tags into the session's tag set.
func (s *Store) AddTags(id string, tags []string) error {
	sess, err := s.Load(id)
	if err != nil {
		return err
	}
	for _, t := range tags {
		sess.AddTag(t)
	}
	sess.UpdatedAt = time.Now().UTC()
	return s.Save(sess)
}

// RemoveTags deletes tags from the session's tag set.
func (s *Store) RemoveTags(id string, tags []string) error {
	sess, err := s.Load(id)
	if err != nil {
		return err
	}
	for _, t := range tags {
		sess.RemoveTag(t)
	}
	sess.UpdatedAt = time.Now().UTC()
	return s.Save(sess)
}

// SetCompressed flips the compression marker on a session.
func (s *Store) SetCompressed(id string, compressed bool) error {
	sess, err := s.Load(id)
	if err != nil {
		return err
	}
	sess.IsCompressed = compressed
	sess.UpdatedAt = time.Now().UTC()
	return s.Save(sess)
}

// AddTokens accumulates provider-reported token usage on the session.
func (s *Store) AddTokens(id string, tokens int) error {
	if tokens <= 0 {
		return nil
	}
	sess, err := s.Load(id)
	if err != nil {
		return err
	}
	sess.TotalTokens += tokens
	sess.UpdatedAt = time.Now().UTC()
	return s.Save(sess)
}

// List returns metadata for every stored session, newest first.
func (s *Store) List() ([]Meta, error) {
	ids, err := s.allIDs()
	if err != nil {
		return nil, err
	}

	var metas []Meta
	for _, id := range ids {
		sess, err := s.Load(id)
		if err != nil {
			continue // skip unreadable files
		}
		metas = append(metas, Meta{
			ID:        sess.ID,
			Name:      sess.Name,
			CreatedAt: sess.CreatedAt,
			UpdatedAt: sess.UpdatedAt,
			Entries:   len(sess.Entries),
		})
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}

func (s *Store) allIDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list session directory: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		ids = append(ids, name[:len(name)-len(".json")])
	}
	return ids, nil
}
