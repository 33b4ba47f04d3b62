package session

import (
	"fmt"
	"time"
)

// Role identifies the author of a history entry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// HistoryEntry is a single conversation turn. Entries are append-only and
// never mutated after being added to a session.
type HistoryEntry struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks that the entry carries a known role.
func (e HistoryEntry) Validate() error {
	switch e.Role {
	case RoleSystem, RoleUser, RoleAssistant:
		return nil
	default:
		return fmt.Errorf("invalid entry role: %s", e.Role)
	}
}

// Session is a persisted multi-turn conversation. Sessions form a forest via
// parent/child links; checkpoints and memory nodes live with external
// collaborators and are referenced here by id only.
type Session struct {
	ID               string            `json:"id"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	Name             string            `json:"name,omitempty"`
	Description      string            `json:"description,omitempty"`
	Tags             []string          `json:"tags,omitempty"`
	ParentSessionID  string            `json:"parent_session_id,omitempty"`
	ChildSessionIDs  []string          `json:"child_session_ids,omitempty"`
	Entries          []HistoryEntry    `json:"entries"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CheckpointIDs    []string          `json:"checkpoint_ids,omitempty"`
	LastCheckpointID string            `json:"last_checkpoint_id,omitempty"`
	MemoryNodeIDs    []string          `json:"memory_node_ids,omitempty"`
	TotalTokens      int               `json:"total_tokens,omitempty"`
	IsCompressed     bool              `json:"is_compressed,omitempty"`
}

// HasTag reports whether the session carries the given tag.
func (s *Session) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag appends a tag if not already present.
func (s *Session) AddTag(tag string) {
	if !s.HasTag(tag) {
		s.Tags = append(s.Tags, tag)
	}
}

// RemoveTag deletes a tag if present.
func (s *Session) RemoveTag(tag string) {
	out := s.Tags[:0]
	for _, t := range s.Tags {
		if t != tag {
			out = append(out, t)
		}
	}
	s.Tags = out
}

// Meta is a lightweight view of a session used for listings.
type Meta struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Entries   int       `json:"entries"`
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
