package session

import (
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"
)

// sessionSchema describes the persisted session document. Fields added after
// the original layout stay optional so older files keep loading.
const sessionSchema = `{
	"type": "object",
	"required": ["id", "created_at", "updated_at", "entries"],
	"properties": {
		"id":                 {"type": "string", "minLength": 1},
		"created_at":         {"type": "string"},
		"updated_at":         {"type": "string"},
		"name":               {"type": "string"},
		"description":        {"type": "string"},
		"tags":               {"type": "array", "items": {"type": "string"}},
		"parent_session_id":  {"type": "string"},
		"child_session_ids":  {"type": "array", "items": {"type": "string"}},
		"checkpoint_ids":     {"type": "array", "items": {"type": "string"}},
		"last_checkpoint_id": {"type": "string"},
		"memory_node_ids":    {"type": "array", "items": {"type": "string"}},
		"total_tokens":       {"type": "integer", "minimum": 0},
		"is_compressed":      {"type": "boolean"},
		"metadata":           {"type": "object", "additionalProperties": {"type": "string"}},
		"entries": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["role", "content", "timestamp"],
				"properties": {
					"role":      {"type": "string", "enum": ["system", "user", "assistant"]},
					"content":   {"type": "string"},
					"timestamp": {"type": "string"}
				}
			}
		}
	}
}`

// ValidateIntegrity checks that the stored document parses, conforms to the
// session schema, and carries a non-empty id, at least one entry, and both
// timestamps.
func (s *Store) ValidateIntegrity(id string) error {
	data, err := os.ReadFile(s.filePath(id))
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to read session file: %w", err)
	}

	schemaLoader := gojsonschema.NewStringLoader(sessionSchema)
	docLoader := gojsonschema.NewBytesLoader(data)
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return fmt.Errorf("session %s is malformed: %s", id, errs[0].String())
		}
		return fmt.Errorf("session %s is malformed", id)
	}

	sess, err := s.Load(id)
	if err != nil {
		return err
	}
	if sess.ID == "" {
		return fmt.Errorf("session %s has an empty id", id)
	}
	if len(sess.Entries) == 0 {
		return fmt.Errorf("session %s has no entries", id)
	}
	if sess.CreatedAt.IsZero() || sess.UpdatedAt.IsZero() {
		return fmt.Errorf("session %s is missing timestamps", id)
	}
	return nil
}
