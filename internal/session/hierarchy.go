package session

import (
	"fmt"
	"time"
)

// SetParent moves a session under a new parent, detaching it from any prior
// parent first. Both records are rewritten. A parent that is the session
// itself or one of its descendants is rejected, keeping the forest acyclic.
func (s *Store) SetParent(id, parentID string) error {
	if id == parentID {
		return fmt.Errorf("session %s cannot be its own parent", id)
	}

	sess, err := s.Load(id)
	if err != nil {
		return err
	}
	parent, err := s.Load(parentID)
	if err != nil {
		return err
	}

	descendant, err := s.isDescendant(parentID, id)
	if err != nil {
		return err
	}
	if descendant {
		return fmt.Errorf("session %s is a descendant of %s; refusing to create a cycle", parentID, id)
	}

	now := time.Now().UTC()

	if sess.ParentSessionID != "" && sess.ParentSessionID != parentID {
		if old, err := s.Load(sess.ParentSessionID); err == nil {
			old.ChildSessionIDs = removeID(old.ChildSessionIDs, id)
			old.UpdatedAt = now
			if err := s.Save(old); err != nil {
				return fmt.Errorf("failed to detach from old parent: %w", err)
			}
		}
	}

	sess.ParentSessionID = parentID
	sess.UpdatedAt = now
	if !containsID(parent.ChildSessionIDs, id) {
		parent.ChildSessionIDs = append(parent.ChildSessionIDs, id)
	}
	parent.UpdatedAt = now

	if err := s.Save(sess); err != nil {
		return err
	}
	return s.Save(parent)
}

// isDescendant reports whether candidate sits anywhere below ancestor by
// walking candidate's parent chain upward.
func (s *Store) isDescendant(candidate, ancestor string) (bool, error) {
	seen := map[string]bool{}
	current := candidate
	for current != "" && !seen[current] {
		if current == ancestor {
			return true, nil
		}
		seen[current] = true
		sess, err := s.Load(current)
		if err != nil {
			return false, nil // broken link terminates the walk
		}
		current = sess.ParentSessionID
	}
	return false, nil
}

// AddChild registers child under parent, updating both records. Adding an
// existing child is a no-op.
func (s *Store) AddChild(parentID, childID string) error {
	if parentID == childID {
		return fmt.Errorf("session %s cannot be its own child", parentID)
	}
	parent, err := s.Load(parentID)
	if err != nil {
		return err
	}
	child, err := s.Load(childID)
	if err != nil {
		return err
	}
	if containsID(parent.ChildSessionIDs, childID) {
		return nil
	}

	descendant, err := s.isDescendant(parentID, childID)
	if err != nil {
		return err
	}
	if descendant {
		return fmt.Errorf("session %s is a descendant of %s; refusing to create a cycle", parentID, childID)
	}

	now := time.Now().UTC()
	parent.ChildSessionIDs = append(parent.ChildSessionIDs, childID)
	parent.UpdatedAt = now
	child.ParentSessionID = parentID
	child.UpdatedAt = now

	if err := s.Save(parent); err != nil {
		return err
	}
	return s.Save(child)
}

// RemoveChild detaches child from parent, updating both records.
func (s *Store) RemoveChild(parentID, childID string) error {
	parent, err := s.Load(parentID)
	if err != nil {
		return err
	}
	child, err := s.Load(childID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	parent.ChildSessionIDs = removeID(parent.ChildSessionIDs, childID)
	parent.UpdatedAt = now
	child.ParentSessionID = ""
	child.UpdatedAt = now

	if err := s.Save(parent); err != nil {
		return err
	}
	return s.Save(child)
}

// Children returns the child ids recorded on a session.
func (s *Store) Children(id string) ([]string, error) {
	sess, err := s.Load(id)
	if err != nil {
		return nil, err
	}
	return sess.ChildSessionIDs, nil
}

// Hierarchy walks parent links from the given session to its root and
// returns the chain root-first, ending with the session itself.
func (s *Store) Hierarchy(id string) ([]string, error) {
	if !s.Exists(id) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var chain []string
	seen := map[string]bool{}
	current := id
	for current != "" && !seen[current] {
		chain = append(chain, current)
		seen[current] = true
		sess, err := s.Load(current)
		if err != nil {
			break
		}
		current = sess.ParentSessionID
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}
