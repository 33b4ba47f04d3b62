package session

import (
	"fmt"
	"time"
)

// CreateCheckpoint delegates snapshot creation to the checkpoint collaborator
// and records the returned id on the session.
func (s *Store) CreateCheckpoint(id, name, description string) (string, error) {
	if s.checkpoints == nil {
		return "", fmt.Errorf("no checkpoint service attached")
	}
	sess, err := s.Load(id)
	if err != nil {
		return "", err
	}

	checkpointID, err := s.checkpoints.Create(sess, name, description)
	if err != nil {
		return "", fmt.Errorf("failed to create checkpoint: %w", err)
	}

	sess.CheckpointIDs = append(sess.CheckpointIDs, checkpointID)
	sess.LastCheckpointID = checkpointID
	sess.UpdatedAt = time.Now().UTC()
	if err := s.Save(sess); err != nil {
		return "", err
	}
	return checkpointID, nil
}

// RestoreFromCheckpoint returns the session snapshot held by the checkpoint
// collaborator. The snapshot is not written back to the store.
func (s *Store) RestoreFromCheckpoint(checkpointID string) (*Session, error) {
	if s.checkpoints == nil {
		return nil, fmt.Errorf("no checkpoint service attached")
	}
	return s.checkpoints.Restore(checkpointID)
}

// Checkpoints lists the checkpoint ids the collaborator holds for a session.
func (s *Store) Checkpoints(id string) ([]string, error) {
	if s.checkpoints == nil {
		return nil, fmt.Errorf("no checkpoint service attached")
	}
	return s.checkpoints.ListForSession(id)
}

// DeleteCheckpoints removes every checkpoint for a session and clears the
// session's checkpoint bookkeeping.
func (s *Store) DeleteCheckpoints(id string) (int, error) {
	if s.checkpoints == nil {
		return 0, fmt.Errorf("no checkpoint service attached")
	}
	n, err := s.checkpoints.DeleteAllForSession(id)
	if err != nil {
		return 0, err
	}

	sess, err := s.Load(id)
	if err != nil {
		return n, err
	}
	sess.CheckpointIDs = nil
	sess.LastCheckpointID = ""
	sess.UpdatedAt = time.Now().UTC()
	return n, s.Save(sess)
}

// CreateMemoryFromSession asks the memory collaborator to distill the
// session's entries into a memory node and records the node id on the
// session.
func (s *Store) CreateMemoryFromSession(id, memoryName, parentMemoryID string) (string, error) {
	if s.memory == nil {
		return "", fmt.Errorf("no memory service attached")
	}
	sess, err := s.Load(id)
	if err != nil {
		return "", err
	}

	nodeID, err := s.memory.CreateFromSession(id, sess.Entries, memoryName, parentMemoryID)
	if err != nil {
		return "", fmt.Errorf("failed to create memory from session: %w", err)
	}

	sess.MemoryNodeIDs = append(sess.MemoryNodeIDs, nodeID)
	sess.UpdatedAt = time.Now().UTC()
	if err := s.Save(sess); err != nil {
		return "", err
	}
	return nodeID, nil
}

// AssociateMemory links an existing memory node to the session. Calling it
// twice with the same node is a no-op.
func (s *Store) AssociateMemory(id, nodeID string) error {
	if s.memory == nil {
		return fmt.Errorf("no memory service attached")
	}

	exists, err := s.memory.Exists(nodeID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("memory node %s does not exist", nodeID)
	}

	if _, err := s.memory.AssociateSession(nodeID, id); err != nil {
		return fmt.Errorf("failed to associate memory node: %w", err)
	}

	sess, err := s.Load(id)
	if err != nil {
		return err
	}
	if containsID(sess.MemoryNodeIDs, nodeID) {
		return nil
	}
	sess.MemoryNodeIDs = append(sess.MemoryNodeIDs, nodeID)
	sess.UpdatedAt = time.Now().UTC()
	return s.Save(sess)
}

// MemoryNodes lists the memory node ids the collaborator associates with a
// session.
func (s *Store) MemoryNodes(id string) ([]string, error) {
	if s.memory == nil {
		return nil, fmt.Errorf("no memory service attached")
	}
	return s.memory.SessionNodes(id)
}
