package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"devteam/pkg/proto"
)

// Snapshot is the persisted form of an in-flight workflow: the state machine
// state plus the pending message queue. Together they are sufficient to
// resume runTask after an interruption without re-deriving any decision.
type Snapshot struct {
	State State            `json:"state"`
	Queue []*proto.Message `json:"queue"`
}

// Save writes the snapshot atomically (temp file + rename) so an interrupted
// write never corrupts the previous snapshot.
func (s *Snapshot) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot produced by Save.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	if snap.State.TaskID == "" {
		return nil, fmt.Errorf("snapshot %s has no task id", path)
	}
	return &snap, nil
}
