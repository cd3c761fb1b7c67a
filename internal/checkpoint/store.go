// Package checkpoint implements the CheckpointStore: durable,
// atomically-written per-task snapshots under
// <workspace>/.state/checkpoints/<task_id>.json.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/context-foundry/core/internal/ferrors"
	"github.com/context-foundry/core/pkg/model"
)

// Store persists and restores Checkpoints under root/.state/checkpoints.
type Store struct {
	dir string
}

// New returns a Store rooted at <root>/.state/checkpoints.
func New(root string) *Store {
	return &Store{dir: filepath.Join(root, ".state", "checkpoints")}
}

func (s *Store) path(taskID string) string {
	return filepath.Join(s.dir, taskID+".json")
}

// Save atomically writes checkpoint, replacing any prior snapshot for the
// same task. Partial checkpoints are never observable by a concurrent
// reader: the write lands in a temp file in the same directory and is
// rename(2)'d into place.
func (s *Store) Save(checkpoint model.Checkpoint) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir checkpoints dir: %v", ferrors.ErrCheckpointIO, err)
	}

	data, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("%w: marshal checkpoint: %v", ferrors.ErrCheckpointIO, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", ferrors.ErrCheckpointIO, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write temp: %v", ferrors.ErrCheckpointIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp: %v", ferrors.ErrCheckpointIO, err)
	}
	if err := os.Rename(tmpPath, s.path(checkpoint.TaskID)); err != nil {
		return fmt.Errorf("%w: rename into place: %v", ferrors.ErrCheckpointIO, err)
	}
	return nil
}

// Load returns the persisted checkpoint for taskID, or (nil, nil) if none
// exists yet.
func (s *Store) Load(taskID string) (*model.Checkpoint, error) {
	data, err := os.ReadFile(s.path(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read checkpoint: %v", ferrors.ErrCheckpointIO, err)
	}

	var checkpoint model.Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("%w: decode checkpoint: %v", ferrors.ErrCheckpointIO, err)
	}
	return &checkpoint, nil
}

// List returns the task ids with a persisted checkpoint, sorted for
// deterministic output.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read checkpoints dir: %v", ferrors.ErrCheckpointIO, err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".tmp-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}
