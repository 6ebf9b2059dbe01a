// Package state persists the trader's snapshot between runs. Snapshots are
// JSON documents written with temp-file-plus-rename semantics so a reader
// never observes a partial write, and a crash mid-save leaves the previous
// snapshot intact.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/johnayoung/go-pair-trader/internal/models"
)

// Store saves and restores trader snapshots.
type Store interface {
	// Save durably writes the snapshot, fully replacing any previous one.
	Save(ctx context.Context, state *models.TraderState) error

	// Load returns the persisted snapshot, or (nil, nil) when no usable
	// snapshot exists. A missing, corrupt, or schema-incompatible file is
	// not an error; the caller starts fresh.
	Load(ctx context.Context) (*models.TraderState, error)

	// Reset removes the persisted snapshot.
	Reset(ctx context.Context) error
}

// FileStore is the JSON file implementation of Store.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore creates a store writing snapshots to the given path.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("snapshot path must be set")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &FileStore{
		path:   path,
		logger: logger.With("component", "state_store"),
	}, nil
}

// Save validates and writes the snapshot. The file is written to a temp
// name in the same directory and renamed into place so the replace is
// atomic on POSIX filesystems.
func (s *FileStore) Save(ctx context.Context, state *models.TraderState) error {
	if state == nil {
		return fmt.Errorf("cannot persist a nil snapshot")
	}
	if err := state.Validate(); err != nil {
		return fmt.Errorf("refusing to persist invalid snapshot: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	s.logger.Debug("snapshot persisted",
		"path", s.path,
		"signal", state.Signal.String(),
		"trades", state.Portfolio.TradeCount,
	)

	return nil
}

// Load reads the snapshot from disk. Corruption only loses saved progress:
// the damaged file is logged and (nil, nil) returned so the caller starts
// fresh.
func (s *FileStore) Load(ctx context.Context) (*models.TraderState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var state models.TraderState
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("snapshot file is corrupt, starting fresh",
			"path", s.path,
			"error", err,
		)
		return nil, nil
	}

	if err := state.Validate(); err != nil {
		s.logger.Warn("snapshot failed validation, starting fresh",
			"path", s.path,
			"error", err,
		)
		return nil, nil
	}

	return &state, nil
}

// Reset deletes the persisted snapshot. Missing files are fine.
func (s *FileStore) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove snapshot: %w", err)
	}

	s.logger.Info("snapshot reset", "path", s.path)
	return nil
}

var _ Store = (*FileStore)(nil)
