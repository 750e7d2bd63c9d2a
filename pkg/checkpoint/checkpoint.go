package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidBatchID is returned when a batch ID contains invalid characters
var ErrInvalidBatchID = errors.New("invalid batch ID: contains path traversal or invalid characters")

// BatchCheckpoint records how far an ingestion batch got. Records are
// addressed by their index in the batch. Every index below Completed is
// done; Done holds finished indices above that low-water mark.
type BatchCheckpoint struct {
	BatchID string `json:"batch_id"`
	Total   int    `json:"total"`

	Completed int   `json:"completed"`
	Done      []int `json:"done,omitempty"`

	// Failed maps record index to the last error it produced. Failed
	// records count as finished so they do not pin the low-water mark.
	Failed map[int]string `json:"failed,omitempty"`

	CreatedAt     time.Time `json:"created_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
	AttemptCount  int       `json:"attempt_count"`
	LastError     string    `json:"last_error,omitempty"`
}

// CheckpointManager stores batch checkpoints as JSON files
type CheckpointManager struct {
	checkpointDir string
}

// NewCheckpointManager creates a new checkpoint manager
// If checkpointDir is empty, uses os.TempDir()/groundgraph-checkpoints
func NewCheckpointManager(checkpointDir string) (*CheckpointManager, error) {
	if checkpointDir == "" {
		checkpointDir = filepath.Join(os.TempDir(), "groundgraph-checkpoints")
	}
	if err := os.MkdirAll(checkpointDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &CheckpointManager{checkpointDir: checkpointDir}, nil
}

// validateBatchID rejects IDs containing path separators, traversal
// sequences or null bytes.
func validateBatchID(batchID string) error {
	if batchID == "" {
		return ErrInvalidBatchID
	}
	if strings.Contains(batchID, "..") || strings.ContainsAny(batchID, `/\`) || strings.ContainsRune(batchID, '\x00') {
		return ErrInvalidBatchID
	}
	return nil
}

func isPathWithinDirectory(path, directory string) bool {
	cleanPath := filepath.Clean(path)
	cleanDir := filepath.Clean(directory)
	if !strings.HasSuffix(cleanDir, string(filepath.Separator)) {
		cleanDir += string(filepath.Separator)
	}
	return strings.HasPrefix(cleanPath, cleanDir)
}

// GetCheckpointPath returns the file path for a batch checkpoint.
func (m *CheckpointManager) GetCheckpointPath(batchID string) (string, error) {
	if err := validateBatchID(batchID); err != nil {
		return "", err
	}
	fullPath := filepath.Join(m.checkpointDir, fmt.Sprintf("checkpoint_%s.json", batchID))
	if !isPathWithinDirectory(fullPath, m.checkpointDir) {
		return "", ErrInvalidBatchID
	}
	return fullPath, nil
}

// Save persists the checkpoint to disk
func (m *CheckpointManager) Save(ctx context.Context, cp *BatchCheckpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp.LastUpdatedAt = time.Now()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	checkpointPath, err := m.GetCheckpointPath(cp.BatchID)
	if err != nil {
		return fmt.Errorf("invalid batch ID: %w", err)
	}

	// Write to a temporary file first, then rename for atomic write
	tmpPath := checkpointPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	if err := os.Rename(tmpPath, checkpointPath); err != nil {
		return fmt.Errorf("failed to rename checkpoint file: %w", err)
	}
	return nil
}

// Load retrieves a checkpoint from disk. It returns nil, nil when none exists.
func (m *CheckpointManager) Load(ctx context.Context, batchID string) (*BatchCheckpoint, error) {
	checkpointPath, err := m.GetCheckpointPath(batchID)
	if err != nil {
		return nil, fmt.Errorf("invalid batch ID: %w", err)
	}

	data, err := os.ReadFile(checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var cp BatchCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// Delete removes a checkpoint from disk
func (m *CheckpointManager) Delete(ctx context.Context, batchID string) error {
	checkpointPath, err := m.GetCheckpointPath(batchID)
	if err != nil {
		return fmt.Errorf("invalid batch ID: %w", err)
	}
	if err := os.Remove(checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint file: %w", err)
	}
	return nil
}

// List returns every readable checkpoint in the directory
func (m *CheckpointManager) List(ctx context.Context) ([]*BatchCheckpoint, error) {
	entries, err := os.ReadDir(m.checkpointDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	var checkpoints []*BatchCheckpoint
	for _, entry := range entries {
		// Only process .json files, skip .tmp files
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.checkpointDir, entry.Name()))
		if err != nil {
			continue
		}
		var cp BatchCheckpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			continue
		}
		checkpoints = append(checkpoints, &cp)
	}
	return checkpoints, nil
}

// GetCheckpointDir returns the checkpoint directory path
func (m *CheckpointManager) GetCheckpointDir() string {
	return m.checkpointDir
}

// CleanOld removes checkpoints older than maxAge
func (m *CheckpointManager) CleanOld(ctx context.Context, maxAge time.Duration) (int, error) {
	checkpoints, err := m.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, cp := range checkpoints {
		if cp.LastUpdatedAt.Before(cutoff) {
			if err := m.Delete(ctx, cp.BatchID); err != nil {
				continue
			}
			removed++
		}
	}
	return removed, nil
}
