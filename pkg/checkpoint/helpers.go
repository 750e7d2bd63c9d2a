package checkpoint

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// NewCheckpoint creates an empty checkpoint for a batch of total records
func NewCheckpoint(batchID string, total int) *BatchCheckpoint {
	now := time.Now()
	return &BatchCheckpoint{
		BatchID:       batchID,
		Total:         total,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
}

// IsDone reports whether record index has already finished.
func (c *BatchCheckpoint) IsDone(index int) bool {
	if index < c.Completed {
		return true
	}
	for _, d := range c.Done {
		if d == index {
			return true
		}
	}
	return false
}

// MarkDone records index as finished and advances the low-water mark over
// any contiguous run. It returns true when the mark moved.
func (c *BatchCheckpoint) MarkDone(index int) bool {
	if c.IsDone(index) {
		return false
	}
	c.Done = append(c.Done, index)
	sort.Ints(c.Done)

	before := c.Completed
	for len(c.Done) > 0 && c.Done[0] == c.Completed {
		c.Done = c.Done[1:]
		c.Completed++
	}
	if len(c.Done) == 0 {
		c.Done = nil
	}
	return c.Completed != before
}

// MarkFailed records a failed record. It still finishes the index.
func (c *BatchCheckpoint) MarkFailed(index int, err error) bool {
	if c.Failed == nil {
		c.Failed = make(map[int]string)
	}
	c.Failed[index] = err.Error()
	c.LastError = err.Error()
	return c.MarkDone(index)
}

// IsComplete reports whether every record finished.
func (c *BatchCheckpoint) IsComplete() bool {
	return c.Completed >= c.Total
}

// GetProgress returns a human-readable progress description
func (c *BatchCheckpoint) GetProgress() string {
	if c.Total == 0 {
		return "100% (0/0)"
	}
	finished := c.Completed + len(c.Done)
	return fmt.Sprintf("%.0f%% (%d/%d)", float64(finished)/float64(c.Total)*100, finished, c.Total)
}

// CanRetry reports whether a resumed run is still worth attempting
func (c *BatchCheckpoint) CanRetry(maxAttempts int, maxAge time.Duration) bool {
	if c.AttemptCount >= maxAttempts {
		return false
	}
	return time.Since(c.CreatedAt) <= maxAge
}

// LoadOrCreate loads an existing checkpoint or creates a new one. A stored
// checkpoint for a batch of a different size is discarded.
func (m *CheckpointManager) LoadOrCreate(ctx context.Context, batchID string, total int) (*BatchCheckpoint, bool, error) {
	existing, err := m.Load(ctx, batchID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil && existing.Total == total {
		existing.AttemptCount++
		return existing, true, nil
	}

	cp := NewCheckpoint(batchID, total)
	if err := m.Save(ctx, cp); err != nil {
		return nil, false, err
	}
	return cp, false, nil
}

// Summary provides a human-readable summary of the checkpoint
func (c *BatchCheckpoint) Summary() string {
	summary := fmt.Sprintf("Batch: %s\n", c.BatchID)
	summary += fmt.Sprintf("Progress: %s\n", c.GetProgress())
	summary += fmt.Sprintf("Created: %s\n", c.CreatedAt.Format(time.RFC3339))
	summary += fmt.Sprintf("Last Updated: %s\n", c.LastUpdatedAt.Format(time.RFC3339))
	summary += fmt.Sprintf("Attempts: %d\n", c.AttemptCount)
	if len(c.Failed) > 0 {
		summary += fmt.Sprintf("Failed Records: %d\n", len(c.Failed))
	}
	if c.LastError != "" {
		summary += fmt.Sprintf("Last Error: %s\n", c.LastError)
	}
	return summary
}
