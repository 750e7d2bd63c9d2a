package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/soundprediction/groundgraph/pkg/checkpoint"
	"github.com/soundprediction/groundgraph/pkg/types"
	"github.com/soundprediction/groundgraph/pkg/utils"
)

// BatchResult summarizes one IngestBatch call.
type BatchResult struct {
	BatchID   string
	Total     int
	Processed int
	// Skipped counts records a resumed checkpoint had already finished.
	Skipped int
	Failed  int
	Resumed bool
	// Results is indexed like the input; skipped and failed slots are nil.
	Results []*Result
	Errors  map[int]error
}

// Partial reports whether any record failed or was only partly ingested.
func (b *BatchResult) Partial() bool {
	if b.Failed > 0 {
		return true
	}
	for _, r := range b.Results {
		if r != nil && r.Partial() {
			return true
		}
	}
	return false
}

// IngestBatch ingests records in parallel. With a checkpoint manager and a
// non-empty batchID, progress is persisted and a rerun of the same batch
// skips records that already finished. Records that failed because a
// collaborator was unavailable stay pending so the rerun retries them.
func (i *Integrator) IngestBatch(ctx context.Context, batchID string, records []Record, mapping *SourceMapping) (*BatchResult, error) {
	result := &BatchResult{
		BatchID: batchID,
		Total:   len(records),
		Results: make([]*Result, len(records)),
		Errors:  make(map[int]error),
	}

	var cp *checkpoint.BatchCheckpoint
	if i.checkpoints != nil && batchID != "" {
		loaded, resumed, err := i.checkpoints.LoadOrCreate(ctx, batchID, len(records))
		if err != nil {
			return nil, fmt.Errorf("load checkpoint %s: %w", batchID, err)
		}
		cp = loaded
		result.Resumed = resumed
		if resumed {
			i.logger.Info("Resuming batch", "batch", batchID, "progress", cp.GetProgress(), "attempt", cp.AttemptCount)
		}
	}

	var mu sync.Mutex
	record := func(idx int, res *Result, err error) {
		mu.Lock()
		defer mu.Unlock()

		retryLater := err != nil && (errors.Is(err, types.ErrServiceUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
		if err != nil {
			result.Failed++
			result.Errors[idx] = err
		} else {
			result.Processed++
			result.Results[idx] = res
		}
		if cp == nil || retryLater {
			return
		}
		if err != nil {
			cp.MarkFailed(idx, err)
		} else {
			cp.MarkDone(idx)
		}
		if saveErr := i.checkpoints.Save(ctx, cp); saveErr != nil {
			i.logger.Warn("Failed to save checkpoint", "batch", batchID, "error", saveErr)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)

	for idx, rec := range records {
		if cp != nil && cp.IsDone(idx) {
			result.Skipped++
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			defer utils.RecoverWithCallback(func(perr error) {
				record(idx, nil, perr)
			})
			res, ingestErr := i.Ingest(gctx, rec, mapping)
			if ingestErr != nil {
				i.logger.Warn("Record failed", "batch", batchID, "index", idx, "error", ingestErr)
			}
			record(idx, res, ingestErr)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return result, err
	}

	if cp != nil && cp.IsComplete() {
		if err := i.checkpoints.Delete(ctx, batchID); err != nil {
			i.logger.Warn("Failed to delete checkpoint", "batch", batchID, "error", err)
		}
	}

	i.logger.Info("Batch ingested",
		"batch", batchID,
		"total", result.Total,
		"processed", result.Processed,
		"skipped", result.Skipped,
		"failed", result.Failed)
	return result, nil
}
