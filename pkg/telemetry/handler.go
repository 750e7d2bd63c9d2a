// Package telemetry persists what the query pipeline did: one audit row per
// question and the error logs raised while answering it.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"github.com/soundprediction/groundgraph/pkg/types"
)

// ErrorRecord is one error-level log entry.
type ErrorRecord struct {
	ID         string    `parquet:"id"`
	Timestamp  time.Time `parquet:"timestamp"`
	Level      string    `parquet:"level"`
	Message    string    `parquet:"message"`
	QueryID    string    `parquet:"query_id"`
	Usage      string    `parquet:"usage"`
	SourceFile string    `parquet:"source_file"`
	LineNumber int       `parquet:"line_number"`
	Attributes string    `parquet:"attributes"` // JSON string
}

// errorSink is the buffer shared by a handler and its derived handlers.
type errorSink struct {
	mu        sync.Mutex
	outputDir string
	batchSize int
	buffer    []ErrorRecord
}

// ParquetHandler is a slog.Handler that forwards every record to next and
// also keeps error-level records in Parquet files tagged with the query id.
type ParquetHandler struct {
	next  slog.Handler
	sink  *errorSink
	attrs []slog.Attr
}

// NewParquetHandler creates a ParquetHandler writing under outputDir.
func NewParquetHandler(next slog.Handler, outputDir string, batchSize int) (*ParquetHandler, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ParquetHandler{
		next: next,
		sink: &errorSink{outputDir: outputDir, batchSize: batchSize, buffer: make([]ErrorRecord, 0, batchSize)},
	}, nil
}

// Enabled implements slog.Handler
func (h *ParquetHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler
func (h *ParquetHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.next.Handle(ctx, r); err != nil {
		return err
	}
	if r.Level < slog.LevelError {
		return nil
	}

	var queryID, usage string
	if v, ok := ctx.Value(types.ContextKeyQueryID).(string); ok {
		queryID = v
	}
	if v, ok := ctx.Value(types.ContextKeyUsage).(string); ok {
		usage = v
	}

	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		attrs[a.Key] = attrValue(a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = attrValue(a.Value)
		return true
	})
	attrsJSON, _ := json.Marshal(attrs)

	fs := runtime.CallersFrames([]uintptr{r.PC})
	f, _ := fs.Next()

	record := ErrorRecord{
		ID:         uuid.New().String(),
		Timestamp:  r.Time.UTC(),
		Level:      r.Level.String(),
		Message:    r.Message,
		QueryID:    queryID,
		Usage:      usage,
		SourceFile: f.File,
		LineNumber: f.Line,
		Attributes: string(attrsJSON),
	}

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	h.sink.buffer = append(h.sink.buffer, record)
	if len(h.sink.buffer) >= h.sink.batchSize {
		return h.sink.flush()
	}
	return nil
}

// Flush writes buffered error records.
func (h *ParquetHandler) Flush() error {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	return h.sink.flush()
}

// flush writes the buffer to a new file. Caller must hold the lock.
func (s *errorSink) flush() error {
	if len(s.buffer) == 0 {
		return nil
	}
	now := time.Now()
	path := filepath.Join(s.outputDir, fmt.Sprintf("query_errors_%s_%d.parquet", now.Format("20060102_150405"), now.UnixNano()))
	if err := parquet.WriteFile(path, s.buffer); err != nil {
		// the next handler already has the record; never recurse into slog here
		fmt.Fprintf(os.Stderr, "Failed to write telemetry parquet file: %v\n", err)
		return err
	}
	s.buffer = make([]ErrorRecord, 0, s.batchSize)
	return nil
}

// WithAttrs implements slog.Handler. Derived handlers share the buffer.
func (h *ParquetHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ParquetHandler{
		next:  h.next.WithAttrs(attrs),
		sink:  h.sink,
		attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...),
	}
}

// WithGroup implements slog.Handler
func (h *ParquetHandler) WithGroup(name string) slog.Handler {
	return &ParquetHandler{next: h.next.WithGroup(name), sink: h.sink, attrs: h.attrs}
}

func attrValue(v slog.Value) any {
	v = v.Resolve()
	if err, ok := v.Any().(error); ok {
		return err.Error()
	}
	return v.Any()
}
