package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
)

// DefaultAuditBatchSize is how many rows are buffered before a file is written.
const DefaultAuditBatchSize = 50

// AuditRecord is one answered question.
type AuditRecord struct {
	QueryID       string    `parquet:"query_id"`
	Timestamp     time.Time `parquet:"timestamp"`
	Question      string    `parquet:"question"`
	Route         string    `parquet:"route"`
	RouteStage    string    `parquet:"route_stage"`
	FinalState    string    `parquet:"final_state"`
	Transitions   []string  `parquet:"transitions,list"`
	Answer        string    `parquet:"answer"`
	Confidence    float64   `parquet:"confidence"`
	PathCount     int64     `parquet:"path_count"`
	EvidenceCount int64     `parquet:"evidence_count"`
	SpecAttempts  int64     `parquet:"spec_attempts"`
	LiveResults   int64     `parquet:"live_results"`
	Error         string    `parquet:"error"`
	DurationMS    int64     `parquet:"duration_ms"`
}

// AuditLog buffers AuditRecords and writes them as Parquet files under dir.
// It is safe for concurrent use.
type AuditLog struct {
	dir       string
	batchSize int
	logger    *slog.Logger

	mu     sync.Mutex
	buffer []AuditRecord
	files  []string
	now    func() time.Time
}

// NewAuditLog creates dir and returns an audit log writing into it.
func NewAuditLog(dir string, batchSize int, logger *slog.Logger) (*AuditLog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	if batchSize <= 0 {
		batchSize = DefaultAuditBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLog{
		dir:       dir,
		batchSize: batchSize,
		logger:    logger,
		buffer:    make([]AuditRecord, 0, batchSize),
		now:       time.Now,
	}, nil
}

// Record adds rec to the buffer and writes a file once the batch is full.
// Safe on a nil receiver.
func (a *AuditLog) Record(ctx context.Context, rec AuditRecord) error {
	if a == nil {
		return nil
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = a.now()
	}
	rec.Timestamp = rec.Timestamp.UTC()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.buffer = append(a.buffer, rec)
	if len(a.buffer) >= a.batchSize {
		return a.flush()
	}
	return nil
}

// Flush writes any buffered rows.
func (a *AuditLog) Flush() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flush()
}

// Files returns the paths written so far.
func (a *AuditLog) Files() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.files...)
}

// Close flushes the buffer.
func (a *AuditLog) Close() error {
	return a.Flush()
}

// flush writes the buffer to a new file. Caller must hold the lock.
func (a *AuditLog) flush() error {
	if len(a.buffer) == 0 {
		return nil
	}
	now := a.now()
	path := filepath.Join(a.dir, fmt.Sprintf("audit_%s_%d.parquet", now.Format("20060102_150405"), now.UnixNano()))
	if err := parquet.WriteFile(path, a.buffer); err != nil {
		a.logger.Error("Failed to write audit file", "path", path, "error", err)
		return fmt.Errorf("write audit file: %w", err)
	}
	a.logger.Debug("Persisted audit rows", "path", path, "rows", len(a.buffer))
	a.files = append(a.files, path)
	a.buffer = make([]AuditRecord, 0, a.batchSize)
	return nil
}

// ReadAuditFile loads the rows of one audit file.
func ReadAuditFile(path string) ([]AuditRecord, error) {
	rows, err := parquet.ReadFile[AuditRecord](path)
	if err != nil {
		return nil, fmt.Errorf("read audit file %s: %w", path, err)
	}
	return rows, nil
}
