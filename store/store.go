package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"kimland-sync/internal/types"
)

// ResultStore persists sync results as they are produced and the summary of each batch run
type ResultStore interface {
	SaveResult(ctx context.Context, runID string, result types.SyncResult) error
	SaveRun(ctx context.Context, summary types.BatchSummary) error
	Close()
}

// StatusReader is implemented by stores that can report what was recorded
type StatusReader interface {
	LastResult(ctx context.Context, identifier string) (types.SyncStatus, error)
}

// Record is one line of a FileStore
type Record struct {
	Kind     string              `json:"kind"`
	RunID    string              `json:"run_id"`
	Result   *types.SyncResult   `json:"result,omitempty"`
	Summary  *types.BatchSummary `json:"summary,omitempty"`
	Recorded time.Time           `json:"recorded_at"`
}

const (
	KindResult = "result"
	KindRun    = "run"
)

// longest line LastResult accepts
const maxRecordSize = 4 * 1024 * 1024

// FileStore appends records to a JSON-lines file
type FileStore struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// NewFileStore opens path for appending, creating it and its directory when needed
func NewFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create results directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open results file: %w", err)
	}
	return &FileStore{path: path, file: file}, nil
}

// SaveResult appends one product result
func (s *FileStore) SaveResult(ctx context.Context, runID string, result types.SyncResult) error {
	return s.write(Record{Kind: KindResult, RunID: runID, Result: &result, Recorded: time.Now()})
}

// SaveRun appends a batch summary. Results are not repeated, they were saved one by one.
func (s *FileStore) SaveRun(ctx context.Context, summary types.BatchSummary) error {
	summary.Results = nil
	return s.write(Record{Kind: KindRun, RunID: summary.RunID, Summary: &summary, Recorded: time.Now()})
}

func (s *FileStore) write(record Record) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// LastResult returns the status of the latest result recorded for identifier, or
// types.ErrNotFound
func (s *FileStore) LastResult(ctx context.Context, identifier string) (types.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path)
	if err != nil {
		return "", fmt.Errorf("failed to open results file: %w", err)
	}
	defer file.Close()

	var status types.SyncStatus
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxRecordSize)
	for scanner.Scan() {
		var record Record
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return "", fmt.Errorf("failed to decode record: %w", err)
		}
		if record.Kind == KindResult && record.Result != nil && record.Result.Identifier == identifier {
			status = record.Result.Status
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read results file: %w", err)
	}
	if status == "" {
		return "", types.ErrNotFound
	}
	return status, nil
}

// Close closes the file
func (s *FileStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file.Close()
}

// Discard is a ResultStore that keeps nothing
type Discard struct{}

func (Discard) SaveResult(context.Context, string, types.SyncResult) error { return nil }
func (Discard) SaveRun(context.Context, types.BatchSummary) error          { return nil }
func (Discard) Close()                                                     {}
