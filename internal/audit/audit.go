// Package audit keeps an append-only record of every deletion performed
// against the memory layer, independent of scheduler execution history.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Record is one audit entry. Records are never mutated after append.
type Record struct {
	Type      string    `json:"type"` // "delete", "delete_all", "consolidate"
	IDs       []string  `json:"deleted_ids,omitempty"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// Log is a JSONL-backed append-only audit log.
type Log struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// New creates the audit log under dir, creating the directory if needed.
func New(dir string, logger *zap.Logger) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit dir: %w", err)
	}
	return &Log{path: filepath.Join(dir, "audit.log"), logger: logger}, nil
}

// Append writes one record. ids may be empty for bulk operations where only
// the count is known.
func (l *Log) Append(recType string, ids []string, count int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := Record{Type: recType, IDs: ids, Count: count, Timestamp: time.Now().UTC()}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit marshal: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit open: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit write: %w", err)
	}
	return nil
}

// Recent returns up to limit of the newest records, oldest first.
func (l *Log) Recent(limit int) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit open: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			l.logger.Warn("skipping malformed audit record", zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit read: %w", err)
	}
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}
