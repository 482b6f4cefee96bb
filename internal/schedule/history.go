package schedule

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// historyKeep bounds the records retained per task.
const historyKeep = 100

// ExecutionRecord captures one run of a scheduled task.
type ExecutionRecord struct {
	TaskID     int       `json:"task_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Success    bool      `json:"success"`
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// History stores per-task execution records as JSONL files under the data
// dir, pruned to the most recent historyKeep entries.
type History struct {
	dir string
}

// NewHistory creates a history rooted at dataDir/history.
func NewHistory(dataDir string) (*History, error) {
	dir := filepath.Join(dataDir, "history")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	return &History{dir: dir}, nil
}

func (h *History) file(taskID int) string {
	return filepath.Join(h.dir, fmt.Sprintf("task-%d.jsonl", taskID))
}

// Append records a run, pruning the file when it exceeds historyKeep.
func (h *History) Append(rec ExecutionRecord) error {
	records, err := h.Records(rec.TaskID, 0)
	if err != nil {
		return err
	}
	records = append(records, rec)
	if len(records) > historyKeep {
		records = records[len(records)-historyKeep:]
	}

	tmp := h.file(rec.TaskID) + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	enc := json.NewEncoder(f)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			f.Close()
			return fmt.Errorf("encode history: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	if err := os.Rename(tmp, h.file(rec.TaskID)); err != nil {
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}

// Records returns a task's runs oldest first. limit 0 means all retained
// records; otherwise the most recent limit records are returned.
func (h *History) Records(taskID, limit int) ([]ExecutionRecord, error) {
	f, err := os.Open(h.file(taskID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	defer f.Close()

	var records []ExecutionRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec ExecutionRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			// A torn trailing line from an interrupted write is skipped.
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan history: %w", err)
	}
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}
