package schedule

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Store persists the task list as a single JSON file under the data dir.
// Writes are atomic: temp file then rename. The store assumes a single
// writer process; concurrent task RUNS are serialized separately by the
// runner's lock files.
type Store struct {
	path string
}

// NewStore creates a task store rooted at dataDir, creating the directory
// if needed.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{path: filepath.Join(dataDir, "tasks.json")}, nil
}

type taskFile struct {
	Tasks []Task `json:"tasks"`
}

func (s *Store) load() (*taskFile, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &taskFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}
	var tf taskFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse tasks %s: %w", s.path, err)
	}
	return &tf, nil
}

func (s *Store) save(tf *taskFile) error {
	sort.Slice(tf.Tasks, func(i, j int) bool { return tf.Tasks[i].ID < tf.Tasks[j].ID })
	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tasks: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace tasks: %w", err)
	}
	return nil
}

// Add validates and persists a new task, assigning the next integer id
// (highest existing id plus one). Returns the stored task.
func (s *Store) Add(task Task) (*Task, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}
	tf, err := s.load()
	if err != nil {
		return nil, err
	}
	maxID := 0
	for _, t := range tf.Tasks {
		if t.ID > maxID {
			maxID = t.ID
		}
	}
	task.ID = maxID + 1
	if task.Name == "" {
		task.Name = task.DefaultName()
	}
	task.CreatedAt = time.Now().UTC()
	task.Enabled = true
	tf.Tasks = append(tf.Tasks, task)
	if err := s.save(tf); err != nil {
		return nil, err
	}
	return &task, nil
}

// List returns tasks ordered by id. With all false, disabled tasks are
// filtered out.
func (s *Store) List(all bool) ([]Task, error) {
	tf, err := s.load()
	if err != nil {
		return nil, err
	}
	if all {
		return tf.Tasks, nil
	}
	enabled := make([]Task, 0, len(tf.Tasks))
	for _, t := range tf.Tasks {
		if t.Enabled {
			enabled = append(enabled, t)
		}
	}
	return enabled, nil
}

// Get returns the task with the given id.
func (s *Store) Get(id int) (*Task, error) {
	tf, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, t := range tf.Tasks {
		if t.ID == id {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("task %d not found", id)
}

// Update applies fn to the task with the given id and persists the result.
// fn may change any field except the id.
func (s *Store) Update(id int, fn func(*Task)) (*Task, error) {
	tf, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range tf.Tasks {
		if tf.Tasks[i].ID != id {
			continue
		}
		fn(&tf.Tasks[i])
		tf.Tasks[i].ID = id
		if err := tf.Tasks[i].Validate(); err != nil {
			return nil, err
		}
		if err := s.save(tf); err != nil {
			return nil, err
		}
		t := tf.Tasks[i]
		return &t, nil
	}
	return nil, fmt.Errorf("task %d not found", id)
}

// SetEnabled toggles a task without touching its other fields.
func (s *Store) SetEnabled(id int, enabled bool) (*Task, error) {
	return s.Update(id, func(t *Task) { t.Enabled = enabled })
}

// Remove deletes the task from the list. Its execution history file is
// kept for later inspection.
func (s *Store) Remove(id int) error {
	tf, err := s.load()
	if err != nil {
		return err
	}
	for i, t := range tf.Tasks {
		if t.ID == id {
			tf.Tasks = append(tf.Tasks[:i], tf.Tasks[i+1:]...)
			return s.save(tf)
		}
	}
	return fmt.Errorf("task %d not found", id)
}
