package schedule

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestStoreAddAssignsSequentialIDs(t *testing.T) {
	s := newTestStore(t)
	first, err := s.Add(Task{Agent: "consolidate", Cron: "0 3 * * *"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	second, err := s.Add(Task{Agent: "analyze", Cron: "0 */6 * * *"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if first.ID != 1 || second.ID != 2 {
		t.Errorf("ids = %d, %d, want 1, 2", first.ID, second.ID)
	}
	if first.Name != "consolidate-task-1" {
		t.Errorf("default name = %q", first.Name)
	}
	if !first.Enabled {
		t.Error("new task should start enabled")
	}
}

func TestStoreIDNotReusedAfterRemove(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Add(Task{Agent: "a", Cron: "* * * * *"}); err != nil {
		t.Fatal(err)
	}
	second, _ := s.Add(Task{Agent: "b", Cron: "* * * * *"})
	if err := s.Remove(1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	third, err := s.Add(Task{Agent: "c", Cron: "* * * * *"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if third.ID != second.ID+1 {
		t.Errorf("id after remove = %d, want %d (max+1, never reused)", third.ID, second.ID+1)
	}
}

func TestStoreRejectsInvalidTask(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Add(Task{Agent: "", Cron: "* * * * *"}); err == nil {
		t.Error("empty agent: expected error")
	}
	if _, err := s.Add(Task{Agent: "a", Cron: "not a cron"}); err == nil {
		t.Error("bad cron: expected error")
	}
	tasks, _ := s.List(true)
	if len(tasks) != 0 {
		t.Errorf("rejected tasks were persisted: %v", tasks)
	}
}

func TestStoreListFiltersDisabled(t *testing.T) {
	s := newTestStore(t)
	task, _ := s.Add(Task{Agent: "a", Cron: "* * * * *"})
	if _, err := s.Add(Task{Agent: "b", Cron: "* * * * *"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetEnabled(task.ID, false); err != nil {
		t.Fatalf("disable: %v", err)
	}

	enabled, err := s.List(false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(enabled) != 1 || enabled[0].Agent != "b" {
		t.Errorf("enabled list = %v, want only agent b", enabled)
	}
	all, _ := s.List(true)
	if len(all) != 2 {
		t.Errorf("full list = %d tasks, want 2", len(all))
	}
}

func TestStoreUpdateValidates(t *testing.T) {
	s := newTestStore(t)
	task, _ := s.Add(Task{Agent: "a", Cron: "* * * * *"})
	if _, err := s.Update(task.ID, func(t *Task) { t.Cron = "bogus" }); err == nil {
		t.Error("invalid update: expected error")
	}
	got, _ := s.Get(task.ID)
	if got.Cron == "bogus" {
		t.Error("invalid update was persisted")
	}
}

func TestStoreAtomicWriteLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add(Task{Agent: "a", Cron: "* * * * *"}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "tasks.json")); err != nil {
		t.Errorf("tasks.json missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "tasks.json.tmp")); !os.IsNotExist(err) {
		t.Error("temp file left behind after save")
	}
}

func TestStoreGetMissing(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get(42); err == nil {
		t.Error("expected not-found error")
	}
	if err := s.Remove(42); err == nil {
		t.Error("expected not-found error")
	}
}
