package schedule

import (
	"fmt"
	"testing"
	"time"
)

func TestHistoryTruncatesToLimit(t *testing.T) {
	h, err := NewHistory(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < historyKeep+20; i++ {
		rec := ExecutionRecord{
			TaskID:     1,
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + time.Second),
			Success:    true,
			Output:     fmt.Sprintf("run %d", i),
		}
		if err := h.Append(rec); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	records, err := h.Records(1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != historyKeep {
		t.Fatalf("retained %d records, want %d", len(records), historyKeep)
	}
	// Oldest retained record is run 20; the first 20 were pruned.
	if records[0].Output != "run 20" {
		t.Errorf("oldest retained = %q, want run 20", records[0].Output)
	}
	if records[len(records)-1].Output != fmt.Sprintf("run %d", historyKeep+19) {
		t.Errorf("newest retained = %q", records[len(records)-1].Output)
	}
}

func TestHistoryRecentLimit(t *testing.T) {
	h, err := NewHistory(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		rec := ExecutionRecord{TaskID: 2, Success: true, Output: fmt.Sprintf("run %d", i)}
		if err := h.Append(rec); err != nil {
			t.Fatal(err)
		}
	}
	records, err := h.Records(2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 || records[0].Output != "run 7" {
		t.Errorf("records = %+v, want the 3 most recent", records)
	}
}

func TestHistoryMissingTask(t *testing.T) {
	h, err := NewHistory(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	records, err := h.Records(7, 0)
	if err != nil {
		t.Fatalf("missing history file should not error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("records = %v, want none", records)
	}
}

func TestHistoryIsolatedPerTask(t *testing.T) {
	h, err := NewHistory(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Append(ExecutionRecord{TaskID: 1, Success: true}); err != nil {
		t.Fatal(err)
	}
	if err := h.Append(ExecutionRecord{TaskID: 2, Success: false, Error: "boom"}); err != nil {
		t.Fatal(err)
	}
	one, _ := h.Records(1, 0)
	two, _ := h.Records(2, 0)
	if len(one) != 1 || len(two) != 1 {
		t.Fatalf("records = %d, %d, want 1 each", len(one), len(two))
	}
	if one[0].Success == two[0].Success {
		t.Error("task histories are not isolated")
	}
}
