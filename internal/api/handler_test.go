package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/voidhound/recall/internal/agent"
	"github.com/voidhound/recall/internal/audit"
	"github.com/voidhound/recall/internal/consolidate"
	"github.com/voidhound/recall/internal/embedding"
	"github.com/voidhound/recall/internal/memory"
	"github.com/voidhound/recall/internal/schedule"
	"github.com/voidhound/recall/internal/store"
)

// memAdapter is an in-memory store.Adapter for handler tests (no
// Qdrant/Neo4j/Redis).
type memAdapter struct {
	name      string
	entries   map[string]store.Result
	order     []string
	insertErr error
}

func newMemAdapter(name string) *memAdapter {
	return &memAdapter{name: name, entries: map[string]store.Result{}}
}

func (m *memAdapter) Name() string { return m.name }

func (m *memAdapter) Insert(_ context.Context, content string, _ []float32, metadata map[string]string) (string, error) {
	if m.insertErr != nil {
		return "", m.insertErr
	}
	id := metadata["id"]
	if id == "" {
		id = fmt.Sprintf("%s-%d", m.name, len(m.order)+1)
	}
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	m.entries[id] = store.Result{ID: id, Content: content, Metadata: md}
	m.order = append(m.order, id)
	return id, nil
}

func (m *memAdapter) Search(_ context.Context, q store.Query) ([]store.Result, error) {
	var out []store.Result
	for _, id := range m.order {
		e, ok := m.entries[id]
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(e.Content), strings.ToLower(q.Text)) {
			e.Score = 0.9
			out = append(out, e)
			if len(out) == q.Limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memAdapter) Delete(_ context.Context, id string) error {
	delete(m.entries, id)
	return nil
}

func (m *memAdapter) DeleteAll(context.Context) (int, error) {
	n := len(m.entries)
	m.entries = map[string]store.Result{}
	m.order = nil
	return n, nil
}

func (m *memAdapter) Count(context.Context) (int, error) { return len(m.entries), nil }

func (m *memAdapter) Health(context.Context) bool { return true }

func (m *memAdapter) Scroll(_ context.Context, limit int) ([]store.Result, error) {
	var out []store.Result
	for _, id := range m.order {
		if e, ok := m.entries[id]; ok {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memAdapter) IDs(context.Context) ([]string, error) {
	var ids []string
	for _, id := range m.order {
		if _, ok := m.entries[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// newTestHandler wires a Handler with in-memory deps.
func newTestHandler(t *testing.T) http.Handler {
	return newTestHandlerWith(t, newMemAdapter("vector"))
}

func newTestHandlerWith(t *testing.T, vector *memAdapter) http.Handler {
	t.Helper()
	logger := zap.NewNop()
	dir := t.TempDir()

	auditLog, err := audit.New(dir, logger)
	if err != nil {
		t.Fatal(err)
	}
	mem := memory.New(
		embedding.NewHashProvider(32),
		vector,
		newMemAdapter("graph"),
		nil,
		auditLog,
		memory.Config{ChunkSize: 500, ChunkOverlap: 50, DefaultGraphScore: 0.3},
		logger,
	)
	engine := consolidate.New(mem, auditLog, consolidate.Config{}, logger)

	tasks, err := schedule.NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	history, err := schedule.NewHistory(dir)
	if err != nil {
		t.Fatal(err)
	}
	agents := agent.NewRegistry()
	agent.RegisterBuiltins(agents, engine)
	runner, err := schedule.NewRunner(tasks, history, agents, dir, 0, logger)
	if err != nil {
		t.Fatal(err)
	}

	h := NewHandler(mem, engine, tasks, runner, history, agents, nil, auditLog, logger)
	return h.Router()
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func do(t *testing.T, ts *httptest.Server, method, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := httptest.NewServer(newTestHandler(t))
	defer ts.Close()

	resp := do(t, ts, http.MethodGet, "/api/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Status string `json:"status"`
	}
	decodeJSON(t, resp, &body)
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

func TestAddAndQueryMemory(t *testing.T) {
	ts := httptest.NewServer(newTestHandler(t))
	defer ts.Close()

	resp := postJSON(t, ts, "/api/memory", addRequest{
		Content:  "Redis keeps hot data in memory for fast lookups.",
		Metadata: map[string]string{"source": "notes.md"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add status = %d", resp.StatusCode)
	}
	var added memory.AddResult
	decodeJSON(t, resp, &added)
	if len(added.Chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(added.Chunks))
	}

	resp = do(t, ts, http.MethodGet, "/api/memory/query?q=redis&limit=5")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("query status = %d", resp.StatusCode)
	}
	var result memory.QueryResult
	decodeJSON(t, resp, &result)
	if len(result.Results) == 0 {
		t.Fatal("query returned no results")
	}
}

func TestQueryRequiresText(t *testing.T) {
	ts := httptest.NewServer(newTestHandler(t))
	defer ts.Close()

	resp := do(t, ts, http.MethodGet, "/api/memory/query?q=")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAddReportsVectorOutageAsServiceUnavailable(t *testing.T) {
	vector := newMemAdapter("vector")
	vector.insertErr = fmt.Errorf("qdrant upsert: connection refused: %w", store.ErrUnavailable)
	ts := httptest.NewServer(newTestHandlerWith(t, vector))
	defer ts.Close()

	resp := postJSON(t, ts, "/api/memory", addRequest{Content: "payload that cannot land"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDeleteAllRequiresConfirm(t *testing.T) {
	ts := httptest.NewServer(newTestHandler(t))
	defer ts.Close()

	resp := do(t, ts, http.MethodDelete, "/api/memory")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unconfirmed wipe status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp = do(t, ts, http.MethodDelete, "/api/memory?confirm=true")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("confirmed wipe status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAnalyzeEndpoint(t *testing.T) {
	ts := httptest.NewServer(newTestHandler(t))
	defer ts.Close()

	postJSON(t, ts, "/api/memory", addRequest{Content: "an entry to analyze"}).Body.Close()

	resp := do(t, ts, http.MethodGet, "/api/consolidate/analyze")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var report consolidate.HealthReport
	decodeJSON(t, resp, &report)
	if report.Sampled != 1 {
		t.Errorf("sampled = %d, want 1", report.Sampled)
	}
}

func TestScheduleLifecycle(t *testing.T) {
	ts := httptest.NewServer(newTestHandler(t))
	defer ts.Close()

	resp := postJSON(t, ts, "/api/schedule", schedule.Task{Agent: "consolidate", Cron: "0 3 * * *"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var task schedule.Task
	decodeJSON(t, resp, &task)
	if task.ID != 1 || !task.Enabled {
		t.Errorf("task = %+v", task)
	}

	resp = do(t, ts, http.MethodPost, fmt.Sprintf("/api/schedule/%d/disable", task.ID))
	decodeJSON(t, resp, &task)
	if task.Enabled {
		t.Error("task still enabled after disable")
	}

	resp = do(t, ts, http.MethodGet, "/api/schedule")
	var enabled []json.RawMessage
	decodeJSON(t, resp, &enabled)
	if len(enabled) != 0 {
		t.Errorf("enabled list = %d tasks, want 0", len(enabled))
	}
	resp = do(t, ts, http.MethodGet, "/api/schedule?all=true")
	var all []json.RawMessage
	decodeJSON(t, resp, &all)
	if len(all) != 1 {
		t.Errorf("full list = %d tasks, want 1", len(all))
	}

	resp = do(t, ts, http.MethodPost, fmt.Sprintf("/api/schedule/%d/run", task.ID))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("run status = %d", resp.StatusCode)
	}
	var rec schedule.ExecutionRecord
	decodeJSON(t, resp, &rec)
	if !rec.Success {
		t.Errorf("run record = %+v, want success", rec)
	}

	resp = do(t, ts, http.MethodGet, fmt.Sprintf("/api/schedule/%d/history", task.ID))
	var records []schedule.ExecutionRecord
	decodeJSON(t, resp, &records)
	if len(records) != 1 {
		t.Errorf("history = %d records, want 1", len(records))
	}

	resp = do(t, ts, http.MethodDelete, fmt.Sprintf("/api/schedule/%d", task.ID))
	if resp.StatusCode != http.StatusOK {
		t.Errorf("remove status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCreateTaskRejectsUnknownAgent(t *testing.T) {
	ts := httptest.NewServer(newTestHandler(t))
	defer ts.Close()

	resp := postJSON(t, ts, "/api/schedule", schedule.Task{Agent: "nonexistent", Cron: "* * * * *"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestTaskIDMustBeInteger(t *testing.T) {
	ts := httptest.NewServer(newTestHandler(t))
	defer ts.Close()

	resp := do(t, ts, http.MethodGet, "/api/schedule/abc")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAuditEndpointRecordsDeletes(t *testing.T) {
	ts := httptest.NewServer(newTestHandler(t))
	defer ts.Close()

	resp := postJSON(t, ts, "/api/memory", addRequest{Content: "entry destined for deletion"})
	var added memory.AddResult
	decodeJSON(t, resp, &added)

	do(t, ts, http.MethodDelete, "/api/memory/"+added.Chunks[0].ID).Body.Close()

	resp = do(t, ts, http.MethodGet, "/api/memory/audit")
	var records []audit.Record
	decodeJSON(t, resp, &records)
	if len(records) != 1 || records[0].Type != "delete" {
		t.Errorf("audit records = %+v, want one delete", records)
	}
}
