//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

var baseURL string

func TestMain(m *testing.M) {
	baseURL = os.Getenv("RECALL_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:7410"
	}

	// Wait for server readiness (up to 30s)
	ready := false
	for i := 0; i < 30; i++ {
		resp, err := http.Get(baseURL + "/api/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				ready = true
				break
			}
		}
		time.Sleep(1 * time.Second)
	}
	if !ready {
		fmt.Fprintf(os.Stderr, "server at %s not ready after 30s\n", baseURL)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func call(t *testing.T, method, path string, body interface{}, out interface{}) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, baseURL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 90 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("unmarshal response: %v (body: %s)", err, string(raw))
		}
	}
	return resp.StatusCode
}

func TestAddQueryDeleteRoundTrip(t *testing.T) {
	var added struct {
		Chunks []struct {
			ID string `json:"id"`
		} `json:"chunks"`
	}
	status := call(t, http.MethodPost, "/api/memory", map[string]interface{}{
		"content":  "Smoke test entry: the scheduler evaluates cron expressions each minute.",
		"metadata": map[string]string{"source": "smoke-test"},
	}, &added)
	if status != http.StatusCreated {
		t.Fatalf("add status = %d", status)
	}
	if len(added.Chunks) == 0 {
		t.Fatal("add returned no chunks")
	}

	var result struct {
		Results []struct {
			ID string `json:"id"`
		} `json:"results"`
	}
	status = call(t, http.MethodGet, "/api/memory/query?q=scheduler+cron+expressions&limit=5", nil, &result)
	if status != http.StatusOK {
		t.Fatalf("query status = %d", status)
	}
	if len(result.Results) == 0 {
		t.Error("query returned no results for just-added content")
	}

	for _, c := range added.Chunks {
		if status := call(t, http.MethodDelete, "/api/memory/"+c.ID, nil, nil); status != http.StatusOK {
			t.Errorf("delete %s status = %d", c.ID, status)
		}
	}
}

func TestStatsAndHealth(t *testing.T) {
	var health struct {
		Status string `json:"status"`
	}
	if status := call(t, http.MethodGet, "/api/health", nil, &health); status != http.StatusOK {
		t.Fatalf("health status = %d", status)
	}
	if health.Status == "" {
		t.Error("health response missing status")
	}

	var stats map[string]struct {
		Healthy bool `json:"healthy"`
	}
	if status := call(t, http.MethodGet, "/api/memory/stats", nil, &stats); status != http.StatusOK {
		t.Fatalf("stats status = %d", status)
	}
	if _, ok := stats["vector"]; !ok {
		t.Error("stats missing vector store")
	}
}

func TestAnalyzeAndConsolidate(t *testing.T) {
	var report struct {
		Score float64 `json:"health_score"`
	}
	if status := call(t, http.MethodGet, "/api/consolidate/analyze", nil, &report); status != http.StatusOK {
		t.Fatalf("analyze status = %d", status)
	}
	if report.Score < 0 || report.Score > 100 {
		t.Errorf("health score %v outside [0,100]", report.Score)
	}

	if status := call(t, http.MethodPost, "/api/consolidate", nil, nil); status != http.StatusOK {
		t.Fatalf("consolidate status = %d", status)
	}
}

func TestScheduleTick(t *testing.T) {
	if status := call(t, http.MethodPost, "/api/schedule/tick", nil, nil); status != http.StatusOK {
		t.Errorf("tick status = %d", status)
	}
}
