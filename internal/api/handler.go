// Package api exposes the memory layer over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/voidhound/recall/internal/agent"
	"github.com/voidhound/recall/internal/audit"
	"github.com/voidhound/recall/internal/consolidate"
	"github.com/voidhound/recall/internal/memory"
	"github.com/voidhound/recall/internal/schedule"
	"github.com/voidhound/recall/internal/store"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	mem      *memory.Orchestrator
	engine   *consolidate.Engine
	tasks    *schedule.Store
	runner   *schedule.Runner
	history  *schedule.History
	agents   *agent.Registry
	cache    *store.Cache
	auditLog *audit.Log
	logger   *zap.Logger
}

// NewHandler creates the API handler.
func NewHandler(
	mem *memory.Orchestrator,
	engine *consolidate.Engine,
	tasks *schedule.Store,
	runner *schedule.Runner,
	history *schedule.History,
	agents *agent.Registry,
	cache *store.Cache,
	auditLog *audit.Log,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		mem:      mem,
		engine:   engine,
		tasks:    tasks,
		runner:   runner,
		history:  history,
		agents:   agents,
		cache:    cache,
		auditLog: auditLog,
		logger:   logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		r.Route("/memory", func(r chi.Router) {
			r.Post("/", h.addMemory)
			r.Delete("/", h.deleteAllMemory)
			r.Get("/query", h.queryMemory)
			r.Get("/stats", h.memoryStats)
			r.Get("/history", h.queryHistory)
			r.Get("/audit", h.auditRecords)
			r.Delete("/{id}", h.deleteMemory)
		})

		r.Route("/consolidate", func(r chi.Router) {
			r.Get("/analyze", h.analyze)
			r.Post("/", h.consolidate)
		})

		r.Route("/schedule", func(r chi.Router) {
			r.Get("/", h.listTasks)
			r.Post("/", h.createTask)
			r.Post("/tick", h.tick)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getTask)
				r.Put("/", h.updateTask)
				r.Delete("/", h.removeTask)
				r.Get("/history", h.taskHistory)
				r.Post("/enable", h.setEnabled(true))
				r.Post("/disable", h.setEnabled(false))
				r.Post("/run", h.runTask)
			})
		})
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	stats := h.mem.Stats(r.Context())
	status := "ok"
	for _, s := range stats {
		if !s.Healthy {
			status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": status,
		"stores": stats,
	})
}

type addRequest struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (h *Handler) addMemory(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := h.mem.Add(r.Context(), req.Content, req.Metadata)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, store.ErrUnavailable) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) queryMemory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	order := r.URL.Query().Get("order")

	result, err := h.mem.Query(r.Context(), q, limit, order)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, store.ErrUnavailable) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) memoryStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.mem.Stats(r.Context()))
}

func (h *Handler) queryHistory(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "cache store unavailable"})
		return
	}
	entries, err := h.cache.QueryHistory(r.Context(), 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) auditRecords(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	records, err := h.auditLog.Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) deleteMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.mem.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (h *Handler) deleteAllMemory(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "pass confirm=true to wipe all stores"})
		return
	}
	writeJSON(w, http.StatusOK, h.mem.DeleteAll(r.Context()))
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.Analyze(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) consolidate(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.Consolidate(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all") == "true"
	tasks, err := h.tasks.List(all)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	type taskView struct {
		schedule.Task
		Schedule string `json:"schedule"`
	}
	views := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, taskView{Task: t, Schedule: t.Describe()})
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	var task schedule.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !h.agents.Known(task.Agent) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown agent: " + task.Agent})
		return
	}
	created, err := h.tasks.Add(task)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	task, err := h.tasks.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) updateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	var req schedule.Task
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	task, err := h.tasks.Update(id, func(t *schedule.Task) {
		if req.Name != "" {
			t.Name = req.Name
		}
		if req.Agent != "" {
			t.Agent = req.Agent
		}
		if req.Prompt != "" {
			t.Prompt = req.Prompt
		}
		if req.Cron != "" {
			t.Cron = req.Cron
		}
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) removeTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	if err := h.tasks.Remove(id); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": id})
}

func (h *Handler) taskHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := h.history.Records(id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) setEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.taskID(w, r)
		if !ok {
			return
		}
		task, err := h.tasks.SetEnabled(id, enabled)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, task)
	}
}

func (h *Handler) runTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	rec, err := h.runner.Run(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if err == schedule.ErrLocked {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) tick(w http.ResponseWriter, r *http.Request) {
	result, err := h.runner.Tick(r.Context(), time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) taskID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "task id must be an integer"})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
