// Package memory coordinates writes and reads across the vector, graph and
// cache stores: chunk → embed → fan-out on add, embed → fan-out → fuse on
// query.
package memory

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voidhound/recall/internal/audit"
	"github.com/voidhound/recall/internal/chunker"
	"github.com/voidhound/recall/internal/embedding"
	"github.com/voidhound/recall/internal/store"
)

// Config tunes orchestrator behavior.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
	// DefaultGraphScore is assigned to graph-only hits during fusion. It is
	// always kept below the lowest vector score observed so that vector
	// relevance dominates.
	DefaultGraphScore float32
	// CacheQueries enables query-result caching and history tracking.
	CacheQueries bool
}

// Orchestrator fans memory operations out across the backing stores. The
// vector store is authoritative; graph and cache are optional sinks whose
// failures degrade the operation instead of aborting it.
type Orchestrator struct {
	embedder embedding.Provider
	vector   store.Adapter
	graph    store.Adapter
	cache    *store.Cache
	audit    *audit.Log
	cfg      Config
	logger   *zap.Logger
}

// New creates an orchestrator. graph and cache may be nil when the backing
// service is unavailable; the orchestrator then runs in degraded mode.
func New(embedder embedding.Provider, vector store.Adapter, graph store.Adapter, cache *store.Cache, auditLog *audit.Log, cfg Config, logger *zap.Logger) *Orchestrator {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = 200
	}
	if cfg.DefaultGraphScore == 0 {
		cfg.DefaultGraphScore = 0.3
	}
	return &Orchestrator{
		embedder: embedder,
		vector:   vector,
		graph:    graph,
		cache:    cache,
		audit:    auditLog,
		cfg:      cfg,
		logger:   logger,
	}
}

// ChunkRef identifies one stored chunk of an added document.
type ChunkRef struct {
	Index int    `json:"chunk_index"`
	ID    string `json:"id"`
}

// AddResult reports the outcome of an add, including non-fatal degradations.
type AddResult struct {
	Source   string     `json:"source"`
	Chunks   []ChunkRef `json:"chunks"`
	Warnings []string   `json:"warnings,omitempty"`
}

// Add chunks content, embeds each chunk and inserts it into the vector
// store. Graph episodes and cache entries are written best-effort: their
// failures are reported as warnings, never as errors. A vector store
// failure aborts the whole add.
func (o *Orchestrator) Add(ctx context.Context, content string, metadata map[string]string) (*AddResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("memory add: content must not be empty")
	}

	chunks, err := chunker.Chunk(content, o.cfg.ChunkSize, o.cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("memory add: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("memory add: content must not be empty")
	}

	vectors, err := o.embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("memory add: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("memory add: embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	source := metadata["source"]
	if source == "" {
		source = uuid.New().String()
	}
	now := time.Now().UTC().Format(time.RFC3339)

	result := &AddResult{Source: source}
	for i, chunk := range chunks {
		md := enrichMetadata(chunk, metadata, source, i, len(chunks), now)

		id, err := o.vector.Insert(ctx, chunk, vectors[i], md)
		if err != nil {
			// Vector store failure is fatal: no partial insert is reported
			// as success.
			return nil, fmt.Errorf("memory add chunk %d: %w", i, err)
		}
		result.Chunks = append(result.Chunks, ChunkRef{Index: i, ID: id})

		md["id"] = id
		for _, sink := range o.optionalSinks() {
			if _, err := sink.Insert(ctx, chunk, vectors[i], md); err != nil {
				o.logger.Warn("optional sink insert failed",
					zap.String("sink", sink.Name()),
					zap.String("id", id),
					zap.Error(err))
				result.Warnings = appendWarning(result.Warnings, sink.Name())
			}
		}
	}

	o.logger.Info("memory added",
		zap.String("source", source),
		zap.Int("chunks", len(result.Chunks)))
	return result, nil
}

// optionalSinks lists the best-effort stores, each wrapped in its own
// failure boundary by the caller.
func (o *Orchestrator) optionalSinks() []store.Adapter {
	sinks := make([]store.Adapter, 0, 2)
	if o.graph != nil {
		sinks = append(sinks, o.graph)
	}
	if o.cache != nil {
		sinks = append(sinks, o.cache)
	}
	return sinks
}

func appendWarning(warnings []string, sink string) []string {
	msg := sink + " store unavailable, write skipped"
	for _, w := range warnings {
		if w == msg {
			return warnings
		}
	}
	return append(warnings, msg)
}

// enrichMetadata merges user metadata with the per-chunk fields the memory
// layer maintains.
func enrichMetadata(chunk string, user map[string]string, source string, index, total int, createdAt string) map[string]string {
	md := make(map[string]string, len(user)+7)
	for k, v := range user {
		md[k] = v
	}
	md["source"] = source
	md["chunk_index"] = strconv.Itoa(index)
	md["total_chunks"] = strconv.Itoa(total)
	md["created_at"] = createdAt
	if md["content_type"] == "" {
		md["content_type"] = inferContentType(source)
	}
	md["content_hash"] = fmt.Sprintf("%x", sha256.Sum256([]byte(chunk)))[:16]
	md["word_count"] = strconv.Itoa(len(strings.Fields(chunk)))
	md["char_count"] = strconv.Itoa(len(chunk))
	return md
}

// inferContentType guesses a coarse content type from the source string.
func inferContentType(source string) string {
	s := strings.ToLower(source)
	switch {
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
		return "url"
	case strings.HasSuffix(s, ".md"), strings.HasSuffix(s, ".txt"), strings.HasSuffix(s, ".rst"):
		return "text_file"
	case strings.HasSuffix(s, ".go"), strings.HasSuffix(s, ".py"), strings.HasSuffix(s, ".js"), strings.HasSuffix(s, ".ts"):
		return "code"
	case strings.HasSuffix(s, ".json"), strings.HasSuffix(s, ".yaml"), strings.HasSuffix(s, ".yml"), strings.HasSuffix(s, ".toml"):
		return "config"
	default:
		return "text"
	}
}

// QueryResult is a fused, ordered result set.
type QueryResult struct {
	Query    string         `json:"query"`
	Results  []store.Result `json:"results"`
	CacheHit bool           `json:"cache_hit"`
	Warnings []string       `json:"warnings,omitempty"`
}

// Query embeds the text once, fans out to the vector and graph stores,
// fuses the result sets and orders them by the requested key ("relevance",
// "date" or "source"). A graph failure degrades to vector-only results; a
// vector failure is fatal.
func (o *Orchestrator) Query(ctx context.Context, text string, limit int, orderBy string) (*QueryResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("memory query: text must not be empty")
	}
	if limit <= 0 {
		limit = 5
	}
	if orderBy == "" {
		orderBy = OrderRelevance
	}
	if orderBy != OrderRelevance && orderBy != OrderDate && orderBy != OrderSource {
		return nil, fmt.Errorf("memory query: unknown order %q", orderBy)
	}

	if o.cfg.CacheQueries && o.cache != nil {
		var cached QueryResult
		if hit, err := o.cache.CachedQueryResult(ctx, cacheKeyFor(text, limit, orderBy), &cached); err == nil && hit {
			cached.CacheHit = true
			return &cached, nil
		}
	}

	vectors, err := o.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("memory query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("memory query: embedder returned no vector")
	}

	// Over-fetch from the vector store to give fusion headroom.
	vectorHits, err := o.vector.Search(ctx, store.Query{Text: text, Vector: vectors[0], Limit: limit * 2})
	if err != nil {
		return nil, fmt.Errorf("memory query: %w", err)
	}

	result := &QueryResult{Query: text}
	var graphHits []store.Result
	if o.graph != nil {
		graphHits, err = o.graph.Search(ctx, store.Query{Text: text, Vector: vectors[0], Limit: limit})
		if err != nil {
			o.logger.Warn("graph search failed, degrading to vector-only", zap.Error(err))
			result.Warnings = append(result.Warnings, "graph store unavailable, results are vector-only")
		}
	}

	fused := fuse(vectorHits, graphHits, o.cfg.DefaultGraphScore)
	orderResults(fused, orderBy)
	if len(fused) > limit {
		fused = fused[:limit]
	}
	result.Results = fused

	if o.cfg.CacheQueries && o.cache != nil && len(result.Warnings) == 0 {
		if err := o.cache.CacheQueryResult(ctx, cacheKeyFor(text, limit, orderBy), result); err != nil {
			o.logger.Debug("query cache write failed", zap.Error(err))
		}
		if err := o.cache.AddQueryHistory(ctx, text); err != nil {
			o.logger.Debug("query history write failed", zap.Error(err))
		}
	}
	return result, nil
}

func cacheKeyFor(text string, limit int, orderBy string) string {
	return fmt.Sprintf("%s|%d|%s", strings.ToLower(strings.TrimSpace(text)), limit, orderBy)
}

// List enumerates up to limit entries from the vector store, used by the
// consolidation engine to sample the corpus.
func (o *Orchestrator) List(ctx context.Context, limit int) ([]store.Result, error) {
	scroller, ok := o.vector.(store.Scroller)
	if !ok {
		return nil, fmt.Errorf("memory list: vector store cannot enumerate entries")
	}
	return scroller.Scroll(ctx, limit)
}

// Delete removes an entry everywhere. The vector delete must succeed;
// graph and cache eviction are best-effort. The deletion is audited.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	if err := o.vector.Delete(ctx, id); err != nil {
		return fmt.Errorf("memory delete: %w", err)
	}
	for _, sink := range o.optionalSinks() {
		if err := sink.Delete(ctx, id); err != nil {
			o.logger.Warn("optional sink delete failed",
				zap.String("sink", sink.Name()),
				zap.String("id", id),
				zap.Error(err))
		}
	}
	if o.audit != nil {
		if err := o.audit.Append("delete", []string{id}, 1); err != nil {
			o.logger.Warn("audit append failed", zap.Error(err))
		}
	}
	return nil
}

// WipeReport is the per-store outcome of a DeleteAll.
type WipeReport struct {
	Deleted map[string]int    `json:"deleted"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// DeleteAll wipes every store, reporting per-store outcomes. A failing
// store is recorded and the wipe continues with the others.
func (o *Orchestrator) DeleteAll(ctx context.Context) *WipeReport {
	report := &WipeReport{Deleted: map[string]int{}, Errors: map[string]string{}}
	adapters := append([]store.Adapter{o.vector}, o.optionalSinks()...)
	total := 0
	for _, a := range adapters {
		n, err := a.DeleteAll(ctx)
		if err != nil {
			report.Errors[a.Name()] = err.Error()
			continue
		}
		report.Deleted[a.Name()] = n
		total += n
	}
	if o.audit != nil {
		if err := o.audit.Append("delete_all", nil, total); err != nil {
			o.logger.Warn("audit append failed", zap.Error(err))
		}
	}
	return report
}

// ReconcileGraph removes graph episodes whose entry id no longer exists in
// the vector store. Returns the number removed and any per-episode errors.
// Deletion only proceeds when the vector enumeration is known to cover the
// whole corpus; a partial listing would misclassify live episodes as
// orphans.
func (o *Orchestrator) ReconcileGraph(ctx context.Context) (int, []string) {
	lister, ok := o.graph.(interface {
		IDs(ctx context.Context) ([]string, error)
	})
	if o.graph == nil || !ok {
		return 0, nil
	}

	graphIDs, err := lister.IDs(ctx)
	if err != nil {
		return 0, []string{fmt.Sprintf("graph ids: %v", err)}
	}
	total, err := o.vector.Count(ctx)
	if err != nil {
		return 0, []string{fmt.Sprintf("vector count: %v", err)}
	}
	entries, err := o.List(ctx, total+1)
	if err != nil {
		return 0, []string{fmt.Sprintf("vector scroll: %v", err)}
	}
	if len(entries) != total {
		return 0, []string{fmt.Sprintf(
			"vector listing returned %d of %d entries, reconciliation skipped", len(entries), total)}
	}
	known := make(map[string]bool, len(entries))
	for _, e := range entries {
		known[e.ID] = true
	}

	removed := 0
	var errs []string
	for _, id := range graphIDs {
		if known[id] {
			continue
		}
		if err := o.graph.Delete(ctx, id); err != nil {
			errs = append(errs, fmt.Sprintf("episode %s: %v", id, err))
			continue
		}
		removed++
	}
	return removed, errs
}

// StoreStatus describes one backing store in a Stats report.
type StoreStatus struct {
	Count   int  `json:"count"`
	Healthy bool `json:"healthy"`
}

// Stats returns per-store entry counts and health.
func (o *Orchestrator) Stats(ctx context.Context) map[string]StoreStatus {
	stats := make(map[string]StoreStatus, 3)
	adapters := append([]store.Adapter{o.vector}, o.optionalSinks()...)
	for _, a := range adapters {
		status := StoreStatus{Healthy: a.Health(ctx)}
		if status.Healthy {
			if n, err := a.Count(ctx); err == nil {
				status.Count = n
			}
		}
		stats[a.Name()] = status
	}
	return stats
}
