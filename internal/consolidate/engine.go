// Package consolidate scans the memory corpus for duplicates and quality
// problems, producing health reports and performing idempotent cleanup.
package consolidate

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/voidhound/recall/internal/audit"
	"github.com/voidhound/recall/internal/memory"
	"github.com/voidhound/recall/internal/store"
)

// maxExamples caps the ids recorded per issue category in a health report.
const maxExamples = 5

// shortContentThreshold is the character count under which non-empty
// content counts as a short-content issue.
const shortContentThreshold = 10

// longContentThreshold flags entries that likely skipped chunking.
const longContentThreshold = 100 * 1024

// encodingRatioThreshold is the fraction of damaged runes above which
// content counts as an encoding anomaly.
const encodingRatioThreshold = 0.05

// lowQualityMinLength is the length past which content with no sentence
// punctuation counts as low quality.
const lowQualityMinLength = 200

// MemoryOps is the slice of orchestrator behavior the engine needs.
// *memory.Orchestrator satisfies it.
type MemoryOps interface {
	List(ctx context.Context, limit int) ([]store.Result, error)
	Delete(ctx context.Context, id string) error
	Add(ctx context.Context, content string, metadata map[string]string) (*memory.AddResult, error)
	ReconcileGraph(ctx context.Context) (int, []string)
}

// Config tunes the engine.
type Config struct {
	// SampleLimit bounds how many entries an analysis scans. Corpora past
	// the limit are analyzed on a prefix sample.
	SampleLimit int
	// WriteReport re-adds each consolidation report to memory as a
	// health_report entry.
	WriteReport bool
}

// Engine analyzes and consolidates the memory corpus.
type Engine struct {
	mem    MemoryOps
	audit  *audit.Log
	cfg    Config
	logger *zap.Logger
}

// New creates a consolidation engine.
func New(mem MemoryOps, auditLog *audit.Log, cfg Config, logger *zap.Logger) *Engine {
	if cfg.SampleLimit <= 0 {
		cfg.SampleLimit = 5000
	}
	return &Engine{mem: mem, audit: auditLog, cfg: cfg, logger: logger}
}

// Issue is one problem category found during analysis.
type Issue struct {
	Count    int      `json:"count"`
	Examples []string `json:"examples,omitempty"`
}

func (i *Issue) add(id string) {
	i.Count++
	if len(i.Examples) < maxExamples {
		i.Examples = append(i.Examples, id)
	}
}

// HealthReport summarizes corpus quality. Score is 0-100, derived from the
// ratio of each issue category to the scanned total.
type HealthReport struct {
	Total           int       `json:"total_entries"`
	Sampled         int       `json:"sampled_entries"`
	Truncated       bool      `json:"truncated"`
	Score           float64   `json:"health_score"`
	Duplicates      Issue     `json:"duplicates"`
	Empty           Issue     `json:"empty"`
	Short           Issue     `json:"short"`
	Long            Issue     `json:"long"`
	MissingMetadata Issue     `json:"missing_metadata"`
	Encoding        Issue     `json:"encoding"`
	LowQuality      Issue     `json:"low_quality"`
	Coverage        float64   `json:"metadata_coverage"`
	GeneratedAt     time.Time `json:"generated_at"`

	// Full id lists backing the capped Examples above; consumed by
	// Consolidate, not serialized.
	redundantIDs []string
	emptyIDs     []string
	shortIDs     []string
}

// Analyze scans up to SampleLimit entries and reports duplicates, empty,
// short, oversized, metadata-poor and encoding-damaged content. Read-only.
func (e *Engine) Analyze(ctx context.Context) (*HealthReport, error) {
	entries, err := e.mem.List(ctx, e.cfg.SampleLimit+1)
	if err != nil {
		return nil, fmt.Errorf("consolidate analyze: %w", err)
	}

	report := &HealthReport{GeneratedAt: time.Now().UTC()}
	if len(entries) > e.cfg.SampleLimit {
		entries = entries[:e.cfg.SampleLimit]
		report.Truncated = true
	}
	report.Total = len(entries)
	report.Sampled = len(entries)

	byHash := map[string][]store.Result{}
	for _, entry := range entries {
		content := strings.TrimSpace(entry.Content)
		switch {
		case content == "":
			report.Empty.add(entry.ID)
			report.emptyIDs = append(report.emptyIDs, entry.ID)
		case utf8.RuneCountInString(content) < shortContentThreshold:
			report.Short.add(entry.ID)
			report.shortIDs = append(report.shortIDs, entry.ID)
		case len(content) > longContentThreshold:
			report.Long.add(entry.ID)
		}
		if entry.Metadata["source"] == "" || entry.Metadata["content_type"] == "" {
			report.MissingMetadata.add(entry.ID)
		}
		if encodingDamaged(entry.Content) {
			report.Encoding.add(entry.ID)
		}
		if lowQuality(content) {
			report.LowQuality.add(entry.ID)
		}
		if content != "" {
			h := normalizedHash(content)
			byHash[h] = append(byHash[h], entry)
		}
	}

	for _, group := range byHash {
		if len(group) < 2 {
			continue
		}
		for _, r := range redundantIn(group) {
			report.Duplicates.add(r.ID)
			report.redundantIDs = append(report.redundantIDs, r.ID)
		}
	}
	sort.Strings(report.redundantIDs)

	if report.Sampled > 0 {
		report.Coverage = 1 - float64(report.MissingMetadata.Count)/float64(report.Sampled)
	} else {
		report.Coverage = 1
	}
	report.Score = healthScore(report)
	return report, nil
}

// encodingDamaged reports whether more than encodingRatioThreshold of the
// content's runes are replacement characters or non-printable.
func encodingDamaged(content string) bool {
	if content == "" {
		return false
	}
	total, bad := 0, 0
	for _, r := range content {
		total++
		if r == utf8.RuneError || (!unicode.IsPrint(r) && !unicode.IsSpace(r)) {
			bad++
		}
	}
	return float64(bad)/float64(total) > encodingRatioThreshold
}

// lowQuality flags content that is a single repeated token, or long prose
// with no sentence-terminal punctuation at all.
func lowQuality(content string) bool {
	fields := strings.Fields(content)
	if len(fields) >= 3 {
		repeated := true
		for _, f := range fields[1:] {
			if f != fields[0] {
				repeated = false
				break
			}
		}
		if repeated {
			return true
		}
	}
	if utf8.RuneCountInString(content) >= lowQualityMinLength &&
		!strings.ContainsAny(content, ".!?\n") {
		return true
	}
	return false
}

// normalizedHash hashes content with whitespace collapsed and case folded,
// so trivially reformatted copies count as duplicates.
func normalizedHash(content string) string {
	norm := strings.ToLower(strings.Join(strings.Fields(content), " "))
	return fmt.Sprintf("%x", sha256.Sum256([]byte(norm)))
}

// redundantIn orders a duplicate group and returns everything after the
// keeper: the entry with the earliest created_at, lowest id as a
// deterministic tie-break.
func redundantIn(group []store.Result) []store.Result {
	sorted := make([]store.Result, len(group))
	copy(sorted, group)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i].Metadata["created_at"], sorted[j].Metadata["created_at"]
		if a != b {
			if a == "" {
				return false
			}
			if b == "" {
				return true
			}
			return a < b
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted[1:]
}

// healthScore weighs each issue ratio: duplicates 30, empty 20, short 10,
// missing metadata 20, encoding 20, clamped to [0, 100].
func healthScore(r *HealthReport) float64 {
	if r.Sampled == 0 {
		return 100
	}
	n := float64(r.Sampled)
	penalty := float64(r.Duplicates.Count)/n*30 +
		float64(r.Empty.Count)/n*20 +
		float64(r.Short.Count)/n*10 +
		float64(r.MissingMetadata.Count)/n*20 +
		float64(r.Encoding.Count)/n*20
	score := 100 - penalty
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Report is the outcome of a consolidation run.
type Report struct {
	DuplicatesRemoved int       `json:"duplicates_removed"`
	EmptyRemoved      int       `json:"empty_removed"`
	ShortRemoved      int       `json:"short_removed"`
	EntitiesMerged    int       `json:"entities_merged"`
	Errors            []string  `json:"errors,omitempty"`
	HealthBefore      float64   `json:"health_before"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
}

// Consolidate analyzes the corpus, removes redundant duplicates and empty
// entries, and reconciles orphaned graph episodes. Per-entry failures are
// collected and the run continues; the report carries both the work done
// and the errors. Running twice in a row leaves the second run with
// nothing to remove.
func (e *Engine) Consolidate(ctx context.Context) (*Report, error) {
	started := time.Now().UTC()
	analysis, err := e.Analyze(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{HealthBefore: analysis.Score, StartedAt: started}

	for _, id := range analysis.redundantIDs {
		if err := e.mem.Delete(ctx, id); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("duplicate %s: %v", id, err))
			continue
		}
		report.DuplicatesRemoved++
	}
	for _, id := range analysis.emptyIDs {
		if err := e.mem.Delete(ctx, id); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("empty %s: %v", id, err))
			continue
		}
		report.EmptyRemoved++
	}
	for _, id := range analysis.shortIDs {
		if err := e.mem.Delete(ctx, id); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("short %s: %v", id, err))
			continue
		}
		report.ShortRemoved++
	}

	merged, mergeErrs := e.mem.ReconcileGraph(ctx)
	report.EntitiesMerged = merged
	report.Errors = append(report.Errors, mergeErrs...)

	report.FinishedAt = time.Now().UTC()

	removed := report.DuplicatesRemoved + report.EmptyRemoved + report.ShortRemoved
	if e.audit != nil && removed > 0 {
		if err := e.audit.Append("consolidate", nil, removed); err != nil {
			e.logger.Warn("audit append failed", zap.Error(err))
		}
	}
	e.logger.Info("consolidation finished",
		zap.Int("duplicates_removed", report.DuplicatesRemoved),
		zap.Int("empty_removed", report.EmptyRemoved),
		zap.Int("short_removed", report.ShortRemoved),
		zap.Int("entities_merged", report.EntitiesMerged),
		zap.Int("errors", len(report.Errors)))

	if e.cfg.WriteReport {
		if _, err := e.mem.Add(ctx, renderReport(report), map[string]string{
			"source":       "consolidation",
			"content_type": "health_report",
		}); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("write report: %v", err))
		}
	}
	return report, nil
}

// renderReport serializes a run report as readable text for storage in
// memory itself.
func renderReport(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Consolidation run %s\n", r.FinishedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Health before: %.1f\n", r.HealthBefore)
	fmt.Fprintf(&b, "Duplicates removed: %d\n", r.DuplicatesRemoved)
	fmt.Fprintf(&b, "Empty entries removed: %d\n", r.EmptyRemoved)
	fmt.Fprintf(&b, "Short entries removed: %d\n", r.ShortRemoved)
	fmt.Fprintf(&b, "Graph episodes reconciled: %d\n", r.EntitiesMerged)
	if len(r.Errors) > 0 {
		fmt.Fprintf(&b, "Errors: %d\n", len(r.Errors))
	}
	return b.String()
}
