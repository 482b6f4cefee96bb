package memory

import (
	"sort"

	"github.com/voidhound/recall/internal/store"
)

// Ordering keys accepted by Query.
const (
	OrderRelevance = "relevance"
	OrderDate      = "date"
	OrderSource    = "source"
)

// fuse merges vector and graph result sets. On an id conflict the vector
// result wins, keeping its similarity score and gaining both provenance
// labels. Graph-only hits receive defaultGraphScore, forced strictly below
// the lowest vector score so keyword matches never outrank similarity.
func fuse(vectorHits, graphHits []store.Result, defaultGraphScore float32) []store.Result {
	fused := make([]store.Result, 0, len(vectorHits)+len(graphHits))
	byID := make(map[string]int, len(vectorHits))

	lowest := float32(0)
	for i, v := range vectorHits {
		v.Sources = []string{"vector"}
		fused = append(fused, v)
		if v.ID != "" {
			byID[v.ID] = i
		}
		if i == 0 || v.Score < lowest {
			lowest = v.Score
		}
	}

	graphScore := defaultGraphScore
	if len(vectorHits) > 0 && graphScore >= lowest {
		graphScore = lowest / 2
		if graphScore >= lowest {
			graphScore = lowest - 0.1
		}
	}

	for _, g := range graphHits {
		if i, ok := byID[g.ID]; ok && g.ID != "" {
			fused[i].Sources = append(fused[i].Sources, "graph")
			continue
		}
		g.Score = graphScore
		g.Sources = []string{"graph"}
		fused = append(fused, g)
	}
	return fused
}

// orderResults sorts in place by the given key. Relevance sorts by score
// descending, date by ingestion timestamp newest first, source ascending
// lexicographic. Missing values sort last. The sort is stable so equal
// keys keep their fused order.
func orderResults(results []store.Result, orderBy string) {
	switch orderBy {
	case OrderDate:
		sort.SliceStable(results, func(i, j int) bool {
			a, b := results[i].Metadata["created_at"], results[j].Metadata["created_at"]
			if a == "" {
				return false
			}
			if b == "" {
				return true
			}
			return a > b
		})
	case OrderSource:
		sort.SliceStable(results, func(i, j int) bool {
			a, b := results[i].Metadata["source"], results[j].Metadata["source"]
			if a == "" {
				return false
			}
			if b == "" {
				return true
			}
			return a < b
		})
	default:
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Score > results[j].Score
		})
	}
}
