package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/voidhound/recall/internal/consolidate"
)

// RegisterBuiltins wires the standard maintenance agents against a
// consolidation engine.
func RegisterBuiltins(r *Registry, engine *consolidate.Engine) {
	r.Register(&Agent{
		Name:        "consolidate",
		Description: "remove duplicate and empty entries, reconcile graph episodes",
		Handler: func(ctx context.Context, _ string) (string, error) {
			report, err := engine.Consolidate(ctx)
			if err != nil {
				return "", err
			}
			out, err := json.Marshal(report)
			if err != nil {
				return "", fmt.Errorf("encode report: %w", err)
			}
			return string(out), nil
		},
	})
	r.Register(&Agent{
		Name:        "analyze",
		Description: "scan the corpus and report its health score",
		Handler: func(ctx context.Context, _ string) (string, error) {
			report, err := engine.Analyze(ctx)
			if err != nil {
				return "", err
			}
			out, err := json.Marshal(report)
			if err != nil {
				return "", fmt.Errorf("encode report: %w", err)
			}
			return string(out), nil
		},
	})
}
