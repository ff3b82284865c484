package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/latticehq/lattice/internal/workflow"
)

// sleepOperation pauses the flow for the configured number of milliseconds,
// honoring context cancellation.
func sleepOperation() workflow.Operation {
	return workflow.Operation{
		ID: "sleep",
		Handler: func(ctx context.Context, options map[string]any) (any, error) {
			ms, ok := toInt64(options["milliseconds"])
			if !ok || ms < 0 {
				return nil, fmt.Errorf("sleep: invalid milliseconds option %v", options["milliseconds"])
			}
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
				return nil, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
