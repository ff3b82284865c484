package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/latticehq/lattice/internal/workflow"
)

// transformOperation parses its json option and returns the resulting value,
// the workflow equivalent of a literal payload.
func transformOperation() workflow.Operation {
	return workflow.Operation{
		ID: "transform",
		Handler: func(_ context.Context, options map[string]any) (any, error) {
			raw, ok := options["json"].(string)
			if !ok {
				return nil, fmt.Errorf("transform: json option must be a string")
			}
			var out any
			if err := json.Unmarshal([]byte(raw), &out); err != nil {
				return nil, fmt.Errorf("transform: %w", err)
			}
			return out, nil
		},
	}
}
