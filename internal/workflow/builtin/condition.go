package builtin

import (
	"context"
	"fmt"

	"github.com/latticehq/lattice/internal/workflow"
)

// conditionOperation fails the current branch unless its value option is
// truthy, steering the flow down the reject path.
func conditionOperation() workflow.Operation {
	return workflow.Operation{
		ID: "condition",
		Handler: func(_ context.Context, options map[string]any) (any, error) {
			if truthy(options["value"]) {
				return true, nil
			}
			return nil, fmt.Errorf("condition: value %v is not truthy", options["value"])
		},
	}
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	default:
		return true
	}
}
