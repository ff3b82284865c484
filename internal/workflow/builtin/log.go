package builtin

import (
	"context"
	"fmt"

	"github.com/latticehq/lattice/internal/workflow"
)

// logOperation renders its message option and returns it, making the value
// visible in the flow run log.
func logOperation() workflow.Operation {
	return workflow.Operation{
		ID: "log",
		Handler: func(_ context.Context, options map[string]any) (any, error) {
			return fmt.Sprintf("%v", options["message"]), nil
		},
	}
}
