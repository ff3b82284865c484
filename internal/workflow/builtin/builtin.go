// Package builtin ships the operations built into the host. One file per
// operation; Operations returns them in a fixed order so registration is
// deterministic and always precedes user-supplied operations.
package builtin

import "github.com/latticehq/lattice/internal/workflow"

// Operations returns every built-in operation.
func Operations() []workflow.Operation {
	return []workflow.Operation{
		logOperation(),
		sleepOperation(),
		transformOperation(),
		conditionOperation(),
	}
}
