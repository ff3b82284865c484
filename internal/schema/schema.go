// Package schema defines the data-schema snapshot handed to extensions.
package schema

import "context"

// Field describes one column of a collection.
type Field struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Primary  bool   `json:"primary"`
}

// Collection describes one collection of the data model.
type Collection struct {
	Name   string           `json:"name"`
	Fields map[string]Field `json:"fields"`
}

// Snapshot is a point-in-time view of the data model.
type Snapshot struct {
	Version     int                   `json:"version"`
	Collections map[string]Collection `json:"collections"`
}

// Provider returns the current schema snapshot. Extensions receive a Provider
// rather than a snapshot so they always observe fresh state.
type Provider func(ctx context.Context) (*Snapshot, error)

// Empty returns a snapshot with no collections.
func Empty() *Snapshot {
	return &Snapshot{Collections: make(map[string]Collection)}
}
