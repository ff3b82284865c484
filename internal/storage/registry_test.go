package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterVerbatim(t *testing.T) {
	r := NewRegistry()
	cfg := DriverConfig{"driver": "s3", "bucket": "uploads", "acl": "private"}
	r.Register("/ext/storages/s3", cfg)

	got, ok := r.Lookup("/ext/storages/s3")
	require.True(t, ok)
	assert.Equal(t, cfg, got)
}

func TestKeyedByPath(t *testing.T) {
	r := NewRegistry()
	r.Register("/a", DriverConfig{"driver": "local"})
	r.Register("/b", DriverConfig{"driver": "gcs"})
	assert.Equal(t, 2, r.Count())

	// Re-registering the same path replaces the entry.
	r.Register("/a", DriverConfig{"driver": "azure"})
	got, _ := r.Lookup("/a")
	assert.Equal(t, "azure", got["driver"])
	assert.Equal(t, 2, r.Count())
}

func TestClear(t *testing.T) {
	r := NewRegistry()
	r.Register("/a", DriverConfig{"driver": "local"})
	r.Clear()
	assert.Equal(t, 0, r.Count())
	_, ok := r.Lookup("/a")
	assert.False(t, ok)
}
