package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("log", func(context.Context, map[string]any) (any, error) {
		return "ok", nil
	}))

	h, ok := r.Lookup("log")
	require.True(t, ok)
	out, err := h(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestDuplicateIDRejected(t *testing.T) {
	r := NewRegistry()
	noop := func(context.Context, map[string]any) (any, error) { return nil, nil }
	require.NoError(t, r.Register("op", noop))
	require.Error(t, r.Register("op", noop))
	assert.Equal(t, 1, r.Count())
}

func TestIDsPreserveRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	noop := func(context.Context, map[string]any) (any, error) { return nil, nil }
	require.NoError(t, r.Register("b", noop))
	require.NoError(t, r.Register("a", noop))
	require.NoError(t, r.Register("c", noop))
	assert.Equal(t, []string{"b", "a", "c"}, r.IDs())
}

func TestClear(t *testing.T) {
	r := NewRegistry()
	noop := func(context.Context, map[string]any) (any, error) { return nil, nil }
	require.NoError(t, r.Register("op", noop))
	r.Clear()
	assert.Equal(t, 0, r.Count())
	assert.Empty(t, r.IDs())

	_, ok := r.Lookup("op")
	assert.False(t, ok)
}
