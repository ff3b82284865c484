package builtin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func handler(t *testing.T, id string) func(context.Context, map[string]any) (any, error) {
	t.Helper()
	for _, op := range Operations() {
		if op.ID == id {
			return op.Handler
		}
	}
	t.Fatalf("builtin operation %q not found", id)
	return nil
}

func TestOperationsFixedSet(t *testing.T) {
	var ids []string
	for _, op := range Operations() {
		ids = append(ids, op.ID)
	}
	assert.Equal(t, []string{"log", "sleep", "transform", "condition"}, ids)
}

func TestLog(t *testing.T) {
	out, err := handler(t, "log")(context.Background(), map[string]any{"message": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestSleepCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := handler(t, "sleep")(ctx, map[string]any{"milliseconds": 5000})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSleepInvalidOption(t *testing.T) {
	_, err := handler(t, "sleep")(context.Background(), map[string]any{"milliseconds": "soon"})
	require.Error(t, err)
}

func TestTransform(t *testing.T) {
	out, err := handler(t, "transform")(context.Background(), map[string]any{"json": `{"a":1}`})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, out)

	_, err = handler(t, "transform")(context.Background(), map[string]any{"json": "{"})
	require.Error(t, err)
}

func TestCondition(t *testing.T) {
	_, err := handler(t, "condition")(context.Background(), map[string]any{"value": true})
	require.NoError(t, err)

	_, err = handler(t, "condition")(context.Background(), map[string]any{"value": false})
	require.Error(t, err)

	_, err = handler(t, "condition")(context.Background(), map[string]any{"value": ""})
	require.Error(t, err)
}
