package backends

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunToolMissingBinary(t *testing.T) {
	f := runTool(context.Background(), "devildex-no-such-tool", nil, t.TempDir())
	require.NotNil(t, f)
	assert.Equal(t, FailureToolMissing, f.Kind)
}

func TestRunToolNonZeroExit(t *testing.T) {
	f := runTool(context.Background(), "sh", []string{"-c", "echo boom >&2; exit 3"}, t.TempDir())
	require.NotNil(t, f)
	assert.Equal(t, FailureNonZeroExit, f.Kind)
	assert.Contains(t, f.Message, "boom")
}

func TestRunToolSuccess(t *testing.T) {
	f := runTool(context.Background(), "sh", []string{"-c", "true"}, t.TempDir())
	assert.Nil(t, f)
}

func TestRunToolTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	f := runTool(ctx, "sh", []string{"-c", "sleep 10"}, t.TempDir())
	require.NotNil(t, f)
	assert.Equal(t, FailureTimeout, f.Kind)
}

func TestRunToolCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	f := runTool(ctx, "sh", []string{"-c", "sleep 10"}, t.TempDir())
	require.NotNil(t, f)
	assert.Equal(t, FailureInvocation, f.Kind)
}

func TestTail(t *testing.T) {
	assert.Equal(t, "a", tail("a\n"))
	assert.Equal(t, "2\n3\n4\n5\n6", tail("1\n2\n3\n4\n5\n6\n"))
}
