package lifecycle_test

import (
	"context"
	"testing"

	"github.com/coreledger/chaincore/lifecycle"
	"github.com/stretchr/testify/require"
)

func TestLifecycleTransitions(t *testing.T) {
	ctx := context.Background()
	l := lifecycle.New()
	require.Equal(t, lifecycle.StateStarting, l.Current())
	require.False(t, l.IsReady())

	require.NoError(t, l.BeginSync(ctx))
	require.Equal(t, lifecycle.StateSyncing, l.Current())

	require.NoError(t, l.MarkReady(ctx))
	require.True(t, l.IsReady())

	require.NoError(t, l.BeginStop(ctx))
	require.NoError(t, l.MarkStopped(ctx))
	require.Equal(t, lifecycle.StateStopped, l.Current())
}
