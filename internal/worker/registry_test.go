package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryCancel(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	release := reg.Register("job-1", cancel)
	require.Equal(t, 1, reg.Active())

	require.False(t, reg.Cancel("other"))
	require.True(t, reg.Cancel("job-1"))
	require.ErrorIs(t, ctx.Err(), context.Canceled)

	release()
	require.Zero(t, reg.Active())
	require.False(t, reg.Cancel("job-1"))
}

func TestRegistryStaleReleaseKeepsNewerEntry(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	_, cancelOld := context.WithCancel(context.Background())
	defer cancelOld()
	releaseOld := reg.Register("job-1", cancelOld)

	newCtx, cancelNew := context.WithCancel(context.Background())
	defer cancelNew()
	releaseNew := reg.Register("job-1", cancelNew)

	releaseOld()
	require.Equal(t, 1, reg.Active())
	require.True(t, reg.Cancel("job-1"))
	require.Error(t, newCtx.Err())
	releaseNew()
	require.Zero(t, reg.Active())
}
