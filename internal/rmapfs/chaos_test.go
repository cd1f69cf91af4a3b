package rmapfs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/rmaprepair/internal/rmap"
)

func TestFaultyDevice_NoOpModePassesThrough(t *testing.T) {
	f := NewFaultyDevice(NewMemDevice(), ChaosConfig{BeginFailRate: 1})
	f.SetMode(ChaosModeNoOp)

	_, err := f.Begin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.Stats().BeginFails)
}

func TestFaultyDevice_BeginAlwaysFails(t *testing.T) {
	f := NewFaultyDevice(NewMemDevice(), ChaosConfig{BeginFailRate: 1})

	_, err := f.Begin(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, rmap.ErrTransaction)
	assert.Equal(t, int64(1), f.Stats().BeginFails)
}

func TestFaultyDevice_ReadAGFAlwaysFails(t *testing.T) {
	f := NewFaultyDevice(NewMemDevice(), ChaosConfig{ReadAGFFailRate: 1})

	tx, err := f.Begin(context.Background())
	require.NoError(t, err)

	_, err = f.ReadAGF(context.Background(), tx, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, rmap.ErrIO)
}

func TestFaultyDevice_AllocAlwaysFailsAndDoesNotPersist(t *testing.T) {
	f := NewFaultyDevice(NewMemDevice(), ChaosConfig{AllocFailRate: 1})
	ctx := context.Background()

	tx, err := f.Begin(ctx)
	require.NoError(t, err)

	agf, err := f.ReadAGF(ctx, tx, 0)
	require.NoError(t, err)

	err = f.Alloc(ctx, tx, agf, 0, 0, 4, rmap.OwnerInfo{Owner: rmap.OwnerFS})
	require.Error(t, err)
	assert.ErrorIs(t, err, rmap.ErrTransaction)
}

func TestFaultyDevice_CommitAlwaysFailsAndCancelsUnderlying(t *testing.T) {
	f := NewFaultyDevice(NewMemDevice(), ChaosConfig{CommitFailRate: 1})
	ctx := context.Background()

	tx, err := f.Begin(ctx)
	require.NoError(t, err)

	agf, err := f.ReadAGF(ctx, tx, 0)
	require.NoError(t, err)

	require.NoError(t, f.Alloc(ctx, tx, agf, 0, 0, 4, rmap.OwnerInfo{Owner: rmap.OwnerFS}))

	err = tx.Commit(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, rmap.ErrTransaction)

	assert.Empty(t, f.inner.Rmapbt(0), "a failed commit must not leave the insert visible")
}

func TestFaultyDevice_CursorOpenAlwaysFails(t *testing.T) {
	f := NewFaultyDevice(NewMemDevice(), ChaosConfig{CursorFailRate: 1})
	ctx := context.Background()

	tx, err := f.Begin(ctx)
	require.NoError(t, err)
	agf, err := f.ReadAGF(ctx, tx, 0)
	require.NoError(t, err)

	_, err = f.Cursor(ctx, tx, agf, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, rmap.ErrIO)
}

func TestFaultyDevice_LookupLEAlwaysFails(t *testing.T) {
	inner := NewMemDevice()
	inner.SeedRmapbt(0, []rmap.Record{{StartBlock: 0, BlockCount: 4, Owner: rmap.OwnerFS}})

	f := NewFaultyDevice(inner, ChaosConfig{LookupLEFailRate: 1})
	ctx := context.Background()

	tx, err := f.Begin(ctx)
	require.NoError(t, err)
	agf, err := f.ReadAGF(ctx, tx, 0)
	require.NoError(t, err)

	cur, err := f.Cursor(ctx, tx, agf, 0)
	require.NoError(t, err)

	_, err = cur.LookupLE(rmap.Key{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, rmap.ErrIO))
}

// Expansion scenario 7: rebuild through a device whose Alloc always fails
// must abort on the very first insert and leave nothing committed, wrapping
// ErrTransaction per §7's fail-fast policy.
func TestFaultyDevice_RebuildFailsFastOnInjectedAllocFailure(t *testing.T) {
	e, err := rmap.NewEngine(1, 10_000)
	require.NoError(t, err)

	require.NoError(t, e.AddAGMetadata(0, 0, 1, rmap.OwnerFS))
	require.NoError(t, e.AddAGMetadata(0, 50, 1, rmap.OwnerLog))

	inner := NewMemDevice()
	f := NewFaultyDevice(inner, ChaosConfig{AllocFailRate: 1})

	ctx := context.Background()
	_, err = e.Rebuild(ctx, 0, f, f, f, f)
	require.Error(t, err)
	assert.ErrorIs(t, err, rmap.ErrTransaction)
	assert.Empty(t, inner.Rmapbt(0))
}
