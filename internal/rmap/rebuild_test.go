package rmap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebuild_InsertsAGFLAndMetadataRecords(t *testing.T) {
	e := newTestEngine(t, 1, 10_000)
	require.NoError(t, e.AddAGMetadata(0, 0, 4, OwnerFS))

	d := newFakeDevice()
	d.agfl[0] = []uint32{10, 11, 12, NullAGBlock}

	stats, err := e.Rebuild(context.Background(), 0, d, d, d, d)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.AGFLBlocksAdded)
	assert.Equal(t, 2, stats.RecordsInserted) // {0,4,FS} and the merged {10,3,AG}
	assert.Equal(t, 2, stats.FreelistFixups)

	assert.Len(t, d.onDisk[0], 2)
}

func TestRebuild_AGFLLeftoverCountSkipsHeadSlots(t *testing.T) {
	e := newTestEngine(t, 1, 10_000)
	p, err := e.PerAG(0)
	require.NoError(t, err)
	require.NoError(t, p.SetAGFLLeftoverCount(2, 4))

	d := newFakeDevice()
	d.agfl[0] = []uint32{10, 11, 12, 13}

	stats, err := e.Rebuild(context.Background(), 0, d, d, d, d)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.AGFLBlocksAdded) // only slots 12, 13
}

// Boundary: an empty AGFL (first slot is the null sentinel) adds zero
// AG-owner rmaps.
func TestRebuild_EmptyAGFL(t *testing.T) {
	e := newTestEngine(t, 1, 10_000)

	d := newFakeDevice()
	d.agfl[0] = []uint32{NullAGBlock}

	stats, err := e.Rebuild(context.Background(), 0, d, d, d, d)
	require.NoError(t, err)

	assert.Equal(t, 0, stats.AGFLBlocksAdded)
	assert.Equal(t, 0, stats.RecordsInserted)
}

func TestRebuild_RejectsInodeOwnedCookedRecord(t *testing.T) {
	e := newTestEngine(t, 1, 10_000)
	mp := &fakeMount{agBlocks: 10_000}
	require.NoError(t, e.AddFileMapping(mp, 0, 7, ForkData, FileExtent{StartFSB: mp.fsb(0, 0), Length: 1}))
	require.NoError(t, e.FinishFileRecs(0))

	d := newFakeDevice()

	_, err := e.Rebuild(context.Background(), 0, d, d, d, d)
	require.Error(t, err)

	var rebuildErr *RebuildError
	require.True(t, errors.As(err, &rebuildErr))
	assert.ErrorIs(t, err, ErrTransaction)
}

// Expansion scenario 7: a fault-injecting device fails a specific Alloc
// call; rebuild must fail fast with a wrapped ErrTransaction and stop
// inserting further records for that AG.
func TestRebuild_FailFastOnAllocFailure(t *testing.T) {
	e := newTestEngine(t, 1, 10_000)
	require.NoError(t, e.AddAGMetadata(0, 0, 1, OwnerFS))
	require.NoError(t, e.AddAGMetadata(0, 50, 1, OwnerLog))

	d := newFakeDevice()
	d.failAllocAtCall = 2

	_, err := e.Rebuild(context.Background(), 0, d, d, d, d)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransaction)

	// The first insert succeeded and committed before the failure.
	assert.Len(t, d.onDisk[0], 1)
}

func TestRebuild_FailFastOnFixFreelistFailure(t *testing.T) {
	e := newTestEngine(t, 1, 10_000)
	require.NoError(t, e.AddAGMetadata(0, 0, 1, OwnerFS))

	d := newFakeDevice()
	d.failFixlist = true

	_, err := e.Rebuild(context.Background(), 0, d, d, d, d)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransaction)
}

func TestRebuildAll_StopsAtFirstFailingAG(t *testing.T) {
	e := newTestEngine(t, 2, 10_000)
	require.NoError(t, e.AddAGMetadata(0, 0, 1, OwnerFS))
	require.NoError(t, e.AddAGMetadata(1, 0, 1, OwnerFS))

	d := newFakeDevice()
	d.failAllocAtCall = 1

	stats, err := e.RebuildAll(context.Background(), d, d, d, d)
	require.Error(t, err)
	assert.Len(t, stats, 1, "AG 1 must never be attempted once AG 0 fails")
}
