package rmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cookedSlice(t *testing.T, e *Engine, ag uint32) []Record {
	t.Helper()

	p, err := e.PerAG(ag)
	require.NoError(t, err)

	cur := p.CookedCursor()

	var out []Record
	for {
		rec, ok := cur.Pop()
		if !ok {
			break
		}
		out = append(out, rec)
	}

	return out
}

func TestFold_NoRawIsNoop(t *testing.T) {
	e := newTestEngine(t, 1, 10_000)

	require.NoError(t, e.Fold(0))
	assert.Empty(t, cookedSlice(t, e, 0))
}

func TestFold_MergesAndSortsAgainstExistingCookedPrefix(t *testing.T) {
	e := newTestEngine(t, 1, 10_000)
	mp := &fakeMount{agBlocks: 10_000}

	// File-scan-produced cooked prefix, already sorted.
	require.NoError(t, e.AddFileMapping(mp, 0, 1, ForkData, FileExtent{StartFSB: mp.fsb(0, 0), Length: 2, StartOffset: 0}))
	require.NoError(t, e.FinishFileRecs(0))

	// Raw metadata observations, out of order.
	require.NoError(t, e.AddAGMetadata(0, 50, 1, OwnerFS))
	require.NoError(t, e.AddAGMetadata(0, 20, 1, OwnerFS))

	require.NoError(t, e.Fold(0))

	got := cookedSlice(t, e, 0)
	require.Len(t, got, 3)

	for i := 1; i < len(got); i++ {
		assert.Negative(t, Compare(got[i-1], got[i]), "cooked must be sorted after fold")
	}
}

func TestFold_Idempotent(t *testing.T) {
	e := newTestEngine(t, 1, 10_000)

	require.NoError(t, e.AddAGMetadata(0, 10, 1, OwnerFS))
	require.NoError(t, e.AddAGMetadata(0, 5, 1, OwnerFS))
	require.NoError(t, e.AddAGMetadata(0, 6, 4, OwnerFS))

	require.NoError(t, e.Fold(0))
	once := cookedSlice(t, e, 0)

	require.NoError(t, e.Fold(0))
	twice := cookedSlice(t, e, 0)

	assert.Equal(t, once, twice)
}

func TestFold_NoAdjacentPairMergeable(t *testing.T) {
	e := newTestEngine(t, 1, 10_000)

	require.NoError(t, e.AddAGMetadata(0, 0, 5, OwnerFS))
	require.NoError(t, e.AddAGMetadata(0, 20, 5, OwnerLog))
	require.NoError(t, e.AddAGMetadata(0, 100, 5, OwnerFS))

	require.NoError(t, e.Fold(0))

	got := cookedSlice(t, e, 0)
	for i := 1; i < len(got); i++ {
		assert.False(t, Mergeable(got[i-1], got[i]))
	}
}

func TestFoldAll_WalksEveryAG(t *testing.T) {
	e := newTestEngine(t, 3, 10_000)

	for ag := uint32(0); ag < 3; ag++ {
		require.NoError(t, e.AddAGMetadata(ag, 0, 1, OwnerFS))
	}

	require.NoError(t, e.FoldAll())

	for ag := uint32(0); ag < 3; ag++ {
		assert.Len(t, cookedSlice(t, e, ag), 1)
	}
}
