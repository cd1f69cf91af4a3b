package rmap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario 5: verify reports a missing record.
func TestVerify_Missing(t *testing.T) {
	e := newTestEngine(t, 1, 10_000)
	require.NoError(t, e.AddAGMetadata(0, 100, 4, OwnerFS))
	require.NoError(t, e.Fold(0))

	d := newFakeDevice()

	report := &Report{}
	err := e.Verify(context.Background(), 0, d, d, d, report)
	require.NoError(t, err)

	require.Len(t, report.Findings, 1)
	assert.Equal(t, FindingMissing, report.Findings[0].Kind)
}

// Scenario 6: verify reports an incorrect record (offset mismatch for an
// inode owner).
func TestVerify_Incorrect(t *testing.T) {
	e := newTestEngine(t, 1, 10_000)
	mp := &fakeMount{agBlocks: 10_000}
	require.NoError(t, e.AddFileMapping(mp, 0, 7, ForkData, FileExtent{StartFSB: mp.fsb(0, 100), Length: 4, StartOffset: 0}))
	require.NoError(t, e.FinishFileRecs(0))

	d := newFakeDevice()
	d.onDisk[0] = []Record{{StartBlock: 100, BlockCount: 4, Owner: 7, Offset: 5}}

	report := &Report{}
	err := e.Verify(context.Background(), 0, d, d, d, report)
	require.NoError(t, err)

	require.Len(t, report.Findings, 1)
	assert.Equal(t, FindingIncorrect, report.Findings[0].Kind)
}

func TestVerify_GoodRecordProducesNoFinding(t *testing.T) {
	e := newTestEngine(t, 1, 10_000)
	require.NoError(t, e.AddAGMetadata(0, 100, 4, OwnerFS))
	require.NoError(t, e.Fold(0))

	d := newFakeDevice()
	d.onDisk[0] = []Record{{StartBlock: 100, BlockCount: 4, Owner: OwnerFS}}

	report := &Report{}
	err := e.Verify(context.Background(), 0, d, d, d, report)
	require.NoError(t, err)
	assert.Empty(t, report.Findings)
}

func TestVerify_CoveringSupersetIsGood(t *testing.T) {
	e := newTestEngine(t, 1, 10_000)
	require.NoError(t, e.AddAGMetadata(0, 100, 4, OwnerFS))
	require.NoError(t, e.Fold(0))

	d := newFakeDevice()
	// The on-disk record fully covers the observation but is wider.
	d.onDisk[0] = []Record{{StartBlock: 90, BlockCount: 20, Owner: OwnerFS}}

	report := &Report{}
	err := e.Verify(context.Background(), 0, d, d, d, report)
	require.NoError(t, err)
	assert.Empty(t, report.Findings)
}

func TestVerifyAll_SkipsWhenNoRmapbt(t *testing.T) {
	e := newTestEngine(t, 1, 10_000)
	mp := &fakeMount{agBlocks: 10_000, hasRmapbt: false}
	d := newFakeDevice()

	report, err := e.VerifyAll(context.Background(), mp, false, false, d, d, d)
	require.NoError(t, err)
	assert.Empty(t, report.Findings)
}

func TestVerifyAll_SuspectDryRunReportsWouldRebuild(t *testing.T) {
	e := newTestEngine(t, 1, 10_000)
	mp := &fakeMount{agBlocks: 10_000, hasRmapbt: true}
	d := newFakeDevice()

	report, err := e.VerifyAll(context.Background(), mp, true, true, d, d, d)
	require.NoError(t, err)
	assert.True(t, report.WouldRebuild)
	assert.Empty(t, report.Findings)
}

func TestVerifyAll_SuspectNonDryRunShortCircuitsSuccess(t *testing.T) {
	e := newTestEngine(t, 1, 10_000)
	mp := &fakeMount{agBlocks: 10_000, hasRmapbt: true}
	d := newFakeDevice()

	report, err := e.VerifyAll(context.Background(), mp, true, false, d, d, d)
	require.NoError(t, err)
	assert.False(t, report.WouldRebuild)
}
