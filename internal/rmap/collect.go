package rmap

import (
	"fmt"
	"math/bits"
)

// ForkType distinguishes an inode's data fork from its attribute fork.
type ForkType uint8

const (
	ForkData ForkType = iota
	ForkAttr
)

// ExtentState distinguishes a normal (written) extent from a preallocated,
// unwritten one.
type ExtentState uint8

const (
	ExtentNormal ExtentState = iota
	ExtentUnwritten
)

// FileExtent is one data/attr-fork extent as handed to AddFileMapping by an
// earlier repair phase's file-fork scan.
type FileExtent struct {
	StartFSB    uint64
	Length      uint32
	StartOffset uint64
	State       ExtentState
}

// AddFileMapping records a data- or attr-fork extent for inode ino.
//
// This is the critical path described in §4.3: file-fork scans produce
// millions of already-contiguous observations, so extents are
// run-length-coalesced into PerAG.last in place rather than appended
// individually to a slab that would then need an expensive sort. Call
// FinishFileRecs once the caller's scan of this AG's files completes to
// flush the final carry-over.
func (e *Engine) AddFileMapping(mp Mount, ag uint32, ino uint64, fork ForkType, ext FileExtent) error {
	p, err := e.ag(ag)
	if err != nil {
		return err
	}

	rec := Record{
		StartBlock: mp.FSBToAGBNO(ext.StartFSB),
		BlockCount: ext.Length,
		Owner:      Owner(ino),
		Offset:     ext.StartOffset,
	}

	if fork == ForkAttr {
		rec.Flags |= FlagAttrFork
	}

	if ext.State == ExtentUnwritten {
		rec.Flags |= FlagUnwritten
	}

	if err := Validate(rec, e.agBlocks); err != nil {
		return err
	}

	if p.last.Owner == OwnerUnknown {
		p.last = rec
		return nil
	}

	if Mergeable(p.last, rec) {
		p.last = Merge(p.last, rec)
		return nil
	}

	p.cooked.Append(p.last)
	p.last = rec

	return nil
}

// FinishFileRecs flushes ag's pending carry-over record (PerAG.last) to the
// cooked slab, if any, and resets the carry-over to empty. Callers must
// invoke this once per AG after its file-fork scan completes and before
// Fold runs.
func (e *Engine) FinishFileRecs(ag uint32) error {
	p, err := e.ag(ag)
	if err != nil {
		return err
	}

	if p.last.Owner == OwnerUnknown {
		return nil
	}

	p.cooked.Append(p.last)
	p.last = Record{Owner: OwnerUnknown}

	return nil
}

// AddBMBTBlock records one block of BMBT metadata for inode ino's fork at
// fsb. BMBT blocks are metadata about a fork's extent map, not file data,
// so they are added to the raw slab (unmerged) rather than streamed through
// PerAG.last.
func (e *Engine) AddBMBTBlock(mp Mount, ag uint32, ino uint64, fork ForkType, fsb uint64) error {
	p, err := e.ag(ag)
	if err != nil {
		return err
	}

	rec := Record{
		StartBlock: mp.FSBToAGBNO(fsb),
		BlockCount: 1,
		Owner:      Owner(ino),
		Flags:      FlagBMBTBlock,
	}

	if fork == ForkAttr {
		rec.Flags |= FlagAttrFork
	}

	if err := Validate(rec, e.agBlocks); err != nil {
		return err
	}

	p.raw.Append(rec)

	return nil
}

// AddAGMetadata records a per-AG metadata extent (SB/AGI/AGF/AGFL headers,
// inode chunks, log) at agbno, of len blocks, owned by a non-inode
// sentinel. Added to the raw slab, unmerged, since metadata extents are
// typically discovered out of block order.
func (e *Engine) AddAGMetadata(ag uint32, agbno, length uint32, owner Owner) error {
	if owner.IsInode() {
		return fmt.Errorf("rmap: add_ag_metadata owner %d must be a non-inode sentinel", owner)
	}

	p, err := e.ag(ag)
	if err != nil {
		return err
	}

	rec := Record{StartBlock: agbno, BlockCount: length, Owner: owner}

	if err := Validate(rec, e.agBlocks); err != nil {
		return err
	}

	p.raw.Append(rec)

	return nil
}

// AddFixedAGMetadata emits the convenience set of metadata rmaps described
// in §4.3: one FS-owner record covering the fixed AG header span, one
// INODES-owner record per aligned inode chunk, and one LOG-owner record if
// the internal log resides in this AG.
func (e *Engine) AddFixedAGMetadata(mp Mount, idx InodeChunkIndex, ag uint32) error {
	headerBlocks := mp.HeaderBlocks()
	if headerBlocks > 0 {
		if err := e.AddAGMetadata(ag, 0, headerBlocks, OwnerFS); err != nil {
			return err
		}
	}

	if err := e.addInodeChunkMetadata(mp, idx, ag); err != nil {
		return err
	}

	logAG, logAGBNO, logBlocks, present := mp.LogLocation()
	if present && logAG == ag {
		if err := e.AddAGMetadata(ag, logAGBNO, logBlocks, OwnerLog); err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) addInodeChunkMetadata(mp Mount, idx InodeChunkIndex, ag uint32) error {
	inodesPerChunk := mp.InodesPerChunk()
	inodesPerBlock := mp.InodesPerBlock()

	for _, chunk := range idx.Chunks(ag) {
		var startIdx, nrInodes uint64

		if mp.HasSparseInodes() && chunk.Sparse {
			// find_first_zero_bit / popcount over the sparse mask locate
			// the allocated sub-range within this chunk.
			startIdx = uint64(findFirstZeroBit(chunk.SparseBitmask, inodesPerChunk))
			nrInodes = uint64(inodesPerChunk) - uint64(bits.OnesCount64(chunk.SparseBitmask))
		} else {
			startIdx = 0
			nrInodes = uint64(inodesPerChunk)
		}

		// A fully sparse chunk still owns at least one block's worth of
		// inode-chunk metadata (§8 boundary case: nr=0 -> 1).
		blocks := nrInodes / uint64(inodesPerBlock)
		if blocks == 0 {
			blocks = 1
		}

		firstInode := chunk.StartInode + startIdx
		if idx.AGInoToOffset(firstInode) != 0 {
			continue
		}

		agbno := idx.AGInoToAGBNO(firstInode)

		if err := e.AddAGMetadata(ag, agbno, uint32(blocks), OwnerInodes); err != nil {
			return err
		}
	}

	return nil
}

// findFirstZeroBit returns the index (from the low bit) of the first clear
// bit in mask, scanning at most width bits. If every bit within width is
// set, it returns width (matching the source: a fully sparse chunk has no
// clear bit and nr_inodes computes to zero, which AddFixedAGMetadata then
// floors to one block).
func findFirstZeroBit(mask uint64, width uint32) uint32 {
	inverted := ^mask
	if width < 64 {
		inverted &= (uint64(1) << width) - 1
	}

	if inverted == 0 {
		return width
	}

	return uint32(bits.TrailingZeros64(inverted))
}

