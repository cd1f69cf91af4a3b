// Package rmap implements the reverse-mapping (rmap) reconstruction engine:
// accumulating per-AG block-owner observations, folding them into canonical
// records, rebuilding the on-disk rmap B+tree, and verifying it afterward.
package rmap

import "fmt"

// Owner is the 64-bit owner tag carried by an RmapRecord. Positive values are
// inode numbers; negative values are drawn from the non-inode sentinel set
// below.
type Owner int64

// Non-inode owner sentinels. Mirrors the closed set of metadata owners a
// reverse-mapping record can carry instead of an inode number.
const (
	OwnerFS      Owner = -1 // superblock / AG header space
	OwnerLog     Owner = -2 // internal log
	OwnerAG      Owner = -3 // AG free-list (AGFL) blocks
	OwnerInodes  Owner = -4 // inode chunk blocks
	OwnerRefc    Owner = -5 // reference-count btree blocks
	OwnerCow     Owner = -6 // copy-on-write staging extents
	OwnerNull    Owner = -7 // explicit "no owner" placeholder
	OwnerUnknown Owner = -8 // sentinel for PerAgRmap.last meaning "empty"
)

// IsInode reports whether o names an inode rather than a metadata sentinel.
func (o Owner) IsInode() bool {
	return o > 0
}

// Flag is a bit in RmapRecord.Flags.
type Flag uint8

const (
	FlagAttrFork  Flag = 1 << iota // extent belongs to the attribute fork
	FlagBMBTBlock                  // extent is a BMBT metadata block, not file data
	FlagUnwritten                  // extent is allocated but unwritten (preallocation)
)

// RecFlags is every flag that participates in record equality.
const RecFlags = FlagAttrFork | FlagBMBTBlock | FlagUnwritten

// KeyFlags is the subset of RecFlags that participates in B+tree key
// comparisons. Unwritten is deliberately excluded: two extents that differ
// only by the unwritten bit still occupy the same key space.
const KeyFlags = FlagAttrFork | FlagBMBTBlock

// LenMax is the largest block_count a single record may carry (2^21 - 1),
// matching the on-disk rmapbt record's length field width.
const LenMax = 1<<21 - 1

// Record is a single reverse-mapping observation: "physical blocks
// [StartBlock, StartBlock+BlockCount) are owned by Owner".
type Record struct {
	StartBlock uint32
	BlockCount uint32
	Owner      Owner
	Offset     uint64
	Flags      Flag
}

// End returns the first block past the record's range.
func (r Record) End() uint64 {
	return uint64(r.StartBlock) + uint64(r.BlockCount)
}

// offsetPack encodes flags&KeyFlags into the two high bits of the returned
// value and the offset into the remainder. It exists only to give compare a
// single scalar to order on alongside StartBlock and Owner; it is never
// persisted.
func offsetPack(offset uint64, flags Flag) uint64 {
	return uint64(flags&KeyFlags)<<62 | (offset &^ (uint64(0b11) << 62))
}

// OffsetPack returns r's packed (keyFlags, offset) sort key.
func (r Record) OffsetPack() uint64 {
	return offsetPack(r.Offset, r.Flags)
}

// Mergeable reports whether b's range can be coalesced onto the end of a's,
// producing a single record with a's owner/flags and the combined length.
//
// The asymmetry — only b's owner is checked against the non-inode set — is
// intentional: metadata owners carry no meaningful offset or flags, so
// offset/flag comparison is suppressed whenever the record being appended is
// metadata, matching the filesystem's own merge semantics.
func Mergeable(a, b Record) bool {
	if a.Owner != b.Owner {
		return false
	}

	if uint64(a.StartBlock)+uint64(a.BlockCount) != uint64(b.StartBlock) {
		return false
	}

	if uint64(a.BlockCount)+uint64(b.BlockCount) > LenMax {
		return false
	}

	if !b.Owner.IsInode() {
		return true
	}

	if a.Flags != b.Flags {
		return false
	}

	if a.Flags&FlagBMBTBlock != 0 {
		return true
	}

	return a.Offset+uint64(a.BlockCount) == b.Offset
}

// Merge coalesces b onto a. Callers must have already established
// Mergeable(a, b).
func Merge(a, b Record) Record {
	a.BlockCount += b.BlockCount
	return a
}

// Compare orders records lexicographically on (StartBlock, Owner,
// OffsetPack). It defines the canonical order of a cooked slab.
func Compare(a, b Record) int {
	if a.StartBlock != b.StartBlock {
		return cmpUint32(a.StartBlock, b.StartBlock)
	}

	if a.Owner != b.Owner {
		return cmpInt64(int64(a.Owner), int64(b.Owner))
	}

	return cmpUint64(a.OffsetPack(), b.OffsetPack())
}

// Key is the subset of a Record's fields that participate in B+tree key
// comparison: flags outside KeyFlags (the unwritten bit) are masked off.
type Key struct {
	StartBlock uint32
	Owner      Owner
	Offset     uint64
	Flags      Flag // masked to KeyFlags
}

// KeyOf projects r onto its key, stripping non-key flags.
func KeyOf(r Record) Key {
	return Key{
		StartBlock: r.StartBlock,
		Owner:      r.Owner,
		Offset:     r.Offset,
		Flags:      r.Flags & KeyFlags,
	}
}

// DiffKeys orders two keys the same way Compare orders records, packing
// only each key's KeyFlags alongside its offset, so the unwritten bit never
// affects the result (KeyOf already masks it, so DiffKeys operates directly
// on Key values). The returned value is suitable for
// B+tree key arithmetic: zero means equal, negative means k1 < k2.
func DiffKeys(k1, k2 Key) int64 {
	if k1.StartBlock != k2.StartBlock {
		return int64(k1.StartBlock) - int64(k2.StartBlock)
	}

	if k1.Owner != k2.Owner {
		return int64(k1.Owner) - int64(k2.Owner)
	}

	return int64(offsetPack(k1.Offset, k1.Flags)) - int64(offsetPack(k2.Offset, k2.Flags))
}

// HighKeyFrom derives the inclusive high key of rec: the key of its last
// block rather than its first. Metadata and BMBT-block records never carry a
// meaningful offset, so only inode-owned, non-BMBT records advance Offset.
func HighKeyFrom(rec Record) Key {
	k := KeyOf(rec)
	if rec.BlockCount == 0 {
		return k
	}

	k.StartBlock += rec.BlockCount - 1

	if rec.Owner.IsInode() && rec.Flags&FlagBMBTBlock == 0 {
		k.Offset += uint64(rec.BlockCount) - 1
	}

	return k
}

// Validate checks the per-record invariants from §3: a non-empty range that
// fits within the AG, and (for inode owners) an offset range that does not
// overflow.
func Validate(r Record, agBlocks uint32) error {
	if r.BlockCount == 0 {
		return fmt.Errorf("rmap record: block_count is zero (owner %d, start %d)", r.Owner, r.StartBlock)
	}

	if r.BlockCount > LenMax {
		return fmt.Errorf("rmap record: block_count %d exceeds LEN_MAX %d (owner %d, start %d)", r.BlockCount, LenMax, r.Owner, r.StartBlock)
	}

	if uint64(r.StartBlock)+uint64(r.BlockCount) > uint64(agBlocks) {
		return fmt.Errorf("rmap record: range [%d,%d) exceeds ag_blocks %d (owner %d)", r.StartBlock, r.End(), agBlocks, r.Owner)
	}

	if r.Owner.IsInode() {
		sum := r.Offset + uint64(r.BlockCount)
		if sum < r.Offset {
			return fmt.Errorf("rmap record: offset %d + block_count %d overflows (owner %d)", r.Offset, r.BlockCount, r.Owner)
		}
	}

	return nil
}

func cmpUint32(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
