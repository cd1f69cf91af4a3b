package rmap

import "context"

// This file defines the collaborator interfaces listed in §6: everything
// the rmap engine consumes but does not implement. Concrete implementations
// live outside this package — internal/rmapfs provides an in-process
// deterministic model for tests and demonstrations, and a fault-injecting
// decorator for exercising §7's error-handling design.

// Mount exposes the read-only superblock fields and feature bits the engine
// needs. Implementations are expected to be cheap to call repeatedly (no
// I/O); the real tool keeps these in memory for the life of the process.
type Mount interface {
	AGCount() uint32
	AGBlocks() uint32
	InodesPerBlock() uint32
	InodesPerChunk() uint32
	HasRmapbt() bool
	HasSparseInodes() bool

	// LogLocation reports the AG holding the internal log, its AG-relative
	// start block and length, and whether an internal log is present.
	LogLocation() (ag uint32, agbno uint32, blocks uint32, present bool)

	// HeaderBlocks returns the number of blocks at the start of every AG
	// occupied by the SB/AGI/AGF/AGFL fixed header span.
	HeaderBlocks() uint32

	// FSBToAG and FSBToAGBNO implement the address arithmetic §6 names
	// fsb_to_agno / fsb_to_agbno: splitting a filesystem block number into
	// its owning AG and AG-relative block offset.
	FSBToAG(fsb uint64) uint32
	FSBToAGBNO(fsb uint64) uint32
}

// InodeChunk is one chunk of on-disk inodes, as exposed by the inode-chunk
// index collaborator.
type InodeChunk struct {
	StartInode    uint64
	SparseBitmask uint64 // 0 if the chunk is not sparse
	Sparse        bool
}

// InodeChunkIndex enumerates inode chunks for an AG in ascending order.
type InodeChunkIndex interface {
	// Chunks returns every chunk belonging to ag, in ascending start-inode
	// order. The real tool exposes this as first_chunk/next_chunk
	// iteration; a slice is the natural Go shape for the same contract.
	Chunks(ag uint32) []InodeChunk

	// AGInoToAGBNO and AGInoToOffset implement agino_to_agbno /
	// agino_to_offset: converting an AG-relative inode number to its block
	// and in-block offset.
	AGInoToAGBNO(agino uint64) uint32
	AGInoToOffset(agino uint64) uint32
}

// FreeListFlags controls fix_freelist behavior during rebuild.
type FreeListFlags uint8

const (
	// NoShrink suppresses shrinking the AGFL. Always set during rebuild
	// (§4.5): shrinking would free blocks into the bnobt/cntbt, which
	// would in turn try to remove an rmapbt entry from a tree that is not
	// yet fully loaded.
	NoShrink FreeListFlags = 1 << iota

	// NoRmap suppresses rmap updates triggered by fix_freelist itself.
	// Set only during the initial AGFL regeneration, before the rmapbt
	// root is wired into the AGF.
	NoRmap
)

// Allocator is the block allocator and AGF-buffer collaborator.
type Allocator interface {
	// FixFreelist brings ag's AGFL back into its required size band. It
	// manages its own transaction internally, mirroring the source's
	// xfs_alloc_fix_freelist rather than requiring the caller's
	// already-committed transaction handle.
	FixFreelist(ctx context.Context, ag uint32, flags FreeListFlags) error

	// ReadAGF acquires (read-locked, upgradeable) access to ag's AGF
	// buffer within tx.
	ReadAGF(ctx context.Context, tx Transaction, ag uint32) (AGFHandle, error)
}

// AGFHandle is an opaque handle to an AGF buffer acquired within a
// transaction. Its only use in this engine is to be threaded into
// RmapAlloc; its fields are not otherwise inspected.
type AGFHandle interface {
	AG() uint32
}

// TransactionManager begins, commits, and cancels transactions. Every
// rebuild insert runs inside exactly one transaction (§5: per-AG
// transactions are serialized, never concurrent).
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Transaction is a single in-flight transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Cancel(ctx context.Context) error
}

// OwnerInfo is the owner-tagging structure rmap_alloc expects, derived from
// a Record's Owner field.
type OwnerInfo struct {
	Owner Owner
	Flags Flag
}

// OwnerInfoFromRecord derives the owner-info the rmapbt insert path expects
// from a cooked record.
func OwnerInfoFromRecord(r Record) OwnerInfo {
	return OwnerInfo{Owner: r.Owner, Flags: r.Flags & KeyFlags}
}

// RmapBT is the on-disk reverse-mapping B+tree collaborator: insertion
// during rebuild, and lookup/read during verify.
type RmapBT interface {
	// Alloc inserts a new record into ag's rmapbt within tx.
	Alloc(ctx context.Context, tx Transaction, agf AGFHandle, ag uint32, startBlock, blockCount uint32, owner OwnerInfo) error

	// Cursor returns a read cursor over ag's rmapbt, for use by verify.
	Cursor(ctx context.Context, tx Transaction, agf AGFHandle, ag uint32) (RmapCursor, error)
}

// RmapCursor supports the lookup_le / get_rec pair verify needs to find the
// on-disk record that should cover a given observation.
type RmapCursor interface {
	// LookupLE positions the cursor at the record with the greatest key
	// less than or equal to key, and reports whether one was found.
	LookupLE(key Key) (bool, error)

	// GetRec reads the record the cursor is currently positioned at.
	// Only valid after a LookupLE that returned true.
	GetRec() (Record, error)

	// Close releases the cursor.
	Close() error
}

// AGFL reads the AG free-list buffer: an array of AG-relative block numbers
// terminated by a null sentinel or bounded by the AGFL's configured
// capacity.
type AGFL interface {
	// Slots returns ag's AGFL contents in head-to-tail order. A slot value
	// of NullAGBlock terminates the list early; callers must stop at the
	// first such slot even if more slots remain in the returned slice.
	Slots(ag uint32) ([]uint32, error)
}

// NullAGBlock is the AGFL terminator sentinel.
const NullAGBlock uint32 = 0xFFFFFFFF
