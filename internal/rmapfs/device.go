// Package rmapfs provides collaborator implementations for the rmap engine:
// a deterministic in-memory device for integration tests and demonstrations,
// and a fault-injecting decorator for exercising its error-handling design.
//
// The main types are:
//   - [MemDevice]: in-memory Allocator/TransactionManager/RmapBT/AGFL
//   - [FaultyDevice]: wraps a MemDevice and injects configurable failures
package rmapfs

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/calvinalkan/rmaprepair/internal/rmap"
)

// MemDevice is a deterministic, in-memory implementation of every device
// collaborator the rmap engine consumes (rmap.AGFL, rmap.TransactionManager,
// rmap.Allocator, rmap.RmapBT). It is meant for integration tests and the CLI's
// fixture-driven modes, not for any real on-disk format.
//
// Transactions are modeled as a pending per-AG record buffer that is only
// applied to the committed on-disk view when Commit is called; Cancel simply
// discards it. MemDevice is safe for concurrent use.
type MemDevice struct {
	mu sync.Mutex

	agfl map[uint32][]uint32
	// onDisk holds the committed rmapbt contents per AG, always kept sorted
	// by rmap.Compare so Cursor doesn't have to re-sort on every call.
	onDisk map[uint32][]rmap.Record

	fixlistCalls int
	allocCalls   int
}

// NewMemDevice returns an empty device with no AGFL contents and no
// committed rmapbt records.
func NewMemDevice() *MemDevice {
	return &MemDevice{
		agfl:   map[uint32][]uint32{},
		onDisk: map[uint32][]rmap.Record{},
	}
}

// SeedAGFL installs ag's free-list contents, in head-to-tail order. Intended
// for fixture setup before a rebuild run.
func (d *MemDevice) SeedAGFL(ag uint32, slots []uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.agfl[ag] = append([]uint32(nil), slots...)
}

// SeedRmapbt installs ag's on-disk rmapbt contents directly, bypassing
// rebuild. Intended for verify-only fixtures that start from a known-good or
// known-corrupt tree.
func (d *MemDevice) SeedRmapbt(ag uint32, records []rmap.Record) {
	d.mu.Lock()
	defer d.mu.Unlock()

	recs := append([]rmap.Record(nil), records...)
	sort.Slice(recs, func(i, j int) bool { return rmap.Compare(recs[i], recs[j]) < 0 })
	d.onDisk[ag] = recs
}

// Rmapbt returns a snapshot of ag's current committed rmapbt contents, for
// assertions in tests and for the inspect CLI mode.
func (d *MemDevice) Rmapbt(ag uint32) []rmap.Record {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]rmap.Record(nil), d.onDisk[ag]...)
}

// Slots implements rmap.AGFL.
func (d *MemDevice) Slots(ag uint32) ([]uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]uint32(nil), d.agfl[ag]...), nil
}

// memTx is a single in-flight transaction: a pending per-AG insert buffer
// that is only merged into the device's committed state on Commit.
type memTx struct {
	device  *MemDevice
	pending map[uint32][]rmap.Record
	done    bool
}

// Begin implements rmap.TransactionManager.
func (d *MemDevice) Begin(_ context.Context) (rmap.Transaction, error) {
	return &memTx{device: d, pending: map[uint32][]rmap.Record{}}, nil
}

// Commit implements rmap.Transaction. Committing twice, or committing after
// Cancel, is a programmer error and returns an error rather than panicking.
func (tx *memTx) Commit(_ context.Context) error {
	if tx.done {
		return fmt.Errorf("rmapfs: transaction already closed")
	}

	tx.device.mu.Lock()
	defer tx.device.mu.Unlock()

	for ag, recs := range tx.pending {
		merged := append(tx.device.onDisk[ag], recs...)
		sort.Slice(merged, func(i, j int) bool { return rmap.Compare(merged[i], merged[j]) < 0 })
		tx.device.onDisk[ag] = merged
	}

	tx.done = true

	return nil
}

// Cancel implements rmap.Transaction, discarding the pending buffer.
func (tx *memTx) Cancel(_ context.Context) error {
	tx.pending = nil
	tx.done = true

	return nil
}

// memAGF is the opaque AGF handle MemDevice hands back from ReadAGF.
type memAGF struct{ ag uint32 }

func (h *memAGF) AG() uint32 { return h.ag }

// FixFreelist implements rmap.Allocator. MemDevice has no real free-space
// accounting to reconcile, so this only counts calls for test assertions.
func (d *MemDevice) FixFreelist(_ context.Context, _ uint32, _ rmap.FreeListFlags) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.fixlistCalls++

	return nil
}

// ReadAGF implements rmap.Allocator.
func (d *MemDevice) ReadAGF(_ context.Context, _ rmap.Transaction, ag uint32) (rmap.AGFHandle, error) {
	return &memAGF{ag: ag}, nil
}

// Alloc implements rmap.RmapBT, staging the new record in tx's pending
// buffer. It is only visible to Cursor once tx is committed.
func (d *MemDevice) Alloc(_ context.Context, tx rmap.Transaction, _ rmap.AGFHandle, ag uint32, startBlock, blockCount uint32, owner rmap.OwnerInfo) error {
	mtx, ok := tx.(*memTx)
	if !ok {
		return fmt.Errorf("rmapfs: alloc called with a transaction not issued by this device")
	}

	d.mu.Lock()
	d.allocCalls++
	d.mu.Unlock()

	mtx.pending[ag] = append(mtx.pending[ag], rmap.Record{
		StartBlock: startBlock,
		BlockCount: blockCount,
		Owner:      owner.Owner,
		Flags:      owner.Flags,
	})

	return nil
}

// Cursor implements rmap.RmapBT, returning a read-only view over ag's
// committed records as of the call.
func (d *MemDevice) Cursor(_ context.Context, _ rmap.Transaction, _ rmap.AGFHandle, ag uint32) (rmap.RmapCursor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return &memCursor{records: append([]rmap.Record(nil), d.onDisk[ag]...)}, nil
}

// memCursor implements rmap.RmapCursor with a real key comparison
// (rmap.DiffKeys), unlike the simplified start-block-only fake the rmap
// package's own tests use internally.
type memCursor struct {
	records []rmap.Record
	at      int
	found   bool
	closed  bool
}

// LookupLE finds the greatest record whose key is <= the requested key,
// using the same (StartBlock, Owner, OffsetPack) ordering rmap.Compare
// defines for the cooked slab.
func (c *memCursor) LookupLE(key rmap.Key) (bool, error) {
	if c.closed {
		return false, fmt.Errorf("rmapfs: cursor is closed")
	}

	best := -1

	for i, r := range c.records {
		if rmap.DiffKeys(rmap.KeyOf(r), key) <= 0 {
			best = i
		} else {
			break
		}
	}

	if best < 0 {
		c.found = false
		return false, nil
	}

	c.at = best
	c.found = true

	return true, nil
}

// GetRec implements rmap.RmapCursor.
func (c *memCursor) GetRec() (rmap.Record, error) {
	if c.closed {
		return rmap.Record{}, fmt.Errorf("rmapfs: cursor is closed")
	}

	if !c.found {
		return rmap.Record{}, fmt.Errorf("rmapfs: cursor has no current position")
	}

	return c.records[c.at], nil
}

// Close implements rmap.RmapCursor.
func (c *memCursor) Close() error {
	c.closed = true
	return nil
}

// Compile-time interface checks.
var (
	_ rmap.AGFL               = (*MemDevice)(nil)
	_ rmap.TransactionManager = (*MemDevice)(nil)
	_ rmap.Allocator          = (*MemDevice)(nil)
	_ rmap.RmapBT             = (*MemDevice)(nil)
	_ rmap.Transaction        = (*memTx)(nil)
	_ rmap.AGFHandle          = (*memAGF)(nil)
	_ rmap.RmapCursor         = (*memCursor)(nil)
)
