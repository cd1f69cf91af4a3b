package rmapfs

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/calvinalkan/rmaprepair/internal/rmap"
)

// ChaosConfig controls fault injection probabilities for [FaultyDevice].
// Each rate is a float64 from 0.0 (never) to 1.0 (always).
//
// The zero value disables all fault injection. Partially initialized configs
// only inject faults for the specified rates; unset fields default to 0.0.
type ChaosConfig struct {
	// BeginFailRate controls how often TransactionManager.Begin fails,
	// returning ErrTransaction before any work starts.
	BeginFailRate float64

	// ReadAGFFailRate controls how often Allocator.ReadAGF fails, returning
	// ErrIO. This is the most common real-world injection point: a
	// corrupted or unreadable AGF buffer.
	ReadAGFFailRate float64

	// AllocFailRate controls how often RmapBT.Alloc fails mid-insert,
	// returning ErrTransaction. Exercises §7's fail-fast rebuild policy.
	AllocFailRate float64

	// CommitFailRate controls how often Transaction.Commit fails after
	// Alloc already staged its pending record, returning ErrTransaction.
	CommitFailRate float64

	// FixFreelistFailRate controls how often Allocator.FixFreelist fails
	// between inserts, returning ErrTransaction.
	FixFreelistFailRate float64

	// CursorFailRate controls how often RmapBT.Cursor fails to open,
	// returning ErrIO. Exercises verify's infra-error path.
	CursorFailRate float64

	// LookupLEFailRate controls how often RmapCursor.LookupLE fails,
	// returning ErrIO.
	LookupLEFailRate float64
}

// ChaosMode controls how [FaultyDevice] behaves.
type ChaosMode uint8

const (
	// ChaosModeActive enables fault-rate injection. This is the default
	// mode for a new [FaultyDevice].
	ChaosModeActive ChaosMode = iota

	// ChaosModeNoOp passes every operation directly to the underlying
	// device.
	ChaosModeNoOp
)

// ChaosStats contains counts of injected faults, for test assertions.
type ChaosStats struct {
	BeginFails       int64
	ReadAGFFails     int64
	AllocFails       int64
	CommitFails      int64
	FixFreelistFails int64
	CursorFails      int64
	LookupLEFails    int64
}

// FaultyDevice wraps a [MemDevice] and injects random failures according to
// a [ChaosConfig], to exercise the rmap engine's fail-fast error handling
// (§7) without a real device.
//
// FaultyDevice is safe for concurrent use.
type FaultyDevice struct {
	inner *MemDevice
	cfg   ChaosConfig
	mode  atomic.Int32

	mu    sync.Mutex
	stats ChaosStats
}

// NewFaultyDevice wraps inner with fault injection controlled by cfg.
func NewFaultyDevice(inner *MemDevice, cfg ChaosConfig) *FaultyDevice {
	return &FaultyDevice{inner: inner, cfg: cfg}
}

// SetMode switches fault injection on or off. Tests commonly build a fixture
// with ChaosModeNoOp, seed state, then flip to ChaosModeActive right before
// the operation under test.
func (f *FaultyDevice) SetMode(mode ChaosMode) {
	f.mode.Store(int32(mode))
}

// Stats returns a snapshot of injected-fault counts.
func (f *FaultyDevice) Stats() ChaosStats {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.stats
}

func (f *FaultyDevice) active() bool {
	return ChaosMode(f.mode.Load()) == ChaosModeActive
}

func (f *FaultyDevice) roll(rate float64) bool {
	if !f.active() || rate <= 0 {
		return false
	}

	return rand.Float64() < rate
}

func (f *FaultyDevice) Slots(ag uint32) ([]uint32, error) {
	return f.inner.Slots(ag)
}

func (f *FaultyDevice) Begin(ctx context.Context) (rmap.Transaction, error) {
	if f.roll(f.cfg.BeginFailRate) {
		f.mu.Lock()
		f.stats.BeginFails++
		f.mu.Unlock()

		return nil, fmt.Errorf("rmapfs: injected begin failure: %w", rmap.ErrTransaction)
	}

	tx, err := f.inner.Begin(ctx)
	if err != nil {
		return nil, err
	}

	return &faultyTx{inner: tx, device: f}, nil
}

func (f *FaultyDevice) FixFreelist(ctx context.Context, ag uint32, flags rmap.FreeListFlags) error {
	if f.roll(f.cfg.FixFreelistFailRate) {
		f.mu.Lock()
		f.stats.FixFreelistFails++
		f.mu.Unlock()

		return fmt.Errorf("rmapfs: injected fix_freelist failure: %w", rmap.ErrTransaction)
	}

	return f.inner.FixFreelist(ctx, ag, flags)
}

func (f *FaultyDevice) ReadAGF(ctx context.Context, tx rmap.Transaction, ag uint32) (rmap.AGFHandle, error) {
	if f.roll(f.cfg.ReadAGFFailRate) {
		f.mu.Lock()
		f.stats.ReadAGFFails++
		f.mu.Unlock()

		return nil, fmt.Errorf("rmapfs: injected agf read failure: %w", rmap.ErrIO)
	}

	return f.inner.ReadAGF(ctx, tx, ag)
}

func (f *FaultyDevice) Alloc(ctx context.Context, tx rmap.Transaction, agf rmap.AGFHandle, ag uint32, startBlock, blockCount uint32, owner rmap.OwnerInfo) error {
	if f.roll(f.cfg.AllocFailRate) {
		f.mu.Lock()
		f.stats.AllocFails++
		f.mu.Unlock()

		return fmt.Errorf("rmapfs: injected rmap_alloc failure: %w", rmap.ErrTransaction)
	}

	return f.inner.Alloc(ctx, unwrapTx(tx), agf, ag, startBlock, blockCount, owner)
}

func (f *FaultyDevice) Cursor(ctx context.Context, tx rmap.Transaction, agf rmap.AGFHandle, ag uint32) (rmap.RmapCursor, error) {
	if f.roll(f.cfg.CursorFailRate) {
		f.mu.Lock()
		f.stats.CursorFails++
		f.mu.Unlock()

		return nil, fmt.Errorf("rmapfs: injected cursor open failure: %w", rmap.ErrIO)
	}

	cur, err := f.inner.Cursor(ctx, tx, agf, ag)
	if err != nil {
		return nil, err
	}

	return &faultyCursor{inner: cur, device: f}, nil
}

// faultyCursor wraps the inner cursor so LookupLE failures can be injected
// per call, not just at open time.
type faultyCursor struct {
	inner  rmap.RmapCursor
	device *FaultyDevice
}

func (c *faultyCursor) LookupLE(key rmap.Key) (bool, error) {
	if c.device.roll(c.device.cfg.LookupLEFailRate) {
		c.device.mu.Lock()
		c.device.stats.LookupLEFails++
		c.device.mu.Unlock()

		return false, fmt.Errorf("rmapfs: injected lookup_le failure: %w", rmap.ErrIO)
	}

	return c.inner.LookupLE(key)
}

func (c *faultyCursor) GetRec() (rmap.Record, error) { return c.inner.GetRec() }
func (c *faultyCursor) Close() error                 { return c.inner.Close() }

// Commit on a transaction begun through a FaultyDevice can also fail; since
// Transaction has no device pointer of its own, CommitFailRate is applied by
// wrapping the transaction Begin returns.
type faultyTx struct {
	inner  rmap.Transaction
	device *FaultyDevice
}

func (tx *faultyTx) Commit(ctx context.Context) error {
	if tx.device.roll(tx.device.cfg.CommitFailRate) {
		tx.device.mu.Lock()
		tx.device.stats.CommitFails++
		tx.device.mu.Unlock()

		_ = tx.inner.Cancel(ctx)

		return fmt.Errorf("rmapfs: injected commit failure: %w", rmap.ErrTransaction)
	}

	return tx.inner.Commit(ctx)
}

func (tx *faultyTx) Cancel(ctx context.Context) error { return tx.inner.Cancel(ctx) }

// unwrapTx strips a faultyTx wrapper so the underlying MemDevice sees the
// *memTx it issued, since MemDevice.Alloc type-asserts its tx argument.
func unwrapTx(tx rmap.Transaction) rmap.Transaction {
	if ftx, ok := tx.(*faultyTx); ok {
		return ftx.inner
	}

	return tx
}

// Compile-time interface checks.
var (
	_ rmap.AGFL               = (*FaultyDevice)(nil)
	_ rmap.TransactionManager = (*FaultyDevice)(nil)
	_ rmap.Allocator          = (*FaultyDevice)(nil)
	_ rmap.RmapBT             = (*FaultyDevice)(nil)
	_ rmap.RmapCursor         = (*faultyCursor)(nil)
	_ rmap.Transaction        = (*faultyTx)(nil)
)
