package rmap

import (
	"context"
	"sort"
)

// fakeDevice is a minimal, in-package collaborator implementation used only
// by this package's own rebuild/verify tests. internal/rmapfs provides a
// fuller, exported equivalent for integration tests and the CLI; this one
// exists so rmap's unit tests don't need to import a package that in turn
// imports rmap.
type fakeDevice struct {
	agfl    map[uint32][]uint32
	onDisk  map[uint32][]Record // committed rmapbt contents, per AG
	fixlistCalls int
	allocCalls   int

	// failAllocAtCall, if non-zero, makes the Nth call to Alloc (1-indexed,
	// across all AGs) fail with ErrTransaction. Used to exercise §7's
	// fail-fast rebuild policy deterministically.
	failAllocAtCall int
	failFixlist     bool
	failReadAGF     bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{agfl: map[uint32][]uint32{}, onDisk: map[uint32][]Record{}}
}

func (d *fakeDevice) Slots(ag uint32) ([]uint32, error) {
	return d.agfl[ag], nil
}

type fakeTx struct {
	device  *fakeDevice
	pending map[uint32][]Record
}

func (d *fakeDevice) Begin(_ context.Context) (Transaction, error) {
	return &fakeTx{device: d, pending: map[uint32][]Record{}}, nil
}

func (tx *fakeTx) Commit(_ context.Context) error {
	for ag, recs := range tx.pending {
		tx.device.onDisk[ag] = append(tx.device.onDisk[ag], recs...)
	}

	return nil
}

func (tx *fakeTx) Cancel(_ context.Context) error {
	tx.pending = nil
	return nil
}

type fakeAGF struct{ ag uint32 }

func (h *fakeAGF) AG() uint32 { return h.ag }

func (d *fakeDevice) FixFreelist(_ context.Context, _ uint32, _ FreeListFlags) error {
	d.fixlistCalls++

	if d.failFixlist {
		return ErrTransaction
	}

	return nil
}

func (d *fakeDevice) ReadAGF(_ context.Context, _ Transaction, ag uint32) (AGFHandle, error) {
	if d.failReadAGF {
		return nil, ErrIO
	}

	return &fakeAGF{ag: ag}, nil
}

func (d *fakeDevice) Alloc(_ context.Context, tx Transaction, _ AGFHandle, ag uint32, startBlock, blockCount uint32, owner OwnerInfo) error {
	d.allocCalls++

	if d.failAllocAtCall != 0 && d.allocCalls == d.failAllocAtCall {
		return ErrTransaction
	}

	ftx := tx.(*fakeTx)
	ftx.pending[ag] = append(ftx.pending[ag], Record{StartBlock: startBlock, BlockCount: blockCount, Owner: owner.Owner, Flags: owner.Flags})

	return nil
}

func (d *fakeDevice) Cursor(_ context.Context, _ Transaction, _ AGFHandle, ag uint32) (RmapCursor, error) {
	recs := append([]Record(nil), d.onDisk[ag]...)
	sort.Slice(recs, func(i, j int) bool { return Compare(recs[i], recs[j]) < 0 })

	return &fakeCursor{records: recs}, nil
}

type fakeCursor struct {
	records []Record
	at      int
	found   bool
}

func (c *fakeCursor) LookupLE(key Key) (bool, error) {
	// Find the greatest record whose start_block is <= the requested
	// key's. Real rmapbt keys also order on owner/offset, but those only
	// disambiguate multiple owners sharing one physical block (reflink),
	// which this in-package fake does not model; start_block alone is
	// enough to exercise verify's Missing/Incorrect reporting.
	best := -1

	for i, r := range c.records {
		if r.StartBlock <= key.StartBlock {
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

func (c *fakeCursor) GetRec() (Record, error) {
	if !c.found {
		return Record{}, errNoCursorPosition
	}

	return c.records[c.at], nil
}

func (c *fakeCursor) Close() error { return nil }

var errNoCursorPosition = &cursorPositionError{}

type cursorPositionError struct{}

func (*cursorPositionError) Error() string { return "rmap: cursor has no current position" }
