package rmap

import (
	"context"
	"fmt"
)

// FindingKind distinguishes the two discrepancy shapes Verify can report.
type FindingKind uint8

const (
	// FindingMissing means no rmapbt record at all was found to cover an
	// observation.
	FindingMissing FindingKind = iota
	// FindingIncorrect means an rmapbt record was found but disagreed
	// with the observation.
	FindingIncorrect
)

func (k FindingKind) String() string {
	switch k {
	case FindingMissing:
		return "Missing reverse-mapping record"
	case FindingIncorrect:
		return "Incorrect reverse-mapping"
	default:
		return "unknown"
	}
}

// Finding is one Inconsistency (§7): reported, never fatal on its own.
type Finding struct {
	AG         uint32
	Kind       FindingKind
	Observed   Record
	OnDisk     Record // zero value when Kind == FindingMissing
}

func (f Finding) String() string {
	if f.Kind == FindingMissing {
		return fmt.Sprintf("ag %d: %s: {start=%d len=%d owner=%d offset=%d}", f.AG, f.Kind, f.Observed.StartBlock, f.Observed.BlockCount, f.Observed.Owner, f.Observed.Offset)
	}

	return fmt.Sprintf("ag %d: %s: observed {start=%d len=%d owner=%d offset=%d} on-disk {start=%d len=%d owner=%d offset=%d}",
		f.AG, f.Kind,
		f.Observed.StartBlock, f.Observed.BlockCount, f.Observed.Owner, f.Observed.Offset,
		f.OnDisk.StartBlock, f.OnDisk.BlockCount, f.OnDisk.Owner, f.OnDisk.Offset)
}

// Report accumulates every Finding produced by a Verify run, in AG-ascending
// order.
type Report struct {
	Findings []Finding

	// WouldRebuild is set instead of walking any AG when the process-wide
	// suspect flag is set and the caller asked for a dry run (§4.7).
	WouldRebuild bool
}

// Good reports whether btree is an acceptable on-disk record for the
// observation obs, per §4.6 step 3.
func Good(obs, btree Record) bool {
	if btree.Flags != obs.Flags || btree.Owner != obs.Owner {
		return false
	}

	if !(uint64(btree.StartBlock) <= uint64(obs.StartBlock) && btree.End() >= obs.End()) {
		return false
	}

	if obs.Owner.IsInode() && obs.Flags&FlagBMBTBlock == 0 {
		obsOffsetEnd := obs.Offset + uint64(obs.BlockCount)
		btreeOffsetEnd := btree.Offset + uint64(btree.BlockCount)

		if !(btree.Offset <= obs.Offset && btreeOffsetEnd >= obsOffsetEnd) {
			return false
		}
	}

	return true
}

// Verify walks ag's cooked rmaps against a live rmapbt cursor, reporting
// Missing/Incorrect records into report, per §4.6. Verify is read-only: a
// discrepancy is reported but never escalated to repair from within this
// engine.
//
// Verify aborts only on infrastructure errors (IO, transaction setup); it
// never aborts because of a discrepancy (§7).
func (e *Engine) Verify(ctx context.Context, ag uint32, txm TransactionManager, alloc Allocator, bt RmapBT, report *Report) error {
	p, err := e.ag(ag)
	if err != nil {
		return err
	}

	tx, err := txm.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: verify ag %d: begin: %v", ErrIO, ag, err)
	}
	defer func() { _ = tx.Cancel(ctx) }()

	agf, err := alloc.ReadAGF(ctx, tx, ag)
	if err != nil {
		return fmt.Errorf("%w: verify ag %d: read agf: %v", ErrIO, ag, err)
	}

	cur, err := bt.Cursor(ctx, tx, agf, ag)
	if err != nil {
		return fmt.Errorf("%w: verify ag %d: open rmapbt cursor: %v", ErrIO, ag, err)
	}
	defer func() { _ = cur.Close() }()

	cooked := p.cooked.NewCursor()

	for {
		obs, ok := cooked.Pop()
		if !ok {
			break
		}

		found, err := cur.LookupLE(KeyOf(obs))
		if err != nil {
			return fmt.Errorf("%w: verify ag %d: lookup_le: %v", ErrIO, ag, err)
		}

		if !found {
			report.Findings = append(report.Findings, Finding{AG: ag, Kind: FindingMissing, Observed: obs})
			continue
		}

		onDisk, err := cur.GetRec()
		if err != nil {
			return fmt.Errorf("%w: verify ag %d: get_rec: %v", ErrIO, ag, err)
		}

		if !Good(obs, onDisk) {
			report.Findings = append(report.Findings, Finding{AG: ag, Kind: FindingIncorrect, Observed: obs, OnDisk: onDisk})
		}
	}

	return nil
}

// VerifyAll verifies every AG in ascending AG order (§4.7, §5) when mp
// reports rmapbt support and suspect is false. Suspect is the process-wide
// flag set by unrelated code that detected rmapbt corruption earlier; it is
// passed in explicitly here rather than held as a package global. When it
// is set, VerifyAll walks no AG: it returns an empty report, with
// WouldRebuild set if dryRun is true.
func (e *Engine) VerifyAll(ctx context.Context, mp Mount, suspect bool, dryRun bool, txm TransactionManager, alloc Allocator, bt RmapBT) (*Report, error) {
	report := &Report{}

	if !mp.HasRmapbt() {
		return report, nil
	}

	if suspect {
		if dryRun {
			report.WouldRebuild = true
		}

		return report, nil
	}

	for ag := 0; ag < e.AGCount(); ag++ {
		if err := e.Verify(ctx, uint32(ag), txm, alloc, bt, report); err != nil {
			return report, err
		}
	}

	return report, nil
}
