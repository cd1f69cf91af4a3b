package rmap

import (
	"context"
	"errors"
	"fmt"
)

// RebuildStats summarizes one AG's rebuild pass, for diagnostics.
type RebuildStats struct {
	AG              uint32
	AGFLBlocksAdded int
	RecordsInserted int
	FreelistFixups  int
}

// Rebuild walks ag's AGFL, folds its raw rmaps, and inserts every resulting
// cooked record into the on-disk rmapbt, fixing the free-list between
// inserts, per §4.5.
//
// Per the open question in §9, this implementation does not drain the
// cooked slab first: it augments whatever cooked contents already exist
// (from prior collection-phase calls) with freshly-collected AGFL-owner raw
// rmaps, then folds. The observable end state — AGFL blocks, prior
// fork/metadata rmaps, and AG-btree-block rmaps all present in the rebuilt
// tree — matches the source.
//
// Rebuild is fail-fast (§7): the first transaction or allocation failure
// aborts this AG's rebuild and returns a *RebuildError wrapping
// ErrTransaction. There is no partial rollback; the tool is offline and
// expected to be rerun after the underlying problem is fixed.
func (e *Engine) Rebuild(ctx context.Context, ag uint32, agfl AGFL, txm TransactionManager, alloc Allocator, bt RmapBT) (RebuildStats, error) {
	p, err := e.ag(ag)
	if err != nil {
		return RebuildStats{}, err
	}

	stats := RebuildStats{AG: ag}

	added, err := e.collectAGFLBlocks(p, ag, agfl)
	if err != nil {
		return stats, fmt.Errorf("rebuild ag %d: read agfl: %w", ag, errors.Join(ErrIO, err))
	}

	stats.AGFLBlocksAdded = added

	if err := e.Fold(ag); err != nil {
		return stats, fmt.Errorf("rebuild ag %d: fold: %w", ag, err)
	}

	cur := p.cooked.NewCursor()

	for {
		rec, ok := cur.Pop()
		if !ok {
			break
		}

		if rec.Owner.IsInode() {
			// Post-condition of rebuild (§4.5 step 4c): only metadata
			// lives in the rebuilt tree at this stage. File-fork rmaps
			// are inserted by the filesystem's own bmap replay, not
			// here (§9, open question 2, decision (b)).
			return stats, &RebuildError{AG: ag, Record: rec, Err: fmt.Errorf("%w: cooked slab contains inode-owned record during rebuild", ErrTransaction)}
		}

		if err := e.insertOne(ctx, ag, rec, txm, alloc, bt); err != nil {
			return stats, &RebuildError{AG: ag, Record: rec, Err: err}
		}

		stats.RecordsInserted++

		if err := alloc.FixFreelist(ctx, ag, NoShrink); err != nil {
			return stats, &RebuildError{AG: ag, Record: rec, Err: fmt.Errorf("%w: fix freelist: %v", ErrTransaction, err)}
		}

		stats.FreelistFixups++
	}

	return stats, nil
}

// insertOne performs the begin/read-AGF/insert/commit sequence for a single
// cooked record, per §4.5 step 4.
func (e *Engine) insertOne(ctx context.Context, ag uint32, rec Record, txm TransactionManager, alloc Allocator, bt RmapBT) error {
	tx, err := txm.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrTransaction, err)
	}

	agf, err := alloc.ReadAGF(ctx, tx, ag)
	if err != nil {
		_ = tx.Cancel(ctx)
		return fmt.Errorf("%w: read agf: %v", ErrTransaction, err)
	}

	err = bt.Alloc(ctx, tx, agf, ag, rec.StartBlock, rec.BlockCount, OwnerInfoFromRecord(rec))
	if err != nil {
		_ = tx.Cancel(ctx)
		return fmt.Errorf("%w: rmap alloc: %v", ErrTransaction, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrTransaction, err)
	}

	return nil
}

// collectAGFLBlocks reads ag's AGFL and emits an AG-owner raw rmap of
// length 1 for every slot past the first AGFLLeftoverCount entries, until a
// null sentinel is reached.
func (e *Engine) collectAGFLBlocks(p *PerAG, ag uint32, agfl AGFL) (int, error) {
	slots, err := agfl.Slots(ag)
	if err != nil {
		return 0, err
	}

	added := 0

	for i, slot := range slots {
		if i < p.agflLeftoverCount {
			continue
		}

		if slot == NullAGBlock {
			break
		}

		if err := e.AddAGMetadata(ag, slot, 1, OwnerAG); err != nil {
			return added, err
		}

		added++
	}

	return added, nil
}

// RebuildAll rebuilds every AG in ascending AG number (§5 ordering
// guarantee). The first AG to fail stops the sweep and returns its error;
// the returned stats hold one entry per AG attempted, the last being the
// partial stats of the AG that failed.
func (e *Engine) RebuildAll(ctx context.Context, agfl AGFL, txm TransactionManager, alloc Allocator, bt RmapBT) ([]RebuildStats, error) {
	stats := make([]RebuildStats, 0, e.AGCount())

	for ag := 0; ag < e.AGCount(); ag++ {
		s, err := e.Rebuild(ctx, uint32(ag), agfl, txm, alloc, bt)
		stats = append(stats, s)

		if err != nil {
			return stats, err
		}
	}

	return stats, nil
}
