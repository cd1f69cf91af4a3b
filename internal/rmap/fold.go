package rmap

// Fold sorts and merges ag's raw slab into its cooked slab, per §4.4.
//
// Post-condition: cooked is globally sorted. Raw-side adjacency is fully
// collapsed by the merge loop below; cross-side adjacency between a
// file-scan-produced prefix and a raw-merge-produced suffix is not
// collapsed here — the source accepts this too, relying on the B+tree
// insertion layer to absorb any residual adjacency at the record level.
func (e *Engine) Fold(ag uint32) error {
	p, err := e.ag(ag)
	if err != nil {
		return err
	}

	oldCookedSize := p.cooked.Count()

	if p.raw.Count() == 0 {
		return nil
	}

	p.raw.Sort(CompareLess)

	cur := p.raw.NewCursor()

	prev, ok := cur.Pop()
	if !ok {
		return nil
	}

	for {
		rec, ok := cur.Pop()
		if !ok {
			break
		}

		if Mergeable(prev, rec) {
			prev = Merge(prev, rec)
			continue
		}

		p.cooked.Append(prev)
		prev = rec
	}

	p.cooked.Append(prev)

	p.raw.Drain()

	if oldCookedSize > 0 {
		p.cooked.Sort(CompareLess)
	}

	return nil
}

// FoldAll folds every AG in ascending order.
func (e *Engine) FoldAll() error {
	for ag := 0; ag < e.AGCount(); ag++ {
		if err := e.Fold(uint32(ag)); err != nil {
			return err
		}
	}

	return nil
}
