package rmap

import "fmt"

// PerAG accumulates reverse-mapping observations for a single allocation
// group across the collection, fold, and rebuild phases.
type PerAG struct {
	cooked *Slab
	raw    *Slab

	// last is the streaming run-length coalescer for add_file_mapping.
	// last.Owner == OwnerUnknown means "empty" (no carry-over pending).
	last Record

	// agflLeftoverCount is how many AGFL slots at the head were
	// pre-allocated by earlier repair phases and therefore already carry
	// rmaps; rebuild must not re-emit AG-owner records for them.
	agflLeftoverCount int
}

// newPerAG returns an accumulator with an empty carry-over.
func newPerAG() *PerAG {
	return &PerAG{
		cooked: NewSlab(64),
		raw:    NewSlab(64),
		last:   Record{Owner: OwnerUnknown},
	}
}

// CookedCount returns the number of merged records currently accumulated.
func (p *PerAG) CookedCount() int {
	return p.cooked.Count()
}

// RawCount returns the number of unmerged records currently accumulated.
func (p *PerAG) RawCount() int {
	return p.raw.Count()
}

// AGFLLeftoverCount returns the pre-populated AGFL slot count recorded for
// this AG.
func (p *PerAG) AGFLLeftoverCount() int {
	return p.agflLeftoverCount
}

// SetAGFLLeftoverCount records how many AGFL slots at the head were already
// populated by an earlier repair phase. agflSize is the AGFL's configured
// capacity; the count must not exceed it (§3 invariant).
func (p *PerAG) SetAGFLLeftoverCount(count, agflSize int) error {
	if count < 0 || count > agflSize {
		return fmt.Errorf("rmap: agfl leftover count %d exceeds agfl size %d", count, agflSize)
	}

	p.agflLeftoverCount = count

	return nil
}

// CookedCursor returns a cursor over the cooked slab's current contents in
// whatever order it was last sorted into (ascending start_block after
// Fold). The accumulator must not be mutated while the cursor is live.
func (p *PerAG) CookedCursor() *Cursor {
	return p.cooked.NewCursor()
}

// Engine is process-wide rmap state: one PerAG accumulator per allocation
// group. It corresponds to the source's ag_rmaps global, threaded
// explicitly instead of held behind a package-level pointer, per §9.
type Engine struct {
	agBlocks uint32
	perAG    []*PerAG
}

// NewEngine allocates accumulators for agCount allocation groups, each
// agBlocks blocks long. Call this once the filesystem is known to require
// an rmapbt (the source's init); there is no corresponding Close/destroy
// step in Go — the Engine is garbage collected normally once dropped.
func NewEngine(agCount int, agBlocks uint32) (*Engine, error) {
	if agCount <= 0 {
		return nil, fmt.Errorf("rmap: agCount must be positive, got %d", agCount)
	}

	if agBlocks == 0 {
		return nil, fmt.Errorf("rmap: agBlocks must be positive")
	}

	e := &Engine{
		agBlocks: agBlocks,
		perAG:    make([]*PerAG, agCount),
	}

	for i := range e.perAG {
		e.perAG[i] = newPerAG()
	}

	return e, nil
}

// AGCount returns the number of allocation groups this engine was created
// for.
func (e *Engine) AGCount() int {
	return len(e.perAG)
}

// AGBlocks returns the per-AG block count this engine validates records
// against.
func (e *Engine) AGBlocks() uint32 {
	return e.agBlocks
}

// ag returns the accumulator for ag, or an error if ag is out of range.
func (e *Engine) ag(ag uint32) (*PerAG, error) {
	if int(ag) >= len(e.perAG) {
		return nil, fmt.Errorf("rmap: ag %d out of range (have %d)", ag, len(e.perAG))
	}

	return e.perAG[ag], nil
}

// PerAG exposes the accumulator for ag for callers (fold, rebuild, verify)
// that need direct access. Returns an error if ag is out of range.
func (e *Engine) PerAG(ag uint32) (*PerAG, error) {
	return e.ag(ag)
}
