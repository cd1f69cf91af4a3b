package rmap

import "sort"

// Slab is an append-only, growable container of records. Append never fails
// in this Go rendition (allocation failure is not a recoverable condition in
// a hosted Go runtime the way it is in the C tool this engine is modeled on),
// but the append-only/no-random-access/no-removal contract from §4.2 is
// preserved: the only ways to observe a Slab's contents are Count, a
// Cursor taken after Sort, and Drain.
//
// A Slab must not be appended to while a Cursor over it is alive; Cursor
// borrows the slab's backing slice directly rather than copying it, so the
// Go compiler's aliasing makes that rule visible instead of enforcing it at
// runtime.
type Slab struct {
	records []Record
}

// NewSlab returns an empty Slab. capacityHint is a sizing hint only.
func NewSlab(capacityHint int) *Slab {
	return &Slab{records: make([]Record, 0, capacityHint)}
}

// Append adds rec to the slab. O(1) amortized.
func (s *Slab) Append(rec Record) {
	s.records = append(s.records, rec)
}

// Count returns the number of records currently in the slab.
func (s *Slab) Count() int {
	return len(s.records)
}

// Sort orders the slab's contents by less in place. Not required to be
// stable; the rmap algebra never depends on the relative order of equal
// elements.
func (s *Slab) Sort(less func(a, b Record) bool) {
	sort.Slice(s.records, func(i, j int) bool {
		return less(s.records[i], s.records[j])
	})
}

// Drain empties the slab's contents while retaining its backing capacity.
func (s *Slab) Drain() {
	s.records = s.records[:0]
}

// Cursor yields a Slab's present contents one record at a time, in whatever
// order the slab was last sorted into. It does not itself sort; call Sort
// first if ordered traversal is required.
type Cursor struct {
	records []Record
	pos     int
}

// NewCursor establishes an ordered traversal over s's present contents,
// sharing s's backing slice rather than copying it. s must not be appended
// to while the returned cursor is live.
func (s *Slab) NewCursor() *Cursor {
	return &Cursor{records: s.records}
}

// Pop returns the next record in order and true, or the zero Record and
// false once the cursor is exhausted.
func (c *Cursor) Pop() (Record, bool) {
	if c.pos >= len(c.records) {
		return Record{}, false
	}

	rec := c.records[c.pos]
	c.pos++

	return rec, true
}

// Peek returns the next record without advancing the cursor.
func (c *Cursor) Peek() (Record, bool) {
	if c.pos >= len(c.records) {
		return Record{}, false
	}

	return c.records[c.pos], true
}

// Remaining reports how many records the cursor has not yet popped.
func (c *Cursor) Remaining() int {
	return len(c.records) - c.pos
}

// CompareLess adapts Compare to the less-function shape Slab.Sort and
// NewCursor-adjacent call sites want.
func CompareLess(a, b Record) bool {
	return Compare(a, b) < 0
}
