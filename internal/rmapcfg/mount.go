package rmapcfg

import "github.com/calvinalkan/rmaprepair/internal/rmap"

// Mount adapts a Fixture into the read-only rmap.Mount geometry collaborator.
type Mount struct {
	f Fixture
}

// NewMount wraps f as a rmap.Mount.
func NewMount(f Fixture) Mount {
	return Mount{f: f}
}

func (m Mount) AGCount() uint32        { return m.f.AGCount }
func (m Mount) AGBlocks() uint32       { return m.f.AGBlocks }
func (m Mount) InodesPerBlock() uint32 { return m.f.InodesPerBlock }
func (m Mount) InodesPerChunk() uint32 { return m.f.InodesPerChunk }
func (m Mount) HasRmapbt() bool        { return true }
func (m Mount) HasSparseInodes() bool  { return m.f.HasSparseInodes }
func (m Mount) HeaderBlocks() uint32   { return m.f.HeaderBlocks }

func (m Mount) LogLocation() (ag, agbno, blocks uint32, present bool) {
	return m.f.LogAG, m.f.LogAGBNO, m.f.LogBlocks, m.f.LogPresent
}

func (m Mount) FSBToAG(fsb uint64) uint32 {
	return uint32(fsb / uint64(m.f.AGBlocks))
}

func (m Mount) FSBToAGBNO(fsb uint64) uint32 {
	return uint32(fsb % uint64(m.f.AGBlocks))
}

// Compile-time interface check.
var _ rmap.Mount = Mount{}
