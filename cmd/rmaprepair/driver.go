package main

import (
	"fmt"

	"github.com/calvinalkan/rmaprepair/internal/rmap"
	"github.com/calvinalkan/rmaprepair/internal/rmapcfg"
	"github.com/calvinalkan/rmaprepair/internal/rmapfs"
)

// emptyInodeIndex is an InodeChunkIndex with no chunks, used by the demo
// driver since fixtures describe AG/log geometry only, not a populated
// inode chunk layout.
type emptyInodeIndex struct{}

func (emptyInodeIndex) Chunks(uint32) []rmap.InodeChunk  { return nil }
func (emptyInodeIndex) AGInoToAGBNO(uint64) uint32       { return 0 }
func (emptyInodeIndex) AGInoToOffset(uint64) uint32      { return 0 }

// demoAGFLBlocks is how many placeholder AGFL slots the driver seeds per AG
// after the fixed header, so rebuild has something to insert beyond the
// fixed metadata. A real tool would read this from the image; this driver
// exists to exercise the engine end-to-end from a geometry-only fixture.
const demoAGFLBlocks = 8

// buildDemoDevice loads fixture, builds an Engine primed with every AG's
// fixed metadata (header + log), and seeds a MemDevice's AGFL with a
// placeholder run of blocks per AG.
func buildDemoDevice(fixturePath string) (*rmap.Engine, rmapcfg.Mount, *rmapfs.MemDevice, error) {
	f, err := rmapcfg.Load(fixturePath)
	if err != nil {
		return nil, rmapcfg.Mount{}, nil, err
	}

	mp := rmapcfg.NewMount(f)

	e, err := rmap.NewEngine(int(f.AGCount), f.AGBlocks)
	if err != nil {
		return nil, rmapcfg.Mount{}, nil, fmt.Errorf("build engine: %w", err)
	}

	dev := rmapfs.NewMemDevice()

	for ag := uint32(0); ag < f.AGCount; ag++ {
		if err := e.AddFixedAGMetadata(mp, emptyInodeIndex{}, ag); err != nil {
			return nil, rmapcfg.Mount{}, nil, fmt.Errorf("ag %d: collect fixed metadata: %w", ag, err)
		}

		start := f.HeaderBlocks
		slots := make([]uint32, 0, demoAGFLBlocks+1)

		for i := uint32(0); i < demoAGFLBlocks && start+i < f.AGBlocks; i++ {
			slots = append(slots, start+i)
		}

		slots = append(slots, rmap.NullAGBlock)
		dev.SeedAGFL(ag, slots)
	}

	return e, mp, dev, nil
}
