// Package rmapcfg loads declarative filesystem fixtures used to drive the
// rmap engine and its collaborators outside a real device: a small JWCC
// (JSON-with-comments) document describing AG geometry, inode geometry
// (inodes per block and per chunk), and log placement. It does not describe
// individual inode chunks.
package rmapcfg

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// Fixture is a synthetic filesystem description: enough to construct a
// rmap.Engine and a geometry-only rmap.Mount for it.
type Fixture struct {
	AGBlocks        uint32 `json:"-"`
	AGCount         uint32 `json:"-"`
	InodesPerBlock  uint32 `json:"-"`
	InodesPerChunk  uint32 `json:"-"`
	AGFLSize        uint32 `json:"-"`
	HasSparseInodes bool   `json:"-"`

	LogAG       uint32 `json:"-"`
	LogAGBNO    uint32 `json:"-"`
	LogBlocks   uint32 `json:"-"`
	LogPresent  bool   `json:"-"`

	// HeaderBlocks is fixed at 4 (SB, AGI, AGF, AGFL each occupy one
	// block), matching every on-disk layout this engine targets; the
	// fixture format has no field for it.
	HeaderBlocks uint32 `json:"-"`
}

// Errors returned while loading or validating a fixture. Callers should use
// errors.Is to check for a specific one.
var (
	ErrFixtureRead    = fmt.Errorf("rmapcfg: cannot read fixture file")
	ErrFixtureInvalid = fmt.Errorf("rmapcfg: invalid fixture")
)

const fixedHeaderBlocks = 4

// Load reads and validates the fixture at path. The file is JWCC
// (JSON-with-comments and trailing commas); it is standardized to plain
// JSON before unmarshalling.
func Load(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("%w: %s: %v", ErrFixtureRead, path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Fixture{}, fmt.Errorf("%w: %s: invalid JWCC: %v", ErrFixtureInvalid, path, err)
	}

	var raw map[string]any

	if err := json.Unmarshal(standardized, &raw); err != nil {
		return Fixture{}, fmt.Errorf("%w: %s: invalid JSON: %v", ErrFixtureInvalid, path, err)
	}

	return parseFixture(raw, path)
}

func parseFixture(raw map[string]any, path string) (Fixture, error) {
	agBlocks, err := requireUint32(raw, "ag_blocks", path)
	if err != nil {
		return Fixture{}, err
	}

	agCount, err := requireUint32(raw, "ag_count", path)
	if err != nil {
		return Fixture{}, err
	}

	inopblock, err := requireUint32(raw, "inopblock", path)
	if err != nil {
		return Fixture{}, err
	}

	inodesPerChunk, err := requireUint32(raw, "inodes_per_chunk", path)
	if err != nil {
		return Fixture{}, err
	}

	agflSize, err := requireUint32(raw, "agfl_size", path)
	if err != nil {
		return Fixture{}, err
	}

	hasSparse, err := optionalBool(raw, "has_sparse_inodes", path)
	if err != nil {
		return Fixture{}, err
	}

	f := Fixture{
		AGBlocks:        agBlocks,
		AGCount:         agCount,
		InodesPerBlock:  inopblock,
		InodesPerChunk:  inodesPerChunk,
		AGFLSize:        agflSize,
		HasSparseInodes: hasSparse,
		HeaderBlocks:    fixedHeaderBlocks,
	}

	logRaw, hasLog := raw["log"]
	if hasLog {
		logObj, ok := logRaw.(map[string]any)
		if !ok {
			return Fixture{}, fmt.Errorf("%w: %s: field %q must be an object", ErrFixtureInvalid, path, "log")
		}

		logAG, err := requireUint32(logObj, "ag", path)
		if err != nil {
			return Fixture{}, err
		}

		logAGBNO, err := requireUint32(logObj, "agbno", path)
		if err != nil {
			return Fixture{}, err
		}

		logBlocks, err := requireUint32(logObj, "blocks", path)
		if err != nil {
			return Fixture{}, err
		}

		f.LogAG = logAG
		f.LogAGBNO = logAGBNO
		f.LogBlocks = logBlocks
		f.LogPresent = true
	}

	if err := validateFixture(f, path); err != nil {
		return Fixture{}, err
	}

	return f, nil
}

func validateFixture(f Fixture, path string) error {
	if f.AGBlocks == 0 {
		return fmt.Errorf("%w: %s: ag_blocks must be positive", ErrFixtureInvalid, path)
	}

	if f.AGCount == 0 {
		return fmt.Errorf("%w: %s: ag_count must be positive", ErrFixtureInvalid, path)
	}

	if f.InodesPerBlock == 0 {
		return fmt.Errorf("%w: %s: inopblock must be positive", ErrFixtureInvalid, path)
	}

	if f.InodesPerChunk == 0 || f.InodesPerChunk%f.InodesPerBlock != 0 {
		return fmt.Errorf("%w: %s: inodes_per_chunk must be a positive multiple of inopblock", ErrFixtureInvalid, path)
	}

	if f.LogPresent && f.LogAG >= f.AGCount {
		return fmt.Errorf("%w: %s: log.ag %d is out of range for ag_count %d", ErrFixtureInvalid, path, f.LogAG, f.AGCount)
	}

	if f.LogPresent && uint64(f.LogAGBNO)+uint64(f.LogBlocks) > uint64(f.AGBlocks) {
		return fmt.Errorf("%w: %s: log extent exceeds ag_blocks", ErrFixtureInvalid, path)
	}

	return nil
}

func requireUint32(raw map[string]any, key, path string) (uint32, error) {
	val, ok := raw[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s: missing required field %q", ErrFixtureInvalid, path, key)
	}

	num, ok := val.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: %s: field %q must be a number", ErrFixtureInvalid, path, key)
	}

	if num < 0 || num != float64(uint32(num)) {
		return 0, fmt.Errorf("%w: %s: field %q must be a non-negative integer", ErrFixtureInvalid, path, key)
	}

	return uint32(num), nil
}

func optionalBool(raw map[string]any, key, path string) (bool, error) {
	val, ok := raw[key]
	if !ok {
		return false, nil
	}

	b, ok := val.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s: field %q must be a boolean", ErrFixtureInvalid, path, key)
	}

	return b, nil
}
