package diag

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/calvinalkan/rmaprepair/internal/rmap"
)

// AGSummary is one AG's rebuild outcome, for the diagnostics report.
type AGSummary struct {
	AG              uint32 `json:"ag"`
	AGFLBlocksAdded int    `json:"agfl_blocks_added"`
	RecordsInserted int    `json:"records_inserted"`
	FreelistFixups  int    `json:"freelist_fixups"`
}

// FindingSummary is one Verify Finding, flattened for JSON.
type FindingSummary struct {
	AG       uint32 `json:"ag"`
	Kind     string `json:"kind"`
	Observed string `json:"observed"`
	OnDisk   string `json:"on_disk,omitempty"`
}

// Report is the diagnostics document written after a rebuild or verify run:
// aggregated rebuild summaries and/or Verify findings. At most one of the
// two sections is populated, depending on which subcommand produced it; a
// verify run with no findings leaves both empty.
type Report struct {
	Rebuild []AGSummary      `json:"rebuild,omitempty"`
	Verify  []FindingSummary `json:"verify,omitempty"`
}

// AddRebuildStats appends one AG's rebuild outcome to the report.
func (r *Report) AddRebuildStats(s rmap.RebuildStats) {
	r.Rebuild = append(r.Rebuild, AGSummary{
		AG:              s.AG,
		AGFLBlocksAdded: s.AGFLBlocksAdded,
		RecordsInserted: s.RecordsInserted,
		FreelistFixups:  s.FreelistFixups,
	})
}

// AddVerifyReport flattens every Finding in v into the report.
func (r *Report) AddVerifyReport(v *rmap.Report) {
	for _, f := range v.Findings {
		fs := FindingSummary{
			AG:       f.AG,
			Kind:     strings.TrimSpace(f.Kind.String()),
			Observed: recordString(f.Observed),
		}

		if f.Kind == rmap.FindingIncorrect {
			fs.OnDisk = recordString(f.OnDisk)
		}

		r.Verify = append(r.Verify, fs)
	}
}

func recordString(rec rmap.Record) string {
	return fmt.Sprintf("{start=%d len=%d owner=%d offset=%d}", rec.StartBlock, rec.BlockCount, rec.Owner, rec.Offset)
}

// WriteFile marshals r as indented JSON and writes it to path atomically
// via github.com/natefinch/atomic, so a crash mid-write never leaves a
// rerun reading a half-written report.
func (r *Report) WriteFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("diag: marshal report: %w", err)
	}

	data = append(data, '\n')

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("diag: write report %s: %w", path, err)
	}

	return nil
}
