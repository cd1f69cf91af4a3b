package main

import (
	"context"
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/rmaprepair/internal/diag"
	"github.com/calvinalkan/rmaprepair/internal/rmap"
)

// RebuildCmd builds the "rebuild" subcommand: load a fixture, run
// collection+fold+rebuild over an in-memory device, print a per-AG summary
// table, and write a diagnostics report.
func RebuildCmd() *Command {
	flags := flag.NewFlagSet("rebuild", flag.ContinueOnError)
	fixturePath := flags.String("fixture", "", "Path to a fixture file (required)")
	dryRun := flags.Bool("dry-run", false, "Collect and fold but do not insert into the rmapbt")
	reportPath := flags.String("report", "rebuild.json", "Path to write the diagnostics report")

	return &Command{
		Flags: flags,
		Usage: "rebuild --fixture <path> [--dry-run] [--report <path>]",
		Short: "Rebuild the reverse-mapping tree from a fixture",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			if *fixturePath == "" {
				return fmt.Errorf("--fixture is required")
			}

			lock, err := diag.Acquire(*fixturePath + ".lock")
			if err != nil {
				return err
			}
			defer func() { _ = lock.Release() }()

			e, mp, dev, err := buildDemoDevice(*fixturePath)
			if err != nil {
				return err
			}

			if err := e.FoldAll(); err != nil {
				return fmt.Errorf("fold: %w", err)
			}

			if *dryRun {
				o.Println("dry run: collection and fold complete, no records inserted")
				return nil
			}

			var report diag.Report
			t := newTable("AG", "AGFL_ADDED", "RECORDS", "FIXUPS")

			for ag := uint32(0); ag < mp.AGCount(); ag++ {
				stats, err := e.Rebuild(ctx, ag, dev, dev, dev, dev)
				if err != nil {
					var rebuildErr *rmap.RebuildError
					if errors.As(err, &rebuildErr) {
						return fmt.Errorf("ag %d: rebuild stopped at record %+v: %w", rebuildErr.AG, rebuildErr.Record, rebuildErr.Err)
					}

					return fmt.Errorf("ag %d: %w", ag, err)
				}

				report.AddRebuildStats(stats)
				t.addRow(fmt.Sprint(stats.AG), fmt.Sprint(stats.AGFLBlocksAdded), fmt.Sprint(stats.RecordsInserted), fmt.Sprint(stats.FreelistFixups))
			}

			o.Printf("%s", t.render())

			if err := report.WriteFile(*reportPath); err != nil {
				return err
			}

			o.Println("wrote", *reportPath)

			return nil
		},
	}
}

