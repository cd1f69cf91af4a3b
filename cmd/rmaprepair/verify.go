package main

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/rmaprepair/internal/diag"
)

// VerifyCmd builds the "verify" subcommand: load a fixture, run collection,
// fold and rebuild over an in-memory device, then verify every AG's cooked
// records against the rebuilt rmapbt, printing any Missing/Incorrect
// findings.
//
// A discrepancy is reported, not fatal (§7's policy): findings are printed
// to stdout and Exec returns the silent errFindingsReported sentinel, which
// Command.Run (command.go) turns into exit code 1 without an "error:" line.
// Any other error from Exec is an infrastructure failure.
func VerifyCmd() *Command {
	flags := flag.NewFlagSet("verify", flag.ContinueOnError)
	fixturePath := flags.String("fixture", "", "Path to a fixture file (required)")
	suspect := flags.Bool("suspect", false, "Treat the rmapbt as suspect (§4.7 process-wide flag)")
	dryRunSuspect := flags.Bool("dry-run", false, "With --suspect, report whether a rebuild would run instead of verifying")
	reportPath := flags.String("report", "verify.json", "Path to write the diagnostics report")

	return &Command{
		Flags: flags,
		Usage: "verify --fixture <path> [--suspect] [--dry-run] [--report <path>]",
		Short: "Verify the reverse-mapping tree against collected observations",
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

			if _, err := e.RebuildAll(ctx, dev, dev, dev, dev); err != nil {
				return fmt.Errorf("rebuild: %w", err)
			}

			report, err := e.VerifyAll(ctx, mp, *suspect, *dryRunSuspect, dev, dev, dev)
			if err != nil {
				return err
			}

			var out diag.Report
			out.AddVerifyReport(report)

			if err := out.WriteFile(*reportPath); err != nil {
				return err
			}

			if report.WouldRebuild {
				o.Println("suspect flag set: would rebuild instead of verifying")
				return nil
			}

			if len(report.Findings) == 0 {
				o.Println("no inconsistencies found")
				return nil
			}

			for _, f := range report.Findings {
				o.Println(f.String())
			}

			return errFindingsReported
		},
	}
}

// errFindingsReported is a silent sentinel: Command.Run exits 1 for it
// without printing an "error:" line, since the findings it represents were
// already printed to stdout. A verify finding is reported, not fatal (§7),
// but the operator still needs a non-zero exit to notice in scripts.
var errFindingsReported = fmt.Errorf("rmaprepair: verify reported inconsistencies: %w", errSilentNonZero)
