package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/peterh/liner"

	"github.com/calvinalkan/rmaprepair/internal/rmap"
)

// InspectCmd builds the "inspect" subcommand: an interactive AG-by-AG
// browser over the cooked slab a fixture collects, for stepping through
// what the engine collected before committing to a rebuild. It shows the
// folded fixed metadata only; the AGFL blocks rebuild adds are not listed.
// Diagnostics aid, not a repair action, grounded on the teacher's cmd/sloty
// REPL shape.
func InspectCmd() *Command {
	flags := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fixturePath := flags.String("fixture", "", "Path to a fixture file (required)")

	return &Command{
		Flags: flags,
		Usage: "inspect --fixture <path>",
		Short: "Interactively browse collected cooked records, AG by AG",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			if *fixturePath == "" {
				return fmt.Errorf("--fixture is required")
			}

			e, mp, _, err := buildDemoDevice(*fixturePath)
			if err != nil {
				return err
			}

			if err := e.FoldAll(); err != nil {
				return fmt.Errorf("fold: %w", err)
			}

			return runInspectREPL(o, e, mp.AGCount())
		},
	}
}

func runInspectREPL(o *IO, e *rmap.Engine, agCount uint32) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)

	o.Println(fmt.Sprintf("rmaprepair inspect (%d AGs). Type 'help' for commands.", agCount))

	for {
		input, err := line.Prompt("rmaprepair> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				o.Println("\nBye!")
				return nil
			}

			return fmt.Errorf("reading input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		line.AppendHistory(input)

		fields := strings.Fields(input)
		cmd, args := strings.ToLower(fields[0]), fields[1:]

		switch cmd {
		case "exit", "quit", "q":
			o.Println("Bye!")
			return nil

		case "help", "?":
			o.Println("Commands: ag <n>, help, exit")

		case "ag":
			if err := printAGCookedRecords(o, e, agCount, args); err != nil {
				o.ErrPrintln(err)
			}

		default:
			o.ErrPrintln("unknown command:", cmd, "(type 'help')")
		}
	}
}

func printAGCookedRecords(o *IO, e *rmap.Engine, agCount uint32, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: ag <n>")
	}

	n, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil || uint32(n) >= agCount {
		return fmt.Errorf("ag must be between 0 and %d", agCount-1)
	}

	p, err := e.PerAG(uint32(n))
	if err != nil {
		return err
	}

	t := newTable("START", "LEN", "OWNER", "OFFSET", "FLAGS")
	cur := p.CookedCursor()

	for {
		rec, ok := cur.Pop()
		if !ok {
			break
		}

		t.addRow(fmt.Sprint(rec.StartBlock), fmt.Sprint(rec.BlockCount), fmt.Sprint(rec.Owner), fmt.Sprint(rec.Offset), fmt.Sprintf("%03b", rec.Flags))
	}

	o.Printf("%s", t.render())

	return nil
}
