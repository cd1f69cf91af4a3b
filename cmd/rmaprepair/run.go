package main

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Run is the main entry point. Returns the process exit code.
func Run(out, errOut io.Writer, args []string, sigCh <-chan os.Signal) int {
	commands := allCommands()

	commandMap := make(map[string]*Command, len(commands))
	for _, cmd := range commands {
		commandMap[cmd.Name()] = cmd
	}

	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" {
		printUsage(out, commands)
		return 0
	}

	cmdName := args[0]

	cmd, ok := commandMap[cmdName]
	if !ok {
		fprintln(errOut, "error: unknown command:", cmdName)
		printUsage(errOut, commands)

		return 1
	}

	cmdIO := NewIO(out, errOut)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)

	go func() {
		done <- cmd.Run(ctx, cmdIO, args[1:])
	}()

	select {
	case exitCode := <-done:
		return exitCode
	case <-sigCh:
		fprintln(errOut, "interrupted, shutting down...")
		cancel()

		return <-done
	}
}

// allCommands returns all subcommands in display order.
func allCommands() []*Command {
	return []*Command{
		RebuildCmd(),
		VerifyCmd(),
		InspectCmd(),
	}
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, commands []*Command) {
	fprintln(w, "rmaprepair - reverse-mapping btree reconstruction engine")
	fprintln(w)
	fprintln(w, "Usage: rmaprepair <command> [flags]")
	fprintln(w)
	fprintln(w, "Commands:")

	for _, cmd := range commands {
		fprintln(w, cmd.HelpLine())
	}
}
