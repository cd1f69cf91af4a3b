// Command rmaprepair rebuilds and verifies a filesystem's reverse-mapping
// btree from a demo fixture, without requiring a real mounted filesystem.
package main

import (
	"os"
	"os/signal"
	"syscall"
)

func main() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	exitCode := Run(os.Stdout, os.Stderr, os.Args[1:], sigCh)

	os.Exit(exitCode)
}
