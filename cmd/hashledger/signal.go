package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// setupSignalHandler returns a context that is cancelled on SIGINT or SIGTERM.
// The returned stop function releases the signal registration.
func setupSignalHandler(parent context.Context, stderr io.Writer) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigChan:
			fmt.Fprintf(stderr, "\nReceived signal: %v\n", sig)
			fmt.Fprintf(stderr, "Finishing in-flight files and saving the ledger...\n")
			cancel()
		case <-done:
		}
		signal.Stop(sigChan)
	}()

	return ctx, func() {
		close(done)
		cancel()
	}
}
