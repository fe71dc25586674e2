package main

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

// exitError carries a process exit status out of the command
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the root command and maps its outcome onto an exit status:
// 0 success, 1 mismatch under the check policy, 2 any other failure.
func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	if err == nil {
		return 0
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "hashledger: %v\n", ee.err)
		}
		return ee.code
	}

	fmt.Fprintf(stderr, "hashledger: %v\n", err)
	fmt.Fprintf(stderr, "Try 'hashledger --help' for more information.\n")
	return 2
}
