// Command corridor is the client/server CLI entry point for the tunneling
// proxy implemented under internal/.
package main

import (
	"os"

	"github.com/corridorproxy/corridor/internal/constants"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := newRootCmd().Execute(); err != nil {
		return exitCodeFor(err)
	}
	return constants.ExitSuccess
}

// exitCodeFor maps a returned error to the process's exit codes.
// RunE handlers return *errors.Error (argument or bootstrap) or a bare
// error for anything cobra itself rejects (unknown flag, bad usage),
// which is also treated as an argument error.
func exitCodeFor(err error) int {
	if code, ok := exitCodeFromCause(err); ok {
		return code
	}
	return constants.ExitArgumentError
}
