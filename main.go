package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
)

// version will be set at build time
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	rootCmd := newRootCmd(defaultEnvironment())
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCode(err))
}

// exitCode maps a command error to the process status. Delivery outcomes
// carry their own code; any other error is a plain failure.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var outcome Outcome
	if errors.As(err, &outcome) {
		return outcome.ExitCode()
	}
	return 1
}
