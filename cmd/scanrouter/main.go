package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	os.Exit(run())
}

func run() int {
	root := newRootCommand()
	err := root.Execute()
	if err == nil {
		return 0
	}
	// An interrupted command surfaces as a canceled context; the signal
	// already told the operator, so only the exit code carries it.
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "scanrouter: %v\n", err)
	}
	return 1
}
