package cmd

import (
	"context"
	"fmt"
	"os"
)

// ExitCoder is implemented by errors that ask for a specific process exit code.
type ExitCoder interface {
	ExitCode() int
}

func CheckError(err error) {
	if err == nil {
		return
	}
	code := 1
	if ec, ok := err.(ExitCoder); ok {
		code = ec.ExitCode()
	}
	if err != context.Canceled {
		fmt.Fprintf(os.Stderr, "An error occurred: %v\n", err)
	}
	os.Exit(code)
}
