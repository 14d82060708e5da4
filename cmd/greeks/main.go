package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"greeks-simulator/internal/cli"
	"greeks-simulator/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The configured logger replaces this one once --config is read.
	cmd := cli.NewRootCmd(nil, logging.NewLogger())
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	stop()
	os.Exit(cli.ExitCode(err))
}
