package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"kilometers.ai/boot/internal/interfaces/cli"
	"kilometers.ai/boot/internal/interfaces/di"
)

func main() {
	container, err := di.NewContainer(di.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Execute(ctx, container.CLIContainer, os.Args[1:])
	stop()
	os.Exit(code)
}
