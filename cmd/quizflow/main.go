package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"quizpicks/internal/cli"
	"quizpicks/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCommand(config.Load().Flow)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
