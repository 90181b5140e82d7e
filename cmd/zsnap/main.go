package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/blackwell-systems/zsnap/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if app.IsUsageError(err) {
			fmt.Fprintln(os.Stderr, "Run 'zsnap --help' for usage.")
		}
		stop()
		os.Exit(1)
	}
}
