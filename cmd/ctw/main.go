package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/comparethewait/ctw/internal/cli"
)

func main() {
	// Cancel the context on interrupt so a running scrape can stop after the
	// current request and still write its summary
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
