//go:build !windows || dev

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bartek5186/pos2cloud/internal/cli"
)

// wersję można nadpisać: -ldflags "-X 'main.ver=1.0.1'"
var ver = "1.0.0"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cli.NewRootCommand(ver).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "błąd:", err)
		cancel()
		os.Exit(1)
	}
}
