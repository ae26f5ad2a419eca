// cmd/minion/main.go
//
// Entry point for the minion CLI. Interrupts cancel the running job's
// context so in-flight requests stop and providers are closed.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kingrea/minion/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], cli.Options{})
	stop()
	os.Exit(code)
}
