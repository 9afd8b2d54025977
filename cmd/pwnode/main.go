// Command pwnode drives a simulated PixelWeather node on the host: it keeps
// the node's flash, NVS and retained memory in a directory, runs wake cycles
// against a pwmp server and can host that server itself.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
