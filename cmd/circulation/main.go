// Command circulation operates a circulation store: schema migration, item registration,
// loans and returns, and the scheduled overdue sweep with a Prometheus /metrics endpoint.
//
//	circulation [global flags] <command> [command flags]
//
// Global flags are described by "circulation -h", each command lists its own with "-h".
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
