// Command dqprobe profiles delimited, JSON-lines and HTML inputs: it reports
// per-field value shapes, annotates records with shapes and rule outcomes,
// and counts characters.
//
// Usage:
//
//	dqprobe profile [flags] [input]
//	dqprobe enhance [flags] [input]
//	dqprobe charprof [input]
//
// input is a path, a file:// or http(s):// URL, or "-" (default) for stdin.
// Every flag can also be set in the config file (--config) or through
// DQPROBE_* environment variables, e.g. DQPROBE_PROFILE_GRAIN=H.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "dqprobe/internal/storage/mssql"
	_ "dqprobe/internal/storage/postgres"
	_ "dqprobe/internal/storage/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(newApp(os.Stdin, os.Stdout, os.Stderr))
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
