// Command collabgraph harvests artist releases from the Spotify Web API and
// builds a collaboration graph from shared track credits.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/collabgraph/internal/pipeline"
)

// Exit codes.
const (
	exitOK          = 0
	exitError       = 1
	exitSetup       = 2
	exitInterrupted = 130
)

// errInterrupted is returned by commands stopped by a signal.
var errInterrupted = errors.New("interrupted")

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	ctx, stop := notifyContext(ctx, stderr)
	defer stop()

	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	code := exitCode(err)
	if err != nil && code != exitInterrupted {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return code
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errInterrupted):
		return exitInterrupted
	case errors.Is(err, pipeline.ErrSetup):
		return exitSetup
	default:
		return exitError
	}
}

// notifyContext cancels the returned context on the first SIGINT or SIGTERM
// and exits immediately on the second.
func notifyContext(parent context.Context, stderr io.Writer) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case <-sigs:
			fmt.Fprintln(stderr, "Interrupt received, finishing the current artist. Press Ctrl+C again to exit now.")
			cancel()
		case <-done:
			return
		}

		select {
		case <-sigs:
			fmt.Fprintln(stderr, "Second interrupt, exiting.")
			os.Exit(exitInterrupted)
		case <-done:
		}
	}()

	return ctx, func() {
		signal.Stop(sigs)
		close(done)
		cancel()
	}
}
