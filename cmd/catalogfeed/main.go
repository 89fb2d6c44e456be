// Package main provides the catalogfeed CLI entrypoint.
//
// Usage:
//
//	catalogfeed <command> [options]
//
// Exit codes of run and tick:
//   - 0: success (step done or feed published)
//   - 1: batch failure or run incomplete
//   - 2: publish failure (canonical feed unchanged)
//   - 3: configuration error
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/catalogfeed/cli/cmd"
	"github.com/justapithecus/catalogfeed/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already exited for cli.ExitCoder errors.
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:           "catalogfeed",
		Usage:          "Batch export of the product catalog into a published feed",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.RunCommand(),
			cmd.TickCommand(),
			cmd.ResetCommand(),
			cmd.StatusCommand(),
			cmd.VersionCommand(commit),
		},
	}
}

// exitErrHandler preserves exit codes from cli.Exit.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	os.Exit(exitCode(err, os.Stderr))
}

// exitCode returns the process exit code for err and prints its message.
// cli.Exit("", N) carries no message and prints nothing.
func exitCode(err error, stderr io.Writer) int {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(stderr, msg)
		}
		return code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}
