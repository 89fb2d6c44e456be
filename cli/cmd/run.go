package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/catalogfeed/log"
	"github.com/justapithecus/catalogfeed/schedule"
	"github.com/justapithecus/catalogfeed/types"
)

// Exit codes.
const (
	exitSuccess        = 0
	exitBatchFailure   = 1
	exitPublishFailure = 2
	exitConfigError    = 3
)

// RunCommand returns the run command.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Export the feed: start, process every batch, then publish",
		Description: "Resumes an unfinished run from its saved state. A failing batch is retried\n" +
			"at the same index with exponential backoff until run.max_batch_attempts.",
		Flags:  RunFlags(),
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c, false)
	if err != nil {
		return err
	}
	logger := newLogger(c, cfg.Feed.Name)

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	env, err := openEnvironment(ctx, cfg, logger)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	defer func() { _ = env.Close() }()

	runner, err := env.runner()
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	result, err := runner.Run(ctx)
	if err != nil {
		return cli.Exit(fmt.Sprintf("run failed: %v", err), exitCodeForError(err))
	}

	if err := env.writeMetrics(); err != nil {
		logger.Warn("metrics textfile not written", map[string]any{"error": err.Error()})
	}
	if path := c.String("report"); path != "" {
		snap := env.collector.Snapshot()
		report := schedule.BuildRunReport(result, env.backend.Location(), &snap)
		if err := schedule.WriteRunReport(report, path); err != nil {
			logger.Warn("run report not written", map[string]any{"error": err.Error()})
		}
	}
	if !c.Bool("quiet") {
		printRunResult(c.App.Writer, result, env.backend.Location())
	}

	return cli.Exit("", schedule.ExitCode(result.Outcome.Status))
}

// exitCodeForError maps an orchestrator error to an exit code. Run state
// that does not match the configuration is a configuration error.
func exitCodeForError(err error) int {
	switch {
	case errors.Is(err, schedule.ErrBatchSizeChanged), errors.Is(err, schedule.ErrFeedMismatch):
		return exitConfigError
	case schedule.IsPublishError(err):
		return exitPublishFailure
	default:
		return exitBatchFailure
	}
}

// signalContext cancels on SIGINT or SIGTERM. The run state saved so far
// lets the next invocation resume.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// newLogger returns the structured stderr logger of mutating commands.
func newLogger(c *cli.Context, feed string) *log.Logger {
	return log.NewLoggerWithWriter(nil, c.App.ErrWriter).With(map[string]any{"feed": feed})
}

func printRunResult(w io.Writer, result *schedule.RunResult, location string) {
	state := result.State
	totals := state.Totals

	fmt.Fprintf(w, "\n=== Run Complete ===\n")
	fmt.Fprintf(w, "Run ID:     %s\n", state.RunID)
	fmt.Fprintf(w, "Feed:       %s\n", state.Feed)
	fmt.Fprintf(w, "Attempt:    %d\n", state.Attempt)
	fmt.Fprintf(w, "Outcome:    %s\n", result.Outcome.Status)
	fmt.Fprintf(w, "Message:    %s\n", result.Outcome.Message)
	fmt.Fprintf(w, "Duration:   %s\n", result.Duration.Round(time.Millisecond))
	if result.Outcome.Status == types.OutcomeSuccess {
		fmt.Fprintf(w, "Location:   %s\n", location)
	}

	fmt.Fprintf(w, "\n=== Batches ===\n")
	fmt.Fprintf(w, "Batch size: %d\n", state.BatchSize)
	fmt.Fprintf(w, "Processed:  %d\n", totals.Batches)
	fmt.Fprintf(w, "Candidates: %d\n", totals.Candidates)
	fmt.Fprintf(w, "Records:    %d\n", totals.Records)
	fmt.Fprintf(w, "Skipped:    %d\n", totals.Skipped)
	if len(totals.SkippedBy) > 0 {
		reasons := make([]string, 0, len(totals.SkippedBy))
		for reason := range totals.SkippedBy {
			reasons = append(reasons, string(reason))
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			fmt.Fprintf(w, "  %-12s %d\n", reason+":", totals.SkippedBy[types.SkipReason(reason)])
		}
	}
	fmt.Fprintf(w, "Bytes:      %d\n", totals.Bytes)
	if state.LastError != "" {
		fmt.Fprintf(w, "\nLast error: %s\n", state.LastError)
	}
}
