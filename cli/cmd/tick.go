package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/catalogfeed/cli/reader"
	"github.com/justapithecus/catalogfeed/cli/render"
	"github.com/justapithecus/catalogfeed/schedule"
	"github.com/justapithecus/catalogfeed/types"
)

// TickResponse reports one orchestrator step.
type TickResponse struct {
	RunID   string              `json:"run_id" yaml:"run_id"`
	Attempt int                 `json:"attempt" yaml:"attempt"`
	Step    schedule.Step       `json:"step" yaml:"step"`
	Phase   string              `json:"phase" yaml:"phase"`
	Batch   *types.BatchOutcome `json:"batch,omitempty" yaml:"batch,omitempty"`
	Next    int                 `json:"next_batch" yaml:"next_batch"`
	Error   string              `json:"error,omitempty" yaml:"error,omitempty"`
}

// TickCommand returns the tick command.
func TickCommand() *cli.Command {
	return &cli.Command{
		Name:  "tick",
		Usage: "Advance the feed run by one step (for cron and external schedulers)",
		Description: "Starts a run, processes the next batch, or publishes after the empty batch.\n" +
			"A failed batch leaves the index unchanged so the next tick retries it.",
		Flags:  append(RunFlags(), FormatFlag, NoColorFlag),
		Action: tickAction,
	}
}

func tickAction(c *cli.Context) error {
	cfg, err := loadConfig(c, false)
	if err != nil {
		return err
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
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

	tick, tickErr := runner.Tick(ctx)
	if tick == nil {
		return cli.Exit(tickErr.Error(), exitCodeForError(tickErr))
	}
	if err := env.writeMetrics(); err != nil {
		logger.Warn("metrics textfile not written", map[string]any{"error": err.Error()})
	}

	resp := TickResponse{
		RunID:   tick.State.RunID,
		Attempt: tick.State.Attempt,
		Step:    tick.Step,
		Phase:   reader.Phase(tick.State),
		Batch:   tick.Outcome,
		Next:    tick.State.BatchIndex,
	}
	if tickErr != nil {
		resp.Error = tickErr.Error()
	}
	if !c.Bool("quiet") {
		if err := r.Render(resp); err != nil {
			return err
		}
	}

	if tickErr != nil {
		return cli.Exit("", exitCodeForError(tickErr))
	}
	return cli.Exit("", exitSuccess)
}
