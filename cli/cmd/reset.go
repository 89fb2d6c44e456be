package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// ResetCommand returns the reset command.
func ResetCommand() *cli.Command {
	return &cli.Command{
		Name:  "reset",
		Usage: "Abandon the current run; the next run or tick starts over from batch 0",
		Description: "An unfinished run is replaced by a new attempt linked to it through\n" +
			"parent_run_id. Required before changing feed.batch_size mid-run.",
		Flags:  ConfigFlags(),
		Action: resetAction,
	}
}

func resetAction(c *cli.Context) error {
	cfg, err := loadConfig(c, true)
	if err != nil {
		return err
	}
	env, err := openStorage(c.Context, cfg, newLogger(c, cfg.Feed.Name))
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	runner, err := env.runner()
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	state, err := runner.Reset(c.Context)
	if err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}
	if state == nil {
		fmt.Fprintf(c.App.Writer, "No unfinished run for feed %s.\n", cfg.Feed.Name)
		return nil
	}
	fmt.Fprintf(c.App.Writer, "Abandoned run %s; next attempt %d will start as %s.\n",
		*state.ParentRunID, state.Attempt, state.RunID)
	return nil
}
