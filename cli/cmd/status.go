package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/catalogfeed/cli/reader"
	"github.com/justapithecus/catalogfeed/cli/render"
	"github.com/justapithecus/catalogfeed/cli/tui"
)

// StatusCommand returns the status command.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show the run in progress and the last published run",
		Flags:  append(ConfigFlags(), ReadOnlyFlags()...),
		Action: statusAction,
	}
}

func statusAction(c *cli.Context) error {
	cfg, err := loadConfig(c, true)
	if err != nil {
		return err
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	env, err := openStorage(c.Context, cfg, newLogger(c, cfg.Feed.Name))
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	resp, err := reader.New(cfg.Feed.Name, env.states, env.history).Status(c.Context)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStatus, resp)
	}
	return r.Render(resp)
}
