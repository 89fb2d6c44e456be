// Package cmd provides the commands of the catalogfeed binary.
package cmd

import "github.com/urfave/cli/v2"

// Output flags shared by read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode (status only).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (status only)",
	}
)

// ReadOnlyFlags returns the output flags. --tui is registered everywhere so
// unsupported commands can reject it explicitly.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{FormatFlag, NoColorFlag, TUIFlag}
}

// ConfigFlags returns the config file flag and the flags that override it.
func ConfigFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to YAML config file",
			EnvVars: []string{"CATALOGFEED_CONFIG"},
		},
		&cli.StringFlag{Name: "feed", Usage: "Feed name"},
		&cli.IntFlag{Name: "batch-size", Usage: "Items per batch (fixed for the whole run)"},
		&cli.IntFlag{Name: "concurrency", Usage: "Items loaded in parallel within a batch"},
		&cli.StringFlag{Name: "catalog-driver", Usage: "Catalog driver: fixture, postgres"},
		&cli.StringFlag{Name: "catalog-path", Usage: "Fixture file for the fixture driver"},
		&cli.StringFlag{Name: "catalog-dsn", Usage: "Postgres connection string", EnvVars: []string{"CATALOGFEED_DSN"}},
		&cli.StringFlag{Name: "storage-backend", Usage: "Storage backend: fs, s3, memory"},
		&cli.StringFlag{Name: "storage-path", Usage: "Output directory (fs) or bucket/prefix (s3)"},
		&cli.StringFlag{Name: "storage-region", Usage: "AWS region for s3"},
		&cli.StringFlag{Name: "storage-endpoint", Usage: "Custom S3 endpoint URL"},
		&cli.BoolFlag{Name: "storage-s3-path-style", Usage: "Force path-style S3 addressing"},
		&cli.StringFlag{Name: "state-path", Usage: "Run state file"},
		&cli.StringFlag{Name: "metrics-textfile", Usage: "Write metrics in node_exporter textfile format"},
	}
}

// RunFlags returns the flags of the mutating commands.
func RunFlags() []cli.Flag {
	return append(ConfigFlags(),
		&cli.StringFlag{Name: "report", Usage: "Write a JSON run report to this path (- for stderr)"},
		&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Suppress the result summary"},
	)
}
