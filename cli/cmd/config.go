package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/catalogfeed/cli/config"
)

// defaultConfigPath is read when --config is not given and the file exists.
const defaultConfigPath = "catalogfeed.yaml"

// loadConfig reads the config file, applies flag overrides and validates.
// Read-only commands skip the catalog and adapter checks. Every failure is
// a configuration error (exit 3).
func loadConfig(c *cli.Context, readOnly bool) (*config.Config, error) {
	cfg, err := readConfig(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), exitConfigError)
	}

	cfg.Feed.Name = resolveString(c, "feed", cfg.Feed.Name)
	cfg.Feed.BatchSize = resolveInt(c, "batch-size", cfg.Feed.BatchSize)
	cfg.Feed.Concurrency = resolveInt(c, "concurrency", cfg.Feed.Concurrency)
	cfg.Catalog.Driver = resolveString(c, "catalog-driver", cfg.Catalog.Driver)
	cfg.Catalog.Path = resolveString(c, "catalog-path", cfg.Catalog.Path)
	cfg.Catalog.DSN = resolveString(c, "catalog-dsn", cfg.Catalog.DSN)
	cfg.Storage.Backend = resolveString(c, "storage-backend", cfg.Storage.Backend)
	cfg.Storage.Path = resolveString(c, "storage-path", cfg.Storage.Path)
	cfg.Storage.Region = resolveString(c, "storage-region", cfg.Storage.Region)
	cfg.Storage.Endpoint = resolveString(c, "storage-endpoint", cfg.Storage.Endpoint)
	cfg.Storage.S3PathStyle = resolveBool(c, "storage-s3-path-style", cfg.Storage.S3PathStyle)
	cfg.State.Path = resolveString(c, "state-path", cfg.State.Path)
	cfg.Metrics.Textfile = resolveString(c, "metrics-textfile", cfg.Metrics.Textfile)

	// Defaults depend on the final feed name and backend.
	cfg.ApplyDefaults()
	validate := cfg.Validate
	if readOnly {
		validate = cfg.ValidateReadOnly
	}
	if err := validate(); err != nil {
		return nil, cli.Exit(err.Error(), exitConfigError)
	}
	return cfg, nil
}

// readConfig loads path, or the default file when path is empty. A missing
// default file yields an empty config.
func readConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	if _, err := os.Stat(defaultConfigPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &config.Config{}, nil
		}
		return nil, fmt.Errorf("cannot stat %s: %w", defaultConfigPath, err)
	}
	return config.Load(defaultConfigPath)
}

// resolveString returns the flag value when set on the command line,
// otherwise the config value, otherwise the flag default.
func resolveString(c *cli.Context, name, configValue string) string {
	if c.IsSet(name) || configValue == "" {
		return c.String(name)
	}
	return configValue
}

func resolveInt(c *cli.Context, name string, configValue int) int {
	if c.IsSet(name) || configValue == 0 {
		return c.Int(name)
	}
	return configValue
}

func resolveBool(c *cli.Context, name string, configValue bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return configValue
}
