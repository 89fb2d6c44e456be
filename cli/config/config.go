package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid config")

// Catalog drivers.
const (
	DriverFixture  = "fixture"
	DriverPostgres = "postgres"
)

// Adapter types.
const (
	AdapterWebhook = "webhook"
	AdapterRedis   = "redis"
)

// Config is the catalogfeed configuration file.
type Config struct {
	Feed    FeedConfig     `yaml:"feed"`
	Catalog CatalogConfig  `yaml:"catalog"`
	Storage StorageConfig  `yaml:"storage"`
	State   StateConfig    `yaml:"state"`
	Run     RunConfig      `yaml:"run"`
	Adapter *AdapterConfig `yaml:"adapter,omitempty"`
	Metrics MetricsConfig  `yaml:"metrics"`
	History HistoryConfig  `yaml:"history"`
}

// FeedConfig describes the exported feed.
type FeedConfig struct {
	Name string `yaml:"name"`
	// File is the canonical artifact name (default: <name>.csv).
	File        string `yaml:"file,omitempty"`
	BatchSize   int    `yaml:"batch_size,omitempty"`
	Concurrency int    `yaml:"concurrency,omitempty"`
	Currency    string `yaml:"currency,omitempty"`
	Condition   string `yaml:"condition,omitempty"`
}

// CatalogConfig selects the item source.
type CatalogConfig struct {
	Driver string `yaml:"driver"`
	// Path is the fixture file for the fixture driver.
	Path           string `yaml:"path,omitempty"`
	DSN            string `yaml:"dsn,omitempty"`
	MaxConns       int    `yaml:"max_conns,omitempty"`
	SimpleProtocol bool   `yaml:"simple_protocol,omitempty"`
}

// StorageConfig selects where staging and the published feed live.
type StorageConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty"`
	S3PathStyle bool   `yaml:"s3_path_style,omitempty"`
}

// StateConfig locates the orchestrator run state.
type StateConfig struct {
	Path string `yaml:"path"`
}

// RunConfig tunes the orchestrator.
type RunConfig struct {
	MaxBatchAttempts int      `yaml:"max_batch_attempts,omitempty"`
	Backoff          Duration `yaml:"backoff,omitempty"`
	NotifyTimeout    Duration `yaml:"notify_timeout,omitempty"`
}

// AdapterConfig configures the publish notification.
type AdapterConfig struct {
	Type      string            `yaml:"type"`
	URL       string            `yaml:"url"`
	Channel   string            `yaml:"channel,omitempty"`
	LatestKey string            `yaml:"latest_key,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	Timeout   Duration          `yaml:"timeout,omitempty"`
	Retries   *int              `yaml:"retries,omitempty"`
}

// MetricsConfig configures metrics export.
type MetricsConfig struct {
	// Textfile is a node_exporter textfile path written after each command.
	Textfile string `yaml:"textfile,omitempty"`
}

// HistoryConfig configures the run history dataset.
type HistoryConfig struct {
	Disabled bool   `yaml:"disabled,omitempty"`
	Dataset  string `yaml:"dataset,omitempty"`
}

// Duration is a time.Duration written as a string in YAML ("10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a string", node.Line)
	}
	if node.Value == "" {
		return nil
	}
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, node.Value, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	if d.Duration == 0 {
		return "", nil
	}
	return d.String(), nil
}

// ApplyDefaults fills unset fields. Values that depend on the feed name are
// derived only once a name is set.
func (c *Config) ApplyDefaults() {
	if c.Catalog.Driver == "" {
		c.Catalog.Driver = DriverFixture
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "fs"
	}
	if c.Storage.Path == "" && c.Storage.Backend == "fs" {
		c.Storage.Path = "out"
	}
	if c.Feed.Name == "" {
		return
	}
	if c.Feed.File == "" {
		c.Feed.File = c.Feed.Name + ".csv"
	}
	if c.State.Path == "" {
		c.State.Path = filepath.Join(".catalogfeed", c.Feed.Name+".state")
	}
}

// Validate reports the first configuration problem. Errors wrap ErrInvalid.
func (c *Config) Validate() error {
	if err := c.ValidateReadOnly(); err != nil {
		return err
	}

	switch c.Catalog.Driver {
	case DriverFixture:
		if c.Catalog.Path == "" {
			return invalid("catalog.path is required for the fixture driver")
		}
	case DriverPostgres:
		if c.Catalog.DSN == "" {
			return invalid("catalog.dsn is required for the postgres driver")
		}
	default:
		return invalid("unknown catalog.driver %q (must be fixture or postgres)", c.Catalog.Driver)
	}

	if c.Run.MaxBatchAttempts < 0 {
		return invalid("run.max_batch_attempts must be >= 0, got %d", c.Run.MaxBatchAttempts)
	}

	if a := c.Adapter; a != nil {
		switch a.Type {
		case AdapterWebhook, AdapterRedis:
		default:
			return invalid("unknown adapter.type %q (must be webhook or redis)", a.Type)
		}
		if a.URL == "" {
			return invalid("adapter.url is required for the %s adapter", a.Type)
		}
		if a.Retries != nil && *a.Retries < 0 {
			return invalid("adapter.retries must be >= 0, got %d", *a.Retries)
		}
	}
	return nil
}

// ValidateReadOnly checks only what reading run state and history needs:
// the feed, storage and state sections.
func (c *Config) ValidateReadOnly() error {
	if c.Feed.Name == "" {
		return invalid("feed.name is required")
	}
	if strings.ContainsAny(c.Feed.Name, `/\`) {
		return invalid("feed.name %q must not contain path separators", c.Feed.Name)
	}
	if c.Feed.BatchSize < 0 {
		return invalid("feed.batch_size must be >= 0, got %d", c.Feed.BatchSize)
	}
	if c.Feed.Concurrency < 0 {
		return invalid("feed.concurrency must be >= 0, got %d", c.Feed.Concurrency)
	}

	switch c.Storage.Backend {
	case "fs", "s3":
		if c.Storage.Path == "" {
			return invalid("storage.path is required for the %s backend", c.Storage.Backend)
		}
	case "memory":
	default:
		return invalid("unknown storage.backend %q (must be fs, s3 or memory)", c.Storage.Backend)
	}

	if c.State.Path == "" {
		return invalid("state.path is required")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
