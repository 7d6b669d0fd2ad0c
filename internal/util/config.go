package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Configuration is everything the host needs to run a program. Build
// metadata is filled in by main; the rest comes from defaults, an optional
// config file, CONDUIT_* environment variables and flags, in that order.
type Configuration struct {
	Version   string `yaml:"-" toml:"-"`
	BuildDate string `yaml:"-" toml:"-"`
	Commit    string `yaml:"-" toml:"-"`

	LogLevel string `yaml:"log_level" toml:"log_level"`
	LogFile  string `yaml:"log_file" toml:"log_file"`

	MaxRestarts  uint32   `yaml:"max_restarts" toml:"max_restarts"`
	Timeout      Duration `yaml:"timeout" toml:"timeout"`
	RetryBackoff Duration `yaml:"retry_backoff" toml:"retry_backoff"`
	MaxDepth     int      `yaml:"max_depth" toml:"max_depth"`

	Trace       bool   `yaml:"trace" toml:"trace"`
	TraceDriver string `yaml:"trace_driver" toml:"trace_driver"`
	TraceDB     string `yaml:"trace_db" toml:"trace_db"`

	DebugJsonAST bool `yaml:"debug_ast" toml:"debug_ast"`
}

// Duration reads "250ms" style strings from config files.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

func DefaultConfiguration() Configuration {
	return Configuration{
		LogLevel:    "none",
		MaxRestarts: 3,
		TraceDriver: "sqlite3",
	}
}

// Load reads path over the defaults and applies environment overrides. The
// format follows the extension: .yaml, .yml or .toml. An empty path skips
// the file.
func Load(path string) (Configuration, error) {
	cfg := DefaultConfiguration()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, &cfg)
		case ".toml":
			_, err = toml.Decode(string(data), &cfg)
		default:
			err = fmt.Errorf("unsupported config format %q", ext)
		}
		if err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Configuration) applyEnvOverrides(lookup func(string) (string, bool)) error {
	if v, ok := lookup("CONDUIT_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := lookup("CONDUIT_LOG_FILE"); ok {
		c.LogFile = v
	}
	if v, ok := lookup("CONDUIT_MAX_RESTARTS"); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("CONDUIT_MAX_RESTARTS: %w", err)
		}
		c.MaxRestarts = uint32(n)
	}
	if v, ok := lookup("CONDUIT_TIMEOUT"); ok {
		if err := c.Timeout.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("CONDUIT_TIMEOUT: %w", err)
		}
	}
	if v, ok := lookup("CONDUIT_TRACE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CONDUIT_TRACE: %w", err)
		}
		c.Trace = b
	}
	if v, ok := lookup("CONDUIT_TRACE_DRIVER"); ok {
		c.TraceDriver = v
	}
	if v, ok := lookup("CONDUIT_TRACE_DB"); ok {
		c.TraceDB = v
	}
	return nil
}
