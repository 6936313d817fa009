// Package config resolves the memory-game configuration from flags, the
// environment and an optional config file.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Configuration keys, shared by flags, environment variables and config files.
const (
	KeyBlockSize  = "block-size"
	KeyInterval   = "interval"
	KeyTouchRatio = "touch-ratio"
	KeyStop       = "stop"
	KeyWait       = "wait"
	KeyVerbose    = "verbose"
)

var keys = []string{KeyBlockSize, KeyInterval, KeyTouchRatio, KeyStop, KeyWait, KeyVerbose}

// EnvPrefix prefixes every environment variable, e.g. MEMGAME_BLOCK_SIZE.
const EnvPrefix = "MEMGAME"

// Defaults applied when an option is given nowhere. The stop threshold has no
// default: without one the loop runs until the process is killed.
const (
	DefaultBlockSizeMB = 1
	DefaultIntervalMS  = 0
	DefaultTouchRatio  = 1.0
)

// maxIntervalMS is the longest interval that still fits in a time.Duration.
const maxIntervalMS int64 = math.MaxInt64 / int64(time.Millisecond)

// Config is resolved once at startup and never changed afterwards.
type Config struct {
	BlockSizeMB int     `mapstructure:"block-size"`
	IntervalMS  int     `mapstructure:"interval"`
	TouchRatio  float64 `mapstructure:"touch-ratio"`
	StopMB      *int    `mapstructure:"stop"` // nil when unset
	Wait        bool    `mapstructure:"wait"`
	Verbose     bool    `mapstructure:"verbose"`
}

// AddFlags registers the configuration flags on fs.
func AddFlags(fs *pflag.FlagSet) {
	fs.IntP(KeyBlockSize, "m", DefaultBlockSizeMB, "Size of individual memory blocks to allocate in MBs")
	fs.IntP(KeyInterval, "e", DefaultIntervalMS, "Time between allocations in ms")
	fs.Float64P(KeyTouchRatio, "f", DefaultTouchRatio, "Touch fill ratio (between 0 and 1), how much of the committed memory gets touched per each memory block allocated")
	fs.IntP(KeyStop, "x", 0, "Stop allocating once memory committed reaches this value in MBs. Does not stop if not specified")
	fs.BoolP(KeyWait, "w", false, "Break execution before allocation starts and wait for a key to be pressed. Useful to see initial overhead of the process")
	fs.BoolP(KeyVerbose, "v", false, "Verbose mode")
}

// Load resolves the configuration. Flags win over MEMGAME_* environment
// variables, which win over configFile, which wins over defaults. The result
// is validated before it is returned.
func Load(flags *pflag.FlagSet, configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault(KeyBlockSize, DefaultBlockSizeMB)
	v.SetDefault(KeyInterval, DefaultIntervalMS)
	v.SetDefault(KeyTouchRatio, DefaultTouchRatio)
	v.SetDefault(KeyWait, false)
	v.SetDefault(KeyVerbose, false)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for _, key := range keys {
			f := flags.Lookup(key)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", key, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	// An unchanged --stop flag still decodes to its zero default.
	if !v.IsSet(KeyStop) {
		cfg.StopMB = nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every out-of-range option at once.
func (c *Config) Validate() error {
	var errs field.ErrorList

	if c.BlockSizeMB <= 0 {
		errs = append(errs, field.Invalid(field.NewPath(KeyBlockSize), c.BlockSizeMB, "must be greater than 0"))
	}
	if c.IntervalMS < 0 {
		errs = append(errs, field.Invalid(field.NewPath(KeyInterval), c.IntervalMS, "must not be negative"))
	} else if int64(c.IntervalMS) > maxIntervalMS {
		errs = append(errs, field.Invalid(field.NewPath(KeyInterval), c.IntervalMS, fmt.Sprintf("must not exceed %d", maxIntervalMS)))
	}
	if math.IsNaN(c.TouchRatio) || c.TouchRatio < 0 || c.TouchRatio > 1 {
		errs = append(errs, field.Invalid(field.NewPath(KeyTouchRatio), c.TouchRatio, "ratio must be between 0 and 1"))
	}
	if c.StopMB != nil && *c.StopMB <= 0 {
		errs = append(errs, field.Invalid(field.NewPath(KeyStop), *c.StopMB, "must be greater than 0 when set"))
	}

	return errs.ToAggregate()
}

// Interval is the pause between two allocations.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// StopSet reports whether a stop threshold was given.
func (c *Config) StopSet() bool {
	return c.StopMB != nil
}

// Stop returns the stop threshold in MB, or 0 when none was given.
func (c *Config) Stop() int {
	if c.StopMB == nil {
		return 0
	}
	return *c.StopMB
}

type dump struct {
	BlockSize  int     `yaml:"block_size"`
	Interval   int     `yaml:"interval"`
	TouchRatio float64 `yaml:"touch_ratio"`
	Stop       *int    `yaml:"stop"`
	Wait       bool    `yaml:"wait"`
	Verbose    bool    `yaml:"verbose"`
}

// YAML renders the configuration for humans. An unset stop is shown as null.
func (c *Config) YAML() (string, error) {
	d := dump{
		BlockSize:  c.BlockSizeMB,
		Interval:   c.IntervalMS,
		TouchRatio: c.TouchRatio,
		Wait:       c.Wait,
		Verbose:    c.Verbose,
		Stop:       c.StopMB,
	}

	out, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to render configuration: %w", err)
	}
	return string(out), nil
}
