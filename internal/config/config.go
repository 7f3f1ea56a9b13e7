package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const (
	DefaultHistoryCapacity  = 20
	DefaultTerminateTimeout = 5 * time.Second
	DefaultPollInterval     = 10 * time.Millisecond
	DefaultLogLevel         = "info"
	DefaultLogMaxSize       = 10
	DefaultLogMaxBackups    = 3
	DefaultLogMaxAge        = 28

	historyFileName = ".myshell_history"
	logFileName     = ".myshell.log"
)

type Config struct {
	HomeDir string        `mapstructure:"home_dir" yaml:"home_dir"`
	History HistoryConfig `mapstructure:"history" yaml:"history"`
	Jobs    JobsConfig    `mapstructure:"jobs" yaml:"jobs"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

type HistoryConfig struct {
	File     string `mapstructure:"file" yaml:"file"`
	Capacity int    `mapstructure:"capacity" yaml:"capacity"`
	Persist  bool   `mapstructure:"persist" yaml:"persist"`
}

type JobsConfig struct {
	// TerminateTimeout bounds how long kill waits for the target to exit.
	TerminateTimeout time.Duration `mapstructure:"terminate_timeout" yaml:"terminate_timeout"`
	PollInterval     time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	PruneOnList      bool          `mapstructure:"prune_on_list" yaml:"prune_on_list"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
}

// Load reads file (if it exists) on top of the defaults and applies
// MYSHELL_* environment overrides.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MYSHELL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", file, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.fillPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() (*Config, error) {
	return Load("")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("home_dir", "")

	v.SetDefault("history.file", "")
	v.SetDefault("history.capacity", DefaultHistoryCapacity)
	v.SetDefault("history.persist", true)

	v.SetDefault("jobs.terminate_timeout", DefaultTerminateTimeout)
	v.SetDefault("jobs.poll_interval", DefaultPollInterval)
	v.SetDefault("jobs.prune_on_list", false)

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", DefaultLogMaxSize)
	v.SetDefault("log.max_backups", DefaultLogMaxBackups)
	v.SetDefault("log.max_age", DefaultLogMaxAge)
}

func (c *Config) fillPaths() error {
	if c.HomeDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("error getting home directory: %w", err)
		}
		c.HomeDir = home
	}

	if c.History.File == "" {
		c.History.File = filepath.Join(c.HomeDir, historyFileName)
	}
	if c.Log.File == "" {
		c.Log.File = filepath.Join(c.HomeDir, logFileName)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.History.Capacity < 1 {
		return fmt.Errorf("history.capacity must be at least 1, got %d", c.History.Capacity)
	}
	if c.Jobs.TerminateTimeout <= 0 {
		return fmt.Errorf("jobs.terminate_timeout must be positive, got %s", c.Jobs.TerminateTimeout)
	}
	if c.Jobs.PollInterval <= 0 {
		return fmt.Errorf("jobs.poll_interval must be positive, got %s", c.Jobs.PollInterval)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log.level %q", c.Log.Level)
	}
	return nil
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	out := struct {
		HomeDir string        `yaml:"home_dir"`
		History HistoryConfig `yaml:"history"`
		Jobs    struct {
			TerminateTimeout string `yaml:"terminate_timeout"`
			PollInterval     string `yaml:"poll_interval"`
			PruneOnList      bool   `yaml:"prune_on_list"`
		} `yaml:"jobs"`
		Log LogConfig `yaml:"log"`
	}{
		HomeDir: c.HomeDir,
		History: c.History,
		Log:     c.Log,
	}
	out.Jobs.TerminateTimeout = c.Jobs.TerminateTimeout.String()
	out.Jobs.PollInterval = c.Jobs.PollInterval.String()
	out.Jobs.PruneOnList = c.Jobs.PruneOnList
	return yaml.Marshal(out)
}
