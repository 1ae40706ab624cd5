package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/dalnet/opbot/internal/storage"
	"github.com/dalnet/opbot/internal/timer"
)

// Config holds all bot configuration
type Config struct {
	Nick         string `yaml:"nick"`
	NickPass     string `yaml:"nick_pass" env:"OPBOT_NICK_PASS"`
	Alternate    string `yaml:"alternate"`
	Server       string `yaml:"server"`
	Port         int    `yaml:"port"`
	UseTLS       bool   `yaml:"use_tls"`
	ServerPass   string `yaml:"server_pass" env:"OPBOT_SERVER_PASS"`
	SASLLogin    string `yaml:"sasl_login"`
	SASLPassword string `yaml:"sasl_password" env:"OPBOT_SASL_PASSWORD"`
	IRCName      string `yaml:"irc_name"`
	Username     string `yaml:"username"`
	DataDir      string `yaml:"data_dir"`

	// Channels are joined on connect; commands said there must start with Prefix.
	Channels []string `yaml:"channels"`
	Prefix   string   `yaml:"prefix"`

	// Admins are services accounts with rights everywhere.
	Admins []string `yaml:"admins"`
	// Operators maps a channel to the accounts allowed to moderate it.
	Operators map[string][]string `yaml:"operators"`
	// ChanServ is the services bot asked for channel modes.
	ChanServ string `yaml:"chanserv"`

	WhoisTimeout time.Duration `yaml:"whois_timeout"`
	NotifyRate   float64       `yaml:"notify_rate"`

	Storage storage.Config `yaml:"storage"`
	Timers  TimersConfig   `yaml:"timers"`
	Logging LoggingConfig  `yaml:"logging"`
}

// TimersConfig tunes the action scheduler
type TimersConfig struct {
	RetryInterval time.Duration `yaml:"retry_interval"`
	StartupGrace  time.Duration `yaml:"startup_grace"`
	RetryLimit    int           `yaml:"retry_limit"`
}

// LoggingConfig selects log verbosity
type LoggingConfig struct {
	Level string `yaml:"level" env:"OPBOT_LOG_LEVEL"`
}

// Scheduler converts the timers section into scheduler settings
func (t TimersConfig) Scheduler() timer.Config {
	return timer.Config{
		RetryInterval: t.RetryInterval,
		StartupGrace:  t.StartupGrace,
		RetryLimit:    t.RetryLimit,
	}
}

// Load reads and parses a YAML configuration file, then applies environment overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration and fills in defaults
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	def := timer.DefaultConfig()
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Port == 0 {
		c.Port = 6667
		if c.UseTLS {
			c.Port = 6697
		}
	}
	if c.Prefix == "" {
		c.Prefix = "!"
	}
	if c.Username == "" {
		c.Username = c.Nick
	}
	if c.IRCName == "" {
		c.IRCName = c.Nick
	}
	if c.ChanServ == "" {
		c.ChanServ = "ChanServ"
	}
	if c.WhoisTimeout <= 0 {
		c.WhoisTimeout = 10 * time.Second
	}
	if c.NotifyRate <= 0 {
		c.NotifyRate = 2
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "file"
	}
	if c.Timers.RetryInterval <= 0 {
		c.Timers.RetryInterval = def.RetryInterval
	}
	if c.Timers.StartupGrace <= 0 {
		c.Timers.StartupGrace = def.StartupGrace
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Nick) == "" {
		return fmt.Errorf("config: nick is required")
	}
	if strings.TrimSpace(c.Server) == "" {
		return fmt.Errorf("config: server is required")
	}
	for _, ch := range c.Channels {
		if !strings.HasPrefix(ch, "#") {
			return fmt.Errorf("config: channel %q must start with #", ch)
		}
	}
	if c.Timers.RetryLimit < 0 {
		return fmt.Errorf("config: timers.retry_limit must not be negative")
	}
	return nil
}
