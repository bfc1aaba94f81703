package config

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vrischmann/envconfig"
)

// Config is the process configuration, read from BLUEGREEN_* variables.
// Command line flags override it.
type Config struct {
	StateDir string `envconfig:"BLUEGREEN_STATE_DIR,default=./state"`
	Catalog  string `envconfig:"BLUEGREEN_CATALOG,optional"`
	LogLevel string `envconfig:"BLUEGREEN_LOG_LEVEL,default=info"`
	Port     int    `envconfig:"BLUEGREEN_PORT,default=8080"`

	StartTimeout  time.Duration `envconfig:"BLUEGREEN_START_TIMEOUT,default=30s"`
	ProbeTimeout  time.Duration `envconfig:"BLUEGREEN_PROBE_TIMEOUT,default=1m"`
	ProbeInterval time.Duration `envconfig:"BLUEGREEN_PROBE_INTERVAL,default=2s"`
	SwitchTimeout time.Duration `envconfig:"BLUEGREEN_SWITCH_TIMEOUT,default=15s"`
	StopTimeout   time.Duration `envconfig:"BLUEGREEN_STOP_TIMEOUT,default=10s"`
	DrainDelay    time.Duration `envconfig:"BLUEGREEN_DRAIN_DELAY,default=0s"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Init(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Level() zerolog.Level {
	return LoggerLevelFromString(c.LogLevel)
}

func LoggerLevelFromString(level string) zerolog.Level {
	level = strings.ToLower(level)
	switch level {
	case "error":
		return zerolog.ErrorLevel
	case "warn":
		return zerolog.WarnLevel
	case "info":
		return zerolog.InfoLevel
	case "debug":
		return zerolog.DebugLevel
	case "trace":
		return zerolog.TraceLevel
	}
	return zerolog.InfoLevel
}
