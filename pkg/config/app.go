package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// AppConfig is the process-wide configuration read from the environment.
// Command-line flags override it.
type AppConfig struct {
	LogLevel        string        `env:"PLANFORGE_LOG_LEVEL"        envDefault:"info" validate:"oneof=trace debug info warn error fatal"`
	LogFormat       string        `env:"PLANFORGE_LOG_FORMAT"       envDefault:"console" validate:"oneof=console json"`
	EnginesDir      string        `env:"PLANFORGE_ENGINES_DIR"`
	DBPath          string        `env:"PLANFORGE_DB"`
	PolicyPath      string        `env:"PLANFORGE_POLICY"`
	Tracing         bool          `env:"PLANFORGE_TRACING"`
	TracingEndpoint string        `env:"PLANFORGE_TRACING_ENDPOINT"`
	MetricsAddr     string        `env:"PLANFORGE_METRICS_ADDR"`
	StarlarkTimeout time.Duration `env:"PLANFORGE_STARLARK_TIMEOUT" envDefault:"30s"`
}

// LoadAppConfig reads the configuration from the process environment.
func LoadAppConfig() (*AppConfig, error) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, cfg.Validate()
}

// LoadAppConfigFrom reads the configuration from the given variables only.
func LoadAppConfigFrom(environ map[string]string) (*AppConfig, error) {
	var cfg AppConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, cfg.Validate()
}

// Validate checks the configuration values.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
