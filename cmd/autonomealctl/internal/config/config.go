package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/autonomeal/autonomeal/cmd/autonomealctl/internal/client"
	"github.com/spf13/viper"
)

type contextKey string

const configKey contextKey = "autonomealctl-config"

const (
	// EnvPrefix prefixes every environment override, e.g. AUTONOMEAL_SERVER.
	EnvPrefix = "AUTONOMEAL"
	// DirName is the per-user directory holding config and credentials.
	DirName = ".autonomeal"

	DefaultServerURL = "http://localhost:5000"
	DefaultTimeout   = 30 * time.Second
)

// Settings are the values resolved from flags, environment and the config file, in that
// order of precedence.
type Settings struct {
	ServerURL      string        `mapstructure:"server"`
	Debug          bool          `mapstructure:"debug"`
	NonInteractive bool          `mapstructure:"non_interactive"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Token          string        `mapstructure:"token"`
	// OTLPEndpoint enables trace export when set (OTEL_EXPORTER_OTLP_ENDPOINT).
	OTLPEndpoint string `mapstructure:"otel_endpoint"`
}

// Dir returns ~/.autonomeal.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// NewViper returns a viper instance with defaults and AUTONOMEAL_ environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("server", DefaultServerURL)
	v.SetDefault("debug", false)
	v.SetDefault("non_interactive", false)
	v.SetDefault("timeout", DefaultTimeout)
	v.SetDefault("token", "")
	v.SetDefault("otel_endpoint", "")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	// The OTLP endpoint uses the standard OpenTelemetry variable, not the AUTONOMEAL_ prefix.
	_ = v.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	return v
}

// Load reads the config file (explicit path, or ~/.autonomeal/config.yaml when present) into v
// and resolves the settings. A missing default config file is not an error.
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	} else if dir, err := Dir(); err == nil {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	s.ServerURL = strings.TrimRight(strings.TrimSpace(s.ServerURL), "/")
	if s.ServerURL == "" {
		return nil, errors.New("server URL must not be empty")
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	return &s, nil
}

// GlobalConfig holds shared configuration for all autonomealctl commands.
// This is injected into the cobra command context by the root command's
// PersistentPreRunE hook and consumed by all subcommands.
type GlobalConfig struct {
	Settings
	Logger         *slog.Logger
	ClientProvider *client.Provider
}

// InjectConfig adds config to the cobra command context.
func InjectConfig(ctx context.Context, cfg *GlobalConfig) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from the cobra command context.
// Returns (nil, false) if config is not present.
func FromContext(ctx context.Context) (*GlobalConfig, bool) {
	cfg, ok := ctx.Value(configKey).(*GlobalConfig)
	return cfg, ok
}

// MustFromContext retrieves config from context or panics.
// This should only be used in command RunE functions where we know
// the config has been injected by the root command.
func MustFromContext(ctx context.Context) *GlobalConfig {
	cfg, ok := FromContext(ctx)
	if !ok {
		panic("autonomealctl: config not found in context - this is a bug in autonomealctl")
	}
	return cfg
}
