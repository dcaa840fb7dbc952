package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config represents the dcim-mcp configuration.
type Config struct {
	Server    ServerConfig    `toml:"server" yaml:"server"`
	API       APIConfig       `toml:"api" yaml:"api"`
	Auth      AuthConfig      `toml:"auth" yaml:"auth"`
	Telemetry TelemetryConfig `toml:"telemetry" yaml:"telemetry"`
	Logging   LoggingConfig   `toml:"logging" yaml:"logging"`
}

// ServerConfig contains MCP server settings.
type ServerConfig struct {
	Name string `toml:"name" yaml:"name"`
	Port string `toml:"port" yaml:"port"` // only used by the streamable HTTP transport
}

// APIConfig contains settings for the upstream DCIM REST API.
type APIConfig struct {
	BaseURL   string  `toml:"base_url" yaml:"base_url"`
	Timeout   string  `toml:"timeout" yaml:"timeout"`
	RateLimit float64 `toml:"rate_limit" yaml:"rate_limit"` // requests per second, 0 disables pacing
}

// GetTimeout parses and returns the per-request timeout.
func (c *APIConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// AuthConfig contains bearer token settings.
type AuthConfig struct {
	// TokenFile persists the access token between restarts. Empty keeps it in memory only.
	TokenFile string `toml:"token_file" yaml:"token_file"`
}

// TelemetryConfig contains OpenTelemetry export settings.
type TelemetryConfig struct {
	OTLPEndpoint string `toml:"otlp_endpoint" yaml:"otlp_endpoint"`
	ServiceName  string `toml:"service_name" yaml:"service_name"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level      string   `toml:"level" yaml:"level"`
	Outputs    []string `toml:"outputs" yaml:"outputs"`
	FilePath   string   `toml:"file_path" yaml:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups" yaml:"max_backups"`
}

// LoadFromFile loads configuration with priority: defaults -> file -> env.
// A missing file is not an error; the defaults are used instead.
func LoadFromFile(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := unmarshal(path, data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// unmarshal decodes YAML for .yaml/.yml files and TOML for everything else.
func unmarshal(path string, data []byte, config *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	default:
		return toml.Unmarshal(data, config)
	}
}

// applyEnvOverrides applies DCIM_* environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if url := os.Getenv("DCIM_API_URL"); url != "" {
		config.API.BaseURL = url
	}
	if timeout := os.Getenv("DCIM_API_TIMEOUT"); timeout != "" {
		config.API.Timeout = timeout
	}
	if rl := os.Getenv("DCIM_API_RATE_LIMIT"); rl != "" {
		if v, err := strconv.ParseFloat(rl, 64); err == nil {
			config.API.RateLimit = v
		}
	}
	if tf := os.Getenv("DCIM_TOKEN_FILE"); tf != "" {
		config.Auth.TokenFile = tf
	}
	if port := os.Getenv("DCIM_MCP_PORT"); port != "" {
		config.Server.Port = port
	}
	if level := os.Getenv("DCIM_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if ep := os.Getenv("DCIM_OTLP_ENDPOINT"); ep != "" {
		config.Telemetry.OTLPEndpoint = ep
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config.
func ApplyFlagOverrides(config *Config, port, apiURL string) {
	if port != "" {
		config.Server.Port = port
	}
	if apiURL != "" {
		config.API.BaseURL = apiURL
	}
}
