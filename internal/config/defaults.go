package config

// NewDefaultConfig creates a configuration with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name: "DCIM-MCP",
			Port: "4243",
		},
		API: APIConfig{
			BaseURL: "http://localhost:8000",
			Timeout: "30s",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "dcim-mcp",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Outputs:    []string{"console"},
			FilePath:   "logs/dcim-mcp.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}
