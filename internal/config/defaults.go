package config

import "github.com/tonimelisma/salesforce-mcp-go/internal/salesforce"

// Default values for configuration options. These are "layer 0" of the
// override chain.
const (
	defaultLogLevel       = "info"
	defaultLogFormat      = "auto"
	defaultRequestTimeout = "0"
	defaultSessionPersist = true
	defaultSessionWatch   = true
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		Salesforce: SalesforceConfig{
			APIVersion: salesforce.DefaultAPIVersion,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			RequestTimeout: defaultRequestTimeout,
		},
		Session: SessionConfig{
			Persist: defaultSessionPersist,
			Watch:   defaultSessionWatch,
		},
	}
}
