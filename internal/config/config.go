// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for salesforce-mcp-go. It supports a
// four-layer override chain (defaults -> config file -> environment -> CLI
// flags).
package config

import (
	"time"

	"github.com/tonimelisma/salesforce-mcp-go/internal/salesforce"
)

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Salesforce SalesforceConfig `toml:"salesforce" json:"salesforce"`
	Logging    LoggingConfig    `toml:"logging" json:"logging"`
	Network    NetworkConfig    `toml:"network" json:"network"`
	Session    SessionConfig    `toml:"session" json:"session"`
}

// SalesforceConfig holds the connected-app identity and the credentials for
// one org. Either access_token + instance_url or username + password must be
// present by the time the gateway connects; the file may hold neither when
// the environment supplies them.
type SalesforceConfig struct {
	ClientID      string `toml:"client_id" json:"client_id"`
	ClientSecret  string `toml:"client_secret" json:"client_secret"`
	Username      string `toml:"username" json:"username"`
	Password      string `toml:"password" json:"password"`
	SecurityToken string `toml:"security_token" json:"security_token"`
	AccessToken   string `toml:"access_token" json:"access_token"`
	InstanceURL   string `toml:"instance_url" json:"instance_url"`
	Sandbox       bool   `toml:"sandbox" json:"sandbox"`
	LoginURL      string `toml:"login_url" json:"login_url"`
	APIVersion    string `toml:"api_version" json:"api_version"`
}

// LoggingConfig controls log output. Logs always go to stderr.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level" json:"log_level"`
	LogFormat string `toml:"log_format" json:"log_format"`
}

// NetworkConfig controls HTTP client behavior. A request_timeout of "0"
// leaves requests bounded only by the caller's context.
type NetworkConfig struct {
	RequestTimeout string `toml:"request_timeout" json:"request_timeout"`
	UserAgent      string `toml:"user_agent" json:"user_agent"`
}

// SessionConfig controls on-disk session persistence. An empty file means
// the platform default location.
type SessionConfig struct {
	File    string `toml:"file" json:"file"`
	Persist bool   `toml:"persist" json:"persist"`
	Watch   bool   `toml:"watch" json:"watch"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to the zero value".
type CLIOverrides struct {
	ConfigPath string // --config flag (empty = use default)
	Sandbox    *bool  // --sandbox flag
}

// Resolved is a fully layered and validated configuration plus where it
// came from.
type Resolved struct {
	Config

	// ConfigPath is the file that was consulted; FileFound reports whether
	// it existed.
	ConfigPath string
	FileFound  bool
}

// ServiceConfig converts the [salesforce] section into the core client's
// configuration.
func (c *Config) ServiceConfig() salesforce.ServiceConfig {
	s := c.Salesforce

	return salesforce.ServiceConfig{
		ClientID:      s.ClientID,
		ClientSecret:  s.ClientSecret,
		Username:      s.Username,
		Password:      s.Password,
		SecurityToken: s.SecurityToken,
		AccessToken:   s.AccessToken,
		InstanceURL:   s.InstanceURL,
		Sandbox:       s.Sandbox,
		LoginURL:      s.LoginURL,
		APIVersion:    s.APIVersion,
	}
}

// Timeout returns the parsed request timeout. Validation guarantees the
// value parses, so an error here yields zero.
func (n NetworkConfig) Timeout() time.Duration {
	d, err := time.ParseDuration(n.RequestTimeout)
	if err != nil || d < 0 {
		return 0
	}

	return d
}

// SessionPath returns the session file location: the configured file with
// a leading ~ expanded, or the default in the data directory.
func (s SessionConfig) SessionPath() string {
	if s.File != "" {
		return expandHome(s.File)
	}

	return DefaultSessionPath()
}
