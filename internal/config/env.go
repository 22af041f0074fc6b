package config

import (
	"log/slog"
	"os"
	"strconv"
)

// Environment variable names for overrides.
const (
	EnvConfig        = "SALESFORCE_MCP_CONFIG"
	EnvClientID      = "SALESFORCE_CLIENT_ID"
	EnvClientSecret  = "SALESFORCE_CLIENT_SECRET" //nolint:gosec // variable name, not a credential
	EnvUsername      = "SALESFORCE_USERNAME"
	EnvPassword      = "SALESFORCE_PASSWORD" //nolint:gosec // variable name, not a credential
	EnvSecurityToken = "SALESFORCE_SECURITY_TOKEN"
	EnvAccessToken   = "SALESFORCE_ACCESS_TOKEN"
	EnvInstanceURL   = "SALESFORCE_INSTANCE_URL"
	EnvSandbox       = "SALESFORCE_SANDBOX"
	EnvLoginURL      = "SALESFORCE_LOGIN_URL"
	EnvAPIVersion    = "SALESFORCE_API_VERSION"
)

// EnvOverrides holds values derived from environment variables. Empty
// strings mean "not set"; Sandbox is nil when unset or unparseable.
type EnvOverrides struct {
	ConfigPath    string
	ClientID      string
	ClientSecret  string
	Username      string
	Password      string
	SecurityToken string
	AccessToken   string
	InstanceURL   string
	Sandbox       *bool
	LoginURL      string
	APIVersion    string
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. An unparseable SALESFORCE_SANDBOX is logged and ignored.
func ReadEnvOverrides(logger *slog.Logger) EnvOverrides {
	env := EnvOverrides{
		ConfigPath:    os.Getenv(EnvConfig),
		ClientID:      os.Getenv(EnvClientID),
		ClientSecret:  os.Getenv(EnvClientSecret),
		Username:      os.Getenv(EnvUsername),
		Password:      os.Getenv(EnvPassword),
		SecurityToken: os.Getenv(EnvSecurityToken),
		AccessToken:   os.Getenv(EnvAccessToken),
		InstanceURL:   os.Getenv(EnvInstanceURL),
		LoginURL:      os.Getenv(EnvLoginURL),
		APIVersion:    os.Getenv(EnvAPIVersion),
	}

	if raw := os.Getenv(EnvSandbox); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			logger.Warn("ignoring unparseable environment variable",
				slog.String("var", EnvSandbox),
				slog.String("value", raw),
			)
		} else {
			env.Sandbox = &v
		}
	}

	logger.Debug("read environment overrides",
		slog.Bool("config_path", env.ConfigPath != ""),
		slog.Bool("client_id", env.ClientID != ""),
		slog.Bool("username", env.Username != ""),
		slog.Bool("access_token", env.AccessToken != ""),
		slog.Bool("instance_url", env.InstanceURL != ""),
	)

	return env
}

// apply copies every set override onto s.
func (env EnvOverrides) apply(s *SalesforceConfig) {
	setIf := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}

	setIf(&s.ClientID, env.ClientID)
	setIf(&s.ClientSecret, env.ClientSecret)
	setIf(&s.Username, env.Username)
	setIf(&s.Password, env.Password)
	setIf(&s.SecurityToken, env.SecurityToken)
	setIf(&s.AccessToken, env.AccessToken)
	setIf(&s.InstanceURL, env.InstanceURL)
	setIf(&s.LoginURL, env.LoginURL)
	setIf(&s.APIVersion, env.APIVersion)

	if env.Sandbox != nil {
		s.Sandbox = *env.Sandbox
	}
}
