package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as an annotated TOML-like
// summary to w. Secrets are never printed; only whether they are set. This
// powers the "config show" command.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	if r.FileFound {
		ew.printf("# Effective configuration (file: %s)\n\n", r.ConfigPath)
	} else {
		ew.printf("# Effective configuration (no file at %s, defaults + environment)\n\n", r.ConfigPath)
	}

	renderSalesforceSection(ew, &r.Salesforce)
	renderLoggingSection(ew, &r.Logging)
	renderNetworkSection(ew, &r.Network)
	renderSessionSection(ew, &r.Session)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain
// printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

// redacted reports only whether a secret is present.
func redacted(secret string) string {
	if secret == "" {
		return "(not set)"
	}

	return "(set)"
}

func renderSalesforceSection(ew *errWriter, s *SalesforceConfig) {
	ew.printf("[salesforce]\n")
	ew.printf("  client_id      = %q\n", s.ClientID)
	ew.printf("  client_secret  = %s\n", redacted(s.ClientSecret))
	ew.printf("  username       = %q\n", s.Username)
	ew.printf("  password       = %s\n", redacted(s.Password))
	ew.printf("  security_token = %s\n", redacted(s.SecurityToken))
	ew.printf("  access_token   = %s\n", redacted(s.AccessToken))

	if s.InstanceURL != "" {
		ew.printf("  instance_url   = %q\n", s.InstanceURL)
	}

	ew.printf("  sandbox        = %t\n", s.Sandbox)

	if s.LoginURL != "" {
		ew.printf("  login_url      = %q\n", s.LoginURL)
	}

	ew.printf("  api_version    = %q\n", s.APIVersion)
	ew.printf("\n")
}

func renderLoggingSection(ew *errWriter, l *LoggingConfig) {
	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", l.LogLevel)
	ew.printf("  log_format = %q\n", l.LogFormat)
	ew.printf("\n")
}

func renderNetworkSection(ew *errWriter, n *NetworkConfig) {
	ew.printf("[network]\n")
	ew.printf("  request_timeout = %q\n", n.RequestTimeout)

	if n.UserAgent != "" {
		ew.printf("  user_agent      = %q\n", n.UserAgent)
	}

	ew.printf("\n")
}

func renderSessionSection(ew *errWriter, s *SessionConfig) {
	ew.printf("[session]\n")
	ew.printf("  file    = %q\n", s.SessionPath())
	ew.printf("  persist = %t\n", s.Persist)
	ew.printf("  watch   = %t\n", s.Watch)
}

// Redacted returns a copy of the configuration with every secret replaced
// by "(set)" or "(not set)", for machine-readable display.
func (c Config) Redacted() Config {
	s := &c.Salesforce
	s.ClientSecret = redacted(s.ClientSecret)
	s.Password = redacted(s.Password)
	s.SecurityToken = redacted(s.SecurityToken)
	s.AccessToken = redacted(s.AccessToken)

	return c
}
