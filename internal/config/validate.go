package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"time"
)

// apiVersionPattern matches "v59.0" and "59.0".
var apiVersionPattern = regexp.MustCompile(`^v?\d+\.\d+$`)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass. Credential
// completeness is checked at connect time, not here: the file legitimately
// omits what the environment supplies.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateSalesforce(&cfg.Salesforce)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

func validateSalesforce(s *SalesforceConfig) []error {
	var errs []error

	if s.APIVersion != "" && !apiVersionPattern.MatchString(s.APIVersion) {
		errs = append(errs, fmt.Errorf("api_version: must look like v59.0, got %q", s.APIVersion))
	}

	errs = append(errs, validateServiceURL("login_url", s.LoginURL)...)
	errs = append(errs, validateServiceURL("instance_url", s.InstanceURL)...)

	return errs
}

// validateServiceURL requires an absolute https URL. Plain http is accepted
// only for loopback hosts.
func validateServiceURL(field, raw string) []error {
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid URL %q: %w", field, raw, err)}
	}

	if u.Host == "" {
		return []error{fmt.Errorf("%s: must be an absolute URL, got %q", field, raw)}
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if isLoopback(u.Hostname()) {
			return nil
		}
	}

	return []error{fmt.Errorf("%s: must use https, got %q", field, raw)}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}

	ip := net.ParseIP(host)

	return ip != nil && ip.IsLoopback()
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	return validateDurationNonNeg("request_timeout", n.RequestTimeout)
}

func validateDurationNonNeg(field, value string) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < 0 {
		return []error{fmt.Errorf("%s: must be >= 0, got %s", field, d)}
	}

	return nil
}
