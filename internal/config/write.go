package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// The config file may hold a client secret and password, so it is private
// to the owner.
const (
	configFilePermissions = 0o600
	configDirPermissions  = 0o700
)

// ErrConfigExists is returned by WriteTemplate when the target file exists.
var ErrConfigExists = errors.New("config: file already exists")

// configTemplate is the starter config written by "config init". Every
// setting is present as a commented-out default so users can discover each
// option without reading docs.
const configTemplate = `# salesforce-mcp-go configuration
#
# Environment variables (SALESFORCE_CLIENT_ID, SALESFORCE_USERNAME, ...)
# override values in this file.

[salesforce]
# Connected app identity (required)
# client_id = ""
# client_secret = ""

# Either a username + password (the security token is appended for you)...
# username = ""
# password = ""
# security_token = ""

# ...or a pre-obtained access token and the instance it belongs to.
# access_token = ""
# instance_url = "https://yourorg.my.salesforce.com"

# Log in at test.salesforce.com instead of login.salesforce.com
# sandbox = false

# Custom identity host (My Domain); overrides sandbox
# login_url = ""

# api_version = "v59.0"

[logging]
# debug, info, warn, error
# log_level = "info"

# auto (text on a terminal, json otherwise), text, json
# log_format = "auto"

[network]
# Per-request timeout; "0" disables it
# request_timeout = "0"
# user_agent = ""

[session]
# Where login stores the session (default: platform data directory)
# file = ""

# Save renewed sessions to the file
# persist = true

# Adopt sessions written by a concurrent login while serving
# watch = true
`

// WriteTemplate creates a commented starter config at path, creating parent
// directories as needed. It refuses to overwrite an existing file.
func WriteTemplate(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), configDirPermissions); err != nil {
		return fmt.Errorf("config: creating directory for %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, configFilePermissions)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}

		return fmt.Errorf("config: creating %s: %w", path, err)
	}

	if _, err := f.WriteString(configTemplate); err != nil {
		f.Close()

		return fmt.Errorf("config: writing %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("config: closing %s: %w", path, err)
	}

	return nil
}
