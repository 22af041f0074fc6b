package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/salesforce-mcp-go/internal/config"
)

// salesforceEnv lists every variable config.ReadEnvOverrides consults.
var salesforceEnv = []string{
	config.EnvConfig,
	config.EnvClientID,
	config.EnvClientSecret,
	config.EnvUsername,
	config.EnvPassword,
	config.EnvSecurityToken,
	config.EnvAccessToken,
	config.EnvInstanceURL,
	config.EnvSandbox,
	config.EnvLoginURL,
	config.EnvAPIVersion,
}

// clearEnv blanks the SALESFORCE_* variables so the developer's shell cannot
// leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()

	for _, name := range salesforceEnv {
		t.Setenv(name, "")
	}
}

// runCLI executes the root command with args and returns what it wrote.
func runCLI(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	var out, errOut bytes.Buffer

	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	err = cmd.ExecuteContext(context.Background())

	return out.String(), errOut.String(), err
}

// writeConfig writes a config file into a temp dir. The session file lives
// beside it.
func writeConfig(t *testing.T, content string) (cfgPath, sessionPath string) {
	t.Helper()

	dir := t.TempDir()
	cfgPath = filepath.Join(dir, "config.toml")
	sessionPath = filepath.Join(dir, "session.json")

	content += "\n[session]\nfile = " + strconv.Quote(sessionPath) + "\nwatch = false\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	return cfgPath, sessionPath
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func requestBase(r *http.Request) string {
	return "http://" + r.Host
}

func tokenJSON(t *testing.T, accessToken, instanceURL, refreshToken string) string {
	t.Helper()

	body := map[string]string{
		"access_token": accessToken,
		"instance_url": instanceURL,
		"token_type":   "Bearer",
		"issued_at":    "1700000000000",
	}

	if refreshToken != "" {
		body["refresh_token"] = refreshToken
	}

	data, err := json.Marshal(body)
	require.NoError(t, err)

	return string(data)
}

func TestBuildLogger_Levels(t *testing.T) {
	ctx := context.Background()
	resolved := &config.Resolved{Config: *config.DefaultConfig()}

	tests := []struct {
		name    string
		cfg     *config.Resolved
		level   string
		flags   CLIFlags
		enabled slog.Level
		blocked slog.Level
	}{
		{"bootstrap default is warn", nil, "", CLIFlags{}, slog.LevelWarn, slog.LevelInfo},
		{"config info", resolved, "info", CLIFlags{}, slog.LevelInfo, slog.LevelDebug},
		{"config error", resolved, "error", CLIFlags{}, slog.LevelError, slog.LevelWarn},
		{"verbose", resolved, "error", CLIFlags{Verbose: true}, slog.LevelInfo, slog.LevelDebug},
		{"debug beats quiet", resolved, "info", CLIFlags{Debug: true, Quiet: true}, slog.LevelDebug, slog.LevelDebug - 1},
		{"quiet", resolved, "debug", CLIFlags{Quiet: true}, slog.LevelError, slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			if cfg != nil {
				c := *cfg
				c.Logging.LogLevel = tt.level
				cfg = &c
			}

			logger := buildLogger(cfg, tt.flags, &bytes.Buffer{})
			assert.True(t, logger.Enabled(ctx, tt.enabled))
			assert.False(t, logger.Enabled(ctx, tt.blocked))
		})
	}
}

func TestBuildLogger_Format(t *testing.T) {
	resolved := &config.Resolved{Config: *config.DefaultConfig()}
	resolved.Logging.LogFormat = "json"

	var buf bytes.Buffer
	buildLogger(resolved, CLIFlags{}, &buf).Info("hello", slog.String("k", "v"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "v", line["k"])

	assert.False(t, useJSONLogs("text", &buf))
	assert.False(t, useJSONLogs("auto", &buf), "non-file writers get text")
}

func TestNewHTTPClient_AppliesRequestTimeout(t *testing.T) {
	resolved := &config.Resolved{Config: *config.DefaultConfig()}

	resolved.Network.RequestTimeout = "45s"
	hc := newHTTPClient(resolved)
	require.NotNil(t, hc)
	assert.NotSame(t, http.DefaultClient, hc)
	assert.Equal(t, 45*time.Second, hc.Timeout)

	resolved.Network.RequestTimeout = "0"
	assert.Equal(t, time.Duration(0), newHTTPClient(resolved).Timeout)
}

func TestMustCLIContext_PanicsWhenMissing(t *testing.T) {
	assert.Panics(t, func() { mustCLIContext(context.Background()) })

	cc := &CLIContext{}
	assert.Same(t, cc, mustCLIContext(withCLIContext(context.Background(), cc)))
}

func TestRootCmd_UnknownConfigKeyFails(t *testing.T) {
	clearEnv(t)

	cfgPath, _ := writeConfig(t, "[salesforce]\nclient_idd = \"x\"\n")

	_, _, err := runCLI(t, "--config", cfgPath, "config", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
	assert.Contains(t, err.Error(), "client_id")
}

func TestConfigShow_JSONRedactsSecrets(t *testing.T) {
	clearEnv(t)

	cfgPath, _ := writeConfig(t, `
[salesforce]
client_id = "id1"
client_secret = "sec1"
password = "hunter2"
`)

	stdout, _, err := runCLI(t, "--config", cfgPath, "--json", "config", "show")
	require.NoError(t, err)

	var out configShowOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, cfgPath, out.ConfigPath)
	assert.True(t, out.FileFound)
	assert.Equal(t, "id1", out.Config.Salesforce.ClientID)
	assert.Equal(t, "(set)", out.Config.Salesforce.ClientSecret)
	assert.NotContains(t, stdout, "hunter2")
}

func TestConfigShow_SandboxFlag(t *testing.T) {
	clearEnv(t)

	cfgPath, _ := writeConfig(t, "[salesforce]\nclient_id = \"id1\"\n")

	stdout, _, err := runCLI(t, "--config", cfgPath, "--json", "--sandbox", "config", "show")
	require.NoError(t, err)

	var out configShowOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.True(t, out.Config.Salesforce.Sandbox)
}

func TestConfigInit(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	_, stderr, err := runCLI(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Wrote "+path)

	_, err = os.Stat(path)
	require.NoError(t, err)

	// The template must load cleanly.
	_, _, err = runCLI(t, "--config", path, "config", "show")
	require.NoError(t, err)

	_, _, err = runCLI(t, "--config", path, "config", "init")
	require.ErrorIs(t, err, config.ErrConfigExists)
}
