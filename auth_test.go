package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/salesforce-mcp-go/internal/sessionfile"
)

// loginServer fakes the identity endpoint and a data API that accepts only
// the token it issued.
func loginServer(t *testing.T, tokenCalls *atomic.Int32) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/services/oauth2/token" {
			tokenCalls.Add(1)
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "password", r.PostForm.Get("grant_type"))
			assert.Equal(t, "pwTOKEN", r.PostForm.Get("password"))
			writeJSON(w, http.StatusOK, tokenJSON(t, "A1", requestBase(r), "R1"))

			return
		}

		if r.Header.Get("Authorization") != "Bearer A1" {
			writeJSON(w, http.StatusUnauthorized, `[{"message":"Session expired or invalid","errorCode":"INVALID_SESSION_ID"}]`)
			return
		}

		writeJSON(w, http.StatusOK, `{"sobjects":[]}`)
	}))
	t.Cleanup(srv.Close)

	return srv
}

func loginConfig(loginURL string) string {
	return `
[salesforce]
client_id = "id1"
client_secret = "sec1"
username = "alice@example.com"
password = "pw"
security_token = "TOKEN"
login_url = "` + loginURL + `"
`
}

func TestLoginStatusLogout(t *testing.T) {
	clearEnv(t)

	var tokenCalls atomic.Int32

	srv := loginServer(t, &tokenCalls)
	cfgPath, sessionPath := writeConfig(t, loginConfig(srv.URL))

	_, stderr, err := runCLI(t, "--config", cfgPath, "login")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Logged in to "+srv.URL)
	assert.Equal(t, int32(1), tokenCalls.Load())

	saved, err := sessionfile.Load(sessionPath)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "A1", saved.Session.AccessToken)
	assert.Equal(t, "R1", saved.Session.RefreshToken)
	assert.Equal(t, "production", saved.Meta[sessionfile.MetaEnvironment])
	assert.Equal(t, "alice@example.com", saved.Meta[sessionfile.MetaUsername])

	stdout, _, err := runCLI(t, "--config", cfgPath, "--json", "status", "--check")
	require.NoError(t, err)

	var status statusOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &status))
	assert.True(t, status.LoggedIn)
	assert.Equal(t, srv.URL, status.InstanceURL)
	assert.True(t, status.RefreshToken)
	assert.Equal(t, "ok", status.Check)
	assert.Equal(t, int32(1), tokenCalls.Load(), "status never exchanges credentials")

	_, stderr, err = runCLI(t, "--config", cfgPath, "logout")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Logged out")

	stdout, _, err = runCLI(t, "--config", cfgPath, "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Not logged in")

	_, stderr, err = runCLI(t, "--config", cfgPath, "logout")
	require.NoError(t, err)
	assert.Contains(t, stderr, "No saved session")
}

func TestStatus_CheckReportsExpiredToken(t *testing.T) {
	clearEnv(t)

	var tokenCalls atomic.Int32

	srv := loginServer(t, &tokenCalls)
	cfgPath, sessionPath := writeConfig(t, loginConfig(srv.URL))

	require.NoError(t, sessionfile.Save(sessionPath, sessionFor(srv.URL, "revoked", ""), nil))

	stdout, _, err := runCLI(t, "--config", cfgPath, "status", "--check")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Check:         expired")
	assert.Contains(t, stdout, "Refresh token: no")
	assert.Equal(t, int32(0), tokenCalls.Load())
}

func TestLogin_RequiresPasswordCredentials(t *testing.T) {
	clearEnv(t)

	cfgPath, sessionPath := writeConfig(t, "[salesforce]\nclient_id = \"id1\"\nclient_secret = \"sec1\"\n")

	_, _, err := runCLI(t, "--config", cfgPath, "login")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login needs")

	f, err := sessionfile.Load(sessionPath)
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestLogin_RejectedCredentials(t *testing.T) {
	clearEnv(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"error":"invalid_grant","error_description":"authentication failure"}`)
	}))
	defer srv.Close()

	cfgPath, sessionPath := writeConfig(t, loginConfig(srv.URL))

	_, _, err := runCLI(t, "--config", cfgPath, "login")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authentication failure")

	f, err := sessionfile.Load(sessionPath)
	require.NoError(t, err)
	assert.Nil(t, f)
}
