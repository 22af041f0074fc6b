package salesforce

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassthrough_BasePaths(t *testing.T) {
	tests := []struct {
		name     string
		call     func(c *Client) error
		wantPath string
	}{
		{
			name: "tooling",
			call: func(c *Client) error {
				_, err := c.ToolingExecute(context.Background(), Call{Method: "get", Path: "sobjects/ApexClass"})
				return err
			},
			wantPath: dataBase + "/tooling/sobjects/ApexClass",
		},
		{
			name: "apex rest",
			call: func(c *Client) error {
				_, err := c.CustomCodeExecute(context.Background(), Call{Method: "GET", Path: "/Orders/v1"})
				return err
			},
			wantPath: "/services/apexrest/Orders/v1",
		},
		{
			name: "generic relative",
			call: func(c *Client) error {
				_, err := c.GenericCall(context.Background(), Call{Method: "GET", Path: "limits"})
				return err
			},
			wantPath: dataBase + "/limits",
		},
		{
			name: "generic full services path",
			call: func(c *Client) error {
				_, err := c.GenericCall(context.Background(), Call{Method: "GET", Path: "/services/data/v60.0/limits"})
				return err
			},
			wantPath: "/services/data/v60.0/limits",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, tt.wantPath, r.URL.Path)
				writeJSON(w, http.StatusOK, `{}`)
			}))
			defer srv.Close()

			c := newTestClient(t, testConfig(srv.URL))
			seedSession(c, srv.URL, "tok", "")

			require.NoError(t, tt.call(c))
		})
	}
}

func TestPassthrough_BodyQueryAndNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "1", r.URL.Query().Get("dryRun"))

		data, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"orderId":"o-1"}`, string(data))

		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig(srv.URL))
	seedSession(c, srv.URL, "tok", "")

	raw, err := c.CustomCodeExecute(context.Background(), Call{
		Method: http.MethodPost,
		Path:   "Orders/cancel",
		Body:   map[string]string{"orderId": "o-1"},
		Query:  url.Values{"dryRun": {"1"}},
	})
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestPassthrough_RenewsOn401(t *testing.T) {
	var toolingCalls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == tokenEndpoint {
			writeJSON(w, http.StatusOK, tokenJSON(t, "fresh", requestBase(r), ""))
			return
		}

		toolingCalls.Add(1)

		if r.Header.Get("Authorization") != "Bearer fresh" {
			writeJSON(w, http.StatusUnauthorized, invalidSessionBody)
			return
		}

		writeJSON(w, http.StatusOK, `{"size":0,"records":[]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig(srv.URL))
	seedSession(c, srv.URL, "stale", "R1")

	raw, err := c.ToolingExecute(context.Background(), Call{
		Method: http.MethodGet,
		Path:   "query",
		Query:  url.Values{"q": {"SELECT Id FROM ApexClass"}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"size":0,"records":[]}`, string(raw))
	assert.Equal(t, int32(2), toolingCalls.Load())
}

func TestPassthrough_RejectsEmptyMethodOrPath(t *testing.T) {
	c := newTestClient(t, testConfig(""))
	seedSession(c, "https://na1.example.com", "tok", "")

	_, err := c.GenericCall(context.Background(), Call{Path: "limits"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = c.ToolingExecute(context.Background(), Call{Method: "GET"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
