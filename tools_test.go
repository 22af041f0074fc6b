package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/salesforce-mcp-go/internal/salesforce"
)

const dataBase = "/services/data/v59.0"

// newTestGateway returns a gateway whose client is already authenticated
// against srv.
func newTestGateway(t *testing.T, srv *httptest.Server) *gateway {
	t.Helper()

	svc := salesforce.ServiceConfig{ClientID: "id1", ClientSecret: "sec1", APIVersion: "v59.0"}
	client := salesforce.NewClient(svc, srv.Client(), nil, "test-agent")

	require.True(t, client.AdoptSession(sessionFor(srv.URL, "tok", "")))

	return &gateway{client: client, logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))}
}

// callTool invokes the named tool's handler as the MCP server would.
func callTool(t *testing.T, g *gateway, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()

	for _, spec := range g.tools() {
		if spec.tool.Name != name {
			continue
		}

		var req mcp.CallToolRequest
		req.Params.Name = name
		req.Params.Arguments = args

		result, err := g.handler(spec)(context.Background(), req)
		require.NoError(t, err, "handlers report failures in the result")
		require.NotNil(t, result)

		return result
	}

	t.Fatalf("no tool named %s", name)

	return nil
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()

	require.Len(t, result.Content, 1)

	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)

	return text.Text
}

func TestTools_AllRegistered(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	g := newTestGateway(t, srv)

	var names []string
	for _, spec := range g.tools() {
		names = append(names, spec.tool.Name)
	}

	assert.ElementsMatch(t, []string{
		"salesforce_query", "salesforce_search", "salesforce_describe_object",
		"salesforce_list_objects", "salesforce_get_record", "salesforce_create_record",
		"salesforce_update_record", "salesforce_delete_record", "salesforce_tooling_execute",
		"salesforce_apex_execute", "salesforce_rest_call", "salesforce_clear_metadata_cache",
	}, names)

	assert.NotNil(t, newMCPServer(g))
}

func TestTools_RequireAuthentication(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := salesforce.NewClient(salesforce.ServiceConfig{}, srv.Client(), nil, "")
	g := &gateway{client: client, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	result := callTool(t, g, "salesforce_query", map[string]any{"query": "SELECT Id FROM Account"})
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "not authenticated")

	// Clearing the cache is local and allowed without a session.
	result = callTool(t, g, "salesforce_clear_metadata_cache", nil)
	assert.False(t, result.IsError)
	assert.JSONEq(t, `{"cleared":0}`, resultText(t, result))

	assert.Equal(t, int32(0), calls.Load())
}

func TestTools_QueryFollowsPages(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		switch r.URL.Path {
		case dataBase + "/queryAll":
			writeJSON(w, http.StatusOK, `{"totalSize":2,"done":false,`+
				`"nextRecordsUrl":"/services/data/v59.0/query/01g-2000","records":[{"Id":"001A"}]}`)
		case dataBase + "/query/01g-2000":
			writeJSON(w, http.StatusOK, `{"totalSize":2,"done":true,"records":[{"Id":"001B"}]}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	g := newTestGateway(t, srv)

	result := callTool(t, g, "salesforce_query", map[string]any{
		"query":           "SELECT Id FROM Account",
		"include_deleted": true,
	})
	require.False(t, result.IsError, resultText(t, result))

	var out salesforce.QueryResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	assert.Equal(t, 2, out.TotalSize)
	require.Len(t, out.Records, 2)
	assert.Equal(t, "001B", out.Records[1]["Id"])
	assert.Equal(t, int32(2), calls.Load())
}

func TestTools_QuerySinglePage(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, `{"totalSize":9,"done":false,`+
			`"nextRecordsUrl":"/services/data/v59.0/query/01g-2000","records":[{"Id":"001A"}]}`)
	}))
	defer srv.Close()

	result := callTool(t, newTestGateway(t, srv), "salesforce_query", map[string]any{
		"query":     "SELECT Id FROM Account",
		"all_pages": false,
	})
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), `"nextRecordsUrl": "/services/data/v59.0/query/01g-2000"`)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTools_ArgumentValidation(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := newTestGateway(t, srv)

	tests := []struct {
		tool string
		args map[string]any
		want string
	}{
		{"salesforce_query", nil, "query is required"},
		{"salesforce_query", map[string]any{"query": "   "}, "query must not be empty"},
		{"salesforce_search", map[string]any{"search": 42}, "search must be a string"},
		{"salesforce_get_record", map[string]any{"object_name": "Account"}, "record_id is required"},
		{"salesforce_create_record", map[string]any{"object_name": "Account", "fields": "Name=x"}, "fields must be an object"},
		{"salesforce_update_record", map[string]any{"object_name": "Account", "record_id": "001"}, "fields must be an object"},
		{"salesforce_rest_call", map[string]any{"method": "GET"}, "path is required"},
	}

	for _, tt := range tests {
		t.Run(tt.tool+"/"+tt.want, func(t *testing.T) {
			result := callTool(t, g, tt.tool, tt.args)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), tt.want)
		})
	}

	assert.Equal(t, int32(0), calls.Load())
}

func TestTools_DescribeAndRefresh(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, dataBase+"/sobjects/Account/describe", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"name":"Account","fields":[{"name":"Name","label":"Account Name","type":"string","updateable":true,"length":255}]}`)
	}))
	defer srv.Close()

	g := newTestGateway(t, srv)

	for range 2 {
		result := callTool(t, g, "salesforce_describe_object", map[string]any{"object_name": "Account"})
		require.False(t, result.IsError)
		assert.Contains(t, resultText(t, result), `"name": "Name"`)
	}

	assert.Equal(t, int32(1), calls.Load())

	result := callTool(t, g, "salesforce_describe_object", map[string]any{"object_name": "Account", "refresh": true})
	require.False(t, result.IsError)
	assert.Equal(t, int32(2), calls.Load())

	result = callTool(t, g, "salesforce_clear_metadata_cache", map[string]any{"object_name": "Account"})
	assert.JSONEq(t, `{"object":"Account","cleared":true}`, resultText(t, result))
}

func TestTools_ListObjectsFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"sobjects":[`+
			`{"name":"Account","label":"Account"},`+
			`{"name":"Invoice__c","label":"Invoice","custom":true},`+
			`{"name":"InvoiceLine__c","label":"Invoice Line","custom":true}]}`)
	}))
	defer srv.Close()

	g := newTestGateway(t, srv)

	result := callTool(t, g, "salesforce_list_objects", map[string]any{"custom_only": true, "filter": "LINE"})
	require.False(t, result.IsError)

	var objects []salesforce.ObjectSummary
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &objects))
	require.Len(t, objects, 1)
	assert.Equal(t, "InvoiceLine__c", objects[0].Name)
}

func TestTools_RecordLifecycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			writeJSON(w, http.StatusCreated, `{"id":"001NEW","success":true,"errors":[]}`)
		case http.MethodGet:
			assert.Equal(t, "Id,Name", r.URL.Query().Get("fields"))
			writeJSON(w, http.StatusOK, `{"Id":"001NEW","Name":"Acme"}`)
		case http.MethodPatch, http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	g := newTestGateway(t, srv)

	result := callTool(t, g, "salesforce_create_record", map[string]any{
		"object_name": "Account",
		"fields":      map[string]any{"Name": "Acme"},
	})
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), `"001NEW"`)

	result = callTool(t, g, "salesforce_get_record", map[string]any{
		"object_name": "Account", "record_id": "001NEW", "fields": "Id, Name,",
	})
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), `"Acme"`)

	result = callTool(t, g, "salesforce_update_record", map[string]any{
		"object_name": "Account", "record_id": "001NEW", "fields": map[string]any{"Name": "Acme2"},
	})
	assert.JSONEq(t, `{"success":true,"id":"001NEW"}`, resultText(t, result))

	result = callTool(t, g, "salesforce_delete_record", map[string]any{"object_name": "Account", "record_id": "001NEW"})
	assert.JSONEq(t, `{"success":true,"id":"001NEW"}`, resultText(t, result))
}

func TestTools_ServiceErrorBecomesToolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, `[{"message":"unexpected token: FORM","errorCode":"MALFORMED_QUERY"}]`)
	}))
	defer srv.Close()

	result := callTool(t, newTestGateway(t, srv), "salesforce_query", map[string]any{"query": "SELECT Id FORM Account"})
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "unexpected token: FORM")
}

func TestTools_Passthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/services/apexrest/Orders/cancel":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, []string{"a", "b"}, r.URL.Query()["tag"])
			assert.Equal(t, "1", r.URL.Query().Get("dryRun"))

			data, err := io.ReadAll(r.Body)
			assert.NoError(t, err)
			assert.JSONEq(t, `{"orderId":"o-1"}`, string(data))

			w.WriteHeader(http.StatusNoContent)
		case dataBase + "/tooling/query":
			writeJSON(w, http.StatusOK, `{"size":1,"records":[{"Name":"Util"}]}`)
		case "/services/data/v60.0/limits":
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("plain"))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	g := newTestGateway(t, srv)

	result := callTool(t, g, "salesforce_apex_execute", map[string]any{
		"method": "post",
		"path":   "Orders/cancel",
		"body":   map[string]any{"orderId": "o-1"},
		"query":  map[string]any{"tag": []any{"a", "b"}, "dryRun": float64(1)},
	})
	require.False(t, result.IsError, resultText(t, result))
	assert.JSONEq(t, `{"success":true}`, resultText(t, result))

	result = callTool(t, g, "salesforce_tooling_execute", map[string]any{
		"method": "GET",
		"path":   "query",
		"query":  map[string]any{"q": "SELECT Name FROM ApexClass"},
	})
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "\n  \"size\": 1")

	result = callTool(t, g, "salesforce_rest_call", map[string]any{"method": "GET", "path": "/services/data/v60.0/limits"})
	require.False(t, result.IsError)
	assert.Equal(t, "plain", resultText(t, result))
}

func TestSplitFields(t *testing.T) {
	assert.Nil(t, splitFields(""))
	assert.Equal(t, []string{"Id", "Name"}, splitFields(" Id , ,Name,"))
}
