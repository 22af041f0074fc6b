package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tonimelisma/salesforce-mcp-go/internal/salesforce"
)

// errToolArgument marks a malformed tool call. Handlers report it without
// touching the org.
var errToolArgument = errors.New("invalid argument")

// orgClient is the part of salesforce.Client the tool handlers use.
type orgClient interface {
	Authenticated() bool
	Query(ctx context.Context, soql string, opts salesforce.QueryOptions) (*salesforce.Page, error)
	QueryAll(ctx context.Context, soql string, opts salesforce.QueryOptions) (*salesforce.QueryResult, error)
	Search(ctx context.Context, sosl string) ([]salesforce.Record, error)
	GetObjectFields(ctx context.Context, objectName string) ([]salesforce.FieldDescriptor, error)
	InvalidateObjectFields(objectName string) bool
	ClearMetadataCache() int
	ListObjects(ctx context.Context) ([]salesforce.ObjectSummary, error)
	CreateRecord(ctx context.Context, objectType string, fields map[string]any) (*salesforce.CreateResult, error)
	GetRecord(ctx context.Context, objectType, id string, fields []string) (salesforce.Record, error)
	UpdateRecord(ctx context.Context, objectType, id string, fields map[string]any) (bool, error)
	DeleteRecord(ctx context.Context, objectType, id string) (bool, error)
	ToolingExecute(ctx context.Context, call salesforce.Call) (json.RawMessage, error)
	CustomCodeExecute(ctx context.Context, call salesforce.Call) (json.RawMessage, error)
	GenericCall(ctx context.Context, call salesforce.Call) (json.RawMessage, error)
}

// gateway adapts an org client to MCP tools.
type gateway struct {
	client orgClient
	logger *slog.Logger
}

// toolSpec pairs a tool declaration with its implementation. run returns a
// value that is serialized as indented JSON.
type toolSpec struct {
	tool     mcp.Tool
	needAuth bool
	run      func(ctx context.Context, args toolArgs) (any, error)
}

// newMCPServer creates the MCP server with every tool registered.
func newMCPServer(g *gateway) *server.MCPServer {
	s := server.NewMCPServer(
		"salesforce-mcp-go",
		version,
		server.WithToolCapabilities(false),
	)

	for _, spec := range g.tools() {
		s.AddTool(spec.tool, g.handler(spec))
	}

	return s
}

// handler wraps a toolSpec with correlation logging, the authentication
// gate, and result serialization. Failures become tool error results, never
// protocol errors.
func (g *gateway) handler(spec toolSpec) server.ToolHandlerFunc {
	name := spec.tool.Name

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logger := g.logger.With(slog.String("tool", name), slog.String("call_id", uuid.NewString()))
		start := time.Now()

		logger.Info("tool call started")

		if spec.needAuth && !g.client.Authenticated() {
			logger.Warn("tool call rejected: not authenticated")

			return mcp.NewToolResultError(
				"not authenticated with Salesforce: run 'salesforce-mcp-go login' or configure credentials"), nil
		}

		out, err := spec.run(ctx, toolArgs(request.GetArguments()))
		if err != nil {
			logger.Warn("tool call failed",
				slog.Duration("elapsed", time.Since(start)),
				slog.String("error", err.Error()),
			)

			return mcp.NewToolResultError(err.Error()), nil
		}

		text, err := toolJSON(out)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		logger.Info("tool call completed", slog.Duration("elapsed", time.Since(start)))

		return mcp.NewToolResultText(text), nil
	}
}

// toolJSON renders a tool result. Raw API payloads are re-indented; a
// payload that is not JSON is returned verbatim.
func toolJSON(v any) (string, error) {
	if raw, ok := v.(json.RawMessage); ok {
		if len(raw) == 0 {
			return `{"success": true}`, nil
		}

		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			return string(raw), nil //nolint:nilerr // non-JSON bodies are still results
		}

		return buf.String(), nil
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}

	return string(data), nil
}

func (g *gateway) tools() []toolSpec {
	return []toolSpec{
		{
			tool: mcp.NewTool("salesforce_query",
				mcp.WithDescription("Run a SOQL query. Follows pagination and returns every record unless all_pages is false."),
				mcp.WithString("query", mcp.Required(), mcp.Description("SOQL statement, e.g. SELECT Id, Name FROM Account LIMIT 10")),
				mcp.WithBoolean("include_deleted", mcp.Description("Include deleted and archived records (queryAll resource)")),
				mcp.WithBoolean("all_pages", mcp.Description("Follow nextRecordsUrl until done (default: true)")),
			),
			needAuth: true,
			run:      g.runQuery,
		},
		{
			tool: mcp.NewTool("salesforce_search",
				mcp.WithDescription("Run a SOSL search across objects. No matches yields an empty list."),
				mcp.WithString("search", mcp.Required(), mcp.Description("SOSL statement, e.g. FIND {Acme} IN NAME FIELDS RETURNING Account(Name)")),
			),
			needAuth: true,
			run:      g.runSearch,
		},
		{
			tool: mcp.NewTool("salesforce_describe_object",
				mcp.WithDescription("List the fields of an SObject: name, label, type, updateable, length, picklist values. Cached per object."),
				mcp.WithString("object_name", mcp.Required(), mcp.Description("API name of the object, e.g. Account or Invoice__c")),
				mcp.WithBoolean("refresh", mcp.Description("Drop the cached description before describing")),
			),
			needAuth: true,
			run:      g.runDescribe,
		},
		{
			tool: mcp.NewTool("salesforce_list_objects",
				mcp.WithDescription("List the SObjects available in the org"),
				mcp.WithString("filter", mcp.Description("Case-insensitive substring to match against name or label")),
				mcp.WithBoolean("custom_only", mcp.Description("Return only custom objects")),
			),
			needAuth: true,
			run:      g.runListObjects,
		},
		{
			tool: mcp.NewTool("salesforce_get_record",
				mcp.WithDescription("Retrieve one record by ID"),
				mcp.WithString("object_name", mcp.Required(), mcp.Description("API name of the object")),
				mcp.WithString("record_id", mcp.Required(), mcp.Description("15 or 18 character record ID")),
				mcp.WithString("fields", mcp.Description("Comma-separated field names; all fields when omitted")),
			),
			needAuth: true,
			run:      g.runGetRecord,
		},
		{
			tool: mcp.NewTool("salesforce_create_record",
				mcp.WithDescription("Create a record and return its ID"),
				mcp.WithString("object_name", mcp.Required(), mcp.Description("API name of the object")),
				mcp.WithObject("fields", mcp.Required(), mcp.Description("Field values keyed by API name")),
			),
			needAuth: true,
			run:      g.runCreateRecord,
		},
		{
			tool: mcp.NewTool("salesforce_update_record",
				mcp.WithDescription("Update fields of an existing record"),
				mcp.WithString("object_name", mcp.Required(), mcp.Description("API name of the object")),
				mcp.WithString("record_id", mcp.Required(), mcp.Description("ID of the record to update")),
				mcp.WithObject("fields", mcp.Required(), mcp.Description("Field values keyed by API name")),
			),
			needAuth: true,
			run:      g.runUpdateRecord,
		},
		{
			tool: mcp.NewTool("salesforce_delete_record",
				mcp.WithDescription("Delete a record by ID"),
				mcp.WithString("object_name", mcp.Required(), mcp.Description("API name of the object")),
				mcp.WithString("record_id", mcp.Required(), mcp.Description("ID of the record to delete")),
			),
			needAuth: true,
			run:      g.runDeleteRecord,
		},
		{
			tool:     passthroughTool("salesforce_tooling_execute", "Call the Tooling API, e.g. GET query?q=SELECT Id FROM ApexClass"),
			needAuth: true,
			run:      g.passthrough(g.client.ToolingExecute),
		},
		{
			tool:     passthroughTool("salesforce_apex_execute", "Call a custom Apex REST endpoint under /services/apexrest"),
			needAuth: true,
			run:      g.passthrough(g.client.CustomCodeExecute),
		},
		{
			tool: passthroughTool("salesforce_rest_call",
				"Call any REST API path. Relative paths resolve against the data API; paths starting with /services/ against the instance."),
			needAuth: true,
			run:      g.passthrough(g.client.GenericCall),
		},
		{
			tool: mcp.NewTool("salesforce_clear_metadata_cache",
				mcp.WithDescription("Forget cached object descriptions so the next describe sees schema changes"),
				mcp.WithString("object_name", mcp.Description("Only forget this object; all objects when omitted")),
			),
			run: g.runClearCache,
		},
	}
}

func passthroughTool(name, description string) mcp.Tool {
	return mcp.NewTool(name,
		mcp.WithDescription(description),
		mcp.WithString("method", mcp.Required(), mcp.Description("HTTP method: GET, POST, PATCH, PUT or DELETE")),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path relative to the API base")),
		mcp.WithObject("body", mcp.Description("JSON request body")),
		mcp.WithObject("query", mcp.Description("Query string parameters")),
	)
}

func (g *gateway) runQuery(ctx context.Context, args toolArgs) (any, error) {
	soql, err := args.require("query")
	if err != nil {
		return nil, err
	}

	opts := salesforce.QueryOptions{IncludeDeleted: args.boolean("include_deleted", false)}

	if !args.boolean("all_pages", true) {
		return g.client.Query(ctx, soql, opts)
	}

	return g.client.QueryAll(ctx, soql, opts)
}

func (g *gateway) runSearch(ctx context.Context, args toolArgs) (any, error) {
	sosl, err := args.require("search")
	if err != nil {
		return nil, err
	}

	records, err := g.client.Search(ctx, sosl)
	if err != nil {
		return nil, err
	}

	return map[string]any{"totalSize": len(records), "records": records}, nil
}

func (g *gateway) runDescribe(ctx context.Context, args toolArgs) (any, error) {
	name, err := args.require("object_name")
	if err != nil {
		return nil, err
	}

	if args.boolean("refresh", false) {
		g.client.InvalidateObjectFields(name)
	}

	fields, err := g.client.GetObjectFields(ctx, name)
	if err != nil {
		return nil, err
	}

	return map[string]any{"object": name, "fields": fields}, nil
}

func (g *gateway) runListObjects(ctx context.Context, args toolArgs) (any, error) {
	objects, err := g.client.ListObjects(ctx)
	if err != nil {
		return nil, err
	}

	filter := strings.ToLower(args.optional("filter"))
	customOnly := args.boolean("custom_only", false)

	out := make([]salesforce.ObjectSummary, 0, len(objects))

	for _, o := range objects {
		if customOnly && !o.Custom {
			continue
		}

		if filter != "" &&
			!strings.Contains(strings.ToLower(o.Name), filter) &&
			!strings.Contains(strings.ToLower(o.Label), filter) {
			continue
		}

		out = append(out, o)
	}

	return out, nil
}

func (g *gateway) runGetRecord(ctx context.Context, args toolArgs) (any, error) {
	name, id, err := args.recordRef()
	if err != nil {
		return nil, err
	}

	return g.client.GetRecord(ctx, name, id, splitFields(args.optional("fields")))
}

func (g *gateway) runCreateRecord(ctx context.Context, args toolArgs) (any, error) {
	name, err := args.require("object_name")
	if err != nil {
		return nil, err
	}

	fields, err := args.requireObject("fields")
	if err != nil {
		return nil, err
	}

	return g.client.CreateRecord(ctx, name, fields)
}

func (g *gateway) runUpdateRecord(ctx context.Context, args toolArgs) (any, error) {
	name, id, err := args.recordRef()
	if err != nil {
		return nil, err
	}

	fields, err := args.requireObject("fields")
	if err != nil {
		return nil, err
	}

	ok, err := g.client.UpdateRecord(ctx, name, id, fields)
	if err != nil {
		return nil, err
	}

	return map[string]any{"success": ok, "id": id}, nil
}

func (g *gateway) runDeleteRecord(ctx context.Context, args toolArgs) (any, error) {
	name, id, err := args.recordRef()
	if err != nil {
		return nil, err
	}

	ok, err := g.client.DeleteRecord(ctx, name, id)
	if err != nil {
		return nil, err
	}

	return map[string]any{"success": ok, "id": id}, nil
}

func (g *gateway) runClearCache(_ context.Context, args toolArgs) (any, error) {
	if name := args.optional("object_name"); name != "" {
		return map[string]any{"object": name, "cleared": g.client.InvalidateObjectFields(name)}, nil
	}

	return map[string]any{"cleared": g.client.ClearMetadataCache()}, nil
}

// passthrough adapts one of the raw-call operations to a tool.
func (g *gateway) passthrough(
	call func(context.Context, salesforce.Call) (json.RawMessage, error),
) func(context.Context, toolArgs) (any, error) {
	return func(ctx context.Context, args toolArgs) (any, error) {
		method, err := args.require("method")
		if err != nil {
			return nil, err
		}

		path, err := args.require("path")
		if err != nil {
			return nil, err
		}

		c := salesforce.Call{Method: method, Path: path, Query: args.queryValues("query")}

		if body, ok := args["body"]; ok && body != nil {
			c.Body = body
		}

		raw, err := call(ctx, c)
		if err != nil {
			return nil, err
		}

		return raw, nil
	}
}

// toolArgs is the decoded argument object of a tool call.
type toolArgs map[string]any

func (a toolArgs) require(name string) (string, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: %s is required", errToolArgument, name)
	}

	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", errToolArgument, name)
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: %s must not be empty", errToolArgument, name)
	}

	return s, nil
}

func (a toolArgs) optional(name string) string {
	s, _ := a[name].(string)

	return strings.TrimSpace(s)
}

func (a toolArgs) boolean(name string, def bool) bool {
	b, ok := a[name].(bool)
	if !ok {
		return def
	}

	return b
}

func (a toolArgs) requireObject(name string) (map[string]any, error) {
	obj, ok := a[name].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be an object", errToolArgument, name)
	}

	return obj, nil
}

func (a toolArgs) recordRef() (objectName, id string, err error) {
	if objectName, err = a.require("object_name"); err != nil {
		return "", "", err
	}

	if id, err = a.require("record_id"); err != nil {
		return "", "", err
	}

	return objectName, id, nil
}

// queryValues converts an object argument to query parameters. Array values
// become repeated parameters; other scalars are formatted with %v.
func (a toolArgs) queryValues(name string) url.Values {
	obj, ok := a[name].(map[string]any)
	if !ok || len(obj) == 0 {
		return nil
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	q := make(url.Values, len(obj))

	for _, k := range keys {
		switch v := obj[k].(type) {
		case []any:
			for _, item := range v {
				q.Add(k, fmt.Sprint(item))
			}
		default:
			q.Set(k, fmt.Sprint(v))
		}
	}

	return q
}

// splitFields parses a comma-separated field list, dropping blanks.
func splitFields(s string) []string {
	if s == "" {
		return nil
	}

	var fields []string

	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}

	return fields
}
