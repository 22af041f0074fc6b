package salesforce

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
)

// Call describes a free-form request for the pass-through operations.
type Call struct {
	Method string
	Path   string
	Body   any
	Query  url.Values
}

func (call Call) validate() error {
	if strings.TrimSpace(call.Method) == "" {
		return invalidArg("method must not be empty")
	}

	if strings.TrimSpace(call.Path) == "" {
		return invalidArg("path must not be empty")
	}

	return nil
}

// ToolingExecute sends call to the tooling API base.
func (c *Client) ToolingExecute(ctx context.Context, call Call) (json.RawMessage, error) {
	return c.passthrough(ctx, EndpointTooling, call)
}

// CustomCodeExecute sends call to a custom Apex REST class.
func (c *Client) CustomCodeExecute(ctx context.Context, call Call) (json.RawMessage, error) {
	return c.passthrough(ctx, EndpointApexREST, call)
}

// GenericCall sends call to the versioned data base, or to the instance root
// when the path already names a full /services/... resource.
func (c *Client) GenericCall(ctx context.Context, call Call) (json.RawMessage, error) {
	ep := EndpointData
	if strings.HasPrefix(strings.TrimLeft(call.Path, "/"), "services/") {
		ep = EndpointInstance
	}

	return c.passthrough(ctx, ep, call)
}

// passthrough routes every free-form call through Do so it gets the same
// single 401 renewal as typed operations. A 204 yields nil.
func (c *Client) passthrough(ctx context.Context, ep Endpoint, call Call) (json.RawMessage, error) {
	if err := call.validate(); err != nil {
		return nil, err
	}

	method := strings.ToUpper(call.Method)

	c.logger.Debug("pass-through call",
		slog.String("endpoint", ep.String()),
		slog.String("method", method),
		slog.String("path", call.Path),
	)

	resp, err := c.Do(ctx, method, ep, call.Path, call.Body, call.Query)
	if err != nil {
		return nil, err
	}

	return readRaw(resp, ep.String())
}
