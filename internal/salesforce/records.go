package salesforce

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// CreateResult is the service's reply to a record insert.
type CreateResult struct {
	ID      string        `json:"id"`
	Success bool          `json:"success"`
	Errors  []RecordError `json:"errors"`
}

// RecordError is one per-record failure reported inside a 2xx reply.
type RecordError struct {
	StatusCode string   `json:"statusCode"`
	Message    string   `json:"message"`
	Fields     []string `json:"fields,omitempty"`
}

// CreateRecord inserts a record of objectType and returns the new ID.
func (c *Client) CreateRecord(ctx context.Context, objectType string, fields map[string]any) (*CreateResult, error) {
	path, err := collectionPath(objectType)
	if err != nil {
		return nil, err
	}

	if fields == nil {
		fields = map[string]any{}
	}

	resp, err := c.Do(ctx, http.MethodPost, EndpointData, path, fields, nil)
	if err != nil {
		return nil, err
	}

	var result CreateResult
	if err := decodeJSON(resp, &result, "create"); err != nil {
		return nil, err
	}

	if result.Errors == nil {
		result.Errors = []RecordError{}
	}

	c.logger.Info("created record",
		slog.String("object", objectType),
		slog.String("id", result.ID),
	)

	return &result, nil
}

// GetRecord fetches one record. An empty fields list returns every field the
// caller can see.
func (c *Client) GetRecord(ctx context.Context, objectType, id string, fields []string) (Record, error) {
	path, err := recordPath(objectType, id)
	if err != nil {
		return nil, err
	}

	var query url.Values
	if len(fields) > 0 {
		query = url.Values{"fields": {strings.Join(fields, ",")}}
	}

	resp, err := c.Do(ctx, http.MethodGet, EndpointData, path, nil, query)
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := decodeJSON(resp, &rec, "record"); err != nil {
		return nil, err
	}

	return rec, nil
}

// UpdateRecord patches the given fields. It reports true once the service
// accepts the call; the service sends no body to inspect.
func (c *Client) UpdateRecord(ctx context.Context, objectType, id string, fields map[string]any) (bool, error) {
	path, err := recordPath(objectType, id)
	if err != nil {
		return false, err
	}

	if len(fields) == 0 {
		return false, invalidArg("update requires at least one field")
	}

	resp, err := c.Do(ctx, http.MethodPatch, EndpointData, path, fields, nil)
	if err != nil {
		return false, err
	}

	discardBody(resp)

	c.logger.Info("updated record",
		slog.String("object", objectType),
		slog.String("id", id),
		slog.Int("fields", len(fields)),
	)

	return true, nil
}

// DeleteRecord removes one record and reports true once the service accepts
// the call.
func (c *Client) DeleteRecord(ctx context.Context, objectType, id string) (bool, error) {
	path, err := recordPath(objectType, id)
	if err != nil {
		return false, err
	}

	resp, err := c.Do(ctx, http.MethodDelete, EndpointData, path, nil, nil)
	if err != nil {
		return false, err
	}

	discardBody(resp)

	c.logger.Info("deleted record",
		slog.String("object", objectType),
		slog.String("id", id),
	)

	return true, nil
}

// collectionPath builds sobjects/{type} with the type escaped.
func collectionPath(objectType string) (string, error) {
	if strings.TrimSpace(objectType) == "" {
		return "", invalidArg("object type must not be empty")
	}

	return "sobjects/" + url.PathEscape(objectType), nil
}

// recordPath builds sobjects/{type}/{id} with both segments escaped.
func recordPath(objectType, id string) (string, error) {
	path, err := collectionPath(objectType)
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(id) == "" {
		return "", invalidArg("record ID must not be empty")
	}

	return path + "/" + url.PathEscape(id), nil
}
