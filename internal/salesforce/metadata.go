package salesforce

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"golang.org/x/sync/singleflight"
)

// PicklistValue is one allowed value of a picklist field.
type PicklistValue struct {
	Value  string `json:"value"`
	Label  string `json:"label"`
	Active bool   `json:"active"`
}

// FieldDescriptor is the subset of a field description the gateway exposes.
type FieldDescriptor struct {
	Name           string          `json:"name"`
	Label          string          `json:"label"`
	Type           string          `json:"type"`
	Updateable     bool            `json:"updateable"`
	Length         int             `json:"length"`
	PicklistValues []PicklistValue `json:"picklistValues"`
}

// ObjectSummary is one entry of the global object list.
type ObjectSummary struct {
	Name       string `json:"name"`
	Label      string `json:"label"`
	Custom     bool   `json:"custom"`
	Queryable  bool   `json:"queryable"`
	Createable bool   `json:"createable"`
	Updateable bool   `json:"updateable"`
	Deletable  bool   `json:"deletable"`
}

// describeResponse mirrors the parts of sobjects/{name}/describe we read.
type describeResponse struct {
	Name   string `json:"name"`
	Fields []struct {
		Name           string          `json:"name"`
		Label          string          `json:"label"`
		Type           string          `json:"type"`
		Updateable     bool            `json:"updateable"`
		Length         int             `json:"length"`
		PicklistValues []PicklistValue `json:"picklistValues"`
	} `json:"fields"`
}

type globalDescribeResponse struct {
	SObjects []ObjectSummary `json:"sobjects"`
}

// metadataCache holds field descriptions per object name for the life of
// the process. Entries are never refreshed; only explicit invalidation
// removes them. Concurrent misses for one name share a single describe.
type metadataCache struct {
	mu      sync.RWMutex
	entries map[string][]FieldDescriptor
	flight  singleflight.Group
}

func newMetadataCache() *metadataCache {
	return &metadataCache{entries: make(map[string][]FieldDescriptor)}
}

func (m *metadataCache) get(name string) ([]FieldDescriptor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fields, ok := m.entries[name]

	return fields, ok
}

// put stores fields unless another caller got there first, and returns the
// value that ended up cached.
func (m *metadataCache) put(name string, fields []FieldDescriptor) []FieldDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[name]; ok {
		return existing
	}

	m.entries[name] = fields

	return fields
}

func (m *metadataCache) delete(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.entries[name]
	delete(m.entries, name)

	return ok
}

func (m *metadataCache) clear() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.entries)
	m.entries = make(map[string][]FieldDescriptor)

	return n
}

// GetObjectFields returns the field descriptors of objectName. The first
// call per name describes the object; later calls return the cached slice
// without a network call, even if the remote schema has changed since.
// Names are case-sensitive. The returned slice is shared and must not be
// modified. Concurrent first calls share one describe, which is not
// canceled when the caller that started it gives up.
func (c *Client) GetObjectFields(ctx context.Context, objectName string) ([]FieldDescriptor, error) {
	if objectName == "" {
		return nil, invalidArg("object name must not be empty")
	}

	if fields, ok := c.metadata.get(objectName); ok {
		c.logger.Debug("object fields served from cache", slog.String("object", objectName))

		return fields, nil
	}

	shared := context.WithoutCancel(ctx)

	ch := c.metadata.flight.DoChan(objectName, func() (any, error) {
		if fields, ok := c.metadata.get(objectName); ok {
			return fields, nil
		}

		fields, err := c.describeFields(shared, objectName)
		if err != nil {
			return nil, err
		}

		return c.metadata.put(objectName, fields), nil
	})

	var res singleflight.Result

	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if res.Err != nil {
		return nil, res.Err
	}

	fields, ok := res.Val.([]FieldDescriptor)
	if !ok {
		return nil, fmt.Errorf("salesforce: unexpected describe result %T", res.Val)
	}

	return fields, nil
}

func (c *Client) describeFields(ctx context.Context, objectName string) ([]FieldDescriptor, error) {
	c.logger.Info("describing object", slog.String("object", objectName))

	path := "sobjects/" + url.PathEscape(objectName) + "/describe"

	resp, err := c.Do(ctx, http.MethodGet, EndpointData, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var dr describeResponse
	if err := decodeJSON(resp, &dr, "describe"); err != nil {
		return nil, err
	}

	fields := make([]FieldDescriptor, 0, len(dr.Fields))
	for i := range dr.Fields {
		f := &dr.Fields[i]

		picklist := f.PicklistValues
		if picklist == nil {
			picklist = []PicklistValue{}
		}

		fields = append(fields, FieldDescriptor{
			Name:           f.Name,
			Label:          f.Label,
			Type:           f.Type,
			Updateable:     f.Updateable,
			Length:         f.Length,
			PicklistValues: picklist,
		})
	}

	return fields, nil
}

// InvalidateObjectFields drops the cached fields of objectName so the next
// GetObjectFields describes it again. Reports whether an entry existed.
func (c *Client) InvalidateObjectFields(objectName string) bool {
	return c.metadata.delete(objectName)
}

// ClearMetadataCache drops every cached object description and returns how
// many were removed.
func (c *Client) ClearMetadataCache() int {
	return c.metadata.clear()
}

// ListObjects returns the org's object list (global describe). Not cached.
func (c *Client) ListObjects(ctx context.Context) ([]ObjectSummary, error) {
	resp, err := c.Do(ctx, http.MethodGet, EndpointData, "sobjects", nil, nil)
	if err != nil {
		return nil, err
	}

	var gr globalDescribeResponse
	if err := decodeJSON(resp, &gr, "global describe"); err != nil {
		return nil, err
	}

	if gr.SObjects == nil {
		gr.SObjects = []ObjectSummary{}
	}

	return gr.SObjects, nil
}
