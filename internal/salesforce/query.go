package salesforce

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Record is one SObject row as returned by the service, including its
// "attributes" entry.
type Record map[string]any

// Page is one chunk of a query result. NextRecordsURL is the continuation
// locator; it is empty on the last page.
type Page struct {
	TotalSize      int      `json:"totalSize"`
	Done           bool     `json:"done"`
	Records        []Record `json:"records"`
	NextRecordsURL string   `json:"nextRecordsUrl,omitempty"`
}

// QueryResult is the drained form of a query.
type QueryResult struct {
	TotalSize int      `json:"totalSize"`
	Records   []Record `json:"records"`
}

// QueryOptions tunes Query and QueryAll.
type QueryOptions struct {
	// IncludeDeleted uses the queryAll resource, which also returns deleted
	// and archived records.
	IncludeDeleted bool
}

func (o QueryOptions) resource() string {
	if o.IncludeDeleted {
		return "queryAll"
	}

	return "query"
}

// Query runs soql and returns the first page only.
func (c *Client) Query(ctx context.Context, soql string, opts QueryOptions) (*Page, error) {
	if strings.TrimSpace(soql) == "" {
		return nil, invalidArg("query must not be empty")
	}

	c.logger.Debug("running query", slog.String("resource", opts.resource()))

	resp, err := c.Do(ctx, http.MethodGet, EndpointData, opts.resource(), nil, url.Values{"q": {soql}})
	if err != nil {
		return nil, err
	}

	var page Page
	if err := decodeJSON(resp, &page, "query"); err != nil {
		return nil, err
	}

	return normalizePage(&page), nil
}

// nextPage follows a continuation locator.
func (c *Client) nextPage(ctx context.Context, locator string) (*Page, error) {
	resp, err := c.Do(ctx, http.MethodGet, EndpointInstance, locator, nil, nil)
	if err != nil {
		return nil, err
	}

	var page Page
	if err := decodeJSON(resp, &page, "query page"); err != nil {
		return nil, err
	}

	return normalizePage(&page), nil
}

// QueryAll runs soql and follows continuation locators until a page reports
// done, returning every record in arrival order. A page that is not done
// but carries no locator ends the loop rather than spinning on it.
func (c *Client) QueryAll(ctx context.Context, soql string, opts QueryOptions) (*QueryResult, error) {
	page, err := c.Query(ctx, soql, opts)
	if err != nil {
		return nil, err
	}

	result := &QueryResult{
		TotalSize: page.TotalSize,
		Records:   append(make([]Record, 0, len(page.Records)), page.Records...),
	}

	pages := 1

	for !page.Done {
		if page.NextRecordsURL == "" {
			c.logger.Warn("query page not done but has no continuation locator, stopping",
				slog.Int("pages", pages),
				slog.Int("records", len(result.Records)),
			)

			break
		}

		page, err = c.nextPage(ctx, page.NextRecordsURL)
		if err != nil {
			return nil, err
		}

		pages++
		result.Records = append(result.Records, page.Records...)

		c.logger.Debug("accumulated query page",
			slog.Int("page", pages),
			slog.Int("page_records", len(page.Records)),
			slog.Int("total_records", len(result.Records)),
		)
	}

	c.logger.Info("query complete",
		slog.Int("pages", pages),
		slog.Int("records", len(result.Records)),
		slog.Int("total_size", result.TotalSize),
	)

	return result, nil
}

// searchResponse is the object form of a search result. Older API versions
// return a bare array instead.
type searchResponse struct {
	SearchRecords []Record `json:"searchRecords"`
}

// Search runs a SOSL search. No matches yields an empty, non-nil slice.
func (c *Client) Search(ctx context.Context, sosl string) ([]Record, error) {
	if strings.TrimSpace(sosl) == "" {
		return nil, invalidArg("search must not be empty")
	}

	resp, err := c.Do(ctx, http.MethodGet, EndpointData, "search", nil, url.Values{"q": {sosl}})
	if err != nil {
		return nil, err
	}

	raw, err := readRaw(resp, "search")
	if err != nil {
		return nil, err
	}

	records := []Record{}

	if raw == nil {
		return records, nil
	}

	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, decodeErr("search", err)
		}
	} else {
		var sr searchResponse
		if err := json.Unmarshal(raw, &sr); err != nil {
			return nil, decodeErr("search", err)
		}

		if sr.SearchRecords != nil {
			records = sr.SearchRecords
		}
	}

	if records == nil {
		records = []Record{}
	}

	return records, nil
}

func normalizePage(p *Page) *Page {
	if p.Records == nil {
		p.Records = []Record{}
	}

	return p
}
