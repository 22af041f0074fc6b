package salesforce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

const defaultUserAgent = "salesforce-mcp-go/0.1"

// maxErrorBody caps how much of a failed response body is read for the
// error message.
const maxErrorBody = 64 << 10

// Endpoint selects the base path a request path is resolved against.
type Endpoint int

const (
	// EndpointData is /services/data/{version}.
	EndpointData Endpoint = iota
	// EndpointTooling is /services/data/{version}/tooling.
	EndpointTooling
	// EndpointApexREST is /services/apexrest, where custom Apex REST classes live.
	EndpointApexREST
	// EndpointInstance is the instance root; the path names the full /services/... resource.
	EndpointInstance
)

func (e Endpoint) String() string {
	switch e {
	case EndpointData:
		return "data"
	case EndpointTooling:
		return "tooling"
	case EndpointApexREST:
		return "apexrest"
	case EndpointInstance:
		return "instance"
	default:
		return fmt.Sprintf("endpoint(%d)", int(e))
	}
}

// Client issues authenticated calls against one org. It owns the current
// Session and recovers from session expiry by re-authenticating once and
// replaying the failed request once. Safe for concurrent use.
type Client struct {
	cfg        ServiceConfig
	httpClient *http.Client
	exchanger  *Exchanger
	logger     *slog.Logger
	userAgent  string

	mu       sync.RWMutex
	session  *Session
	state    ConnectionState
	onChange func(*Session)

	renewals singleflight.Group
	metadata *metadataCache
}

// NewClient creates a Client for cfg. It does not contact the service;
// call Connect (or RestoreSession) before issuing requests.
//
// The client sets no timeouts of its own. Requests are bounded by their
// context and by httpClient.Timeout, so callers that want a per-request
// limit pass an http.Client with Timeout set. A nil httpClient uses
// http.DefaultClient, which has no timeout. A nil logger discards output.
func NewClient(cfg ServiceConfig, httpClient *http.Client, logger *slog.Logger, userAgent string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logger = orDiscard(logger)

	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		exchanger:  NewExchanger(httpClient, logger),
		logger:     logger,
		userAgent:  userAgent,
		state:      StateUnauthenticated,
		metadata:   newMetadataCache(),
	}
}

// Config returns the configuration the client was built with.
func (c *Client) Config() ServiceConfig {
	return c.cfg
}

// Session returns a copy of the current session, or nil if none is held.
func (c *Client) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.session.Clone()
}

// OnSessionChange registers fn to be called with a copy of every session
// the client obtains after construction (connect, renewal, adoption).
// fn runs outside the client's lock.
func (c *Client) OnSessionChange(fn func(*Session)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onChange = fn
}

// storeSession replaces the current session. Concurrent writers are
// last-writer-wins; sessions from the same renewal are interchangeable.
func (c *Client) storeSession(s *Session) {
	c.mu.Lock()
	c.session = s.Clone()
	c.state = StateAuthenticated
	notify := c.onChange
	c.mu.Unlock()

	if notify != nil {
		notify(s.Clone())
	}
}

// currentSession returns the held session. The pointer is shared: sessions
// are replaced wholesale under the lock and never mutated in place.
func (c *Client) currentSession() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.session
}

// Do executes one authenticated request. path is relative to the base of
// ep; body, when non-nil, is sent as JSON. On a 401 the client
// re-authenticates once and replays the request once. The caller must
// close the response body on success.
func (c *Client) Do(
	ctx context.Context, method string, ep Endpoint, path string, body any, query url.Values,
) (*http.Response, error) {
	sess := c.currentSession()
	if !sess.Valid() {
		return nil, &AuthError{
			Message: "not authenticated: connect before issuing requests",
			Err:     ErrNotAuthenticated,
		}
	}

	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, sess, method, ep, path, payload, query)
	if err == nil {
		return resp, nil
	}

	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.StatusCode != http.StatusUnauthorized {
		return nil, err
	}

	c.logger.Info("session rejected, re-authenticating",
		slog.String("method", method),
		slog.String("path", path),
		slog.String("error_code", reqErr.ErrorCode),
	)

	renewed, renewErr := c.reauthenticate(ctx, sess)
	if renewErr != nil {
		c.logger.Warn("re-authentication failed",
			slog.String("error", renewErr.Error()),
		)

		return nil, fmt.Errorf("%w (re-authentication failed: %w)", err, renewErr)
	}

	resp, err = c.send(ctx, renewed, method, ep, path, payload, query)
	if err != nil {
		c.logger.Error("request failed after re-authentication",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return nil, err
	}

	return resp, nil
}

// send performs a single HTTP round trip with sess. Non-2xx responses are
// returned as *RequestError with the body consumed and closed.
func (c *Client) send(
	ctx context.Context, sess *Session, method string, ep Endpoint, path string, payload []byte, query url.Values,
) (*http.Response, error) {
	target := c.resolveURL(sess.InstanceURL, ep, path, query)

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("salesforce: creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("salesforce: request canceled: %w", ctx.Err())
		}

		c.logger.Warn("request did not reach the service",
			slog.String("method", method),
			slog.String("endpoint", ep.String()),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return nil, &NetworkError{Op: method + " " + path, Err: err}
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		c.logger.Debug("request succeeded",
			slog.String("method", method),
			slog.String("endpoint", ep.String()),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)

		return resp, nil
	}

	errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()

	if readErr != nil {
		errBody = nil
	}

	c.logger.Debug("request rejected",
		slog.String("method", method),
		slog.String("endpoint", ep.String()),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
	)

	return nil, newRequestError(method, path, resp.StatusCode, errBody)
}

// reauthenticate obtains a replacement for stale: refresh-token renewal when
// one is held, otherwise a fresh password exchange when credentials are
// configured. Concurrent callers share one attempt, and a caller whose
// session was already replaced by another goroutine reuses the replacement.
// The shared attempt ignores the first caller's cancellation so that other
// waiters are unaffected by it; each caller still stops waiting when its own
// ctx is done.
func (c *Client) reauthenticate(ctx context.Context, stale *Session) (*Session, error) {
	shared := context.WithoutCancel(ctx)

	ch := c.renewals.DoChan("session", func() (any, error) {
		if cur := c.currentSession(); cur.Valid() && cur.AccessToken != stale.AccessToken {
			return cur, nil
		}

		var (
			next *Session
			err  error
		)

		switch {
		case stale.RefreshToken != "":
			next, err = c.exchanger.Renew(shared, c.cfg, stale)
		case c.cfg.HasPasswordCredentials():
			next, err = c.exchanger.Exchange(shared, c.cfg)
		default:
			err = &AuthError{
				Message: "session expired and neither a refresh token nor password credentials are available",
				Err:     ErrNoRefreshToken,
			}
		}

		if err != nil {
			return nil, err
		}

		c.storeSession(next)

		return next, nil
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

	sess, ok := res.Val.(*Session)
	if !ok {
		return nil, fmt.Errorf("salesforce: unexpected renewal result %T", res.Val)
	}

	return sess.Clone(), nil
}

// basePath returns the path prefix for ep.
func (c *Client) basePath(ep Endpoint) string {
	switch ep {
	case EndpointTooling:
		return "/services/data/" + c.cfg.Version() + "/tooling"
	case EndpointApexREST:
		return "/services/apexrest"
	case EndpointInstance:
		return ""
	default:
		return "/services/data/" + c.cfg.Version()
	}
}

// resolveURL joins the instance URL, the endpoint base and path. Leading and
// trailing slashes are normalized so "x", "/x" and "//x" resolve alike.
func (c *Client) resolveURL(instanceURL string, ep Endpoint, path string, query url.Values) string {
	u := strings.TrimRight(instanceURL, "/") + c.basePath(ep)

	if rel := strings.TrimLeft(path, "/"); rel != "" {
		u += "/" + rel
	}

	if len(query) > 0 {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}

		u += sep + query.Encode()
	}

	return u
}

// encodeBody marshals body once so a retried request can resend it.
// json.RawMessage and []byte are sent as-is.
func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return b, nil
	case []byte:
		return b, nil
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("salesforce: encoding request body: %w", err)
	}

	return data, nil
}

// decodeJSON decodes resp's body into v and closes it.
func decodeJSON(resp *http.Response, v any, what string) error {
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("salesforce: decoding %s response: %w", what, err)
	}

	return nil
}

// readRaw returns resp's body as raw JSON, nil for an empty body, and
// closes it.
func readRaw(resp *http.Response, what string) (json.RawMessage, error) {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("salesforce: reading %s response: %w", what, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	return json.RawMessage(data), nil
}

// discardBody drains and closes resp's body.
func discardBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// orDiscard returns logger, or a logger that drops everything when nil.
func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}

	return logger
}
