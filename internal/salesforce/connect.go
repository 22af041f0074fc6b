package salesforce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// ConnectionState is the position of a Client in session establishment.
type ConnectionState int

const (
	StateUnauthenticated ConnectionState = iota
	StateTokenProvided
	StateCredentialsProvided
	StateAuthenticated
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateTokenProvided:
		return "token_provided"
	case StateCredentialsProvided:
		return "credentials_provided"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// probePath is the lightweight call used to check a pre-supplied token.
const probePath = "sobjects"

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state
}

func (c *Client) setState(s ConnectionState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = s
}

// Authenticated reports whether Connect (or a renewal) has produced a
// session that the service accepted.
func (c *Client) Authenticated() bool {
	return c.State() == StateAuthenticated && c.Session().Valid()
}

// RestoreSession seeds the client with a previously persisted session. The
// session is not probed; Connect still runs its strategies, but a held
// refresh token becomes available for recovery and 401 renewal.
func (c *Client) RestoreSession(s *Session) {
	if s == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.session = s.Clone()
}

// AdoptSession replaces the current session with one obtained elsewhere,
// typically by another process, and marks the client authenticated. The
// session observer is not notified. Invalid sessions are ignored.
func (c *Client) AdoptSession(s *Session) bool {
	if !s.Valid() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil && c.session.AccessToken == s.AccessToken {
		return false
	}

	c.session = s.Clone()
	c.state = StateAuthenticated

	return true
}

// Logout drops the current session and returns the client to the
// unauthenticated state. Requests already in flight keep the session they
// started with; held sessions are never modified in place.
func (c *Client) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.session = nil
	c.state = StateUnauthenticated
}

// Connect establishes a session, trying strategies in order:
//  1. a pre-supplied access token, checked with a probe call; a rejected
//     token falls through instead of failing
//  2. the password grant
//
// A configuration lacking both strategies fails before any network call.
// If a strategy fails unexpectedly (the identity endpoint was unreachable,
// or the probe could not reach the service) and a refresh token from an
// earlier session is held, one renewal is attempted before giving up.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.cfg.Validate(); err != nil {
		c.setState(StateFailed)
		c.logger.Warn("connect refused: invalid configuration", slog.String("error", err.Error()))

		return err
	}

	err := c.establish(ctx)
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		c.setState(StateFailed)

		return err
	}

	if !isUnexpected(err) {
		c.setState(StateFailed)

		return err
	}

	return c.recoverWithRefresh(ctx, err)
}

// establish runs the token and credential strategies.
func (c *Client) establish(ctx context.Context) error {
	tokenReason := "no access token and instance URL configured"

	var probeErr error

	if c.cfg.HasToken() {
		c.setState(StateTokenProvided)

		probeErr = c.probeToken(ctx)
		if probeErr == nil {
			return nil
		}

		tokenReason = "pre-supplied token rejected: " + probeErr.Error()

		c.logger.Warn("pre-supplied token failed probe, trying next strategy",
			slog.String("instance_url", c.cfg.InstanceURL),
			slog.String("error", probeErr.Error()),
		)
	}

	if !c.cfg.HasPasswordCredentials() {
		if probeErr != nil && isUnexpected(probeErr) {
			return probeErr
		}

		return &AuthError{
			Message: fmt.Sprintf("no connection strategy succeeded: access token: %s; "+
				"username/password: not configured (%s)", tokenReason, acceptedCombinations),
			Err: probeErr,
		}
	}

	c.setState(StateCredentialsProvided)

	sess, err := c.exchanger.Exchange(ctx, c.cfg)
	if err != nil {
		if isUnexpected(err) {
			return err
		}

		return &AuthError{
			StatusCode: statusOf(err),
			Message: fmt.Sprintf("no connection strategy succeeded: access token: %s; username/password: %s",
				tokenReason, authMessage(err)),
			Err: err,
		}
	}

	if held := c.currentSession(); held != nil && sess.RefreshToken == "" && held.InstanceURL == sess.InstanceURL {
		sess.RefreshToken = held.RefreshToken
	}

	c.storeSession(sess)
	c.logger.Info("connected with username and password", slog.String("instance_url", sess.InstanceURL))

	return nil
}

// probeToken adopts the configured token and checks it with one call. The
// probe does not go through Do, so a rejected token never triggers renewal.
func (c *Client) probeToken(ctx context.Context) error {
	candidate := &Session{
		AccessToken: c.cfg.AccessToken,
		InstanceURL: c.cfg.InstanceURL,
	}

	if held := c.currentSession(); held != nil && held.InstanceURL == candidate.InstanceURL {
		candidate.RefreshToken = held.RefreshToken
	}

	resp, err := c.send(ctx, candidate, http.MethodGet, EndpointData, probePath, nil, nil)
	if err != nil {
		return err
	}

	discardBody(resp)

	c.storeSession(candidate)
	c.logger.Info("connected with pre-supplied token", slog.String("instance_url", candidate.InstanceURL))

	return nil
}

// recoverWithRefresh makes the single renewal attempt after an unexpected failure.
func (c *Client) recoverWithRefresh(ctx context.Context, cause error) error {
	held := c.currentSession()
	if held == nil || held.RefreshToken == "" {
		c.setState(StateFailed)

		return cause
	}

	c.logger.Warn("connect failed unexpectedly, attempting renewal with held refresh token",
		slog.String("error", cause.Error()),
	)

	sess, err := c.exchanger.Renew(ctx, c.cfg, held)
	if err != nil {
		c.setState(StateFailed)

		return fmt.Errorf("%w (recovery renewal failed: %w)", cause, err)
	}

	c.storeSession(sess)
	c.logger.Info("connected by renewing held session", slog.String("instance_url", sess.InstanceURL))

	return nil
}

// isUnexpected reports whether err is something other than a clean
// rejection: a transport failure, or an error outside the taxonomy.
func isUnexpected(err error) bool {
	if errors.Is(err, ErrNetwork) {
		return true
	}

	return !errors.Is(err, ErrAuth) && !errors.Is(err, ErrRequest) && !errors.Is(err, ErrConfiguration)
}

func statusOf(err error) int {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.StatusCode
	}

	return 0
}

func authMessage(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Message
	}

	return err.Error()
}
