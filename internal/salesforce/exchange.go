package salesforce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// tokenEndpoint is the identity path for both the password and refresh grants.
const tokenEndpoint = "/services/oauth2/token"

// Exchanger trades credentials or a refresh token for a Session at the
// identity endpoint. It holds no session state of its own.
type Exchanger struct {
	httpClient *http.Client
	logger     *slog.Logger

	// Identity bases selected by ServiceConfig.Sandbox. Tests point these at
	// httptest servers.
	productionURL string
	sandboxURL    string
}

// NewExchanger creates an Exchanger. Identity calls are bounded by their
// context and httpClient.Timeout; a nil httpClient uses http.DefaultClient,
// which has no timeout. A nil logger discards output.
func NewExchanger(httpClient *http.Client, logger *slog.Logger) *Exchanger {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Exchanger{
		httpClient:    httpClient,
		logger:        orDiscard(logger),
		productionURL: ProductionLoginURL,
		sandboxURL:    SandboxLoginURL,
	}
}

// Exchange performs the password grant. The security token, when set, is
// appended to the password as the service requires.
func (e *Exchanger) Exchange(ctx context.Context, cfg ServiceConfig) (*Session, error) {
	tokenURL := e.tokenURL(cfg)

	e.logger.Info("exchanging credentials for session",
		slog.String("environment", cfg.Environment()),
		slog.String("token_url", tokenURL),
		slog.Bool("security_token", cfg.SecurityToken != ""),
	)

	tok, err := e.oauthConfig(cfg, tokenURL).PasswordCredentialsToken(
		e.clientContext(ctx), cfg.Username, cfg.Password+cfg.SecurityToken,
	)
	if err != nil {
		return nil, e.authError(ctx, "credential exchange", cfg, err)
	}

	sess, err := applyToken(&Session{}, tok)
	if err != nil {
		return nil, err
	}

	e.logger.Info("credential exchange succeeded",
		slog.String("instance_url", sess.InstanceURL),
		slog.Bool("refresh_token", sess.RefreshToken != ""),
	)

	return sess, nil
}

// Renew performs the refresh grant and returns a new Session. current is
// not modified. The refresh token carries over unless the response supplies
// a new one. Fails with ErrNoRefreshToken, without a network call, when
// current holds no refresh token.
func (e *Exchanger) Renew(ctx context.Context, cfg ServiceConfig, current *Session) (*Session, error) {
	if current == nil || current.RefreshToken == "" {
		return nil, &AuthError{
			Message: "cannot renew session: no refresh material held",
			Err:     ErrNoRefreshToken,
		}
	}

	tokenURL := e.tokenURL(cfg)

	e.logger.Info("renewing session with refresh token",
		slog.String("environment", cfg.Environment()),
		slog.String("token_url", tokenURL),
	)

	src := e.oauthConfig(cfg, tokenURL).TokenSource(
		e.clientContext(ctx), &oauth2.Token{RefreshToken: current.RefreshToken},
	)

	tok, err := src.Token()
	if err != nil {
		return nil, e.authError(ctx, "session renewal", cfg, err)
	}

	renewed, err := applyToken(current.Clone(), tok)
	if err != nil {
		return nil, err
	}

	e.logger.Info("session renewed", slog.String("instance_url", renewed.InstanceURL))

	return renewed, nil
}

// tokenURL resolves the identity endpoint for cfg.
func (e *Exchanger) tokenURL(cfg ServiceConfig) string {
	base := e.productionURL
	if cfg.Sandbox {
		base = e.sandboxURL
	}

	if cfg.LoginURL != "" {
		base = cfg.LoginURL
	}

	return strings.TrimRight(base, "/") + tokenEndpoint
}

// oauthConfig sends client credentials in the form body, which is what the
// identity endpoint expects for both grants.
func (e *Exchanger) oauthConfig(cfg ServiceConfig, tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// clientContext makes the oauth2 library use our HTTP client.
func (e *Exchanger) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
}

// applyToken copies the identity response into base. instance_url is
// required unless base already carries one (refresh responses may omit it).
func applyToken(base *Session, tok *oauth2.Token) (*Session, error) {
	if instanceURL, ok := tok.Extra("instance_url").(string); ok && instanceURL != "" {
		base.InstanceURL = strings.TrimRight(instanceURL, "/")
	}

	if base.InstanceURL == "" {
		return nil, &AuthError{Message: "identity response did not include an instance_url"}
	}

	base.AccessToken = tok.AccessToken

	if tok.RefreshToken != "" {
		base.RefreshToken = tok.RefreshToken
	}

	if tok.TokenType != "" {
		base.TokenType = tok.TokenType
	}

	if id, ok := tok.Extra("id").(string); ok {
		base.ID = id
	}

	if issuedAt, ok := tok.Extra("issued_at").(string); ok {
		base.IssuedAt = issuedAt
	}

	if sig, ok := tok.Extra("signature").(string); ok {
		base.Signature = sig
	}

	return base, nil
}

// authError converts an oauth2 failure into an AuthError with a diagnostic.
func (e *Exchanger) authError(ctx context.Context, op string, cfg ServiceConfig, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("salesforce: %s canceled: %w", op, ctx.Err())
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}

		e.logger.Warn("identity endpoint rejected request",
			slog.String("op", op),
			slog.Int("status", status),
			slog.String("error_code", retrieveErr.ErrorCode),
		)

		return &AuthError{
			StatusCode: status,
			Message:    describeIdentityFailure(op, cfg, status, retrieveErr),
			Err:        err,
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		e.logger.Warn("identity endpoint unreachable",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)

		return &AuthError{
			Message: op + ": identity endpoint could not be reached",
			Err:     &NetworkError{Op: op, Err: err},
		}
	}

	return &AuthError{Message: fmt.Sprintf("%s: %v", op, err), Err: err}
}

// describeIdentityFailure builds the human-readable part of an AuthError.
// A 400 from the password grant lists the usual suspects without claiming
// to know which one applies.
func describeIdentityFailure(op string, cfg ServiceConfig, status int, re *oauth2.RetrieveError) string {
	detail := re.ErrorCode
	if re.ErrorDescription != "" {
		if detail != "" {
			detail += ": "
		}

		detail += re.ErrorDescription
	}

	msg := op + " rejected"
	if detail != "" {
		msg += " (" + detail + ")"
	}

	switch {
	case status == http.StatusBadRequest && op == "session renewal":
		return msg + "; the refresh token may have expired or been revoked"
	case status == http.StatusBadRequest:
		return msg + fmt.Sprintf("; common causes: wrong username or password, "+
			"missing or outdated security token appended to the password, "+
			"connected app lacking the required OAuth scopes, "+
			"or the sandbox setting not matching the org (currently %s)", cfg.Environment())
	case status == http.StatusUnauthorized:
		return msg + "; check the client ID and client secret of the connected app"
	case status >= http.StatusInternalServerError:
		return msg + "; the identity service reported a server error, retry later"
	default:
		return msg
	}
}
