package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/salesforce-mcp-go/internal/salesforce"
	"github.com/tonimelisma/salesforce-mcp-go/internal/sessionfile"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdin/stdout",
		Long: `Connect to the configured org and serve MCP tools over stdio.

A session saved by "login" is used when the configuration carries no access
token. Renewed sessions are written back to the session file, and sessions
written by a later "login" are picked up without a restart.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx, stop := shutdownContext(cmd.Context(), cc.Logger)
	defer stop()

	client, err := connectForServe(ctx, cc)
	if err != nil {
		return err
	}

	g := &gateway{client: client, logger: cc.Logger}
	stdio := server.NewStdioServer(newMCPServer(g))
	stdio.SetErrorLogger(slog.NewLogLogger(cc.Logger.Handler(), slog.LevelError))

	eg, egCtx := errgroup.WithContext(ctx)

	if cc.Cfg.Session.Watch {
		path := cc.Cfg.Session.SessionPath()

		eg.Go(func() error {
			err := sessionfile.Watch(egCtx, path, cc.Logger, func(s *salesforce.Session) {
				if client.AdoptSession(s) {
					cc.Logger.Info("adopted session from file", slog.String("instance_url", s.InstanceURL))
				}
			})
			if err != nil {
				// Serving continues without live session updates.
				cc.Logger.Warn("session watcher stopped", slog.String("error", err.Error()))
			}

			return nil
		})
	}

	eg.Go(func() error {
		cc.Logger.Info("mcp server listening on stdio", slog.String("version", version))

		err := stdio.Listen(egCtx, os.Stdin, os.Stdout)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mcp stdio server: %w", err)
		}

		// stdin closed: the host is gone, stop the watcher too.
		return context.Canceled
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	cc.Logger.Info("mcp server stopped")

	return nil
}

// connectForServe builds the client, restores a saved session, wires
// persistence, and connects. A failed connect is fatal only when no session
// watcher could later supply a session.
func connectForServe(ctx context.Context, cc *CLIContext) (*salesforce.Client, error) {
	svc := cc.Cfg.ServiceConfig()
	path := cc.Cfg.Session.SessionPath()

	saved := loadSavedSession(cc, path)
	if saved != nil && svc.AccessToken == "" {
		svc.AccessToken = saved.AccessToken
		svc.InstanceURL = saved.InstanceURL
	}

	client := newSalesforceClient(cc, svc)

	if saved != nil {
		client.RestoreSession(saved)
	}

	if cc.Cfg.Session.Persist {
		client.OnSessionChange(func(s *salesforce.Session) {
			if err := sessionfile.Save(path, s, sessionMeta(svc)); err != nil {
				cc.Logger.Warn("could not persist session", slog.String("error", err.Error()))
				return
			}

			cc.Logger.Debug("session persisted", slog.String("path", path))
		})
	}

	err := client.Connect(ctx)
	if err == nil {
		cc.Logger.Info("connected to salesforce",
			slog.String("environment", svc.Environment()),
			slog.String("instance_url", client.Session().InstanceURL),
		)

		return client, nil
	}

	if saved != nil && errors.Is(err, salesforce.ErrAuth) {
		if renewErr := renewSaved(ctx, cc, client, svc, saved, path); renewErr == nil {
			return client, nil
		}
	}

	if !cc.Cfg.Session.Watch {
		return nil, fmt.Errorf("connecting to salesforce: %w", err)
	}

	cc.Logger.Error("not connected; tools will fail until a session is saved by login",
		slog.String("error", err.Error()),
		slog.String("session_file", path),
	)

	return client, nil
}

// renewSaved trades the saved refresh token for a new session after the
// saved access token was rejected. The probe in Connect never renews, so
// this is the only path from an expired saved token to a live session
// without stored passwords.
func renewSaved(
	ctx context.Context, cc *CLIContext, client *salesforce.Client, svc salesforce.ServiceConfig,
	saved *salesforce.Session, path string,
) error {
	if saved.RefreshToken == "" {
		return salesforce.ErrNoRefreshToken
	}

	ex := salesforce.NewExchanger(newHTTPClient(cc.Cfg), cc.Logger)

	renewed, err := ex.Renew(ctx, svc, saved)
	if err != nil {
		cc.Logger.Warn("saved session could not be renewed", slog.String("error", err.Error()))
		return err
	}

	client.AdoptSession(renewed)

	if cc.Cfg.Session.Persist {
		if err := sessionfile.Save(path, renewed, sessionMeta(svc)); err != nil {
			cc.Logger.Warn("could not persist session", slog.String("error", err.Error()))
		}
	}

	cc.Logger.Info("renewed saved session", slog.String("instance_url", renewed.InstanceURL))

	return nil
}

// loadSavedSession returns the session from the session file, or nil when
// there is none or it cannot be read.
func loadSavedSession(cc *CLIContext, path string) *salesforce.Session {
	f, err := sessionfile.Load(path)
	if err != nil {
		cc.Logger.Warn("ignoring session file", slog.String("error", err.Error()))
		return nil
	}

	if f == nil || !f.Session.Valid() {
		return nil
	}

	cc.Logger.Debug("loaded saved session", slog.String("path", path))

	return f.Session
}

func sessionMeta(svc salesforce.ServiceConfig) map[string]string {
	meta := map[string]string{sessionfile.MetaEnvironment: svc.Environment()}
	if svc.Username != "" {
		meta[sessionfile.MetaUsername] = svc.Username
	}

	return meta
}
