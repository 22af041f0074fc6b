package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/salesforce-mcp-go/internal/salesforce"
	"github.com/tonimelisma/salesforce-mcp-go/internal/sessionfile"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Exchange the configured username and password for a saved session",
		Long: `Run the OAuth password grant with the configured connected app and save the
resulting session (refresh token included) for "serve" to use.`,
		RunE: runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved session",
		RunE:  runLogout,
	}
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the saved session and whether it still works",
		RunE:  runStatus,
	}

	cmd.Flags().Bool("check", false, "probe the org with the saved session")

	return cmd
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	svc := cc.Cfg.ServiceConfig()

	if svc.ClientID == "" || svc.ClientSecret == "" || !svc.HasPasswordCredentials() {
		return errors.New("login needs client_id, client_secret, username and password " +
			"(config file or SALESFORCE_* environment variables)")
	}

	cc.Logger.Info("login started",
		slog.String("environment", svc.Environment()),
		slog.String("username", svc.Username),
	)

	ex := salesforce.NewExchanger(newHTTPClient(cc.Cfg), cc.Logger)

	sess, err := ex.Exchange(cmd.Context(), svc)
	if err != nil {
		return err
	}

	path := cc.Cfg.Session.SessionPath()
	if err := sessionfile.Save(path, sess, sessionMeta(svc)); err != nil {
		return err
	}

	cc.Logger.Info("login successful", slog.String("session_file", path))
	cc.Statusf("Logged in to %s (%s). Session saved to %s\n", sess.InstanceURL, svc.Environment(), path)

	if sess.RefreshToken == "" {
		cc.Statusf("Note: no refresh token was issued; enable the refresh_token scope on the connected app " +
			"to let the server renew expired sessions.\n")
	}

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	path := cc.Cfg.Session.SessionPath()

	removed, err := sessionfile.Remove(path)
	if err != nil {
		return err
	}

	if !removed {
		cc.Statusf("No saved session.\n")
		return nil
	}

	cc.Logger.Info("logout successful", slog.String("session_file", path))
	cc.Statusf("Logged out. Removed %s\n", path)

	return nil
}

// statusOutput is the JSON schema for `status --json`.
type statusOutput struct {
	SessionFile  string    `json:"session_file"`
	LoggedIn     bool      `json:"logged_in"`
	InstanceURL  string    `json:"instance_url,omitempty"`
	Environment  string    `json:"environment,omitempty"`
	Username     string    `json:"username,omitempty"`
	RefreshToken bool      `json:"refresh_token"`
	SavedAt      time.Time `json:"saved_at,omitzero"`
	Check        string    `json:"check,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	path := cc.Cfg.Session.SessionPath()

	f, err := sessionfile.Load(path)
	if err != nil {
		return err
	}

	out := statusOutput{SessionFile: path}

	if f != nil && f.Session.Valid() {
		out.LoggedIn = true
		out.InstanceURL = f.Session.InstanceURL
		out.Environment = f.Meta[sessionfile.MetaEnvironment]
		out.Username = f.Meta[sessionfile.MetaUsername]
		out.RefreshToken = f.Session.RefreshToken != ""
		out.SavedAt = f.SavedAt

		if check, _ := cmd.Flags().GetBool("check"); check {
			out.Check = checkSession(cmd.Context(), cc, f.Session)
		}
	}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, out)
	}

	printStatusText(cc, &out)

	return nil
}

// checkSession probes the org with the saved access token. It reports
// "ok", "expired", or the failure text; the file is not modified.
func checkSession(ctx context.Context, cc *CLIContext, s *salesforce.Session) string {
	svc := cc.Cfg.ServiceConfig()
	svc.AccessToken = s.AccessToken
	svc.InstanceURL = s.InstanceURL
	// Probe only the token: never fall back to a password exchange.
	svc.Username, svc.Password = "", ""

	client := newSalesforceClient(cc, svc)

	err := client.Connect(ctx)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, salesforce.ErrAuth):
		return "expired"
	default:
		return err.Error()
	}
}

func printStatusText(cc *CLIContext, out *statusOutput) {
	w := cc.Stdout

	if !out.LoggedIn {
		fmt.Fprintf(w, "Not logged in (no session at %s)\n", out.SessionFile)
		return
	}

	fmt.Fprintf(w, "Instance:      %s\n", out.InstanceURL)

	if out.Environment != "" {
		fmt.Fprintf(w, "Environment:   %s\n", out.Environment)
	}

	if out.Username != "" {
		fmt.Fprintf(w, "Username:      %s\n", out.Username)
	}

	fmt.Fprintf(w, "Refresh token: %s\n", yesNo(out.RefreshToken))

	if !out.SavedAt.IsZero() {
		fmt.Fprintf(w, "Saved:         %s\n", out.SavedAt.Local().Format(time.RFC1123))
	}

	fmt.Fprintf(w, "Session file:  %s\n", out.SessionFile)

	if out.Check != "" {
		fmt.Fprintf(w, "Check:         %s\n", out.Check)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}

	return "no"
}
