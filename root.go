package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/salesforce-mcp-go/internal/config"
	"github.com/tonimelisma/salesforce-mcp-go/internal/salesforce"
)

// version is set at build time via ldflags.
var version = "dev"

// CLIFlags holds the global persistent flags.
type CLIFlags struct {
	ConfigPath string
	JSON       bool
	Verbose    bool
	Debug      bool
	Quiet      bool
	Sandbox    bool
}

// CLIContext carries the resolved configuration and logger to subcommands.
// It is built once by the root PersistentPreRunE.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Resolved
	Logger *slog.Logger

	// Stdout and Stderr are swapped out by tests.
	Stdout io.Writer
	Stderr io.Writer
}

type cliContextKey struct{}

// skipConfigCommands lists commands that must run without a valid
// configuration: "config init" bootstraps the file that would otherwise fail
// to load.
var skipConfigCommands = map[string]bool{
	"salesforce-mcp-go config init": true,
}

// newRootCmd builds the fully-assembled root command with all subcommands
// registered. Called once from main().
func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:   "salesforce-mcp-go",
		Short: "Salesforce gateway for MCP agents",
		Long: "An MCP server that gives AI agents authenticated access to a Salesforce org:\n" +
			"SOQL/SOSL queries, metadata, record CRUD, and Tooling/Apex REST pass-through.",
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc := &CLIContext{Flags: flags, Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()}

			if !skipConfigCommands[cmd.CommandPath()] {
				resolved, err := loadConfig(cmd, &flags)
				if err != nil {
					return err
				}

				cc.Cfg = resolved
			}

			cc.Logger = buildLogger(cc.Cfg, flags, cc.Stderr)
			cmd.SetContext(withCLIContext(cmd.Context(), cc))

			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "config file path")
	pf.BoolVar(&flags.JSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "enable info logging")
	pf.BoolVar(&flags.Debug, "debug", false, "enable debug logging")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")
	pf.BoolVar(&flags.Sandbox, "sandbox", false, "authenticate against the sandbox login host")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newDescribeCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the four-layer
// override chain. --sandbox is passed only when explicitly set so that an
// absent flag does not override sandbox = true in the file.
func loadConfig(cmd *cobra.Command, flags *CLIFlags) (*config.Resolved, error) {
	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}

	if cmd.Flags().Changed("sandbox") {
		sandbox := flags.Sandbox
		cli.Sandbox = &sandbox
	}

	// Config loading happens before the configured logger exists.
	bootstrap := buildLogger(nil, *flags, cmd.ErrOrStderr())

	resolved, err := config.Resolve(config.ReadEnvOverrides(bootstrap), cli, bootstrap)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return resolved, nil
}

// buildLogger creates the process logger. The config-file level is the
// baseline; --debug, --verbose and --quiet override it because CLI flags
// always win. Logs go to w (stderr), never stdout, which carries MCP frames.
func buildLogger(cfg *config.Resolved, flags CLIFlags, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	format := "auto"

	if cfg != nil {
		level = parseLevel(cfg.Logging.LogLevel)
		format = cfg.Logging.LogFormat
	}

	switch {
	case flags.Debug:
		level = slog.LevelDebug
	case flags.Verbose:
		level = slog.LevelInfo
	case flags.Quiet:
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if useJSONLogs(format, w) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// useJSONLogs resolves the "auto" format: text on a terminal, JSON when
// stderr is captured by an MCP host or a log collector.
func useJSONLogs(format string, w io.Writer) bool {
	switch format {
	case "json":
		return true
	case "text":
		return false
	}

	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	fd := f.Fd()

	return !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
}

func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// mustCLIContext returns the CLIContext installed by PersistentPreRunE. It
// panics if called from a command tree that skipped the pre-run, which is a
// programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cc == nil {
		panic("BUG: CLIContext not initialized")
	}

	return cc
}

// newHTTPClient returns the HTTP client shared by the identity exchange and
// the REST calls. A zero timeout leaves requests bounded by their context.
func newHTTPClient(cfg *config.Resolved) *http.Client {
	return &http.Client{Timeout: cfg.Network.Timeout()}
}

// newSalesforceClient builds the core client from the resolved config.
func newSalesforceClient(cc *CLIContext, svc salesforce.ServiceConfig) *salesforce.Client {
	return salesforce.NewClient(svc, newHTTPClient(cc.Cfg), cc.Logger, userAgent(cc.Cfg))
}

func userAgent(cfg *config.Resolved) string {
	if cfg.Network.UserAgent != "" {
		return cfg.Network.UserAgent
	}

	return "salesforce-mcp-go/" + version
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
