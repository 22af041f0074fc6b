package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/salesforce-mcp-go/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides (secrets redacted)",
		RunE:  runConfigShow,
	}
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a commented starter config file",
		RunE:  runConfigInit,
	}
}

// configShowOutput is the JSON schema for `config show --json`.
type configShowOutput struct {
	ConfigPath string        `json:"config_path"`
	FileFound  bool          `json:"file_found"`
	Config     config.Config `json:"config"`
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, configShowOutput{
			ConfigPath: cc.Cfg.ConfigPath,
			FileFound:  cc.Cfg.FileFound,
			Config:     cc.Cfg.Redacted(),
		})
	}

	return config.RenderEffective(cc.Cfg, cc.Stdout)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	path := cc.Flags.ConfigPath
	if path == "" {
		path = os.Getenv(config.EnvConfig)
	}

	if path == "" {
		path = config.DefaultConfigPath()
	}

	if err := config.WriteTemplate(path); err != nil {
		return err
	}

	cc.Statusf("Wrote %s\n", path)

	return nil
}
