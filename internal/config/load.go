package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions.
func Load(path string, logger *slog.Logger) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	logger.Debug("loaded config file",
		slog.String("path", path),
		slog.Int("keys", len(md.Keys())),
	)

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values. found reports whether the file
// existed.
func LoadOrDefault(path string, logger *slog.Logger) (cfg *Config, found bool, err error) {
	if path == "" {
		return DefaultConfig(), false, nil
	}

	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		logger.Debug("config file not found, using defaults", slog.String("path", path))

		return DefaultConfig(), false, nil
	}

	cfg, err = Load(path, logger)
	if err != nil {
		return nil, true, err
	}

	return cfg, true, nil
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Resolved, error) {
	// 1. Resolve config path: CLI > env > default
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	// 2. Load config file (defaults if no file exists)
	cfg, found, err := LoadOrDefault(cfgPath, logger)
	if err != nil {
		return nil, err
	}

	// 3. Apply env overrides
	env.apply(&cfg.Salesforce)

	// 4. Apply CLI overrides (pointer fields: nil = not specified)
	if cli.Sandbox != nil {
		cfg.Salesforce.Sandbox = *cli.Sandbox
	}

	// 5. Validate the layered result; env values were never checked.
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	logger.Debug("config resolved",
		slog.String("path", cfgPath),
		slog.Bool("file_found", found),
		slog.Bool("sandbox", cfg.Salesforce.Sandbox),
		slog.String("api_version", cfg.Salesforce.APIVersion),
	)

	return &Resolved{Config: *cfg, ConfigPath: cfgPath, FileFound: found}, nil
}
