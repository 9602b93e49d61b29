package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"pkgsweep/internal/config"
	"pkgsweep/internal/quarantine"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigSetCommand(ctx))
	configCmd.AddCommand(newConfigValidateCommand())
	configCmd.AddCommand(newConfigInitCommand())

	return configCmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return writeJSON(cmd, cfg)
		},
	}
}

func newConfigSetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "set <key> <value>",
		Short:       "Update one configuration value and rewrite the file",
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var configPath string
			if ctx.configFlag != nil {
				configPath = strings.TrimSpace(*ctx.configFlag)
			}
			cfg, path, _, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			key, value := args[0], args[1]

			// Quarantine retention limits live in their own document
			// beside the quarantine index, not in the toml file.
			if strings.HasPrefix(key, "quarantine.") {
				if err := applyQuarantineValue(cfg, key, value); err != nil {
					return err
				}
				return writeJSON(cmd, map[string]any{
					"status": "ok",
					"key":    key,
					"value":  value,
				})
			}

			if err := applyConfigValue(cfg, key, value); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			encoded, err := toml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := os.WriteFile(path, encoded, 0o644); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			return writeJSON(cmd, map[string]any{
				"status": "ok",
				"key":    key,
				"value":  value,
				"path":   path,
			})
		},
	}
}

func applyConfigValue(cfg *config.Config, key, value string) error {
	switch key {
	case "cache.max_packages":
		return setInt(&cfg.Cache.MaxPackages, value)
	case "cache.max_size_gib":
		return setInt64(&cfg.Cache.MaxSizeGiB, value)
	case "optimize.preserve_days":
		return setInt(&cfg.Optimize.PreserveDays, value)
	case "optimize.enable_predictor":
		return setBool(&cfg.Optimize.EnablePredictor, value)
	case "optimize.enable_dedup":
		return setBool(&cfg.Optimize.EnableDedup, value)
	case "logging.format":
		cfg.Logging.Format = value
		return nil
	case "logging.level":
		cfg.Logging.Level = value
		return nil
	case "paths.data_dir":
		cfg.Paths.DataDir = value
		return nil
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
}

// applyQuarantineValue updates the quarantine retention document so every
// future invocation's cleanup pass sees the new limits.
func applyQuarantineValue(cfg *config.Config, key, value string) error {
	ledger := quarantine.NewLedger(cfg.Paths.QuarantineDir, nil)
	qcfg := ledger.LoadConfig()

	switch key {
	case "quarantine.max_size_gb":
		if err := setInt64(&qcfg.MaxSizeGB, value); err != nil {
			return err
		}
	case "quarantine.retention_days":
		if err := setInt(&qcfg.RetentionDays, value); err != nil {
			return err
		}
	case "quarantine.max_entries":
		if err := setInt(&qcfg.MaxEntries, value); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown config key %q", key)
	}

	return ledger.SaveConfig(qcfg)
}

func setInt(dst *int, value string) error {
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("expected integer, got %q", value)
	}
	*dst = parsed
	return nil
}

func setInt64(dst *int64, value string) error {
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("expected integer, got %q", value)
	}
	*dst = parsed
	return nil
}

func setBool(dst *bool, value string) error {
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("expected boolean, got %q", value)
	}
	*dst = parsed
	return nil
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			return writeJSON(cmd, map[string]any{
				"status": "ok",
				"path":   target,
			})
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load("")
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			return writeJSON(cmd, map[string]any{
				"status":      "ok",
				"config_path": path,
				"exists":      exists,
			})
		},
	}
}
