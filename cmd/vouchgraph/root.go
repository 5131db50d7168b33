package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vouchgraph/internal/config"
)

var version = "0.1.0"

// options are the persistent flags shared by every command
type options struct {
	configPath string
	envFile    string

	cfg     *config.Config
	cfgPath string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:     "vouchgraph",
		Short:   "vouchgraph - the Union vouching network as an interactive graph",
		Version: version,
		// config subcommands manage the file themselves
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Parent() != nil && cmd.Parent().Name() == "config" {
				return nil
			}
			return opts.load()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("vouchgraph {{ .Version }}\n")

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (YAML or TOML)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Environment file loaded before the config")

	cmd.AddCommand(
		serveCmd(opts),
		snapshotCmd(opts),
		statsCmd(opts),
		configCmd(opts),
	)
	return cmd
}

func (o *options) load() error {
	if err := config.LoadEnvFile(o.envFile); err != nil {
		return err
	}

	var err error
	if o.configPath != "" {
		o.cfg, o.cfgPath, err = config.LoadFromPath(o.configPath)
	} else {
		o.cfg, o.cfgPath, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return nil
}

// newLogger builds the process logger. The returned level can be changed
// while the logger is in use.
func newLogger(cfg config.LogConfig) (*zap.Logger, zap.AtomicLevel, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, level, fmt.Errorf("log level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level

	logger, err := zc.Build()
	if err != nil {
		return nil, level, fmt.Errorf("build logger: %w", err)
	}
	return logger, level, nil
}
