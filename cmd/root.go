// Package cmd implements the pairlink command line.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/pairlink/internal/config"
)

// Version is set at build time with -ldflags.
var Version = "0.1.0"

const defaultConfigPath = "~/.pairlink/config.json5"

var (
	cfgFile string
	verbose bool
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pairlink",
		Short:         "Device-to-device library pairing service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default "+defaultConfigPath+", env PAIRLINK_CONFIG)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(gatewayCmd())
	root.AddCommand(pairingCmd())
	root.AddCommand(librariesCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if p := os.Getenv("PAIRLINK_CONFIG"); p != "" {
		return p
	}
	return config.ExpandHome(defaultConfigPath)
}

// setupLogging installs the default slog handler from the config file.
// Invalid config falls back to text at info level; commands report the
// load error themselves.
func setupLogging() {
	logCfg := config.Default().Log
	if cfg, err := config.Load(resolveConfigPath()); err == nil {
		logCfg = cfg.Log
	}
	level := logCfg.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if logCfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
