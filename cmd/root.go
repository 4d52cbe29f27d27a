package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentic-research/jflat/api"
	"github.com/agentic-research/jflat/internal/configfile"
)

var (
	configPath  string
	actionField string
	logLevel    string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to action configuration (.yaml, .json or .hcl)")
	rootCmd.PersistentFlags().StringVar(&actionField, "action-field", "", "Path of the action type discriminator (overrides the config file)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn or error")
}

var rootCmd = &cobra.Command{
	Use:           "jflat",
	Short:         "jflat: simplify nested JSON documents into flat, typed records",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(logLevel)); err != nil {
			return fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
		return nil
	},
}

// loadRegistry reads the configuration file named by --config, falling back
// to ~/.agentic-research/jflat/jflat.yaml.
func loadRegistry() (*api.Registry, error) {
	path := configPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home dir: %w", err)
		}
		path = filepath.Join(home, ".agentic-research", "jflat", "jflat.yaml")
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("no --config given and %s not found", path)
		}
	}

	reg, err := configfile.Load(path)
	if err != nil {
		return nil, err
	}
	if actionField != "" {
		reg.ActionTypeField = actionField
	}
	slog.Debug("loaded configuration", "path", path, "actions", strings.Join(reg.ActionTypes(), ","))
	return reg, nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
