package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/claude/repform/internal/config"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	var (
		configPath string
		verbose    bool
	)

	rootCmd := &cobra.Command{
		Use:           "repform-coach",
		Short:         "Analyze exercise recordings and coach form",
		Long:          "repform-coach runs the rep counting and form scoring engine on landmark recordings, uploads them to a repform server and bridges the server's MCP tools over stdio.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: built-in example config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	env := &cliEnv{
		loadConfig: func() (*config.Config, error) {
			if configPath == "" {
				return config.Example()
			}
			return config.Load(configPath)
		},
		logger: func() *slog.Logger {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		},
	}

	rootCmd.AddCommand(
		newAnalyzeCmd(env),
		newUploadCmd(env),
		newHistoryCmd(),
		newMCPCmd(env),
		newConfigCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cliEnv carries the persistent flags into subcommands. Both functions are
// evaluated lazily, after flag parsing.
type cliEnv struct {
	loadConfig func() (*config.Config, error)
	logger     func() *slog.Logger
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the documented example configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := cmd.OutOrStdout().Write(config.ExampleYAML())
			return err
		},
	}
}
