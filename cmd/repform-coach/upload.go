package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/claude/repform/internal/ingest/landmarks"
	"github.com/claude/repform/internal/upload"
)

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".repform-coach"
	}
	return filepath.Join(home, ".repform-coach")
}

func newUploadCmd(env *cliEnv) *cobra.Command {
	var (
		serverURL string
		apiKey    string
		stateDir  string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "upload <dir>",
		Short: "Send new recordings in a directory to a repform server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if serverURL == "" && !dryRun {
				return fmt.Errorf("--server is required (or use --dry-run)")
			}
			if apiKey == "" {
				apiKey = os.Getenv("REPFORM_API_KEY")
			}
			info, err := os.Stat(args[0])
			if err != nil || !info.IsDir() {
				return fmt.Errorf("%s is not a directory", args[0])
			}

			log := env.logger()
			state, err := upload.OpenStateDB(stateDir)
			if err != nil {
				return err
			}
			defer state.Close()

			var provider *landmarks.Provider
			if dryRun {
				cfg, err := env.loadConfig()
				if err != nil {
					return err
				}
				provider = landmarks.NewProvider(cfg, nil, log)
			}

			client := upload.NewClient(strings.TrimRight(serverURL, "/"), apiKey)
			stats, err := upload.New(client, state, args[0], dryRun, provider, log).Run(cmd.Context())
			printUploadStats(cmd, stats)
			return err
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "repform server URL (e.g. https://repform.tail1234.ts.net)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key for uploads (default $REPFORM_API_KEY)")
	cmd.Flags().StringVar(&stateDir, "state-dir", defaultStateDir(), "directory of the upload state database")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "analyze locally but don't send to server")
	return cmd
}

func printUploadStats(cmd *cobra.Command, stats *upload.Stats) {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w)
	headerColor.Fprintln(w, "=== Upload Summary ===")
	fmt.Fprintf(w, "  Files total:      %d\n", stats.FilesTotal)
	fmt.Fprintf(w, "  Files uploaded:   %d\n", stats.FilesUploaded)
	fmt.Fprintf(w, "  Files skipped:    %d (already uploaded)\n", stats.FilesSkipped)
	fmt.Fprintf(w, "  Files errored:    %d\n", stats.FilesErrored)
	fmt.Fprintf(w, "  Reps detected:    %d\n", stats.RepsDetected)

	if len(stats.Rejected) > 0 {
		fmt.Fprintf(w, "\n  Rejected by server:\n")
		for _, r := range stats.Rejected {
			fmt.Fprintf(w, "    - %s\n", r)
		}
	}
	fmt.Fprintln(w)
}

func newHistoryCmd() *cobra.Command {
	var stateDir string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recordings already uploaded from this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			state, err := upload.OpenStateDB(stateDir)
			if err != nil {
				return err
			}
			defer state.Close()

			list, err := state.List()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, u := range list {
				fmt.Fprintf(w, "%s  %-36s  %3d reps  %s\n",
					u.UploadedAt.Local().Format("2006-01-02 15:04"), u.SessionID, u.Reps, u.Path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&stateDir, "state-dir", defaultStateDir(), "directory of the upload state database")
	return cmd
}
