package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/claude/repform/internal/feedback"
	"github.com/claude/repform/internal/importer"
	"github.com/claude/repform/internal/ingest/landmarks"
	"github.com/claude/repform/internal/models"
	"github.com/claude/repform/internal/session"
)

var (
	headerColor = color.New(color.Bold)
	goodColor   = color.New(color.FgGreen)
	badColor    = color.New(color.FgRed)
)

func newAnalyzeCmd(env *cliEnv) *cobra.Command {
	var (
		exercise string
		asJSON   bool
		quiet    bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <recording>",
		Short: "Run a session over a recording with live form feedback",
		Long:  "Analyze reads an NDJSON landmark recording (optionally gzip-compressed), prints form feedback as it is produced and a summary at the end. Use - to read from stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := env.loadConfig()
			if err != nil {
				return err
			}
			log := env.logger()

			kind, err := models.ParseExerciseKind(exercise)
			if err != nil {
				return err
			}

			var in io.Reader = cmd.InOrStdin()
			name := "stdin"
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
				name = filepath.Base(args[0])
				if !kind.Known() {
					kind = importer.ExerciseFromName(name)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var pub feedback.Publisher
			var disp *feedback.Dispatcher
			if !quiet {
				var sink feedback.Sink = feedback.NewConsoleSink(cmd.ErrOrStderr())
				if cfg.Feedback.Webhook != "" {
					sink = feedback.MultiSink{sink, feedback.NewWebhookSink(cfg.Feedback.Webhook)}
				}
				disp = feedback.NewDispatcher(sink, cfg.Feedback, log)
				pub = disp
			}

			provider := landmarks.NewProvider(cfg, nil, log)
			sum, err := provider.Analyze(ctx, in, landmarks.Options{
				Source:    name,
				Exercise:  kind,
				Publisher: pub,
				OnFrame: func(fr session.FrameResult) {
					if fr.Rep != nil {
						log.Debug("rep closed", "number", fr.Rep.Number, "quality", fr.Rep.Quality)
					}
				},
			})
			if disp != nil {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if cerr := disp.Close(closeCtx); cerr != nil {
					log.Warn("feedback not fully delivered", "error", cerr, "dropped", disp.Dropped())
				}
				cancel()
			}
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(sum)
			}
			printSummary(cmd.OutOrStdout(), name, sum)
			return nil
		},
	}

	cmd.Flags().StringVarP(&exercise, "exercise", "e", "", "force the exercise (squat, pushup, lunge); default auto-detect")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress live feedback")
	return cmd
}

func printSummary(w io.Writer, name string, sum models.SessionSummary) {
	fmt.Fprintln(w)
	headerColor.Fprintf(w, "=== %s ===\n", name)
	fmt.Fprintf(w, "  Exercise:        %s (%s)\n", sum.Exercise, sum.Status)
	fmt.Fprintf(w, "  Frames:          %d (%d skipped)\n", sum.FramesTotal, sum.FramesSkipped)
	fmt.Fprintf(w, "  Reps:            %d (%d aborted)\n", sum.TotalReps, sum.AbortedReps)
	fmt.Fprintf(w, "  Mean quality:    %.1f\n", sum.MeanQuality)

	if len(sum.Reps) > 0 {
		fmt.Fprintln(w)
		for _, rep := range sum.Reps {
			c := goodColor
			if len(rep.Faults) > 0 {
				c = badColor
			}
			c.Fprintf(w, "  #%-3d %5.1f", rep.Number, rep.Quality)
			fmt.Fprintf(w, "  depth %.0f  %.1fs", rep.MinDepth, rep.Duration.Seconds())
			for _, f := range rep.Faults {
				fmt.Fprintf(w, "  [%s]", f.Category)
			}
			fmt.Fprintln(w)
		}
	}

	if len(sum.FaultHistogram) > 0 {
		fmt.Fprintf(w, "\n  Faults:\n")
		cats := make([]string, 0, len(sum.FaultHistogram))
		for c := range sum.FaultHistogram {
			cats = append(cats, c)
		}
		slices.Sort(cats)
		for _, c := range cats {
			fmt.Fprintf(w, "    - %-24s %d\n", c, sum.FaultHistogram[c])
		}
	}
	fmt.Fprintln(w)
}
