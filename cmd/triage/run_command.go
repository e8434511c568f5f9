package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"photo-triage/internal/domain"
	"photo-triage/internal/jobs"
	"photo-triage/internal/logging"
	"photo-triage/internal/triage"
	"photo-triage/internal/tui"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var threshold float64
	var mode string
	var analyzer string
	var plain bool

	cmd := &cobra.Command{
		Use:   "run <folder>",
		Short: "Copy the sharp photos of a folder into a new Selected_Good folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := ctx.ensureSettings()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("mode") {
				settings.Mode = mode
			}
			if cmd.Flags().Changed("analyzer") {
				settings.AnalyzerPath = analyzer
				settings.AnalyzerArgs = nil
			}
			if threshold <= 0 {
				threshold = settings.Threshold
			}

			out := cmd.OutOrStdout()
			interactive := !plain && logging.IsTerminal(out)

			minLevel := ""
			if interactive {
				minLevel = "error"
			}
			logger, err := ctx.logger(cmd.ErrOrStderr(), minLevel)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			coord := ctx.coordinator(logger)
			opts := jobs.RunOptions{
				TargetPath: args[0],
				Threshold:  threshold,
				Settings:   settings,
			}

			var summary triage.Summary
			if interactive {
				summary, err = runInteractive(runCtx, coord, opts)
			} else {
				summary, err = runPlain(runCtx, coord, opts, out)
			}

			if summary.OutputPath != "" {
				fmt.Fprintln(out, renderSummary(summary))
			}
			return err
		},
	}

	cmd.Flags().Float64VarP(&threshold, "threshold", "t", 0, "Blur threshold (default from settings)")
	cmd.Flags().StringVar(&mode, "mode", "", "Analyzer mode: daemon, oneshot or auto")
	cmd.Flags().StringVar(&analyzer, "analyzer", "", "Analyzer executable, overriding settings")
	cmd.Flags().BoolVar(&plain, "plain", false, "Print one line per event instead of the progress view")
	return cmd
}

func runPlain(ctx context.Context, coord *jobs.Coordinator, opts jobs.RunOptions, out io.Writer) (triage.Summary, error) {
	opts.OnEvent = func(ev jobs.Event) {
		fmt.Fprintln(out, tui.FormatEvent(ev.Event, false))
	}
	return coord.Run(ctx, opts)
}

func runInteractive(ctx context.Context, coord *jobs.Coordinator, opts jobs.RunOptions) (triage.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan domain.ProgressEvent, 64)
	program := tea.NewProgram(tui.NewModel(opts.TargetPath, events))

	// The terminal is in raw mode while the view runs, so ctrl+c arrives as a
	// key press. Leaving the view early stops the run.
	uiDone := make(chan struct{})
	go func() {
		_, _ = program.Run()
		cancel()
		close(uiDone)
	}()

	opts.OnEvent = func(ev jobs.Event) {
		select {
		case events <- ev.Event:
		case <-uiDone:
		}
	}
	summary, err := coord.Run(ctx, opts)

	close(events)
	<-uiDone
	return summary, err
}

func renderSummary(summary triage.Summary) string {
	rows := [][]string{
		{"Kept", strconv.Itoa(summary.Kept)},
		{"Rejected", strconv.Itoa(summary.Processed - summary.Kept)},
		{"Processed", fmt.Sprintf("%d of %d", summary.Processed, summary.Total)},
		{"Mode", summary.Mode},
		{"Output folder", summary.OutputPath},
	}
	return renderTable([]string{"Result", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}
