package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/example/go-lesson-audio/internal/batch"
	"github.com/example/go-lesson-audio/internal/media"
	"github.com/example/go-lesson-audio/internal/pipeline"
	"github.com/example/go-lesson-audio/internal/script"
	"github.com/example/go-lesson-audio/internal/segment"
	"github.com/example/go-lesson-audio/internal/tts"
	"github.com/example/go-lesson-audio/internal/voice"
	"github.com/spf13/cobra"
)

func newRenderCmd() *cobra.Command {
	var scriptPath string
	var lessonID string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "render [job.json|job.yaml|-]",
		Short: "Render a lesson job locally and print the results",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			var req pipeline.JobRequest
			switch {
			case scriptPath != "" && len(args) > 0:
				return errors.New("pass either a job file or --script, not both")
			case scriptPath != "":
				s, err := script.Load(scriptPath)
				if err != nil {
					return err
				}
				req = pipeline.JobRequest{LessonID: lessonID, Script: &s}
			case len(args) == 1:
				req, err = readJobRequest(args[0], cmd.InOrStdin())
				if err != nil {
					return err
				}
			default:
				return errors.New("a job file or --script is required")
			}
			applyLessonDefaults(&req, cfg.Lesson)

			a, err := newApp(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.tools.AssertReady(); err != nil {
				return err
			}

			report := func(pct int) {
				if !quiet {
					_, _ = fmt.Fprintf(os.Stderr, "\rrendering %3d%%", pct)
				}
			}
			results, err := a.runner.Run(cmd.Context(), req, report)
			if !quiet {
				_, _ = fmt.Fprintln(os.Stderr)
			}
			if err != nil {
				return mapRenderError(err)
			}
			return writeJSON(cmd.OutOrStdout(), results)
		},
	}

	cmd.Flags().StringVar(&scriptPath, "script", "", "Render an explicit unit script (json|yaml) instead of a lesson job")
	cmd.Flags().StringVar(&lessonID, "lesson-id", "", "Lesson id used for --script output names")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")

	return cmd
}

// mapRenderError adds an operator hint to the errors a render commonly
// fails with.
func mapRenderError(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("render canceled: %w", err)
	}

	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("render failed: a required binary is missing; check --ffmpeg-path and --pocket-executable-path: %w", err)
	}

	var timingErr *segment.TimingError
	if errors.As(err, &timingErr) {
		return fmt.Errorf("render failed: backend timing marks did not match the batched units: %w", err)
	}

	var backendErr *tts.BackendError
	if errors.As(err, &backendErr) {
		return fmt.Errorf("render failed: %s backend error; check credentials and quota: %w", backendErr.Backend, err)
	}

	var toolErr *media.ToolError
	if errors.As(err, &toolErr) {
		return fmt.Errorf("render failed: %s %s returned an error; see output above: %w", toolErr.Tool, toolErr.Op, err)
	}

	if errors.Is(err, voice.ErrUnknownVoice) {
		return fmt.Errorf("render failed: voice not in the catalog; run `lessonaudio voice list`: %w", err)
	}

	if errors.Is(err, batch.ErrUnitTooLarge) {
		return fmt.Errorf("render failed: split the unit text or raise the backend max_chars: %w", err)
	}

	return err
}
