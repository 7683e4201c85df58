package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/go-lesson-audio/internal/queue"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newEnqueueCmd() *cobra.Command {
	var jobID string
	var wait bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "enqueue <job.json|job.yaml|->",
		Short: "Submit a render job to the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			req, err := readJobRequest(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			applyLessonDefaults(&req, cfg.Lesson)
			if jobID != "" {
				req.JobID = jobID
			}

			ctx := cmd.Context()
			client, err := queue.Connect(ctx, queueConfig(cfg.Queue), slog.Default())
			if err != nil {
				return err
			}
			defer client.Close()

			var watch *queue.ProgressWatch
			if wait {
				if req.JobID == "" {
					req.JobID = uuid.NewString()
				}
				if watch, err = client.SubscribeProgress(req.JobID); err != nil {
					return err
				}
			}

			id, err := client.Enqueue(ctx, req)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), id)

			if !wait {
				return nil
			}
			wctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			var final queue.Event
			err = watch.Wait(wctx, func(ev queue.Event) {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s %s %d%%\n", ev.JobID, ev.State, ev.Percent)
				final = ev
			})
			if err != nil {
				return fmt.Errorf("wait for job %s: %w", id, err)
			}
			if final.State == queue.StateFailed {
				return errors.New("job failed: " + final.Error)
			}
			return writeJSON(cmd.OutOrStdout(), final.Results)
		},
	}

	cmd.Flags().StringVar(&jobID, "job-id", "", "Job id (generated when empty)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Follow progress until the job finishes")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "Maximum time to wait with --wait")

	return cmd
}
