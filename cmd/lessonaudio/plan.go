package main

import (
	"github.com/example/go-lesson-audio/internal/pipeline"
	"github.com/spf13/cobra"
)

func newPlanCmd() *cobra.Command {
	var scripts bool

	cmd := &cobra.Command{
		Use:   "plan <job.json|job.yaml|->",
		Short: "Print the lesson schedule for a job without synthesizing",
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

			if scripts {
				out, err := pipeline.Scripts(req)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}

			plans, err := pipeline.Plans(req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), plans)
		},
	}

	cmd.Flags().BoolVar(&scripts, "scripts", false, "Print the rendered unit scripts instead of the schedule")
	return cmd
}
