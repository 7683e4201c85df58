package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/go-lesson-audio/internal/store"
	"github.com/spf13/cobra"
)

func newTimingCmd() *cobra.Command {
	var lessonID string

	cmd := &cobra.Command{
		Use:   "timing [job-id]",
		Short: "Print a stored timing table, or list the jobs of a lesson",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if cfg.Store.Path == "" {
				return errors.New("timing requires --store-path")
			}
			if (len(args) == 1) == (lessonID != "") {
				return errors.New("pass either a job id or --lesson")
			}

			st, err := store.Open(cmd.Context(), cfg.Store.Path, slog.Default())
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			if lessonID != "" {
				ids, err := st.ListByLesson(cmd.Context(), lessonID)
				if err != nil {
					return err
				}
				for _, id := range ids {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			}

			r, err := st.LoadTiming(cmd.Context(), args[0])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no render stored for job %q", args[0])
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), r)
		},
	}

	cmd.Flags().StringVar(&lessonID, "lesson", "", "List job ids rendered for this lesson")

	return cmd
}
