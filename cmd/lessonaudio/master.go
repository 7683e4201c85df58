package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/example/go-lesson-audio/internal/media"
	"github.com/example/go-lesson-audio/internal/sweeten"
	"github.com/spf13/cobra"
)

func newMasterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "master <file>",
		Short: "Apply the mastering chain to an already encoded file",
		Long: "Renders run the mastering chain inside the final encode. This command applies the same\n" +
			"chain to an existing file and prints the path of the mastered copy.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if _, err := os.Stat(args[0]); err != nil {
				return fmt.Errorf("master: %w", err)
			}

			tools := media.NewFFmpeg(media.Config{
				FFmpegPath:  cfg.Media.FFmpegPath,
				FFprobePath: cfg.Media.FFprobePath,
				Timeout:     time.Duration(cfg.Media.Timeout) * time.Second,
			}, slog.Default())
			sw := sweeten.New(masteringConfig(cfg.Mastering), tools)

			out, err := sw.MasterFinal(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}
