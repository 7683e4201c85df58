package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/example/go-lesson-audio/internal/config"
	"github.com/example/go-lesson-audio/internal/server"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	activeCfg config.Config
)

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "lessonaudio",
		Short:         "Render language lessons to timed audio",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			activeCfg = loaded
			setupLogger(loaded.LogLevel)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newPlanCmd())
	cmd.AddCommand(newRenderCmd())
	cmd.AddCommand(newWorkerCmd())
	cmd.AddCommand(newEnqueueCmd())
	cmd.AddCommand(newTimingCmd())
	cmd.AddCommand(newVoiceCmd())
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newMasterCmd())

	return cmd
}

// setupLogger configures the process-wide slog default logger.
func setupLogger(levelStr string) {
	lvl, err := server.ParseLogLevel(levelStr)
	if err != nil {
		lvl = slog.LevelInfo
	}
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}

func requireConfig() (config.Config, error) {
	if activeCfg.Output.Format == "" {
		return config.Config{}, errors.New("configuration not loaded")
	}
	return activeCfg, nil
}
