package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"text/tabwriter"

	pockettts "github.com/MeKo-Christian/go-call-pocket-tts"
	"github.com/example/go-lesson-audio/internal/voice"
	"github.com/spf13/cobra"
)

// exportVoice is swapped in tests.
var exportVoice = pockettts.ExportVoice

func newVoiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voice",
		Short: "Inspect the voice catalog and export local voices",
	}

	cmd.AddCommand(newVoiceListCmd())
	cmd.AddCommand(newVoiceExportCmd())

	return cmd
}

func newVoiceListCmd() *cobra.Command {
	var language string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog voices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			catalog, err := voice.Load(cfg.Voices.Manifest)
			if err != nil {
				return err
			}

			voices := catalog.ListVoices()
			if language != "" {
				voices = catalog.ForLanguage(language)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tPROVIDER\tLANGUAGE\tGENDER\tNAME")
			for _, v := range voices {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", v.ID, v.Provider, v.LanguageCode, v.Gender, v.Name)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&language, "language", "", "Only voices for this language (e.g. ja-JP)")

	return cmd
}

func newVoiceExportCmd() *cobra.Command {
	var audioPath string
	var outPath string
	var id string
	var language string
	var license string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a pocket voice embedding (.safetensors) from a WAV prompt",
		Long: "Export a pocket voice embedding (.safetensors) from a WAV prompt.\n\n" +
			"This requires a Python pocket-tts installation.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if strings.TrimSpace(audioPath) == "" {
				return errors.New("--audio is required")
			}

			if strings.TrimSpace(outPath) == "" {
				return errors.New("--out is required")
			}

			if _, err := os.Stat(audioPath); err != nil {
				return fmt.Errorf("read --audio %q: %w", audioPath, err)
			}

			err = exportVoice(cmd.Context(), audioPath, outPath, &pockettts.ExportVoiceOptions{
				Config:         cfg.Pocket.ConfigPath,
				Quiet:          cfg.Pocket.Quiet,
				ExecutablePath: cfg.Pocket.ExecutablePath,
				LogWriter:      cmd.ErrOrStderr(),
			})
			if err != nil {
				var notFound *pockettts.ErrExecutableNotFound
				if errors.As(err, &notFound) || errors.Is(err, exec.ErrNotFound) {
					return fmt.Errorf(
						"voice export requires the pocket-tts CLI (Python tooling) on PATH or --pocket-executable-path: %w",
						err,
					)
				}

				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, "voice export completed")
			_, _ = fmt.Fprintf(out, "Suggested manifest entry:\n")
			_, _ = fmt.Fprintf(out, "- id: %s\n  provider: pocket\n  language: %s\n  path: %s\n  license: %s\n",
				id, language, outPath, license)

			return nil
		},
	}

	cmd.Flags().StringVar(&audioPath, "audio", "", "Input speaker audio WAV path")
	cmd.Flags().StringVar(&outPath, "out", "", "Output voice .safetensors path")
	cmd.Flags().StringVar(&id, "id", "custom-voice", "Voice ID for suggested manifest entry")
	cmd.Flags().StringVar(&language, "language", "en-US", "Language code for suggested manifest entry")
	cmd.Flags().StringVar(&license, "license", "unknown", "License label for suggested manifest entry")

	return cmd
}
