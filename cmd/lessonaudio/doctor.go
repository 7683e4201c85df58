package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/example/go-lesson-audio/internal/config"
	"github.com/example/go-lesson-audio/internal/doctor"
	"github.com/example/go-lesson-audio/internal/media"
	"github.com/example/go-lesson-audio/internal/queue"
	"github.com/example/go-lesson-audio/internal/tts"
	"github.com/example/go-lesson-audio/internal/voice"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	var services bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local environment and backend checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			dcfg, cleanup := doctorConfig(ctx, cfg, services)
			defer cleanup()

			result := doctor.Run(ctx, dcfg, out)
			if result.Failed() {
				for _, f := range result.Failures() {
					// #nosec G705 -- Writes plain diagnostic text to stderr for CLI output, not HTML rendering.
					fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(out, "doctor checks passed")

			return nil
		},
	}

	cmd.Flags().BoolVar(&services, "services", false, "Also probe NATS and Redis")

	return cmd
}

func doctorConfig(ctx context.Context, cfg config.Config, services bool) (doctor.Config, func()) {
	tools := media.NewFFmpeg(media.Config{FFmpegPath: cfg.Media.FFmpegPath, FFprobePath: cfg.Media.FFprobePath}, nil)
	var cleanup []func()

	dcfg := doctor.Config{
		FFmpegVersion:  func() (string, error) { return tools.Version(ctx) },
		FFprobeVersion: func() (string, error) { return tools.ProbeVersion(ctx) },
	}

	catalog, catalogErr := voice.Load(cfg.Voices.Manifest)
	dcfg.Catalog = func() (int, error) {
		if catalogErr != nil {
			return 0, catalogErr
		}
		return len(catalog.ListVoices()), nil
	}

	if catalogErr == nil {
		dcfg.VoiceFiles = collectVoiceFiles(catalog)
		providers, err := buildProviders(ctx, cfg, catalog)
		if err != nil {
			dcfg.Probes = append(dcfg.Probes, doctor.Probe{
				Name:  "backend setup",
				Check: func(context.Context) error { return err },
			})
		}
		for _, p := range providers {
			dcfg.Backends = append(dcfg.Backends, doctor.Backend{
				Name:      p.ID(),
				Enabled:   backendEnabled(cfg, p.ID()),
				Available: p.Available(),
			})
			if c, ok := p.(interface{ Close() error }); ok {
				cleanup = append(cleanup, func() { _ = c.Close() })
			}
		}
	}

	if cfg.Pocket.Enabled {
		exe := cfg.Pocket.ExecutablePath
		if exe == "" {
			exe = "pocket-tts"
		}
		dcfg.PocketTTSVersion = func() (string, error) { return probePocketTTSVersion(ctx, exe) }
	}

	if cfg.Synthesis.Limiter == config.LimiterRedis && cfg.Synthesis.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Synthesis.RedisAddr})
		cleanup = append(cleanup, func() { _ = rdb.Close() })
		dcfg.Probes = append(dcfg.Probes, doctor.Probe{
			Name:  "redis " + cfg.Synthesis.RedisAddr,
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}
	if services {
		qc := queueConfig(cfg.Queue)
		dcfg.Probes = append(dcfg.Probes, doctor.Probe{
			Name: "nats " + qc.URL,
			Check: func(ctx context.Context) error {
				c, err := queue.Connect(ctx, qc, slog.Default())
				if err != nil {
					return err
				}
				c.Close()
				return nil
			},
		})
	}

	return dcfg, func() {
		for _, fn := range cleanup {
			fn()
		}
	}
}

func backendEnabled(cfg config.Config, id string) bool {
	switch id {
	case tts.GoogleID:
		return cfg.Google.Enabled
	case tts.PollyID:
		return cfg.Polly.Enabled
	case tts.OpenAIID:
		return strings.TrimSpace(cfg.OpenAI.APIKey) != ""
	case tts.PocketID:
		return cfg.Pocket.Enabled
	default:
		return false
	}
}

// probePocketTTSVersion runs `pocket-tts --version` and returns its output.
func probePocketTTSVersion(ctx context.Context, exe string) (string, error) {
	out, err := exec.CommandContext(ctx, exe, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("%s --version failed: %w", exe, err)
	}

	return strings.TrimSpace(string(out)), nil
}

// collectVoiceFiles returns absolute paths of the catalog's local voice
// embeddings, resolved against the manifest directory.
func collectVoiceFiles(catalog *voice.Catalog) []string {
	var paths []string
	for _, v := range catalog.ListVoices() {
		if v.Path == "" {
			continue
		}
		resolved, err := catalog.ResolvePath(v.ID)
		if err != nil {
			paths = append(paths, v.Path)
			continue
		}
		if abs, err := filepath.Abs(resolved); err == nil {
			resolved = abs
		}
		paths = append(paths, resolved)
	}
	return paths
}
