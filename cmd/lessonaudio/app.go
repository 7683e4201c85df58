package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/example/go-lesson-audio/internal/assemble"
	"github.com/example/go-lesson-audio/internal/config"
	"github.com/example/go-lesson-audio/internal/media"
	"github.com/example/go-lesson-audio/internal/pipeline"
	"github.com/example/go-lesson-audio/internal/storage"
	"github.com/example/go-lesson-audio/internal/store"
	"github.com/example/go-lesson-audio/internal/sweeten"
	"github.com/example/go-lesson-audio/internal/telemetry"
	"github.com/example/go-lesson-audio/internal/tts"
	"github.com/example/go-lesson-audio/internal/voice"
	"github.com/redis/go-redis/v9"
)

const redisLimiterPrefix = "lessonaudio:ratelimit"

// app holds everything a render needs, built once per process.
type app struct {
	cfg       config.Config
	log       *slog.Logger
	catalog   *voice.Catalog
	providers []tts.Provider
	router    *tts.Router
	tools     *media.FFmpeg
	store     *store.Store
	redis     *redis.Client
	runner    *pipeline.Runner
	closers   []func() error
}

func newApp(ctx context.Context, cfg config.Config, metrics *telemetry.Metrics) (a *app, err error) {
	log := slog.Default()
	a = &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.catalog, err = voice.Load(cfg.Voices.Manifest)
	if err != nil {
		return nil, fmt.Errorf("load voices: %w", err)
	}

	a.providers, err = buildProviders(ctx, cfg, a.catalog)
	if err != nil {
		return nil, err
	}
	for _, p := range a.providers {
		if c, ok := p.(interface{ Close() error }); ok {
			a.closers = append(a.closers, c.Close)
		}
	}
	a.router = tts.NewRouter(a.catalog, log, a.providers...)

	limiters, err := a.buildLimiters()
	if err != nil {
		return nil, err
	}
	dispatcher := tts.NewDispatcher(limiters,
		tts.WithCallTimeout(time.Duration(cfg.Synthesis.CallTimeout)*time.Second),
		tts.WithMaxTries(uint(max(cfg.Synthesis.MaxTries, 1))),
		tts.WithDispatchLogger(log),
	)

	a.tools = media.NewFFmpeg(media.Config{
		FFmpegPath:  cfg.Media.FFmpegPath,
		FFprobePath: cfg.Media.FFprobePath,
		Timeout:     time.Duration(cfg.Media.Timeout) * time.Second,
	}, log)

	sw := sweeten.New(masteringConfig(cfg.Mastering), a.tools)
	asmOpts := assemble.DefaultOptions()
	asmOpts.WorkRoot = workDir(cfg)
	asmOpts.Encoding = media.Encoding{
		Codec:      cfg.Output.Codec,
		SampleRate: cfg.Output.SampleRate,
		Channels:   cfg.Output.Channels,
		Bitrate:    cfg.Output.Bitrate,
	}
	assembler := assemble.New(a.tools, sw, asmOpts, log)

	uploader, err := a.buildUploader(ctx)
	if err != nil {
		return nil, err
	}

	deps := pipeline.Deps{
		Resolver:   a.router,
		Dispatcher: dispatcher,
		Tools:      a.tools,
		Sweetener:  sw,
		Assembler:  assembler,
		Uploader:   uploader,
		Metrics:    metrics,
		Logger:     log,
	}
	if cfg.Store.Path != "" {
		a.store, err = store.Open(ctx, cfg.Store.Path, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.store.Close)
		deps.Store = a.store
	}

	a.runner = pipeline.NewRunner(deps, pipeline.Options{
		WorkDir:     workDir(cfg),
		OutputDir:   cfg.Output.Dir,
		Extension:   cfg.Output.Format,
		Concurrency: cfg.Synthesis.Concurrency,
	})
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func buildProviders(ctx context.Context, cfg config.Config, catalog *voice.Catalog) ([]tts.Provider, error) {
	google, err := tts.NewGoogle(ctx, tts.GoogleConfig{
		Enabled:         cfg.Google.Enabled,
		CredentialsFile: cfg.Google.CredentialsFile,
		MaxChars:        cfg.Google.MaxChars,
	})
	if err != nil {
		return nil, err
	}
	polly, err := tts.NewPolly(ctx, tts.PollyConfig{
		Enabled:  cfg.Polly.Enabled,
		Region:   cfg.Polly.Region,
		Profile:  cfg.Polly.Profile,
		Engine:   cfg.Polly.Engine,
		MaxChars: cfg.Polly.MaxChars,
	}, catalog)
	if err != nil {
		_ = google.Close()
		return nil, err
	}
	openai := tts.NewOpenAI(tts.OpenAIConfig{
		APIKey:   cfg.OpenAI.APIKey,
		BaseURL:  cfg.OpenAI.BaseURL,
		Model:    cfg.OpenAI.Model,
		MaxChars: cfg.OpenAI.MaxChars,
		Timeout:  time.Duration(cfg.OpenAI.Timeout) * time.Second,
	}, catalog)
	pocket := tts.NewPocket(tts.PocketConfig{
		Enabled:        cfg.Pocket.Enabled,
		ExecutablePath: cfg.Pocket.ExecutablePath,
		ConfigPath:     cfg.Pocket.ConfigPath,
		Quiet:          cfg.Pocket.Quiet,
		MaxChars:       cfg.Pocket.MaxChars,
	}, catalog)
	return []tts.Provider{google, polly, openai, pocket}, nil
}

func (a *app) buildLimiters() (*tts.LimiterSet, error) {
	def := tts.LimitSpec{PerSecond: a.cfg.Synthesis.RateLimit, Burst: a.cfg.Synthesis.Burst}
	switch a.cfg.Synthesis.Limiter {
	case config.LimiterRedis:
		if a.cfg.Synthesis.RedisAddr == "" {
			return nil, errors.New("synthesis limiter redis requires --redis-addr")
		}
		a.redis = redis.NewClient(&redis.Options{Addr: a.cfg.Synthesis.RedisAddr})
		a.closers = append(a.closers, a.redis.Close)
		return tts.NewLimiterSet(tts.RedisLimiters(a.redis, redisLimiterPrefix, nil, def)), nil
	default:
		return tts.NewLimiterSet(tts.LocalLimiters(nil, def)), nil
	}
}

func (a *app) buildUploader(ctx context.Context) (storage.Uploader, error) {
	sc := a.cfg.Storage
	switch sc.Backend {
	case config.StorageGCS:
		gcs, err := storage.NewGCS(ctx, storage.GCSConfig{
			Bucket:          sc.Bucket,
			Prefix:          sc.Prefix,
			PublicBaseURL:   sc.BaseURL,
			CredentialsFile: sc.CredentialsFile,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, gcs.Close)
		return gcs, nil
	default:
		return storage.Local{Dir: sc.Dir, BaseURL: sc.BaseURL}, nil
	}
}

func masteringConfig(mc config.MasteringConfig) sweeten.Config {
	c := sweeten.DefaultConfig()
	c.Enabled = mc.Enabled
	c.SegmentLoudnorm = mc.SegmentLoudnorm
	c.HighpassHz = mc.HighpassHz
	c.CompThresholdDB = mc.CompThresholdDB
	c.CompRatio = mc.CompRatio
	c.CompAttackMs = mc.CompAttackMs
	c.CompReleaseMs = mc.CompReleaseMs
	c.CompMakeupDB = mc.CompMakeupDB
	c.PresenceHz = mc.PresenceHz
	c.PresenceWidthQ = mc.PresenceWidthQ
	c.PresenceGainDB = mc.PresenceGainDB
	c.LoudnessI = mc.LoudnessI
	c.LoudnessLRA = mc.LoudnessLRA
	c.LoudnessTP = mc.LoudnessTP
	return c
}

func workDir(cfg config.Config) string {
	if cfg.WorkDir != "" {
		return cfg.WorkDir
	}
	return os.TempDir()
}
