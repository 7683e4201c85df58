package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/go-lesson-audio/internal/queue"
	"github.com/example/go-lesson-audio/internal/server"
	"github.com/example/go-lesson-audio/internal/telemetry"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume render jobs from the queue and serve the ops endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			log := slog.Default()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var (
				metrics *telemetry.Metrics
				opts    = []server.Option{server.WithLogger(log)}
			)
			if cfg.Telemetry.Enabled {
				tp, err := telemetry.Setup("lessonaudio-worker", log)
				if err != nil {
					return err
				}
				defer func() {
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = tp.Shutdown(sctx)
				}()
				if metrics, err = telemetry.NewMetrics(tp.MeterProvider); err != nil {
					return err
				}
				opts = append(opts, server.WithMetrics(tp.Handler))
			}

			a, err := newApp(ctx, cfg, metrics)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.tools.AssertReady(); err != nil {
				return err
			}

			client, err := queue.Connect(ctx, queueConfig(cfg.Queue), log)
			if err != nil {
				return err
			}
			defer client.Close()

			opts = append(opts, server.WithCheck("queue", func(context.Context) error {
				if !client.Healthy() {
					return errors.New("nats not connected")
				}
				return nil
			}))
			if a.redis != nil {
				opts = append(opts, server.WithCheck("redis", func(ctx context.Context) error {
					return a.redis.Ping(ctx).Err()
				}))
			}

			srv := server.New(cfg.Server.ListenAddr, server.NewHandler(a.catalog, opts...)).
				WithShutdownTimeout(time.Duration(cfg.Server.ShutdownTimeout) * time.Second)
			worker := queue.NewWorker(client, a.runner.Run, cfg.Queue.Concurrency, log)

			log.Info("worker started",
				slog.String("listen_addr", cfg.Server.ListenAddr),
				slog.Int("concurrency", cfg.Queue.Concurrency),
			)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Start(gctx) })
			g.Go(func() error { return worker.Run(gctx) })
			return g.Wait()
		},
	}

	return cmd
}
