// Package queue carries render jobs over NATS JetStream.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/example/go-lesson-audio/internal/pipeline"
)

// Config selects the server, the work-queue stream and the durable consumer.
type Config struct {
	URL            string
	Stream         string
	Subject        string
	Durable        string
	AckWait        time.Duration
	MaxDeliver     int
	ConnectTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		URL:            nats.DefaultURL,
		Stream:         "LESSONAUDIO",
		Subject:        "lessonaudio.jobs",
		Durable:        "lessonaudio-worker",
		AckWait:        2 * time.Minute,
		MaxDeliver:     3,
		ConnectTimeout: 5 * time.Second,
	}
}

// ProgressSubject is where events for one job are published. It sits
// outside the work-queue stream.
func (c Config) ProgressSubject(jobID string) string {
	return c.Subject + ".progress." + jobID
}

// Client wraps the NATS connection and JetStream context.
type Client struct {
	cfg  Config
	conn *nats.Conn
	js   nats.JetStreamContext
	log  *slog.Logger
}

// Connect dials NATS and creates the work-queue stream if it is missing.
func Connect(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("no NATS url configured")
	}
	if log == nil {
		log = slog.Default()
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name("lessonaudio"),
		nats.Timeout(cfg.ConnectTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	js, err := conn.JetStream(nats.Context(ctx))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	c := &Client{cfg: cfg, conn: conn, js: js, log: log.With(slog.String("component", "queue"))}
	if err := c.ensureStream(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	c.log.Info("connected to NATS", slog.String("url", cfg.URL), slog.String("stream", cfg.Stream))
	return c, nil
}

func (c *Client) ensureStream(ctx context.Context) error {
	_, err := c.js.StreamInfo(c.cfg.Stream, nats.Context(ctx))
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %s: %w", c.cfg.Stream, err)
	}
	_, err = c.js.AddStream(&nats.StreamConfig{
		Name:      c.cfg.Stream,
		Subjects:  []string{c.cfg.Subject},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
	}, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("add stream %s: %w", c.cfg.Stream, err)
	}
	return nil
}

func (c *Client) Close() {
	if c == nil || c.conn == nil {
		return
	}
	c.log.Info("closing NATS connection")
	_ = c.conn.Drain()
	c.conn.Close()
}

func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

// Enqueue publishes a job and returns its id, assigning one when missing.
// The id doubles as the JetStream message id, so resubmitting the same job
// within the duplicate window is a no-op.
func (c *Client) Enqueue(ctx context.Context, req pipeline.JobRequest) (string, error) {
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode job: %w", err)
	}
	if _, err := c.js.Publish(c.cfg.Subject, data, nats.Context(ctx), nats.MsgId(req.JobID)); err != nil {
		return "", fmt.Errorf("publish job: %w", err)
	}
	c.log.InfoContext(ctx, "job enqueued", slog.String("job_id", req.JobID), slog.String("lesson_id", req.LessonID))
	return req.JobID, nil
}

// ProgressWatch is an open subscription to one job's progress events.
type ProgressWatch struct {
	sub *nats.Subscription
	ch  chan *nats.Msg
	log *slog.Logger
}

// SubscribeProgress opens the progress subscription for jobID. Call it
// before Enqueue to observe every event.
func (c *Client) SubscribeProgress(jobID string) (*ProgressWatch, error) {
	ch := make(chan *nats.Msg, 16)
	sub, err := c.conn.ChanSubscribe(c.cfg.ProgressSubject(jobID), ch)
	if err != nil {
		return nil, fmt.Errorf("subscribe progress: %w", err)
	}
	return &ProgressWatch{sub: sub, ch: ch, log: c.log}, nil
}

// Wait delivers events until ctx ends or a final event arrives, then
// unsubscribes.
func (w *ProgressWatch) Wait(ctx context.Context, fn func(Event)) error {
	defer func() { _ = w.sub.Unsubscribe() }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-w.ch:
			var ev Event
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				w.log.Warn("bad progress event", slog.String("error", err.Error()))
				continue
			}
			fn(ev)
			if ev.Final() {
				return nil
			}
		}
	}
}

// WatchProgress delivers progress events for one job until ctx ends or a
// final event arrives.
func (c *Client) WatchProgress(ctx context.Context, jobID string, fn func(Event)) error {
	w, err := c.SubscribeProgress(jobID)
	if err != nil {
		return err
	}
	return w.Wait(ctx, fn)
}
