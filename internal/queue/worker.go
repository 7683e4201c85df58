package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/example/go-lesson-audio/internal/pipeline"
)

// Job states carried by Event.
const (
	StateRunning = "running"
	StateDone    = "done"
	StateFailed  = "failed"
)

// Event is one progress notification.
type Event struct {
	JobID   string               `json:"jobId"`
	State   string               `json:"state"`
	Percent int                  `json:"percent"`
	Error   string               `json:"error,omitempty"`
	Results []pipeline.JobResult `json:"results,omitempty"`
}

func (e Event) Final() bool { return e.State == StateDone || e.State == StateFailed }

// Handler runs one job. pipeline.Runner.Run satisfies it.
type Handler func(ctx context.Context, req pipeline.JobRequest, report func(percent int)) ([]pipeline.JobResult, error)

// delivery is the part of a JetStream message the worker acts on.
type delivery interface {
	Body() []byte
	Ack() error
	Nak() error
	Term() error
	InProgress() error
}

type natsDelivery struct{ msg *nats.Msg }

func (d natsDelivery) Body() []byte { return d.msg.Data }
func (d natsDelivery) Ack() error { return d.msg.Ack() }
func (d natsDelivery) Nak() error { return d.msg.Nak() }
func (d natsDelivery) Term() error { return d.msg.Term() }
func (d natsDelivery) InProgress() error { return d.msg.InProgress() }

// Worker consumes jobs from the durable queue consumer, running at most
// concurrency jobs at once.
type Worker struct {
	client      *Client
	handler     Handler
	concurrency int
	publish     func(subject string, data []byte) error
	log         *slog.Logger

	wg sync.WaitGroup
}

func NewWorker(c *Client, handler Handler, concurrency int, log *slog.Logger) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	if log == nil {
		log = slog.Default()
	}
	w := &Worker{
		client:      c,
		handler:     handler,
		concurrency: concurrency,
		log:         log.With(slog.String("component", "worker")),
	}
	if c != nil {
		w.publish = c.conn.Publish
	}
	return w
}

// Run pulls jobs until ctx is cancelled, then waits for running jobs.
func (w *Worker) Run(ctx context.Context) error {
	cfg := w.client.cfg
	sub, err := w.client.js.PullSubscribe(cfg.Subject, cfg.Durable,
		nats.BindStream(cfg.Stream),
		nats.ManualAck(),
		nats.AckWait(cfg.AckWait),
		nats.MaxDeliver(cfg.MaxDeliver),
	)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", cfg.Subject, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	w.log.Info("worker started", slog.String("subject", cfg.Subject), slog.Int("concurrency", w.concurrency))
	sem := make(chan struct{}, w.concurrency)
	defer w.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker stopping")
			return nil
		case sem <- struct{}{}:
		}

		msgs, err := sub.Fetch(1, nats.MaxWait(time.Second))
		if err != nil || len(msgs) == 0 {
			<-sem
			if err != nil && !errors.Is(err, nats.ErrTimeout) && ctx.Err() == nil {
				w.log.Warn("fetch failed", slog.String("error", err.Error()))
			}
			continue
		}

		w.wg.Add(1)
		go func(msg *nats.Msg) {
			defer w.wg.Done()
			defer func() { <-sem }()
			w.process(ctx, natsDelivery{msg})
		}(msgs[0])
	}
}

// process runs one delivery. Malformed jobs are terminated, failed jobs are
// negatively acknowledged for redelivery, and progress extends the ack
// deadline.
func (w *Worker) process(ctx context.Context, d delivery) {
	var req pipeline.JobRequest
	if err := json.Unmarshal(d.Body(), &req); err != nil || req.JobID == "" {
		w.log.Warn("dropping malformed job", slog.Any("error", err))
		_ = d.Term()
		return
	}
	log := w.log.With(slog.String("job_id", req.JobID))
	log.InfoContext(ctx, "job started", slog.String("lesson_id", req.LessonID))

	report := func(pct int) {
		if err := d.InProgress(); err != nil {
			log.Warn("extend ack deadline failed", slog.String("error", err.Error()))
		}
		w.emit(Event{JobID: req.JobID, State: StateRunning, Percent: pct})
	}

	results, err := w.handler(ctx, req, report)
	if err != nil {
		log.ErrorContext(ctx, "job failed", slog.String("error", err.Error()))
		w.emit(Event{JobID: req.JobID, State: StateFailed, Error: err.Error()})
		_ = d.Nak()
		return
	}
	w.emit(Event{JobID: req.JobID, State: StateDone, Percent: 100, Results: results})
	if err := d.Ack(); err != nil {
		log.Warn("ack failed", slog.String("error", err.Error()))
	}
	log.InfoContext(ctx, "job finished", slog.Int("parts", len(results)))
}

func (w *Worker) emit(ev Event) {
	if w.publish == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	subject := DefaultConfig().ProgressSubject(ev.JobID)
	if w.client != nil {
		subject = w.client.cfg.ProgressSubject(ev.JobID)
	}
	if err := w.publish(subject, data); err != nil {
		w.log.Warn("publish progress failed", slog.String("error", err.Error()))
	}
}
