package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/go-lesson-audio/internal/pipeline"
	"github.com/example/go-lesson-audio/internal/testutil"
)

type fakeDelivery struct {
	body                        []byte
	acks, naks, terms, progress int
}

func (d *fakeDelivery) Body() []byte { return d.body }
func (d *fakeDelivery) Ack() error { d.acks++; return nil }
func (d *fakeDelivery) Nak() error { d.naks++; return nil }
func (d *fakeDelivery) Term() error { d.terms++; return nil }
func (d *fakeDelivery) InProgress() error { d.progress++; return nil }

type published struct {
	mu     sync.Mutex
	events map[string][]Event
}

func (p *published) publish(subject string, data []byte) error {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.events == nil {
		p.events = map[string][]Event{}
	}
	p.events[subject] = append(p.events[subject], ev)
	return nil
}

func newTestWorker(h Handler) (*Worker, *published) {
	pub := &published{}
	w := NewWorker(nil, h, 1, nil)
	w.publish = pub.publish
	return w, pub
}

func jobBody(t *testing.T, req pipeline.JobRequest) []byte {
	t.Helper()
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestWorkerProcess(t *testing.T) {
	tests := []struct {
		name       string
		body       func(t *testing.T) []byte
		handlerErr error
		wantAck    int
		wantNak    int
		wantTerm   int
		wantFinal  string
	}{
		{
			name:      "success acks",
			body:      func(t *testing.T) []byte { return jobBody(t, pipeline.JobRequest{JobID: "j1", LessonID: "L"}) },
			wantAck:   1,
			wantFinal: StateDone,
		},
		{
			name:       "failure naks for redelivery",
			body:       func(t *testing.T) []byte { return jobBody(t, pipeline.JobRequest{JobID: "j1", LessonID: "L"}) },
			handlerErr: errors.New("backend down"),
			wantNak:    1,
			wantFinal:  StateFailed,
		},
		{
			name:     "malformed body terminates",
			body:     func(*testing.T) []byte { return []byte("{not json") },
			wantTerm: 1,
		},
		{
			name:     "missing job id terminates",
			body:     func(t *testing.T) []byte { return jobBody(t, pipeline.JobRequest{LessonID: "L"}) },
			wantTerm: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			w, pub := newTestWorker(func(_ context.Context, req pipeline.JobRequest, report func(int)) ([]pipeline.JobResult, error) {
				called = true
				report(40)
				report(80)
				if tt.handlerErr != nil {
					return nil, tt.handlerErr
				}
				return []pipeline.JobResult{{JobID: req.JobID, AudioURL: "u"}}, nil
			})
			d := &fakeDelivery{body: tt.body(t)}
			w.process(context.Background(), d)

			if d.acks != tt.wantAck || d.naks != tt.wantNak || d.terms != tt.wantTerm {
				t.Errorf("ack/nak/term = %d/%d/%d", d.acks, d.naks, d.terms)
			}
			if tt.wantTerm > 0 {
				if called {
					t.Error("handler ran for a malformed job")
				}
				return
			}
			if d.progress != 2 {
				t.Errorf("InProgress calls = %d", d.progress)
			}
			evs := pub.events["lessonaudio.jobs.progress.j1"]
			if len(evs) != 3 {
				t.Fatalf("events = %+v", evs)
			}
			if evs[0].Percent != 40 || evs[0].State != StateRunning {
				t.Errorf("first event = %+v", evs[0])
			}
			final := evs[2]
			if final.State != tt.wantFinal || !final.Final() {
				t.Errorf("final event = %+v", final)
			}
			if tt.handlerErr != nil && !strings.Contains(final.Error, "backend down") {
				t.Errorf("final error = %q", final.Error)
			}
		})
	}
}

func TestProgressSubject(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.ProgressSubject("abc"); got != "lessonaudio.jobs.progress.abc" {
		t.Errorf("ProgressSubject = %q", got)
	}
	if (Event{State: StateRunning}).Final() {
		t.Error("running is not final")
	}
}

func TestEnqueueAndWork_NATS(t *testing.T) {
	url := testutil.RequireEnv(t, "LESSONAUDIO_TEST_NATS_URL")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := DefaultConfig()
	cfg.URL = url
	cfg.Stream = "LESSONAUDIO_TEST"
	cfg.Subject = "lessonaudio.test.jobs"
	cfg.Durable = "lessonaudio-test"
	c, err := Connect(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()
	if !c.Healthy() {
		t.Fatal("client not healthy")
	}

	handled := make(chan string, 1)
	w := NewWorker(c, func(_ context.Context, req pipeline.JobRequest, report func(int)) ([]pipeline.JobResult, error) {
		report(50)
		handled <- req.LessonID
		return nil, nil
	}, 1, nil)

	events := make(chan Event, 8)
	id, err := c.Enqueue(ctx, pipeline.JobRequest{LessonID: "nats-lesson"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	go func() { _ = c.WatchProgress(ctx, id, func(ev Event) { events <- ev }) }()
	time.Sleep(200 * time.Millisecond)

	wctx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = w.Run(wctx) }()

	select {
	case got := <-handled:
		if got != "nats-lesson" {
			t.Errorf("lesson = %q", got)
		}
	case <-ctx.Done():
		t.Fatal("job not delivered")
	}
	for {
		select {
		case ev := <-events:
			if ev.Final() {
				if ev.State != StateDone {
					t.Errorf("final state = %s", ev.State)
				}
				return
			}
		case <-ctx.Done():
			t.Fatal("no final progress event")
		}
	}
}
