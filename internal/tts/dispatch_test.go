package tts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
)

func noWait() backoff.BackOff { return &backoff.ZeroBackOff{} }

func TestDispatcher_RetriesTransientFailures(t *testing.T) {
	p := &fakeProvider{id: "fake", available: true, respond: func(call int, _ TimedSynthesisRequest) (Response, error) {
		if call < 3 {
			return Response{}, &BackendError{Backend: "fake", Status: 503}
		}
		return Response{Audio: []byte("ok")}, nil
	}}
	d := NewDispatcher(nil, WithBackOff(noWait), WithMaxTries(5))

	resp, err := d.Synthesize(context.Background(), p, TimedSynthesisRequest{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(resp.Audio) != "ok" || p.calls != 3 {
		t.Errorf("audio=%q calls=%d", resp.Audio, p.calls)
	}
}

func TestDispatcher_PermanentFailureStops(t *testing.T) {
	p := &fakeProvider{id: "fake", respond: func(int, TimedSynthesisRequest) (Response, error) {
		return Response{}, ErrMissingTimepoints
	}}
	d := NewDispatcher(nil, WithBackOff(noWait), WithMaxTries(5))

	_, err := d.Synthesize(context.Background(), p, TimedSynthesisRequest{})
	if !errors.Is(err, ErrMissingTimepoints) {
		t.Fatalf("err = %v", err)
	}
	if p.calls != 1 {
		t.Errorf("calls = %d, want 1", p.calls)
	}
}

func TestDispatcher_GivesUpAfterMaxTries(t *testing.T) {
	p := &fakeProvider{id: "fake", respond: func(int, TimedSynthesisRequest) (Response, error) {
		return Response{}, ErrBackendUnavailable
	}}
	d := NewDispatcher(nil, WithBackOff(noWait), WithMaxTries(3))

	if _, err := d.Synthesize(context.Background(), p, TimedSynthesisRequest{}); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if p.calls != 3 {
		t.Errorf("calls = %d, want 3", p.calls)
	}
}

type blockingProvider struct{ fakeProvider }

func (b *blockingProvider) Synthesize(ctx context.Context, _ TimedSynthesisRequest) (Response, error) {
	b.calls++
	<-ctx.Done()
	return Response{}, ctx.Err()
}

func TestDispatcher_StalledCallTimesOutAndRetries(t *testing.T) {
	p := &blockingProvider{fakeProvider{id: "slow"}}
	d := NewDispatcher(nil, WithBackOff(noWait), WithMaxTries(2), WithCallTimeout(10*time.Millisecond))

	_, err := d.Synthesize(context.Background(), p, TimedSynthesisRequest{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if p.calls != 2 {
		t.Errorf("calls = %d, want 2", p.calls)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not configured", ErrNotConfigured, false},
		{"unavailable", ErrBackendUnavailable, true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"429", &BackendError{Status: 429}, true},
		{"400", &BackendError{Status: 400}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

type countingLimiter struct{ taken int }

func (c *countingLimiter) Wait(context.Context) error {
	c.taken++
	return nil
}

func TestDispatcher_ChargesEveryBilledCall(t *testing.T) {
	tests := []struct {
		name  string
		caps  Capabilities
		marks []string
		want  int
	}{
		{"two-call with marks", Capabilities{Timing: TimingTwoCall, Convention: MarksLeading}, []string{"u0", "u1"}, 2},
		{"two-call single unit", Capabilities{Timing: TimingTwoCall, Convention: MarksLeading}, nil, 1},
		{"native", Capabilities{Timing: TimingNative}, []string{"u1"}, 1},
		{"no timing", Capabilities{}, nil, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lim := &countingLimiter{}
			set := NewLimiterSet(func(string) Limiter { return lim })
			d := NewDispatcher(set, WithBackOff(noWait), WithMaxTries(1))
			p := &fakeProvider{id: "fake", caps: tt.caps, available: true}

			if _, err := d.Synthesize(context.Background(), p, TimedSynthesisRequest{ExpectedMarks: tt.marks}); err != nil {
				t.Fatalf("Synthesize: %v", err)
			}
			if lim.taken != tt.want {
				t.Errorf("limiter tokens = %d, want %d", lim.taken, tt.want)
			}
		})
	}
}

func TestDispatcher_ChargesEachRetry(t *testing.T) {
	lim := &countingLimiter{}
	set := NewLimiterSet(func(string) Limiter { return lim })
	d := NewDispatcher(set, WithBackOff(noWait), WithMaxTries(3))
	p := &fakeProvider{id: "fake", caps: Capabilities{Timing: TimingTwoCall}, respond: func(call int, _ TimedSynthesisRequest) (Response, error) {
		if call == 1 {
			return Response{}, ErrBackendUnavailable
		}
		return Response{Audio: []byte("ok")}, nil
	}}

	if _, err := d.Synthesize(context.Background(), p, TimedSynthesisRequest{ExpectedMarks: []string{"u0"}}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if lim.taken != 4 {
		t.Errorf("limiter tokens = %d, want 4", lim.taken)
	}
}
