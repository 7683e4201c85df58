package tts

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Dispatcher applies the shared rate budget, a per-call timeout and retries
// to provider calls.
type Dispatcher struct {
	limiters   *LimiterSet
	timeout    time.Duration
	maxTries   uint
	log        *slog.Logger
	newBackOff func() backoff.BackOff
}

// DispatchOption configures a Dispatcher.
type DispatchOption func(*Dispatcher)

// WithCallTimeout bounds each individual backend call.
func WithCallTimeout(d time.Duration) DispatchOption {
	return func(x *Dispatcher) { x.timeout = d }
}

// WithMaxTries bounds the attempts per request, first try included.
func WithMaxTries(n uint) DispatchOption {
	return func(x *Dispatcher) { x.maxTries = n }
}

// WithBackOff replaces the exponential retry schedule.
func WithBackOff(fn func() backoff.BackOff) DispatchOption {
	return func(x *Dispatcher) { x.newBackOff = fn }
}

// WithDispatchLogger sets the logger used for retry warnings.
func WithDispatchLogger(l *slog.Logger) DispatchOption {
	return func(x *Dispatcher) { x.log = l }
}

func NewDispatcher(limiters *LimiterSet, opts ...DispatchOption) *Dispatcher {
	d := &Dispatcher{
		limiters: limiters,
		timeout:  60 * time.Second,
		maxTries: 4,
		log:      slog.Default(),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			return b
		},
	}
	for _, fn := range opts {
		fn(d)
	}
	return d
}

// Synthesize runs req against p. Permanent failures return immediately; the
// last retryable error is returned once attempts are exhausted.
func (d *Dispatcher) Synthesize(ctx context.Context, p Provider, req TimedSynthesisRequest) (Response, error) {
	attempt := 0
	op := func() (Response, error) {
		attempt++
		for range p.Capabilities().BilledCalls(req) {
			if err := d.limiters.Wait(ctx, p.ID()); err != nil {
				return Response{}, backoff.Permanent(err)
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		start := time.Now()
		resp, err := p.Synthesize(callCtx, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return Response{}, backoff.Permanent(ctx.Err())
		}
		if !IsRetryable(err) {
			return Response{}, backoff.Permanent(err)
		}
		d.log.WarnContext(ctx, "synthesis attempt failed",
			slog.String("backend", p.ID()),
			slog.String("voice", req.VoiceID),
			slog.Int("attempt", attempt),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("error", err.Error()),
		)
		return Response{}, err
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(d.newBackOff()),
		backoff.WithMaxTries(d.maxTries),
	)
}
