// Package batch groups spoken script units into as few synthesis requests as
// each backend's capabilities allow.
package batch

import (
	"errors"
	"fmt"

	"github.com/example/go-lesson-audio/internal/script"
	"github.com/example/go-lesson-audio/internal/tts"
)

// ErrUnitTooLarge is returned when one unit alone exceeds the backend limit.
var ErrUnitTooLarge = errors.New("unit exceeds backend character limit")

// Resolver picks the backend and voice for a spoken unit.
type Resolver interface {
	Resolve(u script.Unit) (tts.Route, error)
}

// Batch is a contiguous run of compatible spoken units sent as one request.
type Batch struct {
	Index        int
	Units        []script.Unit
	Markup       string
	Provider     tts.Provider
	Capabilities tts.Capabilities
	VoiceID      string
	LanguageCode string
	Speed        float64
	// MarkNames are the marks injected into Markup, in order.
	MarkNames []string
}

// BackendID is the id of the provider serving this batch.
func (b Batch) BackendID() string {
	if b.Provider == nil {
		return ""
	}
	return b.Provider.ID()
}

// Request builds the single request value used for every call of this batch.
// A one-unit batch needs no marks, so none are requested.
func (b Batch) Request() tts.TimedSynthesisRequest {
	req := tts.TimedSynthesisRequest{
		Markup:       b.Markup,
		VoiceID:      b.VoiceID,
		LanguageCode: b.LanguageCode,
		Speed:        b.Speed,
	}
	if len(b.Units) > 1 {
		req.ExpectedMarks = append([]string(nil), b.MarkNames...)
	}
	return req
}

// Step is one entry of the assembly order. Spoken units point into a batch;
// pauses and markers pass through with BatchIndex -1.
type Step struct {
	Unit       script.Unit
	BatchIndex int
	Position   int
}

// PassThrough reports whether the step produced no synthesis call.
func (s Step) PassThrough() bool { return s.BatchIndex < 0 }

// Plan is the result of PlanBatches. Steps follow script order.
type Plan struct {
	Batches []Batch
	Steps   []Step
}

// MarkupChars is the total request payload size, before two-call doubling.
func (p Plan) MarkupChars() int {
	n := 0
	for _, b := range p.Batches {
		n += len(b.Markup)
	}
	return n
}

type openBatch struct {
	batch  Batch
	markup *tts.MarkupBuilder
}

func (o *openBatch) accepts(route tts.Route, speed float64, mark, text string) bool {
	b := o.batch
	return b.Capabilities.Batchable() &&
		b.Provider.ID() == route.Provider.ID() &&
		b.VoiceID == route.VoiceID &&
		b.LanguageCode == route.LanguageCode &&
		b.Speed == speed &&
		o.markup.Fits(mark, text)
}

// PlanBatches walks units once in script order. Each spoken unit either joins
// the open batch or closes it and opens a new one, and its boundary mark is
// written in that same step so mark positions cannot drift from unit order.
func PlanBatches(units []script.Unit, resolver Resolver) (Plan, error) {
	var (
		plan Plan
		cur  *openBatch
	)
	flush := func() {
		if cur == nil {
			return
		}
		cur.batch.Markup = cur.markup.String()
		plan.Batches = append(plan.Batches, cur.batch)
		cur = nil
	}

	for _, u := range units {
		if !u.Kind.Spoken() {
			plan.Steps = append(plan.Steps, Step{Unit: u, BatchIndex: -1, Position: -1})
			continue
		}

		route, err := resolver.Resolve(u)
		if err != nil {
			return Plan{}, err
		}
		speed := u.EffectiveSpeed()
		mark := tts.MarkName(u.Index)

		if cur != nil && !cur.accepts(route, speed, mark, u.Text) {
			flush()
		}
		if cur == nil {
			caps := route.Provider.Capabilities()
			mb := tts.NewMarkupBuilder(caps, speed)
			if !mb.Fits(mark, u.Text) {
				return Plan{}, fmt.Errorf("unit %d on %s (%d chars, limit %d): %w",
					u.Index, route.Provider.ID(), len(u.Text), caps.MaxChars, ErrUnitTooLarge)
			}
			cur = &openBatch{
				batch: Batch{
					Index:        len(plan.Batches),
					Provider:     route.Provider,
					Capabilities: caps,
					VoiceID:      route.VoiceID,
					LanguageCode: route.LanguageCode,
					Speed:        speed,
				},
				markup: mb,
			}
		}

		if emitted := cur.markup.Append(mark, u.Text); emitted != "" {
			cur.batch.MarkNames = append(cur.batch.MarkNames, emitted)
		}
		cur.batch.Units = append(cur.batch.Units, u)
		plan.Steps = append(plan.Steps, Step{
			Unit:       u,
			BatchIndex: cur.batch.Index,
			Position:   len(cur.batch.Units) - 1,
		})
	}
	flush()

	return plan, nil
}
