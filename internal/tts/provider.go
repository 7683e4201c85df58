// Package tts defines the synthesis contract shared by every backend and the
// adapters that implement it.
package tts

import (
	"context"
	"strconv"
)

// TimingMode is the boundary-timing capability of a backend.
type TimingMode int

const (
	// TimingNone backends return audio only; every request is one unit.
	TimingNone TimingMode = iota
	// TimingNative backends return named timepoints alongside the audio.
	TimingNative
	// TimingTwoCall backends need a second request to fetch marks.
	TimingTwoCall
)

func (m TimingMode) String() string {
	switch m {
	case TimingNative:
		return "native"
	case TimingTwoCall:
		return "two-call"
	default:
		return "none"
	}
}

// MarkConvention says where a backend expects boundary marks.
type MarkConvention int

const (
	// MarksBetween places one mark at each internal boundary (N-1 marks).
	MarksBetween MarkConvention = iota
	// MarksLeading places a mark in front of every unit (N marks).
	MarksLeading
)

// MarkupDialect selects the request payload syntax.
type MarkupDialect int

const (
	DialectPlain MarkupDialect = iota
	DialectSSML
)

// AudioFormat names the container of Response.Audio.
type AudioFormat string

const (
	FormatWAV AudioFormat = "wav"
	FormatMP3 AudioFormat = "mp3"
)

// Capabilities is what the batch planner and segment extractor know about a
// backend. They never branch on backend ids.
type Capabilities struct {
	Timing     TimingMode
	Convention MarkConvention
	Dialect    MarkupDialect
	// MaxChars bounds the rendered markup of one request.
	MaxChars int
	// SpeedInMarkup backends get speed as prosody instead of a parameter.
	SpeedInMarkup bool
}

// Batchable reports whether more than one unit may share a request.
func (c Capabilities) Batchable() bool {
	return c.Timing != TimingNone
}

// ExpectedMarkCount is the number of marks a fully resolved response of n
// units carries under this convention.
func (c Capabilities) ExpectedMarkCount(n int) int {
	if c.Timing == TimingNone || n <= 0 {
		return 0
	}
	if c.Convention == MarksLeading {
		return n
	}
	return n - 1
}

// BilledCalls is the number of backend API calls req costs. Two-call
// backends pay separately for the marks request.
func (c Capabilities) BilledCalls(req TimedSynthesisRequest) int {
	if c.Timing == TimingTwoCall && len(req.ExpectedMarks) > 0 {
		return 2
	}
	return 1
}

// Timepoint is a named boundary offset within one response.
type Timepoint struct {
	Name    string  `json:"name"`
	Seconds float64 `json:"seconds"`
}

// TimedSynthesisRequest is the single value consumed by every call made for
// one batch. Two-call backends send the same Markup to both requests.
type TimedSynthesisRequest struct {
	Markup        string
	VoiceID       string
	LanguageCode  string
	Speed         float64
	ExpectedMarks []string
}

// EffectiveSpeed treats zero as normal rate.
func (r TimedSynthesisRequest) EffectiveSpeed() float64 {
	if r.Speed <= 0 {
		return 1.0
	}
	return r.Speed
}

// Response is the raw result of one synthesis.
type Response struct {
	Audio      []byte
	Format     AudioFormat
	Timepoints []Timepoint
	// BilledChars counts characters sent across all calls for this request.
	BilledChars int
}

// Provider is implemented once per synthesis backend.
type Provider interface {
	ID() string
	Capabilities() Capabilities
	// Available reports whether the backend is configured; routing skips
	// backends that are not.
	Available() bool
	LanguageCode(voiceID string) (string, bool)
	Synthesize(ctx context.Context, req TimedSynthesisRequest) (Response, error)
}

// MarkName is the boundary mark name for a script unit index.
func MarkName(unitIndex int) string {
	return "u" + strconv.Itoa(unitIndex)
}
