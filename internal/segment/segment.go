// Package segment turns a batch response into per-unit clips.
package segment

import (
	"errors"
	"fmt"

	"github.com/example/go-lesson-audio/internal/audio"
	"github.com/example/go-lesson-audio/internal/batch"
	"github.com/example/go-lesson-audio/internal/script"
	"github.com/example/go-lesson-audio/internal/tts"
)

// OffsetTolerance allows the last mark to trail the measured audio by encoder
// padding.
const OffsetTolerance = 0.050

var (
	ErrBoundaryCountMismatch = errors.New("boundary count mismatch")
	ErrNonMonotonic          = errors.New("timepoints are not monotonic")
	ErrOffsetBeyondAudio     = errors.New("timepoint beyond end of audio")
	ErrMarkNameMismatch      = errors.New("timepoint name mismatch")
)

// TimingError marks a batch whose timing could not be trusted. The job that
// owns the batch fails; offsets are never guessed.
type TimingError struct {
	BatchIndex int
	Backend    string
	Detail     string
	Err        error
}

func (e *TimingError) Error() string {
	return fmt.Sprintf("batch %d (%s): %v: %s", e.BatchIndex, e.Backend, e.Err, e.Detail)
}

func (e *TimingError) Unwrap() error { return e.Err }

// SourceRef locates a clip inside its batch's decoded audio.
type SourceRef struct {
	BatchIndex  int
	StartSample int
	EndSample   int
}

// AudioSegment is the resolved audio and timing of exactly one script unit.
// Audio stays nil until the assembler materializes it from Source.
type AudioSegment struct {
	UnitIndex       int
	Kind            script.Kind
	Audio           []byte
	Source          *SourceRef
	DurationSeconds float64
	StartOffset     float64
	EndOffset       float64
}

// Samples is the clip length at the working rate.
func (s AudioSegment) Samples() int {
	if s.Source != nil {
		return s.Source.EndSample - s.Source.StartSample
	}
	return audio.SampleCount(s.DurationSeconds)
}

// Marker returns the zero-length segment for a marker unit.
func Marker(u script.Unit) AudioSegment {
	return AudioSegment{UnitIndex: u.Index, Kind: u.Kind}
}

// Extract splits a batch response into one segment per unit. samples is the
// batch audio decoded to the working format.
func Extract(b batch.Batch, resp tts.Response, samples []float32) ([]AudioSegment, error) {
	n := len(b.Units)
	if n == 0 {
		return nil, nil
	}
	total := len(samples)
	duration := audio.Seconds(total)

	terr := func(err error, format string, args ...any) error {
		return &TimingError{BatchIndex: b.Index, Backend: b.BackendID(), Err: err, Detail: fmt.Sprintf(format, args...)}
	}

	bounds := []int{0}
	if n > 1 {
		marks := resp.Timepoints
		want := b.Capabilities.ExpectedMarkCount(n)
		if len(marks) != want {
			return nil, terr(ErrBoundaryCountMismatch, "got %d marks for %d units, want %d", len(marks), n, want)
		}

		prev := 0.0
		for i, m := range marks {
			if i < len(b.MarkNames) && m.Name != b.MarkNames[i] {
				return nil, terr(ErrMarkNameMismatch, "mark %d is %q, want %q", i, m.Name, b.MarkNames[i])
			}
			if m.Seconds < prev {
				return nil, terr(ErrNonMonotonic, "mark %q at %.3fs precedes %.3fs", m.Name, m.Seconds, prev)
			}
			prev = m.Seconds
		}
		if prev > duration+OffsetTolerance {
			return nil, terr(ErrOffsetBeyondAudio, "last mark at %.3fs, audio is %.3fs", prev, duration)
		}

		if b.Capabilities.Convention == tts.MarksLeading {
			marks = marks[1:]
		}
		for _, m := range marks {
			s := audio.SampleCount(m.Seconds)
			if s > total {
				s = total
			}
			bounds = append(bounds, s)
		}
	}
	bounds = append(bounds, total)

	out := make([]AudioSegment, n)
	for i, u := range b.Units {
		start, end := bounds[i], bounds[i+1]
		out[i] = AudioSegment{
			UnitIndex:       u.Index,
			Kind:            u.Kind,
			Source:          &SourceRef{BatchIndex: b.Index, StartSample: start, EndSample: end},
			DurationSeconds: audio.Seconds(end - start),
		}
	}
	return out, nil
}
