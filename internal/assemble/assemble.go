// Package assemble concatenates resolved segments into the final lesson file
// and derives the per-unit timing table.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/example/go-lesson-audio/internal/audio"
	"github.com/example/go-lesson-audio/internal/media"
	"github.com/example/go-lesson-audio/internal/script"
	"github.com/example/go-lesson-audio/internal/segment"
	"github.com/example/go-lesson-audio/internal/sweeten"
)

var (
	ErrNoSegments    = errors.New("no segments to assemble")
	ErrDurationDrift = errors.New("assembled duration drifted from segment sum")
)

// TimingEntry is one row of the timing table, keyed by script unit index.
type TimingEntry struct {
	UnitIndex int   `json:"unitIndex"`
	StartMs   int64 `json:"startMs"`
	EndMs     int64 `json:"endMs"`
}

// Input is one assembly job. Sources holds each batch's decoded samples,
// indexed by batch index, for segments that reference a SourceRef.
type Input struct {
	Segments   []segment.AudioSegment
	Sources    [][]float32
	OutputPath string
}

// Result describes the written file.
type Result struct {
	Path            string
	DurationSeconds float64
	Timing          []TimingEntry
	Segments        []segment.AudioSegment
}

// Options tunes the assembler.
type Options struct {
	WorkRoot       string
	Encoding       media.Encoding
	FadeMs         float64
	DriftTolerance float64
}

func DefaultOptions() Options {
	return Options{
		Encoding:       media.DefaultEncoding(),
		FadeMs:         5,
		DriftTolerance: 0.050,
	}
}

type Assembler struct {
	tools   media.Tools
	sweeten *sweeten.Sweetener
	opts    Options
	log     *slog.Logger
}

func New(tools media.Tools, sw *sweeten.Sweetener, opts Options, log *slog.Logger) *Assembler {
	if log == nil {
		log = slog.Default()
	}
	return &Assembler{tools: tools, sweeten: sw, opts: opts, log: log.With(slog.String("component", "assembler"))}
}

func samplesToMs(n int) int64 {
	return int64(math.Round(float64(n) * 1000 / audio.ExpectedSampleRate))
}

// Assemble writes every segment as a working-format WAV in a scoped
// workspace, encodes them once, and returns timing derived from cumulative
// sample counts so each unit starts where the previous ends. The encoded file
// is moved to OutputPath only after it passes the duration check, so a failed
// run never touches an existing file there. The workspace is removed on every
// return path.
func (a *Assembler) Assemble(ctx context.Context, in Input) (res Result, err error) {
	if len(in.Segments) == 0 {
		return Result{}, ErrNoSegments
	}

	ws, err := media.NewWorkspace(a.opts.WorkRoot, "assemble")
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = ws.Close() }()

	var (
		files  []string
		cursor int
	)
	res.Timing = make([]TimingEntry, 0, len(in.Segments))
	res.Segments = make([]segment.AudioSegment, 0, len(in.Segments))

	for i, seg := range in.Segments {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		n := 0
		if seg.Kind != script.KindMarker {
			wav, count, err := a.materialize(ctx, ws, i, seg, in.Sources)
			if err != nil {
				return Result{}, fmt.Errorf("segment for unit %d: %w", seg.UnitIndex, err)
			}
			if count > 0 {
				path, err := ws.WriteFile(fmt.Sprintf("seg-%05d.wav", i), wav)
				if err != nil {
					return Result{}, err
				}
				files = append(files, path)
			}
			n = count
		}

		seg.Audio = nil
		seg.DurationSeconds = audio.Seconds(n)
		seg.StartOffset = audio.Seconds(cursor)
		seg.EndOffset = audio.Seconds(cursor + n)
		res.Segments = append(res.Segments, seg)
		res.Timing = append(res.Timing, TimingEntry{
			UnitIndex: seg.UnitIndex,
			StartMs:   samplesToMs(cursor),
			EndMs:     samplesToMs(cursor + n),
		})
		cursor += n
	}

	if len(files) == 0 {
		return Result{}, fmt.Errorf("%w: all segments are empty", ErrNoSegments)
	}

	enc := a.opts.Encoding
	if a.sweeten != nil {
		enc.Filter = a.sweeten.FinalFilter()
	}
	encoded := ws.Path("final" + filepath.Ext(in.OutputPath))
	if err := a.tools.Concatenate(ctx, files, encoded, enc); err != nil {
		return Result{}, fmt.Errorf("concatenate: %w", err)
	}

	measured, err := a.tools.ProbeDuration(ctx, encoded)
	if err != nil {
		return Result{}, fmt.Errorf("probe output: %w", err)
	}
	expected := audio.Seconds(cursor)
	if a.opts.DriftTolerance > 0 && math.Abs(measured-expected) > a.opts.DriftTolerance {
		return Result{}, fmt.Errorf("%w: measured %.3fs, segments sum to %.3fs", ErrDurationDrift, measured, expected)
	}

	if err := publish(encoded, in.OutputPath); err != nil {
		return Result{}, fmt.Errorf("publish output: %w", err)
	}

	a.log.InfoContext(ctx, "assembled",
		slog.Int("segments", len(in.Segments)),
		slog.Int("files", len(files)),
		slog.Float64("duration_s", measured),
	)

	res.Path = in.OutputPath
	res.DurationSeconds = measured
	return res, nil
}

// materialize returns the clip as working-format WAV plus its sample count.
func (a *Assembler) materialize(ctx context.Context, ws *media.Workspace, i int, seg segment.AudioSegment, sources [][]float32) ([]byte, int, error) {
	var (
		wav []byte
		err error
	)
	switch {
	case seg.Source != nil:
		src := seg.Source
		if src.BatchIndex < 0 || src.BatchIndex >= len(sources) {
			return nil, 0, fmt.Errorf("batch %d has no decoded audio", src.BatchIndex)
		}
		full := sources[src.BatchIndex]
		clip := audio.Slice(full, src.StartSample, src.EndSample)
		audio.Fade(clip, a.opts.FadeMs, src.StartSample > 0, src.EndSample < len(full))
		if len(clip) == 0 {
			return nil, 0, nil
		}
		wav, err = audio.EncodeWAV(clip)
		if err != nil {
			return nil, 0, err
		}
	case seg.Audio != nil:
		wav = seg.Audio
	default:
		return nil, 0, errors.New("segment has neither audio nor source")
	}

	if seg.Kind.Spoken() && a.sweeten != nil {
		wav, err = a.sweeten.MasterSegment(ctx, ws, fmt.Sprintf("seg-%05d", i), wav)
		if err != nil {
			return nil, 0, err
		}
	}

	samples, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, 0, err
	}
	return wav, len(samples), nil
}

// publish moves src to dst. When the workspace lives on another filesystem
// the file is copied next to dst first so dst is still replaced atomically.
func publish(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	in, err := os.Open(src)
	if err != nil {
		_ = tmp.Close()
		return err
	}
	defer func() { _ = in.Close() }()

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
