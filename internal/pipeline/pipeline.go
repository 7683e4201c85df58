// Package pipeline runs one lesson job end to end: schedule, script, batch,
// synthesize, extract, assemble, upload and persist.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/example/go-lesson-audio/internal/assemble"
	"github.com/example/go-lesson-audio/internal/audio"
	"github.com/example/go-lesson-audio/internal/batch"
	"github.com/example/go-lesson-audio/internal/lesson"
	"github.com/example/go-lesson-audio/internal/media"
	"github.com/example/go-lesson-audio/internal/script"
	"github.com/example/go-lesson-audio/internal/segment"
	"github.com/example/go-lesson-audio/internal/storage"
	"github.com/example/go-lesson-audio/internal/store"
	"github.com/example/go-lesson-audio/internal/sweeten"
	"github.com/example/go-lesson-audio/internal/telemetry"
	"github.com/example/go-lesson-audio/internal/text"
	"github.com/example/go-lesson-audio/internal/tts"
)

// JobRequest is the queue job body. When Script is set, scheduling and
// rendering are skipped and the script is synthesized as given.
type JobRequest struct {
	JobID          string                `json:"jobId,omitempty"`
	LessonID       string                `json:"lessonId"`
	TargetLanguage string                `json:"targetLanguage"`
	NativeLanguage string                `json:"nativeLanguage"`
	Items          []lesson.Item         `json:"items,omitempty"`
	Dialogue       []lesson.DialogueLine `json:"dialogue,omitempty"`
	NarratorVoice  string                `json:"narratorVoice"`
	TargetVoice    string                `json:"targetVoice"`
	SpeakerVoices  map[string]string     `json:"speakerVoices,omitempty"`
	MaxMinutes     float64               `json:"maxMinutes,omitempty"`
	Script         *script.Script        `json:"script,omitempty"`
}

// JobResult describes one rendered lesson part.
type JobResult struct {
	JobID           string                 `json:"jobId"`
	LessonID        string                 `json:"lessonId"`
	Part            int                    `json:"part"`
	AudioURL        string                 `json:"audioUrl"`
	DurationSeconds float64                `json:"durationSeconds"`
	Timing          []assemble.TimingEntry `json:"timing"`
	Script          script.Script          `json:"script"`
}

// TimingStore persists finished renders.
type TimingStore interface {
	SaveTiming(ctx context.Context, r store.Render) error
}

// Deps are the collaborators of a Runner. Uploader and Store are optional;
// without an uploader the local output path is reported as the URL.
type Deps struct {
	Resolver   batch.Resolver
	Dispatcher *tts.Dispatcher
	Tools      media.Tools
	Sweetener  *sweeten.Sweetener
	Assembler  *assemble.Assembler
	Uploader   storage.Uploader
	Store      TimingStore
	Metrics    *telemetry.Metrics
	Logger     *slog.Logger
}

// Options tunes a Runner.
type Options struct {
	WorkDir     string
	OutputDir   string
	Extension   string
	Concurrency int
}

func DefaultOptions() Options {
	return Options{WorkDir: os.TempDir(), OutputDir: "out", Extension: "mp3", Concurrency: 4}
}

// Runner executes jobs. It is safe for concurrent use; jobs share only the
// dispatcher's limiters.
type Runner struct {
	deps  Deps
	opts  Options
	log   *slog.Logger
	newID func() string
}

func NewRunner(deps Deps, opts Options) *Runner {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Extension == "" {
		opts.Extension = "mp3"
	}
	return &Runner{
		deps:  deps,
		opts:  opts,
		log:   log.With(slog.String("component", "pipeline")),
		newID: func() string { return uuid.NewString() },
	}
}

// Plans schedules the request's items into lesson parts. Items without a
// reading get one generated for the target language.
func Plans(req JobRequest) ([]lesson.Plan, error) {
	items, err := lesson.FillReadings(req.Items, text.ReaderFor(req.TargetLanguage))
	if err != nil {
		return nil, err
	}
	return lesson.PlanLesson(items, req.MaxMinutes)
}

// Scripts schedules the request into lesson parts and renders each into a
// script, or returns the explicit script unchanged.
func Scripts(req JobRequest) ([]script.Script, error) {
	if req.Script != nil {
		s := *req.Script
		if s.LessonID == "" {
			s.LessonID = req.LessonID
		}
		return []script.Script{s}, s.Validate()
	}
	plans, err := Plans(req)
	if err != nil {
		return nil, err
	}
	content := lesson.Content{
		LessonID:       req.LessonID,
		TargetLanguage: req.TargetLanguage,
		NativeLanguage: req.NativeLanguage,
		NarratorVoice:  req.NarratorVoice,
		TargetVoice:    req.TargetVoice,
		SpeakerVoices:  req.SpeakerVoices,
		Dialogue:       req.Dialogue,
	}
	out := make([]script.Script, 0, len(plans))
	for _, p := range plans {
		s, err := lesson.BuildScript(p, content)
		if err != nil {
			return nil, fmt.Errorf("lesson part %d: %w", p.Part, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// Run renders every part of the job. report receives monotonically
// increasing percentages and may be nil. Nothing is uploaded or persisted
// for a part that fails, and the first failure ends the job.
func (r *Runner) Run(ctx context.Context, req JobRequest, report func(percent int)) (results []JobResult, err error) {
	jobID := req.JobID
	if jobID == "" {
		jobID = r.newID()
	}
	log := r.log.With(slog.String("job_id", jobID), slog.String("lesson_id", req.LessonID))
	started := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		r.deps.Metrics.Job(ctx, outcome)
	}()

	progress := newProgress(report)
	scripts, err := Scripts(req)
	if err != nil {
		return nil, fmt.Errorf("build script: %w", err)
	}
	progress.set(5)

	for i, s := range scripts {
		part := i + 1
		partID := jobID
		if len(scripts) > 1 {
			partID = fmt.Sprintf("%s-%d", jobID, part)
		}
		lo := 5 + 95*float64(i)/float64(len(scripts))
		hi := 5 + 95*float64(i+1)/float64(len(scripts))
		res, err := r.runPart(ctx, partID, part, s, func(f float64) { progress.set(lo + (hi-lo)*f) })
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", part, err)
		}
		results = append(results, res)
	}
	progress.set(100)
	log.InfoContext(ctx, "job finished",
		slog.Int("parts", len(results)),
		slog.Int64("duration_ms", time.Since(started).Milliseconds()),
	)
	return results, nil
}

func (r *Runner) runPart(ctx context.Context, jobID string, part int, s script.Script, progress func(float64)) (JobResult, error) {
	if err := os.MkdirAll(r.opts.OutputDir, 0o755); err != nil {
		return JobResult{}, fmt.Errorf("create output dir: %w", err)
	}
	// One file per job part: re-renders and concurrent jobs for the same
	// lesson never share a path.
	name := fmt.Sprintf("%s-%s.%s", sanitize(s.LessonID, "lesson"), sanitize(jobID, "job"), r.opts.Extension)
	out := filepath.Join(r.opts.OutputDir, name)

	res, err := r.Render(ctx, s, out, func(f float64) { progress(0.9 * f) })
	if err != nil {
		return JobResult{}, err
	}

	url := res.Path
	if r.deps.Uploader != nil {
		start := time.Now()
		url, err = r.deps.Uploader.Upload(ctx, res.Path, storage.ContentType(res.Path))
		if err != nil {
			return JobResult{}, fmt.Errorf("upload: %w", err)
		}
		r.deps.Metrics.Stage(ctx, "upload", time.Since(start))
	}
	progress(0.95)

	if r.deps.Store != nil {
		err := r.deps.Store.SaveTiming(ctx, store.Render{
			JobID:           jobID,
			LessonID:        s.LessonID,
			Part:            part,
			AudioURL:        url,
			DurationSeconds: res.DurationSeconds,
			Timing:          res.Timing,
		})
		if err != nil {
			return JobResult{}, fmt.Errorf("persist timing: %w", err)
		}
	}
	progress(1)

	return JobResult{
		JobID:           jobID,
		LessonID:        s.LessonID,
		Part:            part,
		AudioURL:        url,
		DurationSeconds: res.DurationSeconds,
		Timing:          res.Timing,
		Script:          s,
	}, nil
}

// Render synthesizes and assembles one script into outputPath. progress
// receives fractions in [0, 1] and may be nil.
func (r *Runner) Render(ctx context.Context, s script.Script, outputPath string, progress func(float64)) (assemble.Result, error) {
	if progress == nil {
		progress = func(float64) {}
	}
	if err := s.Validate(); err != nil {
		return assemble.Result{}, err
	}

	start := time.Now()
	plan, err := batch.PlanBatches(s.Units, r.deps.Resolver)
	if err != nil {
		return assemble.Result{}, fmt.Errorf("plan batches: %w", err)
	}
	r.deps.Metrics.Stage(ctx, "plan", time.Since(start))
	r.log.InfoContext(ctx, "batches planned",
		slog.String("lesson_id", s.LessonID),
		slog.Int("units", len(s.Units)),
		slog.Int("spoken", s.SpokenCount()),
		slog.Int("batches", len(plan.Batches)),
		slog.Int("markup_chars", plan.MarkupChars()),
	)
	progress(0.05)

	ws, err := media.NewWorkspace(r.opts.WorkDir, "synth")
	if err != nil {
		return assemble.Result{}, err
	}
	defer func() { _ = ws.Close() }()

	start = time.Now()
	responses, sources, err := r.synthesize(ctx, ws, plan, func(f float64) { progress(0.05 + 0.6*f) })
	if err != nil {
		return assemble.Result{}, err
	}
	r.deps.Metrics.Stage(ctx, "synthesize", time.Since(start))

	segments, err := Segments(plan, responses, sources)
	if err != nil {
		return assemble.Result{}, err
	}
	progress(0.7)

	start = time.Now()
	res, err := r.deps.Assembler.Assemble(ctx, assemble.Input{
		Segments:   segments,
		Sources:    sources,
		OutputPath: outputPath,
	})
	if err != nil {
		return assemble.Result{}, fmt.Errorf("assemble: %w", err)
	}
	r.deps.Metrics.Stage(ctx, "assemble", time.Since(start))
	progress(1)
	return res, nil
}

// synthesize sends every batch with bounded concurrency. The first failure
// cancels the remaining calls.
func (r *Runner) synthesize(ctx context.Context, ws *media.Workspace, plan batch.Plan, progress func(float64)) ([]tts.Response, [][]float32, error) {
	responses := make([]tts.Response, len(plan.Batches))
	sources := make([][]float32, len(plan.Batches))
	if len(plan.Batches) == 0 {
		return responses, sources, nil
	}

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i, b := range plan.Batches {
		g.Go(func() error {
			resp, err := r.deps.Dispatcher.Synthesize(gctx, b.Provider, b.Request())
			if err != nil {
				r.deps.Metrics.BackendError(ctx, b.BackendID())
				return fmt.Errorf("batch %d (%s): %w", b.Index, b.BackendID(), err)
			}
			r.deps.Metrics.Batch(ctx, b.BackendID(), resp.BilledChars)

			samples, err := r.decode(gctx, ws, i, resp)
			if err != nil {
				return fmt.Errorf("batch %d (%s): decode: %w", b.Index, b.BackendID(), err)
			}
			responses[i] = resp
			sources[i] = samples
			progress(float64(done.Add(1)) / float64(len(plan.Batches)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return responses, sources, nil
}

// decode returns working-format samples, converting through the media tool
// when the backend returned another rate or container.
func (r *Runner) decode(ctx context.Context, ws *media.Workspace, i int, resp tts.Response) ([]float32, error) {
	if resp.Format != tts.FormatMP3 && audio.IsWorkingFormat(resp.Audio) {
		return audio.DecodeWAV(resp.Audio)
	}
	if r.deps.Tools == nil {
		return nil, fmt.Errorf("%w: no media tool to convert %s audio", audio.ErrFormatMismatch, resp.Format)
	}
	ext := "wav"
	if resp.Format == tts.FormatMP3 {
		ext = "mp3"
	}
	in, err := ws.WriteFile(fmt.Sprintf("batch-%04d.%s", i, ext), resp.Audio)
	if err != nil {
		return nil, err
	}
	out := ws.Path(fmt.Sprintf("batch-%04d.working.wav", i))
	if err := r.deps.Tools.DecodeToWAV(ctx, in, out); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return nil, err
	}
	return audio.DecodeWAV(data)
}

// Segments walks the assembly order and resolves one segment per unit:
// batch clips from the extractor, generated silence for pauses and
// zero-length markers.
func Segments(plan batch.Plan, responses []tts.Response, sources [][]float32) ([]segment.AudioSegment, error) {
	clips := make([][]segment.AudioSegment, len(plan.Batches))
	for i, b := range plan.Batches {
		segs, err := segment.Extract(b, responses[i], sources[i])
		if err != nil {
			return nil, err
		}
		clips[i] = segs
	}

	out := make([]segment.AudioSegment, 0, len(plan.Steps))
	for _, st := range plan.Steps {
		switch {
		case !st.PassThrough():
			if st.BatchIndex >= len(clips) || st.Position >= len(clips[st.BatchIndex]) {
				return nil, fmt.Errorf("step for unit %d points outside batch %d", st.Unit.Index, st.BatchIndex)
			}
			out = append(out, clips[st.BatchIndex][st.Position])
		case st.Unit.Kind == script.KindPause:
			seg, err := sweeten.SynthesizeSilence(st.Unit.PauseSeconds)
			if err != nil {
				return nil, fmt.Errorf("silence for unit %d: %w", st.Unit.Index, err)
			}
			seg.UnitIndex = st.Unit.Index
			out = append(out, seg)
		case st.Unit.Kind == script.KindMarker:
			out = append(out, segment.Marker(st.Unit))
		default:
			return nil, fmt.Errorf("unit %d: unexpected pass-through kind %q", st.Unit.Index, st.Unit.Kind)
		}
	}
	return out, nil
}

func sanitize(id, fallback string) string {
	name := id
	if name == "" {
		name = fallback
	}
	b := []byte(name)
	for i, c := range b {
		ok := c == '-' || c == '_' || c == '.' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		if !ok {
			b[i] = '_'
		}
	}
	return string(b)
}
