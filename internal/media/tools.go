// Package media wraps the ffmpeg and ffprobe binaries. Every operation works
// on file paths inside a job workspace.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/example/go-lesson-audio/internal/audio"
)

// Tools is the narrow media surface the pipeline depends on.
type Tools interface {
	// DecodeToWAV converts any input to the working WAV format.
	DecodeToWAV(ctx context.Context, inPath, outPath string) error
	// Concatenate joins inputs in order and re-encodes once.
	Concatenate(ctx context.Context, inputs []string, outPath string, enc Encoding) error
	// ApplyFilterChain runs an audio filter graph. WAV outputs are written in
	// the working format.
	ApplyFilterChain(ctx context.Context, inPath, outPath, chain string) error
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// Encoding is the output format of the final concatenation.
type Encoding struct {
	Codec      string
	SampleRate int
	Channels   int
	Bitrate    string
	// Filter is an optional graph applied during the same encode.
	Filter string
}

// DefaultEncoding is stereo 44.1 kHz MP3.
func DefaultEncoding() Encoding {
	return Encoding{Codec: "libmp3lame", SampleRate: 44100, Channels: 2, Bitrate: "128k"}
}

// ToolError carries the combined output of a failed subprocess.
type ToolError struct {
	Tool   string
	Op     string
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s %s failed: %v; out=%s", e.Tool, e.Op, e.Err, e.Output)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Config locates the binaries.
type Config struct {
	FFmpegPath  string
	FFprobePath string
	Timeout     time.Duration
}

// FFmpeg implements Tools with the system binaries.
type FFmpeg struct {
	ffmpeg  string
	ffprobe string
	timeout time.Duration
	log     *slog.Logger
	run     func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func runCombined(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

func NewFFmpeg(cfg Config, log *slog.Logger) *FFmpeg {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &FFmpeg{
		ffmpeg:  cfg.FFmpegPath,
		ffprobe: cfg.FFprobePath,
		timeout: cfg.Timeout,
		log:     log.With(slog.String("component", "media")),
		run:     runCombined,
	}
}

// AssertReady checks that both binaries resolve.
func (f *FFmpeg) AssertReady() error {
	for _, bin := range []string{f.ffmpeg, f.ffprobe} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("missing required binary %q in PATH: %w", bin, err)
		}
	}
	return nil
}

// Version returns the first line of `ffmpeg -version`.
func (f *FFmpeg) Version(ctx context.Context) (string, error) {
	out, err := f.exec(ctx, f.ffmpeg, "version", "-version")
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

// ProbeVersion returns the first line of `ffprobe -version`.
func (f *FFmpeg) ProbeVersion(ctx context.Context) (string, error) {
	out, err := f.exec(ctx, f.ffprobe, "version", "-version")
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

func (f *FFmpeg) exec(ctx context.Context, bin, op string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	out, err := f.run(ctx, bin, args...)
	if err != nil {
		return out, &ToolError{Tool: filepath.Base(bin), Op: op, Output: tail(string(out), 2048), Err: err}
	}
	f.log.DebugContext(ctx, "media tool finished",
		slog.String("tool", filepath.Base(bin)),
		slog.String("op", op),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return out, nil
}

func (f *FFmpeg) DecodeToWAV(ctx context.Context, inPath, outPath string) error {
	_, err := f.exec(ctx, f.ffmpeg, "decode",
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", inPath,
		"-ac", strconv.Itoa(audio.ExpectedChannels),
		"-ar", strconv.Itoa(audio.ExpectedSampleRate),
		"-c:a", "pcm_s16le",
		"-f", "wav", outPath,
	)
	return err
}

func (f *FFmpeg) ApplyFilterChain(ctx context.Context, inPath, outPath, chain string) error {
	if strings.TrimSpace(chain) == "" {
		return fmt.Errorf("empty filter chain")
	}
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", inPath,
		"-af", chain,
	}
	// WAV outputs stay in the working format; other containers keep the
	// encoder ffmpeg picks for the extension.
	if strings.EqualFold(filepath.Ext(outPath), ".wav") {
		args = append(args,
			"-ac", strconv.Itoa(audio.ExpectedChannels),
			"-ar", strconv.Itoa(audio.ExpectedSampleRate),
			"-c:a", "pcm_s16le",
		)
	}
	args = append(args, outPath)

	_, err := f.exec(ctx, f.ffmpeg, "filter", args...)
	return err
}

func (f *FFmpeg) Concatenate(ctx context.Context, inputs []string, outPath string, enc Encoding) error {
	if len(inputs) == 0 {
		return fmt.Errorf("concatenate: no inputs")
	}
	if enc.Codec == "" {
		enc = DefaultEncoding()
	}

	listPath := outPath + ".concat.txt"
	if err := os.WriteFile(listPath, []byte(ConcatList(inputs)), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	defer func() { _ = os.Remove(listPath) }()

	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
	}
	if enc.Filter != "" {
		args = append(args, "-af", enc.Filter)
	}
	args = append(args,
		"-ar", strconv.Itoa(enc.SampleRate),
		"-ac", strconv.Itoa(enc.Channels),
		"-c:a", enc.Codec,
	)
	if enc.Bitrate != "" {
		args = append(args, "-b:a", enc.Bitrate)
	}
	args = append(args, outPath)

	_, err := f.exec(ctx, f.ffmpeg, "concat", args...)
	return err
}

func (f *FFmpeg) ProbeDuration(ctx context.Context, path string) (float64, error) {
	out, err := f.exec(ctx, f.ffprobe, "probe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, err
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return d, nil
}

// ConcatList renders the concat demuxer input list.
func ConcatList(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(p, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
