// Package doctor provides environment preflight checks for lessonaudio.
package doctor

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// minFFmpegMajor is the oldest ffmpeg release with the concat demuxer options
// and loudnorm filter the pipeline uses.
const minFFmpegMajor = 4

// VersionFunc returns a version string or an error if the component is unavailable.
type VersionFunc func() (string, error)

// Backend describes one synthesis backend as configured.
type Backend struct {
	Name      string
	Enabled   bool
	Available bool
}

// Probe is a named reachability check for an external dependency.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// FFmpegVersion returns the first line of `ffmpeg -version`.
	FFmpegVersion VersionFunc
	// FFprobeVersion returns the first line of `ffprobe -version`.
	FFprobeVersion VersionFunc
	// Catalog loads the voice manifest and returns the voice count.
	Catalog func() (int, error)
	// VoiceFiles are local voice embeddings referenced by the catalog.
	VoiceFiles []string
	// PocketTTSVersion returns the output of `pocket-tts --version`. Nil
	// skips the check.
	PocketTTSVersion VersionFunc
	Backends         []Backend
	Probes           []Probe
	// ProbeTimeout bounds each probe. Zero means 5s.
	ProbeTimeout time.Duration
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(ctx context.Context, cfg Config, w io.Writer) Result {
	var res Result

	// ---- media binaries ---------------------------------------------------
	checkBinary(&res, w, "ffmpeg", cfg.FFmpegVersion, checkFFmpegVersion)
	checkBinary(&res, w, "ffprobe", cfg.FFprobeVersion, nil)

	// ---- voice catalog ----------------------------------------------------
	if cfg.Catalog != nil {
		n, err := cfg.Catalog()
		switch {
		case err != nil:
			res.fail(fmt.Sprintf("voice catalog: %v", err))
			fmt.Fprintf(w, "%s voice catalog: %v\n", FailMark, err)
		case n == 0:
			res.fail("voice catalog: no voices")
			fmt.Fprintf(w, "%s voice catalog: empty\n", FailMark)
		default:
			fmt.Fprintf(w, "%s voice catalog: %d voices\n", PassMark, n)
		}
	}

	for _, path := range cfg.VoiceFiles {
		if _, err := os.Stat(path); err != nil {
			res.fail(fmt.Sprintf("voice file %q: %v", path, err))
			fmt.Fprintf(w, "%s voice file %s: not found\n", FailMark, path)
		} else {
			fmt.Fprintf(w, "%s voice file: %s\n", PassMark, path)
		}
	}

	// ---- backends ---------------------------------------------------------
	available := 0
	for _, b := range cfg.Backends {
		switch {
		case !b.Enabled:
			fmt.Fprintf(w, "%s backend %s: disabled\n", PassMark, b.Name)
		case b.Available:
			available++
			fmt.Fprintf(w, "%s backend %s: available\n", PassMark, b.Name)
		default:
			res.fail(fmt.Sprintf("backend %s: enabled but not available (missing credentials or binary)", b.Name))
			fmt.Fprintf(w, "%s backend %s: not available\n", FailMark, b.Name)
		}
	}
	if len(cfg.Backends) > 0 && available == 0 {
		res.fail("backends: none available")
	}

	if cfg.PocketTTSVersion != nil {
		ver, err := cfg.PocketTTSVersion()
		if err != nil {
			res.fail(fmt.Sprintf("pocket-tts binary: %v", err))
			fmt.Fprintf(w, "%s pocket-tts binary: not found (%v)\n", FailMark, err)
		} else {
			fmt.Fprintf(w, "%s pocket-tts binary: %s\n", PassMark, ver)
		}
	}

	// ---- external services ------------------------------------------------
	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	for _, p := range cfg.Probes {
		pctx, cancel := context.WithTimeout(ctx, timeout)
		err := p.Check(pctx)
		cancel()
		if err != nil {
			res.fail(fmt.Sprintf("%s: %v", p.Name, err))
			fmt.Fprintf(w, "%s %s: unreachable (%v)\n", FailMark, p.Name, err)
			continue
		}
		fmt.Fprintf(w, "%s %s: reachable\n", PassMark, p.Name)
	}

	return res
}

func checkBinary(res *Result, w io.Writer, name string, version VersionFunc, validate func(string) error) {
	if version == nil {
		fmt.Fprintf(w, "%s %s binary: skipped\n", PassMark, name)
		return
	}
	ver, err := version()
	if err != nil {
		res.fail(fmt.Sprintf("%s binary: %v", name, err))
		fmt.Fprintf(w, "%s %s binary: not found (%v)\n", FailMark, name, err)
		return
	}
	if validate != nil {
		if verr := validate(ver); verr != nil {
			res.fail(fmt.Sprintf("%s version: %v", name, verr))
			fmt.Fprintf(w, "%s %s version %s: %v\n", FailMark, name, ver, verr)
			return
		}
	}
	fmt.Fprintf(w, "%s %s binary: %s\n", PassMark, name, ver)
}

// checkFFmpegVersion accepts a `-version` banner line such as
// "ffmpeg version 6.1.1-3ubuntu5 Copyright ...". Git snapshot builds
// ("N-113000-g...") always pass.
func checkFFmpegVersion(banner string) error {
	fields := strings.Fields(banner)
	var ver string
	for i, f := range fields {
		if f == "version" && i+1 < len(fields) {
			ver = fields[i+1]
			break
		}
	}
	if ver == "" {
		return fmt.Errorf("cannot find version in %q", banner)
	}
	if strings.HasPrefix(ver, "N-") {
		return nil
	}
	major, _, err := parseMajorMinor(strings.TrimPrefix(ver, "n"))
	if err != nil {
		return fmt.Errorf("cannot parse %q: %w", ver, err)
	}
	if major < minFFmpegMajor {
		return fmt.Errorf("requires ffmpeg >=%d, got %d", minFFmpegMajor, major)
	}
	return nil
}

func parseMajorMinor(ver string) (major, minor int, err error) {
	ver, _, _ = strings.Cut(ver, "-")
	parts := strings.SplitN(ver, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected version format %q", ver)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad major in %q: %w", ver, err)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad minor in %q: %w", ver, err)
	}
	return major, minor, nil
}
