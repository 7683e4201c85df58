package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// PocketID is the backend id of the local pocket-tts adapter.
const PocketID = "pocket"

// PocketConfig configures the local pocket-tts CLI.
type PocketConfig struct {
	Enabled        bool
	ExecutablePath string
	ConfigPath     string
	Quiet          bool
	MaxChars       int
}

// VoicePaths resolves a catalog voice to a local embedding file;
// *voice.Catalog satisfies it.
type VoicePaths interface {
	VoiceLanguages
	ResolvePath(voiceID string) (string, error)
}

// Pocket runs the pocket-tts CLI as a subprocess and reads WAV from stdout.
// It has no timing support and no speed control.
type Pocket struct {
	cfg    PocketConfig
	exe    string
	voices VoicePaths
}

var lookPath = exec.LookPath

func NewPocket(cfg PocketConfig, voices VoicePaths) *Pocket {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 1000
	}
	p := &Pocket{cfg: cfg, voices: voices}
	if !cfg.Enabled {
		return p
	}
	exe := cfg.ExecutablePath
	if exe == "" {
		exe = "pocket-tts"
	}
	if resolved, err := lookPath(exe); err == nil {
		p.exe = resolved
	}
	return p
}

func (p *Pocket) ID() string { return PocketID }

func (p *Pocket) Capabilities() Capabilities {
	return Capabilities{Timing: TimingNone, Dialect: DialectPlain, MaxChars: p.cfg.MaxChars}
}

func (p *Pocket) Available() bool { return p.exe != "" }

func (p *Pocket) LanguageCode(voiceID string) (string, bool) {
	if p.voices == nil {
		return "", false
	}
	return p.voices.LanguageOf(voiceID)
}

func (p *Pocket) args(voicePath string) []string {
	args := []string{"generate", "--text", "-", "--output-path", "-"}
	if strings.TrimSpace(voicePath) != "" {
		args = append(args, "--voice", voicePath)
	}
	if p.cfg.ConfigPath != "" {
		args = append(args, "--config", p.cfg.ConfigPath)
	}
	if p.cfg.Quiet {
		args = append(args, "--quiet")
	}
	return args
}

func (p *Pocket) Synthesize(ctx context.Context, req TimedSynthesisRequest) (Response, error) {
	if !p.Available() {
		return Response{}, fmt.Errorf("%s: %w", PocketID, ErrNotConfigured)
	}

	voiceArg := req.VoiceID
	if p.voices != nil {
		if path, err := p.voices.ResolvePath(req.VoiceID); err == nil {
			voiceArg = path
		}
	}

	cmd := exec.CommandContext(ctx, p.exe, p.args(voiceArg)...)
	cmd.Stdin = strings.NewReader(req.Markup)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Response{}, fmt.Errorf("%s: %w", PocketID, ctx.Err())
		}
		return Response{}, &BackendError{
			Backend: PocketID,
			Err:     fmt.Errorf("pocket-tts generate failed: %w; out=%s", err, strings.TrimSpace(stderr.String())),
		}
	}
	return Response{Audio: out.Bytes(), Format: FormatWAV, BilledChars: len(req.Markup)}, nil
}
