// Package sweeten generates silence and applies the mastering filter chain.
package sweeten

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/example/go-lesson-audio/internal/audio"
	"github.com/example/go-lesson-audio/internal/media"
	"github.com/example/go-lesson-audio/internal/script"
	"github.com/example/go-lesson-audio/internal/segment"
)

// Config holds the mastering parameters. Enabled toggles the full chain on
// the final file; SegmentLoudnorm toggles per-clip loudness matching.
type Config struct {
	Enabled         bool
	SegmentLoudnorm bool

	HighpassHz float64

	CompThresholdDB float64
	CompRatio       float64
	CompAttackMs    float64
	CompReleaseMs   float64
	CompMakeupDB    float64

	PresenceHz     float64
	PresenceWidthQ float64
	PresenceGainDB float64

	LoudnessI   float64
	LoudnessLRA float64
	LoudnessTP  float64
}

func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		SegmentLoudnorm: false,
		HighpassHz:      80,
		CompThresholdDB: -18,
		CompRatio:       3,
		CompAttackMs:    5,
		CompReleaseMs:   50,
		CompMakeupDB:    2,
		PresenceHz:      3000,
		PresenceWidthQ:  1,
		PresenceGainDB:  2,
		LoudnessI:       -16,
		LoudnessLRA:     11,
		LoudnessTP:      -1.5,
	}
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// LoudnormFilter is the loudness normalization stage alone.
func (c Config) LoudnormFilter() string {
	return fmt.Sprintf("loudnorm=I=%s:LRA=%s:TP=%s", num(c.LoudnessI), num(c.LoudnessLRA), num(c.LoudnessTP))
}

// Chain renders the full mastering graph in its fixed order: high-pass,
// compression, presence boost, loudness normalization.
func (c Config) Chain() string {
	stages := []string{
		fmt.Sprintf("highpass=f=%s", num(c.HighpassHz)),
		fmt.Sprintf("acompressor=threshold=%sdB:ratio=%s:attack=%s:release=%s:makeup=%s",
			num(c.CompThresholdDB), num(c.CompRatio), num(c.CompAttackMs), num(c.CompReleaseMs), num(c.CompMakeupDB)),
		fmt.Sprintf("equalizer=f=%s:t=q:w=%s:g=%s", num(c.PresenceHz), num(c.PresenceWidthQ), num(c.PresenceGainDB)),
		c.LoudnormFilter(),
	}
	return strings.Join(stages, ",")
}

// Sweetener runs mastering through the media tools.
type Sweetener struct {
	cfg   Config
	tools media.Tools
}

func New(cfg Config, tools media.Tools) *Sweetener {
	return &Sweetener{cfg: cfg, tools: tools}
}

// FinalFilter is the graph to apply while encoding the final file, or "" when
// mastering is disabled.
func (s *Sweetener) FinalFilter() string {
	if !s.cfg.Enabled {
		return ""
	}
	return s.cfg.Chain()
}

// SynthesizeSilence returns a zero-amplitude working-format clip of exactly
// round(seconds × rate) samples.
func SynthesizeSilence(seconds float64) (segment.AudioSegment, error) {
	if seconds <= 0 {
		return segment.AudioSegment{}, fmt.Errorf("silence duration must be positive, got %v", seconds)
	}
	samples := audio.Silence(seconds)
	wav, err := audio.EncodeWAV(samples)
	if err != nil {
		return segment.AudioSegment{}, fmt.Errorf("encode silence: %w", err)
	}
	return segment.AudioSegment{
		Kind:            script.KindPause,
		Audio:           wav,
		DurationSeconds: audio.Seconds(len(samples)),
	}, nil
}

// MasterSegment loudness-matches one spoken clip. It is a pass-through when
// per-segment normalization is off.
func (s *Sweetener) MasterSegment(ctx context.Context, ws *media.Workspace, name string, wav []byte) ([]byte, error) {
	if !s.cfg.SegmentLoudnorm {
		return wav, nil
	}
	in, err := ws.WriteFile(name+".raw.wav", wav)
	if err != nil {
		return nil, err
	}
	out := ws.Path(name + ".norm.wav")
	if err := s.tools.ApplyFilterChain(ctx, in, out, s.cfg.LoudnormFilter()); err != nil {
		return nil, fmt.Errorf("normalize %s: %w", name, err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read normalized %s: %w", name, err)
	}
	return data, nil
}

// MasterFinal applies the full chain to an existing file and returns the path
// of the mastered copy. Disabled mastering returns path unchanged. Renders do
// not call it: the assembler puts FinalFilter into the single concat encode,
// so the chain runs once. The master command uses it for files encoded
// elsewhere.
func (s *Sweetener) MasterFinal(ctx context.Context, path string) (string, error) {
	if !s.cfg.Enabled {
		return path, nil
	}
	ext := filepath.Ext(path)
	out := strings.TrimSuffix(path, ext) + ".mastered" + ext
	if err := s.tools.ApplyFilterChain(ctx, path, out, s.cfg.Chain()); err != nil {
		return "", fmt.Errorf("master final: %w", err)
	}
	return out, nil
}
