package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1beta1"

	"github.com/example/go-lesson-audio/internal/audio"
)

// GoogleID is the backend id of the Google Cloud adapter.
const GoogleID = "google"

// GoogleConfig configures the Google Cloud Text-to-Speech adapter.
type GoogleConfig struct {
	Enabled         bool
	CredentialsFile string
	MaxChars        int
}

type googleSpeechAPI interface {
	Synthesize(ctx context.Context, req *texttospeech.SynthesizeSpeechRequest) (*texttospeech.SynthesizeSpeechResponse, error)
}

type googleClient struct {
	svc *texttospeech.Service
}

func (g googleClient) Synthesize(ctx context.Context, req *texttospeech.SynthesizeSpeechRequest) (*texttospeech.SynthesizeSpeechResponse, error) {
	return g.svc.Text.Synthesize(req).Context(ctx).Do()
}

// Google returns SSML mark timepoints in the same response as the audio.
type Google struct {
	api      googleSpeechAPI
	maxChars int
}

// NewGoogle builds a v1beta1 REST client, the surface that supports
// timepointing. A disabled config yields an adapter that reports itself
// unavailable.
func NewGoogle(ctx context.Context, cfg GoogleConfig) (*Google, error) {
	g := &Google{maxChars: cfg.MaxChars}
	if g.maxChars <= 0 {
		g.maxChars = 4500
	}
	if !cfg.Enabled {
		return g, nil
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	svc, err := texttospeech.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google tts client: %w", err)
	}
	g.api = googleClient{svc: svc}
	return g, nil
}

func newGoogleWithAPI(api googleSpeechAPI, maxChars int) *Google {
	return &Google{api: api, maxChars: maxChars}
}

func (g *Google) ID() string { return GoogleID }

func (g *Google) Capabilities() Capabilities {
	return Capabilities{
		Timing:     TimingNative,
		Convention: MarksBetween,
		Dialect:    DialectSSML,
		MaxChars:   g.maxChars,
	}
}

func (g *Google) Available() bool { return g.api != nil }

// LanguageCode reads the locale prefix of ids such as "ja-JP-Neural2-B".
func (g *Google) LanguageCode(voiceID string) (string, bool) {
	parts := strings.SplitN(voiceID, "-", 3)
	if len(parts) < 3 || len(parts[0]) < 2 || len(parts[1]) < 2 {
		return "", false
	}
	return parts[0] + "-" + parts[1], true
}

// Close is a no-op; the REST client holds no connection of its own.
func (g *Google) Close() error { return nil }

func (g *Google) Synthesize(ctx context.Context, req TimedSynthesisRequest) (Response, error) {
	if g.api == nil {
		return Response{}, fmt.Errorf("%s: %w", GoogleID, ErrNotConfigured)
	}

	lang := req.LanguageCode
	if lang == "" {
		lang, _ = g.LanguageCode(req.VoiceID)
	}

	apiReq := &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Ssml: req.Markup},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: lang,
			Name:         req.VoiceID,
		},
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding:   "LINEAR16",
			SampleRateHertz: audio.ExpectedSampleRate,
			SpeakingRate:    req.EffectiveSpeed(),
		},
	}
	if len(req.ExpectedMarks) > 0 {
		apiReq.EnableTimePointing = []string{"SSML_MARK"}
	}

	resp, err := g.api.Synthesize(ctx, apiReq)
	if err != nil {
		return Response{}, classifyGoogle(err)
	}

	wav, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return Response{}, &BackendError{Backend: GoogleID, Err: fmt.Errorf("decode audio content: %w", err)}
	}
	out := Response{
		Audio:       wav,
		Format:      FormatWAV,
		BilledChars: len(req.Markup),
	}
	for _, tp := range resp.Timepoints {
		if tp == nil {
			continue
		}
		out.Timepoints = append(out.Timepoints, Timepoint{Name: tp.MarkName, Seconds: tp.TimeSeconds})
	}
	if len(req.ExpectedMarks) > 0 && len(out.Timepoints) == 0 {
		return Response{}, fmt.Errorf("%s: %w (expected %d)", GoogleID, ErrMissingTimepoints, len(req.ExpectedMarks))
	}
	return out, nil
}

func classifyGoogle(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return &BackendError{Backend: GoogleID, Err: err}
	}
	switch {
	case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
		return fmt.Errorf("%s: %w: %v", GoogleID, ErrNotConfigured, err)
	case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500:
		return fmt.Errorf("%s: %w: %v", GoogleID, ErrBackendUnavailable, err)
	default:
		return &BackendError{Backend: GoogleID, Status: apiErr.Code, Body: apiErr.Message, Err: err}
	}
}
