package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAIID is the backend id of the OpenAI speech adapter.
const OpenAIID = "openai"

// OpenAIConfig configures the OpenAI speech endpoint.
type OpenAIConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	MaxChars int
	Timeout  time.Duration
}

// OpenAI returns audio only, so every request carries a single unit.
type OpenAI struct {
	cfg       OpenAIConfig
	client    *http.Client
	languages VoiceLanguages
}

func NewOpenAI(cfg OpenAIConfig, languages VoiceLanguages) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "tts-1"
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 4096
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OpenAI{
		cfg:       cfg,
		client:    &http.Client{Timeout: cfg.Timeout},
		languages: languages,
	}
}

func (o *OpenAI) ID() string { return OpenAIID }

func (o *OpenAI) Capabilities() Capabilities {
	return Capabilities{Timing: TimingNone, Dialect: DialectPlain, MaxChars: o.cfg.MaxChars}
}

func (o *OpenAI) Available() bool { return strings.TrimSpace(o.cfg.APIKey) != "" }

func (o *OpenAI) LanguageCode(voiceID string) (string, bool) {
	if o.languages == nil {
		return "", false
	}
	return o.languages.LanguageOf(voiceID)
}

type openAISpeechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed"`
}

func (o *OpenAI) Synthesize(ctx context.Context, req TimedSynthesisRequest) (Response, error) {
	if !o.Available() {
		return Response{}, fmt.Errorf("%s: %w", OpenAIID, ErrNotConfigured)
	}

	body, err := json.Marshal(openAISpeechRequest{
		Model:          o.cfg.Model,
		Input:          req.Markup,
		Voice:          req.VoiceID,
		ResponseFormat: "wav",
		Speed:          req.EffectiveSpeed(),
	})
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	url := strings.TrimRight(o.cfg.BaseURL, "/") + "/v1/audio/speech"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return Response{}, &BackendError{Backend: OpenAIID, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		be := &BackendError{Backend: OpenAIID, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			be.Err = ErrNotConfigured
		}
		return Response{}, be
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("%s: read body: %w", OpenAIID, err)
	}
	return Response{Audio: data, Format: FormatWAV, BilledChars: len(req.Markup)}, nil
}
