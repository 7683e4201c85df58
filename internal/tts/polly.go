package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"

	"github.com/example/go-lesson-audio/internal/audio"
)

// PollyID is the backend id of the Amazon Polly adapter.
const PollyID = "polly"

// Polly PCM output is only offered at 8 and 16 kHz.
const pollyPCMRate = 16000

// PollyConfig configures the Amazon Polly adapter.
type PollyConfig struct {
	Enabled  bool
	Region   string
	Profile  string
	Engine   string
	MaxChars int
}

// VoiceLanguages resolves a voice id to its language; *voice.Catalog
// satisfies it.
type VoiceLanguages interface {
	LanguageOf(voiceID string) (string, bool)
}

type pollyAPI interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// Polly needs two requests per batch: one for PCM audio and one for the ssml
// speech marks. Both are built from the same TimedSynthesisRequest.
type Polly struct {
	api       pollyAPI
	engine    types.Engine
	maxChars  int
	languages VoiceLanguages
}

// NewPolly loads the default AWS credential chain. Missing credentials leave
// the adapter unavailable rather than failing startup.
func NewPolly(ctx context.Context, cfg PollyConfig, languages VoiceLanguages) (*Polly, error) {
	p := &Polly{
		engine:    types.Engine(cfg.Engine),
		maxChars:  cfg.MaxChars,
		languages: languages,
	}
	if p.engine == "" {
		p.engine = types.EngineNeural
	}
	if p.maxChars <= 0 {
		p.maxChars = 2900
	}
	if !cfg.Enabled {
		return p, nil
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if _, err := awsCfg.Credentials.Retrieve(ctx); err != nil {
		return p, nil
	}

	p.api = polly.NewFromConfig(awsCfg)
	return p, nil
}

func newPollyWithAPI(api pollyAPI, languages VoiceLanguages, maxChars int) *Polly {
	return &Polly{api: api, engine: types.EngineNeural, maxChars: maxChars, languages: languages}
}

func (p *Polly) ID() string { return PollyID }

func (p *Polly) Capabilities() Capabilities {
	return Capabilities{
		Timing:        TimingTwoCall,
		Convention:    MarksLeading,
		Dialect:       DialectSSML,
		MaxChars:      p.maxChars,
		SpeedInMarkup: true,
	}
}

func (p *Polly) Available() bool { return p.api != nil }

func (p *Polly) LanguageCode(voiceID string) (string, bool) {
	if p.languages == nil {
		return "", false
	}
	return p.languages.LanguageOf(voiceID)
}

func (p *Polly) input(req TimedSynthesisRequest) *polly.SynthesizeSpeechInput {
	in := &polly.SynthesizeSpeechInput{
		Text:     aws.String(req.Markup),
		TextType: types.TextTypeSsml,
		VoiceId:  types.VoiceId(req.VoiceID),
		Engine:   p.engine,
	}
	if req.LanguageCode != "" {
		in.LanguageCode = types.LanguageCode(req.LanguageCode)
	}
	return in
}

func (p *Polly) Synthesize(ctx context.Context, req TimedSynthesisRequest) (Response, error) {
	if p.api == nil {
		return Response{}, fmt.Errorf("%s: %w", PollyID, ErrNotConfigured)
	}

	audioIn := p.input(req)
	audioIn.OutputFormat = types.OutputFormatPcm
	audioIn.SampleRate = aws.String(strconv.Itoa(pollyPCMRate))

	pcm, err := p.call(ctx, audioIn)
	if err != nil {
		return Response{}, err
	}
	wav, err := audio.WrapPCM16(pcm, pollyPCMRate, 1)
	if err != nil {
		return Response{}, fmt.Errorf("%s: wrap pcm: %w", PollyID, err)
	}

	out := Response{Audio: wav, Format: FormatWAV, BilledChars: len(req.Markup)}
	if len(req.ExpectedMarks) == 0 {
		return out, nil
	}

	marksIn := p.input(req)
	marksIn.OutputFormat = types.OutputFormatJson
	marksIn.SpeechMarkTypes = []types.SpeechMarkType{types.SpeechMarkTypeSsml}

	raw, err := p.call(ctx, marksIn)
	if err != nil {
		return Response{}, fmt.Errorf("speech marks: %w", err)
	}
	out.BilledChars += len(req.Markup)

	out.Timepoints, err = ParseSpeechMarks(bytes.NewReader(raw))
	if err != nil {
		return Response{}, fmt.Errorf("%s: %w", PollyID, err)
	}
	if len(out.Timepoints) == 0 {
		return Response{}, fmt.Errorf("%s: %w (expected %d)", PollyID, ErrMissingTimepoints, len(req.ExpectedMarks))
	}
	return out, nil
}

func (p *Polly) call(ctx context.Context, in *polly.SynthesizeSpeechInput) ([]byte, error) {
	resp, err := p.api.SynthesizeSpeech(ctx, in)
	if err != nil {
		return nil, &BackendError{Backend: PollyID, Err: err}
	}
	defer func() { _ = resp.AudioStream.Close() }()

	data, err := io.ReadAll(resp.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("%s: read stream: %w", PollyID, err)
	}
	return data, nil
}

type speechMark struct {
	Time  int64  `json:"time"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ParseSpeechMarks reads newline-delimited speech mark records and keeps the
// ssml marks only. Offsets arrive in milliseconds.
func ParseSpeechMarks(r io.Reader) ([]Timepoint, error) {
	var out []Timepoint
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var m speechMark
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("speech mark line %d: %w", line, err)
		}
		if m.Type != "ssml" {
			continue
		}
		out = append(out, Timepoint{Name: m.Value, Seconds: float64(m.Time) / 1000.0})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Join(errors.New("read speech marks"), err)
	}
	return out, nil
}
