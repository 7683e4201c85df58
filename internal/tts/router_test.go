package tts

import (
	"context"
	"errors"
	"testing"

	"github.com/example/go-lesson-audio/internal/script"
	"github.com/example/go-lesson-audio/internal/voice"
)

type fakeProvider struct {
	id        string
	caps      Capabilities
	available bool
	calls     int
	respond   func(call int, req TimedSynthesisRequest) (Response, error)
}

func (f *fakeProvider) ID() string { return f.id }
func (f *fakeProvider) Capabilities() Capabilities { return f.caps }
func (f *fakeProvider) Available() bool { return f.available }
func (f *fakeProvider) LanguageCode(string) (string, bool) {
	return "", false
}

func (f *fakeProvider) Synthesize(_ context.Context, req TimedSynthesisRequest) (Response, error) {
	f.calls++
	if f.respond == nil {
		return Response{Audio: []byte("RIFF")}, nil
	}
	return f.respond(f.calls, req)
}

func testCatalog(t *testing.T) *voice.Catalog {
	t.Helper()
	cat, err := voice.New([]voice.Voice{
		{ID: "ja-JP-Neural2-B", Provider: GoogleID, LanguageCode: "ja-JP", Gender: voice.GenderFemale},
		{ID: "Kazuha", Provider: PollyID, LanguageCode: "ja-JP", Gender: voice.GenderFemale},
		{ID: "Takumi", Provider: PollyID, LanguageCode: "ja-JP", Gender: voice.GenderMale},
		{ID: "nova", Provider: OpenAIID, LanguageCode: "en-US", Gender: voice.GenderFemale},
	})
	if err != nil {
		t.Fatal(err)
	}
	return cat
}

func TestRouter_Resolve(t *testing.T) {
	google := &fakeProvider{id: GoogleID, available: true}
	polly := &fakeProvider{id: PollyID, available: true}
	r := NewRouter(testCatalog(t), nil, google, polly)

	route, err := r.Resolve(script.Unit{Index: 3, Kind: script.KindPhrase, Text: "はい", VoiceID: "ja-JP-Neural2-B"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if route.Provider.ID() != GoogleID || route.LanguageCode != "ja-JP" || route.Substituted {
		t.Errorf("route = %+v", route)
	}

	route, err = r.Resolve(script.Unit{Index: 4, Kind: script.KindPhrase, Text: "x", VoiceID: "Takumi", LanguageCode: "ja"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if route.LanguageCode != "ja" {
		t.Errorf("unit language should win, got %q", route.LanguageCode)
	}
}

func TestRouter_FallsBackWhenBackendUnconfigured(t *testing.T) {
	google := &fakeProvider{id: GoogleID, available: false}
	polly := &fakeProvider{id: PollyID, available: true}
	r := NewRouter(testCatalog(t), nil, google, polly)

	route, err := r.Resolve(script.Unit{Kind: script.KindPhrase, Text: "x", VoiceID: "ja-JP-Neural2-B"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if route.Provider.ID() != PollyID || route.VoiceID != "Kazuha" || !route.Substituted {
		t.Errorf("route = %+v, want polly/Kazuha substituted", route)
	}
}

func TestRouter_Errors(t *testing.T) {
	r := NewRouter(testCatalog(t), nil, &fakeProvider{id: OpenAIID})

	if _, err := r.Resolve(script.Unit{VoiceID: "missing"}); !errors.Is(err, voice.ErrUnknownVoice) {
		t.Errorf("err = %v, want ErrUnknownVoice", err)
	}
	if _, err := r.Resolve(script.Unit{VoiceID: "nova"}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
	if got := len(r.Providers()); got != 1 {
		t.Errorf("Providers() = %d", got)
	}
}
