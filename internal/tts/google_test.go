package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1beta1"
)

type fakeGoogleAPI struct {
	got  *texttospeech.SynthesizeSpeechRequest
	resp *texttospeech.SynthesizeSpeechResponse
	err  error
}

func (f *fakeGoogleAPI) Synthesize(_ context.Context, req *texttospeech.SynthesizeSpeechRequest) (*texttospeech.SynthesizeSpeechResponse, error) {
	f.got = req
	return f.resp, f.err
}

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func TestGoogle_SynthesizeRequestsMarks(t *testing.T) {
	api := &fakeGoogleAPI{resp: &texttospeech.SynthesizeSpeechResponse{
		AudioContent: b64("RIFF"),
		Timepoints: []*texttospeech.Timepoint{
			{MarkName: "u1", TimeSeconds: 0.8},
			{MarkName: "u2", TimeSeconds: 1.6},
		},
	}}
	g := newGoogleWithAPI(api, 4500)

	resp, err := g.Synthesize(context.Background(), TimedSynthesisRequest{
		Markup:        `<speak>a <mark name="u1"/>b <mark name="u2"/>c</speak>`,
		VoiceID:       "ja-JP-Neural2-B",
		Speed:         0.8,
		ExpectedMarks: []string{"u1", "u2"},
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(resp.Audio) != "RIFF" {
		t.Errorf("Audio = %q, want decoded content", resp.Audio)
	}
	if len(resp.Timepoints) != 2 || resp.Timepoints[1] != (Timepoint{Name: "u2", Seconds: 1.6}) {
		t.Errorf("Timepoints = %+v", resp.Timepoints)
	}
	if got := api.got.Voice.LanguageCode; got != "ja-JP" {
		t.Errorf("language = %q, want ja-JP", got)
	}
	if got := api.got.AudioConfig.SpeakingRate; got != 0.8 {
		t.Errorf("speaking rate = %v, want 0.8", got)
	}
	if got := api.got.EnableTimePointing; len(got) != 1 || got[0] != "SSML_MARK" {
		t.Errorf("EnableTimePointing = %v", got)
	}
	if api.got.Input.Ssml == "" {
		t.Error("markup not sent as SSML")
	}
}

func TestGoogle_NoMarksRequestedSkipsTimepointing(t *testing.T) {
	api := &fakeGoogleAPI{resp: &texttospeech.SynthesizeSpeechResponse{AudioContent: b64("x")}}
	g := newGoogleWithAPI(api, 0)

	if _, err := g.Synthesize(context.Background(), TimedSynthesisRequest{Markup: "<speak>a</speak>", VoiceID: "en-US-Neural2-C"}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(api.got.EnableTimePointing) != 0 {
		t.Errorf("EnableTimePointing = %v, want none", api.got.EnableTimePointing)
	}
}

func TestGoogle_MissingTimepointsIsFatal(t *testing.T) {
	g := newGoogleWithAPI(&fakeGoogleAPI{resp: &texttospeech.SynthesizeSpeechResponse{AudioContent: b64("x")}}, 0)

	_, err := g.Synthesize(context.Background(), TimedSynthesisRequest{
		Markup:        "<speak>a</speak>",
		VoiceID:       "en-US-Neural2-C",
		ExpectedMarks: []string{"u1"},
	})
	if !errors.Is(err, ErrMissingTimepoints) {
		t.Fatalf("err = %v, want ErrMissingTimepoints", err)
	}
	if IsRetryable(err) {
		t.Error("missing timepoints must not be retryable")
	}
}

func TestGoogle_ErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		retryable     bool
		notConfigured bool
	}{
		{"503", &googleapi.Error{Code: http.StatusServiceUnavailable}, true, false},
		{"429", &googleapi.Error{Code: http.StatusTooManyRequests}, true, false},
		{"401", &googleapi.Error{Code: http.StatusUnauthorized}, false, true},
		{"403", &googleapi.Error{Code: http.StatusForbidden}, false, true},
		{"400", &googleapi.Error{Code: http.StatusBadRequest, Message: "bad ssml"}, false, false},
		{"transport", errors.New("connection reset"), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGoogleWithAPI(&fakeGoogleAPI{err: tt.err}, 0)
			_, err := g.Synthesize(context.Background(), TimedSynthesisRequest{Markup: "<speak>a</speak>", VoiceID: "en-US-x-y"})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := IsRetryable(err); got != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v (%v)", got, tt.retryable, err)
			}
			if got := errors.Is(err, ErrNotConfigured); got != tt.notConfigured {
				t.Errorf("ErrNotConfigured = %v (%v)", got, err)
			}
		})
	}
}

func TestGoogle_RESTRoundTrip(t *testing.T) {
	var got texttospeech.SynthesizeSpeechRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/text:synthesize") {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"audioContent": b64("RIFFdata"),
			"timepoints":   []map[string]any{{"markName": "u1", "timeSeconds": 0.5}},
		})
	}))
	defer srv.Close()

	svc, err := texttospeech.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	g := newGoogleWithAPI(googleClient{svc: svc}, 0)

	resp, err := g.Synthesize(context.Background(), TimedSynthesisRequest{
		Markup:        `<speak>a <mark name="u1"/>b</speak>`,
		VoiceID:       "ja-JP-Neural2-B",
		ExpectedMarks: []string{"u1"},
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(resp.Audio) != "RIFFdata" {
		t.Errorf("Audio = %q", resp.Audio)
	}
	if len(resp.Timepoints) != 1 || resp.Timepoints[0].Name != "u1" {
		t.Errorf("Timepoints = %+v", resp.Timepoints)
	}
	if len(got.EnableTimePointing) != 1 || got.AudioConfig.AudioEncoding != "LINEAR16" {
		t.Errorf("request = %+v", got)
	}
}

func TestGoogle_RESTErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"code":503,"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc, err := texttospeech.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	g := newGoogleWithAPI(googleClient{svc: svc}, 0)

	_, err = g.Synthesize(context.Background(), TimedSynthesisRequest{Markup: "<speak>a</speak>", VoiceID: "en-US-x-y"})
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("err = %v, want ErrBackendUnavailable", err)
	}
}

func TestGoogle_LanguageCode(t *testing.T) {
	g := newGoogleWithAPI(nil, 0)
	tests := map[string]string{
		"ja-JP-Neural2-B":  "ja-JP",
		"cmn-CN-Wavenet-A": "cmn-CN",
	}
	for id, want := range tests {
		if got, ok := g.LanguageCode(id); !ok || got != want {
			t.Errorf("LanguageCode(%q) = %q, %v; want %q", id, got, ok, want)
		}
	}
	if _, ok := g.LanguageCode("alloy"); ok {
		t.Error("LanguageCode(alloy) should fail")
	}
	if g.Available() {
		t.Error("adapter without client must be unavailable")
	}
}
