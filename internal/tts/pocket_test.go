package tts

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/example/go-lesson-audio/internal/testutil"
)

func TestPocket_ArgsAndAvailability(t *testing.T) {
	orig := lookPath
	t.Cleanup(func() { lookPath = orig })

	lookPath = func(string) (string, error) { return "", exec.ErrNotFound }
	if NewPocket(PocketConfig{Enabled: true}, nil).Available() {
		t.Error("Available() with missing executable")
	}

	lookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }
	p := NewPocket(PocketConfig{Enabled: true, ConfigPath: "cfg.yaml", Quiet: true}, nil)
	if !p.Available() {
		t.Fatal("Available() = false")
	}
	got := strings.Join(p.args("voices/alba.safetensors"), " ")
	want := "generate --text - --output-path - --voice voices/alba.safetensors --config cfg.yaml --quiet"
	if got != want {
		t.Errorf("args = %q\nwant %q", got, want)
	}

	if NewPocket(PocketConfig{}, nil).Available() {
		t.Error("disabled adapter reports available")
	}
	if _, err := NewPocket(PocketConfig{}, nil).Synthesize(context.Background(), TimedSynthesisRequest{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v", err)
	}
}

func TestPocket_SynthesizeIntegration(t *testing.T) {
	testutil.RequirePocketTTS(t)

	p := NewPocket(PocketConfig{Enabled: true, Quiet: true}, nil)
	resp, err := p.Synthesize(context.Background(), TimedSynthesisRequest{Markup: "Hello.", VoiceID: "alba"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	testutil.AssertValidWAV(t, resp.Audio)
}
