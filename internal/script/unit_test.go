package script

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-lesson-audio/internal/text"
)

func TestUnitValidate(t *testing.T) {
	tests := []struct {
		name    string
		unit    Unit
		wantErr bool
	}{
		{name: "narration ok", unit: Unit{Kind: KindNarration, Text: "Hi", VoiceID: "v"}},
		{name: "phrase without text", unit: Unit{Kind: KindPhrase, VoiceID: "v"}, wantErr: true},
		{name: "phrase without voice", unit: Unit{Kind: KindPhrase, Text: "hola"}, wantErr: true},
		{name: "phrase with pause duration", unit: Unit{Kind: KindPhrase, Text: "hola", VoiceID: "v", PauseSeconds: 1}, wantErr: true},
		{name: "negative speed", unit: Unit{Kind: KindPhrase, Text: "hola", VoiceID: "v", Speed: -1}, wantErr: true},
		{name: "pause ok", unit: Unit{Kind: KindPause, PauseSeconds: 2.5}},
		{name: "pause zero", unit: Unit{Kind: KindPause}, wantErr: true},
		{name: "pause with text", unit: Unit{Kind: KindPause, PauseSeconds: 1, Text: "x"}, wantErr: true},
		{name: "marker ok", unit: Unit{Kind: KindMarker, Label: "intro"}},
		{name: "marker with text", unit: Unit{Kind: KindMarker, Text: "x"}, wantErr: true},
		{name: "unknown kind", unit: Unit{Kind: "song"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.unit.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidUnit) {
					t.Fatalf("want ErrInvalidUnit, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestScriptValidate_RejectsGappedIndices(t *testing.T) {
	s := Script{Units: []Unit{
		{Index: 0, Kind: KindMarker},
		{Index: 2, Kind: KindMarker},
	}}
	if err := s.Validate(); !errors.Is(err, ErrInvalidUnit) {
		t.Fatalf("want ErrInvalidUnit, got %v", err)
	}
}

func TestBuilder_AssignsConsecutiveIndices(t *testing.T) {
	var b Builder
	b.Marker("intro")
	b.Narration("narrator", "en-US", "Welcome.")
	b.Pause(1.5)
	b.Phrase("ja", "ja-JP", "こんにちは", 0.8)

	units := b.Units()
	for i, u := range units {
		if u.Index != i {
			t.Fatalf("unit %d has index %d", i, u.Index)
		}
	}
	if err := (Script{Units: units}).Validate(); err != nil {
		t.Fatalf("built script invalid: %v", err)
	}
	if got := (Script{Units: units}).SpokenCount(); got != 2 {
		t.Errorf("SpokenCount = %d, want 2", got)
	}
	if units[3].EffectiveSpeed() != 0.8 || units[1].EffectiveSpeed() != 1.0 {
		t.Errorf("unexpected speeds: %v %v", units[3].EffectiveSpeed(), units[1].EffectiveSpeed())
	}
}

func TestLoad_YAMLFillsLanguagesAndIndices(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lesson.yaml")
	body := `lesson_id: l1
target_language: ja-JP
native_language: en-US
units:
  - kind: marker
    label: intro
  - kind: narration
    voice_id: en-US-Neural2-D
    text: "  Welcome\n to the   lesson. "
  - kind: pause
    pause_seconds: 2
  - kind: phrase
    voice_id: ja-JP-Neural2-B
    text: おはよう
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.Units) != 4 {
		t.Fatalf("units = %d, want 4", len(s.Units))
	}
	if s.Units[1].Text != "Welcome to the lesson." {
		t.Errorf("narration text = %q", s.Units[1].Text)
	}
	if s.Units[1].LanguageCode != "en-US" || s.Units[3].LanguageCode != "ja-JP" {
		t.Errorf("languages = %q, %q", s.Units[1].LanguageCode, s.Units[3].LanguageCode)
	}
	if s.Units[3].Index != 3 {
		t.Errorf("index = %d, want 3", s.Units[3].Index)
	}
}

func TestParse_JSONRejectsInvalidUnit(t *testing.T) {
	_, err := Parse([]byte(`{"units":[{"kind":"pause"}]}`), ".json")
	if !errors.Is(err, ErrInvalidUnit) {
		t.Fatalf("want ErrInvalidUnit, got %v", err)
	}
}

func TestParse_RejectsUnspeakableText(t *testing.T) {
	_, err := Parse([]byte(`{"units":[{"kind":"narration","voiceId":"v","text":"\u200b \u0007"}]}`), ".json")
	if !errors.Is(err, ErrInvalidUnit) || !errors.Is(err, text.ErrEmptyText) {
		t.Fatalf("want ErrInvalidUnit wrapping ErrEmptyText, got %v", err)
	}
}
