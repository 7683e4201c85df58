// Package script defines the typed lesson script consumed by the audio
// pipeline: an ordered list of narration, phrase, pause and marker units.
package script

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the type of one script unit.
type Kind string

const (
	KindNarration Kind = "narration"
	KindPhrase    Kind = "phrase"
	KindPause     Kind = "pause"
	KindMarker    Kind = "marker"
)

// Spoken reports whether units of this kind are sent to a synthesis backend.
func (k Kind) Spoken() bool {
	return k == KindNarration || k == KindPhrase
}

// ErrInvalidUnit is wrapped by every validation failure in this package.
var ErrInvalidUnit = errors.New("invalid script unit")

// Unit is one atomic element of a lesson. Units are values and are never
// mutated once a script has been built.
type Unit struct {
	Index        int     `json:"index" yaml:"index"`
	Kind         Kind    `json:"kind" yaml:"kind"`
	Text         string  `json:"text,omitempty" yaml:"text,omitempty"`
	VoiceID      string  `json:"voiceId,omitempty" yaml:"voice_id,omitempty"`
	LanguageCode string  `json:"languageCode,omitempty" yaml:"language_code,omitempty"`
	Speed        float64 `json:"speed,omitempty" yaml:"speed,omitempty"`
	PauseSeconds float64 `json:"pauseDurationSeconds,omitempty" yaml:"pause_seconds,omitempty"`
	Label        string  `json:"label,omitempty" yaml:"label,omitempty"`
}

// EffectiveSpeed returns the playback rate, treating zero as 1.0.
func (u Unit) EffectiveSpeed() float64 {
	if u.Speed <= 0 {
		return 1.0
	}
	return u.Speed
}

// Validate checks the per-kind field invariants.
func (u Unit) Validate() error {
	switch u.Kind {
	case KindNarration, KindPhrase:
		if strings.TrimSpace(u.Text) == "" {
			return fmt.Errorf("%w: unit %d (%s) has empty text", ErrInvalidUnit, u.Index, u.Kind)
		}
		if u.VoiceID == "" {
			return fmt.Errorf("%w: unit %d (%s) has no voice", ErrInvalidUnit, u.Index, u.Kind)
		}
		if u.PauseSeconds != 0 {
			return fmt.Errorf("%w: unit %d (%s) sets a pause duration", ErrInvalidUnit, u.Index, u.Kind)
		}
		if u.Speed < 0 {
			return fmt.Errorf("%w: unit %d has negative speed %v", ErrInvalidUnit, u.Index, u.Speed)
		}
	case KindPause:
		if u.PauseSeconds <= 0 {
			return fmt.Errorf("%w: pause unit %d needs a positive duration", ErrInvalidUnit, u.Index)
		}
		if u.Text != "" {
			return fmt.Errorf("%w: pause unit %d carries text", ErrInvalidUnit, u.Index)
		}
	case KindMarker:
		if u.Text != "" || u.PauseSeconds != 0 {
			return fmt.Errorf("%w: marker unit %d must not carry text or duration", ErrInvalidUnit, u.Index)
		}
	default:
		return fmt.Errorf("%w: unit %d has unknown kind %q", ErrInvalidUnit, u.Index, u.Kind)
	}
	return nil
}

// Script is an ordered lesson script.
type Script struct {
	LessonID       string `json:"lessonId" yaml:"lesson_id"`
	TargetLanguage string `json:"targetLanguage" yaml:"target_language"`
	NativeLanguage string `json:"nativeLanguage" yaml:"native_language"`
	Units          []Unit `json:"units" yaml:"units"`
}

// Validate checks every unit and that indices are 0..n-1 in order.
func (s Script) Validate() error {
	for i, u := range s.Units {
		if u.Index != i {
			return fmt.Errorf("%w: position %d has index %d", ErrInvalidUnit, i, u.Index)
		}
		if err := u.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// SpokenCount returns the number of units that need synthesis.
func (s Script) SpokenCount() int {
	n := 0
	for _, u := range s.Units {
		if u.Kind.Spoken() {
			n++
		}
	}
	return n
}

// Builder appends units with consecutive indices.
type Builder struct {
	units []Unit
}

// Add appends u, overwriting its index with the next position.
func (b *Builder) Add(u Unit) {
	u.Index = len(b.units)
	b.units = append(b.units, u)
}

// Narration appends a narration line.
func (b *Builder) Narration(voice, lang, text string) {
	b.Add(Unit{Kind: KindNarration, VoiceID: voice, LanguageCode: lang, Text: text})
}

// Phrase appends a target-language phrase at the given speed.
func (b *Builder) Phrase(voice, lang, text string, speed float64) {
	b.Add(Unit{Kind: KindPhrase, VoiceID: voice, LanguageCode: lang, Text: text, Speed: speed})
}

// Pause appends a silence of the given length.
func (b *Builder) Pause(seconds float64) {
	b.Add(Unit{Kind: KindPause, PauseSeconds: seconds})
}

// Marker appends a zero-length section marker.
func (b *Builder) Marker(label string) {
	b.Add(Unit{Kind: KindMarker, Label: label})
}

// Units returns a copy of the accumulated units.
func (b *Builder) Units() []Unit {
	return append([]Unit(nil), b.units...)
}

// Len returns the number of units added so far.
func (b *Builder) Len() int { return len(b.units) }
