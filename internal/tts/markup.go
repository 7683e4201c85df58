package tts

import (
	"fmt"
	"strings"

	"github.com/example/go-lesson-audio/internal/text"
)

// MarkupBuilder renders one request payload incrementally so the batch planner
// can inject a mark and append its unit in the same step.
type MarkupBuilder struct {
	caps  Capabilities
	speed float64
	body  strings.Builder
	units int
}

// NewMarkupBuilder starts an empty payload for the given backend and speed.
func NewMarkupBuilder(caps Capabilities, speed float64) *MarkupBuilder {
	if speed <= 0 {
		speed = 1.0
	}
	return &MarkupBuilder{caps: caps, speed: speed}
}

// fragment is the text added for the next unit, including its mark.
func (m *MarkupBuilder) fragment(mark, unitText string) string {
	if m.caps.Dialect != DialectSSML {
		t := text.CollapseWhitespace(unitText)
		if m.units > 0 {
			return " " + t
		}
		return t
	}

	var b strings.Builder
	if m.units > 0 {
		b.WriteByte(' ')
	}
	if m.needsMark() {
		fmt.Fprintf(&b, `<mark name="%s"/>`, mark)
	}
	b.WriteString(text.EscapeSSML(text.CollapseWhitespace(unitText)))
	return b.String()
}

func (m *MarkupBuilder) needsMark() bool {
	if m.caps.Timing == TimingNone {
		return false
	}
	return m.units > 0 || m.caps.Convention == MarksLeading
}

func (m *MarkupBuilder) open() string {
	if m.caps.Dialect != DialectSSML {
		return ""
	}
	if m.prosody() {
		return fmt.Sprintf(`<speak><prosody rate="%d%%">`, int(m.speed*100+0.5))
	}
	return "<speak>"
}

func (m *MarkupBuilder) close() string {
	if m.caps.Dialect != DialectSSML {
		return ""
	}
	if m.prosody() {
		return "</prosody></speak>"
	}
	return "</speak>"
}

func (m *MarkupBuilder) prosody() bool {
	return m.caps.SpeedInMarkup && m.speed != 1.0
}

// Fits reports whether appending the unit keeps the rendered payload within
// the backend's character limit. A zero limit is unbounded.
func (m *MarkupBuilder) Fits(mark, unitText string) bool {
	if m.caps.MaxChars <= 0 {
		return true
	}
	return m.Len()+len(m.fragment(mark, unitText)) <= m.caps.MaxChars
}

// Append adds the unit. The mark is emitted exactly at the unit's start when
// the convention calls for one, and is returned so callers can record it.
func (m *MarkupBuilder) Append(mark, unitText string) (emitted string) {
	if m.needsMark() {
		emitted = mark
	}
	m.body.WriteString(m.fragment(mark, unitText))
	m.units++
	return emitted
}

// Units returns how many units have been appended.
func (m *MarkupBuilder) Units() int { return m.units }

// Len is the length of String().
func (m *MarkupBuilder) Len() int {
	return len(m.open()) + m.body.Len() + len(m.close())
}

// String renders the complete payload.
func (m *MarkupBuilder) String() string {
	return m.open() + m.body.String() + m.close()
}
