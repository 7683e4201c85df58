package lesson

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/example/go-lesson-audio/internal/script"
	"github.com/example/go-lesson-audio/internal/text"
)

// Content supplies the language, voices and dialogue a plan is rendered with.
type Content struct {
	LessonID       string
	TargetLanguage string
	NativeLanguage string
	NarratorVoice  string
	TargetVoice    string
	// SpeakerVoices maps dialogue speakers to target-language voices.
	SpeakerVoices map[string]string
	Dialogue      []DialogueLine
}

// Rendering constants. Speech rates feed the estimated clock used to place
// drills; they are not measured.
const (
	narrationCharsPerSecond = 14.0
	phraseCharsPerSecond    = 8.0
	maxNarrationChars       = 400
	anticipationSeconds     = 3.0
	repeatPauseSeconds      = 1.5
	slowSpeed               = 0.75
)

type renderer struct {
	b      script.Builder
	c      Content
	plan   Plan
	clock  float64
	drills []DrillEvent
}

// BuildScript renders a plan into script units. Drill prompts are inserted
// as soon as the estimated clock reaches their target offset; any left over
// are played before the outro.
func BuildScript(plan Plan, c Content) (script.Script, error) {
	if c.NarratorVoice == "" {
		return script.Script{}, fmt.Errorf("narrator voice is required")
	}
	if c.TargetVoice == "" && len(plan.Items) > 0 {
		return script.Script{}, fmt.Errorf("target voice is required")
	}

	r := &renderer{c: c, plan: plan, drills: append([]DrillEvent(nil), plan.Drills...)}
	for _, sec := range plan.Sections {
		if sec.Kind == SectionOutro {
			r.flushDrills(-1)
		}
		r.b.Marker(fmt.Sprintf("section:%s", sec.Kind))
		r.section(sec)
	}

	s := script.Script{
		LessonID:       c.LessonID,
		TargetLanguage: c.TargetLanguage,
		NativeLanguage: c.NativeLanguage,
		Units:          r.b.Units(),
	}
	if plan.Part > 1 {
		s.LessonID = fmt.Sprintf("%s-part%d", c.LessonID, plan.Part)
	}
	return s, s.Validate()
}

func (r *renderer) narrate(s string) {
	for _, chunk := range text.SplitSentences(s, maxNarrationChars) {
		r.flushDrills(r.clock)
		r.b.Narration(r.c.NarratorVoice, r.c.NativeLanguage, chunk)
		r.clock += float64(utf8.RuneCountInString(chunk)) / narrationCharsPerSecond
	}
}

func (r *renderer) phrase(voice, s string, speed float64) {
	if voice == "" {
		voice = r.c.TargetVoice
	}
	r.flushDrills(r.clock)
	r.b.Phrase(voice, r.c.TargetLanguage, s, speed)
	if speed <= 0 {
		speed = 1
	}
	r.clock += float64(utf8.RuneCountInString(s)) / phraseCharsPerSecond / speed
}

func (r *renderer) pause(seconds float64) {
	r.b.Pause(seconds)
	r.clock += seconds
}

// flushDrills emits every pending drill due at or before until; a negative
// until flushes everything.
func (r *renderer) flushDrills(until float64) {
	for len(r.drills) > 0 {
		d := r.drills[0]
		if until >= 0 && d.TargetOffset > until {
			return
		}
		r.drills = r.drills[1:]
		r.drill(d)
	}
}

func (r *renderer) drill(d DrillEvent) {
	item := r.plan.Items[d.ItemIndex]
	r.b.Marker(fmt.Sprintf("drill:%s:%d", itemKey(item, d.ItemIndex), d.Rank))

	// Recursion guard: drills never trigger other drills.
	pending := r.drills
	r.drills = nil
	defer func() { r.drills = pending }()

	switch d.Type {
	case DrillRecall:
		r.narrate(fmt.Sprintf("How do you say: %s?", item.Translation))
		r.pause(anticipationSeconds)
		r.phrase("", item.Text, 0)
	case DrillTransform:
		r.narrate(fmt.Sprintf("Say it slowly this time: %s.", item.Translation))
		r.pause(anticipationSeconds)
		r.phrase("", item.Text, slowSpeed)
	case DrillContext:
		r.narrate(fmt.Sprintf("Imagine you need to say this to a friend: %s.", item.Translation))
		r.pause(anticipationSeconds + 1)
		r.phrase("", item.Text, 0)
	default:
		r.narrate(fmt.Sprintf("Say it, then say it once more with confidence: %s.", item.Translation))
		r.pause(anticipationSeconds)
		r.phrase("", item.Text, 0)
		r.pause(repeatPauseSeconds)
		r.phrase("", item.Text, 0)
	}
	r.pause(repeatPauseSeconds)
}

func itemKey(it Item, i int) string {
	if it.ID != "" {
		return it.ID
	}
	return fmt.Sprintf("item%d", i)
}

func (r *renderer) section(sec Section) {
	items := r.plan.Items
	switch sec.Kind {
	case SectionIntro:
		if len(items) == 0 {
			r.narrate("Welcome. There are no new phrases in this lesson.")
		} else {
			r.narrate(fmt.Sprintf("Welcome. In this lesson you will learn %d new phrases. Listen, and repeat out loud when you hear a pause.", len(items)))
		}
		r.pause(1)
	case SectionVocabIntro:
		for _, i := range sec.ItemIndexes {
			it := items[i]
			r.b.Marker("item:" + itemKey(it, i))
			r.narrate(fmt.Sprintf("Here is a new phrase. It means: %s.", it.Translation))
			r.pause(0.5)
			r.phrase("", it.Text, slowSpeed)
			r.pause(repeatPauseSeconds + 1)
			r.phrase("", it.Text, 0)
			r.pause(repeatPauseSeconds + 1)
			if it.Reading != "" && it.Reading != it.Text {
				r.narrate(fmt.Sprintf("It is read as %s.", it.Reading))
			}
		}
	case SectionEarlySRS:
		r.narrate("Let's practice what you just heard.")
		r.pause(1)
	case SectionPhraseConstruction:
		r.narrate("Now let's put phrases together.")
		for i := 0; i+1 < len(items); i++ {
			a, b := items[i], items[i+1]
			r.narrate(fmt.Sprintf("Try saying %s, then %s.", a.Translation, b.Translation))
			r.pause(anticipationSeconds + 1)
			r.phrase("", a.Text, 0)
			r.phrase("", b.Text, 0)
			r.pause(repeatPauseSeconds)
		}
	case SectionDialogueIntegration:
		if len(r.c.Dialogue) == 0 {
			return
		}
		r.narrate("Listen to this conversation.")
		for _, line := range r.c.Dialogue {
			r.phrase(r.c.SpeakerVoices[line.Speaker], line.Text, 0)
			r.pause(0.8)
		}
	case SectionQA:
		for _, line := range r.c.Dialogue {
			if strings.TrimSpace(line.Translation) == "" {
				continue
			}
			r.narrate(fmt.Sprintf("How would you say: %s?", line.Translation))
			r.pause(anticipationSeconds + 1)
			r.phrase(r.c.SpeakerVoices[line.Speaker], line.Text, 0)
			r.pause(repeatPauseSeconds)
		}
	case SectionRoleplay:
		if len(r.c.Dialogue) == 0 {
			return
		}
		r.narrate("Now it's your turn. Take the second part in the conversation.")
		for i, line := range r.c.Dialogue {
			if i%2 == 1 {
				r.pause(anticipationSeconds + 1)
			}
			r.phrase(r.c.SpeakerVoices[line.Speaker], line.Text, 0)
			r.pause(0.8)
		}
	case SectionLateSRS:
		if len(sec.ItemIndexes) == 0 {
			return
		}
		r.narrate("Let's review everything from this lesson.")
		for _, i := range sec.ItemIndexes {
			it := items[i]
			r.narrate(it.Translation)
			r.pause(anticipationSeconds)
			r.phrase("", it.Text, 0)
			r.pause(repeatPauseSeconds)
		}
	case SectionOutro:
		r.narrate("Great work. That's the end of this lesson.")
	}
}
