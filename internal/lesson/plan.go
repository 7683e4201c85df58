// Package lesson schedules core items into timed lesson sections and spaced
// repetition drills, and renders a plan into a script.
package lesson

import (
	"fmt"
	"math"
	"sort"
)

// Item is one core vocabulary or phrase item.
type Item struct {
	ID          string `json:"id" yaml:"id"`
	Text        string `json:"text" yaml:"text"`
	Translation string `json:"translation" yaml:"translation"`
	Reading     string `json:"reading,omitempty" yaml:"reading,omitempty"`
}

// DialogueLine is one exchange of the optional dialogue.
type DialogueLine struct {
	Speaker     string `json:"speaker" yaml:"speaker"`
	Text        string `json:"text" yaml:"text"`
	Translation string `json:"translation,omitempty" yaml:"translation,omitempty"`
}

// SectionKind names a lesson section. Sections always appear in the order
// of Kinds.
type SectionKind string

const (
	SectionIntro               SectionKind = "intro"
	SectionVocabIntro          SectionKind = "vocab_intro"
	SectionEarlySRS            SectionKind = "early_srs"
	SectionPhraseConstruction  SectionKind = "phrase_construction"
	SectionDialogueIntegration SectionKind = "dialogue_integration"
	SectionQA                  SectionKind = "qa"
	SectionRoleplay            SectionKind = "roleplay"
	SectionLateSRS             SectionKind = "late_srs"
	SectionOutro               SectionKind = "outro"
)

// Section durations in seconds.
const (
	IntroSeconds         = 120.0
	VocabSecondsPerItem  = 90.0
	EarlySecondsPerItem  = 30.0
	PhraseSeconds        = 120.0
	DialogueSeconds      = 180.0
	QASeconds            = 180.0
	RoleplaySeconds      = 240.0
	LateReviewSeconds    = 300.0
	OutroSeconds         = 60.0
	DrillOverheadSeconds = 12.0

	// MaxItemsPerLesson is the vocabulary intro capacity.
	MaxItemsPerLesson = 5
)

// DrillIntervals are the offsets from an item's introduction, by rank.
var DrillIntervals = [...]float64{5, 15, 45, 120, 300}

// DrillType is assigned by interval rank.
type DrillType string

const (
	DrillRecall    DrillType = "recall"
	DrillTransform DrillType = "transform"
	DrillContext   DrillType = "context"
	DrillExpand    DrillType = "expand"
)

// DrillTypeForRank maps ranks 0-1 to recall, 2 to transform, 3 to context and
// 4 to expand.
func DrillTypeForRank(rank int) DrillType {
	switch rank {
	case 0, 1:
		return DrillRecall
	case 2:
		return DrillTransform
	case 3:
		return DrillContext
	default:
		return DrillExpand
	}
}

// Section is one timed block of a lesson.
type Section struct {
	Kind        SectionKind `json:"kind"`
	Start       float64     `json:"start"`
	Duration    float64     `json:"duration"`
	ItemIndexes []int       `json:"itemIndexes,omitempty"`
}

// End is Start + Duration.
func (s Section) End() float64 { return s.Start + s.Duration }

// DrillEvent is one scheduled re-exposure of an item.
type DrillEvent struct {
	ItemIndex    int       `json:"itemIndex"`
	Rank         int       `json:"rank"`
	Type         DrillType `json:"type"`
	IntroOffset  float64   `json:"introOffset"`
	TargetOffset float64   `json:"targetOffset"`
}

// Plan is one lesson. Part numbers start at 1 when items were split across
// several lessons.
type Plan struct {
	Part             int          `json:"part"`
	Items            []Item       `json:"items"`
	Sections         []Section    `json:"sections"`
	Drills           []DrillEvent `json:"drills"`
	EstimatedSeconds float64      `json:"estimatedSeconds"`
}

// Section returns the first section of the given kind.
func (p Plan) Section(kind SectionKind) (Section, bool) {
	for _, s := range p.Sections {
		if s.Kind == kind {
			return s, true
		}
	}
	return Section{}, false
}

// fixedSeconds is the item-independent part of a lesson with items.
const fixedSeconds = IntroSeconds + PhraseSeconds + DialogueSeconds + QASeconds +
	RoleplaySeconds + LateReviewSeconds + OutroSeconds

// perItemSeconds estimates what one more item adds to a lesson.
var perItemSeconds = VocabSecondsPerItem + EarlySecondsPerItem + float64(len(DrillIntervals))*DrillOverheadSeconds

// PlanLesson schedules items into one lesson, or several when the estimate
// exceeds maxDurationMinutes or the item count exceeds the vocabulary intro
// capacity. A zero budget means unbounded. Splits preserve item order and
// keep each item's drills in its own lesson. The per-item split size is an
// estimate, so a resulting part may still exceed the budget.
func PlanLesson(items []Item, maxDurationMinutes float64) ([]Plan, error) {
	if maxDurationMinutes < 0 || math.IsNaN(maxDurationMinutes) {
		return nil, fmt.Errorf("invalid lesson budget %v minutes", maxDurationMinutes)
	}
	if len(items) == 0 {
		return []Plan{emptyPlan()}, nil
	}

	budget := maxDurationMinutes * 60
	whole := buildPlan(items)
	if len(items) <= MaxItemsPerLesson && (budget == 0 || whole.EstimatedSeconds <= budget) {
		whole.Part = 1
		return []Plan{whole}, nil
	}

	per := itemsPerLesson(budget)
	var plans []Plan
	for start := 0; start < len(items); start += per {
		end := start + per
		if end > len(items) {
			end = len(items)
		}
		p := buildPlan(items[start:end])
		p.Part = len(plans) + 1
		plans = append(plans, p)
	}
	return plans, nil
}

func itemsPerLesson(budget float64) int {
	if budget == 0 {
		return MaxItemsPerLesson
	}
	n := int(math.Floor((budget - fixedSeconds) / perItemSeconds))
	if n < 1 {
		n = 1
	}
	if n > MaxItemsPerLesson {
		n = MaxItemsPerLesson
	}
	return n
}

func emptyPlan() Plan {
	p := Plan{
		Part: 1,
		Sections: []Section{
			{Kind: SectionIntro, Start: 0, Duration: IntroSeconds},
			{Kind: SectionOutro, Start: IntroSeconds, Duration: OutroSeconds},
		},
	}
	p.EstimatedSeconds = IntroSeconds + OutroSeconds
	return p
}

func buildPlan(items []Item) Plan {
	n := len(items)
	featured := n
	if featured > MaxItemsPerLesson {
		featured = MaxItemsPerLesson
	}
	first := make([]int, featured)
	all := make([]int, n)
	for i := range all {
		all[i] = i
		if i < featured {
			first[i] = i
		}
	}

	layout := []Section{
		{Kind: SectionIntro, Duration: IntroSeconds},
		{Kind: SectionVocabIntro, Duration: VocabSecondsPerItem * float64(featured), ItemIndexes: first},
		{Kind: SectionEarlySRS, Duration: EarlySecondsPerItem * float64(featured), ItemIndexes: first},
		{Kind: SectionPhraseConstruction, Duration: PhraseSeconds},
		{Kind: SectionDialogueIntegration, Duration: DialogueSeconds},
		{Kind: SectionQA, Duration: QASeconds},
		{Kind: SectionRoleplay, Duration: RoleplaySeconds},
		{Kind: SectionLateSRS, Duration: LateReviewSeconds, ItemIndexes: all},
		{Kind: SectionOutro, Duration: OutroSeconds},
	}
	clock := 0.0
	for i := range layout {
		layout[i].Start = clock
		clock += layout[i].Duration
	}

	vocabStart := layout[1].Start
	var drills []DrillEvent
	for i := 0; i < featured; i++ {
		intro := vocabStart + float64(i)*VocabSecondsPerItem
		for rank, interval := range DrillIntervals {
			drills = append(drills, DrillEvent{
				ItemIndex:    i,
				Rank:         rank,
				Type:         DrillTypeForRank(rank),
				IntroOffset:  intro,
				TargetOffset: intro + interval,
			})
		}
	}
	sort.SliceStable(drills, func(a, b int) bool {
		da, db := drills[a], drills[b]
		if da.TargetOffset != db.TargetOffset {
			return da.TargetOffset < db.TargetOffset
		}
		if da.ItemIndex != db.ItemIndex {
			return da.ItemIndex < db.ItemIndex
		}
		return da.Rank < db.Rank
	})

	return Plan{
		Items:            append([]Item(nil), items...),
		Sections:         layout,
		Drills:           drills,
		EstimatedSeconds: clock + DrillOverheadSeconds*float64(len(drills)),
	}
}
