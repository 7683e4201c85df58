package text

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
	"github.com/mozillazg/go-pinyin"
)

// Reader produces the pronunciation of target-language text in a phonetic
// script a learner can read aloud.
type Reader interface {
	Reading(s string) (string, error)
}

// ReaderFor returns the reader for a BCP-47 language code, or nil when the
// language is written phonetically already.
func ReaderFor(lang string) Reader {
	base, _, _ := strings.Cut(strings.ToLower(lang), "-")
	switch base {
	case "ja":
		return Kana{}
	case "zh", "cmn", "yue":
		return Pinyin{}
	}
	return nil
}

// Pinyin romanizes Han characters one syllable per character. Runs of other
// characters are kept as they are.
type Pinyin struct {
	// ToneNumbers writes "ni3 hao3" instead of "nǐ hǎo".
	ToneNumbers bool
}

func (p Pinyin) Reading(s string) (string, error) {
	args := pinyin.NewArgs()
	args.Style = pinyin.Tone
	if p.ToneNumbers {
		args.Style = pinyin.Tone3
	}

	var parts []string
	var han, other strings.Builder
	flush := func() {
		if han.Len() > 0 {
			parts = append(parts, pinyin.LazyPinyin(han.String(), args)...)
			han.Reset()
		}
		if o := strings.TrimSpace(other.String()); o != "" {
			parts = append(parts, o)
		}
		other.Reset()
	}
	for _, r := range s {
		isHan := unicode.Is(unicode.Han, r)
		if (isHan && other.Len() > 0) || (!isHan && han.Len() > 0) {
			flush()
		}
		if isHan {
			han.WriteRune(r)
		} else {
			other.WriteRune(r)
		}
	}
	flush()
	return strings.Join(parts, " "), nil
}

var ipaTokenizer = sync.OnceValues(func() (*tokenizer.Tokenizer, error) {
	return tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
})

// Kana spells Japanese text in hiragana using the IPA dictionary readings.
// Tokens the dictionary does not know keep their surface form.
type Kana struct{}

func (Kana) Reading(s string) (string, error) {
	t, err := ipaTokenizer()
	if err != nil {
		return "", fmt.Errorf("load ipa dictionary: %w", err)
	}
	var b strings.Builder
	for _, tok := range t.Tokenize(s) {
		if r, ok := tok.Reading(); ok && r != "" && r != "*" {
			b.WriteString(ToHiragana(r))
			continue
		}
		b.WriteString(tok.Surface)
	}
	return b.String(), nil
}

// ToHiragana maps katakana to hiragana and leaves everything else alone.
func ToHiragana(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'ァ' && r <= 'ヶ' {
			return r - 0x60
		}
		return r
	}, s)
}
