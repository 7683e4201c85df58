package text

import (
	"strings"
	"unicode/utf8"
)

func sentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '。', '！', '？':
		return true
	}
	return false
}

// wide terminators are not followed by a space in running text.
func wideEnd(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return r == '。' || r == '！' || r == '？'
}

// Sentences splits s after each terminator. Pieces are trimmed and empty
// pieces dropped; trailing text without a terminator is its own sentence.
func Sentences(s string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if !sentenceEnd(r) {
			continue
		}
		end := i + utf8.RuneLen(r)
		if piece := strings.TrimSpace(s[start:end]); piece != "" {
			out = append(out, piece)
		}
		start = end
	}
	if piece := strings.TrimSpace(s[start:]); piece != "" {
		out = append(out, piece)
	}
	return out
}

// SplitSentences groups consecutive sentences into chunks of at most
// maxChars runes. A sentence longer than maxChars is broken between words;
// a single word longer than maxChars is kept whole. maxChars <= 0 disables
// splitting.
func SplitSentences(s string, maxChars int) []string {
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		if s = strings.TrimSpace(s); s == "" {
			return nil
		}
		return []string{s}
	}

	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}
	add := func(piece string) {
		n := utf8.RuneCountInString(piece)
		sep := ""
		if cur.Len() > 0 && !wideEnd(cur.String()) {
			sep = " "
		}
		if cur.Len() > 0 && curLen+len(sep)+n > maxChars {
			flush()
			sep = ""
		}
		cur.WriteString(sep)
		cur.WriteString(piece)
		curLen += len(sep) + n
	}

	for _, sentence := range Sentences(s) {
		if utf8.RuneCountInString(sentence) <= maxChars {
			add(sentence)
			continue
		}
		flush()
		for _, w := range strings.Fields(sentence) {
			add(w)
		}
		flush()
	}
	flush()
	return chunks
}
