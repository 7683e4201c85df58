package text

import (
	"errors"
	"strings"
	"unicode"
)

// ErrEmptyText is returned when nothing speakable is left after cleaning.
var ErrEmptyText = errors.New("text is empty")

// CollapseWhitespace folds runs of Unicode whitespace
// into single spaces.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Clean prepares script text for synthesis. Control and zero-width
// characters are dropped and whitespace is collapsed.
func Clean(s string) (string, error) {
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return r
		case unicode.IsControl(r), r == '\u200b', r == '\u200c', r == '\ufeff':
			return -1
		}
		return r
	}, s)

	s = CollapseWhitespace(s)
	if s == "" {
		return "", ErrEmptyText
	}
	return s, nil
}
