package text

import "strings"

var ssmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// EscapeSSML escapes the five XML special characters so arbitrary script text
// can be embedded between SSML tags.
func EscapeSSML(s string) string {
	return ssmlEscaper.Replace(s)
}
