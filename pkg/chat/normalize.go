package chat

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// joinPunctuation are characters that attach directly to the preceding
// word; whitespace at the token boundary before them is dropped.
const joinPunctuation = `.,;:!?)]}"'”’%`

// joiner repairs whitespace artifacts at model token boundaries. It
// withholds trailing whitespace until the next delta shows whether the
// boundary needs it.
type joiner struct {
	pending  string
	lastRune rune
}

// Append folds a delta in and returns the text safe to emit now.
func (j *joiner) Append(delta string) string {
	if delta == "" {
		return ""
	}

	core := strings.TrimLeftFunc(delta, unicode.IsSpace)
	j.pending += delta[:len(delta)-len(core)]
	if core == "" {
		return ""
	}

	first, _ := utf8.DecodeRuneInString(core)
	drop := strings.ContainsRune(joinPunctuation, first) ||
		(first == '-' && unicode.IsLetter(j.lastRune))
	if drop {
		j.pending = ""
	}

	body := strings.TrimRightFunc(core, unicode.IsSpace)
	out := j.pending + body
	j.pending = core[len(body):]

	for _, r := range body {
		j.lastRune = r
	}
	return out
}
