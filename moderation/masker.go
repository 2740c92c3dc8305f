// Package moderation masks banned terms in outgoing messages before they
// reach the store. Matching is case-insensitive via an Aho-Corasick
// automaton so a single pass covers the whole term list.
package moderation

import (
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
	goahocorasick "github.com/anknown/ahocorasick"
)

type Masker struct {
	matcher  *goahocorasick.Machine
	maskChar rune
	empty    bool
}

// NewMasker builds the automaton over the lowercased term list. An empty
// list yields a pass-through masker.
func NewMasker(terms []string, maskChar rune) (Masker, error) {
	if len(terms) == 0 {
		return Masker{maskChar: maskChar, empty: true}, nil
	}
	patterns := make([][]rune, 0, len(terms))
	for _, term := range terms {
		trimmed := strings.TrimSpace(term)
		if trimmed == "" {
			continue
		}
		patterns = append(patterns, []rune(strings.ToLower(trimmed)))
	}
	if len(patterns) == 0 {
		return Masker{maskChar: maskChar, empty: true}, nil
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return Masker{}, err
	}
	return Masker{matcher: m, maskChar: maskChar}, nil
}

// Mask replaces every banned term occurrence rune-for-rune with the mask
// character, preserving length and spacing, and returns the matched
// terms. The lowercased search text maps 1:1 onto the original runes, so
// match offsets apply directly.
func (m *Masker) Mask(original string) (string, []string) {
	if m.empty || original == "" {
		return original, nil
	}

	origRunes := []rune(original)
	lowered := make([]rune, len(origRunes))
	for i, r := range origRunes {
		lowered[i] = unicode.ToLower(r)
	}

	spans := m.matcher.MultiPatternSearch(lowered, false)
	if len(spans) == 0 {
		return original, nil
	}

	var matched []string
	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(origRunes) {
			continue
		}
		matched = append(matched, string(span.Word))
		for i := start; i < end; i++ {
			origRunes[i] = m.maskChar
		}
	}
	return string(origRunes), matched
}

// Language detects the dominant language of a message, for moderation
// logging only.
func Language(content string) string {
	info := whatlanggo.Detect(content)
	return info.Lang.Iso6391()
}
