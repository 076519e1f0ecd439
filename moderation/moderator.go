// Package moderation masks forbidden words in chat messages before they are relayed and stored.
package moderation

import (
	"chat-relay/errors"
	"fmt"
	"log/slog"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Moderator matches a dictionary against a normalized form of each message,
// so leet speak and interleaved punctuation do not hide a word.
// A built Moderator is read-only and safe for concurrent use.
type Moderator struct {
	matcher      *goahocorasick.Machine
	censoredChar rune
	log          *slog.Logger
}

// textMapping keeps, for every normalized rune, the index of the rune it came from.
type textMapping struct {
	normalized []rune
	origIdx    []int
}

// NewModerator builds the Aho-Corasick automaton from the normalized dictionary.
// Entries that normalize to nothing (pure punctuation, blanks) are skipped.
func NewModerator(censoredWords []string, censoredChar rune, log *slog.Logger) (*Moderator, error) {
	patterns := make([][]rune, 0, len(censoredWords))
	for _, word := range censoredWords {
		if pattern := normalizeRunes([]rune(word)); len(pattern) > 0 {
			patterns = append(patterns, pattern)
		}
	}
	if len(patterns) == 0 {
		return nil, errors.ErrEmptyWords
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, fmt.Errorf("build moderation automaton: %w", err)
	}
	log.Debug(fmt.Sprintf("Moderation automaton built with %d patterns", len(patterns)))
	return &Moderator{matcher: m, censoredChar: censoredChar, log: log}, nil
}

// Censor replaces every matched word with the censored character, rune for rune, and
// returns the words found in order of appearance. Spacing and untouched text are preserved.
func (m *Moderator) Censor(original string) (string, []string) {
	mapping := normalize(original)
	if len(mapping.normalized) == 0 {
		return original, nil
	}

	terms := m.matcher.MultiPatternSearch(mapping.normalized, false)
	if len(terms) == 0 {
		return original, nil
	}

	origRunes := []rune(original)
	var found []string
	for _, term := range terms {
		start := term.Pos
		end := start + len(term.Word)
		if start < 0 || end > len(mapping.origIdx) {
			m.log.Debug("Match outside of the normalized text", "pos", start, "len", len(term.Word))
			continue
		}
		for i := mapping.origIdx[start]; i <= mapping.origIdx[end-1]; i++ {
			origRunes[i] = m.censoredChar
		}
		found = append(found, string(term.Word))
	}
	return string(origRunes), found
}

func normalize(input string) textMapping {
	origRunes := []rune(input)
	mapping := textMapping{
		normalized: make([]rune, 0, len(origRunes)),
		origIdx:    make([]int, 0, len(origRunes)),
	}
	for i, r := range origRunes {
		if clean, ok := clean(r); ok {
			mapping.normalized = append(mapping.normalized, clean)
			mapping.origIdx = append(mapping.origIdx, i)
		}
	}
	return mapping
}

func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if clean, ok := clean(r); ok {
			out = append(out, clean)
		}
	}
	return out
}

// clean lowers r after undoing leet substitutions. It reports false for noise.
func clean(r rune) (rune, bool) {
	r = simplifyRune(r)
	if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
		return 0, false
	}
	return unicode.ToLower(r), true
}

// simplifyRune maps common leet speak characters back to letters.
func simplifyRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}
