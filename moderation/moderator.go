// Package moderation censors forbidden words in message content before the
// message reaches the durable log. Matching runs on a normalized view of
// the text (lowercased, noise stripped, common leet substitutions undone)
// while the replacement happens on the original runes, so spacing and
// casing around a censored span survive.
package moderation

import (
	"fmt"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

type Moderator struct {
	matcher     *goahocorasick.Machine
	replacement rune
}

// NewModerator builds the Aho-Corasick automaton over the normalized word
// list.
func NewModerator(words []string, replacement rune) (*Moderator, error) {
	patterns := make([][]rune, len(words))
	for i, word := range words {
		normalized, _ := normalize([]rune(word))
		patterns[i] = normalized
	}

	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{matcher: machine, replacement: replacement}, nil
}

// Censor replaces every rune of a matched span with the replacement rune.
func (m *Moderator) Censor(content string) string {
	original := []rune(content)
	normalized, positions := normalize(original)
	if len(normalized) == 0 {
		return content
	}

	spans := m.matcher.MultiPatternSearch(normalized, false)
	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(positions) {
			continue
		}
		// positions maps normalized indexes back to the original runes.
		for i := positions[start]; i <= positions[end-1]; i++ {
			original[i] = m.replacement
		}
	}
	return string(original)
}

// normalize lowers the text, drops punctuation, spacing and symbols, and
// undoes leet substitutions. The second return value maps every normalized
// rune back to its index in the input.
func normalize(input []rune) ([]rune, []int) {
	normalized := make([]rune, 0, len(input))
	positions := make([]int, 0, len(input))
	for i, r := range input {
		r = unleet(r)
		if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			continue
		}
		normalized = append(normalized, unicode.ToLower(r))
		positions = append(positions, i)
	}
	return normalized, positions
}

func unleet(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3':
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

// Rune validates that a configured replacement string holds exactly one
// character.
func Rune(str string) (rune, error) {
	runes := []rune(str)
	if len(runes) != 1 {
		return 0, fmt.Errorf("replacement must be a single character, got %q", str)
	}
	return runes[0], nil
}
