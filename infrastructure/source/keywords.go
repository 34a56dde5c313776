package source

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
)

// fuzzyMinRunes is the keyword length from which one edit of slack is
// allowed, so "artifical" still matches "artificial" while short words
// like "art" only match exactly.
const fuzzyMinRunes = 8

// KeywordMatcher decides whether free-form vendor text (a label, a caption)
// points at synthetic imagery. Matching is case-folded; long keywords
// tolerate a single typo per word.
type KeywordMatcher struct {
	keywords []string
}

// NewKeywordMatcher creates a matcher for the given keywords. Empty
// keywords are ignored.
func NewKeywordMatcher(keywords []string) *KeywordMatcher {
	folder := cases.Fold()
	folded := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(folder.String(k))
		if k != "" {
			folded = append(folded, k)
		}
	}
	return &KeywordMatcher{keywords: folded}
}

// Match reports whether text contains any keyword.
func (m *KeywordMatcher) Match(text string) bool {
	if len(m.keywords) == 0 {
		return false
	}
	// cases.Caser is stateful and not safe for concurrent use.
	folded := cases.Fold().String(text)
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !(r == '-' || r == '\'' || isWordRune(r))
	})

	for _, k := range m.keywords {
		if strings.Contains(folded, k) {
			return true
		}
		if strings.Contains(k, " ") || utf8.RuneCountInString(k) < fuzzyMinRunes {
			continue
		}
		for _, w := range words {
			if levenshtein.ComputeDistance(w, k) <= 1 {
				return true
			}
		}
	}
	return false
}

func isWordRune(r rune) bool {
	return r == '_' || ('0' <= r && r <= '9') || ('a' <= r && r <= 'z') || r > utf8.RuneSelf
}
