// Package content holds the opaque content capabilities engines consult:
// keyword lists, contact details in free text and document analysis.
package content

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// KeywordMatcher reports which configured phrases occur in a text. Matching
// is on whole words after Unicode compatibility normalization and case
// folding, so "Babysitting" and "ｂａｂｙｓｉｔｔｉｎｇ" both match "babysitting"
// while "cashier" does not match "cash".
type KeywordMatcher struct {
	phrases []string // original spelling
	norms   []string // normalized, space padded
}

func NewKeywordMatcher(phrases []string) *KeywordMatcher {
	m := &KeywordMatcher{}
	seen := make(map[string]bool, len(phrases))
	for _, p := range phrases {
		n := Normalize(p)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		m.phrases = append(m.phrases, p)
		m.norms = append(m.norms, " "+n+" ")
	}
	return m
}

// Match returns the matched phrases in configuration order.
func (m *KeywordMatcher) Match(text string) []string {
	if len(m.norms) == 0 {
		return nil
	}
	padded := " " + Normalize(text) + " "
	var out []string
	for i, n := range m.norms {
		if strings.Contains(padded, n) {
			out = append(out, m.phrases[i])
		}
	}
	return out
}

// Len returns the number of distinct phrases.
func (m *KeywordMatcher) Len() int { return len(m.norms) }

// Normalize folds case, applies NFKC and reduces text to lowercase words
// separated by single spaces.
func Normalize(text string) string {
	folded := cases.Fold().String(norm.NFKC.String(text))
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	return strings.Join(words, " ")
}

var (
	emailPattern   = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	urlPattern     = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)
	phoneCandidate = regexp.MustCompile(`\+?\d[\d\s().\-]{8,}\d`)
	phoneCue       = regexp.MustCompile(`(?i)\b(?:call|text|phone|cell|mobile|whatsapp|sms|tel)\b`)
	nonDigits      = regexp.MustCompile(`\D+`)
)

func hasPhoneNumber(text string) bool {
	cue := phoneCue.MatchString(text)
	for _, c := range phoneCandidate.FindAllString(text, -1) {
		if looksLikePhone(c, cue) {
			return true
		}
	}
	return false
}

// looksLikePhone accepts international numbers written with a leading +,
// numbers grouped 3-3-4 with an optional leading 1, and a bare run of ten
// digits only when the text also carries a contact word. Order numbers and
// dates fit none of these shapes.
func looksLikePhone(candidate string, cue bool) bool {
	international := strings.HasPrefix(candidate, "+")
	groups := nonDigits.Split(strings.TrimPrefix(candidate, "+"), -1)
	digits := 0
	for _, g := range groups {
		digits += len(g)
	}
	if international {
		return digits >= 8 && digits <= 15
	}
	if len(groups) == 4 && groups[0] == "1" {
		groups = groups[1:]
	}
	switch {
	case len(groups) == 3:
		return len(groups[0]) == 3 && len(groups[1]) == 3 && len(groups[2]) == 4
	case len(groups) == 1:
		return cue && digits == 10
	}
	return false
}

// ContactKind names the first kind of off-platform contact detail found in
// text, or returns "" when there is none.
func ContactKind(text string) string {
	text = norm.NFKC.String(text)
	switch {
	case emailPattern.MatchString(text):
		return "email address"
	case urlPattern.MatchString(text):
		return "link"
	case hasPhoneNumber(text):
		return "phone number"
	}
	return ""
}
