package utils

import (
	"strings"
	"unicode"
)

// stopwords are dropped before keyword overlap is measured. Korean particles
// are included because sources and questions mix both languages.
var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {},
	"at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {}, "from": {}, "as": {},
	"is": {}, "was": {}, "are": {}, "were": {}, "be": {},
	"은": {}, "는": {}, "이": {}, "가": {}, "을": {}, "를": {}, "에": {}, "의": {},
	"와": {}, "과": {}, "도": {}, "만": {},
}

// CleanName trims a raw name and collapses inner whitespace. Case is kept.
func CleanName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// NormalizeStringExact lowercases text and collapses whitespace so equal names map to the same key
func NormalizeStringExact(name string) string {
	return strings.ToLower(CleanName(name))
}

// NormalizeForMatch is the key used for alias lookups and fuzzy scoring:
// lowercase letters and digits in any script, separated by single spaces.
func NormalizeForMatch(name string) string {
	return strings.Join(Words(name), " ")
}

// Words splits text into lowercase runs of letters and digits.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// ContentWords returns the distinct words of text minus stopwords.
func ContentWords(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range Words(text) {
		if _, stop := stopwords[w]; stop {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

// KeywordOverlap is the share of claim content words found in source.
// Zero when the claim has no content words.
func KeywordOverlap(claim, source string) float64 {
	cw := ContentWords(claim)
	if len(cw) == 0 {
		return 0
	}
	sw := ContentWords(source)
	shared := 0
	for w := range cw {
		if _, ok := sw[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(cw))
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
