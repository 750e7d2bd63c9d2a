package resolver

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// containmentScore is awarded when one normalized name contains the other
// on word boundaries.
const containmentScore = 0.9

// minContainmentRunes keeps short tokens such as "A" or "LG" from matching
// every name that contains them.
const minContainmentRunes = 4

// Similarity scores two normalized names in [0,1]. It takes the maximum of
// the edit-distance ratio, word-boundary containment and word overlap.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	score := 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)

	shorter, longer := a, b
	if la > lb {
		shorter, longer = b, a
	}
	if utf8.RuneCountInString(shorter) >= minContainmentRunes && containsWords(longer, shorter) {
		score = max(score, containmentScore)
	}

	score = max(score, wordOverlap(a, b))
	return score
}

func containsWords(haystack, needle string) bool {
	return strings.HasPrefix(haystack, needle+" ") ||
		strings.HasSuffix(haystack, " "+needle) ||
		strings.Contains(haystack, " "+needle+" ")
}

// wordOverlap is |A∩B| / max(|A|,|B|) over distinct words.
func wordOverlap(a, b string) float64 {
	wa, wb := wordSet(a), wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	shared := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(max(len(wa), len(wb)))
}

func wordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		out[w] = struct{}{}
	}
	return out
}
