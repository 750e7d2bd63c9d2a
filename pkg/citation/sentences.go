package citation

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	markerPattern  = regexp.MustCompile(`\[\s*(\d+(?:\s*,\s*\d+)*)\s*\]`)
	leadingMarker  = regexp.MustCompile(`^\s*(?:\[\s*\d+(?:\s*,\s*\d+)*\s*\]\s*)+`)
	bulletPattern  = regexp.MustCompile(`^\s*(?:[-*•·]|\d+[.)])\s+`)
	spaceBeforeEnd = regexp.MustCompile(`\s+([.!?,;:])`)
	multiSpace     = regexp.MustCompile(`[ \t]{2,}`)
)

// sentence is one claim-sized unit of an answer. Line and Bullet let the
// answer be reassembled with its original layout.
type sentence struct {
	Line   int
	Bullet string
	Text   string
}

// splitSentences breaks text on newlines, bullets and terminal punctuation
// followed by whitespace. Markers written after the punctuation stay with
// the sentence they follow.
func splitSentences(text string) []sentence {
	var out []sentence
	for lineNo, line := range strings.Split(text, "\n") {
		bullet := bulletPattern.FindString(line)
		body := strings.TrimSpace(line[len(bullet):])
		bullet = strings.TrimSpace(bullet)

		start := 0
		for i := 0; i < len(body); i++ {
			c := body[i]
			if c != '.' && c != '!' && c != '?' {
				continue
			}
			if i+1 < len(body) && !unicode.IsSpace(rune(body[i+1])) {
				continue
			}
			end := i + 1
			if m := leadingMarker.FindStringIndex(body[end:]); m != nil {
				end += m[1]
			}
			if s := strings.TrimSpace(body[start:end]); s != "" {
				out = append(out, sentence{Line: lineNo, Bullet: bullet, Text: s})
			}
			start = end
			i = end - 1
		}
		if s := strings.TrimSpace(body[start:]); s != "" {
			out = append(out, sentence{Line: lineNo, Bullet: bullet, Text: s})
		}
	}
	return out
}

// markers returns the citation indices in s in order of appearance.
func markers(s string) []int {
	var out []int
	for _, m := range markerPattern.FindAllStringSubmatch(s, -1) {
		for _, part := range strings.Split(m[1], ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err == nil {
				out = append(out, n)
			}
		}
	}
	return out
}

// stripMarkers removes every citation marker and tidies the spacing left behind.
func stripMarkers(s string) string {
	return tidy(markerPattern.ReplaceAllString(s, ""))
}

// rewriteMarkers maps each cited index through remap. Indices remap drops
// (returns false) disappear; a marker left empty is removed.
func rewriteMarkers(s string, remap func(int) (int, bool)) string {
	out := markerPattern.ReplaceAllStringFunc(s, func(m string) string {
		var kept []string
		seen := make(map[int]bool)
		for _, n := range markers(m) {
			nn, ok := remap(n)
			if !ok || seen[nn] {
				continue
			}
			seen[nn] = true
			kept = append(kept, strconv.Itoa(nn))
		}
		if len(kept) == 0 {
			return ""
		}
		return "[" + strings.Join(kept, ", ") + "]"
	})
	return tidy(out)
}

func tidy(s string) string {
	s = spaceBeforeEnd.ReplaceAllString(s, "$1")
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// joinSentences reassembles sentences line by line, keeping bullets.
func joinSentences(sentences []sentence) string {
	var lines []string
	current := -1
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			lines = append(lines, b.String())
			b.Reset()
		}
	}
	for _, s := range sentences {
		if s.Line != current {
			flush()
			current = s.Line
			if s.Bullet != "" {
				b.WriteString(s.Bullet + " ")
			}
		} else {
			b.WriteString(" ")
		}
		b.WriteString(s.Text)
	}
	flush()
	return strings.Join(lines, "\n")
}

// Claim is one sentence of an answer with the evidence indices it cites.
type Claim struct {
	Text      string
	Citations []int
}

// ExtractClaims splits answer into sentences, separating each sentence's
// text from its citation markers.
func ExtractClaims(answer string) []Claim {
	var out []Claim
	for _, s := range splitSentences(answer) {
		text := stripMarkers(s.Text)
		if text == "" {
			continue
		}
		out = append(out, Claim{Text: text, Citations: markers(s.Text)})
	}
	return out
}
