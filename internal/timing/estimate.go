package timing

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	toneMarker = regexp.MustCompile(`\[[^\]]*\]`)
	whitespace = regexp.MustCompile(`\s+`)
)

// trimmed from both ends of every token, including Devanagari dandas
const wordPunctuation = " \t\n\r,.;:!?\"'“”‘’()[]{}<>|—–-…।॥"

// CleanText removes bracketed tone markers such as "[excited]" and
// collapses whitespace.
func CleanText(text string) string {
	t := toneMarker.ReplaceAllString(text, "")
	t = whitespace.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// Tokenize splits narration into spoken words with surrounding
// punctuation removed.
func Tokenize(text string) []string {
	fields := strings.Fields(CleanText(text))
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if w := strings.Trim(f, wordPunctuation); w != "" {
			words = append(words, w)
		}
	}
	return words
}

// Estimate spreads duration across words in proportion to their rune
// length. Every word gets at least min(minWord, duration/n), the segments
// are contiguous from zero, and the last one ends exactly at duration.
func Estimate(words []string, duration, minWord float64) []WordSegment {
	n := len(words)
	if n == 0 || duration <= 0 {
		return nil
	}

	weights := make([]float64, n)
	var total float64
	for i, w := range words {
		weights[i] = float64(max(1, utf8.RuneCountInString(w)))
		total += weights[i]
	}

	floor := min(minWord, duration/float64(n))
	if floor < 0 {
		floor = 0
	}

	lengths := make([]float64, n)
	var sum, above float64
	for i := range words {
		lengths[i] = max(floor, duration*weights[i]/total)
		sum += lengths[i]
		above += lengths[i] - floor
	}

	// Floors can push the sum past duration; take the excess back from the
	// share each word holds above its floor.
	if excess := sum - duration; excess > 0 && above > 0 {
		scale := 1 - excess/above
		for i := range lengths {
			lengths[i] = floor + (lengths[i]-floor)*scale
		}
	}

	segs := make([]WordSegment, n)
	var t float64
	for i, w := range words {
		segs[i] = WordSegment{Word: w, Start: t, End: t + lengths[i]}
		t = segs[i].End
	}
	segs[n-1].End = duration
	return segs
}
