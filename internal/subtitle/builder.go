package subtitle

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mgpai22/vidgen/internal/timing"
)

const (
	highlightOn  = `{\c&H00FFFF&\b1\fscx110\fscy110}`
	highlightOff = `{\c&HFFFFFF&\b0\fscx100\fscy100}`
)

var markup = regexp.MustCompile(`\{[^}]*\}`)

// Builder flattens per-scene word timings into one caption track where
// each event shows the whole scene sentence with the spoken word
// highlighted.
type Builder struct {
	MaxLineWidth        int
	LeadInThreshold     float64
	DefaultSceneSeconds float64
}

func NewBuilder(maxLineWidth int, leadIn, defaultScene float64) *Builder {
	if maxLineWidth <= 0 {
		maxLineWidth = 35
	}
	if defaultScene <= 0 {
		defaultScene = 5.0
	}
	return &Builder{
		MaxLineWidth:        maxLineWidth,
		LeadInThreshold:     leadIn,
		DefaultSceneSeconds: defaultScene,
	}
}

// Build lays scenes end to end. durations is matched to scenes by
// position; a missing or non-positive duration uses DefaultSceneSeconds.
// A scene without segments emits nothing but still advances the offset.
func (b *Builder) Build(scenes [][]timing.WordSegment, durations []float64) *Subtitle {
	sub := &Subtitle{Entries: []Entry{}, Format: string(FormatASS)}
	// casers carry state, so one per call
	upper := cases.Upper(language.Und)
	var offset float64

	for si, segs := range scenes {
		dur := b.DefaultSceneSeconds
		if si < len(durations) && durations[si] > 0 {
			dur = durations[si]
		}
		if len(segs) == 0 {
			offset += dur
			continue
		}

		words := make([]string, len(segs))
		for i, s := range segs {
			words[i] = sanitize(s.Word)
		}
		last := max(segs[len(segs)-1].End, dur)

		if first := segs[0].Start; first > b.LeadInThreshold {
			b.add(sub, offset, offset+first, strings.Join(words, " "))
		}

		for i, s := range segs {
			start := offset + s.Start
			end := offset + last
			if i < len(segs)-1 {
				end = offset + segs[i+1].Start
			}
			if end <= start {
				end = start + 0.1
			}
			b.add(sub, start, end, karaoke(upper, words, i))
		}

		offset += dur
	}
	return sub
}

func (b *Builder) add(sub *Subtitle, start, end float64, text string) {
	sub.Entries = append(sub.Entries, Entry{
		Index:     len(sub.Entries) + 1,
		StartTime: seconds(start),
		EndTime:   seconds(end),
		Text:      Wrap(text, b.MaxLineWidth),
	})
}

func karaoke(upper cases.Caser, words []string, active int) string {
	parts := make([]string, len(words))
	for j, w := range words {
		if j == active {
			parts[j] = highlightOn + upper.String(w) + highlightOff
		} else {
			parts[j] = w
		}
	}
	return strings.Join(parts, " ")
}

// Wrap greedily breaks text into lines of at most maxWidth visible runes,
// ignoring {...} markup, and joins them with the ASS \N break. A word
// longer than maxWidth gets a line of its own.
func Wrap(text string, maxWidth int) string {
	var lines []string
	var cur []string
	curLen := 0

	for _, part := range strings.Split(text, " ") {
		l := utf8.RuneCountInString(markup.ReplaceAllString(part, ""))
		if curLen+l+1 <= maxWidth || len(cur) == 0 {
			cur = append(cur, part)
			curLen += l + 1
			continue
		}
		lines = append(lines, strings.Join(cur, " "))
		cur = []string{part}
		curLen = l + 1
	}
	if len(cur) > 0 {
		lines = append(lines, strings.Join(cur, " "))
	}
	return strings.Join(lines, `\N`)
}

// StripMarkup removes override blocks and turns \N into newlines.
func StripMarkup(text string) string {
	text = markup.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, `\N`, "\n")
	return strings.ReplaceAll(text, `\n`, "\n")
}

// braces would open an override block
func sanitize(word string) string {
	return strings.NewReplacer("{", "(", "}", ")").Replace(word)
}
