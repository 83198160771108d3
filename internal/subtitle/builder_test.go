package subtitle

import (
	"strings"
	"testing"
	"time"

	"github.com/mgpai22/vidgen/internal/timing"
)

func hl(word string) string {
	return highlightOn + word + highlightOff
}

func TestBuildKaraokeEvents(t *testing.T) {
	scenes := [][]timing.WordSegment{
		{{Word: "HELLO", Start: 0, End: 2}, {Word: "WORLD", Start: 2, End: 4}},
		{{Word: "TEST", Start: 0, End: 3}},
	}
	sub := NewBuilder(35, 0.1, 5).Build(scenes, []float64{4.0, 3.0})

	want := []Entry{
		{Index: 1, StartTime: 0, EndTime: 2 * time.Second, Text: hl("HELLO") + " WORLD"},
		{Index: 2, StartTime: 2 * time.Second, EndTime: 4 * time.Second, Text: "HELLO " + hl("WORLD")},
		{Index: 3, StartTime: 4 * time.Second, EndTime: 7 * time.Second, Text: hl("TEST")},
	}
	if len(sub.Entries) != len(want) {
		t.Fatalf("got %d entries, want %d: %+v", len(sub.Entries), len(want), sub.Entries)
	}
	for i := range want {
		if sub.Entries[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, sub.Entries[i], want[i])
		}
	}
}

func TestBuildOffsetsSkipEmptyScenes(t *testing.T) {
	scenes := [][]timing.WordSegment{
		{{Word: "one", Start: 0, End: 2}},
		nil,
		{{Word: "three", Start: 0, End: 1}},
	}
	sub := NewBuilder(35, 0.1, 5).Build(scenes, []float64{2, 3, 1})

	if len(sub.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(sub.Entries))
	}
	if got := sub.Entries[1].StartTime; got != 5*time.Second {
		t.Errorf("third scene starts at %v, want 5s", got)
	}
	if got := sub.Entries[1].EndTime; got != 6*time.Second {
		t.Errorf("third scene ends at %v, want 6s", got)
	}
}

func TestBuildMissingDurationUsesDefault(t *testing.T) {
	scenes := [][]timing.WordSegment{
		{{Word: "a", Start: 0, End: 1}},
		{{Word: "b", Start: 0, End: 1}},
	}
	sub := NewBuilder(35, 0.1, 5).Build(scenes, []float64{0})
	if got := sub.Entries[0].EndTime; got != 5*time.Second {
		t.Errorf("first scene end = %v, want default 5s", got)
	}
	if got := sub.Entries[1].StartTime; got != 5*time.Second {
		t.Errorf("second scene start = %v, want 5s", got)
	}
}

func TestBuildLeadInAndEdges(t *testing.T) {
	scenes := [][]timing.WordSegment{{
		{Word: "café", Start: 0.5, End: 1.0},
		{Word: "{x}", Start: 1.0, End: 1.2},
		{Word: "now", Start: 1.0, End: 1.5},
	}}
	sub := NewBuilder(35, 0.1, 5).Build(scenes, []float64{3})

	if len(sub.Entries) != 4 {
		t.Fatalf("got %d entries, want 4", len(sub.Entries))
	}

	lead := sub.Entries[0]
	if lead.StartTime != 0 || lead.EndTime != 500*time.Millisecond || lead.Text != "café (x) now" {
		t.Errorf("lead-in = %+v", lead)
	}
	if got := sub.Entries[1].Text; got != hl("CAFÉ")+" (x) now" {
		t.Errorf("highlight text = %q", got)
	}
	// next word starts at the same instant
	if got := sub.Entries[2].EndTime - sub.Entries[2].StartTime; got != 100*time.Millisecond {
		t.Errorf("zero-length event should be padded to 100ms, got %v", got)
	}
	// last word runs to the scene duration, past its own end
	if got := sub.Entries[3].EndTime; got != 3*time.Second {
		t.Errorf("last event end = %v, want 3s", got)
	}
}

func TestWrap(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  string
	}{
		{"fits", "short text", 35, "short text"},
		{
			"greedy",
			"the quick brown fox jumps over the lazy dog again",
			35,
			`the quick brown fox jumps over the\Nlazy dog again`,
		},
		{"markup is invisible", hl("SUPERCALIFRAGILISTIC") + " word", 26, hl("SUPERCALIFRAGILISTIC") + " word"},
		{"markup breaks by visible width", hl("SUPERCALIFRAGILISTIC") + " word", 25, hl("SUPERCALIFRAGILISTIC") + `\Nword`},
		{"overlong word", "abcdefghij xy", 5, `abcdefghij\Nxy`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Wrap(tt.text, tt.width); got != tt.want {
				t.Errorf("Wrap() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStripMarkup(t *testing.T) {
	got := StripMarkup(hl("HELLO") + ` big\Nworld`)
	if got != "HELLO big\nworld" {
		t.Errorf("StripMarkup() = %q", got)
	}
	if strings.Contains(got, "{") {
		t.Error("markup left behind")
	}
}
