package timing

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/mgpai22/vidgen/internal/transcribe"
)

const eps = 1e-9

type fakeProvider struct {
	words []transcribe.Word
	err   error
	calls int
}

func (f *fakeProvider) Transcribe(context.Context, string, string) (*transcribe.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &transcribe.Result{Words: f.words}, nil
}

type fixedProber float64

func (p fixedProber) DurationOrZero(context.Context, string) float64 { return float64(p) }

func checkInvariants(t *testing.T, segs []WordSegment, duration float64) {
	t.Helper()
	if len(segs) == 0 {
		return
	}
	for i, s := range segs {
		if !(s.Start < s.End) {
			t.Errorf("segment %d: start %v not before end %v", i, s.Start, s.End)
		}
		if i > 0 && s.Start < segs[i-1].End-eps {
			t.Errorf("segment %d overlaps previous: %v < %v", i, s.Start, segs[i-1].End)
		}
	}
	if last := segs[len(segs)-1].End; math.Abs(last-duration) > eps {
		t.Errorf("last end = %v, want %v", last, duration)
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Hello, world!", []string{"Hello", "world"}},
		{"[excited] Wow...   that's   “great”", []string{"Wow", "that's", "great"}},
		{"नमस्ते दुनिया।", []string{"नमस्ते", "दुनिया"}},
		{"  -- ... ", []string{}},
		{"", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Tokenize(tt.in)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Tokenize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEstimate(t *testing.T) {
	tests := []struct {
		name     string
		words    []string
		duration float64
	}{
		{"even", []string{"HELLO", "WORLD"}, 4.0},
		{"uneven", []string{"a", "considerably", "longer", "sentence"}, 3.0},
		{"floors exceed share", []string{"i", "supercalifragilistic", "o"}, 0.5},
		{"tight duration", []string{"one", "two", "three", "four", "five"}, 0.1},
		{"single", []string{"TEST"}, 3.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segs := Estimate(tt.words, tt.duration, 0.06)
			if len(segs) != len(tt.words) {
				t.Fatalf("got %d segments, want %d", len(segs), len(tt.words))
			}
			checkInvariants(t, segs, tt.duration)
			if segs[0].Start != 0 {
				t.Errorf("first start = %v, want 0", segs[0].Start)
			}
			floor := math.Min(0.06, tt.duration/float64(len(tt.words)))
			for i, s := range segs {
				if s.End-s.Start < floor-eps {
					t.Errorf("segment %d shorter than floor: %v", i, s.End-s.Start)
				}
				if i > 0 && math.Abs(s.Start-segs[i-1].End) > eps {
					t.Errorf("segment %d not contiguous", i)
				}
			}
		})
	}

	segs := Estimate([]string{"HELLO", "WORLD"}, 4.0, 0.06)
	if math.Abs(segs[0].End-2.0) > eps {
		t.Errorf("equal-length words should split evenly, got %+v", segs)
	}

	if got := Estimate(nil, 3, 0.06); got != nil {
		t.Errorf("no words: got %+v", got)
	}
	if got := Estimate([]string{"x"}, 0, 0.06); got != nil {
		t.Errorf("zero duration: got %+v", got)
	}
}

func TestNormalizeLanguage(t *testing.T) {
	tests := map[string]string{
		"hi-IN":   "hi",
		"hi_IN":   "hi",
		" TA ":    "ta",
		"en":      "en",
		"":        "",
		"english": "english",
		"xx-yy-!": "xx",
	}
	for in, want := range tests {
		if got := NormalizeLanguage(in); got != want {
			t.Errorf("NormalizeLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalize(t *testing.T) {
	words := []transcribe.Word{
		{Text: "second", Start: 0.5, End: 1.2},
		{Text: "first", Start: 0.0, End: 0.7},
		{Text: "  ", Start: 1.0, End: 1.1},
		{Text: "blip", Start: 1.3, End: 1.3},
		{Text: "late", Start: 2.5, End: 2.9},
	}
	segs := Normalize(words, 2.0, 0.06)

	var got []string
	for _, s := range segs {
		got = append(got, s.Word)
	}
	if !slices.Equal(got, []string{"first", "second", "blip"}) {
		t.Fatalf("words = %v", got)
	}
	checkInvariants(t, segs, 2.0)
	if segs[1].Start != 0.7 {
		t.Errorf("overlapping start should clamp to previous end, got %v", segs[1].Start)
	}
}

func TestEngineSegments(t *testing.T) {
	ctx := context.Background()
	goodWords := []transcribe.Word{
		{Text: "one", Start: 0.1, End: 0.4},
		{Text: "two", Start: 0.5, End: 0.9},
		{Text: "three", Start: 1.0, End: 1.6},
	}

	tests := []struct {
		name          string
		provider      *fakeProvider
		req           Request
		wantCalls     int
		wantEstimated bool
		wantEmpty     bool
	}{
		{
			name:      "zero duration",
			provider:  &fakeProvider{words: goodWords},
			req:       Request{AudioPath: "a.mp3", ExpectedText: "one two three"},
			wantEmpty: true,
		},
		{
			name:      "empty text",
			provider:  &fakeProvider{words: goodWords},
			req:       Request{AudioPath: "a.mp3", ExpectedText: " [pause] ", Duration: 2},
			wantEmpty: true,
		},
		{
			name:          "estimator language skips provider",
			provider:      &fakeProvider{words: goodWords},
			req:           Request{AudioPath: "a.mp3", Language: "hi-IN", ExpectedText: "one two three", Duration: 2},
			wantEstimated: true,
		},
		{
			name:      "provider words used",
			provider:  &fakeProvider{words: goodWords},
			req:       Request{AudioPath: "a.mp3", Language: "en", ExpectedText: "one two three", Duration: 2},
			wantCalls: 1,
		},
		{
			name:          "too few provider words",
			provider:      &fakeProvider{words: goodWords[:2]},
			req:           Request{AudioPath: "a.mp3", Language: "en", ExpectedText: "one two three", Duration: 2},
			wantCalls:     1,
			wantEstimated: true,
		},
		{
			name:          "provider error",
			provider:      &fakeProvider{err: errors.New("quota")},
			req:           Request{AudioPath: "a.mp3", ExpectedText: "one two three", Duration: 2},
			wantCalls:     1,
			wantEstimated: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(tt.provider, nil, Options{EstimatorLanguages: []string{"hi", "ta"}}, nil)
			segs, err := e.Segments(ctx, tt.req)
			if err != nil {
				t.Fatalf("Segments: %v", err)
			}
			if tt.provider.calls != tt.wantCalls {
				t.Errorf("provider calls = %d, want %d", tt.provider.calls, tt.wantCalls)
			}
			if tt.wantEmpty {
				if segs == nil || len(segs) != 0 {
					t.Errorf("want empty non-nil slice, got %#v", segs)
				}
				return
			}
			checkInvariants(t, segs, tt.req.Duration)
			if tt.wantEstimated && segs[0].Start != 0 {
				t.Errorf("estimated segments start at 0, got %v", segs[0].Start)
			}
			if !tt.wantEstimated && segs[0].Start != 0.1 {
				t.Errorf("provider segments keep their start, got %v", segs[0].Start)
			}
		})
	}
}

func TestEngineProbesUnknownDuration(t *testing.T) {
	e := NewEngine(nil, fixedProber(3.0), Options{}, nil)
	segs, err := e.Segments(context.Background(), Request{AudioPath: "a.mp3", ExpectedText: "TEST"})
	if err != nil {
		t.Fatal(err)
	}
	if len(segs) != 1 || segs[0].End != 3.0 {
		t.Errorf("segments = %+v", segs)
	}

	e = NewEngine(nil, fixedProber(0), Options{}, nil)
	segs, err = e.Segments(context.Background(), Request{AudioPath: "a.mp3", ExpectedText: "TEST"})
	if err != nil || len(segs) != 0 {
		t.Errorf("probe failure should yield empty segments, got %+v, %v", segs, err)
	}
}
