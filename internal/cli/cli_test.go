package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/mgpai22/vidgen/internal/jobs"
	"github.com/mgpai22/vidgen/internal/subtitle"
	"github.com/mgpai22/vidgen/internal/template"
)

func TestRenderTable(t *testing.T) {
	out := renderTable(
		[]string{"ID", "Count"},
		[][]string{{"alpha", "12"}, {"beta"}},
		[]columnAlignment{alignLeft, alignRight},
	)

	for _, want := range []string{"ID", "COUNT", "alpha", "12", "beta", "╭", "╯"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if got := strings.Count(out, "\n") + 1; got != 6 {
		t.Errorf("table has %d lines, want 6:\n%s", got, out)
	}
}

func TestRenderTableWithoutHeaders(t *testing.T) {
	if out := renderTable(nil, [][]string{{"x"}}, nil); out != "" {
		t.Errorf("renderTable(nil) = %q, want empty", out)
	}
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0.00"},
		{1500 * time.Millisecond, "1.50"},
		{2*time.Second + 4*time.Millisecond, "2.00"},
		{61 * time.Second, "61.00"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := formatSeconds(tt.in); got != tt.want {
				t.Errorf("formatSeconds(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEventRows(t *testing.T) {
	events := []subtitle.Event{
		{Start: 0, End: 500 * time.Millisecond, Text: `HELLO WORLD`},
		{
			Start: 500 * time.Millisecond,
			End:   2 * time.Second,
			Text:  `{\c&H00FFFF&\b1\fscx110\fscy110}HELLO{\c&HFFFFFF&\b0\fscx100\fscy100}\NWORLD`,
		},
	}

	rows := eventRows(events)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	want := [][]string{
		{"1", "0.00", "0.50", "", "HELLO WORLD"},
		{"2", "0.50", "2.00", "HELLO", "HELLO WORLD"},
	}
	for i := range want {
		for j := range want[i] {
			if rows[i][j] != want[i][j] {
				t.Errorf("rows[%d][%d] = %q, want %q", i, j, rows[i][j], want[i][j])
			}
		}
	}
}

func TestTemplateRows(t *testing.T) {
	rows := templateRows(template.All())
	if len(rows) != 9 {
		t.Fatalf("got %d template rows, want 9", len(rows))
	}

	byID := make(map[string][]string, len(rows))
	for _, r := range rows {
		byID[r[0]] = r
	}
	if _, ok := byID["t8"]; ok {
		t.Error("t8 should not be listed")
	}
	if got := byID["t0"][2]; got != "no" {
		t.Errorf("t0 secondary = %q, want no", got)
	}
	if got := byID["t7"][1]; got != "pip" {
		t.Errorf("t7 layout = %q, want pip", got)
	}
	if got := byID["t9"][2]; got != "required" {
		t.Errorf("t9 secondary = %q, want required", got)
	}
}

func TestJobRows(t *testing.T) {
	updated := time.Date(2026, 3, 1, 12, 30, 0, 0, time.Local)
	rows := jobRows([]*jobs.Job{{
		ID:        "job-1",
		ProjectID: "alpha",
		Status:    jobs.StatusRunning,
		Stage:     "compose",
		Progress:  55,
		UpdatedAt: updated,
	}})

	want := []string{"job-1", "alpha", "running", "compose", "55%", "2026-03-01 12:30:00"}
	for i, w := range want {
		if rows[0][i] != w {
			t.Errorf("column %d = %q, want %q", i, rows[0][i], w)
		}
	}
}
