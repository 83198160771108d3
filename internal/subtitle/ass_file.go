package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Event is one parsed Dialogue line.
type Event struct {
	Style string
	Start time.Duration
	End   time.Duration
	// Text is the raw field, markup included.
	Text string
}

// Plain returns the visible text with line breaks as newlines.
func (e Event) Plain() string {
	return StripMarkup(e.Text)
}

// Highlighted returns the word wrapped in karaoke highlight markup, or ""
// for an event with no highlight (a lead-in).
func (e Event) Highlighted() string {
	_, rest, ok := strings.Cut(e.Text, highlightOn)
	if !ok {
		return ""
	}
	word, _, _ := strings.Cut(rest, highlightOff)
	return word
}

// ASSFile is a parsed captions document.
type ASSFile struct {
	Title  string
	Styles []string
	Events []Event

	columns []string
	textCol int
}

func parseASSFile(path string) (*ASSFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ASS file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()
	return ParseASS(file)
}

// ParseASS reads an ASS/SSA document. Sections other than Script Info,
// styles and events are skipped.
func ParseASS(r io.Reader) (*ASSFile, error) {
	doc := &ASSFile{textCol: -1}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	section := ""
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			section = strings.ToLower(trimmed[1 : len(trimmed)-1])
			continue
		}

		switch section {
		case "script info":
			if v, ok := strings.CutPrefix(trimmed, "Title:"); ok {
				doc.Title = strings.TrimSpace(v)
			}
		case "v4+ styles", "v4 styles":
			if strings.HasPrefix(trimmed, "Style:") {
				doc.Styles = append(doc.Styles, trimmed)
			}
		case "events":
			if err := doc.parseEventLine(trimmed); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading ASS file: %w", err)
	}
	if doc.columns == nil {
		return nil, fmt.Errorf("ASS file missing Format line in [Events] section")
	}
	return doc, nil
}

func (f *ASSFile) parseEventLine(line string) error {
	if v, ok := strings.CutPrefix(line, "Format:"); ok {
		cols := strings.Split(v, ",")
		for i := range cols {
			cols[i] = strings.ToLower(strings.TrimSpace(cols[i]))
			if cols[i] == "text" {
				f.textCol = i
			}
		}
		if f.textCol != len(cols)-1 {
			return fmt.Errorf("text must be the last Format column")
		}
		f.columns = cols
		return nil
	}

	v, ok := strings.CutPrefix(line, "Dialogue:")
	if !ok {
		return nil
	}
	if f.columns == nil {
		return fmt.Errorf("dialogue before Format line")
	}

	// the text column is last and may itself contain commas
	fields := strings.SplitN(strings.TrimSpace(v), ",", len(f.columns))
	if len(fields) < len(f.columns) {
		return fmt.Errorf("expected %d fields, got %d", len(f.columns), len(fields))
	}

	var ev Event
	for i, col := range f.columns {
		switch col {
		case "start":
			ev.Start = parseASSTimestamp(fields[i])
		case "end":
			ev.End = parseASSTimestamp(fields[i])
		case "style":
			ev.Style = strings.TrimSpace(fields[i])
		case "text":
			ev.Text = fields[i]
		}
	}
	f.Events = append(f.Events, ev)
	return nil
}

func parseASSTimestamp(ts string) time.Duration {
	parts := strings.Split(strings.TrimSpace(ts), ":")
	if len(parts) != 3 {
		return 0
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0
	}
	secs, centis, ok := strings.Cut(parts[2], ".")
	if !ok {
		return 0
	}
	s, err := strconv.Atoi(secs)
	if err != nil {
		return 0
	}
	cs, err := strconv.Atoi(centis)
	if err != nil {
		return 0
	}

	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(cs)*10*time.Millisecond
}

func (f *ASSFile) Format() Format {
	return FormatASS
}

// Subtitle converts the events back into a caption track.
func (f *ASSFile) Subtitle() *Subtitle {
	entries := make([]Entry, len(f.Events))
	for i, ev := range f.Events {
		entries[i] = Entry{
			Index:     i + 1,
			StartTime: ev.Start,
			EndTime:   ev.End,
			Text:      ev.Text,
		}
	}
	return &Subtitle{Entries: entries, Format: string(FormatASS)}
}
