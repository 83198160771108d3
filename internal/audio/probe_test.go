package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mgpai22/vidgen/internal/faults"
)

const probeJSON = `{
	"streams": [
		{"index": 0, "codec_type": "video", "codec_name": "h264", "width": 1080, "height": 1920, "duration": "6.950000"},
		{"index": 1, "codec_type": "audio", "codec_name": "aac", "duration": "7.000000"}
	],
	"format": {"format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "7.000000"}
}`

func fixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	return path
}

func staticProbe(out string, err error) ProbeFunc {
	return func(context.Context, string) ([]byte, error) {
		return []byte(out), err
	}
}

func TestProberDurationAndAudio(t *testing.T) {
	path := fixture(t)
	p := NewProberFunc(staticProbe(probeJSON, nil), nil)
	ctx := context.Background()

	d, err := p.Duration(ctx, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 7.0 {
		t.Errorf("expected 7.0, got %v", d)
	}
	if !p.HasAudioStream(ctx, path) {
		t.Error("expected audio stream")
	}

	res, err := p.Inspect(ctx, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Streams) != 2 || res.Streams[0].Width != 1080 {
		t.Errorf("unexpected streams %+v", res.Streams)
	}
}

func TestProberFailuresDegrade(t *testing.T) {
	tests := []struct {
		name  string
		probe ProbeFunc
		path  func(t *testing.T) string
	}{
		{
			name:  "missing file",
			probe: staticProbe(probeJSON, nil),
			path:  func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.mp3") },
		},
		{
			name:  "ffprobe error",
			probe: staticProbe("", errors.New("exit status 1")),
			path:  fixture,
		},
		{
			name:  "garbage output",
			probe: staticProbe("not json", nil),
			path:  fixture,
		},
		{
			name:  "no duration",
			probe: staticProbe(`{"format": {}, "streams": []}`, nil),
			path:  fixture,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProberFunc(tt.probe, nil)
			path := tt.path(t)
			ctx := context.Background()

			_, err := p.Duration(ctx, path)
			if !errors.Is(err, faults.ErrProbe) {
				t.Fatalf("expected probe error, got %v", err)
			}
			if d := p.DurationOrZero(ctx, path); d != 0 {
				t.Errorf("expected zero duration, got %v", d)
			}
			if p.HasAudioStream(ctx, path) {
				t.Error("expected no audio on failure")
			}
		})
	}
}

func TestDurationFallsBackToStreams(t *testing.T) {
	var r Result
	r.Streams = []Stream{{Duration: "2.5"}, {Duration: "3.25"}, {Duration: "N/A"}}
	if got := r.DurationSeconds(); got != 3.25 {
		t.Errorf("expected 3.25, got %v", got)
	}
}
