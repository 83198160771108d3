// Package audio probes media files and prepares narration audio.
package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/mgpai22/vidgen/internal/faults"
	"github.com/mgpai22/vidgen/internal/logging"
)

// Stream is one ffprobe stream entry.
type Stream struct {
	Index     int    `json:"index"`
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Duration  string `json:"duration"`
}

// Result is the subset of ffprobe JSON output the pipeline reads.
type Result struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
	Streams []Stream `json:"streams"`
}

// DurationSeconds returns the container duration, or the longest stream
// duration when the container omits it.
func (r Result) DurationSeconds() float64 {
	if d, err := strconv.ParseFloat(strings.TrimSpace(r.Format.Duration), 64); err == nil && d > 0 {
		return d
	}
	var longest float64
	for _, s := range r.Streams {
		if d, err := strconv.ParseFloat(strings.TrimSpace(s.Duration), 64); err == nil && d > longest {
			longest = d
		}
	}
	return longest
}

func (r Result) HasAudio() bool {
	for _, s := range r.Streams {
		if s.CodecType == "audio" {
			return true
		}
	}
	return false
}

// ProbeFunc returns raw ffprobe JSON for path.
type ProbeFunc func(ctx context.Context, path string) ([]byte, error)

// Prober answers duration and audio-presence queries. Every failure is
// classified as faults.ErrProbe.
type Prober struct {
	probe  ProbeFunc
	logger *logging.Logger
}

// NewProber probes through ffmpeg-go when binary is empty or is the ffprobe
// found on PATH, and execs binary directly otherwise.
func NewProber(binary string, timeout time.Duration, logger *logging.Logger) *Prober {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	probe := execProbe(binary, timeout)
	if usesPathProbe(binary) {
		probe = func(_ context.Context, path string) ([]byte, error) {
			out, err := ffmpeg.ProbeWithTimeout(path, timeout, ffmpeg.KwArgs{})
			return []byte(out), err
		}
	}
	return NewProberFunc(probe, logger)
}

// NewProberFunc wraps an arbitrary probe implementation.
func NewProberFunc(probe ProbeFunc, logger *logging.Logger) *Prober {
	return &Prober{probe: probe, logger: logger.Or()}
}

func usesPathProbe(binary string) bool {
	if binary == "" {
		return true
	}
	found, err := exec.LookPath("ffprobe")
	return err == nil && found == binary
}

func execProbe(binary string, timeout time.Duration) ProbeFunc {
	return func(ctx context.Context, path string) ([]byte, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, binary,
			"-v", "quiet",
			"-print_format", "json",
			"-show_format",
			"-show_streams",
			path,
		)
		var out bytes.Buffer
		cmd.Stdout = &out
		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("ffprobe failed: %w", err)
		}
		return out.Bytes(), nil
	}
}

// Inspect returns parsed ffprobe output for path.
func (p *Prober) Inspect(ctx context.Context, path string) (Result, error) {
	if _, err := os.Stat(path); err != nil {
		return Result{}, faults.Wrap(faults.ErrProbe, "probe", path, "file not readable", err)
	}
	raw, err := p.probe(ctx, path)
	if err != nil {
		return Result{}, faults.Wrap(faults.ErrProbe, "probe", path, "", err)
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return Result{}, faults.Wrap(faults.ErrProbe, "probe", path, "parse ffprobe output", err)
	}
	return res, nil
}

// Duration returns the media duration in seconds.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	res, err := p.Inspect(ctx, path)
	if err != nil {
		return 0, err
	}
	d := res.DurationSeconds()
	if d <= 0 {
		return 0, faults.Wrap(faults.ErrProbe, "probe", path, "no duration reported", nil)
	}
	return d, nil
}

// DurationOrZero degrades probe failures to a zero duration.
func (p *Prober) DurationOrZero(ctx context.Context, path string) float64 {
	d, err := p.Duration(ctx, path)
	if err != nil {
		p.logger.Warnw("probe failed, treating duration as zero", "path", path, "error", err)
		return 0
	}
	return d
}

// HasAudioStream reports whether path carries audio. Probe failures count
// as no audio.
func (p *Prober) HasAudioStream(ctx context.Context, path string) bool {
	res, err := p.Inspect(ctx, path)
	if err != nil {
		p.logger.Debugw("probe failed, assuming no audio", "path", path, "error", err)
		return false
	}
	return res.HasAudio()
}
