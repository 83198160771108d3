// Package mix lays a looping background track under a finished video.
package mix

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/mgpai22/vidgen/internal/faults"
	"github.com/mgpai22/vidgen/internal/filtergraph"
	"github.com/mgpai22/vidgen/internal/logging"
	"github.com/mgpai22/vidgen/internal/transcode"
	"github.com/mgpai22/vidgen/internal/video"
)

const (
	DefaultGain = 0.12
	MaxGain     = 2.0

	tempSuffix = ".bgm_tmp.mp4"
)

// Prober answers the two questions the mixer asks of the video.
type Prober interface {
	DurationOrZero(ctx context.Context, path string) float64
	HasAudioStream(ctx context.Context, path string) bool
}

type Mixer struct {
	runner      transcode.Runner
	prober      Prober
	defaultGain float64
	logger      *logging.Logger
}

func NewMixer(runner transcode.Runner, prober Prober, defaultGain float64, logger *logging.Logger) *Mixer {
	return &Mixer{
		runner:      runner,
		prober:      prober,
		defaultGain: ClampGain(defaultGain, DefaultGain),
		logger:      logger.Or(),
	}
}

// ClampGain bounds g to [0, MaxGain]. NaN yields fallback.
func ClampGain(g, fallback float64) float64 {
	if math.IsNaN(g) {
		return fallback
	}
	return min(max(g, 0), MaxGain)
}

// ParseGain accepts a number or numeric string from a manifest and clamps
// it. Anything unparseable yields fallback.
func ParseGain(v any, fallback float64) float64 {
	switch g := v.(type) {
	case float64:
		return ClampGain(g, fallback)
	case float32:
		return ClampGain(float64(g), fallback)
	case int:
		return ClampGain(float64(g), fallback)
	case int64:
		return ClampGain(float64(g), fallback)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(g), 64)
		if err != nil {
			return fallback
		}
		return ClampGain(f, fallback)
	default:
		return fallback
	}
}

// IsDisabled reports whether a background reference means "no music".
func IsDisabled(ref string) bool {
	switch strings.ToLower(strings.TrimSpace(ref)) {
	case "", "none", "null", "string":
		return true
	}
	return false
}

// Mix replaces videoPath with a copy that carries background music at
// gain. The video stream is copied first; if that encode fails it is
// retried once with a full re-encode. The original is only replaced after
// a successful encode.
func (m *Mixer) Mix(ctx context.Context, videoPath, background string, gain float64) error {
	gain = ClampGain(gain, m.defaultGain)
	duration := m.prober.DurationOrZero(ctx, videoPath)
	hasAudio := m.prober.HasAudioStream(ctx, videoPath)
	tmp := TempPath(videoPath)

	log := m.logger.With("video", videoPath, "background", background, "gain", gain)
	log.Infow("mixing background audio", "duration", duration, "has_audio", hasAudio)

	cmd := Command(videoPath, background, tmp, gain, duration, hasAudio, false)
	err := m.runner.Run(ctx, cmd)
	if err != nil && errors.Is(err, faults.ErrExternalProcess) {
		log.Warnw("stream copy mix failed, re-encoding video", "error", err)
		err = m.runner.Run(ctx, Command(videoPath, background, tmp, gain, duration, hasAudio, true))
	}
	if err != nil {
		_ = os.Remove(tmp)
		return faults.Wrap(faults.ErrExternalProcess, "mix", videoPath, "encode background mix", err)
	}

	if err := os.Rename(tmp, videoPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", videoPath, err)
	}
	return nil
}

// TempPath is where the mix is written before replacing the original.
func TempPath(videoPath string) string {
	return strings.TrimSuffix(videoPath, filepath.Ext(videoPath)) + tempSuffix
}

// Graph builds the background chain, mixed under existing narration when
// the video has audio. A zero duration leaves the length to -shortest.
func Graph(gain, duration float64, hasAudio bool) *filtergraph.Graph {
	bgm := []filtergraph.Filter{filtergraph.F("volume", strconv.FormatFloat(gain, 'f', -1, 64))}
	if duration > 0 {
		bgm = append(bgm, filtergraph.F("atrim", "0", transcode.Seconds(duration)))
	}
	bgm = append(bgm, filtergraph.F("asetpts", "PTS-STARTPTS"))

	g := filtergraph.New()
	if !hasAudio {
		return g.Chain([]string{"1:a"}, "aout", bgm...)
	}
	return g.
		Chain([]string{"1:a"}, "bgm", bgm...).
		Chain([]string{"0:a"}, "voice", filtergraph.F("asetpts", "PTS-STARTPTS")).
		Chain([]string{"voice", "bgm"}, "aout", filtergraph.F("amix",
			filtergraph.KV("inputs", 2),
			filtergraph.KV("duration", "first"),
			filtergraph.KV("dropout_transition", 2),
		))
}

// Command builds one mixing attempt. reencode swaps the video stream copy
// for libx264.
func Command(videoPath, background, output string, gain, duration float64, hasAudio, reencode bool) transcode.Command {
	opts := ffmpeg.KwArgs{
		"c:v": "copy",
		"c:a": video.AudioCodec,
		"b:a": video.AudioBitrate,
	}
	if reencode {
		for k, v := range video.CaptionEncode.VideoOnly() {
			opts[k] = v
		}
	}
	if duration > 0 {
		opts["t"] = transcode.Seconds(duration)
	} else {
		opts["shortest"] = ""
	}

	stage := "mix"
	if reencode {
		stage = "mix-reencode"
	}
	return transcode.Command{
		Stage: stage,
		Inputs: []transcode.Input{
			{Path: videoPath},
			{Path: background, Options: ffmpeg.KwArgs{"stream_loop": "-1"}},
		},
		FilterGraph: Graph(gain, duration, hasAudio).String(),
		Maps:        []string{"0:v", filtergraph.Pad("aout")},
		Options:     opts,
		Output:      output,
	}
}
