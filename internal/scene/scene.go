// Package scene renders one still image and one narration file into a
// zooming video clip.
package scene

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/mgpai22/vidgen/internal/faults"
	"github.com/mgpai22/vidgen/internal/filtergraph"
	"github.com/mgpai22/vidgen/internal/logging"
	"github.com/mgpai22/vidgen/internal/timing"
	"github.com/mgpai22/vidgen/internal/transcode"
	"github.com/mgpai22/vidgen/internal/video"
)

// Prober reports narration length; failures read as zero.
type Prober interface {
	DurationOrZero(ctx context.Context, path string) float64
}

// Timer produces word segments for a narration file.
type Timer interface {
	Segments(ctx context.Context, req timing.Request) ([]timing.WordSegment, error)
}

type Options struct {
	// Transition is the crossfade length added to every clip after the
	// first so the stitcher has frames to blend into.
	Transition   float64
	MaxZoom      float64
	ZoomFraction float64
	Seed         uint64
	// FallbackDuration stands in for narration whose length cannot be
	// probed. Zero makes an unreadable narration a missing asset.
	FallbackDuration float64
}

// Input describes one scene to render.
type Input struct {
	SceneID   string
	Index     int
	ImagePath string
	AudioPath string
	Language  string
	Text      string
	Output    string
}

// Clip is a rendered scene. Duration is the narration length, excluding
// transition padding.
type Clip struct {
	Index    int
	SceneID  string
	Path     string
	Duration float64
	Segments []timing.WordSegment
}

type Compositor struct {
	runner transcode.Runner
	prober Prober
	timer  Timer
	opts   Options
	logger *logging.Logger
}

func NewCompositor(runner transcode.Runner, prober Prober, timer Timer, opts Options, logger *logging.Logger) *Compositor {
	if opts.MaxZoom < 1 {
		opts.MaxZoom = 1.08
	}
	if opts.ZoomFraction <= 0 || opts.ZoomFraction > 1 {
		opts.ZoomFraction = 0.7
	}
	if opts.Transition < 0 {
		opts.Transition = 0
	}
	return &Compositor{runner: runner, prober: prober, timer: timer, opts: opts, logger: logger.Or()}
}

// Compose times the narration and encodes the clip in a single ffmpeg
// call. Encoder failures are fatal.
func (c *Compositor) Compose(ctx context.Context, in Input) (Clip, error) {
	audioDur := c.prober.DurationOrZero(ctx, in.AudioPath)
	segs := []timing.WordSegment{}
	if audioDur <= 0 {
		if c.opts.FallbackDuration <= 0 {
			return Clip{}, faults.MissingAsset(in.SceneID, "narration audio has no readable duration")
		}
		c.logger.Warnw("narration duration unreadable, using fallback",
			"scene", in.SceneID,
			"audio", in.AudioPath,
			"duration", c.opts.FallbackDuration,
		)
		audioDur = c.opts.FallbackDuration
	} else {
		var err error
		segs, err = c.timer.Segments(ctx, timing.Request{
			AudioPath:    in.AudioPath,
			Language:     in.Language,
			ExpectedText: in.Text,
			Duration:     audioDur,
		})
		if err != nil {
			return Clip{}, fmt.Errorf("time scene %s: %w", in.SceneID, err)
		}
	}

	clipDur := audioDur
	if in.Index > 0 {
		clipDur += c.opts.Transition
	}

	start, end := ZoomDirection(c.opts.Seed, in.Index, c.opts.MaxZoom)
	frames := int(clipDur * video.FPS)
	zoomFrames := max(1, int(float64(frames)*c.opts.ZoomFraction))

	cmd := Command(in, clipDur, ZoomExpr(start, end, zoomFrames))
	c.logger.Debugw("composing scene",
		"scene", in.SceneID,
		"index", in.Index,
		"duration", clipDur,
		"zoom_from", start,
		"zoom_to", end,
		"words", len(segs),
	)
	if err := c.runner.Run(ctx, cmd); err != nil {
		return Clip{}, faults.Wrap(faults.ErrExternalProcess, "compose", "scene "+in.SceneID, "encode clip", err)
	}

	return Clip{
		Index:    in.Index,
		SceneID:  in.SceneID,
		Path:     in.Output,
		Duration: audioDur,
		Segments: segs,
	}, nil
}

// Command builds the ffmpeg invocation for one scene clip.
func Command(in Input, clipDur float64, zoom string) transcode.Command {
	w, h := strconv.Itoa(video.Width), strconv.Itoa(video.Height)
	graph := filtergraph.New().Chain([]string{"0:v"}, "v",
		filtergraph.F("scale", "'max("+w+",iw)'", "'max("+h+",ih)'"),
		filtergraph.F("scale", "iw*("+zoom+")", "ih*("+zoom+")", filtergraph.KV("eval", "frame")),
		filtergraph.F("crop", w, h, "(iw-"+w+")/2", "(ih-"+h+")/2"),
	)

	opts := video.SceneEncode.Output()
	opts["t"] = transcode.Seconds(clipDur)

	return transcode.Command{
		Stage: "scene",
		Inputs: []transcode.Input{
			{Path: in.ImagePath, Options: ffmpeg.KwArgs{"loop": "1"}},
			{Path: in.AudioPath},
		},
		FilterGraph: graph.String(),
		Maps:        []string{filtergraph.Pad("v"), "1:a"},
		Options:     opts,
		Output:      in.Output,
	}
}

// ZoomDirection picks zoom-in or zoom-out for a scene. The generator is
// seeded with (seed, index) so the choice does not depend on the order
// scenes are scheduled in.
func ZoomDirection(seed uint64, index int, maxZoom float64) (start, end float64) {
	rng := rand.New(rand.NewPCG(seed, uint64(index)))
	if rng.IntN(2) == 0 {
		return 1.0, maxZoom
	}
	return maxZoom, 1.0
}

// ZoomExpr is a cosine ease from start to end over frames, holding end
// afterwards. Commas are escaped for use inside a filter argument.
func ZoomExpr(start, end float64, frames int) string {
	s := strconv.FormatFloat(start, 'f', 3, 64)
	e := strconv.FormatFloat(end, 'f', 3, 64)
	z := strconv.Itoa(frames)
	return fmt.Sprintf(`if(lte(n\,%s)\,%s+(%s-%s)*(1-cos(PI*n/%s))/2\,%s)`, z, s, e, s, z, e)
}
