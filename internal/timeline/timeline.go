// Package timeline joins scene clips into one continuous track with
// crossfaded video and back-to-back narration.
package timeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/mgpai22/vidgen/internal/faults"
	"github.com/mgpai22/vidgen/internal/filtergraph"
	"github.com/mgpai22/vidgen/internal/logging"
	"github.com/mgpai22/vidgen/internal/scene"
	"github.com/mgpai22/vidgen/internal/subtitle"
	"github.com/mgpai22/vidgen/internal/timing"
	"github.com/mgpai22/vidgen/internal/transcode"
	"github.com/mgpai22/vidgen/internal/video"
)

const (
	VideoName    = "ai_with_subs.mp4"
	CaptionsName = "subtitle.ass"
)

// Result locates the stitched track and its captions document.
type Result struct {
	VideoPath    string
	CaptionsPath string
	Duration     float64
}

type Stitcher struct {
	runner     transcode.Runner
	captions   *subtitle.Builder
	writer     subtitle.Writer
	transition float64
	logger     *logging.Logger
}

func NewStitcher(runner transcode.Runner, captions *subtitle.Builder, writer subtitle.Writer, transition float64, logger *logging.Logger) *Stitcher {
	return &Stitcher{
		runner:     runner,
		captions:   captions,
		writer:     writer,
		transition: transition,
		logger:     logger.Or(),
	}
}

// Stitch writes workDir/ai_with_subs.mp4 and workDir/subtitle.ass. The
// captions are written for every render, whether or not a later stage
// burns them in.
func (s *Stitcher) Stitch(ctx context.Context, clips []scene.Clip, workDir string) (Result, error) {
	if len(clips) == 0 {
		return Result{}, faults.Wrap(faults.ErrConfiguration, "stitch", "", "no clips to stitch", nil)
	}

	res := Result{
		VideoPath:    filepath.Join(workDir, VideoName),
		CaptionsPath: filepath.Join(workDir, CaptionsName),
	}

	segments := make([][]timing.WordSegment, len(clips))
	durations := make([]float64, len(clips))
	for i, c := range clips {
		segments[i] = c.Segments
		durations[i] = c.Duration
		res.Duration += c.Duration
	}
	if err := s.writer.Write(s.captions.Build(segments, durations), res.CaptionsPath); err != nil {
		return Result{}, fmt.Errorf("write captions: %w", err)
	}

	cmd, err := Command(clips, s.transition, res.VideoPath)
	if err != nil {
		return Result{}, faults.Wrap(faults.ErrConfiguration, "stitch", "", "build transition graph", err)
	}

	s.logger.Infow("stitching timeline", "clips", len(clips), "duration", res.Duration)
	if err := s.runner.Run(ctx, cmd); err != nil {
		return Result{}, faults.Wrap(faults.ErrExternalProcess, "stitch", "", "encode timeline", err)
	}
	return res, nil
}

// Command builds the stitch invocation. A single clip is remuxed as-is.
func Command(clips []scene.Clip, transition float64, output string) (transcode.Command, error) {
	inputs := make([]transcode.Input, len(clips))
	for i, c := range clips {
		inputs[i] = transcode.Input{Path: c.Path}
	}

	if len(clips) == 1 {
		return transcode.Command{
			Stage:   "stitch",
			Inputs:  inputs,
			Options: ffmpeg.KwArgs{"c": "copy"},
			Output:  output,
		}, nil
	}

	g := filtergraph.New()
	prev := "0:v"
	var elapsed float64
	for i := 1; i < len(clips); i++ {
		elapsed += clips[i-1].Duration
		label := "v" + strconv.Itoa(i)
		g.Chain([]string{prev, strconv.Itoa(i) + ":v"}, label,
			filtergraph.F("xfade",
				filtergraph.KV("transition", "fade"),
				filtergraph.KV("duration", strconv.FormatFloat(transition, 'f', -1, 64)),
				filtergraph.KV("offset", transcode.Seconds(elapsed-transition)),
			),
		)
		prev = label
	}

	audio := make([]string, len(clips))
	for i, c := range clips {
		audio[i] = "a" + strconv.Itoa(i)
		g.Chain([]string{strconv.Itoa(i) + ":a"}, audio[i],
			filtergraph.F("atrim", "0", transcode.Seconds(c.Duration)),
			filtergraph.F("asetpts", "PTS-STARTPTS"),
		)
	}
	g.Chain(audio, "aout", filtergraph.F("concat",
		filtergraph.KV("n", len(clips)),
		filtergraph.KV("v", 0),
		filtergraph.KV("a", 1),
	))

	if _, err := g.Validate(); err != nil {
		return transcode.Command{}, err
	}

	return transcode.Command{
		Stage:       "stitch",
		Inputs:      inputs,
		FilterGraph: g.String(),
		Maps:        []string{filtergraph.Pad(prev), filtergraph.Pad("aout")},
		Options:     video.SceneEncode.Output(),
		Output:      output,
	}, nil
}
