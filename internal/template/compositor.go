package template

import (
	"context"
	"fmt"
	"io"
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

// picture-in-picture geometry
const (
	pipWidth  = 720
	pipHeight = 1280
	pipBorder = 6
	pipX      = (video.Width - pipWidth) / 2
	pipY      = 60
)

type Compositor struct {
	runner transcode.Runner
	logger *logging.Logger
}

func NewCompositor(runner transcode.Runner, logger *logging.Logger) *Compositor {
	return &Compositor{runner: runner, logger: logger.Or()}
}

// Apply composites primary (the stitched track, primaryDur seconds long)
// with secondary into output. Solo templates copy primary byte for byte
// without invoking ffmpeg.
func (c *Compositor) Apply(ctx context.Context, d Descriptor, primary string, primaryDur float64, secondary, output string) error {
	switch d.Layout {
	case LayoutSolo:
		c.logger.Debugw("solo template, copying stitched track", "template", d.ID)
		if err := copyFile(primary, output); err != nil {
			return fmt.Errorf("copy stitched track: %w", err)
		}
		return nil
	case LayoutCaptions:
		return faults.Wrap(faults.ErrConfiguration, "template", d.ID, "captions template has no stitched track to lay out", nil)
	}

	if strings.TrimSpace(secondary) == "" {
		return faults.Wrap(faults.ErrConfiguration, "template", d.ID, "secondary track required", nil)
	}

	cmd, err := LayoutCommand(d, primary, primaryDur, secondary, output)
	if err != nil {
		return faults.Wrap(faults.ErrConfiguration, "template", d.ID, "build layout graph", err)
	}

	c.logger.Infow("compositing template", "template", d.ID, "layout", d.Layout.String(), "duration", primaryDur)
	if err := c.runner.Run(ctx, cmd); err != nil {
		return faults.Wrap(faults.ErrExternalProcess, "template", d.ID, "encode layout", err)
	}
	return nil
}

// LayoutCommand builds the split or picture-in-picture invocation. Input 0
// is the looped secondary track, input 1 the stitched track, whose audio is
// the only audio kept.
func LayoutCommand(d Descriptor, primary string, primaryDur float64, secondary, output string) (transcode.Command, error) {
	var g *filtergraph.Graph
	switch d.Layout {
	case LayoutSplit:
		g = SplitGraph(d.PrimaryTop, d.Ratio)
	case LayoutPiP:
		g = PiPGraph()
	default:
		return transcode.Command{}, fmt.Errorf("layout %s has no composite graph", d.Layout)
	}
	if _, err := g.Validate(); err != nil {
		return transcode.Command{}, err
	}

	opts := video.LayoutEncode.Output()
	opts["t"] = transcode.Seconds(primaryDur)

	return transcode.Command{
		Stage: "template",
		Inputs: []transcode.Input{
			{Path: secondary, Options: ffmpeg.KwArgs{"stream_loop": "-1"}},
			{Path: primary},
		},
		FilterGraph: g.String(),
		Maps:        []string{filtergraph.Pad("v"), "1:a?"},
		Options:     opts,
		Output:      output,
	}, nil
}

// SplitHeights divides the frame height at ratio.
func SplitHeights(ratio float64) (top, bottom int) {
	top = int(math.Round(video.Height * ratio))
	return top, video.Height - top
}

// SplitGraph covers each region with its source and stacks them.
func SplitGraph(primaryTop bool, ratio float64) *filtergraph.Graph {
	topH, bottomH := SplitHeights(ratio)
	topSrc, bottomSrc := "0:v", "1:v"
	if primaryTop {
		topSrc, bottomSrc = "1:v", "0:v"
	}
	return filtergraph.New().
		Chain([]string{topSrc}, "top", video.FitCover(video.Width, topH)...).
		Chain([]string{bottomSrc}, "bottom", video.FitCover(video.Width, bottomH)...).
		Chain([]string{"top", "bottom"}, "v", filtergraph.F("vstack", filtergraph.KV("inputs", 2)))
}

// PiPGraph draws the stitched track, bordered, over the full-frame
// secondary.
func PiPGraph() *filtergraph.Graph {
	pip := append(video.FitCover(pipWidth, pipHeight),
		filtergraph.F("pad",
			filtergraph.KV("w", "iw+"+strconv.Itoa(2*pipBorder)),
			filtergraph.KV("h", "ih+"+strconv.Itoa(2*pipBorder)),
			filtergraph.KV("x", pipBorder),
			filtergraph.KV("y", pipBorder),
			filtergraph.KV("color", "white"),
		),
	)
	return filtergraph.New().
		Chain([]string{"0:v"}, "bg", video.FitCover(video.Width, video.Height)...).
		Chain([]string{"1:v"}, "pip", pip...).
		Chain([]string{"bg", "pip"}, "v", filtergraph.F("overlay", filtergraph.KV("x", pipX), filtergraph.KV("y", pipY)))
}

// BurnCaptions renders the captions-only template: the looped secondary
// track with captions burned in, and the concatenated narration as audio.
func (c *Compositor) BurnCaptions(ctx context.Context, secondary, narration string, narrationDur float64, captions, output string) error {
	cmd, err := CaptionsCommand(secondary, narration, narrationDur, captions, output)
	if err != nil {
		return faults.Wrap(faults.ErrConfiguration, "template", "t9", "build captions graph", err)
	}
	c.logger.Infow("burning captions onto secondary track", "captions", captions, "duration", narrationDur)
	if err := c.runner.Run(ctx, cmd); err != nil {
		return faults.Wrap(faults.ErrExternalProcess, "template", "t9", "encode captions", err)
	}
	return nil
}

func CaptionsCommand(secondary, narration string, narrationDur float64, captions, output string) (transcode.Command, error) {
	abs, err := filepath.Abs(captions)
	if err != nil {
		return transcode.Command{}, err
	}
	filters := append(video.FitCover(video.Width, video.Height),
		filtergraph.F("ass", "'"+EscapeFilterPath(abs)+"'"))
	g := filtergraph.New().Chain([]string{"0:v"}, "v", filters...)
	if _, err := g.Validate(); err != nil {
		return transcode.Command{}, err
	}

	opts := video.CaptionEncode.Output()
	opts["t"] = transcode.Seconds(narrationDur)

	return transcode.Command{
		Stage: "captions",
		Inputs: []transcode.Input{
			{Path: secondary, Options: ffmpeg.KwArgs{"stream_loop": "-1"}},
			{Path: narration},
		},
		FilterGraph: g.String(),
		Maps:        []string{filtergraph.Pad("v"), "1:a"},
		Options:     opts,
		Output:      output,
	}, nil
}

// EscapeFilterPath prepares a path for a quoted filter argument.
func EscapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = strings.ReplaceAll(p, ":", `\:`)
	return strings.ReplaceAll(p, "'", `\'`)
}

func copyFile(src, dst string) error {
	if filepath.Clean(src) == filepath.Clean(dst) {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
