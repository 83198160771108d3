// Package video fixes the output format shared by every render stage and
// names the encoder presets each stage uses.
package video

import (
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/mgpai22/vidgen/internal/filtergraph"
)

// Vertical short-form target.
const (
	Width  = 1080
	Height = 1920
	FPS    = 60

	PixelFormat  = "yuv420p"
	VideoCodec   = "libx264"
	AudioCodec   = "aac"
	AudioBitrate = "192k"
)

// Preset is an x264 speed/quality pairing.
type Preset struct {
	Speed string
	CRF   int
}

var (
	// SceneEncode renders zoomed stills and the stitched timeline.
	SceneEncode = Preset{Speed: "fast", CRF: 23}
	// LayoutEncode renders split-screen and picture-in-picture layouts.
	LayoutEncode = Preset{Speed: "veryfast", CRF: 20}
	// CaptionEncode renders burned-in captions and the mixer's re-encode
	// fallback.
	CaptionEncode = Preset{Speed: "fast", CRF: 18}
)

// Output returns the encoder options for a full video+audio encode.
func (p Preset) Output() ffmpeg.KwArgs {
	return ffmpeg.KwArgs{
		"r":       strconv.Itoa(FPS),
		"pix_fmt": PixelFormat,
		"c:v":     VideoCodec,
		"preset":  p.Speed,
		"crf":     p.CRF,
		"c:a":     AudioCodec,
		"b:a":     AudioBitrate,
	}
}

// VideoOnly returns the x264 options without the audio encoder, for stages
// that copy or build audio separately.
func (p Preset) VideoOnly() ffmpeg.KwArgs {
	return ffmpeg.KwArgs{
		"c:v":    VideoCodec,
		"preset": p.Speed,
		"crf":    p.CRF,
	}
}

// FitCover scales a source to cover w×h and crops the overflow.
func FitCover(w, h int) []filtergraph.Filter {
	ws, hs := strconv.Itoa(w), strconv.Itoa(h)
	return []filtergraph.Filter{
		filtergraph.F("scale", ws, hs,
			filtergraph.KV("force_original_aspect_ratio", "increase"),
			filtergraph.KV("flags", "lanczos"),
		),
		filtergraph.F("crop", ws, hs),
	}
}
