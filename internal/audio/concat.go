package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/mgpai22/vidgen/internal/transcode"
)

// ConcatNarration joins narration files end to end through the concat
// demuxer and re-encodes them to a single mp3 at out.
func ConcatNarration(
	ctx context.Context,
	runner transcode.Runner,
	files []string,
	listPath, out string,
) error {
	if len(files) == 0 {
		return fmt.Errorf("no narration files to concatenate")
	}

	var sb strings.Builder
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", f, err)
		}
		sb.WriteString("file '" + escapeConcatPath(abs) + "'\n")
	}

	if err := os.MkdirAll(filepath.Dir(listPath), 0o755); err != nil {
		return fmt.Errorf("failed to create list directory: %w", err)
	}
	if err := os.WriteFile(listPath, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}

	return runner.Run(ctx, transcode.Command{
		Stage: "narration",
		Inputs: []transcode.Input{{
			Path:    listPath,
			Options: ffmpeg.KwArgs{"f": "concat", "safe": "0"},
		}},
		Options: ffmpeg.KwArgs{"c:a": "libmp3lame", "b:a": "192k"},
		Output:  out,
	})
}

// concat demuxer lists quote with single quotes; an embedded quote closes,
// escapes and reopens.
func escapeConcatPath(p string) string {
	return strings.ReplaceAll(p, "'", `'\''`)
}
