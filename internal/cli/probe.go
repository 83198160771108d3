package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mgpai22/vidgen/internal/audio"
	"github.com/mgpai22/vidgen/internal/ffmpeg"
)

var probeCmd = &cobra.Command{
	Use:   "probe [media_file]",
	Short: "Show the duration and streams of a media file",
	Long: `Run ffprobe on a media file and print what the render pipeline sees:
the duration it will use and whether an audio stream is present.

Examples:
  vidgen probe narration/01.mp3
  vidgen probe gameplay.mp4`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	path := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	bins, err := ffmpeg.Resolve(cfg.Binaries.FFmpeg, cfg.Binaries.FFprobe)
	if err != nil {
		return fmt.Errorf("failed to locate ffprobe: %w", err)
	}
	prober := audio.NewProber(bins.FFprobe, time.Duration(cfg.Binaries.ProbeTimeoutSeconds)*time.Second, logger)

	res, err := prober.Inspect(ctx, path)
	if err != nil {
		return err
	}

	kind := "unknown"
	switch {
	case audio.IsVideoFile(path):
		kind = "video"
	case audio.IsAudioFile(path):
		kind = "audio"
	case audio.IsImageFile(path):
		kind = "image"
	}

	fmt.Printf("File:      %s\n", path)
	fmt.Printf("Kind:      %s\n", kind)
	fmt.Printf("Container: %s\n", res.Format.FormatName)
	fmt.Printf("Duration:  %.3fs\n", res.DurationSeconds())
	fmt.Printf("Has audio: %t\n", res.HasAudio())

	rows := make([][]string, 0, len(res.Streams))
	for _, s := range res.Streams {
		size := ""
		if s.Width > 0 && s.Height > 0 {
			size = fmt.Sprintf("%dx%d", s.Width, s.Height)
		}
		rows = append(rows, []string{strconv.Itoa(s.Index), s.CodecType, s.CodecName, size, s.Duration})
	}
	if len(rows) > 0 {
		fmt.Println(renderTable(
			[]string{"Index", "Type", "Codec", "Size", "Duration"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight},
		))
	}
	return nil
}
