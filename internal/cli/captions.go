package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mgpai22/vidgen/internal/pipeline"
	"github.com/mgpai22/vidgen/internal/subtitle"
)

var captionsCmd = &cobra.Command{
	Use:   "captions [manifest.toml]",
	Short: "Generate the caption track for a project without rendering video",
	Long: `Time every scene's narration and write the global caption track.

ASS output keeps the word highlight; SRT and WebVTT carry plain text.

Examples:
  vidgen captions project.toml
  vidgen captions project.toml -f srt -o captions.srt
  vidgen captions inspect work/subtitle.ass`,
	Args: cobra.ExactArgs(1),
	RunE: runCaptions,
}

var captionsInspectCmd = &cobra.Command{
	Use:   "inspect [file.ass]",
	Short: "Print the events of a captions document",
	Args:  cobra.ExactArgs(1),
	RunE:  runCaptionsInspect,
}

func init() {
	rootCmd.AddCommand(captionsCmd)
	captionsCmd.AddCommand(captionsInspectCmd)

	captionsCmd.Flags().
		StringP("format", "f", "ass", "Output subtitle format (ass, srt, vtt)")
	captionsCmd.Flags().
		StringP("work-dir", "w", "", "Working directory for downloaded assets")
}

func runCaptions(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	formatStr, _ := cmd.Flags().GetString("format")
	format, err := subtitle.ParseFormat(formatStr)
	if err != nil {
		return fmt.Errorf("unsupported format %q: use ass, srt, or vtt", formatStr)
	}

	req, err := requestFromFlags(cmd, args[0])
	if err != nil {
		return err
	}
	outputPath, _ := cmd.Flags().GetString("output")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	orch, _, err := pipeline.FromConfig(ctx, cfg, logger)
	if err != nil {
		return err
	}

	logger.Infow("Generating captions",
		"manifest", args[0],
		"format", format,
		"scenes", len(req.Scenes),
	)
	written, err := orch.Captions(ctx, req, format, outputPath)
	if err != nil {
		return fmt.Errorf("captions failed: %w", err)
	}

	absOutput, _ := filepath.Abs(written)
	fmt.Printf("Captions generated successfully: %s\n", absOutput)
	return nil
}

func runCaptionsInspect(cmd *cobra.Command, args []string) error {
	doc, err := subtitle.Open(args[0])
	if err != nil {
		return err
	}
	if doc.Title != "" {
		fmt.Printf("Title: %s\n", doc.Title)
	}
	fmt.Println(renderTable(
		[]string{"#", "Start", "End", "Word", "Text"},
		eventRows(doc.Events),
		[]columnAlignment{alignRight, alignRight, alignRight, alignLeft, alignLeft},
	))
	fmt.Printf("%d events\n", len(doc.Events))
	return nil
}

func eventRows(events []subtitle.Event) [][]string {
	rows := make([][]string, 0, len(events))
	for i, ev := range events {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			formatSeconds(ev.Start),
			formatSeconds(ev.End),
			ev.Highlighted(),
			strings.ReplaceAll(ev.Plain(), "\n", " "),
		})
	}
	return rows
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 2, 64)
}
