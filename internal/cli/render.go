package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mgpai22/vidgen/internal/faults"
	"github.com/mgpai22/vidgen/internal/pipeline"
)

var renderCmd = &cobra.Command{
	Use:   "render [manifest.toml]",
	Short: "Render a project manifest into a video",
	Long: `Render every scene of a project manifest and lay the result out under
the manifest's template.

The final video is written to --output, the manifest's output, or the
work directory. The captions document (subtitle.ass) stays in the work
directory.

Examples:
  vidgen render project.toml
  vidgen render project.toml -o short.mp4
  vidgen render project.toml -w ./work --template t7`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().
		StringP("work-dir", "w", "", "Working directory for intermediate files")
	renderCmd.Flags().
		StringP("template", "t", "", "Template id override (t0-t7, t9)")
}

func runRender(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	req, err := requestFromFlags(cmd, args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	orch, _, err := pipeline.FromConfig(ctx, cfg, logger)
	if err != nil {
		return err
	}

	logger.Infow("Starting render",
		"manifest", args[0],
		"project", req.ProjectID,
		"template", req.TemplateID,
		"scenes", len(req.Scenes),
	)

	res, err := orch.Render(ctx, req, func(stage string, percent int) {
		fmt.Fprintf(os.Stderr, "[%3d%%] %s\n", percent, stage)
	})
	if err != nil {
		return fmt.Errorf("render failed (%s): %w", faults.Kind(err), err)
	}

	absVideo, _ := filepath.Abs(res.VideoPath)
	fmt.Printf("Video rendered successfully: %s\n", absVideo)
	fmt.Printf("  Captions: %s\n", res.CaptionsPath)
	fmt.Printf("  Work dir: %s\n", res.WorkDir)
	return nil
}

// requestFromFlags loads the manifest and applies the output, language,
// work dir and template overrides present on cmd.
func requestFromFlags(cmd *cobra.Command, manifestPath string) (pipeline.Request, error) {
	m, err := pipeline.LoadManifest(manifestPath)
	if err != nil {
		return pipeline.Request{}, err
	}
	req := m.Request()

	if out, _ := cmd.Flags().GetString("output"); out != "" {
		req.OutputPath = out
	}
	if lang, _ := cmd.Flags().GetString("language"); lang != "" {
		req.Language = lang
	}
	if f := cmd.Flags().Lookup("work-dir"); f != nil && f.Value.String() != "" {
		req.WorkDir = f.Value.String()
	}
	if f := cmd.Flags().Lookup("template"); f != nil && strings.TrimSpace(f.Value.String()) != "" {
		req.TemplateID = f.Value.String()
	}
	return req, nil
}
