package cli

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mgpai22/vidgen/internal/config"
	"github.com/mgpai22/vidgen/internal/logging"
)

var (
	verbose    bool
	configPath string
	logger     *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "vidgen",
	Short: "Render narrated vertical short videos with ffmpeg",
	Long: `Vidgen turns a project manifest of scenes (an image, a narration track
and its text) into a 1080x1920 short video with word-highlighted captions.

Scenes are zoomed, crossfaded and laid out under one of the fixed
templates, optionally over a secondary clip and a background music bed.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// a missing .env is normal; real environment variables still apply
		_ = godotenv.Load()
		logger = logging.NewLogger(verbose)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().
		BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		StringVar(&configPath, "config", "", "Config file path (default: user config dir)/vidgen/config.toml")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output file path")
	rootCmd.PersistentFlags().
		StringP("language", "l", "", "Narration language code, overriding the manifest (e.g., en, es, ja)")
}

func loadConfig() (*config.Config, error) {
	cfg, path, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Debugw("loaded config", "path", path)
	return cfg, nil
}
