package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds every tunable of the render pipeline and job queue.
type Config struct {
	Binaries Binaries `toml:"binaries"`
	Render   Render   `toml:"render"`
	Timing   Timing   `toml:"timing"`
	Captions Captions `toml:"captions"`
	Audio    Audio    `toml:"audio"`
	Jobs     Jobs     `toml:"jobs"`
	Fetch    Fetch    `toml:"fetch"`
}

type Binaries struct {
	FFmpeg              string `toml:"ffmpeg"`
	FFprobe             string `toml:"ffprobe"`
	ProbeTimeoutSeconds int    `toml:"probe_timeout_seconds"`
}

// Render controls per-scene clip synthesis and stitching.
type Render struct {
	TransitionSeconds float64 `toml:"transition_seconds"`
	MaxZoom           float64 `toml:"max_zoom"`
	ZoomFraction      float64 `toml:"zoom_fraction"`
	Seed              uint64  `toml:"seed"`
	SceneConcurrency  int     `toml:"scene_concurrency"`
}

// Timing selects the speech timing provider and estimator policy.
type Timing struct {
	Provider           string   `toml:"provider"`
	Model              string   `toml:"model"`
	APIKey             string   `toml:"api_key"`
	EstimatorLanguages []string `toml:"estimator_languages"`
	MinWordSeconds     float64  `toml:"min_word_seconds"`
	MinProviderWords   int      `toml:"min_provider_words"`
	WhisperBinary      string   `toml:"whisper_binary"`
}

type Captions struct {
	MaxLineWidth        int     `toml:"max_line_width"`
	LeadInThreshold     float64 `toml:"lead_in_threshold"`
	DefaultSceneSeconds float64 `toml:"default_scene_seconds"`
	Font                string  `toml:"font"`
	FontSize            int     `toml:"font_size"`
}

type Audio struct {
	DefaultGain float64 `toml:"default_gain"`
}

// Jobs configures the local render queue.
type Jobs struct {
	Workers             int    `toml:"workers"`
	Database            string `toml:"database"`
	WorkRoot            string `toml:"work_root"`
	LockDir             string `toml:"lock_dir"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
}

type Fetch struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// DefaultConfigPath returns the per-user config file location.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "vidgen", "config.toml"), nil
}

// Load reads the config at path (or the default location when path is
// empty), applies environment overrides, then normalizes and validates.
// A missing default file is not an error; a missing explicit path is.
func Load(path string) (*Config, string, error) {
	cfg := Default()

	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", err
	}

	if exists {
		file, err := os.Open(resolved)
		if err != nil {
			return nil, "", fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, "", fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.normalize(); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	return &cfg, resolved, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if strings.TrimSpace(path) != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(defaultPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return defaultPath, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	return defaultPath, !info.IsDir(), nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("VIDGEN_FFMPEG_PATH"); v != "" {
		c.Binaries.FFmpeg = v
	}
	if v := os.Getenv("VIDGEN_FFPROBE_PATH"); v != "" {
		c.Binaries.FFprobe = v
	}

	// env keys win over the file so secrets can stay out of config.toml
	switch strings.ToLower(c.Timing.Provider) {
	case "openai":
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			c.Timing.APIKey = v
		}
	case "gemini":
		if v := os.Getenv("GEMINI_API_KEY"); v != "" {
			c.Timing.APIKey = v
		}
	}
}

// EnsureDirectories creates the job queue directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Jobs.WorkRoot, c.Jobs.LockDir, filepath.Dir(c.Jobs.Database)}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// Sample renders the default config as TOML.
func Sample() ([]byte, error) {
	cfg := Default()
	return toml.Marshal(cfg)
}

func expandPath(pathValue string) (string, error) {
	pathValue = strings.TrimSpace(pathValue)
	if pathValue == "" {
		return "", nil
	}
	if pathValue == "~" || strings.HasPrefix(pathValue, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		pathValue = filepath.Join(home, strings.TrimPrefix(pathValue, "~"))
	}
	return filepath.Clean(pathValue), nil
}
