package config

import (
	"errors"
	"fmt"
	"slices"
)

var knownProviders = []string{"openai", "gemini", "whisper", "none"}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateTiming(); err != nil {
		return err
	}
	if err := c.validateCaptions(); err != nil {
		return err
	}
	if err := c.validateJobs(); err != nil {
		return err
	}
	if c.Audio.DefaultGain < 0 || c.Audio.DefaultGain > 2 {
		return errors.New("audio.default_gain must be between 0 and 2")
	}
	return nil
}

func (c *Config) validateRender() error {
	if c.Render.TransitionSeconds < 0 {
		return errors.New("render.transition_seconds must be >= 0")
	}
	if c.Render.MaxZoom < 1 {
		return errors.New("render.max_zoom must be >= 1")
	}
	if c.Render.ZoomFraction <= 0 || c.Render.ZoomFraction > 1 {
		return errors.New("render.zoom_fraction must be in (0, 1]")
	}
	if c.Render.SceneConcurrency < 1 {
		return errors.New("render.scene_concurrency must be >= 1")
	}
	return nil
}

func (c *Config) validateTiming() error {
	if !slices.Contains(knownProviders, c.Timing.Provider) {
		return fmt.Errorf("timing.provider %q is not one of %v", c.Timing.Provider, knownProviders)
	}
	if c.Timing.MinWordSeconds <= 0 {
		return errors.New("timing.min_word_seconds must be positive")
	}
	if c.Timing.MinProviderWords < 1 {
		return errors.New("timing.min_provider_words must be >= 1")
	}
	return nil
}

func (c *Config) validateCaptions() error {
	if c.Captions.MaxLineWidth < 1 {
		return errors.New("captions.max_line_width must be positive")
	}
	if c.Captions.DefaultSceneSeconds <= 0 {
		return errors.New("captions.default_scene_seconds must be positive")
	}
	if c.Captions.FontSize < 1 {
		return errors.New("captions.font_size must be positive")
	}
	return nil
}

func (c *Config) validateJobs() error {
	if c.Jobs.Workers < 1 {
		return errors.New("jobs.workers must be >= 1")
	}
	if c.Jobs.Database == "" {
		return errors.New("jobs.database must be set")
	}
	if c.Jobs.WorkRoot == "" {
		return errors.New("jobs.work_root must be set")
	}
	if c.Jobs.PollIntervalSeconds < 1 {
		return errors.New("jobs.poll_interval_seconds must be >= 1")
	}
	return nil
}
