package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTiming()
	c.normalizeCaptions()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Binaries.FFmpeg, err = expandPath(c.Binaries.FFmpeg); err != nil {
		return fmt.Errorf("binaries.ffmpeg: %w", err)
	}
	if c.Binaries.FFprobe, err = expandPath(c.Binaries.FFprobe); err != nil {
		return fmt.Errorf("binaries.ffprobe: %w", err)
	}
	if c.Jobs.Database, err = expandPath(c.Jobs.Database); err != nil {
		return fmt.Errorf("jobs.database: %w", err)
	}
	if c.Jobs.WorkRoot, err = expandPath(c.Jobs.WorkRoot); err != nil {
		return fmt.Errorf("jobs.work_root: %w", err)
	}
	if c.Jobs.LockDir, err = expandPath(c.Jobs.LockDir); err != nil {
		return fmt.Errorf("jobs.lock_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTiming() {
	c.Timing.Provider = strings.ToLower(strings.TrimSpace(c.Timing.Provider))
	if c.Timing.Provider == "" {
		c.Timing.Provider = "none"
	}
	c.Timing.APIKey = strings.TrimSpace(c.Timing.APIKey)

	seen := make(map[string]struct{}, len(c.Timing.EstimatorLanguages))
	langs := make([]string, 0, len(c.Timing.EstimatorLanguages))
	for _, lang := range c.Timing.EstimatorLanguages {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if lang == "" {
			continue
		}
		if _, dup := seen[lang]; dup {
			continue
		}
		seen[lang] = struct{}{}
		langs = append(langs, lang)
	}
	c.Timing.EstimatorLanguages = langs
}

func (c *Config) normalizeCaptions() {
	c.Captions.Font = strings.TrimSpace(c.Captions.Font)
	if c.Captions.Font == "" {
		c.Captions.Font = "Arial Black"
	}
}
