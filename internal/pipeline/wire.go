package pipeline

import (
	"context"
	"time"

	"github.com/mgpai22/vidgen/internal/audio"
	"github.com/mgpai22/vidgen/internal/config"
	"github.com/mgpai22/vidgen/internal/faults"
	"github.com/mgpai22/vidgen/internal/fetch"
	"github.com/mgpai22/vidgen/internal/ffmpeg"
	"github.com/mgpai22/vidgen/internal/logging"
	"github.com/mgpai22/vidgen/internal/timing"
	"github.com/mgpai22/vidgen/internal/transcode"
	"github.com/mgpai22/vidgen/internal/transcribe"
)

// FromConfig wires the ffmpeg runner, prober, timing provider and fetcher
// described by cfg. The prober is returned for callers that inspect media
// directly.
func FromConfig(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Orchestrator, *audio.Prober, error) {
	bins, err := ffmpeg.Resolve(cfg.Binaries.FFmpeg, cfg.Binaries.FFprobe)
	if err != nil {
		return nil, nil, faults.Wrap(faults.ErrConfiguration, "setup", "ffmpeg", "resolve binaries", err)
	}
	logger.Or().Debugw("using ffmpeg binaries", "ffmpeg", bins.FFmpeg, "ffprobe", bins.FFprobe)

	prober := audio.NewProber(bins.FFprobe, time.Duration(cfg.Binaries.ProbeTimeoutSeconds)*time.Second, logger)

	provider, err := transcribe.ParseProvider(cfg.Timing.Provider)
	if err != nil {
		return nil, nil, faults.Wrap(faults.ErrConfiguration, "setup", "timing provider", "", err)
	}
	transcriber, err := transcribe.Factory(ctx, provider, cfg.Timing.APIKey, transcribe.Options{
		Model:         cfg.Timing.Model,
		WhisperBinary: cfg.Timing.WhisperBinary,
	})
	if err != nil {
		return nil, nil, faults.Wrap(faults.ErrConfiguration, "setup", "timing provider", string(provider), err)
	}

	engine := timing.NewEngine(transcriber, prober, timing.Options{
		EstimatorLanguages: cfg.Timing.EstimatorLanguages,
		MinWordSeconds:     cfg.Timing.MinWordSeconds,
		MinProviderWords:   cfg.Timing.MinProviderWords,
	}, logger)

	orch := New(
		transcode.NewExecRunner(bins.FFmpeg, logger),
		prober,
		engine,
		fetch.NewHTTPFetcher(time.Duration(cfg.Fetch.TimeoutSeconds)*time.Second, logger),
		SettingsFromConfig(cfg),
		logger,
	)
	return orch, prober, nil
}
