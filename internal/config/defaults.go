package config

import (
	"os"
	"path/filepath"
)

// Languages whose ASR word timestamps are too unreliable to use; the
// proportional estimator is used for them instead.
var defaultEstimatorLanguages = []string{
	"hi", "mr", "bn", "ta", "te", "gu", "kn", "ml", "or", "pa", "ur", "as",
}

// Default returns the stock configuration.
func Default() Config {
	dataDir := defaultDataDir()
	return Config{
		Binaries: Binaries{
			ProbeTimeoutSeconds: 30,
		},
		Render: Render{
			TransitionSeconds: 1.0,
			MaxZoom:           1.08,
			ZoomFraction:      0.7,
			Seed:              42,
			SceneConcurrency:  2,
		},
		Timing: Timing{
			Provider:           "openai",
			EstimatorLanguages: append([]string(nil), defaultEstimatorLanguages...),
			MinWordSeconds:     0.06,
			MinProviderWords:   3,
			WhisperBinary:      "whisper",
		},
		Captions: Captions{
			MaxLineWidth:        35,
			LeadInThreshold:     0.1,
			DefaultSceneSeconds: 5.0,
			Font:                "Arial Black",
			FontSize:            52,
		},
		Audio: Audio{
			DefaultGain: 0.12,
		},
		Jobs: Jobs{
			Workers:             2,
			Database:            filepath.Join(dataDir, "jobs.db"),
			WorkRoot:            filepath.Join(dataDir, "jobs"),
			LockDir:             filepath.Join(dataDir, "locks"),
			PollIntervalSeconds: 2,
		},
		Fetch: Fetch{
			TimeoutSeconds: 120,
		},
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "vidgen")
	}
	return filepath.Join("~", ".local", "share", "vidgen")
}
