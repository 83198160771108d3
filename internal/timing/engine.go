// Package timing produces word-level timestamps for scene narration, from a
// speech timing provider when it can be trusted and from a proportional
// estimate over the known audio duration otherwise.
package timing

import (
	"context"
	"slices"
	"strings"

	"github.com/mgpai22/vidgen/internal/logging"
	"github.com/mgpai22/vidgen/internal/transcribe"
)

// WordSegment is one word with scene-relative times in seconds.
type WordSegment struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// SceneTiming pairs a scene's duration with its word segments.
type SceneTiming struct {
	SceneID  string
	Duration float64
	Segments []WordSegment
}

// Request describes one narration file. Duration 0 means unknown.
type Request struct {
	AudioPath    string
	Language     string
	ExpectedText string
	Duration     float64
}

// DurationProber supplies the audio length when the caller does not know it.
type DurationProber interface {
	DurationOrZero(ctx context.Context, path string) float64
}

type Options struct {
	// EstimatorLanguages are base language codes that skip the provider.
	EstimatorLanguages []string
	MinWordSeconds     float64
	// MinProviderWords is the smallest provider result accepted before
	// falling back to the estimator.
	MinProviderWords int
}

type Engine struct {
	provider transcribe.Transcriber
	prober   DurationProber
	estimate map[string]bool
	minWord  float64
	minWords int
	logger   *logging.Logger
}

// NewEngine builds an engine. provider may be nil, in which case every
// request is estimated.
func NewEngine(provider transcribe.Transcriber, prober DurationProber, opts Options, logger *logging.Logger) *Engine {
	langs := make(map[string]bool, len(opts.EstimatorLanguages))
	for _, l := range opts.EstimatorLanguages {
		if n := NormalizeLanguage(l); n != "" {
			langs[n] = true
		}
	}
	minWord := opts.MinWordSeconds
	if minWord <= 0 {
		minWord = 0.06
	}
	minWords := opts.MinProviderWords
	if minWords <= 0 {
		minWords = 3
	}
	return &Engine{
		provider: provider,
		prober:   prober,
		estimate: langs,
		minWord:  minWord,
		minWords: minWords,
		logger:   logger.Or(),
	}
}

// Segments returns ordered, non-overlapping word segments whose last end
// equals the audio duration. Silent or textless narration yields an empty
// slice. Provider failures are logged and estimated over, never returned.
func (e *Engine) Segments(ctx context.Context, req Request) ([]WordSegment, error) {
	duration := req.Duration
	if duration <= 0 && e.prober != nil && req.AudioPath != "" {
		duration = e.prober.DurationOrZero(ctx, req.AudioPath)
	}
	words := Tokenize(req.ExpectedText)
	if duration <= 0 || len(words) == 0 {
		return []WordSegment{}, nil
	}

	lang := NormalizeLanguage(req.Language)
	log := e.logger.With("audio", req.AudioPath, "language", lang)

	if e.estimate[lang] {
		log.Debugw("estimating word timings", "reason", "estimator language", "words", len(words))
		return Estimate(words, duration, e.minWord), nil
	}
	if e.provider == nil {
		log.Debugw("estimating word timings", "reason", "no provider", "words", len(words))
		return Estimate(words, duration, e.minWord), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := e.provider.Transcribe(ctx, req.AudioPath, lang)
	if err != nil {
		log.Warnw("speech timing provider failed, estimating", "error", err)
		return Estimate(words, duration, e.minWord), nil
	}

	segs := Normalize(res.Words, duration, e.minWord)
	if len(segs) < e.minWords {
		log.Infow("too few provider words, estimating", "provider_words", len(segs), "min", e.minWords)
		return Estimate(words, duration, e.minWord), nil
	}
	return segs, nil
}

// Normalize turns provider words into segments that are sorted, contiguous
// or gapped but never overlapping, at least minWord long where room allows,
// and end exactly at duration.
func Normalize(words []transcribe.Word, duration, minWord float64) []WordSegment {
	in := make([]transcribe.Word, 0, len(words))
	for _, w := range words {
		w.Text = strings.TrimSpace(w.Text)
		if w.Text != "" {
			in = append(in, w)
		}
	}
	slices.SortStableFunc(in, func(a, b transcribe.Word) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		}
		return 0
	})

	segs := make([]WordSegment, 0, len(in))
	var prevEnd float64
	for _, w := range in {
		start := max(w.Start, prevEnd, 0)
		if start >= duration {
			break
		}
		end := min(max(w.End, start+minWord), duration)
		segs = append(segs, WordSegment{Word: w.Text, Start: start, End: end})
		prevEnd = end
	}
	if len(segs) > 0 {
		segs[len(segs)-1].End = duration
	}
	return segs
}
