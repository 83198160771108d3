package pipeline

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/mgpai22/vidgen/internal/audio"
	"github.com/mgpai22/vidgen/internal/faults"
	"github.com/mgpai22/vidgen/internal/mix"
	"github.com/mgpai22/vidgen/internal/scene"
	"github.com/mgpai22/vidgen/internal/subtitle"
	"github.com/mgpai22/vidgen/internal/template"
	"github.com/mgpai22/vidgen/internal/timeline"
	"github.com/mgpai22/vidgen/internal/timing"
)

const (
	inputsDir     = "inputs"
	scenesDir     = "scenes"
	finalName     = "final.mp4"
	narrationName = "narration.mp3"
	narrationList = "narration.txt"

	// matches the caption builder's default
	defaultSceneSeconds = 5.0
)

func (o *Orchestrator) validate(_ context.Context, rc *RenderContext) error {
	if len(rc.Scenes) == 0 {
		return faults.Wrap(faults.ErrConfiguration, "validate", "", "project has no scenes", nil)
	}
	d, err := template.Lookup(rc.TemplateID)
	if err != nil {
		return err
	}
	rc.Template = d
	if d.NeedsSecondary() && !rc.captionsOnly && rc.SecondaryRef == "" {
		return faults.Wrap(faults.ErrConfiguration, "validate", "template "+d.ID, "secondary track required", nil)
	}

	for i := range rc.Scenes {
		s := &rc.Scenes[i]
		if !nonEmpty(s.ID) {
			s.ID = fmt.Sprintf("#%d", i+1)
		}
		if !nonEmpty(s.Text) {
			return faults.MissingAsset(s.ID, "narration text is empty")
		}
		if !nonEmpty(s.AudioRef) {
			return faults.MissingAsset(s.ID, "audio reference is empty")
		}
		if d.RendersScenes() && !rc.captionsOnly && !nonEmpty(s.ImageRef) {
			return faults.MissingAsset(s.ID, "image reference is empty")
		}
	}

	slices.SortStableFunc(rc.Scenes, func(a, b SceneAssets) int {
		return cmp.Compare(a.Order, b.Order)
	})
	rc.validated = true
	return nil
}

func (o *Orchestrator) prepare(ctx context.Context, rc *RenderContext) error {
	if err := require("prepare", has("validated scenes", rc.validated)); err != nil {
		return err
	}
	dest := filepath.Join(rc.WorkDir, inputsDir)
	needImages := rc.Template.RendersScenes() && !rc.captionsOnly

	err := o.forEachScene(ctx, len(rc.Scenes), func(ctx context.Context, i int) error {
		s := &rc.Scenes[i]
		p, err := o.fetcher.Fetch(ctx, s.AudioRef, dest)
		if err != nil {
			return faults.Wrap(faults.ErrMissingAsset, "prepare", "scene "+s.ID, "audio", err)
		}
		if !audio.IsMediaFile(p) {
			o.logger.Warnw("narration has an unexpected extension", "scene", s.ID, "path", p)
		}
		s.AudioPath = p

		if needImages {
			p, err := o.fetcher.Fetch(ctx, s.ImageRef, dest)
			if err != nil {
				return faults.Wrap(faults.ErrMissingAsset, "prepare", "scene "+s.ID, "image", err)
			}
			if !audio.IsImageFile(p) {
				o.logger.Warnw("scene image has an unexpected extension", "scene", s.ID, "path", p)
			}
			s.ImagePath = p
		}
		return nil
	})
	if err != nil {
		return err
	}

	if rc.Template.NeedsSecondary() && !rc.captionsOnly {
		p, err := o.fetcher.Fetch(ctx, rc.SecondaryRef, dest)
		if err != nil {
			return faults.Wrap(faults.ErrMissingAsset, "prepare", "secondary track", "", err)
		}
		rc.Secondary = p
	}
	if rc.Background != nil && !rc.captionsOnly {
		p, err := o.fetcher.Fetch(ctx, rc.Background.Ref, dest)
		if err != nil {
			return faults.Wrap(faults.ErrMissingAsset, "prepare", "background", "", err)
		}
		rc.Background.Path = p
	}
	rc.prepared = true
	return nil
}

func (o *Orchestrator) compose(ctx context.Context, rc *RenderContext) error {
	if err := require("compose", has("resolved scene assets", rc.prepared && rc.scenesResolved())); err != nil {
		return err
	}
	comp := scene.NewCompositor(o.runner, o.prober, o.timer, scene.Options{
		Transition:       o.settings.Transition,
		MaxZoom:          o.settings.MaxZoom,
		ZoomFraction:     o.settings.ZoomFraction,
		Seed:             rc.Seed,
		FallbackDuration: o.settings.DefaultSceneSeconds,
	}, o.logger)

	clips := make([]scene.Clip, len(rc.Scenes))
	err := o.forEachScene(ctx, len(rc.Scenes), func(ctx context.Context, i int) error {
		s := rc.Scenes[i]
		clip, err := comp.Compose(ctx, scene.Input{
			SceneID:   s.ID,
			Index:     i,
			ImagePath: s.ImagePath,
			AudioPath: s.AudioPath,
			Language:  rc.Language,
			Text:      s.Text,
			Output:    filepath.Join(rc.WorkDir, scenesDir, fmt.Sprintf("scene_%03d.mp4", i)),
		})
		if err != nil {
			return err
		}
		clips[i] = clip
		return nil
	})
	if err != nil {
		return err
	}
	rc.Clips = clips
	return nil
}

func (o *Orchestrator) stitch(ctx context.Context, rc *RenderContext) error {
	if err := require("stitch", has("scene clips", len(rc.Clips) == len(rc.Scenes) && len(rc.Clips) > 0)); err != nil {
		return err
	}
	stitcher := timeline.NewStitcher(o.runner, o.captionBuilder(), subtitle.NewASSWriter(o.settings.Font, o.settings.FontSize), o.settings.Transition, o.logger)
	res, err := stitcher.Stitch(ctx, rc.Clips, rc.WorkDir)
	if err != nil {
		return err
	}
	rc.Stitched = res
	rc.CaptionsPath = res.CaptionsPath
	return nil
}

func (o *Orchestrator) applyTemplate(ctx context.Context, rc *RenderContext) error {
	if err := require("template",
		has("stitched video", nonEmpty(rc.Stitched.VideoPath)),
		has("secondary track", !rc.Template.NeedsSecondary() || nonEmpty(rc.Secondary)),
	); err != nil {
		return err
	}
	// the encoded length can drift from the summed narration; trust the file
	dur := o.prober.DurationOrZero(ctx, rc.Stitched.VideoPath)
	if dur <= 0 {
		dur = rc.Stitched.Duration
	}
	final := filepath.Join(rc.WorkDir, finalName)
	if err := template.NewCompositor(o.runner, o.logger).Apply(ctx, rc.Template, rc.Stitched.VideoPath, dur, rc.Secondary, final); err != nil {
		return err
	}
	rc.FinalPath = final
	return nil
}

// narration renders the captions-only template: joined narration audio,
// captions timed per scene and burned onto the secondary track.
func (o *Orchestrator) narration(ctx context.Context, rc *RenderContext) error {
	if err := require("narration",
		has("resolved narration", rc.prepared && rc.scenesResolved()),
		has("secondary track", nonEmpty(rc.Secondary)),
	); err != nil {
		return err
	}

	narration := filepath.Join(rc.WorkDir, narrationName)
	if err := audio.ConcatNarration(ctx, o.runner, rc.audioPaths(), filepath.Join(rc.WorkDir, narrationList), narration); err != nil {
		return faults.Wrap(faults.ErrExternalProcess, "narration", "", "concatenate narration", err)
	}
	rc.Narration = narration

	sub, total, err := o.timeScenes(ctx, rc)
	if err != nil {
		return err
	}
	captions := filepath.Join(rc.WorkDir, timeline.CaptionsName)
	if err := subtitle.NewASSWriter(o.settings.Font, o.settings.FontSize).Write(sub, captions); err != nil {
		return fmt.Errorf("write captions: %w", err)
	}
	rc.CaptionsPath = captions

	dur := o.prober.DurationOrZero(ctx, narration)
	if dur <= 0 {
		dur = total
	}
	final := filepath.Join(rc.WorkDir, finalName)
	if err := template.NewCompositor(o.runner, o.logger).BurnCaptions(ctx, rc.Secondary, narration, dur, captions, final); err != nil {
		return err
	}
	rc.FinalPath = final
	return nil
}

func (o *Orchestrator) mixBackground(ctx context.Context, rc *RenderContext) error {
	if err := require("mix",
		has("final video", nonEmpty(rc.FinalPath)),
		has("background track", rc.Background != nil && nonEmpty(rc.Background.Path)),
	); err != nil {
		return err
	}
	return mix.NewMixer(o.runner, o.prober, o.settings.DefaultGain, o.logger).
		Mix(ctx, rc.FinalPath, rc.Background.Path, rc.Background.Gain)
}

func (o *Orchestrator) publish(_ context.Context, rc *RenderContext) error {
	if err := require("publish", has("final video", nonEmpty(rc.FinalPath))); err != nil {
		return err
	}
	if rc.OutputPath == "" {
		rc.VideoPath = rc.FinalPath
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(rc.OutputPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := moveFile(rc.FinalPath, rc.OutputPath); err != nil {
		return fmt.Errorf("publish %s: %w", rc.OutputPath, err)
	}
	rc.VideoPath = rc.OutputPath
	return nil
}

func (o *Orchestrator) captionBuilder() *subtitle.Builder {
	return subtitle.NewBuilder(o.settings.MaxLineWidth, o.settings.LeadInThreshold, o.settings.DefaultSceneSeconds)
}

// timeScenes probes and times each scene's own narration and builds the
// global caption track. total is the summed narration length.
func (o *Orchestrator) timeScenes(ctx context.Context, rc *RenderContext) (*subtitle.Subtitle, float64, error) {
	timings := make([]timing.SceneTiming, len(rc.Scenes))
	err := o.forEachScene(ctx, len(rc.Scenes), func(ctx context.Context, i int) error {
		s := rc.Scenes[i]
		dur := o.prober.DurationOrZero(ctx, s.AudioPath)
		segs, err := o.timer.Segments(ctx, timing.Request{
			AudioPath:    s.AudioPath,
			Language:     rc.Language,
			ExpectedText: s.Text,
			Duration:     dur,
		})
		if err != nil {
			return fmt.Errorf("time scene %s: %w", s.ID, err)
		}
		if dur <= 0 {
			o.logger.Warnw("narration duration unreadable, using fallback",
				"scene", s.ID, "audio", s.AudioPath, "duration", o.settings.DefaultSceneSeconds)
			dur = o.settings.DefaultSceneSeconds
		}
		timings[i] = timing.SceneTiming{SceneID: s.ID, Duration: dur, Segments: segs}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	segments := make([][]timing.WordSegment, len(timings))
	durations := make([]float64, len(timings))
	var total float64
	for i, t := range timings {
		segments[i] = t.Segments
		durations[i] = t.Duration
		total += t.Duration
	}
	return o.captionBuilder().Build(segments, durations), total, nil
}

// moveFile renames src to dst, copying across filesystems when rename
// cannot.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
