// Package pipeline drives one render from scene assets to the published
// video: validate, prepare, compose, stitch, template, mix, publish.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mgpai22/vidgen/internal/config"
	"github.com/mgpai22/vidgen/internal/fetch"
	"github.com/mgpai22/vidgen/internal/logging"
	"github.com/mgpai22/vidgen/internal/mix"
	"github.com/mgpai22/vidgen/internal/scene"
	"github.com/mgpai22/vidgen/internal/subtitle"
	"github.com/mgpai22/vidgen/internal/transcode"
)

// Prober is the media inspection the stages rely on. Failures read as zero
// or false.
type Prober interface {
	DurationOrZero(ctx context.Context, path string) float64
	HasAudioStream(ctx context.Context, path string) bool
}

// Progress receives the name of each finished stage and the overall
// percentage reached.
type Progress func(stage string, percent int)

// Settings are the render tunables taken from config.
type Settings struct {
	Transition       float64
	MaxZoom          float64
	ZoomFraction     float64
	Seed             uint64
	SceneConcurrency int

	MaxLineWidth        int
	LeadInThreshold     float64
	DefaultSceneSeconds float64
	Font                string
	FontSize            int

	DefaultGain float64
	WorkRoot    string
}

// SettingsFromConfig copies the render, captions, audio and job sections.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Transition:          cfg.Render.TransitionSeconds,
		MaxZoom:             cfg.Render.MaxZoom,
		ZoomFraction:        cfg.Render.ZoomFraction,
		Seed:                cfg.Render.Seed,
		SceneConcurrency:    cfg.Render.SceneConcurrency,
		MaxLineWidth:        cfg.Captions.MaxLineWidth,
		LeadInThreshold:     cfg.Captions.LeadInThreshold,
		DefaultSceneSeconds: cfg.Captions.DefaultSceneSeconds,
		Font:                cfg.Captions.Font,
		FontSize:            cfg.Captions.FontSize,
		DefaultGain:         cfg.Audio.DefaultGain,
		WorkRoot:            cfg.Jobs.WorkRoot,
	}
}

type Orchestrator struct {
	runner   transcode.Runner
	prober   Prober
	timer    scene.Timer
	fetcher  fetch.Fetcher
	settings Settings
	logger   *logging.Logger
}

func New(runner transcode.Runner, prober Prober, timer scene.Timer, fetcher fetch.Fetcher, settings Settings, logger *logging.Logger) *Orchestrator {
	if settings.SceneConcurrency <= 0 {
		settings.SceneConcurrency = 1
	}
	if settings.DefaultGain <= 0 {
		settings.DefaultGain = mix.DefaultGain
	}
	if settings.DefaultSceneSeconds <= 0 {
		settings.DefaultSceneSeconds = defaultSceneSeconds
	}
	return &Orchestrator{
		runner:   runner,
		prober:   prober,
		timer:    timer,
		fetcher:  fetcher,
		settings: settings,
		logger:   logger.Or(),
	}
}

type stage struct {
	name    string
	percent int
	run     func(context.Context, *RenderContext) error
	skip    func(*RenderContext) bool
}

func (o *Orchestrator) stages() []stage {
	narrationOnly := func(rc *RenderContext) bool { return !rc.Template.RendersScenes() }
	withScenes := func(rc *RenderContext) bool { return rc.Template.RendersScenes() }
	return []stage{
		{name: "validate", percent: 5, run: o.validate},
		{name: "prepare", percent: 15, run: o.prepare},
		{name: "compose", percent: 55, run: o.compose, skip: narrationOnly},
		{name: "stitch", percent: 70, run: o.stitch, skip: narrationOnly},
		{name: "template", percent: 85, run: o.applyTemplate, skip: narrationOnly},
		{name: "narration", percent: 85, run: o.narration, skip: withScenes},
		{name: "mix", percent: 95, run: o.mixBackground, skip: func(rc *RenderContext) bool { return rc.Background == nil }},
		{name: "publish", percent: 100, run: o.publish},
	}
}

// Render runs every stage in order. The first error aborts the render and
// nothing is written to the output path.
func (o *Orchestrator) Render(ctx context.Context, req Request, progress Progress) (Result, error) {
	rc, err := o.newContext(req)
	if err != nil {
		return Result{}, err
	}
	log := o.logger.With("project", rc.ProjectID, "work_dir", rc.WorkDir)

	for _, st := range o.stages() {
		if st.skip != nil && st.skip(rc) {
			continue
		}
		log.Debugw("stage started", "stage", st.name)
		if err := st.run(ctx, rc); err != nil {
			log.Errorw("stage failed", "stage", st.name, "error", err)
			return Result{}, err
		}
		if progress != nil {
			progress(st.name, st.percent)
		}
	}

	log.Infow("render complete", "video", rc.VideoPath, "template", rc.Template.ID)
	return Result{VideoPath: rc.VideoPath, CaptionsPath: rc.CaptionsPath, WorkDir: rc.WorkDir}, nil
}

// Captions times every scene and writes only the caption track, in format,
// to output (or the work directory when output is empty).
func (o *Orchestrator) Captions(ctx context.Context, req Request, format subtitle.Format, output string) (string, error) {
	rc, err := o.newContext(req)
	if err != nil {
		return "", err
	}
	rc.captionsOnly = true
	if err := o.validate(ctx, rc); err != nil {
		return "", err
	}
	if err := o.prepare(ctx, rc); err != nil {
		return "", err
	}

	if strings.TrimSpace(output) == "" {
		output = filepath.Join(rc.WorkDir, "subtitle"+format.Extension())
	}
	writer, err := subtitle.NewWriter(format, o.settings.Font, o.settings.FontSize)
	if err != nil {
		return "", err
	}
	sub, _, err := o.timeScenes(ctx, rc)
	if err != nil {
		return "", err
	}
	if err := writer.Write(sub, output); err != nil {
		return "", fmt.Errorf("write captions: %w", err)
	}
	return output, nil
}

func (o *Orchestrator) newContext(req Request) (*RenderContext, error) {
	workDir := strings.TrimSpace(req.WorkDir)
	if workDir == "" {
		id := req.JobID
		if id == "" {
			id = uuid.NewString()
		}
		root := o.settings.WorkRoot
		if root == "" {
			root = os.TempDir()
		}
		workDir = filepath.Join(root, id)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	seed := o.settings.Seed
	if req.Seed != nil {
		seed = *req.Seed
	}

	rc := &RenderContext{
		ProjectID:    req.ProjectID,
		WorkDir:      workDir,
		TemplateID:   req.TemplateID,
		Language:     req.Language,
		Seed:         seed,
		SecondaryRef: strings.TrimSpace(req.SecondaryTrack),
		OutputPath:   strings.TrimSpace(req.OutputPath),
	}
	for _, s := range req.Scenes {
		rc.Scenes = append(rc.Scenes, SceneAssets{SceneRequest: s})
	}
	if req.Background != nil && !mix.IsDisabled(req.Background.Ref) {
		rc.Background = &BackgroundTrack{
			Ref:  strings.TrimSpace(req.Background.Ref),
			Gain: mix.ParseGain(req.Background.Gain, o.settings.DefaultGain),
		}
	}
	return rc, nil
}

// forEachScene runs fn for every index with at most SceneConcurrency calls
// in flight. The first error cancels the rest.
func (o *Orchestrator) forEachScene(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.settings.SceneConcurrency)
	for i := range n {
		g.Go(func() error { return fn(gctx, i) })
	}
	return g.Wait()
}
