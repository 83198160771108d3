package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/mgpai22/vidgen/internal/faults"
	"github.com/mgpai22/vidgen/internal/fetch"
	"github.com/mgpai22/vidgen/internal/subtitle"
	"github.com/mgpai22/vidgen/internal/timing"
	"github.com/mgpai22/vidgen/internal/transcode"
)

// fakeProber answers by file base name; unknown files read as zero.
type fakeProber struct {
	durations map[string]float64
}

func (p fakeProber) DurationOrZero(_ context.Context, path string) float64 {
	return p.durations[filepath.Base(path)]
}

func (p fakeProber) HasAudioStream(_ context.Context, path string) bool {
	return p.durations[filepath.Base(path)] > 0
}

type fixture struct {
	dir      string
	recorder *transcode.Recorder
	orch     *Orchestrator
}

func newFixture(t *testing.T, concurrency int) *fixture {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.png", "c.png", "d.png", "a.mp3", "b.mp3", "c.mp3", "d.mp3", "secondary.mp4", "music.mp3"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}

	prober := fakeProber{durations: map[string]float64{
		"a.mp3": 4, "b.mp3": 3, "c.mp3": 2, "d.mp3": 1,
	}}
	rec := &transcode.Recorder{}
	orch := New(
		rec,
		prober,
		timing.NewEngine(nil, prober, timing.Options{}, nil),
		fetch.NewHTTPFetcher(time.Second, nil),
		Settings{
			Transition:       1,
			MaxZoom:          1.08,
			ZoomFraction:     0.7,
			Seed:             7,
			SceneConcurrency: concurrency,
			WorkRoot:         filepath.Join(dir, "work"),
		},
		nil,
	)
	return &fixture{dir: dir, recorder: rec, orch: orch}
}

func (f *fixture) path(name string) string {
	return filepath.Join(f.dir, name)
}

func (f *fixture) request(templateID string) Request {
	return Request{
		ProjectID:      "demo",
		TemplateID:     templateID,
		Language:       "en",
		SecondaryTrack: f.path("secondary.mp4"),
		WorkDir:        filepath.Join(f.dir, "work", "job"),
		OutputPath:     filepath.Join(f.dir, "out", "video.mp4"),
		Scenes: []SceneRequest{
			{ID: "s2", Order: 2, Text: "TEST", ImageRef: f.path("b.png"), AudioRef: f.path("b.mp3")},
			{ID: "s1", Order: 1, Text: "HELLO WORLD", ImageRef: f.path("a.png"), AudioRef: f.path("a.mp3")},
		},
	}
}

func TestRenderSplitTemplate(t *testing.T) {
	f := newFixture(t, 2)
	req := f.request("t1")

	var stages []string
	res, err := f.orch.Render(context.Background(), req, func(stage string, _ int) {
		stages = append(stages, stage)
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	wantStages := []string{"validate", "prepare", "compose", "stitch", "template", "publish"}
	if !slices.Equal(stages, wantStages) {
		t.Errorf("stages = %v, want %v", stages, wantStages)
	}
	if res.VideoPath != req.OutputPath {
		t.Errorf("VideoPath = %q, want %q", res.VideoPath, req.OutputPath)
	}
	if _, err := os.Stat(req.OutputPath); err != nil {
		t.Errorf("published video missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(req.WorkDir, finalName)); !os.IsNotExist(err) {
		t.Errorf("final video should have been moved, stat err = %v", err)
	}

	for stage, want := range map[string]int{"scene": 2, "stitch": 1, "template": 1, "mix": 0} {
		if got := len(f.recorder.Stage(stage)); got != want {
			t.Errorf("%s commands = %d, want %d", stage, got, want)
		}
	}

	// scenes are rendered in order, not manifest position
	scenes := f.recorder.Stage("scene")
	slices.SortFunc(scenes, func(a, b transcode.Command) int { return strings.Compare(a.Output, b.Output) })
	if scenes[0].Inputs[0].Path != f.path("a.png") {
		t.Errorf("first scene image = %q, want a.png", scenes[0].Inputs[0].Path)
	}
}

func TestRenderCaptionTimingAcrossScenes(t *testing.T) {
	f := newFixture(t, 2)
	res, err := f.orch.Render(context.Background(), f.request("t0"), nil)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	doc, err := subtitle.Open(res.CaptionsPath)
	if err != nil {
		t.Fatalf("Open(%s) error = %v", res.CaptionsPath, err)
	}

	want := []struct {
		word       string
		start, end time.Duration
	}{
		{"HELLO", 0, 2 * time.Second},
		{"WORLD", 2 * time.Second, 4 * time.Second},
		{"TEST", 4 * time.Second, 7 * time.Second},
	}
	if len(doc.Events) != len(want) {
		t.Fatalf("got %d events, want %d", len(doc.Events), len(want))
	}
	for i, w := range want {
		ev := doc.Events[i]
		if ev.Highlighted() != w.word || ev.Start != w.start || ev.End != w.end {
			t.Errorf("event %d = %q [%v, %v), want %q [%v, %v)", i, ev.Highlighted(), ev.Start, ev.End, w.word, w.start, w.end)
		}
	}
}

func TestRenderSoloTemplateCopiesStitchedTrack(t *testing.T) {
	f := newFixture(t, 1)
	req := f.request("t0")
	req.SecondaryTrack = ""

	res, err := f.orch.Render(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if n := len(f.recorder.Stage("template")); n != 0 {
		t.Errorf("solo template ran %d commands, want 0", n)
	}

	stitched, err := os.ReadFile(filepath.Join(req.WorkDir, "ai_with_subs.mp4"))
	if err != nil {
		t.Fatalf("read stitched track: %v", err)
	}
	published, err := os.ReadFile(res.VideoPath)
	if err != nil {
		t.Fatalf("read published video: %v", err)
	}
	if string(stitched) != string(published) {
		t.Error("published video differs from stitched track")
	}
}

func TestRenderRejectsBeforeTranscoding(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fixture, r *Request)
		marker error
	}{
		{
			name:   "unknown template",
			mutate: func(_ *fixture, r *Request) { r.TemplateID = "t8" },
			marker: faults.ErrConfiguration,
		},
		{
			name:   "missing secondary",
			mutate: func(_ *fixture, r *Request) { r.SecondaryTrack = "" },
			marker: faults.ErrConfiguration,
		},
		{
			name:   "no scenes",
			mutate: func(_ *fixture, r *Request) { r.Scenes = nil },
			marker: faults.ErrConfiguration,
		},
		{
			name:   "blank narration",
			mutate: func(_ *fixture, r *Request) { r.Scenes[0].Text = "  " },
			marker: faults.ErrMissingAsset,
		},
		{
			name:   "missing image reference",
			mutate: func(_ *fixture, r *Request) { r.Scenes[1].ImageRef = "" },
			marker: faults.ErrMissingAsset,
		},
		{
			name:   "audio file absent",
			mutate: func(f *fixture, r *Request) { r.Scenes[0].AudioRef = f.path("nope.mp3") },
			marker: faults.ErrMissingAsset,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 2)
			req := f.request("t1")
			tt.mutate(f, &req)

			_, err := f.orch.Render(context.Background(), req, nil)
			if !errors.Is(err, tt.marker) {
				t.Fatalf("Render() error = %v, want %v", err, tt.marker)
			}
			if n := len(f.recorder.Commands()); n != 0 {
				t.Errorf("ran %d commands before failing, want 0", n)
			}
			if _, err := os.Stat(req.OutputPath); !os.IsNotExist(err) {
				t.Errorf("output should not exist, stat err = %v", err)
			}
		})
	}
}

func TestRenderMissingAssetNamesScene(t *testing.T) {
	f := newFixture(t, 1)
	req := f.request("t1")
	req.Scenes[0].AudioRef = ""

	_, err := f.orch.Render(context.Background(), req, nil)
	if err == nil || !strings.Contains(err.Error(), "s2") {
		t.Fatalf("error = %v, want it to name scene s2", err)
	}
}

func TestRenderFailureDoesNotPublish(t *testing.T) {
	f := newFixture(t, 2)
	f.recorder.Fail = func(cmd transcode.Command) error {
		if cmd.Stage == "template" {
			return errors.New("boom")
		}
		return nil
	}
	req := f.request("t7")

	_, err := f.orch.Render(context.Background(), req, nil)
	if !errors.Is(err, faults.ErrExternalProcess) {
		t.Fatalf("Render() error = %v, want external process error", err)
	}
	if _, err := os.Stat(req.OutputPath); !os.IsNotExist(err) {
		t.Errorf("output should not exist, stat err = %v", err)
	}
}

func TestRenderParallelMatchesSequential(t *testing.T) {
	run := func(concurrency int) []string {
		f := newFixture(t, concurrency)
		req := f.request("t3")
		req.Scenes = append(req.Scenes,
			SceneRequest{ID: "s3", Order: 3, Text: "one two three", ImageRef: f.path("c.png"), AudioRef: f.path("c.mp3")},
			SceneRequest{ID: "s4", Order: 4, Text: "four", ImageRef: f.path("d.png"), AudioRef: f.path("d.mp3")},
		)
		if _, err := f.orch.Render(context.Background(), req, nil); err != nil {
			t.Fatalf("Render(concurrency=%d) error = %v", concurrency, err)
		}
		var lines []string
		for _, c := range f.recorder.Commands() {
			lines = append(lines, strings.ReplaceAll(c.String(), f.dir, "$DIR"))
		}
		slices.Sort(lines)
		return lines
	}

	sequential := run(1)
	parallel := run(4)
	if !slices.Equal(sequential, parallel) {
		t.Errorf("parallel commands differ from sequential\nseq: %v\npar: %v", sequential, parallel)
	}
}

func TestRenderCaptionsTemplate(t *testing.T) {
	f := newFixture(t, 2)
	req := f.request("t9")
	req.Scenes[0].ImageRef = ""
	req.Scenes[1].ImageRef = ""

	res, err := f.orch.Render(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	for stage, want := range map[string]int{"scene": 0, "stitch": 0, "narration": 1, "captions": 1} {
		if got := len(f.recorder.Stage(stage)); got != want {
			t.Errorf("%s commands = %d, want %d", stage, got, want)
		}
	}
	doc, err := subtitle.Open(res.CaptionsPath)
	if err != nil {
		t.Fatalf("Open captions: %v", err)
	}
	if len(doc.Events) != 3 {
		t.Errorf("got %d caption events, want 3", len(doc.Events))
	}
}

func TestRenderMixesBackground(t *testing.T) {
	f := newFixture(t, 2)
	req := f.request("t0")
	req.Background = &Background{Ref: f.path("music.mp3"), Gain: "0.3"}

	var stages []string
	if _, err := f.orch.Render(context.Background(), req, func(stage string, _ int) {
		stages = append(stages, stage)
	}); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !slices.Contains(stages, "mix") {
		t.Errorf("stages = %v, want mix", stages)
	}
	mixes := f.recorder.Stage("mix")
	if len(mixes) != 1 {
		t.Fatalf("mix commands = %d, want 1", len(mixes))
	}
	if !strings.Contains(mixes[0].FilterGraph, "volume=0.3") {
		t.Errorf("mix graph %q does not carry gain 0.3", mixes[0].FilterGraph)
	}
}

func TestRenderDisabledBackgroundSkipsMix(t *testing.T) {
	f := newFixture(t, 2)
	req := f.request("t0")
	req.Background = &Background{Ref: "none", Gain: 0.5}

	if _, err := f.orch.Render(context.Background(), req, nil); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if n := len(f.recorder.Stage("mix")); n != 0 {
		t.Errorf("mix commands = %d, want 0", n)
	}
}

func TestCaptionsOnly(t *testing.T) {
	f := newFixture(t, 2)
	req := f.request("t1")
	req.SecondaryTrack = ""
	out := filepath.Join(f.dir, "captions.srt")

	got, err := f.orch.Captions(context.Background(), req, subtitle.FormatSRT, out)
	if err != nil {
		t.Fatalf("Captions() error = %v", err)
	}
	if got != out {
		t.Errorf("Captions() = %q, want %q", got, out)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read captions: %v", err)
	}
	if !strings.Contains(string(data), "00:00:04,000 --> 00:00:07,000") {
		t.Errorf("srt missing third cue:\n%s", data)
	}
	if n := len(f.recorder.Commands()); n != 0 {
		t.Errorf("captions ran %d commands, want 0", n)
	}
}

func TestUnreadableNarrationDurationAgreesAcrossPaths(t *testing.T) {
	f := newFixture(t, 1)
	if err := os.WriteFile(f.path("silent.mp3"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	req := f.request("t1")
	// s1 plays first; its narration has no readable duration
	req.Scenes[1].AudioRef = f.path("silent.mp3")

	res, err := f.orch.Render(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	var first string
	for _, cmd := range f.recorder.Stage("scene") {
		if strings.HasSuffix(cmd.Output, "scene_000.mp4") {
			first = cmd.Option("t")
		}
	}
	if first != "5.000" {
		t.Errorf("first scene -t = %q, want default scene length 5.000", first)
	}
	ass, err := os.ReadFile(res.CaptionsPath)
	if err != nil {
		t.Fatalf("read captions: %v", err)
	}
	if !strings.Contains(string(ass), "Dialogue: 0,0:00:05.00,") {
		t.Errorf("render captions should start scene 2 at 5s:\n%s", ass)
	}

	out := filepath.Join(f.dir, "captions.srt")
	if _, err := f.orch.Captions(context.Background(), req, subtitle.FormatSRT, out); err != nil {
		t.Fatalf("Captions() error = %v", err)
	}
	srt, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read srt: %v", err)
	}
	if !strings.Contains(string(srt), "00:00:05,000 --> 00:00:08,000") {
		t.Errorf("captions-only track should start scene 2 at 5s:\n%s", srt)
	}
}

func TestStageRequiresFields(t *testing.T) {
	f := newFixture(t, 1)
	rc := &RenderContext{WorkDir: t.TempDir()}

	if err := f.orch.stitch(context.Background(), rc); !errors.Is(err, faults.ErrConfiguration) {
		t.Errorf("stitch on empty context error = %v, want configuration error", err)
	}
	if err := f.orch.publish(context.Background(), rc); !errors.Is(err, faults.ErrConfiguration) {
		t.Errorf("publish on empty context error = %v, want configuration error", err)
	}
}
