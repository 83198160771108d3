package pipeline

import (
	"strings"

	"github.com/mgpai22/vidgen/internal/faults"
	"github.com/mgpai22/vidgen/internal/scene"
	"github.com/mgpai22/vidgen/internal/template"
	"github.com/mgpai22/vidgen/internal/timeline"
)

// Request is one render call. Seed overrides the configured seed when set.
type Request struct {
	JobID          string
	ProjectID      string
	TemplateID     string
	Language       string
	Seed           *uint64
	SecondaryTrack string
	Background     *Background
	Scenes         []SceneRequest
	OutputPath     string
	WorkDir        string
}

type Background struct {
	Ref  string
	Gain any
}

type SceneRequest struct {
	ID       string
	Order    int
	Text     string
	ImageRef string
	AudioRef string
}

// SceneAssets is a scene together with its resolved local files.
type SceneAssets struct {
	SceneRequest
	ImagePath string
	AudioPath string
}

type BackgroundTrack struct {
	Ref  string
	Path string
	Gain float64
}

// RenderContext is the working state of a single render. Stages fill it in
// order; each stage checks that what it reads has been set.
type RenderContext struct {
	ProjectID  string
	WorkDir    string
	TemplateID string
	Template   template.Descriptor
	Language   string
	Seed       uint64
	Scenes     []SceneAssets

	SecondaryRef string
	Secondary    string
	Background   *BackgroundTrack
	OutputPath   string

	Clips        []scene.Clip
	Stitched     timeline.Result
	Narration    string
	CaptionsPath string
	FinalPath    string
	VideoPath    string

	validated    bool
	prepared     bool
	captionsOnly bool
}

// Result locates the published artifacts of a render.
type Result struct {
	VideoPath    string
	CaptionsPath string
	WorkDir      string
}

type requirement struct {
	name    string
	present bool
}

func has(name string, present bool) requirement {
	return requirement{name: name, present: present}
}

func nonEmpty(s string) bool {
	return strings.TrimSpace(s) != ""
}

func require(stage string, reqs ...requirement) error {
	for _, r := range reqs {
		if !r.present {
			return faults.Wrap(faults.ErrConfiguration, stage, "", "render context missing "+r.name, nil)
		}
	}
	return nil
}

func (rc *RenderContext) audioPaths() []string {
	paths := make([]string, len(rc.Scenes))
	for i, s := range rc.Scenes {
		paths[i] = s.AudioPath
	}
	return paths
}

func (rc *RenderContext) scenesResolved() bool {
	for _, s := range rc.Scenes {
		if s.AudioPath == "" {
			return false
		}
		if rc.Template.RendersScenes() && !rc.captionsOnly && s.ImagePath == "" {
			return false
		}
	}
	return len(rc.Scenes) > 0
}
