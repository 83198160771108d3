package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/mgpai22/vidgen/internal/fetch"
	"github.com/mgpai22/vidgen/internal/mix"
)

// Manifest is the TOML description of one project render.
type Manifest struct {
	ProjectID      string          `toml:"project_id"`
	Template       string          `toml:"template"`
	Language       string          `toml:"language"`
	Seed           *int64          `toml:"seed"`
	SecondaryTrack string          `toml:"secondary_track"`
	Output         string          `toml:"output"`
	WorkDir        string          `toml:"work_dir"`
	Background     *BackgroundSpec `toml:"background"`
	Scenes         []SceneSpec     `toml:"scenes"`

	dir string
}

// BackgroundSpec names a background music track. Gain may be a number or
// a numeric string.
type BackgroundSpec struct {
	Ref  string `toml:"ref"`
	Gain any    `toml:"gain"`
}

type SceneSpec struct {
	ID    string `toml:"id"`
	Order int    `toml:"order"`
	Text  string `toml:"text"`
	Image string `toml:"image"`
	Audio string `toml:"audio"`
}

// LoadManifest decodes the manifest at path. Relative local references
// resolve against the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest path: %w", err)
	}
	m.dir = filepath.Dir(abs)
	return m, nil
}

func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// Request converts the manifest into a render request.
func (m *Manifest) Request() Request {
	req := Request{
		ProjectID:      strings.TrimSpace(m.ProjectID),
		TemplateID:     m.Template,
		Language:       m.Language,
		SecondaryTrack: m.resolve(m.SecondaryTrack),
		OutputPath:     m.resolve(m.Output),
		WorkDir:        m.resolve(m.WorkDir),
	}
	if m.Seed != nil {
		seed := uint64(*m.Seed)
		req.Seed = &seed
	}
	if m.Background != nil && !mix.IsDisabled(m.Background.Ref) {
		req.Background = &Background{Ref: m.resolve(m.Background.Ref), Gain: m.Background.Gain}
	}
	for _, s := range m.Scenes {
		req.Scenes = append(req.Scenes, SceneRequest{
			ID:       s.ID,
			Order:    s.Order,
			Text:     s.Text,
			ImageRef: m.resolve(s.Image),
			AudioRef: m.resolve(s.Audio),
		})
	}
	return req
}

func (m *Manifest) resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || m.dir == "" || fetch.IsURL(ref) || filepath.IsAbs(ref) || strings.HasPrefix(ref, "~") {
		return ref
	}
	return filepath.Join(m.dir, ref)
}
