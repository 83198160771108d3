// Package template lays the stitched narration track out against a
// secondary video under one of a fixed set of templates.
package template

import (
	"strings"

	"github.com/mgpai22/vidgen/internal/faults"
)

type Layout int

const (
	// LayoutSolo passes the stitched track through unchanged.
	LayoutSolo Layout = iota
	// LayoutSplit stacks primary and secondary vertically.
	LayoutSplit
	// LayoutPiP overlays the primary on a full-frame secondary.
	LayoutPiP
	// LayoutCaptions burns captions onto the secondary track and uses the
	// narration as the only audio. No scene clips are rendered.
	LayoutCaptions
)

func (l Layout) String() string {
	switch l {
	case LayoutSolo:
		return "solo"
	case LayoutSplit:
		return "split"
	case LayoutPiP:
		return "pip"
	case LayoutCaptions:
		return "captions"
	default:
		return "unknown"
	}
}

// Descriptor is one entry of the template table.
type Descriptor struct {
	ID     string
	Layout Layout
	// PrimaryTop places the stitched track in the upper region of a split.
	PrimaryTop bool
	// Ratio is the upper region's share of the frame height.
	Ratio       float64
	Description string
}

// NeedsSecondary reports whether a secondary track must be supplied.
func (d Descriptor) NeedsSecondary() bool {
	return d.Layout != LayoutSolo
}

// RendersScenes is false for the captions-only template, which skips clip
// synthesis and stitching.
func (d Descriptor) RendersScenes() bool {
	return d.Layout != LayoutCaptions
}

var descriptors = []Descriptor{
	{ID: "t0", Layout: LayoutSolo, Description: "narration video only"},
	{ID: "t1", Layout: LayoutSplit, PrimaryTop: true, Ratio: 0.5, Description: "50/50, narration top"},
	{ID: "t2", Layout: LayoutSplit, PrimaryTop: false, Ratio: 0.5, Description: "50/50, narration bottom"},
	{ID: "t3", Layout: LayoutSplit, PrimaryTop: true, Ratio: 0.6, Description: "60/40, narration top"},
	{ID: "t4", Layout: LayoutSplit, PrimaryTop: false, Ratio: 0.6, Description: "60/40, narration bottom"},
	{ID: "t5", Layout: LayoutSplit, PrimaryTop: true, Ratio: 0.7, Description: "70/30, narration top"},
	{ID: "t6", Layout: LayoutSplit, PrimaryTop: false, Ratio: 0.7, Description: "70/30, narration bottom"},
	{ID: "t7", Layout: LayoutPiP, Description: "secondary background, narration picture-in-picture"},
	{ID: "t9", Layout: LayoutCaptions, Description: "secondary track with narration audio and captions"},
}

// Lookup resolves a template id. Anything outside the table, t8 included,
// is a configuration error.
func Lookup(id string) (Descriptor, error) {
	key := strings.ToLower(strings.TrimSpace(id))
	for _, d := range descriptors {
		if d.ID == key {
			return d, nil
		}
	}
	return Descriptor{}, faults.Wrap(faults.ErrConfiguration, "validate", "template", "unknown template id "+quote(id), nil)
}

// All returns the template table in id order.
func All() []Descriptor {
	return append([]Descriptor(nil), descriptors...)
}

func quote(s string) string {
	return `"` + s + `"`
}
