package overlay

import (
	"fmt"
	"strings"
)

// Blend modes that turn a light fill into a colour inversion.
const (
	BlendExclusion  = "Exclusion"
	BlendDifference = "Difference"
)

// Mode selects how the overlay is placed on the page.
type Mode string

const (
	// ModeContent paints the rectangle directly from the page content stream.
	ModeContent Mode = "content"
	// ModeForm wraps the rectangle in a transparency-group form XObject.
	ModeForm Mode = "form"
)

// ParseMode validates an overlay mode name.
func ParseMode(name string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(name))); m {
	case "":
		return ModeContent, nil
	case ModeContent, ModeForm:
		return m, nil
	}
	return "", fmt.Errorf("unknown overlay mode %q (want %q or %q)", name, ModeContent, ModeForm)
}

// ParseBlendMode validates a blend mode name.
func ParseBlendMode(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "exclusion":
		return BlendExclusion, nil
	case "difference":
		return BlendDifference, nil
	}
	return "", fmt.Errorf("unsupported blend mode %q", name)
}

// GState describes an ExtGState dictionary. An empty BlendMode means the
// entry is omitted (Normal).
type GState struct {
	BlendMode   string
	FillAlpha   float64
	StrokeAlpha float64
}

// Group describes the transparency group attached to a form XObject.
type Group struct {
	ColorSpace string
	Isolated   bool
	Knockout   bool
}

// Templates holds the fixed resource descriptions used for every page.
// It is built once per run and passed by value.
type Templates struct {
	blend    GState
	nonBlend GState
	group    Group
}

// NewTemplates returns the templates for the given blend mode.
func NewTemplates(blendMode string) Templates {
	return Templates{
		blend:    GState{BlendMode: blendMode, FillAlpha: 1, StrokeAlpha: 1},
		nonBlend: GState{FillAlpha: 1, StrokeAlpha: 1},
		group:    Group{ColorSpace: "DeviceRGB"},
	}
}

// Blend returns the blending graphics state.
func (t Templates) Blend() GState { return t.blend }

// NonBlend returns the backdrop graphics state.
func (t Templates) NonBlend() GState { return t.nonBlend }

// Group returns the transparency group for form overlays.
func (t Templates) Group() Group { return t.group }
