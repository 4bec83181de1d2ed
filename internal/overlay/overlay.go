// Package overlay computes the rectangle that covers a page box and renders
// the small content streams that paint it.
package overlay

import (
	"fmt"
	"math"
	"strings"

	"seehuhn.de/go/geom/rect"
)

// BoundingBox is a page box in PDF user space.
type BoundingBox = rect.Rect

// MarginPolicy selects how far the overlay extends beyond the page box.
type MarginPolicy string

const (
	// MarginSymmetric stretches the box by 10x its largest span on every side.
	MarginSymmetric MarginPolicy = "symmetric"
	// MarginCentered grows width and height by 30%, keeping the box centred.
	MarginCentered MarginPolicy = "centered"
)

const (
	// DefaultMarginPolicy is used when no policy is configured.
	DefaultMarginPolicy = MarginSymmetric
	// DefaultMinMargin is the margin in points used when the policy yields less.
	DefaultMinMargin = 36.0

	symmetricFactor = 10.0
	centeredFactor  = 0.30
)

// ParseMarginPolicy validates a policy name.
func ParseMarginPolicy(name string) (MarginPolicy, error) {
	switch p := MarginPolicy(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return DefaultMarginPolicy, nil
	case MarginSymmetric, MarginCentered:
		return p, nil
	}
	return "", fmt.Errorf("unknown margin policy %q (want %q or %q)", name, MarginSymmetric, MarginCentered)
}

// Rect is an overlay rectangle given by its lower-left corner and size,
// matching the operands of the "re" operator.
type Rect struct {
	X, Y, W, H float64
}

// Contains reports whether r covers box entirely.
func (r Rect) Contains(box BoundingBox) bool {
	box = normalize(box)
	return r.X <= box.LLx && r.Y <= box.LLy &&
		r.X+r.W >= box.URx && r.Y+r.H >= box.URy
}

// ComputeRect grows box according to policy. The result always contains the
// box. Boxes with swapped corners are normalised first; any side whose margin
// would fall below minMargin gets minMargin instead.
func ComputeRect(box BoundingBox, policy MarginPolicy, minMargin float64) Rect {
	box = normalize(box)
	if minMargin < 0 {
		minMargin = 0
	}

	switch policy {
	case MarginCentered:
		mx := math.Max(box.Dx()*centeredFactor/2, minMargin)
		my := math.Max(box.Dy()*centeredFactor/2, minMargin)
		return Rect{
			X: box.LLx - mx,
			Y: box.LLy - my,
			W: box.Dx() + 2*mx,
			H: box.Dy() + 2*my,
		}
	default:
		lo := math.Min(math.Min(box.LLx, box.LLy), math.Min(box.URx, box.URy))
		hi := math.Max(math.Max(box.LLx, box.LLy), math.Max(box.URx, box.URy))
		add := math.Max((hi-lo)*symmetricFactor, minMargin)
		lo -= add
		hi += add
		return Rect{X: lo, Y: lo, W: hi - lo, H: hi - lo}
	}
}

func normalize(box BoundingBox) BoundingBox {
	if box.URx < box.LLx {
		box.LLx, box.URx = box.URx, box.LLx
	}
	if box.URy < box.LLy {
		box.LLy, box.URy = box.URy, box.LLy
	}
	return box
}

// ClampRatio limits an inversion ratio to [0, 1]. NaN maps to 0.
func ClampRatio(ratio float64) float64 {
	if math.IsNaN(ratio) || ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

// RenderStream returns the operators that fill r with a grey of the given
// ratio under the named ExtGState. Under an Exclusion or Difference blend a
// ratio of 0 leaves the page unchanged and 1 inverts it fully.
func RenderStream(r Rect, resourceName string, ratio float64) []byte {
	return render(r, resourceName, ClampRatio(ratio))
}

// RenderBackdrop returns the operators that paint r solid white under the
// named (non-blending) ExtGState.
func RenderBackdrop(r Rect, resourceName string) []byte {
	return render(r, resourceName, 1)
}

// RenderFill returns the bare fill for use inside a form XObject, whose
// graphics state is selected by the invoking stream.
func RenderFill(r Rect, ratio float64) []byte {
	c := formatColor(ClampRatio(ratio))
	return []byte(fmt.Sprintf("%s %s %s rg\n%s re\nf\n", c, c, c, formatRect(r)))
}

// RenderInvoke returns the operators that paint a form XObject under the
// named ExtGState.
func RenderInvoke(gsName, formName string) []byte {
	return []byte(fmt.Sprintf("q\n/%s gs\n/%s Do\nQ\n", gsName, formName))
}

func render(r Rect, resourceName string, gray float64) []byte {
	c := formatColor(gray)
	var sb strings.Builder
	sb.WriteString("q\n")
	fmt.Fprintf(&sb, "%s %s %s rg\n", c, c, c)
	fmt.Fprintf(&sb, "/%s gs\n", resourceName)
	fmt.Fprintf(&sb, "%s re\n", formatRect(r))
	sb.WriteString("f\nQ\n")
	return []byte(sb.String())
}

func formatColor(v float64) string {
	return fmt.Sprintf("%.3f", v)
}

func formatRect(r Rect) string {
	return fmt.Sprintf("%.2f %.2f %.2f %.2f", r.X, r.Y, r.W, r.H)
}
