package pdf

import (
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"seehuhn.de/go/geom/rect"
)

// BoxKind names the page box the overlay is sized from.
type BoxKind string

const (
	MediaBox BoxKind = "MediaBox"
	CropBox  BoxKind = "CropBox"
)

// ParseBoxKind accepts "media"/"mediabox" and "crop"/"cropbox" in any case.
func ParseBoxKind(name string) (BoxKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "media", "mediabox":
		return MediaBox, nil
	case "crop", "cropbox":
		return CropBox, nil
	}
	return "", fmt.Errorf("unknown page box %q (want media or crop)", name)
}

// PageBox is the box read for one page. Err is set when the page's box
// could not be read; the other pages are still usable.
type PageBox struct {
	Box rect.Rect
	Err error
}

// BoxReader reads the bounding box of every page in a file.
type BoxReader interface {
	ReadBoxes(path string, kind BoxKind) ([]PageBox, error)
}

// FileBoxReader reads boxes with a lightweight parser independent of the one
// used for rewriting, so files the writer accepts but whose page
// dictionaries are damaged are reported page by page.
type FileBoxReader struct {
	Password string
}

// ReadBoxes implements BoxReader.
func (fr FileBoxReader) ReadBoxes(path string, kind BoxKind) (boxes []PageBox, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	// 库在损坏的文件上会 panic
	defer func() {
		if r := recover(); r != nil {
			boxes, err = nil, fmt.Errorf("box reader panic: %v", r)
		}
	}()

	var r *pdf.Reader
	if fr.Password == "" {
		r, err = pdf.NewReader(f, info.Size())
	} else {
		tried := false
		r, err = pdf.NewReaderEncrypted(f, info.Size(), func() string {
			if tried {
				return ""
			}
			tried = true
			return fr.Password
		})
	}
	if err != nil {
		return nil, err
	}

	n := r.NumPage()
	boxes = make([]PageBox, n)
	for i := 1; i <= n; i++ {
		boxes[i-1] = readPageBox(r.Page(i).V, kind, i)
	}
	return boxes, nil
}

func readPageBox(page pdf.Value, kind BoxKind, pageNr int) (pb PageBox) {
	defer func() {
		if r := recover(); r != nil {
			pb = PageBox{Err: fmt.Errorf("page %d: %v", pageNr, r)}
		}
	}()

	if page.IsNull() {
		return PageBox{Err: fmt.Errorf("page %d: missing page dictionary", pageNr)}
	}

	v := inherited(page, string(kind))
	if v.IsNull() && kind == CropBox {
		v = inherited(page, string(MediaBox))
	}
	if v.IsNull() {
		return PageBox{Err: fmt.Errorf("page %d: no %s", pageNr, kind)}
	}

	box, err := boxFromValue(v)
	if err != nil {
		return PageBox{Err: fmt.Errorf("page %d: %s: %w", pageNr, kind, err)}
	}
	return PageBox{Box: box}
}

// inherited looks key up on the page and then on its ancestors.
func inherited(node pdf.Value, key string) pdf.Value {
	for depth := 0; depth <= maxTreeDepth && !node.IsNull(); depth++ {
		if v := node.Key(key); !v.IsNull() {
			return v
		}
		node = node.Key("Parent")
	}
	return pdf.Value{}
}

func boxFromValue(v pdf.Value) (rect.Rect, error) {
	if v.Kind() != pdf.Array {
		return rect.Rect{}, fmt.Errorf("not an array")
	}
	if v.Len() != 4 {
		return rect.Rect{}, fmt.Errorf("array has %d entries, want 4", v.Len())
	}

	var c [4]float64
	for i := range c {
		e := v.Index(i)
		switch e.Kind() {
		case pdf.Integer, pdf.Real:
			c[i] = e.Float64()
		default:
			return rect.Rect{}, fmt.Errorf("entry %d is not a number", i)
		}
	}
	return rect.Rect{LLx: c[0], LLy: c[1], URx: c[2], URy: c[3]}, nil
}
