// Package pdf wraps the PDF object model used to rewrite pages: reading page
// boxes, registering page resources, extending content streams, inserting
// pages and writing the result back to disk.
package pdf

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"seehuhn.de/go/geom/rect"

	"pdf-invert/internal/logger"
	"pdf-invert/internal/overlay"
	apptypes "pdf-invert/internal/types"
)

// maxTreeDepth bounds walks up the page tree.
const maxTreeDepth = 64

// Document is an open PDF held in memory together with its source file.
// It must be closed after use.
type Document struct {
	path   string
	source *os.File
	ctx    *model.Context

	// gstates caches one indirect ExtGState object per distinct state.
	gstates map[overlay.GState]types.IndirectRef
}

// Open reads the PDF at path. An empty password opens unencrypted files.
func Open(path, password string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apptypes.NewAppError(apptypes.ErrPathInvalid, "file does not exist", err)
		}
		return nil, apptypes.NewAppError(apptypes.ErrReadFailed, "cannot open file", err)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if password != "" {
		conf.UserPW = password
		conf.OwnerPW = password
	}

	ctx, err := readContext(f, conf)
	if err != nil {
		f.Close()
		return nil, apptypes.NewAppError(apptypes.ErrReadFailed, "cannot parse PDF", err)
	}

	logger.Debug("document opened",
		logger.String("file", filepath.Base(path)),
		logger.Int("pages", ctx.PageCount))

	return &Document{
		path:    path,
		source:  f,
		ctx:     ctx,
		gstates: make(map[overlay.GState]types.IndirectRef),
	}, nil
}

// readContext turns parser panics on damaged files into errors.
func readContext(f *os.File, conf *model.Configuration) (ctx *model.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			ctx, err = nil, fmt.Errorf("parser panic: %v", r)
		}
	}()

	ctx, err = api.ReadContext(f, conf)
	if err != nil {
		return nil, err
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, err
	}
	return ctx, nil
}

// Path returns the file the document was read from.
func (d *Document) Path() string {
	return d.path
}

// PageCount returns the current number of pages, including inserted ones.
func (d *Document) PageCount() int {
	return d.ctx.PageCount
}

// Close releases the source file. It is safe to call more than once.
func (d *Document) Close() error {
	if d.source == nil {
		return nil
	}
	err := d.source.Close()
	d.source = nil
	return err
}

// PageBox returns the page's inherited box of the given kind. A missing
// CropBox falls back to the MediaBox.
func (d *Document) PageBox(pageNr int, kind BoxKind) (rect.Rect, error) {
	_, _, inh, err := d.ctx.PageDict(pageNr, false)
	if err != nil {
		return rect.Rect{}, err
	}
	if inh == nil {
		return rect.Rect{}, fmt.Errorf("page %d: no inherited attributes", pageNr)
	}

	r := inh.MediaBox
	if kind == CropBox && inh.CropBox != nil {
		r = inh.CropBox
	}
	if r == nil {
		return rect.Rect{}, fmt.Errorf("page %d: no %s", pageNr, kind)
	}
	return boxOf(r), nil
}

// pageBoxes returns the raw MediaBox and optional CropBox of a page.
func (d *Document) pageBoxes(pageNr int) (media, crop *types.Rectangle, err error) {
	_, _, inh, err := d.ctx.PageDict(pageNr, false)
	if err != nil {
		return nil, nil, err
	}
	if inh == nil || inh.MediaBox == nil {
		return nil, nil, fmt.Errorf("page %d: no MediaBox", pageNr)
	}
	return inh.MediaBox, inh.CropBox, nil
}

// Save writes the document to path. The bytes go to a temporary file in the
// destination directory which is renamed over path only after a complete
// write, so a failed save never leaves a truncated output behind.
func (d *Document) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return apptypes.NewAppError(apptypes.ErrSaveFailed, "cannot create output directory", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return apptypes.NewAppError(apptypes.ErrSaveFailed, "cannot create temporary file", err)
	}
	tmpName := tmp.Name()

	if err := writeContext(d.ctx, tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apptypes.NewAppError(apptypes.ErrSaveFailed, "cannot write PDF", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apptypes.NewAppError(apptypes.ErrSaveFailed, "cannot flush PDF", err)
	}

	// The source may be the destination; release it before the rename.
	d.Close()

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return apptypes.NewAppError(apptypes.ErrSaveFailed, "cannot move PDF into place", err)
	}

	logger.Debug("document saved",
		logger.String("output", path),
		logger.Int("pages", d.ctx.PageCount))
	return nil
}

func writeContext(ctx *model.Context, f *os.File) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("writer panic: %v", r)
		}
	}()
	return api.WriteContext(ctx, f)
}
