// Package invert applies the colour-inversion overlay to every page of a
// document and inserts scribble pages.
package invert

import (
	"fmt"
	"path/filepath"

	"pdf-invert/internal/logger"
	"pdf-invert/internal/overlay"
	"pdf-invert/internal/pdf"
	"pdf-invert/internal/types"
)

// Options configures a Processor.
type Options struct {
	Ratio     float64
	Policy    overlay.MarginPolicy
	MinMargin float64
	Templates overlay.Templates
	Mode      overlay.Mode
	Box       pdf.BoxKind

	// ScribbleDensity blank pages are inserted after every original page.
	ScribbleDensity int
	// ScribbleOverlay also inverts the inserted pages.
	ScribbleOverlay bool

	Password string
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Ratio:     0.9,
		Policy:    overlay.DefaultMarginPolicy,
		MinMargin: overlay.DefaultMinMargin,
		Templates: overlay.NewTemplates(overlay.BlendExclusion),
		Mode:      overlay.ModeContent,
		Box:       pdf.MediaBox,
	}
}

// Processor inverts one file at a time.
type Processor struct {
	opts  Options
	boxes pdf.BoxReader
}

// NewProcessor creates a Processor. A nil BoxReader uses pdf.FileBoxReader.
func NewProcessor(opts Options, boxes pdf.BoxReader) *Processor {
	opts.Ratio = overlay.ClampRatio(opts.Ratio)
	if opts.ScribbleDensity < 0 {
		opts.ScribbleDensity = 0
	}
	if boxes == nil {
		boxes = pdf.FileBoxReader{Password: opts.Password}
	}
	return &Processor{opts: opts, boxes: boxes}
}

// Options returns the effective options.
func (p *Processor) Options() Options {
	return p.opts
}

// Process reads input, overlays every page and writes the result to output,
// which may be the same path. Pages whose box cannot be read are left
// untouched and listed in the report; if no page could be overlaid the file
// fails with ErrBoxUnreadable and nothing is written.
func (p *Processor) Process(input, output string) (*types.PageReport, error) {
	name := filepath.Base(input)

	boxes, err := p.boxes.ReadBoxes(input, p.opts.Box)
	if err != nil {
		logger.Debug("box reader failed, using document boxes",
			logger.String("file", name),
			logger.Err(err))
		boxes = nil
	}

	doc, err := pdf.Open(input, p.opts.Password)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	report := &types.PageReport{PagesIn: doc.PageCount()}
	if boxes != nil && len(boxes) != report.PagesIn {
		logger.Debug("box reader page count differs, using document boxes",
			logger.String("file", name),
			logger.Int("reader_pages", len(boxes)),
			logger.Int("document_pages", report.PagesIn))
		boxes = nil
	}

	cur := 1
	for i := 1; i <= report.PagesIn; i++ {
		box, err := p.pageBox(doc, boxes, i, cur)
		if err != nil {
			report.SkippedPages = append(report.SkippedPages, i)
			logger.Warn("page skipped",
				logger.String("file", name),
				logger.Err(types.NewPageError(types.ErrBoxUnreadable, i, "cannot read page box", err)))
		} else {
			if err := p.overlayPage(doc, cur, box); err != nil {
				return report, types.NewPageError(types.ErrReadFailed, i, "cannot add overlay", err)
			}
			report.Overlaid++
		}

		// 跳过的页面仍按文档自身的页面框插入草稿页，保持交替顺序
		if err != nil && p.opts.ScribbleDensity > 0 {
			box, err = doc.PageBox(cur, p.opts.Box)
			if err != nil {
				logger.Warn("no scribble pages after page",
					logger.String("file", name),
					logger.Int("page", i),
					logger.Err(err))
			}
		}
		inserted := 0
		if err == nil {
			if inserted, err = p.insertScribbles(doc, cur, box); err != nil {
				return report, types.NewPageError(types.ErrReadFailed, i, "cannot insert scribble page", err)
			}
		}
		cur += 1 + inserted
	}

	if report.PagesIn > 0 && report.Overlaid == 0 {
		return report, types.NewAppErrorWithDetails(types.ErrBoxUnreadable,
			"no page box could be read", fmt.Sprintf("%d pages", report.PagesIn), nil)
	}

	if err := doc.Save(output); err != nil {
		return report, err
	}
	report.PagesOut = doc.PageCount()

	logger.Info("file inverted",
		logger.String("input", input),
		logger.String("output", output),
		logger.Int("pages_in", report.PagesIn),
		logger.Int("pages_out", report.PagesOut),
		logger.Int("skipped", len(report.SkippedPages)))
	return report, nil
}

// pageBox picks the box of original page orig, now at position cur.
func (p *Processor) pageBox(doc *pdf.Document, boxes []pdf.PageBox, orig, cur int) (overlay.BoundingBox, error) {
	if boxes != nil {
		b := boxes[orig-1]
		return b.Box, b.Err
	}
	return doc.PageBox(cur, p.opts.Box)
}

// overlayPage wraps the page's content in q/Q between a white backdrop and
// the blended overlay.
func (p *Processor) overlayPage(doc *pdf.Document, pageNr int, box overlay.BoundingBox) error {
	r := overlay.ComputeRect(box, p.opts.Policy, p.opts.MinMargin)
	tpl := p.opts.Templates

	blendName, err := doc.AddExtGState(pageNr, tpl.Blend())
	if err != nil {
		return err
	}
	plainName, err := doc.AddExtGState(pageNr, tpl.NonBlend())
	if err != nil {
		return err
	}

	var front []byte
	switch p.opts.Mode {
	case overlay.ModeForm:
		formName, err := doc.AddXObject(pageNr, r, tpl.Group(), overlay.RenderFill(r, p.opts.Ratio))
		if err != nil {
			return err
		}
		front = overlay.RenderInvoke(blendName, formName)
	default:
		front = overlay.RenderStream(r, blendName, p.opts.Ratio)
	}

	back := append(overlay.RenderBackdrop(r, plainName), "q\n"...)
	if err := doc.PrependContent(pageNr, back); err != nil {
		return err
	}
	return doc.AppendContent(pageNr, append([]byte("Q\n"), front...))
}

// insertScribbles adds the configured blank pages after pageNr and returns
// how many were inserted.
func (p *Processor) insertScribbles(doc *pdf.Document, pageNr int, box overlay.BoundingBox) (int, error) {
	for k := 0; k < p.opts.ScribbleDensity; k++ {
		blank, err := doc.InsertBlankPageAfter(pageNr + k)
		if err != nil {
			return k, err
		}
		if p.opts.ScribbleOverlay {
			if err := p.overlayPage(doc, blank, box); err != nil {
				return k + 1, err
			}
		}
	}
	return p.opts.ScribbleDensity, nil
}
