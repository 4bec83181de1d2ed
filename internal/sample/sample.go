// Package sample writes a small coloured PDF for trying the inverter out.
package sample

import (
	"fmt"
	"os"
	"path/filepath"

	gopdf "github.com/VantageDataChat/GoPDF2"

	"pdf-invert/internal/logger"
	"pdf-invert/internal/types"
)

// Options controls the generated document.
type Options struct {
	Pages  int
	Width  float64 // points
	Height float64 // points
}

// DefaultOptions is a three-page A4 document.
func DefaultOptions() Options {
	return Options{Pages: 3, Width: 595.28, Height: 841.89}
}

type rgb struct{ r, g, b uint8 }

// 每页依次使用的色块颜色
var palette = []rgb{
	{220, 50, 47},
	{38, 139, 210},
	{133, 153, 0},
	{181, 137, 0},
	{108, 113, 196},
}

// Generate writes the sample document to path.
func Generate(path string, opts Options) error {
	if opts.Pages <= 0 {
		return types.NewAppErrorWithDetails(types.ErrInvalidInput, "sample needs at least one page",
			fmt.Sprintf("pages=%d", opts.Pages), nil)
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return types.NewAppErrorWithDetails(types.ErrInvalidInput, "sample page size must be positive",
			fmt.Sprintf("%gx%g", opts.Width, opts.Height), nil)
	}

	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: gopdf.Rect{W: opts.Width, H: opts.Height}})

	for i := 0; i < opts.Pages; i++ {
		pdf.AddPage()
		drawPage(&pdf, opts, i)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return types.NewAppError(types.ErrSaveFailed, "cannot create sample directory", err)
	}
	if err := pdf.WritePdf(path); err != nil {
		return types.NewAppError(types.ErrSaveFailed, "cannot write sample", err)
	}

	logger.Info("sample written", logger.String("path", path), logger.Int("pages", opts.Pages))
	return nil
}

// drawPage paints a light background, a band of colour blocks and a grid of
// dark rules, so both light and dark areas change visibly when inverted.
func drawPage(pdf *gopdf.GoPdf, opts Options, page int) {
	w, h := opts.Width, opts.Height
	margin := w / 12

	pdf.SetFillColor(250, 246, 227)
	pdf.RectFromUpperLeftWithStyle(0, 0, w, h, "F")

	block := (w - 2*margin) / float64(len(palette))
	for i := range palette {
		c := palette[(i+page)%len(palette)]
		pdf.SetFillColor(c.r, c.g, c.b)
		pdf.RectFromUpperLeftWithStyle(margin+float64(i)*block, margin, block, h/6, "F")
	}

	pdf.SetStrokeColor(30, 30, 30)
	pdf.SetLineWidth(1)
	top := margin + h/6 + margin/2
	for y := top; y < h-margin; y += h / 24 {
		pdf.Line(margin, y, w-margin, y)
	}
}
