// Package pdftest writes small, structurally valid PDF files for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// Page describes one page of a generated document.
type Page struct {
	MediaBox [4]float64
	// CropBox is written when non-nil.
	CropBox *[4]float64
	// Content is the page's content stream; empty means no /Contents.
	Content string
	// OmitMediaBox leaves the box to be inherited from the page tree root.
	OmitMediaBox bool
}

// Options controls document-level entries.
type Options struct {
	// RootMediaBox, when non-nil, is written on the /Pages node.
	RootMediaBox *[4]float64
}

// Build returns the bytes of a PDF with the given pages. Object layout:
// 1 catalog, 2 page tree, then a page object and (optionally) a content
// stream object for every page.
func Build(pages []Page, opts Options) []byte {
	var buf bytes.Buffer
	var offsets []int

	begin := func() int {
		offsets = append(offsets, buf.Len())
		n := len(offsets)
		fmt.Fprintf(&buf, "%d 0 obj\n", n)
		return n
	}
	end := func() {
		buf.WriteString("endobj\n")
	}

	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	begin()
	buf.WriteString("<</Type/Catalog/Pages 2 0 R>>\n")
	end()

	// Page objects are numbered from 3; each page with content takes two numbers.
	pageNums := make([]int, len(pages))
	next := 3
	for i, p := range pages {
		pageNums[i] = next
		next++
		if p.Content != "" {
			next++
		}
	}

	begin()
	buf.WriteString("<</Type/Pages/Kids[")
	for i, n := range pageNums {
		if i > 0 {
			buf.WriteString(" ")
		}
		fmt.Fprintf(&buf, "%d 0 R", n)
	}
	fmt.Fprintf(&buf, "]/Count %d", len(pages))
	if opts.RootMediaBox != nil {
		buf.WriteString("/MediaBox" + formatBox(*opts.RootMediaBox))
	}
	buf.WriteString(">>\n")
	end()

	for _, p := range pages {
		n := begin()
		buf.WriteString("<</Type/Page/Parent 2 0 R")
		if !p.OmitMediaBox {
			buf.WriteString("/MediaBox" + formatBox(p.MediaBox))
		}
		if p.CropBox != nil {
			buf.WriteString("/CropBox" + formatBox(*p.CropBox))
		}
		buf.WriteString("/Resources<<>>")
		if p.Content != "" {
			fmt.Fprintf(&buf, "/Contents %d 0 R", n+1)
		}
		buf.WriteString(">>\n")
		end()

		if p.Content != "" {
			begin()
			fmt.Fprintf(&buf, "<</Length %d>>\nstream\n%s\nendstream\n", len(p.Content), p.Content)
			end()
		}
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<</Size %d/Root 1 0 R>>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func formatBox(b [4]float64) string {
	return fmt.Sprintf("[%g %g %g %g]", b[0], b[1], b[2], b[3])
}

// Box returns a MediaBox-only page with a visible square in its content.
func Box(x0, y0, x1, y1 float64) Page {
	return Page{
		MediaBox: [4]float64{x0, y0, x1, y1},
		Content:  "0 0 1 rg 10 10 50 50 re f",
	}
}

// WriteFile writes a generated PDF into dir and returns its path.
func WriteFile(t testing.TB, dir, name string, pages ...Page) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, Build(pages, Options{}), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// WriteCorrupt writes a file with a .pdf name that is not a PDF.
func WriteCorrupt(t testing.TB, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("this is not a pdf document\n"), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
