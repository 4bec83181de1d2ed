// Command check_pages compares an original PDF with its inverted copy.
// It checks that every original page is still present with an unchanged
// MediaBox, and that any extra pages are evenly interleaved scribble pages.
//
// Usage:
//
//	go run ./cmd/check_pages <original.pdf> <inverted.pdf>
package main

import (
	"fmt"
	"io"
	"os"

	"pdf-invert/internal/pdf"
)

// pageCheck is the outcome of comparing two documents.
type pageCheck struct {
	OriginalPages int
	InvertedPages int
	Density       int // scribble pages after each original page, -1 if uneven
	Mismatched    []int
}

func (c *pageCheck) ok() bool {
	return c.Density >= 0 && len(c.Mismatched) == 0
}

func checkPages(originalPath, invertedPath string) (*pageCheck, error) {
	password := os.Getenv("PDF_INVERT_PASSWORD")

	orig, err := pdf.Open(originalPath, password)
	if err != nil {
		return nil, err
	}
	defer orig.Close()

	inv, err := pdf.Open(invertedPath, password)
	if err != nil {
		return nil, err
	}
	defer inv.Close()

	c := &pageCheck{OriginalPages: orig.PageCount(), InvertedPages: inv.PageCount(), Density: -1}
	if c.OriginalPages == 0 {
		if c.InvertedPages == 0 {
			c.Density = 0
		}
		return c, nil
	}
	extra := c.InvertedPages - c.OriginalPages
	if extra < 0 || extra%c.OriginalPages != 0 {
		return c, nil
	}
	c.Density = extra / c.OriginalPages

	for i := 1; i <= c.OriginalPages; i++ {
		want, err := orig.PageBox(i, pdf.MediaBox)
		if err != nil {
			return nil, fmt.Errorf("original page %d: %w", i, err)
		}
		got, err := inv.PageBox(1+(i-1)*(1+c.Density), pdf.MediaBox)
		if err != nil || got != want {
			c.Mismatched = append(c.Mismatched, i)
		}
	}
	return c, nil
}

func printCheck(w io.Writer, c *pageCheck) {
	fmt.Fprintf(w, "Pages: %d -> %d\n", c.OriginalPages, c.InvertedPages)
	if c.Density < 0 {
		fmt.Fprintln(w, "❌ page count is not a whole multiple of the original")
		return
	}
	if c.Density > 0 {
		fmt.Fprintf(w, "Scribble pages per page: %d\n", c.Density)
	}
	for _, p := range c.Mismatched {
		fmt.Fprintf(w, "❌ page %d: MediaBox changed\n", p)
	}
	if c.ok() {
		fmt.Fprintln(w, "✓ all pages preserved")
	}
}

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: check_pages <original.pdf> <inverted.pdf>")
		fmt.Println()
		fmt.Println("This tool compares an original PDF with its inverted copy.")
		fmt.Println("It checks:")
		fmt.Println("  - Page counts (extra pages must be evenly interleaved)")
		fmt.Println("  - MediaBox of every original page")
		os.Exit(1)
	}

	c, err := checkPages(os.Args[1], os.Args[2])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	printCheck(os.Stdout, c)

	if !c.ok() {
		os.Exit(2)
	}
}
