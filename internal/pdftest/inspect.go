package pdftest

import (
	"os"
	"sort"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// PageInfo is what tests look at on a written page.
type PageInfo struct {
	MediaBox [4]float64
	CropBox  *[4]float64
	// Content is the page's content streams joined in order.
	Content string
	// BlendModes maps ExtGState resource names to their /BM (empty for none).
	BlendModes map[string]string
	// XObjects lists the page's /XObject resource names, sorted.
	XObjects []string
}

// Inspect reads a PDF back with pdfcpu and returns one entry per page.
func Inspect(t testing.TB, path string) []PageInfo {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadContext(f, conf)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		t.Fatalf("page count %s: %v", path, err)
	}

	pages := make([]PageInfo, 0, ctx.PageCount)
	for i := 1; i <= ctx.PageCount; i++ {
		d, _, inh, err := ctx.PageDict(i, false)
		if err != nil {
			t.Fatalf("page %d: %v", i, err)
		}

		var info PageInfo
		if inh != nil && inh.MediaBox != nil {
			info.MediaBox = boxArray(inh.MediaBox)
		}
		if inh != nil && inh.CropBox != nil {
			b := boxArray(inh.CropBox)
			info.CropBox = &b
		}
		info.Content = pageContent(t, ctx, d, i)

		res := dict(t, ctx, d["Resources"])
		info.BlendModes = make(map[string]string)
		for name, obj := range dict(t, ctx, res["ExtGState"]) {
			gs := dict(t, ctx, obj)
			bm := ""
			if n := gs.NameEntry("BM"); n != nil {
				bm = *n
			}
			info.BlendModes[name] = bm
		}
		for name := range dict(t, ctx, res["XObject"]) {
			info.XObjects = append(info.XObjects, name)
		}
		sort.Strings(info.XObjects)

		pages = append(pages, info)
	}
	return pages
}

// Stream returns the decoded content of the stream object ref points to.
func Stream(t testing.TB, ctx *model.Context, obj types.Object) string {
	t.Helper()
	o, err := ctx.Dereference(obj)
	if err != nil {
		t.Fatalf("dereference stream: %v", err)
	}
	sd, ok := o.(types.StreamDict)
	if !ok {
		t.Fatalf("expected stream, got %T", o)
	}
	if err := sd.Decode(); err != nil {
		t.Fatalf("decode stream: %v", err)
	}
	return string(sd.Content)
}

func pageContent(t testing.TB, ctx *model.Context, d types.Dict, pageNr int) string {
	t.Helper()
	obj, found := d.Find("Contents")
	if !found || obj == nil {
		return ""
	}
	o, err := ctx.Dereference(obj)
	if err != nil {
		t.Fatalf("page %d /Contents: %v", pageNr, err)
	}
	arr, ok := o.(types.Array)
	if !ok {
		return Stream(t, ctx, obj)
	}
	parts := make([]string, 0, len(arr))
	for _, ref := range arr {
		parts = append(parts, Stream(t, ctx, ref))
	}
	return strings.Join(parts, "\n")
}

func dict(t testing.TB, ctx *model.Context, obj types.Object) types.Dict {
	t.Helper()
	if obj == nil {
		return nil
	}
	d, err := ctx.DereferenceDict(obj)
	if err != nil {
		t.Fatalf("dereference dict: %v", err)
	}
	return d
}

func boxArray(r *types.Rectangle) [4]float64 {
	return [4]float64{r.LL.X, r.LL.Y, r.UR.X, r.UR.Y}
}
