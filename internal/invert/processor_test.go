package invert

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"pdf-invert/internal/overlay"
	"pdf-invert/internal/pdf"
	"pdf-invert/internal/pdftest"
	"pdf-invert/internal/types"
)

// stubBoxes serves fixed boxes regardless of the file.
type stubBoxes struct {
	boxes []pdf.PageBox
	err   error
}

func (s stubBoxes) ReadBoxes(string, pdf.BoxKind) ([]pdf.PageBox, error) {
	return s.boxes, s.err
}

func blendNames(page pdftest.PageInfo, mode string) []string {
	var names []string
	for name, bm := range page.BlendModes {
		if bm == mode {
			names = append(names, name)
		}
	}
	return names
}

func TestProcess_SinglePage(t *testing.T) {
	dir := t.TempDir()
	in := pdftest.WriteFile(t, dir, "in.pdf", pdftest.Box(0, 0, 100, 200))
	out := filepath.Join(dir, "out.pdf")

	p := NewProcessor(DefaultOptions(), nil)
	report, err := p.Process(in, out)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	want := &types.PageReport{PagesIn: 1, PagesOut: 1, Overlaid: 1}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}

	pages := pdftest.Inspect(t, out)
	if len(pages) != 1 {
		t.Fatalf("got %d pages, want 1", len(pages))
	}
	page := pages[0]

	blend := blendNames(page, overlay.BlendExclusion)
	if len(blend) != 1 {
		t.Fatalf("expected one Exclusion ExtGState, got %v", page.BlendModes)
	}
	plain := blendNames(page, "")
	if len(plain) != 1 {
		t.Fatalf("expected one non-blending ExtGState, got %v", page.BlendModes)
	}

	if !strings.Contains(page.Content, "-2000.00 -2000.00 4200.00 4200.00 re") {
		t.Errorf("overlay rectangle missing from content:\n%s", page.Content)
	}
	front := overlay.RenderStream(overlay.Rect{X: -2000, Y: -2000, W: 4200, H: 4200}, blend[0], 0.9)
	if !strings.HasSuffix(strings.TrimSpace(page.Content), strings.TrimSpace(string(front))) {
		t.Errorf("content should end with the blended overlay:\n%s", page.Content)
	}
	back := overlay.RenderBackdrop(overlay.Rect{X: -2000, Y: -2000, W: 4200, H: 4200}, plain[0])
	if !strings.HasPrefix(page.Content, string(back)) {
		t.Errorf("content should start with the backdrop:\n%s", page.Content)
	}

	// 原文件保持不变
	if pages := pdftest.Inspect(t, in); len(pages[0].BlendModes) != 0 {
		t.Errorf("input was modified: %v", pages[0].BlendModes)
	}
}

func TestProcess_Scribble(t *testing.T) {
	dir := t.TempDir()
	in := pdftest.WriteFile(t, dir, "in.pdf",
		pdftest.Box(0, 0, 100, 200),
		pdftest.Box(0, 0, 300, 400),
	)
	out := filepath.Join(dir, "out.pdf")

	opts := DefaultOptions()
	opts.ScribbleDensity = 1
	report, err := NewProcessor(opts, nil).Process(in, out)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if report.PagesIn != 2 || report.PagesOut != 4 {
		t.Errorf("pages in/out = %d/%d, want 2/4", report.PagesIn, report.PagesOut)
	}

	pages := pdftest.Inspect(t, out)
	if len(pages) != 4 {
		t.Fatalf("got %d pages, want 4", len(pages))
	}
	for i, page := range pages {
		original := i%2 == 0
		if original && !strings.Contains(page.Content, "re f") {
			t.Errorf("page %d should be an original page, content %q", i+1, page.Content)
		}
		if !original && page.Content != "" {
			t.Errorf("page %d should be blank, content %q", i+1, page.Content)
		}
	}
	if diff := cmp.Diff(pages[2].MediaBox, pages[3].MediaBox); diff != "" {
		t.Errorf("blank page should copy its predecessor's box (-want +got):\n%s", diff)
	}
}

func TestProcess_ScribbleOverlay(t *testing.T) {
	dir := t.TempDir()
	in := pdftest.WriteFile(t, dir, "in.pdf", pdftest.Box(0, 0, 100, 200))
	out := filepath.Join(dir, "out.pdf")

	opts := DefaultOptions()
	opts.ScribbleDensity = 2
	opts.ScribbleOverlay = true
	if _, err := NewProcessor(opts, nil).Process(in, out); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	pages := pdftest.Inspect(t, out)
	if len(pages) != 3 {
		t.Fatalf("got %d pages, want 3", len(pages))
	}
	for i, page := range pages {
		if len(blendNames(page, overlay.BlendExclusion)) != 1 {
			t.Errorf("page %d has no overlay: %v", i+1, page.BlendModes)
		}
	}
}

func TestProcess_FormMode(t *testing.T) {
	dir := t.TempDir()
	in := pdftest.WriteFile(t, dir, "in.pdf", pdftest.Box(0, 0, 100, 200))
	out := filepath.Join(dir, "out.pdf")

	opts := DefaultOptions()
	opts.Mode = overlay.ModeForm
	opts.Policy = overlay.MarginCentered
	if _, err := NewProcessor(opts, nil).Process(in, out); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	page := pdftest.Inspect(t, out)[0]
	if len(page.XObjects) != 1 {
		t.Fatalf("expected one form XObject, got %v", page.XObjects)
	}
	blend := blendNames(page, overlay.BlendExclusion)
	if len(blend) != 1 {
		t.Fatalf("expected one Exclusion ExtGState, got %v", page.BlendModes)
	}
	invoke := string(overlay.RenderInvoke(blend[0], page.XObjects[0]))
	if !strings.HasSuffix(strings.TrimSpace(page.Content), strings.TrimSpace(invoke)) {
		t.Errorf("content should end with the form invocation:\n%s", page.Content)
	}
	if !strings.Contains(page.Content, "-36.00 -36.00 172.00 272.00 re") {
		t.Errorf("backdrop should use the centred rectangle:\n%s", page.Content)
	}
}

func TestProcess_TwiceDiffers(t *testing.T) {
	dir := t.TempDir()
	in := pdftest.WriteFile(t, dir, "in.pdf", pdftest.Box(0, 0, 100, 200))
	once := filepath.Join(dir, "once.pdf")
	twice := filepath.Join(dir, "twice.pdf")

	p := NewProcessor(DefaultOptions(), nil)
	if _, err := p.Process(in, once); err != nil {
		t.Fatalf("first Process() error = %v", err)
	}
	if _, err := p.Process(once, twice); err != nil {
		t.Fatalf("second Process() error = %v", err)
	}

	a, err := os.ReadFile(once)
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(twice)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a, b) {
		t.Error("applying the overlay twice produced identical bytes")
	}

	page := pdftest.Inspect(t, twice)[0]
	if n := len(blendNames(page, overlay.BlendExclusion)); n != 2 {
		t.Errorf("expected two Exclusion states after two runs, got %d", n)
	}
}

func TestProcess_InPlace(t *testing.T) {
	in := pdftest.WriteFile(t, t.TempDir(), "in.pdf", pdftest.Box(0, 0, 100, 200))

	if _, err := NewProcessor(DefaultOptions(), nil).Process(in, in); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if page := pdftest.Inspect(t, in)[0]; len(blendNames(page, overlay.BlendExclusion)) != 1 {
		t.Errorf("in-place output has no overlay: %v", page.BlendModes)
	}
}

func TestProcess_SkipsUnreadablePage(t *testing.T) {
	dir := t.TempDir()
	in := pdftest.WriteFile(t, dir, "in.pdf",
		pdftest.Box(0, 0, 100, 200),
		pdftest.Box(0, 0, 100, 200),
	)
	out := filepath.Join(dir, "out.pdf")

	boxes := stubBoxes{boxes: []pdf.PageBox{
		{Err: errors.New("broken")},
		{Box: overlay.BoundingBox{URx: 100, URy: 200}},
	}}
	report, err := NewProcessor(DefaultOptions(), boxes).Process(in, out)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if diff := cmp.Diff([]int{1}, report.SkippedPages); diff != "" {
		t.Errorf("skipped pages mismatch (-want +got):\n%s", diff)
	}
	if report.Overlaid != 1 {
		t.Errorf("Overlaid = %d, want 1", report.Overlaid)
	}

	pages := pdftest.Inspect(t, out)
	if len(pages[0].BlendModes) != 0 {
		t.Errorf("skipped page was modified: %v", pages[0].BlendModes)
	}
	if len(pages[1].BlendModes) != 2 {
		t.Errorf("second page should carry both states: %v", pages[1].BlendModes)
	}
}

func TestProcess_UndeclaredResources(t *testing.T) {
	dir := t.TempDir()
	font := pdftest.Box(0, 0, 100, 200)
	font.Content = "BT /F1 12 Tf <4142> Tj ET"
	gs := pdftest.Box(0, 0, 100, 200)
	gs.Content = "/GS9 gs 0 0 10 10 re f"
	in := pdftest.WriteFile(t, dir, "in.pdf", font, gs)
	out := filepath.Join(dir, "out.pdf")

	// 内容流引用了 /Resources 中不存在的名字，不影响叠加层
	report, err := NewProcessor(DefaultOptions(), nil).Process(in, out)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if report.Overlaid != 2 || len(report.SkippedPages) != 0 {
		t.Errorf("report = %+v, want both pages overlaid", report)
	}

	pages := pdftest.Inspect(t, out)
	for i, page := range pages {
		if len(page.BlendModes) != 2 {
			t.Errorf("page %d states = %v", i+1, page.BlendModes)
		}
	}
	if !strings.Contains(pages[0].Content, "/F1 12 Tf") {
		t.Errorf("original content lost:\n%s", pages[0].Content)
	}
}

func TestProcess_ScribbleAfterSkippedPage(t *testing.T) {
	dir := t.TempDir()
	in := pdftest.WriteFile(t, dir, "in.pdf",
		pdftest.Box(0, 0, 100, 200),
		pdftest.Box(0, 0, 300, 400),
	)
	out := filepath.Join(dir, "out.pdf")

	opts := DefaultOptions()
	opts.ScribbleDensity = 1
	boxes := stubBoxes{boxes: []pdf.PageBox{
		{Err: errors.New("broken")},
		{Box: overlay.BoundingBox{URx: 300, URy: 400}},
	}}
	report, err := NewProcessor(opts, boxes).Process(in, out)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	want := &types.PageReport{PagesIn: 2, PagesOut: 4, Overlaid: 1, SkippedPages: []int{1}}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}

	pages := pdftest.Inspect(t, out)
	if len(pages) != 4 {
		t.Fatalf("got %d pages, want 4", len(pages))
	}
	wantBoxes := [][4]float64{{0, 0, 100, 200}, {0, 0, 100, 200}, {0, 0, 300, 400}, {0, 0, 300, 400}}
	for i, page := range pages {
		if page.MediaBox != wantBoxes[i] {
			t.Errorf("page %d MediaBox = %v, want %v", i+1, page.MediaBox, wantBoxes[i])
		}
	}
	if len(pages[0].BlendModes) != 0 || len(pages[2].BlendModes) != 2 {
		t.Errorf("overlay states = %v / %v", pages[0].BlendModes, pages[2].BlendModes)
	}
}

func TestProcess_AllPagesUnreadable(t *testing.T) {
	dir := t.TempDir()
	in := pdftest.WriteFile(t, dir, "in.pdf", pdftest.Box(0, 0, 100, 200))
	out := filepath.Join(dir, "out.pdf")

	boxes := stubBoxes{boxes: []pdf.PageBox{{Err: errors.New("broken")}}}
	_, err := NewProcessor(DefaultOptions(), boxes).Process(in, out)
	if !types.IsCode(err, types.ErrBoxUnreadable) {
		t.Fatalf("error = %v, want %s", err, types.ErrBoxUnreadable)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("no output should be written, stat error = %v", err)
	}
}

func TestProcess_ReaderFallback(t *testing.T) {
	dir := t.TempDir()
	in := pdftest.WriteFile(t, dir, "in.pdf", pdftest.Box(0, 0, 100, 200))
	out := filepath.Join(dir, "out.pdf")

	boxes := stubBoxes{err: errors.New("unsupported")}
	report, err := NewProcessor(DefaultOptions(), boxes).Process(in, out)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if report.Overlaid != 1 {
		t.Errorf("Overlaid = %d, want 1", report.Overlaid)
	}
	if page := pdftest.Inspect(t, out)[0]; !strings.Contains(page.Content, "-2000.00 -2000.00 4200.00 4200.00 re") {
		t.Errorf("fallback box not used:\n%s", page.Content)
	}
}

func TestProcess_Errors(t *testing.T) {
	dir := t.TempDir()
	p := NewProcessor(DefaultOptions(), nil)

	if _, err := p.Process(filepath.Join(dir, "missing.pdf"), filepath.Join(dir, "out.pdf")); !types.IsCode(err, types.ErrPathInvalid) {
		t.Errorf("missing input: error = %v, want %s", err, types.ErrPathInvalid)
	}

	bad := pdftest.WriteCorrupt(t, dir, "bad.pdf")
	if _, err := p.Process(bad, filepath.Join(dir, "out.pdf")); !types.IsCode(err, types.ErrReadFailed) {
		t.Errorf("corrupt input: error = %v, want %s", err, types.ErrReadFailed)
	}
}

func TestNewProcessor_Normalises(t *testing.T) {
	opts := DefaultOptions()
	opts.Ratio = 3
	opts.ScribbleDensity = -2
	got := NewProcessor(opts, nil).Options()
	if got.Ratio != 1 || got.ScribbleDensity != 0 {
		t.Errorf("Options() = ratio %v density %d", got.Ratio, got.ScribbleDensity)
	}
}
