package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pdf-invert/internal/errors"
	"pdf-invert/internal/overlay"
	"pdf-invert/internal/pdftest"
	"pdf-invert/internal/results"
	"pdf-invert/internal/types"
)

// runCLI runs the command line with a private config file.
func runCLI(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	args = append([]string{"--config", filepath.Join(t.TempDir(), "config.json")}, args...)
	code = run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestNewAppWithConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")

	app, err := NewAppWithConfig(configPath)
	if err != nil {
		t.Fatalf("NewAppWithConfig() returned error: %v", err)
	}
	if app.config.GetConfigPath() != configPath {
		t.Errorf("config path = %s, want %s", app.config.GetConfigPath(), configPath)
	}
}

func TestRun_SingleFile(t *testing.T) {
	dir := t.TempDir()
	in := pdftest.WriteFile(t, dir, "in.pdf", pdftest.Box(0, 0, 100, 200))
	out := filepath.Join(dir, "dark.pdf")

	code, stdout, stderr := runCLI(t, "-o", out, in)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr)
	}
	if !strings.Contains(stdout, "Success: in.pdf") {
		t.Errorf("stdout missing success line:\n%s", stdout)
	}

	pages := pdftest.Inspect(t, out)
	if len(pages) != 1 {
		t.Fatalf("got %d pages, want 1", len(pages))
	}
	if !strings.Contains(pages[0].Content, "-2000.00 -2000.00 4200.00 4200.00 re") {
		t.Errorf("overlay missing:\n%s", pages[0].Content)
	}
	if !strings.Contains(pages[0].Content, "0.900 0.900 0.900 rg") {
		t.Errorf("default ratio not used:\n%s", pages[0].Content)
	}
}

func TestRun_InterleavedFlags(t *testing.T) {
	dir := t.TempDir()
	in := pdftest.WriteFile(t, dir, "in.pdf", pdftest.Box(0, 0, 100, 200), pdftest.Box(0, 0, 100, 200))
	out := filepath.Join(dir, "out.pdf")

	code, _, stderr := runCLI(t, in, "--output", out, "--scribble-page-density", "1", "--inv-ratio", "0.25")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr)
	}
	pages := pdftest.Inspect(t, out)
	if len(pages) != 4 {
		t.Fatalf("got %d pages, want 4", len(pages))
	}
	if !strings.Contains(pages[0].Content, "0.250 0.250 0.250 rg") {
		t.Errorf("ratio flag not applied:\n%s", pages[0].Content)
	}
}

func TestRun_BatchWithFailure(t *testing.T) {
	dir := t.TempDir()
	pdftest.WriteFile(t, dir, "a.pdf", pdftest.Box(0, 0, 100, 200))
	pdftest.WriteCorrupt(t, dir, "b.pdf")
	pdftest.WriteFile(t, dir, "c.pdf", pdftest.Box(0, 0, 100, 200))
	outDir := filepath.Join(t.TempDir(), "out")

	code, stdout, stderr := runCLI(t, "--global-out-path", outDir, dir)
	if code != 0 {
		t.Fatalf("per-file failures should not change the exit code, got %d\n%s", code, stderr)
	}
	for _, want := range []string{"Success: a.pdf", "Failure: b.pdf", "Success: c.pdf", "2 succeeded, 1 failed"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
}

func TestRun_InPlace(t *testing.T) {
	in := pdftest.WriteFile(t, t.TempDir(), "in.pdf", pdftest.Box(0, 0, 100, 200))

	code, _, stderr := runCLI(t, in)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr)
	}
	page := pdftest.Inspect(t, in)[0]
	if len(page.BlendModes) != 2 {
		t.Errorf("input not replaced in place: %v", page.BlendModes)
	}
}

func TestRun_ValidationErrors(t *testing.T) {
	in := pdftest.WriteFile(t, t.TempDir(), "in.pdf", pdftest.Box(0, 0, 100, 200))

	tests := []struct {
		name string
		args []string
	}{
		{"absolute local out path", []string{"--local-out-path", filepath.Join(t.TempDir(), "abs"), in}},
		{"global and local", []string{"--global-out-path", t.TempDir(), "--local-out-path", "rel", in}},
		{"negative density", []string{"--scribble-page-density", "-1", in}},
		{"bad margin policy", []string{"--margin-policy", "huge", in}},
		{"bad mode", []string{"--mode", "xobject", in}},
		{"bad blend", []string{"--blend", "Multiply", in}},
		{"bad box", []string{"--box", "bleed", in}},
		{"unknown flag", []string{"--no-such-flag", in}},
		{"bad ratio", []string{"--inv-ratio", "dark", in}},
		{"retry without ledger", []string{"--retry-failed"}},
		{"bad log level", []string{"--log-level", "loud", in}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			if code != 1 {
				t.Errorf("exit code = %d, want 1\n%s", code, stderr)
			}
		})
	}

	// 校验失败时不能修改输入
	if page := pdftest.Inspect(t, in)[0]; len(page.BlendModes) != 0 {
		t.Errorf("input modified by a rejected invocation: %v", page.BlendModes)
	}
}

func TestRun_EarlyWarnings(t *testing.T) {
	dir := t.TempDir()
	in := pdftest.WriteFile(t, dir, "in.pdf", pdftest.Box(0, 0, 100, 200))

	code, _, stderr := runCLI(t, "--inv-ratio", "4", "-o", filepath.Join(dir, "clamped.pdf"), in)
	if code != 0 {
		t.Fatalf("exit code = %d\n%s", code, stderr)
	}
	if !strings.Contains(stderr, "[WARN] inv-ratio out of range, clamping") {
		t.Errorf("clamp warning missing from stderr:\n%s", stderr)
	}

	configPath := filepath.Join(dir, "broken.json")
	if err := os.WriteFile(configPath, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	var stdout, errOut bytes.Buffer
	if code := run([]string{"--config", configPath, "-o", filepath.Join(dir, "defaults.pdf"), in}, &stdout, &errOut); code != 0 {
		t.Fatalf("exit code = %d\n%s", code, errOut.String())
	}
	if !strings.Contains(errOut.String(), "[WARN] invalid config file format, using defaults") {
		t.Errorf("config warning missing from stderr:\n%s", errOut.String())
	}
}

func TestRun_LogLevel(t *testing.T) {
	dir := t.TempDir()
	in := pdftest.WriteFile(t, dir, "in.pdf", pdftest.Box(0, 0, 100, 200))

	code, _, stderr := runCLI(t, "--log-level", "info", "-o", filepath.Join(dir, "out.pdf"), in)
	if code != 0 {
		t.Fatalf("exit code = %d\n%s", code, stderr)
	}
	if !strings.Contains(stderr, "[INFO] file inverted") {
		t.Errorf("info entries missing at --log-level info:\n%s", stderr)
	}

	_, _, stderr = runCLI(t, "-o", filepath.Join(dir, "quiet.pdf"), in)
	if strings.Contains(stderr, "[INFO]") {
		t.Errorf("info entries logged at the default level:\n%s", stderr)
	}
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantInputs []string
		wantOutput string
	}{
		{"interleaved", []string{"a.pdf", "-o", "x.pdf", "b.pdf"}, []string{"a.pdf", "b.pdf"}, "x.pdf"},
		{"terminator", []string{"--", "a.pdf", "-o", "x"}, []string{"a.pdf", "-o", "x"}, ""},
		{"terminator after flags", []string{"-o", "out", "a.pdf", "--", "-v.pdf"}, []string{"a.pdf", "-v.pdf"}, "out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := parseArgs(tt.args, io.Discard)
			if err != nil {
				t.Fatalf("parseArgs() error = %v", err)
			}
			if strings.Join(opts.inputs, "|") != strings.Join(tt.wantInputs, "|") {
				t.Errorf("inputs = %q, want %q", opts.inputs, tt.wantInputs)
			}
			if opts.output != tt.wantOutput {
				t.Errorf("output = %q, want %q", opts.output, tt.wantOutput)
			}
		})
	}

	opts, err := parseArgs([]string{"-o", "x.pdf"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if !opts.set["output"] || opts.set["inv-ratio"] {
		t.Errorf("set = %v", opts.set)
	}
}

func TestRun_Help(t *testing.T) {
	code, _, stderr := runCLI(t, "-h")
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if !strings.Contains(stderr, "--inv-ratio") {
		t.Errorf("help text missing flags:\n%s", stderr)
	}
}

func TestRun_ConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	if err := os.WriteFile(configPath, []byte(`{"inv_ratio": 0.5, "margin_policy": "centered"}`), 0644); err != nil {
		t.Fatal(err)
	}
	in := pdftest.WriteFile(t, dir, "in.pdf", pdftest.Box(0, 0, 100, 200))

	var stdout, stderr bytes.Buffer
	out := filepath.Join(dir, "from-config.pdf")
	if code := run([]string{"--config", configPath, "-o", out, in}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d\n%s", code, stderr.String())
	}
	content := pdftest.Inspect(t, out)[0].Content
	if !strings.Contains(content, "0.500 0.500 0.500 rg") || !strings.Contains(content, "-36.00 -36.00 172.00 272.00 re") {
		t.Errorf("config values not applied:\n%s", content)
	}

	out = filepath.Join(dir, "from-flag.pdf")
	if code := run([]string{"--config", configPath, "--inv-ratio", "1", "-o", out, in}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d\n%s", code, stderr.String())
	}
	content = pdftest.Inspect(t, out)[0].Content
	if strings.Contains(content, "0.500 0.500 0.500 rg") {
		t.Errorf("flag should override config:\n%s", content)
	}
}

func TestRun_SaveConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")

	var stdout, stderr bytes.Buffer
	code := run([]string{"--config", configPath, "--save-config", "--inv-ratio", "0.7", "--mode", "form"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d\n%s", code, stderr.String())
	}

	app, err := NewAppWithConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	cfg := app.config.GetConfig()
	if cfg.InvRatio != 0.7 || cfg.OverlayMode != "form" {
		t.Errorf("saved config = %+v", cfg)
	}
}

func TestRun_ReportAndLedger(t *testing.T) {
	dir := t.TempDir()
	good := pdftest.WriteFile(t, dir, "good.pdf", pdftest.Box(0, 0, 100, 200))
	bad := pdftest.WriteCorrupt(t, dir, "bad.pdf")
	ledgerDir := filepath.Join(t.TempDir(), "failures")
	reportPath := filepath.Join(t.TempDir(), "report.json")
	outDir := filepath.Join(t.TempDir(), "out")

	code, _, stderr := runCLI(t, "--failures-dir", ledgerDir, "--report", reportPath, "--global-out-path", outDir, good, bad)
	if code != 0 {
		t.Fatalf("exit code = %d\n%s", code, stderr)
	}

	report, err := results.LoadReport(reportPath)
	if err != nil {
		t.Fatalf("LoadReport() error = %v", err)
	}
	if report.Succeeded != 1 || report.Failed != 1 || len(report.Files) != 2 {
		t.Errorf("report = %d/%d with %d files", report.Succeeded, report.Failed, len(report.Files))
	}
	for _, f := range report.Files {
		if f.SourceMD5 == "" {
			t.Errorf("%s: missing source checksum", f.Input)
		}
	}

	em, err := errors.NewErrorManager(ledgerDir)
	if err != nil {
		t.Fatal(err)
	}
	records := em.ListErrors()
	if len(records) != 1 || records[0].ID != errors.IDFor(bad) || records[0].Stage != types.ErrReadFailed {
		t.Fatalf("ledger = %+v", records)
	}

	// 修复文件后重试
	if err := os.WriteFile(bad, pdftest.Build([]pdftest.Page{pdftest.Box(0, 0, 50, 50)}, pdftest.Options{}), 0644); err != nil {
		t.Fatal(err)
	}
	exported := filepath.Join(t.TempDir(), "retry.txt")
	code, stdout, stderr := runCLI(t, "--failures-dir", ledgerDir, "--retry-failed", "--export-failures", exported, "--global-out-path", outDir)
	if code != 0 {
		t.Fatalf("retry exit code = %d\n%s", code, stderr)
	}
	if !strings.Contains(stdout, "Success: bad.pdf") {
		t.Errorf("retry did not process the recorded file:\n%s", stdout)
	}

	em, err = errors.NewErrorManager(ledgerDir)
	if err != nil {
		t.Fatal(err)
	}
	if records := em.ListErrors(); len(records) != 0 {
		t.Errorf("ledger should be empty after a successful retry: %+v", records)
	}
	data, err := os.ReadFile(exported)
	if err != nil {
		t.Fatal(err)
	}
	if len(bytes.TrimSpace(data)) != 0 {
		t.Errorf("export should be empty, got %q", data)
	}
}

func TestRun_FromList(t *testing.T) {
	dir := t.TempDir()
	pdftest.WriteFile(t, dir, "one.pdf", pdftest.Box(0, 0, 100, 200))
	pdftest.WriteFile(t, dir, "two.pdf", pdftest.Box(0, 0, 100, 200))
	list := filepath.Join(dir, "inputs.txt")
	if err := os.WriteFile(list, []byte("# to invert\none.pdf\n\ntwo.pdf\n"), 0644); err != nil {
		t.Fatal(err)
	}
	outDir := filepath.Join(t.TempDir(), "out")

	code, stdout, stderr := runCLI(t, "--from-list", list, "--global-out-path", outDir)
	if code != 0 {
		t.Fatalf("exit code = %d\n%s", code, stderr)
	}
	if !strings.Contains(stdout, "2 succeeded, 0 failed") {
		t.Errorf("unexpected summary:\n%s", stdout)
	}

	if code, _, _ := runCLI(t, "--from-list", filepath.Join(dir, "missing.txt")); code != 1 {
		t.Errorf("missing list file: exit code = %d, want 1", code)
	}
}

func TestRun_MakeSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.pdf")

	code, stdout, stderr := runCLI(t, "--make-sample", path, "--sample-pages", "2")
	if code != 0 {
		t.Fatalf("exit code = %d\n%s", code, stderr)
	}
	if !strings.Contains(stdout, "Sample written") {
		t.Errorf("stdout = %q", stdout)
	}
	if pages := pdftest.Inspect(t, path); len(pages) != 2 {
		t.Errorf("sample has %d pages, want 2", len(pages))
	}

	if code, _, _ := runCLI(t, "--make-sample", path, "--sample-pages", "0"); code != 1 {
		t.Errorf("zero sample pages: exit code = %d, want 1", code)
	}
}

func TestApp_Password(t *testing.T) {
	t.Setenv("PDF_INVERT_PASSWORD", "from-env")
	app, err := NewAppWithConfig(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	app.readPassword = func(prompt string, w io.Writer) (string, error) {
		return "typed", nil
	}

	tests := []struct {
		name string
		opts cliOptions
		want string
	}{
		{"flag", cliOptions{password: "flag", askPassword: true}, "flag"},
		{"prompt", cliOptions{askPassword: true}, "typed"},
		{"environment", cliOptions{}, "from-env"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := app.password(&tt.opts, io.Discard)
			if err != nil {
				t.Fatalf("password() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("password() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveSettings_Clamp(t *testing.T) {
	app, err := NewAppWithConfig(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	opts, err := parseArgs([]string{"--inv-ratio", "4", "--blend", "difference", "--box", "crop"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	s, err := app.resolveSettings(opts)
	if err != nil {
		t.Fatalf("resolveSettings() error = %v", err)
	}
	if s.invert.Ratio != 1 {
		t.Errorf("ratio = %v, want 1", s.invert.Ratio)
	}
	if s.invert.Templates.Blend().BlendMode != overlay.BlendDifference {
		t.Errorf("blend = %q", s.invert.Templates.Blend().BlendMode)
	}
	if s.invert.Box != "CropBox" {
		t.Errorf("box = %q", s.invert.Box)
	}
}
