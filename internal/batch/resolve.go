// Package batch resolves input and output paths and runs the inverter over a
// list of files, one at a time.
package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pdf-invert/internal/logger"
	"pdf-invert/internal/types"
)

// OutputConfig selects where results are written. At most one field may be
// set; with none set every input is replaced in place.
type OutputConfig struct {
	// Output is a .pdf file for a single input, otherwise a directory.
	Output string
	// GlobalOutPath is a directory receiving every result.
	GlobalOutPath string
	// LocalOutPath is a directory relative to each input's own directory.
	LocalOutPath string
}

// Validate rejects conflicting or malformed settings.
func (c OutputConfig) Validate() error {
	set := 0
	for _, v := range []string{c.Output, c.GlobalOutPath, c.LocalOutPath} {
		if v != "" {
			set++
		}
	}
	if set > 1 {
		return types.NewAppError(types.ErrInvalidInput,
			"only one of --output, --global-out-path and --local-out-path may be given", nil)
	}
	if c.LocalOutPath != "" && filepath.IsAbs(c.LocalOutPath) {
		return types.NewAppErrorWithDetails(types.ErrInvalidInput,
			"--local-out-path must be a relative path", c.LocalOutPath, nil)
	}
	return nil
}

// Resolve returns the output path for input. single reports whether input is
// the only file of the run.
func (c OutputConfig) Resolve(input string, single bool) string {
	base := filepath.Base(input)
	switch {
	case c.Output != "":
		if single && isPDFName(c.Output) {
			return c.Output
		}
		return filepath.Join(c.Output, base)
	case c.GlobalOutPath != "":
		return filepath.Join(c.GlobalOutPath, base)
	case c.LocalOutPath != "":
		return filepath.Join(filepath.Dir(input), c.LocalOutPath, base)
	}
	return input
}

// InPlace reports whether inputs are overwritten.
func (c OutputConfig) InPlace() bool {
	return c.Output == "" && c.GlobalOutPath == "" && c.LocalOutPath == ""
}

func isPDFName(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// ResolveInputs expands paths into the files to process. Directories
// contribute their immediate *.pdf entries in name order. Paths that do not
// exist are returned separately. Duplicates are dropped.
func ResolveInputs(paths []string) (files, missing []string) {
	seen := make(map[string]bool)
	add := func(p string) {
		key := p
		if abs, err := filepath.Abs(p); err == nil {
			key = abs
		}
		if !seen[key] {
			seen[key] = true
			files = append(files, p)
		}
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			logger.Warn("input not found", logger.String("path", p), logger.Err(err))
			missing = append(missing, p)
			continue
		}
		if !info.IsDir() {
			add(p)
			continue
		}

		found, err := listPDFs(p)
		if err != nil {
			logger.Warn("cannot list directory", logger.String("path", p), logger.Err(err))
			missing = append(missing, p)
			continue
		}
		if len(found) == 0 {
			logger.Info("no PDF files in directory", logger.String("path", p))
		}
		for _, f := range found {
			add(f)
		}
	}
	return files, missing
}

func listPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && isPDFName(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
