// Package parser classifies command-line inputs and reads input list files.
package parser

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"pdf-invert/internal/logger"
	"pdf-invert/internal/types"
)

// InputKind is the kind of path given as input.
type InputKind string

const (
	InputFile      InputKind = "file"
	InputDirectory InputKind = "directory"
	InputMissing   InputKind = "missing"
)

// ClassifyInput reports whether path is a file, a directory or missing.
//
// Rules:
// - empty input → error
// - path does not exist → InputMissing
// - directory → InputDirectory
// - anything else → InputFile (content is checked when the file is opened)
func ClassifyInput(path string) (InputKind, error) {
	logger.Debug("classifying input", logger.String("input", path))

	path = strings.TrimSpace(path)
	if path == "" {
		logger.Warn("classify input failed: empty input")
		return "", types.NewAppError(types.ErrInvalidInput, "输入不能为空", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("input does not exist", logger.String("input", path))
			return InputMissing, nil
		}
		return "", types.NewAppError(types.ErrPathInvalid, "无法访问路径", err)
	}
	if info.IsDir() {
		return InputDirectory, nil
	}
	return InputFile, nil
}

// IsPDFPath reports whether path has a .pdf extension in any case.
func IsPDFPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// ReadListFile reads one input path per line. Blank lines and lines starting
// with # are skipped. UTF-8 (with or without BOM) and UTF-16 with a BOM are
// accepted. Relative entries are resolved against the list file's directory.
func ReadListFile(path string) ([]string, error) {
	logger.Debug("reading list file", logger.String("path", path))

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.NewAppError(types.ErrPathInvalid, "list file does not exist", err)
		}
		return nil, types.NewAppError(types.ErrInvalidInput, "cannot open list file", err)
	}
	defer file.Close()

	// BOMOverride 根据 BOM 切换到 UTF-16，否则按 UTF-8 解码并去掉 UTF-8 BOM
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	scanner := bufio.NewScanner(transform.NewReader(file, decoder))

	base := filepath.Dir(path)
	var entries []string
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimSuffix(scanner.Text(), "\r"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !filepath.IsAbs(line) {
			line = filepath.Join(base, line)
		}
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, types.NewAppError(types.ErrInvalidInput, "cannot read list file", err)
	}

	logger.Info("list file read", logger.String("path", path), logger.Int("entries", len(entries)))
	return entries, nil
}
