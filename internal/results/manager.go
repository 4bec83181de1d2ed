// Package results records what a run did to each file and stores the record
// as a JSON report.
package results

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pdf-invert/internal/types"
)

// FileEntry is the report line for one input.
type FileEntry struct {
	Input        string           `json:"input"`
	Output       string           `json:"output,omitempty"`
	Status       types.FileStatus `json:"status"`
	SourceMD5    string           `json:"source_md5,omitempty"` // MD5 of the input before processing
	OutputMD5    string           `json:"output_md5,omitempty"`
	PagesIn      int              `json:"pages_in"`
	PagesOut     int              `json:"pages_out"`
	SkippedPages []int            `json:"skipped_pages,omitempty"`
	ErrorCode    types.ErrorCode  `json:"error_code,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	ProcessedAt  time.Time        `json:"processed_at"`
}

// Report collects the entries of a run.
type Report struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Settings   *types.Config `json:"settings,omitempty"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Files      []FileEntry   `json:"files"`

	mu      sync.Mutex
	sources map[string]string // input -> MD5 taken before processing
}

// NewReport starts a report for a run using settings.
func NewReport(settings *types.Config) *Report {
	return &Report{
		StartedAt: time.Now(),
		Settings:  settings,
		Files:     []FileEntry{},
		sources:   make(map[string]string),
	}
}

// Begin fingerprints input before it is processed, so in-place runs still
// record the original checksum.
func (r *Report) Begin(input string) {
	sum, err := CalculateFileMD5(input)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sources == nil {
		r.sources = make(map[string]string)
	}
	r.sources[input] = sum
}

// Add appends the entry for a finished file.
func (r *Report) Add(res types.FileResult) {
	entry := FileEntry{
		Input:       res.Input,
		Output:      res.Output,
		Status:      res.Status,
		ProcessedAt: time.Now(),
	}
	if res.Pages != nil {
		entry.PagesIn = res.Pages.PagesIn
		entry.PagesOut = res.Pages.PagesOut
		entry.SkippedPages = res.Pages.SkippedPages
	}
	if res.Err != nil {
		entry.ErrorCode = res.Err.Code
		entry.ErrorMessage = res.Err.Error()
	}
	if res.Status == types.FileStatusSuccess && res.Output != "" {
		if sum, err := CalculateFileMD5(res.Output); err == nil {
			entry.OutputMD5 = sum
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	entry.SourceMD5 = r.sources[res.Input]
	if res.Status == types.FileStatusSuccess {
		r.Succeeded++
	} else {
		r.Failed++
	}
	r.Files = append(r.Files, entry)
}

// Save marks the report finished and writes it to path as indented JSON.
func (r *Report) Save(path string) error {
	r.mu.Lock()
	r.FinishedAt = time.Now()
	data, err := json.MarshalIndent(r, "", "  ")
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// LoadReport reads a report written by Save.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	r := &Report{sources: make(map[string]string)}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return r, nil
}

// CalculateFileMD5 calculates the MD5 hash of a file
func CalculateFileMD5(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}
