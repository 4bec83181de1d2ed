package batch

import (
	"fmt"
	"io"
	"path/filepath"

	"pdf-invert/internal/logger"
	"pdf-invert/internal/types"
)

// Processor inverts a single file.
type Processor interface {
	Process(input, output string) (*types.PageReport, error)
}

// Summary is the outcome of a run.
type Summary struct {
	Results   []types.FileResult
	Succeeded int
	Failed    int
}

// Runner processes files sequentially. A failing file never stops the run.
type Runner struct {
	proc Processor
	out  OutputConfig
	w    io.Writer

	// OnStart, if set, is called before a file is opened.
	OnStart func(input string)
	// OnResult, if set, is called after every file.
	OnResult func(types.FileResult)
}

// NewRunner creates a Runner that prints one status line per file to w.
func NewRunner(proc Processor, out OutputConfig, w io.Writer) *Runner {
	if w == nil {
		w = io.Discard
	}
	return &Runner{proc: proc, out: out, w: w}
}

// Run resolves paths and processes every file found.
func (r *Runner) Run(paths []string) *Summary {
	files, missing := ResolveInputs(paths)
	summary := &Summary{}

	for _, p := range missing {
		r.record(summary, types.FileResult{
			Input:  p,
			Status: types.FileStatusFailed,
			Err:    types.NewAppError(types.ErrPathInvalid, "path does not exist", nil),
		})
	}

	single := len(files) == 1
	for i, input := range files {
		logger.Debug("processing file",
			logger.Int("index", i+1),
			logger.Int("total", len(files)),
			logger.String("input", input))
		if r.OnStart != nil {
			r.OnStart(input)
		}
		r.record(summary, r.processOne(input, r.out.Resolve(input, single)))
	}

	logger.Info("batch finished",
		logger.Int("succeeded", summary.Succeeded),
		logger.Int("failed", summary.Failed))
	return summary
}

func (r *Runner) processOne(input, output string) (res types.FileResult) {
	res = types.FileResult{Input: input, Output: output}

	// 单个文件的异常不能中断整个批处理
	defer func() {
		if p := recover(); p != nil {
			res.Status = types.FileStatusFailed
			res.Err = types.NewAppError(types.ErrReadFailed, "unexpected failure", fmt.Errorf("%v", p))
		}
	}()

	report, err := r.proc.Process(input, output)
	res.Pages = report
	if err != nil {
		appErr, ok := types.AsAppError(err)
		if !ok {
			appErr = types.NewAppError(types.ErrReadFailed, "processing failed", err)
		}
		res.Status = types.FileStatusFailed
		res.Err = appErr
		return res
	}
	res.Status = types.FileStatusSuccess
	return res
}

func (r *Runner) record(summary *Summary, res types.FileResult) {
	name := filepath.Base(res.Input)
	if res.Status == types.FileStatusSuccess {
		summary.Succeeded++
		fmt.Fprintf(r.w, "Success: %s\n", name)
	} else {
		summary.Failed++
		fmt.Fprintf(r.w, "Failure: %s: %v\n", name, res.Err)
		logger.Error("file failed", res.Err,
			logger.String("input", res.Input),
			logger.String("code", string(res.Err.Code)))
	}
	summary.Results = append(summary.Results, res)
	if r.OnResult != nil {
		r.OnResult(res)
	}
}
