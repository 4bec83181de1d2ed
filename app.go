package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"golang.org/x/term"

	"pdf-invert/internal/batch"
	"pdf-invert/internal/config"
	"pdf-invert/internal/errors"
	"pdf-invert/internal/invert"
	"pdf-invert/internal/logger"
	"pdf-invert/internal/overlay"
	"pdf-invert/internal/parser"
	"pdf-invert/internal/pdf"
	"pdf-invert/internal/results"
	"pdf-invert/internal/sample"
	"pdf-invert/internal/types"
)

// App is the command line controller. It ties the configuration, the
// inverter, the failure ledger and the run report together.
type App struct {
	config   *config.ConfigManager
	errorMgr *errors.ErrorManager
	report   *results.Report

	// readPassword prompts for a password on the terminal.
	readPassword func(prompt string, w io.Writer) (string, error)
}

// NewApp creates an App using the default config path.
func NewApp() *App {
	app, err := NewAppWithConfig("")
	if err != nil {
		logger.Warn("failed to load default config, using defaults", logger.Err(err))
		cm, _ := config.NewConfigManager(os.DevNull)
		return &App{config: cm, readPassword: promptPassword}
	}
	return app
}

// NewAppWithConfig creates an App reading its configuration from configPath.
func NewAppWithConfig(configPath string) (*App, error) {
	cm, err := config.NewConfigManager(configPath)
	if err != nil {
		return nil, err
	}
	if err := cm.Load(); err != nil {
		return nil, err
	}
	return &App{config: cm, readPassword: promptPassword}, nil
}

// Close flushes the logger.
func (a *App) Close() error {
	return logger.Close()
}

// settings is the validated, effective configuration for one run.
type settings struct {
	cfg      types.Config
	invert   invert.Options
	output   batch.OutputConfig
	logLevel logger.Level
}

// Run executes one command line invocation and returns the exit status.
func (a *App) Run(opts *cliOptions, stdout, stderr io.Writer) int {
	s, err := a.resolveSettings(opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if err := logger.Init(&logger.Config{
		LogFilePath:   s.cfg.LogFilePath,
		MaxFileSize:   logger.DefaultConfig().MaxFileSize,
		MaxBackups:    logger.DefaultConfig().MaxBackups,
		Level:         s.logLevel,
		EnableConsole: true,
		Console:       stderr,
		StackTrace:    opts.verbose,
	}); err != nil {
		fmt.Fprintf(stderr, "Error: cannot open log file: %v\n", err)
		return 1
	}

	if opts.saveConfig {
		a.config.SetConfig(&s.cfg)
		if err := a.config.Save(); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "Config saved: %s\n", a.config.GetConfigPath())
	}

	if opts.makeSample != "" {
		so := sample.DefaultOptions()
		so.Pages = opts.samplePages
		if err := sample.Generate(opts.makeSample, so); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "Sample written: %s\n", opts.makeSample)
		return 0
	}

	if s.cfg.FailuresDir != "" {
		em, err := errors.NewErrorManager(s.cfg.FailuresDir)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		a.errorMgr = em
	} else if opts.retryFailed || opts.exportFails != "" {
		fmt.Fprintln(stderr, "Error: --retry-failed and --export-failures need --failures-dir")
		return 1
	}

	password, err := a.password(opts, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	s.invert.Password = password

	inputs, err := a.collectInputs(opts, s)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if len(inputs) == 0 && (opts.saveConfig || opts.exportFails != "") {
		return a.exportFailures(opts, stdout, stderr)
	}
	if len(inputs) == 0 {
		inputs = []string{"."}
	}

	if opts.reportPath != "" {
		a.report = results.NewReport(&s.cfg)
	}

	runner := batch.NewRunner(invert.NewProcessor(s.invert, nil), s.output, stdout)
	runner.OnStart = a.onStart
	runner.OnResult = a.onResult
	summary := runner.Run(inputs)

	fmt.Fprintf(stdout, "Done: %d succeeded, %d failed\n", summary.Succeeded, summary.Failed)

	if a.report != nil {
		if err := a.report.Save(opts.reportPath); err != nil {
			logger.Error("failed to save report", err, logger.String("path", opts.reportPath))
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
	}
	if code := a.exportFailures(opts, stdout, stderr); code != 0 {
		return code
	}

	// 单个文件失败不影响退出码
	return 0
}

func (a *App) onStart(input string) {
	if a.report != nil {
		a.report.Begin(input)
	}
}

func (a *App) onResult(res types.FileResult) {
	if a.report != nil {
		a.report.Add(res)
	}
	if a.errorMgr != nil {
		if err := a.errorMgr.RecordResult(res); err != nil {
			logger.Warn("failed to update failure ledger", logger.String("input", res.Input), logger.Err(err))
		}
	}
}

func (a *App) exportFailures(opts *cliOptions, stdout, stderr io.Writer) int {
	if opts.exportFails == "" || a.errorMgr == nil {
		return 0
	}
	if err := a.errorMgr.ExportInputs(opts.exportFails); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Failures exported: %s\n", opts.exportFails)
	return 0
}

// resolveSettings merges flags over the config file and validates the
// result. Flags win over config values, which win over defaults.
func (a *App) resolveSettings(opts *cliOptions) (*settings, error) {
	cfg := *a.config.GetConfig()
	cfg.InvRatio = a.config.GetInvRatio()

	if opts.set["inv-ratio"] {
		if math.IsNaN(opts.invRatio) {
			return nil, types.NewAppError(types.ErrInvalidInput, "--inv-ratio must be a number", nil)
		}
		if opts.invRatio < 0 || opts.invRatio > 1 {
			logger.Warn("inv-ratio out of range, clamping", logger.Float64("value", opts.invRatio))
		}
		cfg.InvRatio = overlay.ClampRatio(opts.invRatio)
	}
	if opts.set["scribble-page-density"] {
		cfg.ScribbleDensity = opts.scribbleDensity
	}
	if opts.set["scribble-overlay"] {
		cfg.ScribbleOverlay = opts.scribbleOverlay
	}
	if opts.set["margin-policy"] {
		cfg.MarginPolicy = opts.marginPolicy
	}
	if opts.set["min-margin"] {
		cfg.MinMargin = opts.minMargin
	}
	if opts.set["mode"] {
		cfg.OverlayMode = opts.mode
	}
	if opts.set["blend"] {
		cfg.BlendMode = opts.blend
	}
	if opts.set["box"] {
		cfg.BoxSource = opts.box
	}
	if opts.set["log-file"] {
		cfg.LogFilePath = opts.logFile
	}
	if opts.set["failures-dir"] {
		cfg.FailuresDir = opts.failuresDir
	}

	if cfg.ScribbleDensity < 0 {
		return nil, types.NewAppErrorWithDetails(types.ErrInvalidInput,
			"--scribble-page-density must not be negative", fmt.Sprint(cfg.ScribbleDensity), nil)
	}
	if cfg.MinMargin < 0 {
		return nil, types.NewAppErrorWithDetails(types.ErrInvalidInput,
			"--min-margin must not be negative", fmt.Sprint(cfg.MinMargin), nil)
	}
	if opts.samplePages <= 0 && opts.makeSample != "" {
		return nil, types.NewAppError(types.ErrInvalidInput, "--sample-pages must be positive", nil)
	}

	policy, err := overlay.ParseMarginPolicy(cfg.MarginPolicy)
	if err != nil {
		return nil, types.NewAppError(types.ErrInvalidInput, "invalid margin policy", err)
	}
	mode, err := overlay.ParseMode(cfg.OverlayMode)
	if err != nil {
		return nil, types.NewAppError(types.ErrInvalidInput, "invalid overlay mode", err)
	}
	blend, err := overlay.ParseBlendMode(cfg.BlendMode)
	if err != nil {
		return nil, types.NewAppError(types.ErrInvalidInput, "invalid blend mode", err)
	}
	box, err := pdf.ParseBoxKind(cfg.BoxSource)
	if err != nil {
		return nil, types.NewAppError(types.ErrInvalidInput, "invalid page box", err)
	}

	out := batch.OutputConfig{
		Output:        opts.output,
		GlobalOutPath: opts.globalOutPath,
		LocalOutPath:  opts.localOutPath,
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}

	level, err := logger.ParseLevel(opts.logLevel)
	if err != nil {
		return nil, types.NewAppError(types.ErrInvalidInput, "invalid log level", err)
	}
	if opts.verbose {
		level = logger.LevelDebug
	}

	return &settings{
		cfg: cfg,
		invert: invert.Options{
			Ratio:           cfg.InvRatio,
			Policy:          policy,
			MinMargin:       cfg.MinMargin,
			Templates:       overlay.NewTemplates(blend),
			Mode:            mode,
			Box:             box,
			ScribbleDensity: cfg.ScribbleDensity,
			ScribbleOverlay: cfg.ScribbleOverlay,
		},
		output:   out,
		logLevel: level,
	}, nil
}

// collectInputs gathers positional inputs, list file entries and recorded
// failures.
func (a *App) collectInputs(opts *cliOptions, s *settings) ([]string, error) {
	inputs := append([]string(nil), opts.inputs...)

	if opts.fromList != "" {
		entries, err := parser.ReadListFile(opts.fromList)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, entries...)
	}

	if opts.retryFailed && a.errorMgr != nil {
		for _, record := range a.errorMgr.ListErrors() {
			if err := a.errorMgr.IncrementRetry(record.ID); err != nil {
				logger.Warn("failed to bump retry count", logger.String("id", record.ID), logger.Err(err))
			}
			logger.Info("retrying failed input",
				logger.String("input", record.ID),
				logger.String("stage", errors.GetStageDisplayName(record.Stage)),
				logger.Int("retry", record.RetryCount+1))
			inputs = append(inputs, record.ID)
		}
	}

	for _, in := range inputs {
		kind, err := parser.ClassifyInput(in)
		if err != nil {
			return nil, err
		}
		if kind == parser.InputFile && !parser.IsPDFPath(in) {
			logger.Warn("input does not have a .pdf extension", logger.String("input", in))
		}
	}
	return inputs, nil
}

// password returns the user password: --password, then --ask-password, then
// the environment.
func (a *App) password(opts *cliOptions, stderr io.Writer) (string, error) {
	if opts.password != "" {
		return opts.password, nil
	}
	if opts.askPassword {
		return a.readPassword("Password: ", stderr)
	}
	return a.config.GetPassword(), nil
}

func promptPassword(prompt string, w io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", types.NewAppError(types.ErrInvalidInput, "--ask-password needs a terminal", nil)
	}
	fmt.Fprint(w, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", types.NewAppError(types.ErrInvalidInput, "cannot read password", err)
	}
	return strings.TrimRight(string(pw), "\r\n"), nil
}
