package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"pdf-invert/internal/logger"
)

// cliOptions holds the parsed command line.
type cliOptions struct {
	inputs []string

	output        string
	globalOutPath string
	localOutPath  string

	invRatio        float64
	scribbleDensity int
	scribbleOverlay bool
	marginPolicy    string
	minMargin       float64
	mode            string
	blend           string
	box             string

	configPath  string
	saveConfig  bool
	logFile     string
	logLevel    string
	verbose     bool
	reportPath  string
	fromList    string
	failuresDir string
	retryFailed bool
	exportFails string

	password    string
	askPassword bool

	makeSample  string
	samplePages int

	// set records the flags given explicitly, which override the config file.
	set map[string]bool
}

// errUsage marks command line errors that exit with status 1.
var errUsage = errors.New("usage error")

// printHelp displays the help information for command line usage.
func printHelp(w io.Writer) {
	fmt.Fprintln(w, "pdf-invert - 为 PDF 页面添加反色层（深色阅读）")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "用法:")
	fmt.Fprintln(w, "  pdf-invert [选项] [文件或目录...]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "选项:")
	fmt.Fprintln(w, "  -o, --output <PATH>             单个输入时为输出 .pdf 文件，否则为输出目录")
	fmt.Fprintln(w, "  --global-out-path <DIR>         所有结果写入同一目录")
	fmt.Fprintln(w, "  --local-out-path <REL>          结果写入每个输入所在目录下的相对目录")
	fmt.Fprintln(w, "  --inv-ratio <0..1>              反色强度 (默认 0.9)")
	fmt.Fprintln(w, "  --scribble-page-density <N>     每页之后插入的空白页数 (默认 0)")
	fmt.Fprintln(w, "  --scribble-overlay              空白页同样加反色层")
	fmt.Fprintln(w, "  --margin-policy <NAME>          symmetric 或 centered")
	fmt.Fprintln(w, "  --min-margin <PT>               最小边距 (默认 36)")
	fmt.Fprintln(w, "  --mode <NAME>                   content 或 form")
	fmt.Fprintln(w, "  --blend <NAME>                  Exclusion 或 Difference")
	fmt.Fprintln(w, "  --box <NAME>                    media 或 crop")
	fmt.Fprintln(w, "  --config <PATH>                 配置文件路径")
	fmt.Fprintln(w, "  --save-config                   将当前设置写入配置文件")
	fmt.Fprintln(w, "  --log-file <PATH>               日志文件")
	fmt.Fprintln(w, "  --log-level <LEVEL>             日志级别: debug, info, warn, error (默认 warn)")
	fmt.Fprintln(w, "  -v                              输出调试日志 (等同于 --log-level debug)")
	fmt.Fprintln(w, "  --report <PATH>                 将处理报告写入 JSON 文件")
	fmt.Fprintln(w, "  --from-list <PATH>              从列表文件读取输入，每行一个")
	fmt.Fprintln(w, "  --failures-dir <DIR>            记录失败的文件")
	fmt.Fprintln(w, "  --retry-failed                  重新处理记录中的失败文件")
	fmt.Fprintln(w, "  --export-failures <PATH>        将失败文件列表导出为列表文件")
	fmt.Fprintln(w, "  --password <PW>                 加密 PDF 的用户密码")
	fmt.Fprintln(w, "  --ask-password                  在终端输入密码")
	fmt.Fprintln(w, "  --make-sample <PATH>            生成示例 PDF 后退出")
	fmt.Fprintln(w, "  --sample-pages <N>              示例 PDF 页数 (默认 3)")
	fmt.Fprintln(w, "  -h, --help                      显示帮助信息")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "示例:")
	fmt.Fprintln(w, "  pdf-invert paper.pdf                         # 原地反色")
	fmt.Fprintln(w, "  pdf-invert -o dark.pdf paper.pdf")
	fmt.Fprintln(w, "  pdf-invert --global-out-path out/ papers/")
	fmt.Fprintln(w, "  pdf-invert --inv-ratio 0.8 --scribble-page-density 1 notes.pdf")
}

// parseArgs parses args. Flags and positional inputs may be interleaved.
func parseArgs(args []string, stderr io.Writer) (*cliOptions, error) {
	o := &cliOptions{set: make(map[string]bool)}

	fs := flag.NewFlagSet("pdf-invert", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&o.output, "o", "", "")
	fs.StringVar(&o.output, "output", "", "")
	fs.StringVar(&o.globalOutPath, "global-out-path", "", "")
	fs.StringVar(&o.localOutPath, "local-out-path", "", "")
	fs.Float64Var(&o.invRatio, "inv-ratio", 0.9, "")
	fs.IntVar(&o.scribbleDensity, "scribble-page-density", 0, "")
	fs.BoolVar(&o.scribbleOverlay, "scribble-overlay", false, "")
	fs.StringVar(&o.marginPolicy, "margin-policy", "", "")
	fs.Float64Var(&o.minMargin, "min-margin", 36, "")
	fs.StringVar(&o.mode, "mode", "", "")
	fs.StringVar(&o.blend, "blend", "", "")
	fs.StringVar(&o.box, "box", "", "")
	fs.StringVar(&o.configPath, "config", "", "")
	fs.BoolVar(&o.saveConfig, "save-config", false, "")
	fs.StringVar(&o.logFile, "log-file", "", "")
	fs.StringVar(&o.logLevel, "log-level", "warn", "")
	fs.BoolVar(&o.verbose, "v", false, "")
	fs.StringVar(&o.reportPath, "report", "", "")
	fs.StringVar(&o.fromList, "from-list", "", "")
	fs.StringVar(&o.failuresDir, "failures-dir", "", "")
	fs.BoolVar(&o.retryFailed, "retry-failed", false, "")
	fs.StringVar(&o.exportFails, "export-failures", "", "")
	fs.StringVar(&o.password, "password", "", "")
	fs.BoolVar(&o.askPassword, "ask-password", false, "")
	fs.StringVar(&o.makeSample, "make-sample", "", "")
	fs.IntVar(&o.samplePages, "sample-pages", 3, "")

	rest := args
	for {
		if err := fs.Parse(rest); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				printHelp(stderr)
				return nil, err
			}
			fmt.Fprintf(stderr, "Error: %v\n\n", err)
			printHelp(stderr)
			return nil, fmt.Errorf("%w: %v", errUsage, err)
		}
		remaining := fs.Args()
		// Parse swallows the "--" terminator; everything after it is an input
		if consumed := len(rest) - len(remaining); consumed > 0 && rest[consumed-1] == "--" {
			o.inputs = append(o.inputs, remaining...)
			break
		}
		if len(remaining) == 0 {
			break
		}
		o.inputs = append(o.inputs, remaining[0])
		rest = remaining[1:]
	}

	fs.Visit(func(f *flag.Flag) {
		name := f.Name
		if name == "o" {
			name = "output"
		}
		o.set[name] = true
	})
	return o, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	// 配置加载阶段的警告也要输出，设置解析完成后再按配置重新初始化
	if err := logger.Init(&logger.Config{Level: logger.LevelWarn, EnableConsole: true, Console: stderr}); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer logger.Close()

	app, err := NewAppWithConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer app.Close()

	return app.Run(opts, stdout, stderr)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
