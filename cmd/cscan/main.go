package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/golang/glog"

	"cscan/internal/core"
	"cscan/internal/detectors"
	"cscan/internal/report"
	"cscan/internal/source"
)

// excludedDirs 目录级排除列表，文件收集和规模统计共用
func excludedDirs() map[string]bool {
	return map[string]bool{
		// 构建产物
		"build": true, "dist": true, "target": true, "cmake-build": true, ".cmake": true,
		// 依赖
		"vendor": true, "node_modules": true, "third_party": true, "thirdparty": true,
		"3rdparty": true, "deps": true, "external": true, "externals": true,
		// 版本控制
		".git": true, ".svn": true, ".hg": true,
		// IDE 和缓存
		".cache": true, ".idea": true, ".vscode": true,
	}
}

// Scanner 扫描驱动：收集文件、并发分析、汇总结果
type Scanner struct {
	cfg       *core.Config
	detectors []core.Detector
	verbose   bool
}

func NewScanner(cfg *core.Config, verbose bool) *Scanner {
	return &Scanner{
		cfg:       cfg,
		detectors: detectors.ForConfig(cfg),
		verbose:   verbose,
	}
}

// collectFiles 收集待分析的 C 源文件
// 目录按名称排除，文件再经配置的 doublestar 模式过滤
func (s *Scanner) collectFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		if !source.IsCSource(root) {
			return nil, fmt.Errorf("%s is not a C source file", root)
		}
		return []string{root}, nil
	}

	excluded := excludedDirs()
	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			glog.Warningf("跳过 %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			if path != root && excluded[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !source.IsCSource(path) {
			return nil
		}
		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			rel = path
		}
		for _, pat := range s.cfg.Excludes {
			ok, merr := doublestar.Match(pat, filepath.ToSlash(rel))
			if merr == nil && ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// analyzeFile 单文件完整流水线：读取、作用域构建、状态回放、检测、仲裁
func (s *Scanner) analyzeFile(path string) ([]core.Finding, error) {
	lines, err := source.Load(path)
	if err != nil {
		return nil, err
	}
	if !source.Valid(strings.Join(lines, "\n")) {
		return nil, fmt.Errorf("%s: not a text file", path)
	}

	fc := core.NewFileContext(path, lines, s.cfg.SyntaxSource())
	return core.RunDetectors(fc, s.detectors), nil
}

// Scan 并发扫描全部文件并汇总
func (s *Scanner) Scan(ctx context.Context, files []string) *report.ScanResult {
	result := &report.ScanResult{
		StartedAt: time.Now(),
		Detectors: detectors.Names(s.detectors),
	}

	pool := core.NewWorkerPool(ctx, s.cfg.Workers, len(files))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for res := range pool.Results() {
			result.FilesScanned++
			if res.Err != nil {
				glog.Errorf("分析失败 %s: %v", res.Path, res.Err)
				result.FilesFailed = append(result.FilesFailed, res.Path)
				continue
			}
			result.Findings = append(result.Findings, res.Findings...)
			if s.verbose {
				glog.Infof("%s: %d 条结果 (%v)", res.Path, len(res.Findings), res.Elapsed)
			}
		}
	}()

	for _, path := range files {
		p := path
		pool.Submit(core.FileJob{
			Path: p,
			Run: func(ctx context.Context) ([]core.Finding, error) {
				return s.analyzeFile(p)
			},
		})
	}
	pool.Close()
	wg.Wait()

	// 结果按 文件、行号、变量 排序，保证输出稳定
	sort.Slice(result.Findings, func(i, j int) bool {
		a, b := result.Findings[i], result.Findings[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Variable < b.Variable
	})
	sort.Strings(result.FilesFailed)

	result.Duration = time.Since(result.StartedAt)
	if s.verbose {
		stats := pool.Stats()
		glog.Infof("扫描完成: submitted=%d completed=%d failed=%d",
			stats.JobsSubmitted, stats.JobsCompleted, stats.JobsFailed)
	}
	return result
}

func main() {
	defaultWorkers := runtime.NumCPU()
	if defaultWorkers > 32 {
		defaultWorkers = 32
	}

	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		workers     = flag.Int("workers", 0, fmt.Sprintf("Number of worker goroutines (default %d)", defaultWorkers))
		verbose     = flag.Bool("verbose", false, "Verbose output")
		format      = flag.String("format", "", "Output format (text, json, sarif, all)")
		output      = flag.String("output", "", "Output directory for report files (default: stdout, text only)")
		filename    = flag.String("filename", "", "Base filename for report files")
		timestamp   = flag.Bool("timestamp", false, "Add timestamp to report filenames")
		noOracle    = flag.Bool("no-syntax-oracle", false, "Disable the tree-sitter syntax source, use the regex scanner only")
		listFormats = flag.Bool("list-formats", false, "List supported output formats")
	)
	flag.Parse()
	defer glog.Flush()

	if *listFormats {
		fmt.Println("Supported output formats:")
		fmt.Println("  text   - Human-readable console report")
		fmt.Println("  json   - Machine-readable JSON report")
		fmt.Println("  sarif  - SARIF 2.1.0 for CI integration")
		fmt.Println("  all    - Every format above")
		return
	}

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <file-or-directory>\n\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg := core.DefaultConfig()
	if *configPath != "" {
		loaded, err := core.LoadConfig(*configPath)
		if err != nil {
			glog.Exitf("配置加载失败: %v", err)
		}
		cfg = loaded
	}

	// 命令行覆盖配置文件
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if *format != "" {
		cfg.Format = *format
	}
	if *noOracle {
		cfg.UseOracle = false
	}

	outFormat, err := report.ParseFormat(cfg.Format)
	if err != nil {
		glog.Exitf("无效的报告格式 %q: %v", cfg.Format, err)
	}

	scanner := NewScanner(cfg, *verbose)

	files, err := scanner.collectFiles(flag.Arg(0))
	if err != nil {
		glog.Exitf("文件收集失败: %v", err)
	}
	if len(files) == 0 {
		fmt.Println("No C source files found.")
		return
	}
	if *verbose {
		glog.Infof("待分析文件 %d 个, workers=%d, 格式=%s", len(files), cfg.Workers, cfg.Format)
	}

	result := scanner.Scan(context.Background(), files)

	if *output != "" {
		opts := []report.ManagerOption{
			report.WithFormat(outFormat),
			report.WithOutputDir(*output),
		}
		if *filename != "" {
			opts = append(opts, report.WithFilename(*filename))
		}
		if *timestamp {
			opts = append(opts, report.WithTimestamp())
		}
		paths, err := report.NewManager(opts...).Generate(result)
		if err != nil {
			glog.Exitf("报告生成失败: %v", err)
		}
		for _, p := range paths {
			fmt.Printf("Report written to %s\n", p)
		}
	} else {
		var tw *report.TextWriter
		if *verbose {
			tw = report.NewTextWriter(os.Stdout, report.WithVerbose())
		} else {
			tw = report.NewTextWriter(os.Stdout)
		}
		if err := tw.Write(result); err != nil {
			glog.Exitf("报告输出失败: %v", err)
		}
	}

	if len(result.Findings) > 0 {
		os.Exit(1)
	}
}
