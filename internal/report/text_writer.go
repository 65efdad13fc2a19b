package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"cscan/internal/core"
)

// TextWriter 文本格式报告写入器
type TextWriter struct {
	writer    io.Writer
	verbose   bool
	showStats bool
}

// TextOption 文本选项
type TextOption func(*TextWriter)

// WithVerbose 输出修复建议与检测器名
func WithVerbose() TextOption {
	return func(w *TextWriter) { w.verbose = true }
}

// WithoutStats 省略统计段
func WithoutStats() TextOption {
	return func(w *TextWriter) { w.showStats = false }
}

// NewTextWriter 创建文本写入器
func NewTextWriter(writer io.Writer, options ...TextOption) *TextWriter {
	w := &TextWriter{
		writer:    writer,
		showStats: true,
	}
	for _, opt := range options {
		opt(w)
	}
	return w
}

// Write 生成并写入文本报告
func (w *TextWriter) Write(result *ScanResult) error {
	if len(result.Findings) == 0 {
		w.writeClean(result)
		return nil
	}

	w.writeHeader(result)
	if w.showStats {
		w.writeStatistics(result)
	}
	w.writeFindings(result)
	w.writeFailures(result)
	return nil
}

func (w *TextWriter) writeHeader(result *ScanResult) {
	fmt.Fprintf(w.writer, "\ncscan analysis results\n")
	fmt.Fprintf(w.writer, "======================\n")
	fmt.Fprintf(w.writer, "Files scanned: %d\n", result.FilesScanned)
	fmt.Fprintf(w.writer, "Duration: %s\n\n", result.Duration)
}

func (w *TextWriter) writeClean(result *ScanResult) {
	fmt.Fprintf(w.writer, "\nNo issues found.\n\n")
	fmt.Fprintf(w.writer, "  Files scanned: %d\n", result.FilesScanned)
	fmt.Fprintf(w.writer, "  Duration: %s\n", result.Duration)
	w.writeFailures(result)
}

func (w *TextWriter) writeStatistics(result *ScanResult) {
	bySeverity := result.CountBySeverity()

	fmt.Fprintf(w.writer, "Summary:\n")
	fmt.Fprintf(w.writer, "--------\n")
	fmt.Fprintf(w.writer, "Total issues: %d\n", len(result.Findings))
	fmt.Fprintf(w.writer, "  Errors: %d\n", bySeverity[core.SeverityError])
	fmt.Fprintf(w.writer, "  Warnings: %d\n", bySeverity[core.SeverityWarning])
	fmt.Fprintf(w.writer, "  Info: %d\n\n", bySeverity[core.SeverityInfo])

	if w.verbose {
		byKind := result.CountByKind()
		kinds := make([]string, 0, len(byKind))
		for k := range byKind {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		fmt.Fprintf(w.writer, "By kind:\n")
		for _, k := range kinds {
			fmt.Fprintf(w.writer, "  %s: %d\n", k, byKind[k])
		}
		fmt.Fprintf(w.writer, "\n")
	}
}

// writeFindings 按文件分组输出，组内保持行号顺序
func (w *TextWriter) writeFindings(result *ScanResult) {
	files := make([]string, 0)
	byFile := make(map[string][]core.Finding)
	for _, f := range result.Findings {
		if _, seen := byFile[f.File]; !seen {
			files = append(files, f.File)
		}
		byFile[f.File] = append(byFile[f.File], f)
	}
	sort.Strings(files)

	for _, file := range files {
		fmt.Fprintf(w.writer, "File: %s\n", file)
		fmt.Fprintf(w.writer, "%s\n", strings.Repeat("-", 50))

		tw := tabwriter.NewWriter(w.writer, 0, 8, 2, ' ', 0)
		for _, f := range byFile[file] {
			variable := f.Variable
			if variable == "" {
				variable = "-"
			}
			fmt.Fprintf(tw, "  %s\tline %d\t%s\t%s\t%s\n",
				f.Severity, f.Line, f.Kind, variable, f.Message)
			if w.verbose && f.Suggestion != "" {
				fmt.Fprintf(tw, "  \t\t\t\tsuggestion: %s\n", f.Suggestion)
			}
		}
		tw.Flush()
		fmt.Fprintf(w.writer, "\n")
	}
}

func (w *TextWriter) writeFailures(result *ScanResult) {
	if len(result.FilesFailed) == 0 {
		return
	}
	fmt.Fprintf(w.writer, "\nFiles that could not be analyzed (%d):\n", len(result.FilesFailed))
	for _, f := range result.FilesFailed {
		fmt.Fprintf(w.writer, "  %s\n", f)
	}
}
