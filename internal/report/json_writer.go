package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"cscan/internal/core"
)

// JSONReport JSON 格式报告
type JSONReport struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Tool        ToolInfo       `json:"tool"`
	Summary     Summary        `json:"summary"`
	Findings    []core.Finding `json:"findings"`
	FilesFailed []string       `json:"files_failed,omitempty"`
}

// ToolInfo 工具信息
type ToolInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Summary 统计摘要
type Summary struct {
	Total        int            `json:"total"`
	BySeverity   map[string]int `json:"by_severity"`
	ByKind       map[string]int `json:"by_kind"`
	FilesScanned int            `json:"files_scanned"`
	DurationMS   int64          `json:"duration_ms"`
}

// ToolName 写进报告的工具标识
const ToolName = "cscan"

// ToolVersion 工具版本
const ToolVersion = "1.0.0"

// JSONWriter JSON 报告写入器
type JSONWriter struct {
	writer io.Writer
	pretty bool
}

// JSONOption JSON 选项
type JSONOption func(*JSONWriter)

// WithPrettyJSON 缩进输出
func WithPrettyJSON() JSONOption {
	return func(w *JSONWriter) { w.pretty = true }
}

// NewJSONWriter 创建 JSON 写入器
func NewJSONWriter(writer io.Writer, options ...JSONOption) *JSONWriter {
	w := &JSONWriter{writer: writer}
	for _, opt := range options {
		opt(w)
	}
	return w
}

// Write 生成并写入报告
func (w *JSONWriter) Write(result *ScanResult) error {
	bySeverity := make(map[string]int)
	for sev, n := range result.CountBySeverity() {
		bySeverity[string(sev)] = n
	}

	findings := result.Findings
	if findings == nil {
		findings = []core.Finding{}
	}

	report := JSONReport{
		GeneratedAt: time.Now(),
		Tool:        ToolInfo{Name: ToolName, Version: ToolVersion},
		Summary: Summary{
			Total:        len(result.Findings),
			BySeverity:   bySeverity,
			ByKind:       result.CountByKind(),
			FilesScanned: result.FilesScanned,
			DurationMS:   result.Duration.Milliseconds(),
		},
		Findings:    findings,
		FilesFailed: result.FilesFailed,
	}

	var data []byte
	var err error
	if w.pretty {
		data, err = json.MarshalIndent(report, "", "  ")
	} else {
		data, err = json.Marshal(report)
	}
	if err != nil {
		return fmt.Errorf("marshal JSON report: %w", err)
	}

	if _, err := w.writer.Write(data); err != nil {
		return err
	}
	_, err = io.WriteString(w.writer, "\n")
	return err
}
