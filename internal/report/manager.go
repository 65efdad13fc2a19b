package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cscan/internal/core"
)

// Format 报告格式类型
type Format string

const (
	FormatJSON  Format = "json"
	FormatText  Format = "text"
	FormatSARIF Format = "sarif"
	FormatAll   Format = "all"
)

// ScanResult 一次扫描的汇总结果
type ScanResult struct {
	StartedAt    time.Time
	Duration     time.Duration
	FilesScanned int
	// FilesFailed 读入或分析失败的文件，报告中单独列出而不是静默丢弃
	FilesFailed []string
	Detectors   []string
	Findings    []core.Finding
}

// CountBySeverity 按严重级别统计
func (r *ScanResult) CountBySeverity() map[core.Severity]int {
	out := make(map[core.Severity]int)
	for _, f := range r.Findings {
		out[f.Severity]++
	}
	return out
}

// CountByKind 按发现类型统计
func (r *ScanResult) CountByKind() map[string]int {
	out := make(map[string]int)
	for _, f := range r.Findings {
		out[f.Kind]++
	}
	return out
}

// Writer 报告写入器接口
type Writer interface {
	Write(result *ScanResult) error
}

// Manager 报告管理器
type Manager struct {
	format    Format
	outputDir string
	timestamp bool
	filename  string
}

// ManagerOption 管理器选项
type ManagerOption func(*Manager)

// WithFormat 设置报告格式
func WithFormat(format Format) ManagerOption {
	return func(m *Manager) { m.format = format }
}

// WithOutputDir 设置输出目录
func WithOutputDir(dir string) ManagerOption {
	return func(m *Manager) { m.outputDir = dir }
}

// WithTimestamp 文件名带时间戳
func WithTimestamp() ManagerOption {
	return func(m *Manager) { m.timestamp = true }
}

// WithFilename 设置自定义文件名
func WithFilename(filename string) ManagerOption {
	return func(m *Manager) { m.filename = filename }
}

// NewManager 创建报告管理器
func NewManager(options ...ManagerOption) *Manager {
	m := &Manager{
		format:    FormatText,
		outputDir: ".",
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// CreateWriter 按格式创建写入器
func (m *Manager) CreateWriter(format Format, w io.Writer) (Writer, error) {
	switch format {
	case FormatJSON:
		return NewJSONWriter(w, WithPrettyJSON()), nil
	case FormatText:
		return NewTextWriter(w), nil
	case FormatSARIF:
		return NewSARIFWriter(w), nil
	}
	return nil, fmt.Errorf("unsupported format: %s", format)
}

// Generate 生成报告文件，返回写出的路径
func (m *Manager) Generate(result *ScanResult) ([]string, error) {
	formats := []Format{m.format}
	if m.format == FormatAll {
		formats = []Format{FormatJSON, FormatText, FormatSARIF}
	}

	var outputFiles []string
	for _, format := range formats {
		path, err := m.generateOne(result, format)
		if err != nil {
			return nil, err
		}
		outputFiles = append(outputFiles, path)
	}
	return outputFiles, nil
}

func (m *Manager) generateOne(result *ScanResult, format Format) (string, error) {
	if err := os.MkdirAll(m.outputDir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	path := filepath.Join(m.outputDir, m.generateFilename(format))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report file: %w", err)
	}
	defer file.Close()

	writer, err := m.CreateWriter(format, file)
	if err != nil {
		return "", err
	}
	if err := writer.Write(result); err != nil {
		return "", fmt.Errorf("write %s report: %w", format, err)
	}
	return path, nil
}

func (m *Manager) generateFilename(format Format) string {
	if m.filename != "" {
		return m.filename
	}
	baseName := "cscan_report"
	if m.timestamp {
		return fmt.Sprintf("%s_%s.%s", baseName, time.Now().Format("20060102_150405"), format)
	}
	return fmt.Sprintf("%s.%s", baseName, format)
}

// ParseFormat 解析格式字符串
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "text":
		return FormatText, nil
	case "sarif":
		return FormatSARIF, nil
	case "all":
		return FormatAll, nil
	}
	return "", fmt.Errorf("unsupported format: %s (want text, json, sarif or all)", s)
}
