package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"cscan/internal/core"
)

// SARIFWriter SARIF 2.1.0 报告写入器
type SARIFWriter struct {
	writer io.Writer
	pretty bool
}

// SARIFOption SARIF 选项
type SARIFOption func(*SARIFWriter)

// WithPrettySARIF 缩进输出
func WithPrettySARIF() SARIFOption {
	return func(w *SARIFWriter) { w.pretty = true }
}

// NewSARIFWriter 创建 SARIF 写入器
func NewSARIFWriter(writer io.Writer, options ...SARIFOption) *SARIFWriter {
	w := &SARIFWriter{writer: writer, pretty: true}
	for _, opt := range options {
		opt(w)
	}
	return w
}

// Write 生成并写入报告
func (w *SARIFWriter) Write(result *ScanResult) error {
	sarif := w.generateReport(result)

	var data []byte
	var err error
	if w.pretty {
		data, err = json.MarshalIndent(sarif, "", "  ")
	} else {
		data, err = json.Marshal(sarif)
	}
	if err != nil {
		return fmt.Errorf("marshal SARIF report: %w", err)
	}

	if _, err := w.writer.Write(data); err != nil {
		return err
	}
	_, err = io.WriteString(w.writer, "\n")
	return err
}

func (w *SARIFWriter) generateReport(result *ScanResult) *SARIF {
	rules, ruleIndex := w.generateRules(result)

	results := make([]Result, 0, len(result.Findings))
	for _, f := range result.Findings {
		results = append(results, Result{
			RuleID:    f.Kind,
			RuleIndex: ruleIndex[f.Kind],
			Level:     severityToLevel(f.Severity),
			Message:   Message{Text: f.Message},
			Locations: []Location{{
				PhysicalLocation: PhysicalLocation{
					ArtifactLocation: ArtifactLocation{URI: f.File},
					Region:           Region{StartLine: f.Line, StartColumn: f.Column},
				},
			}},
			Properties: map[string]interface{}{
				"category": string(f.Category),
				"variable": f.Variable,
			},
		})
	}

	return &SARIF{
		Version: "2.1.0",
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json",
		Runs: []Run{{
			Tool: Tool{Driver: Driver{
				Name:    ToolName,
				Version: ToolVersion,
				Rules:   rules,
			}},
			Results: results,
		}},
	}
}

// generateRules 为出现过的发现类型生成规则表
func (w *SARIFWriter) generateRules(result *ScanResult) ([]Rule, map[string]int) {
	kinds := make([]string, 0)
	seen := make(map[string]bool)
	for _, f := range result.Findings {
		if !seen[f.Kind] {
			seen[f.Kind] = true
			kinds = append(kinds, f.Kind)
		}
	}
	sort.Strings(kinds)

	rules := make([]Rule, len(kinds))
	index := make(map[string]int, len(kinds))
	for i, kind := range kinds {
		rules[i] = Rule{
			ID:               kind,
			Name:             kind,
			ShortDescription: Description{Text: kind},
		}
		index[kind] = i
	}
	return rules, index
}

func severityToLevel(s core.Severity) string {
	switch s {
	case core.SeverityError:
		return "error"
	case core.SeverityWarning:
		return "warning"
	}
	return "note"
}

// SARIF 顶层结构
type SARIF struct {
	Version string `json:"version"`
	Schema  string `json:"$schema"`
	Runs    []Run  `json:"runs"`
}

// Run 一次扫描运行
type Run struct {
	Tool    Tool     `json:"tool"`
	Results []Result `json:"results"`
}

// Tool 工具信息
type Tool struct {
	Driver Driver `json:"driver"`
}

// Driver 工具驱动
type Driver struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Rules   []Rule `json:"rules,omitempty"`
}

// Rule 规则
type Rule struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	ShortDescription Description `json:"shortDescription"`
}

// Description 描述文本
type Description struct {
	Text string `json:"text"`
}

// Result 单条结果
type Result struct {
	RuleID     string                 `json:"ruleId"`
	RuleIndex  int                    `json:"ruleIndex"`
	Level      string                 `json:"level"`
	Message    Message                `json:"message"`
	Locations  []Location             `json:"locations,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// Message 消息
type Message struct {
	Text string `json:"text"`
}

// Location 位置
type Location struct {
	PhysicalLocation PhysicalLocation `json:"physicalLocation"`
}

// PhysicalLocation 物理位置
type PhysicalLocation struct {
	ArtifactLocation ArtifactLocation `json:"artifactLocation"`
	Region           Region           `json:"region"`
}

// ArtifactLocation 文件位置
type ArtifactLocation struct {
	URI string `json:"uri"`
}

// Region 行列区域
type Region struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn,omitempty"`
}
