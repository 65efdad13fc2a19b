package core

import (
	"strings"

	"github.com/golang/glog"
)

// DetectorKind 检测器类别，配置按类别开关
type DetectorKind int

const (
	DetectorMemory   DetectorKind = iota // 指针/堆内存生命周期
	DetectorVariable                     // 变量初始化与使用
	DetectorLibrary                      // 标准库用法
	DetectorNumeric                      // 数值与控制流
)

// String 返回类别名称（与配置文件键一致）
func (k DetectorKind) String() string {
	switch k {
	case DetectorMemory:
		return "memory"
	case DetectorVariable:
		return "variable"
	case DetectorLibrary:
		return "library"
	case DetectorNumeric:
		return "numeric"
	}
	return "unknown"
}

// FileContext 单文件分析上下文
// 构建时完成整条前置流水线：净化 -> 词法 -> 作用域 -> 摘要 -> 状态回放，
// 各检测器只读取这里的产物，不重复解析。
// 分析全程使用物理行号；逻辑坐标（行标记换算后）只在结果出口统一换算。
type FileContext struct {
	FilePath string
	Lines    []string // 原始行（1 基索引时注意偏移）
	Clean    []string // 净化行视图，行号与原始行一一对应
	Tokens   []Token

	Scopes     *ScopeTree
	Statements []Statement
	Summaries  SummaryTable
	States     *TrackerResult

	Resolver *ConflictResolver

	logical map[int]lineRef // 物理行 -> 逻辑坐标
}

// lineRef 行标记生效后的逻辑坐标
type lineRef struct {
	file string
	line int
}

// NewFileContext 执行前置流水线并返回上下文
// source 解析失败时自动降级到正则实现，单文件分析不因语法错误中断
func NewFileContext(filePath string, lines []string, source SyntaxSource) *FileContext {
	clean := SanitizeLines(lines)

	tree, stmts, err := source.BuildScopes(clean)
	if err != nil {
		glog.Warningf("%s: %s scope build failed (%v), falling back to regex", filePath, source.Name(), err)
		tree, stmts, _ = RegexSyntaxSource{}.BuildScopes(clean)
	}

	summaries := BuildSummaries(tree, stmts)
	states := NewStateTracker(tree, stmts, summaries).Replay()

	tokens := NewLexer(strings.Join(lines, "\n")).Tokenize()
	logical := make(map[int]lineRef)
	for _, tok := range tokens {
		if _, ok := logical[tok.PhysicalLine]; !ok {
			logical[tok.PhysicalLine] = lineRef{file: tok.LogicalFile, line: tok.LogicalLine}
		}
	}

	return &FileContext{
		FilePath:   filePath,
		Lines:      lines,
		Clean:      clean,
		Tokens:     tokens,
		Scopes:     tree,
		Statements: stmts,
		Summaries:  summaries,
		States:     states,
		Resolver:   NewConflictResolver(),
		logical:    logical,
	}
}

// LogicalRef 把物理行号换算为逻辑坐标
// 没有行标记时逻辑行号与物理行号一致；文件名仅在行标记指定过时非空
func (fc *FileContext) LogicalRef(line int) (string, int) {
	if ref, ok := fc.logical[line]; ok {
		return ref.file, ref.line
	}
	return "", line
}

// Line 返回 1 基行号对应的净化行文本，越界返回空串
func (fc *FileContext) Line(n int) string {
	if n < 1 || n > len(fc.Clean) {
		return ""
	}
	return fc.Clean[n-1]
}

// LineCount 净化行总数
func (fc *FileContext) LineCount() int { return len(fc.Clean) }

// Detector 检测器接口
// Run 产出的发现不直接进报告，统一交给冲突仲裁器过滤
type Detector interface {
	// Name 检测器名称，进入报告的 detector 字段
	Name() string
	// Kind 检测器类别
	Kind() DetectorKind
	// Run 在已构建的文件上下文上执行检测
	Run(fc *FileContext) ([]Finding, error)
}

// BaseDetector 检测器公共部分
type BaseDetector struct {
	name string
	kind DetectorKind
}

// NewBaseDetector 创建检测器公共部分
func NewBaseDetector(name string, kind DetectorKind) BaseDetector {
	return BaseDetector{name: name, kind: kind}
}

// Name 返回检测器名称
func (d *BaseDetector) Name() string { return d.name }

// Kind 返回检测器类别
func (d *BaseDetector) Kind() DetectorKind { return d.kind }

// NewFinding 以检测器默认属性构造一条发现
func (d *BaseDetector) NewFinding(kind, file string, line int, variable, message, suggestion string) Finding {
	return Finding{
		Category:   Category(d.kind.String()),
		Kind:       kind,
		Severity:   DefaultSeverity(kind),
		File:       file,
		Line:       line,
		Variable:   variable,
		Message:    message,
		Suggestion: suggestion,
		Detector:   d.name,
	}
}

// RunDetectors 依次执行检测器并把发现交给仲裁器
// 单个检测器出错只记日志并跳过，不中断其余检测器
func RunDetectors(fc *FileContext, detectors []Detector) []Finding {
	for _, det := range detectors {
		findings, err := det.Run(fc)
		if err != nil {
			glog.Errorf("%s: detector %s failed: %v", fc.FilePath, det.Name(), err)
			continue
		}
		for _, f := range findings {
			// 检测器一律产出物理行号，出口统一换算成逻辑坐标
			file, line := fc.LogicalRef(f.Line)
			f.Line = line
			if file != "" {
				f.File = file
			}
			fc.Resolver.Submit(f)
		}
	}
	return fc.Resolver.Findings()
}
