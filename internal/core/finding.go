package core

// Category 检测类别，对应四个可独立启停的检测器
type Category string

const (
	CategoryMemory   Category = "memory"
	CategoryVariable Category = "variable"
	CategoryLibrary  Category = "library"
	CategoryNumeric  Category = "numeric"
)

// 发现类型。字符串值进入 JSON/SARIF 报告，保持蛇形命名
const (
	KindWildPointerDeref = "wild_pointer_dereference"
	KindDoubleFree       = "double_free"
	KindUseAfterFree     = "use_after_free"
	KindNullPointerDeref = "null_pointer_dereference"
	KindMemoryLeak       = "memory_leak"
	KindUninitVariable   = "uninitialized_variable"
	KindConstUninit      = "const_uninitialized"
	KindMallocNullCheck  = "malloc_null_check"
	KindUnusedVariable   = "unused_variable"
	KindPrintfFormat     = "printf_format"
	KindMissingHeader    = "missing_header"
	KindDeadLoop         = "dead_loop"
	KindFloatLoopCond    = "float_loop_condition"
	KindLiteralOverflow  = "literal_overflow"
	KindStaticImplicit   = "static_implicit_init"
)

// severityRank 发现类型的全序：越小越具体/越危险
// 同一 (行, 变量) 位置上高序发现抑制低序发现。
// 排序沿用全局错误管理器的层级，本仓库新增的类型插在相邻位置
var severityRank = map[string]int{
	KindWildPointerDeref: 1,
	KindDoubleFree:       2,
	KindUseAfterFree:     3,
	KindNullPointerDeref: 4,
	KindMemoryLeak:       5,
	KindUninitVariable:   6,
	KindConstUninit:      7,
	KindMallocNullCheck:  8,
	KindUnusedVariable:   9,
	KindPrintfFormat:     10,
	KindMissingHeader:    11,
	KindDeadLoop:         12,
	KindFloatLoopCond:    13,
	KindLiteralOverflow:  14,
	KindStaticImplicit:   15,
}

// RankOf 返回发现类型的严重度序号，未知类型排在最后
func RankOf(kind string) int {
	if r, ok := severityRank[kind]; ok {
		return r
	}
	return 100
}

// Severity 报告严重级别
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// DefaultSeverity 各发现类型的缺省报告级别
func DefaultSeverity(kind string) Severity {
	switch kind {
	case KindWildPointerDeref, KindDoubleFree, KindUseAfterFree,
		KindNullPointerDeref, KindUninitVariable, KindConstUninit:
		return SeverityError
	case KindMemoryLeak, KindPrintfFormat, KindDeadLoop, KindLiteralOverflow:
		return SeverityWarning
	}
	return SeverityInfo
}

// Finding 一条缺陷候选
// 检测器产出后交冲突仲裁器过滤，进入报告接收方后不可变
type Finding struct {
	Category   Category `json:"category"`
	Kind       string   `json:"kind"`
	Severity   Severity `json:"severity"`
	File       string   `json:"file"`
	Line       int      `json:"line"`
	Column     int      `json:"column,omitempty"`
	Variable   string   `json:"variable,omitempty"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
	Detector   string   `json:"detector,omitempty"`
}
