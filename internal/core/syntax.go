package core

// SyntaxSource 作用域与语句流的来源
// 正则回退实现永远可用；tree-sitter 实现精度更高，但解析失败时
// 引擎会降级到回退实现，分析流程对两者一视同仁。
type SyntaxSource interface {
	// Name 来源名称，用于日志
	Name() string
	// BuildScopes 基于净化行视图构建作用域树与语句流
	BuildScopes(clean []string) (*ScopeTree, []Statement, error)
}

// RegexSyntaxSource 正则/大括号计数实现，无外部依赖，永不报错
type RegexSyntaxSource struct{}

// Name 实现 SyntaxSource
func (RegexSyntaxSource) Name() string { return "regex" }

// BuildScopes 实现 SyntaxSource
func (RegexSyntaxSource) BuildScopes(clean []string) (*ScopeTree, []Statement, error) {
	tree, stmts := BuildScopeTree(clean)
	return tree, stmts, nil
}
