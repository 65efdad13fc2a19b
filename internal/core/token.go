package core

// TokenKind 词法单元类别
type TokenKind int

const (
	TokenIdentifier TokenKind = iota // 标识符
	TokenNumber                      // 数字字面量
	TokenString                      // 字符串字面量
	TokenChar                        // 字符字面量
	TokenOperator                    // 运算符
	TokenPunct                       // 标点（括号、分号等）
)

// String 返回类别名称
func (k TokenKind) String() string {
	switch k {
	case TokenIdentifier:
		return "identifier"
	case TokenNumber:
		return "number"
	case TokenString:
		return "string"
	case TokenChar:
		return "char"
	case TokenOperator:
		return "operator"
	case TokenPunct:
		return "punctuation"
	}
	return "unknown"
}

// Token 词法单元
// 同时携带逻辑位置和物理位置：两者在上游文本展开（行拼接/宏展开）
// 插入 `# <n> "<file>"` 行标记后会出现偏差，报告始终使用逻辑位置
type Token struct {
	Kind          TokenKind
	Text          string
	LogicalFile   string
	LogicalLine   int
	LogicalColumn int
	PhysicalLine  int
}
