package core

import (
	"regexp"
	"strings"
)

// 表达式层面的轻量解析辅助。这里不建 AST，所有判断都在
// 净化后的语句文本上做词法近似，结构存疑时宁可放过。

// identUse 表达式中出现的一个标识符及其使用上下文
type identUse struct {
	name      string
	deref     bool // *p、p->m、p[i] 形式的解引用
	addressOf bool // &x 取地址（视作输出参数）
}

// skipIdentifiers 不作为变量参与检查的名字
var skipIdentifiers = map[string]bool{
	"NULL": true, "true": true, "false": true,
	"int": true, "char": true, "float": true, "double": true,
	"long": true, "short": true, "unsigned": true, "signed": true,
	"void": true, "bool": true, "size_t": true, "FILE": true,
	"const": true, "static": true, "extern": true,
}

// identifierUses 提取表达式中所有按变量使用的标识符
//   - 紧跟 `(` 的是函数名，跳过
//   - `.`/`->` 之后的是成员名，跳过（成员不在任何外围作用域里）
//   - `&x` 标记为取地址；`a && b` 中的 `&&` 不算
//   - `*p` 标记为解引用，但 `a * b` 的乘法除外
func identifierUses(expr string) []identUse {
	var uses []identUse
	n := len(expr)

	for i := 0; i < n; {
		if !isIdentStart(expr[i]) {
			i++
			continue
		}
		j := i
		for j < n && isIdentPart(expr[j]) {
			j++
		}
		name := expr[i:j]
		start := i
		i = j

		if controlKeywords[name] || skipIdentifiers[name] {
			continue
		}

		next := nextNonSpace(expr, j)
		if next < n && expr[next] == '(' {
			// 函数名
			continue
		}

		prev := prevNonSpace(expr, start)
		if prev >= 0 {
			if expr[prev] == '.' {
				continue
			}
			if expr[prev] == '>' && prev > 0 && expr[prev-1] == '-' {
				continue
			}
		}

		use := identUse{name: name}

		if prev >= 0 && expr[prev] == '&' {
			// && 是逻辑与，单个 & 才是取地址
			if !(prev > 0 && expr[prev-1] == '&') {
				use.addressOf = true
			}
		}

		if !use.addressOf {
			if next < n && (expr[next] == '[' || (expr[next] == '-' && next+1 < n && expr[next+1] == '>')) {
				use.deref = true
			}
			if prev >= 0 && expr[prev] == '*' && isDerefStar(expr, prev) {
				use.deref = true
			}
		}

		uses = append(uses, use)
	}

	return uses
}

// isDerefStar 判断位置 pos 上的 `*` 是解引用而非乘法
// 左侧是标识符、数字或右括号时按乘法处理
func isDerefStar(expr string, pos int) bool {
	p := pos - 1
	for p >= 0 && expr[p] == '*' {
		p--
	}
	p = prevNonSpace(expr, p+1)
	if p < 0 {
		return true
	}
	c := expr[p]
	if isIdentPart(c) || c == ')' || c == ']' {
		return false
	}
	return true
}

func nextNonSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return i
}

// prevNonSpace 返回 i 之前最近的非空白位置，没有则 -1
func prevNonSpace(s string, i int) int {
	p := i - 1
	for p >= 0 && (s[p] == ' ' || s[p] == '\t') {
		p--
	}
	return p
}

// 复合赋值运算符的前导字符
const compoundAssignLead = "+-*/%&|^<>!="

// splitAssignment 在顶层找简单赋值 `lhs = rhs`
// 复合赋值（+= 等）和比较运算不在此切分：它们隐含对左值的读取，
// 调用方把整条语句按读取处理即可
func splitAssignment(text string) (lhs, rhs string, ok bool) {
	depth := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case '=':
			if depth != 0 {
				continue
			}
			if i+1 < len(text) && text[i+1] == '=' {
				i++ // ==
				continue
			}
			if i > 0 && strings.IndexByte(compoundAssignLead, text[i-1]) >= 0 {
				continue
			}
			return text[:i], strings.TrimSuffix(strings.TrimSpace(text[i+1:]), ";"), true
		}
	}
	return "", "", false
}

// derefBase 判断赋值左值是否为解引用写，并给出基变量名
// `*p`、`(*p)`、`p->m`、`p[i]` 都属于写穿指针
func derefBase(lhs string) (string, bool) {
	s := strings.TrimSpace(lhs)
	s = strings.TrimSuffix(strings.TrimSpace(s), ";")
	s = strings.TrimLeft(s, "( \t")

	if strings.HasPrefix(s, "*") {
		s = strings.TrimLeft(s, "* \t()")
		if name := leadingIdent(s); name != "" {
			return name, true
		}
		return "", false
	}
	if idx := strings.Index(s, "->"); idx >= 0 {
		if name := plainIdent(s[:idx]); name != "" {
			return name, true
		}
		return "", false
	}
	if idx := strings.IndexByte(s, '['); idx >= 0 {
		if name := plainIdent(s[:idx]); name != "" {
			return name, true
		}
	}
	return "", false
}

// plainIdent 整体是单个标识符时返回之，否则空串
func plainIdent(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || !isIdentStart(s[0]) {
		return ""
	}
	for i := 1; i < len(s); i++ {
		if !isIdentPart(s[i]) {
			return ""
		}
	}
	if controlKeywords[s] || skipIdentifiers[s] {
		return ""
	}
	return s
}

// leadingIdent 返回开头处的标识符
func leadingIdent(s string) string {
	if s == "" || !isIdentStart(s[0]) {
		return ""
	}
	j := 1
	for j < len(s) && isIdentPart(s[j]) {
		j++
	}
	name := s[:j]
	if controlKeywords[name] || skipIdentifiers[name] {
		return ""
	}
	return name
}

var allocNameRe = regexp.MustCompile(`^(?:malloc|calloc|realloc|free)$`)

// calleeOf 提取 rhs 形如函数调用时的被调函数名
// 跳过类型转换和分配函数；找不到返回空串
func calleeOf(rhs string) string {
	n := len(rhs)
	for i := 0; i < n; {
		if !isIdentStart(rhs[i]) {
			i++
			continue
		}
		j := i
		for j < n && isIdentPart(rhs[j]) {
			j++
		}
		name := rhs[i:j]
		i = j

		if controlKeywords[name] || skipIdentifiers[name] || allocNameRe.MatchString(name) {
			continue
		}
		if next := nextNonSpace(rhs, j); next < n && rhs[next] == '(' {
			return name
		}
		// 第一个非调用标识符说明 rhs 是普通表达式
		return ""
	}
	return ""
}

// initializerOf 在声明语句文本中提取 name 的初始化表达式
// 逗号分隔的多声明器按顶层逗号截断
func initializerOf(text, name string) string {
	idx := indexOfWord(text, name)
	if idx < 0 {
		return ""
	}
	rest := text[idx+len(name):]

	depth := 0
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',', ';':
			if depth == 0 {
				return ""
			}
		case '=':
			if depth != 0 {
				continue
			}
			// 截到顶层逗号或分号
			expr := rest[i+1:]
			d := 0
			for k := 0; k < len(expr); k++ {
				switch expr[k] {
				case '(', '[':
					d++
				case ')', ']':
					d--
				case ',', ';':
					if d == 0 {
						return strings.TrimSpace(expr[:k])
					}
				}
			}
			return strings.TrimSpace(expr)
		}
	}
	return ""
}

// DeclInitializer 提取声明文本中 name 的初始化表达式，没有则空串
// 检测器判断"声明是否带初始化"时使用
func DeclInitializer(text, name string) string {
	return initializerOf(text, name)
}

// declaredOnStatement 判断语句是否为声明语句
// 返回非 nil（可能为空）表示是声明；返回的是作用域树里已登记的对象，
// 文本能解析但树里没有对应记录的声明器会被静默丢弃
func declaredOnStatement(st Statement) []*Declaration {
	parsed := ClassifyDeclarations(st.Text, st.Line, nil)
	if parsed == nil {
		return nil
	}
	out := make([]*Declaration, 0, len(parsed))
	for _, p := range parsed {
		if d, ok := st.Scope.Lookup(p.Name); ok && d.Line == st.Line {
			out = append(out, d)
		}
	}
	return out
}

// indexOfWord 按标识符边界查找整词位置
func indexOfWord(s, word string) int {
	idx := strings.Index(s, word)
	for idx >= 0 {
		leftOK := idx == 0 || !isIdentPart(s[idx-1])
		right := idx + len(word)
		rightOK := right >= len(s) || !isIdentPart(s[right])
		if leftOK && rightOK {
			return idx
		}
		next := strings.Index(s[idx+1:], word)
		if next < 0 {
			return -1
		}
		idx += 1 + next
	}
	return -1
}
