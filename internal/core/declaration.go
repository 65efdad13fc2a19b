package core

import (
	"regexp"
	"strings"
)

// InitState 变量生命周期状态
// 三态机：未初始化 -> 已初始化 -> 已失效（free 后），free 后重新赋值可回到已初始化
type InitState int

const (
	StateUninitialized InitState = iota // 已声明未初始化
	StateInitialized                    // 已初始化
	StateInvalidated                    // 已释放/已失效
)

// String 返回状态名称
func (s InitState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateInvalidated:
		return "invalidated"
	}
	return "unknown"
}

// VarID 作用域限定的变量标识
// 分配记录和污点记录都以它为键，避免不同作用域的同名变量互相串扰
type VarID struct {
	ScopeID int
	Name    string
}

// Declaration 变量声明的静态元信息 + 回放期间推进的生命周期状态
type Declaration struct {
	Name      string
	Type      string // 基础类型文本（int / char / struct Node ...）
	IsPointer bool
	IsArray   bool
	IsStatic  bool
	IsConst   bool
	IsExtern  bool
	IsParam   bool // 函数形参，后续本地重声明不得覆盖
	Line      int  // 声明行（逻辑行号）

	Scope *Scope // 所属作用域

	// 以下字段由状态追踪器在回放时推进
	State       InitState
	TaintSource string // 跨函数污点来源（被调函数名），空串表示无污点
	TaintUses   []int  // 污点变量的全部使用行（聚合为单条报告）
	Reads       int    // 读取次数（unused 检测依据）
}

// ID 返回作用域限定的变量标识
func (d *Declaration) ID() VarID {
	sid := 0
	if d.Scope != nil {
		sid = d.Scope.ID
	}
	return VarID{ScopeID: sid, Name: d.Name}
}

// 声明识别用的正则。基础类型关键字必须出现在最左侧，
// 否则按普通表达式处理（函数式宏调用等歧义行不当作声明）
var (
	baseTypeRe = `(?:int|char|float|double|long|short|unsigned|signed|void|bool|size_t|FILE|struct\s+\w+|union\s+\w+|enum\s+\w+)`

	declLineRe = regexp.MustCompile(
		`^\s*((?:(?:static|const|extern|register|volatile)\s+)*)` +
			`(` + baseTypeRe + `(?:\s+(?:long|int|char|double))*)` +
			`([*\s].*)$`)

	declaratorNameRe = regexp.MustCompile(`^\s*(\*+)?\s*([A-Za-z_]\w*)\s*(\[[^\]]*\])?\s*(=\s*(.*))?$`)

	funcHeaderRe = regexp.MustCompile(
		`^\s*(?:static\s+|extern\s+|inline\s+)*` +
			baseTypeRe + `[\s*]+([A-Za-z_]\w*)\s*\(([^)]*)\)\s*\{?\s*$`)
)

// controlKeywords 不允许作为变量/函数名的关键字
var controlKeywords = map[string]bool{
	"if": true, "else": true, "for": true, "while": true, "do": true,
	"switch": true, "case": true, "return": true, "break": true,
	"continue": true, "goto": true, "sizeof": true, "default": true,
	"struct": true, "union": true, "enum": true, "typedef": true,
}

// ClassifyDeclarations 对一行净化后的源码做声明识别
// 识别成功返回若干 Declaration（一行可声明多个变量），未识别返回 nil。
// scope 为该行所属作用域，声明会写入其中；形参不会被覆盖。
func ClassifyDeclarations(cleanLine string, line int, scope *Scope) []*Declaration {
	// 对象声明行以分号结束；函数头由作用域构建器单独处理
	trimmed := strings.TrimSpace(cleanLine)
	if trimmed == "" || !strings.HasSuffix(trimmed, ";") {
		return nil
	}

	// 排除 return/控制流开头
	first := firstWord(trimmed)
	if controlKeywords[first] && first != "struct" && first != "union" && first != "enum" {
		return nil
	}

	m := declLineRe.FindStringSubmatch(strings.TrimSuffix(trimmed, ";"))
	if m == nil {
		return nil
	}

	qualifiers := m[1]
	baseType := strings.Join(strings.Fields(m[2]), " ")
	rest := strings.TrimSpace(m[3])

	// 函数头形如 `int f(...)`：'=' 之前出现括号说明声明器是函数，跳过。
	// 初始化表达式里的调用（`int *p = malloc(4);`）不受影响
	if paren := strings.IndexByte(rest, '('); paren >= 0 {
		eq := strings.IndexByte(rest, '=')
		if eq < 0 || paren < eq {
			return nil
		}
	}

	isStatic := strings.Contains(qualifiers, "static")
	isConst := strings.Contains(qualifiers, "const")
	isExtern := strings.Contains(qualifiers, "extern")

	var decls []*Declaration
	for _, declarator := range splitDeclarators(rest) {
		dm := declaratorNameRe.FindStringSubmatch(declarator)
		if dm == nil {
			continue
		}
		name := dm[2]
		if controlKeywords[name] {
			continue
		}

		d := &Declaration{
			Name:      name,
			Type:      baseType,
			IsPointer: dm[1] != "",
			IsArray:   dm[3] != "",
			IsStatic:  isStatic,
			IsConst:   isConst,
			IsExtern:  isExtern,
			Line:      line,
			Scope:     scope,
			State:     initialStateFor(isStatic, isConst, isExtern, dm[1] != "", dm[3] != "", dm[4] != ""),
		}
		decls = append(decls, d)

		if scope != nil {
			scope.Insert(d)
		}
	}

	return decls
}

// initialStateFor 推导声明时刻的初始状态
//   - 带初始化表达式 -> 已初始化
//   - extern -> 已初始化（定义在别处）
//   - static 非指针标量 -> 已初始化（语言保证零初始化，风格问题单独报告）
//   - 其余 -> 未初始化
func initialStateFor(isStatic, isConst, isExtern, isPointer, isArray, hasInit bool) InitState {
	switch {
	case hasInit:
		return StateInitialized
	case isExtern:
		return StateInitialized
	case isStatic && !isPointer:
		return StateInitialized
	case isArray:
		// 数组名本身可作指针使用，声明即分配了存储
		return StateInitialized
	}
	return StateUninitialized
}

// splitDeclarators 在顶层逗号处拆分声明器列表
// `a, b = f(x, y), *c` -> ["a", "b = f(x, y)", "*c"]
func splitDeclarators(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// ParseFunctionHeader 识别函数定义头，返回 (函数名, 形参声明文本, 是否匹配)
func ParseFunctionHeader(cleanLine string) (string, string, bool) {
	m := funcHeaderRe.FindStringSubmatch(cleanLine)
	if m == nil {
		return "", "", false
	}
	name := m[1]
	if controlKeywords[name] {
		return "", "", false
	}
	return name, m[2], true
}

// ClassifyParameters 解析形参列表并注入函数作用域
// 形参不变式：创建即已初始化，且不会被后续本地声明覆盖
func ClassifyParameters(paramList string, line int, scope *Scope) []*Declaration {
	paramList = strings.TrimSpace(paramList)
	if paramList == "" || paramList == "void" {
		return nil
	}

	var decls []*Declaration
	for _, p := range splitDeclarators(paramList) {
		p = strings.TrimSpace(p)
		if p == "" || p == "..." {
			continue
		}
		name, isPointer, isArray, baseType := parseOneParam(p)
		if name == "" {
			continue
		}
		d := &Declaration{
			Name:      name,
			Type:      baseType,
			IsPointer: isPointer,
			IsArray:   isArray,
			IsParam:   true,
			Line:      line,
			Scope:     scope,
			State:     StateInitialized,
		}
		decls = append(decls, d)
		if scope != nil {
			scope.Insert(d)
		}
	}
	return decls
}

// parseOneParam 解析单个形参声明，取最后一个标识符为形参名
func parseOneParam(p string) (name string, isPointer, isArray bool, baseType string) {
	isPointer = strings.Contains(p, "*")
	if idx := strings.Index(p, "["); idx >= 0 {
		isArray = true
		p = p[:idx]
	}

	fields := strings.FieldsFunc(p, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '*'
	})
	if len(fields) == 0 {
		return "", false, false, ""
	}

	last := fields[len(fields)-1]
	if !isIdentStart(last[0]) || controlKeywords[last] {
		return "", false, false, ""
	}
	// 纯类型形参（如 `int`）没有名字
	if len(fields) == 1 && isTypeWord(last) {
		return "", false, false, ""
	}

	return last, isPointer, isArray, strings.Join(fields[:len(fields)-1], " ")
}

// isTypeWord 判断是否为基础类型关键字
func isTypeWord(w string) bool {
	switch w {
	case "int", "char", "float", "double", "long", "short",
		"unsigned", "signed", "void", "bool", "size_t", "FILE",
		"const", "struct", "union", "enum":
		return true
	}
	return false
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
