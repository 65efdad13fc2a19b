package core

import (
	"strings"

	"github.com/golang/glog"
)

// ScopeKind 作用域类别
type ScopeKind int

const (
	ScopeGlobal ScopeKind = iota
	ScopeFunction
	ScopeBlock
)

// String 返回类别名称
func (k ScopeKind) String() string {
	switch k {
	case ScopeGlobal:
		return "global"
	case ScopeFunction:
		return "function"
	case ScopeBlock:
		return "block"
	}
	return "unknown"
}

// Scope 词法作用域
// 全局/函数/块三级，构成一棵以全局作用域为根的树；
// 每个作用域持有自身引入的声明，查找时由内向外逐层回退（遮蔽语义）。
type Scope struct {
	ID        int
	Kind      ScopeKind
	StartLine int
	EndLine   int // 未闭合时为 0，EOF 强制闭合后指向末行

	FuncName string // ScopeFunction 专用：函数名

	// 由块头关键字决定的执行特征，状态追踪器据此做保守合并：
	// Conditional（if/else/switch）和 Loop（for/while/do）
	// 都按"可能执行零次"处理
	Conditional bool
	Loop        bool

	// struct/union/enum 定义体：成员不作为变量参与状态追踪
	Aggregate bool

	Parent   *Scope
	Children []*Scope

	decls map[string]*Declaration
}

// Insert 插入声明；形参已存在时不覆盖（形参身份先建立且携带不同的初始化保证）
func (s *Scope) Insert(d *Declaration) {
	if s.decls == nil {
		s.decls = make(map[string]*Declaration)
	}
	if prev, ok := s.decls[d.Name]; ok && prev.IsParam {
		return
	}
	s.decls[d.Name] = d
}

// Lookup 仅查当前作用域
func (s *Scope) Lookup(name string) (*Declaration, bool) {
	d, ok := s.decls[name]
	return d, ok
}

// Declarations 返回当前作用域的全部声明（顺序不保证）
func (s *Scope) Declarations() []*Declaration {
	out := make([]*Declaration, 0, len(s.decls))
	for _, d := range s.decls {
		out = append(out, d)
	}
	return out
}

// contains 判断行号是否落在作用域范围内
func (s *Scope) contains(line int) bool {
	return line >= s.StartLine && (s.EndLine == 0 || line <= s.EndLine)
}

// EnclosingFunction 向上找到包含该作用域的函数作用域
func (s *Scope) EnclosingFunction() *Scope {
	for cur := s; cur != nil; cur = cur.Parent {
		if cur.Kind == ScopeFunction {
			return cur
		}
	}
	return nil
}

// inAggregate 判断作用域是否位于聚合类型定义体内
func (s *Scope) inAggregate() bool {
	for cur := s; cur != nil; cur = cur.Parent {
		if cur.Aggregate {
			return true
		}
	}
	return false
}

// Statement 归属已定的语句段
// 作用域构建时顺带把源文本切成语句流：在括号深度为零的 `;` 以及
// `{`/`}` 边界处切分，状态追踪器和摘要器都在语句流上回放，
// 一行多语句（`int x; printf("%d", x);`）因此不会丢失
type Statement struct {
	Text  string // 含结尾分号（若有）
	Line  int    // 语句起始行（1 基）
	Scope *Scope
}

// ScopeTree 一个文件的作用域树
type ScopeTree struct {
	Global *Scope
	nextID int
}

// NewScopeTree 创建只含全局作用域的树
func NewScopeTree(lastLine int) *ScopeTree {
	t := &ScopeTree{}
	t.Global = t.newScope(ScopeGlobal, 1, nil)
	t.Global.EndLine = lastLine
	return t
}

func (t *ScopeTree) newScope(kind ScopeKind, startLine int, parent *Scope) *Scope {
	t.nextID++
	s := &Scope{
		ID:        t.nextID,
		Kind:      kind,
		StartLine: startLine,
		Parent:    parent,
	}
	if parent != nil {
		parent.Children = append(parent.Children, s)
	}
	return s
}

// ScopeAt 返回包含指定行的最内层作用域
func (t *ScopeTree) ScopeAt(line int) *Scope {
	cur := t.Global
	for {
		var next *Scope
		for _, child := range cur.Children {
			if child.contains(line) {
				next = child
				break
			}
		}
		if next == nil {
			return cur
		}
		cur = next
	}
}

// FindDeclaration 作用域查找：从包含 line 的最内层作用域向上逐层找第一个可见声明。
// 内层同名声明自其声明行起遮蔽外层声明，直到所在作用域结束。
func (t *ScopeTree) FindDeclaration(name string, line int) *Declaration {
	for s := t.ScopeAt(line); s != nil; s = s.Parent {
		if d, ok := s.Lookup(name); ok && d.Line <= line {
			return d
		}
	}
	return nil
}

// Functions 返回全部函数作用域（按出现顺序）
func (t *ScopeTree) Functions() []*Scope {
	var out []*Scope
	var walk func(*Scope)
	walk = func(s *Scope) {
		if s.Kind == ScopeFunction {
			out = append(out, s)
		}
		for _, c := range s.Children {
			walk(c)
		}
	}
	walk(t.Global)
	return out
}

// Walk 前序遍历全部作用域
func (t *ScopeTree) Walk(fn func(*Scope)) {
	var walk func(*Scope)
	walk = func(s *Scope) {
		fn(s)
		for _, c := range s.Children {
			walk(c)
		}
	}
	walk(t.Global)
}

// FunctionByName 按函数名查找函数作用域
func (t *ScopeTree) FunctionByName(name string) *Scope {
	for _, f := range t.Functions() {
		if f.FuncName == name {
			return f
		}
	}
	return nil
}

// scopeBuilder 正则回退路径的作用域构建器
type scopeBuilder struct {
	tree  *ScopeTree
	stack []*Scope
	stmts []Statement

	seg      strings.Builder
	segLine  int // 当前语句段起始行
	parenDep int
}

func (b *scopeBuilder) top() *Scope { return b.stack[len(b.stack)-1] }

// flush 结束当前语句段并归属到栈顶作用域，返回语句文本与起始行
func (b *scopeBuilder) flush() (string, int) {
	text := strings.TrimSpace(b.seg.String())
	line := b.segLine
	b.seg.Reset()
	if text == "" {
		return "", 0
	}
	b.stmts = append(b.stmts, Statement{Text: text, Line: line, Scope: b.top()})
	return text, line
}

// BuildScopeTree 基于净化行视图构建作用域树与语句流（正则回退路径）
// 大括号深度计数 + 栈约束：未配对的 `{` 压栈新作用域，匹配的 `}` 弹栈。
// 输入截断导致的未闭合作用域在末行强制闭合，而非报错。
func BuildScopeTree(clean []string) (*ScopeTree, []Statement) {
	lastLine := len(clean)
	if lastLine == 0 {
		lastLine = 1
	}
	b := &scopeBuilder{tree: NewScopeTree(lastLine)}
	b.stack = []*Scope{b.tree.Global}

	for i, line := range clean {
		lineNo := i + 1

		for pos := 0; pos < len(line); pos++ {
			c := line[pos]

			// 段前空白不进入语句段，起始行以首个实义字节所在行为准
			if b.seg.Len() == 0 {
				if isSpaceByte(c) {
					continue
				}
				b.segLine = lineNo
			}

			switch c {
			case '(':
				b.parenDep++
				b.seg.WriteByte(c)
			case ')':
				if b.parenDep > 0 {
					b.parenDep--
				}
				b.seg.WriteByte(c)
			case ';':
				if b.parenDep > 0 {
					// for(;;) 头内部的分号不切分
					b.seg.WriteByte(c)
					continue
				}
				b.seg.WriteByte(c)
				b.classify(b.flush())
			case '{':
				header := strings.TrimSpace(b.seg.String())
				b.seg.Reset()
				b.openScope(header, lineNo)
			case '}':
				b.classify(b.flush())
				b.closeScope(lineNo)
			default:
				b.seg.WriteByte(c)
			}
		}
		// 语句可以跨行，段内换行转为空格
		if b.seg.Len() > 0 {
			b.seg.WriteByte(' ')
		}
	}

	// 残余语句段
	b.classify(b.flush())

	// EOF 强制闭合：分析在部分/非法输入上平滑降级
	for len(b.stack) > 1 {
		s := b.top()
		if s.EndLine == 0 {
			s.EndLine = lastLine
		}
		b.stack = b.stack[:len(b.stack)-1]
	}

	return b.tree, b.stmts
}

// classify 对完结的语句做声明识别（聚合体成员除外）
func (b *scopeBuilder) classify(text string, line int) {
	if text == "" || b.top().inAggregate() {
		return
	}
	ClassifyDeclarations(text, line, b.top())
}

// openScope 处理 `{`：按块头文本决定新作用域的种类与执行特征
func (b *scopeBuilder) openScope(header string, lineNo int) {
	parent := b.top()

	// 函数定义头
	if name, params, ok := ParseFunctionHeader(header); ok && parent.Kind == ScopeGlobal {
		fs := b.tree.newScope(ScopeFunction, lineNo, parent)
		fs.FuncName = name
		ClassifyParameters(params, lineNo, fs)
		b.stack = append(b.stack, fs)
		return
	}

	bs := b.tree.newScope(ScopeBlock, lineNo, parent)
	bs.Conditional, bs.Loop = blockHeaderKind(header)
	bs.Aggregate = isAggregateHeader(header)
	b.stack = append(b.stack, bs)

	// 块头本身也是语句（for/while/if 头中的读取要参与检查）
	if header != "" {
		b.stmts = append(b.stmts, Statement{Text: header, Line: lineNo, Scope: bs})
	}
}

// closeScope 处理 `}`：弹栈；下溢按内部缺陷记录并恢复
func (b *scopeBuilder) closeScope(lineNo int) {
	if len(b.stack) <= 1 {
		glog.Warningf("scope stack underflow at line %d, recovering", lineNo)
		return
	}
	closing := b.top()
	closing.EndLine = lineNo
	b.stack = b.stack[:len(b.stack)-1]
}

// blockHeaderKind 根据块头文本判断块的执行特征
func blockHeaderKind(header string) (conditional, loop bool) {
	first := firstWord(header)
	switch first {
	case "if", "switch":
		return true, false
	case "else":
		// else / else if
		return true, false
	case "for", "while", "do":
		return false, true
	}
	// `} else {` 之类残段
	if strings.Contains(header, "else") {
		return true, false
	}
	return false, false
}

// isAggregateHeader 判断是否为 struct/union/enum 定义体的块头
func isAggregateHeader(header string) bool {
	first := firstWord(header)
	if first == "typedef" {
		fields := strings.Fields(header)
		if len(fields) > 1 {
			first = fields[1]
		}
	}
	return first == "struct" || first == "union" || first == "enum"
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r'
}
