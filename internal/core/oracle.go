package core

import (
	"context"
	"errors"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
)

// ErrOracleParse tree-sitter 解析失败或语法树含错误节点
// 调用方捕获后应降级到正则实现，而不是放弃整个文件
var ErrOracleParse = errors.New("syntax oracle: parse failed")

// cParserPool Parser 实例池
// 每个 goroutine 取独立 Parser，避免全局锁成为并发瓶颈
var cParserPool = sync.Pool{
	New: func() interface{} {
		p := sitter.NewParser()
		p.SetLanguage(c.GetLanguage())
		return p
	},
}

// OracleSyntaxSource 基于 tree-sitter C 语法的作用域来源
// 产出与正则实现相同的 ScopeTree/Statement 模型，下游追踪器无感知。
// 相对正则实现的增益：无大括号的单语句 if/for 体也能得到独立的
// 条件/循环作用域。
type OracleSyntaxSource struct{}

// Name 实现 SyntaxSource
func (OracleSyntaxSource) Name() string { return "tree-sitter" }

// BuildScopes 实现 SyntaxSource
func (OracleSyntaxSource) BuildScopes(clean []string) (*ScopeTree, []Statement, error) {
	src := []byte(strings.Join(clean, "\n"))

	parser := cParserPool.Get().(*sitter.Parser)
	defer func() {
		parser.Reset()
		cParserPool.Put(parser)
	}()

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || root.HasError() {
		return nil, nil, ErrOracleParse
	}

	lastLine := len(clean)
	if lastLine == 0 {
		lastLine = 1
	}
	b := &oracleBuilder{src: src, tree: NewScopeTree(lastLine)}
	b.walkChildren(root, b.tree.Global)
	return b.tree, b.stmts, nil
}

// oracleBuilder 把 tree-sitter 语法树翻译成内部作用域模型
type oracleBuilder struct {
	src   []byte
	tree  *ScopeTree
	stmts []Statement
}

// text 取节点的源码文本并压平换行
func (b *oracleBuilder) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	start, end := n.StartByte(), n.EndByte()
	if end > uint32(len(b.src)) {
		end = uint32(len(b.src))
	}
	if start >= end {
		return ""
	}
	return strings.Join(strings.Fields(string(b.src[start:end])), " ")
}

// span 返回节点覆盖的行范围（1 基）
func span(n *sitter.Node) (int, int) {
	return int(n.StartPoint().Row) + 1, int(n.EndPoint().Row) + 1
}

func (b *oracleBuilder) walkChildren(n *sitter.Node, scope *Scope) {
	for i := 0; i < int(n.ChildCount()); i++ {
		b.walk(n.Child(i), scope)
	}
}

func (b *oracleBuilder) walk(n *sitter.Node, scope *Scope) {
	if n == nil {
		return
	}

	switch n.Type() {
	case "function_definition":
		b.walkFunction(n, scope)

	case "declaration":
		b.emitStatement(n, scope)

	case "expression_statement", "return_statement", "break_statement",
		"continue_statement", "goto_statement":
		b.emitStatement(n, scope)

	case "compound_statement":
		// 裸块 `{ ... }`：普通块作用域
		start, end := span(n)
		bs := b.tree.newScope(ScopeBlock, start, scope)
		bs.EndLine = end
		b.walkChildren(n, bs)

	case "if_statement":
		b.walkBranch(n, scope)

	case "while_statement", "do_statement", "for_statement":
		b.walkControlled(n, n.ChildByFieldName("body"), scope, false, true)

	case "switch_statement":
		b.walkControlled(n, n.ChildByFieldName("body"), scope, true, false)

	case "struct_specifier", "union_specifier", "enum_specifier":
		// 定义体内的成员不是变量，挂在聚合作用域下即被整体忽略
		if body := n.ChildByFieldName("body"); body != nil {
			start, end := span(n)
			as := b.tree.newScope(ScopeBlock, start, scope)
			as.EndLine = end
			as.Aggregate = true
		}

	case "preproc_if", "preproc_ifdef", "preproc_else":
		// 条件编译分支全部纳入分析
		b.walkChildren(n, scope)

	default:
		b.walkChildren(n, scope)
	}
}

// walkFunction 处理函数定义：函数体大括号即函数作用域
func (b *oracleBuilder) walkFunction(n *sitter.Node, parent *Scope) {
	name := functionNameOf(n, b)
	if name == "" {
		return
	}

	start, end := span(n)
	fs := b.tree.newScope(ScopeFunction, start, parent)
	fs.FuncName = name
	fs.EndLine = end

	if params := parameterListOf(n); params != nil {
		inner := strings.TrimSuffix(strings.TrimPrefix(b.text(params), "("), ")")
		ClassifyParameters(inner, start, fs)
	}

	if body := n.ChildByFieldName("body"); body != nil {
		b.walkChildren(body, fs)
	}
}

// walkBranch 处理 if/else：真假两臂各开一个条件作用域
// 无大括号的单语句体在这里也能拿到独立作用域，这是正则路径做不到的
func (b *oracleBuilder) walkBranch(n *sitter.Node, scope *Scope) {
	if cons := n.ChildByFieldName("consequence"); cons != nil {
		b.walkControlled(n, cons, scope, true, false)
	}
	if alt := n.ChildByFieldName("alternative"); alt != nil {
		// else if 由嵌套的 if_statement 自己处理
		if alt.Type() == "else_clause" {
			for i := 0; i < int(alt.ChildCount()); i++ {
				child := alt.Child(i)
				if child.Type() == "if_statement" {
					b.walkBranch(child, scope)
				} else if child.Type() != "else" {
					b.enterControlled(child, "else", scope, true, false)
				}
			}
		} else if alt.Type() == "if_statement" {
			b.walkBranch(alt, scope)
		} else {
			b.enterControlled(alt, "else", scope, true, false)
		}
	}
}

// walkControlled 为控制流语句建受控作用域
// 头部文本取自语句起点到体起点之间的源码（`while (1)`、`for (;;)` 原样保留），
// 与正则路径的块头格式一致；头部里的读取归属到受控作用域参与检查
func (b *oracleBuilder) walkControlled(n, body *sitter.Node, parent *Scope, conditional, loop bool) {
	if body == nil {
		return
	}
	header := ""
	if start, end := n.StartByte(), body.StartByte(); start < end && end <= uint32(len(b.src)) {
		header = strings.Join(strings.Fields(string(b.src[start:end])), " ")
	}
	b.enterControlled(body, header, parent, conditional, loop)
}

// enterControlled 建作用域、写入块头语句并下行
// body 为复合语句时直接摊平，避免多出一层无意义的嵌套块
func (b *oracleBuilder) enterControlled(body *sitter.Node, header string, parent *Scope, conditional, loop bool) {
	start, end := span(body)
	bs := b.tree.newScope(ScopeBlock, start, parent)
	bs.EndLine = end
	bs.Conditional = conditional
	bs.Loop = loop

	if header != "" && !bs.inAggregate() {
		b.stmts = append(b.stmts, Statement{Text: header, Line: start, Scope: bs})
	}

	if body.Type() == "compound_statement" {
		b.walkChildren(body, bs)
	} else {
		b.walk(body, bs)
	}
}

// emitStatement 把语句节点写入语句流，声明语句顺带登记
func (b *oracleBuilder) emitStatement(n *sitter.Node, scope *Scope) {
	text := b.text(n)
	if text == "" || scope.inAggregate() {
		return
	}
	line, _ := span(n)
	b.stmts = append(b.stmts, Statement{Text: text, Line: line, Scope: scope})

	if n.Type() == "declaration" {
		ClassifyDeclarations(text, line, scope)
	}
}

// functionNameOf 从函数定义节点递归取函数名
// declarator 可能被 pointer_declarator 包裹（`int *f()`）
func functionNameOf(n *sitter.Node, b *oracleBuilder) string {
	decl := n.ChildByFieldName("declarator")
	for decl != nil {
		switch decl.Type() {
		case "function_declarator":
			if id := decl.ChildByFieldName("declarator"); id != nil && id.Type() == "identifier" {
				return b.text(id)
			}
			return ""
		case "pointer_declarator":
			decl = decl.ChildByFieldName("declarator")
		default:
			return ""
		}
	}
	return ""
}

// parameterListOf 找到函数定义的形参列表节点
func parameterListOf(n *sitter.Node) *sitter.Node {
	decl := n.ChildByFieldName("declarator")
	for decl != nil {
		if decl.Type() == "function_declarator" {
			return decl.ChildByFieldName("parameters")
		}
		if decl.Type() == "pointer_declarator" {
			decl = decl.ChildByFieldName("declarator")
			continue
		}
		return nil
	}
	return nil
}
