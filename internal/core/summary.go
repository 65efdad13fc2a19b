package core

import (
	"regexp"
	"strings"

	"github.com/golang/glog"
)

// ReturnSite 一处 return 语句
type ReturnSite struct {
	Line int
	Expr string
}

// FunctionSummary 函数摘要
// 单次前向遍历构建，之后只读。核心事实是 TaintsReturn：
// 函数是否可能把本地未初始化的指针作为返回值带出去
type FunctionSummary struct {
	Name      string
	StartLine int
	EndLine   int

	Params           []string
	DeclaredPointers []*Declaration
	UninitAtExit     []string // 到达函数尾部仍未初始化的本地指针名
	ReturnSites      []ReturnSite

	TaintsReturn bool
	// 返回表达式中可能携带所有权的本地分配指针名
	ReturnsOwned []string
}

// SummaryTable 按函数名索引的摘要集合
type SummaryTable map[string]*FunctionSummary

var returnStmtRe = regexp.MustCompile(`^\s*return\b\s*(.*?)\s*;?\s*$`)

// BuildSummaries 为每个函数体做一次前向遍历生成摘要
// 调用点消费摘要时只读；摘要是启发式的，赋值出现在哪个分支不影响判定
func BuildSummaries(tree *ScopeTree, stmts []Statement) SummaryTable {
	table := make(SummaryTable)

	for _, fn := range tree.Functions() {
		s := &FunctionSummary{
			Name:      fn.FuncName,
			StartLine: fn.StartLine,
			EndLine:   fn.EndLine,
		}

		// 形参与本地指针声明
		collectFunctionDecls(fn, s)

		// 函数范围内的语句：赋值观察 + return 收集
		assigned := make(map[string]bool)
		for _, st := range stmts {
			if st.Scope.EnclosingFunction() != fn {
				continue
			}
			observeAssignments(st.Text, assigned)
			if m := returnStmtRe.FindStringSubmatch(st.Text); m != nil {
				s.ReturnSites = append(s.ReturnSites, ReturnSite{Line: st.Line, Expr: m[1]})
			}
		}

		// 到达函数尾部仍未初始化的本地指针
		for _, d := range s.DeclaredPointers {
			if d.State == StateUninitialized && !assigned[d.Name] {
				s.UninitAtExit = append(s.UninitAtExit, d.Name)
			}
			if d.State == StateInitialized || assigned[d.Name] {
				// 被赋过值的指针可能携带分配所有权
				s.ReturnsOwned = appendIfReturned(s.ReturnsOwned, d.Name, s.ReturnSites)
			}
		}

		// return 表达式文本引用了未初始化指针 -> 污染返回值
		for _, name := range s.UninitAtExit {
			if exprReferences(s.ReturnSites, name) {
				s.TaintsReturn = true
				glog.V(1).Infof("function %s taints its return value via %s", s.Name, name)
				break
			}
		}

		table[s.Name] = s
	}

	return table
}

// collectFunctionDecls 收集函数作用域（含嵌套块）里的形参与指针声明
func collectFunctionDecls(fn *Scope, s *FunctionSummary) {
	var walk func(*Scope)
	walk = func(sc *Scope) {
		for _, d := range sc.Declarations() {
			if d.IsParam {
				s.Params = append(s.Params, d.Name)
				continue
			}
			if d.IsPointer {
				s.DeclaredPointers = append(s.DeclaredPointers, d)
			}
		}
		for _, c := range sc.Children {
			if c.Kind == ScopeFunction {
				continue
			}
			walk(c)
		}
	}
	walk(fn)
}

var assignTargetRe = regexp.MustCompile(`(^|[;(\s])\*?\s*([A-Za-z_]\w*)\s*=[^=]`)

// observeAssignments 记录语句中被赋值的变量名
func observeAssignments(text string, assigned map[string]bool) {
	for _, m := range assignTargetRe.FindAllStringSubmatch(text, -1) {
		assigned[m[2]] = true
	}
}

// exprReferences 返回表达式是否按词引用了变量名
func exprReferences(sites []ReturnSite, name string) bool {
	for _, rs := range sites {
		if containsWord(rs.Expr, name) {
			return true
		}
	}
	return false
}

// appendIfReturned 当 return 表达式引用 name 时将其追加进列表
func appendIfReturned(list []string, name string, sites []ReturnSite) []string {
	if exprReferences(sites, name) {
		for _, existing := range list {
			if existing == name {
				return list
			}
		}
		return append(list, name)
	}
	return list
}

// containsWord 按标识符边界匹配整词
func containsWord(s, word string) bool {
	idx := strings.Index(s, word)
	for idx >= 0 {
		leftOK := idx == 0 || !isIdentPart(s[idx-1])
		right := idx + len(word)
		rightOK := right >= len(s) || !isIdentPart(s[right])
		if leftOK && rightOK {
			return true
		}
		next := strings.Index(s[idx+1:], word)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}
