package core

import (
	"regexp"
	"strings"

	"github.com/golang/glog"
)

// UseEvent 回放过程中观察到的一次可疑使用
type UseEvent struct {
	Decl  *Declaration
	Line  int
	Deref bool      // 解引用上下文：*p、p->m、p[i]
	State InitState // 使用时刻的状态
}

// TrackerResult 状态回放的产物，供各检测器按类别取用
type TrackerResult struct {
	UninitUses  []UseEvent // 未初始化即读取
	InvalidUses []UseEvent // free 后读取
	DoubleFrees []UseEvent // 重复 free
	Tainted     []*Declaration
	Allocs      *AllocationTable
}

// StateTracker 过程内状态追踪器
// 在作用域树之上按语句流回放，推进每个声明的生命周期状态，
// 回答"此处读取该变量是否安全"。循环与分支体按可能执行零次处理：
// 进入条件/循环块时记快照，退出时回滚块内的状态变更（入口前已
// 初始化的不受影响）——这是不做真正路径敏感分析时的保守近似。
type StateTracker struct {
	tree      *ScopeTree
	stmts     []Statement
	summaries SummaryTable

	res    *TrackerResult
	frames []*stateFrame
	cur    *Scope
}

// stateFrame 条件/循环块的状态快照（写时保存）
type stateFrame struct {
	scope *Scope
	saved map[*Declaration]InitState
}

// NewStateTracker 创建状态追踪器；summaries 可为 nil（跳过跨函数污点）
func NewStateTracker(tree *ScopeTree, stmts []Statement, summaries SummaryTable) *StateTracker {
	return &StateTracker{
		tree:      tree,
		stmts:     stmts,
		summaries: summaries,
		res: &TrackerResult{
			Allocs: NewAllocationTable(),
		},
	}
}

var (
	freeCallRe  = regexp.MustCompile(`\bfree\s*\(\s*([A-Za-z_]\w*)\s*\)`)
	allocCallRe = regexp.MustCompile(`\b(malloc|calloc|realloc)\s*\(`)
)

// Replay 执行一次完整回放
func (t *StateTracker) Replay() *TrackerResult {
	t.cur = t.tree.Global

	for _, st := range t.stmts {
		t.transitionTo(st.Scope)

		if st.Scope.inAggregate() {
			continue
		}
		// 括号无法配平的语句结构不明，跳过而不猜测（漏报优于误报）
		if strings.Count(st.Text, "(") != strings.Count(st.Text, ")") {
			glog.V(2).Infof("line %d: unbalanced parens, statement skipped", st.Line)
			continue
		}

		t.replayStatement(st)
	}

	// 收尾回滚（对结果无影响，保持帧栈干净）
	for len(t.frames) > 0 {
		t.popFrame()
	}

	return t.res
}

// transitionTo 处理语句间的作用域切换：退出的条件/循环块回滚快照，
// 进入的条件/循环块开新帧
func (t *StateTracker) transitionTo(target *Scope) {
	if target == t.cur {
		return
	}

	// 回滚所有已经不再包围 target 的帧
	for len(t.frames) > 0 {
		f := t.frames[len(t.frames)-1]
		if isAncestorOrSelf(f.scope, target) {
			break
		}
		t.popFrame()
	}

	// 为新进入的条件/循环作用域开帧（由外向内）
	var entered []*Scope
	for s := target; s != nil && !t.hasFrame(s); s = s.Parent {
		if s == t.cur || isAncestorOrSelf(s, t.cur) {
			break
		}
		if s.Conditional || s.Loop {
			entered = append(entered, s)
		}
	}
	for i := len(entered) - 1; i >= 0; i-- {
		t.frames = append(t.frames, &stateFrame{
			scope: entered[i],
			saved: make(map[*Declaration]InitState),
		})
	}

	t.cur = target
}

func (t *StateTracker) hasFrame(s *Scope) bool {
	for _, f := range t.frames {
		if f.scope == s {
			return true
		}
	}
	return false
}

// popFrame 弹出最内层帧并恢复其保存的状态
func (t *StateTracker) popFrame() {
	f := t.frames[len(t.frames)-1]
	t.frames = t.frames[:len(t.frames)-1]
	for d, st := range f.saved {
		d.State = st
	}
}

// setState 推进声明状态；写发生在条件/循环块内且变量声明于块外时，
// 先把旧值存进最内层相关帧，块退出即回滚
func (t *StateTracker) setState(d *Declaration, st InitState) {
	for i := len(t.frames) - 1; i >= 0; i-- {
		f := t.frames[i]
		if isAncestorOrSelf(f.scope, d.Scope) {
			// 变量声明于帧作用域之内，状态随声明一起消亡，无需保存
			continue
		}
		if _, ok := f.saved[d]; !ok {
			f.saved[d] = d.State
		}
		break
	}
	d.State = st
}

// isAncestorOrSelf 判断 a 是否为 b 的祖先（含自身）
func isAncestorOrSelf(a, b *Scope) bool {
	for cur := b; cur != nil; cur = cur.Parent {
		if cur == a {
			return true
		}
	}
	return false
}

// replayStatement 回放单条语句
func (t *StateTracker) replayStatement(st Statement) {
	text := st.Text

	// free 调用：持有变量失效
	if m := freeCallRe.FindStringSubmatch(text); m != nil {
		t.replayFree(m[1], st)
		return
	}

	// 声明语句：只检查初始化表达式里的读取
	if decls := declaredOnStatement(st); decls != nil {
		for _, d := range decls {
			if init := initializerOf(text, d.Name); init != "" {
				t.replayDeclInit(d, init, st)
			}
		}
		return
	}

	// 赋值语句
	if lhs, rhs, ok := splitAssignment(text); ok {
		t.checkReads(rhs, st, "")
		t.replayAssign(lhs, rhs, st)
		return
	}

	// 其余语句：全部标识符按读取检查
	t.checkReads(text, st, "")
}

// replayFree 处理 free(var)
func (t *StateTracker) replayFree(name string, st Statement) {
	d := t.tree.FindDeclaration(name, st.Line)
	if d == nil {
		// 外部指针的 free 被容忍，本身不构成发现
		return
	}

	if d.State == StateInvalidated {
		t.res.DoubleFrees = append(t.res.DoubleFrees, UseEvent{Decl: d, Line: st.Line, State: d.State})
	}
	t.res.Allocs.MarkFreed(d.ID(), st.Line)
	t.setState(d, StateInvalidated)
}

// replayDeclInit 处理声明处的初始化表达式
func (t *StateTracker) replayDeclInit(d *Declaration, init string, st Statement) {
	if allocCallRe.MatchString(init) {
		t.recordAllocation(d, init, st)
		return
	}
	if callee := calleeOf(init); callee != "" {
		t.applyCallEffects(d, callee, st)
		return
	}
	t.checkReads(init, st, d.Name)
}

// replayAssign 处理赋值语句的左侧
func (t *StateTracker) replayAssign(lhs string, rhs string, st Statement) {
	lhs = strings.TrimSpace(lhs)

	// 解引用写：*p = ... / p->m = ... / p[i] = ...
	// 写穿指针要求指针本身可用，检查基变量
	if base, deref := derefBase(lhs); deref {
		t.checkIdentUse(base, st, true)
		return
	}

	name := plainIdent(lhs)
	if name == "" {
		return
	}
	d := t.tree.FindDeclaration(name, st.Line)
	if d == nil {
		return
	}

	// 分配调用：建立/刷新分配记录并转为已初始化
	if allocCallRe.MatchString(rhs) {
		t.recordAllocation(d, rhs, st)
		return
	}

	// 调用返回值：摘要说返回被污染时强制转为未初始化
	if callee := calleeOf(rhs); callee != "" {
		t.applyCallEffects(d, callee, st)
		return
	}

	// 普通赋值是写；写总是安全的，只有读才要求先初始化
	t.setState(d, StateInitialized)
}

// recordAllocation 登记一次分配并把持有变量转为已初始化
func (t *StateTracker) recordAllocation(d *Declaration, rhs string, st Statement) {
	kind := AllocMalloc
	switch allocCallRe.FindStringSubmatch(rhs)[1] {
	case "calloc":
		kind = AllocCalloc
	case "realloc":
		kind = AllocRealloc
	}

	funcName := ""
	if fn := st.Scope.EnclosingFunction(); fn != nil {
		funcName = fn.FuncName
	}

	t.res.Allocs.Record(&AllocationRecord{
		Owner:     d.ID(),
		OwnerName: d.Name,
		Kind:      kind,
		Line:      st.Line,
		Func:      funcName,
	})
	t.setState(d, StateInitialized)
}

// applyCallEffects 处理 lhs = callee(...) 的跨函数效应
func (t *StateTracker) applyCallEffects(d *Declaration, callee string, st Statement) {
	sum := t.summaries[callee]

	if sum != nil && sum.TaintsReturn {
		// 污点覆盖一切本地证据：接收变量强制回到未初始化
		if d.TaintSource == "" {
			t.res.Tainted = append(t.res.Tainted, d)
		}
		d.TaintSource = callee
		t.setState(d, StateUninitialized)
		glog.V(1).Infof("line %d: %s tainted by return of %s", st.Line, d.Name, callee)
		return
	}

	if sum != nil && len(sum.ReturnsOwned) > 0 {
		// 被调函数把分配的所有权交给了接收方
		funcName := ""
		if fn := st.Scope.EnclosingFunction(); fn != nil {
			funcName = fn.FuncName
		}
		t.res.Allocs.Record(&AllocationRecord{
			Owner:     d.ID(),
			OwnerName: d.Name,
			Kind:      AllocReturned,
			Line:      st.Line,
			Func:      funcName,
			FromCall:  callee,
		})
	}

	t.setState(d, StateInitialized)
}

// checkReads 检查表达式文本中所有按值读取的标识符
// skipName 用于声明初始化场景，跳过声明器自身的名字
func (t *StateTracker) checkReads(expr string, st Statement, skipName string) {
	for _, use := range identifierUses(expr) {
		if use.name == skipName {
			continue
		}
		if use.addressOf {
			// 取地址按输出参数对待：scanf(&x) 之后 x 视为已初始化
			d := t.tree.FindDeclaration(use.name, st.Line)
			if d != nil && d.State == StateUninitialized && d.TaintSource == "" {
				t.setState(d, StateInitialized)
			}
			continue
		}
		t.checkIdentUse(use.name, st, use.deref)
	}
}

// checkIdentUse 检查单个标识符的读取
func (t *StateTracker) checkIdentUse(name string, st Statement, deref bool) {
	d := t.tree.FindDeclaration(name, st.Line)
	if d == nil || d.Scope.inAggregate() {
		return
	}

	d.Reads++

	// 污点变量：聚合全部使用行，由内存检测器合并成一条报告
	if d.TaintSource != "" && d.State == StateUninitialized {
		d.TaintUses = append(d.TaintUses, st.Line)
		return
	}

	switch d.State {
	case StateUninitialized:
		t.res.UninitUses = append(t.res.UninitUses, UseEvent{Decl: d, Line: st.Line, Deref: deref, State: d.State})
		// 首次报告后视作已初始化，避免同一变量重复轰炸
		t.setState(d, StateInitialized)
	case StateInvalidated:
		t.res.InvalidUses = append(t.res.InvalidUses, UseEvent{Decl: d, Line: st.Line, Deref: deref, State: d.State})
		t.setState(d, StateInitialized)
	}
}
