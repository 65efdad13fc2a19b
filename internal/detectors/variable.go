package detectors

import (
	"fmt"

	"cscan/internal/core"
)

// VariableDetector 变量初始化与使用检测器
// 非指针标量的生命周期问题由它负责（指针类问题归内存检测器）：
//  1. 声明后未初始化即读取
//  2. const 变量声明时未初始化
//  3. static 变量依赖隐式零初始化（风格提示）
//  4. 声明后从未使用
type VariableDetector struct {
	core.BaseDetector
}

// NewVariableDetector 创建变量检测器
func NewVariableDetector() *VariableDetector {
	return &VariableDetector{core.NewBaseDetector("variable-state", core.DetectorVariable)}
}

// Run 实现 core.Detector
func (d *VariableDetector) Run(fc *core.FileContext) ([]core.Finding, error) {
	var out []core.Finding
	out = append(out, d.uninitReads(fc)...)
	out = append(out, d.declarationStyle(fc)...)
	out = append(out, d.unusedVariables(fc)...)
	return out, nil
}

// uninitReads 未初始化即读取（非指针）
// 状态追踪器对同一变量只记首次，这里不再额外去重
func (d *VariableDetector) uninitReads(fc *core.FileContext) []core.Finding {
	var out []core.Finding
	for _, ev := range fc.States.UninitUses {
		if ev.Decl.IsPointer {
			continue
		}
		out = append(out, d.NewFinding(core.KindUninitVariable, fc.FilePath, ev.Line, ev.Decl.Name,
			fmt.Sprintf("Variable '%s' used before initialization (declared at line %d)", ev.Decl.Name, ev.Decl.Line),
			fmt.Sprintf("Initialize '%s' at its declaration", ev.Decl.Name)))
	}
	return out
}

// declarationStyle const/static 声明检查
func (d *VariableDetector) declarationStyle(fc *core.FileContext) []core.Finding {
	var out []core.Finding
	fc.Scopes.Walk(func(s *core.Scope) {
		for _, decl := range s.Declarations() {
			if decl.IsParam || decl.IsExtern {
				continue
			}
			hasInit := core.DeclInitializer(fc.Line(decl.Line), decl.Name) != ""

			if decl.IsConst && !hasInit {
				out = append(out, d.NewFinding(core.KindConstUninit, fc.FilePath, decl.Line, decl.Name,
					fmt.Sprintf("Const variable '%s' declared without an initializer", decl.Name),
					fmt.Sprintf("Const variables cannot be assigned later; initialize '%s' at declaration", decl.Name)))
			}
			if decl.IsStatic && !hasInit {
				out = append(out, d.NewFinding(core.KindStaticImplicit, fc.FilePath, decl.Line, decl.Name,
					fmt.Sprintf("Static variable '%s' relies on implicit zero initialization", decl.Name),
					fmt.Sprintf("Make the initial value of '%s' explicit", decl.Name)))
			}
		}
	})
	return out
}

// unusedVariables 声明后从未使用
// 读计数为零时再用文本做一次整词确认：只被写过的变量不按未使用报告，
// 全局变量可能被其它编译单元引用，跳过
func (d *VariableDetector) unusedVariables(fc *core.FileContext) []core.Finding {
	var out []core.Finding
	fc.Scopes.Walk(func(s *core.Scope) {
		if s.Kind == core.ScopeGlobal || s.Aggregate {
			return
		}
		for _, decl := range s.Declarations() {
			if decl.IsParam || decl.IsExtern || decl.Reads > 0 {
				continue
			}
			if mentionsBeyondDecl(fc, s, decl) {
				continue
			}
			out = append(out, d.NewFinding(core.KindUnusedVariable, fc.FilePath, decl.Line, decl.Name,
				fmt.Sprintf("Variable '%s' is declared but never used", decl.Name),
				fmt.Sprintf("Remove '%s' or use it", decl.Name)))
		}
	})
	return out
}

// mentionsBeyondDecl 变量名是否在声明行之外的作用域文本里出现
func mentionsBeyondDecl(fc *core.FileContext, s *core.Scope, decl *core.Declaration) bool {
	end := s.EndLine
	if end == 0 || end > fc.LineCount() {
		end = fc.LineCount()
	}
	for n := s.StartLine; n <= end; n++ {
		if n == decl.Line {
			continue
		}
		if wordIn(fc.Line(n), decl.Name) {
			return true
		}
	}
	return false
}
