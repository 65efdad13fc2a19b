package detectors

import (
	"fmt"
	"regexp"
	"strings"

	"cscan/internal/core"
)

// MemoryDetector 指针与堆内存生命周期检测器
// 消费状态追踪器与分配表的产物：
//  1. 野指针解引用（未初始化指针被解引用/读取）
//  2. use-after-free 与 double-free
//  3. NULL 指针解引用
//  4. 内存泄漏（含跨函数所有权传递）
//  5. 分配结果未做 NULL 检查
//  6. 函数返回的未初始化指针（跨函数污点，聚合报告）
type MemoryDetector struct {
	core.BaseDetector
}

// NewMemoryDetector 创建内存检测器
func NewMemoryDetector() *MemoryDetector {
	return &MemoryDetector{core.NewBaseDetector("memory-safety", core.DetectorMemory)}
}

// Run 实现 core.Detector
func (d *MemoryDetector) Run(fc *core.FileContext) ([]core.Finding, error) {
	var out []core.Finding
	out = append(out, d.pointerUses(fc)...)
	out = append(out, d.doubleFrees(fc)...)
	out = append(out, d.nullDerefs(fc)...)
	out = append(out, d.leaks(fc)...)
	out = append(out, d.uncheckedAllocs(fc)...)
	out = append(out, d.taintedReturns(fc)...)
	return out, nil
}

// pointerUses 未初始化指针的使用与 free 后的使用
func (d *MemoryDetector) pointerUses(fc *core.FileContext) []core.Finding {
	var out []core.Finding

	for _, ev := range fc.States.UninitUses {
		if !ev.Decl.IsPointer {
			continue
		}
		if ev.Deref {
			f := d.NewFinding(core.KindWildPointerDeref, fc.FilePath, ev.Line, ev.Decl.Name,
				fmt.Sprintf("Pointer '%s' dereferenced before assignment (declared at line %d)", ev.Decl.Name, ev.Decl.Line),
				fmt.Sprintf("Assign allocated memory or a valid address to '%s' before dereferencing", ev.Decl.Name))
			out = append(out, f)
			continue
		}
		f := d.NewFinding(core.KindUninitVariable, fc.FilePath, ev.Line, ev.Decl.Name,
			fmt.Sprintf("Pointer '%s' used before initialization (declared at line %d)", ev.Decl.Name, ev.Decl.Line),
			fmt.Sprintf("Initialize '%s' at its declaration, e.g. with NULL", ev.Decl.Name))
		out = append(out, f)
	}

	for _, ev := range fc.States.InvalidUses {
		freedAt := 0
		if rec, ok := fc.States.Allocs.Active(ev.Decl.ID()); ok && rec.Freed {
			freedAt = rec.FreedLine
		}
		msg := fmt.Sprintf("Variable '%s' used after free (used at line %d)", ev.Decl.Name, ev.Line)
		if freedAt > 0 {
			msg = fmt.Sprintf("Variable '%s' used after free (freed at line %d, used at line %d)", ev.Decl.Name, freedAt, ev.Line)
		}
		f := d.NewFinding(core.KindUseAfterFree, fc.FilePath, ev.Line, ev.Decl.Name,
			msg, fmt.Sprintf("Set '%s' to NULL after free, or move the use before the free", ev.Decl.Name))
		out = append(out, f)
	}

	return out
}

// doubleFrees 重复释放
func (d *MemoryDetector) doubleFrees(fc *core.FileContext) []core.Finding {
	var out []core.Finding
	for _, ev := range fc.States.DoubleFrees {
		msg := fmt.Sprintf("Pointer '%s' freed more than once (second free at line %d)", ev.Decl.Name, ev.Line)
		if rec, ok := fc.States.Allocs.Active(ev.Decl.ID()); ok && rec.Freed {
			msg = fmt.Sprintf("Pointer '%s' freed more than once (first free at line %d, again at line %d)",
				ev.Decl.Name, rec.FreedLine, ev.Line)
		}
		out = append(out, d.NewFinding(core.KindDoubleFree, fc.FilePath, ev.Line, ev.Decl.Name,
			msg, fmt.Sprintf("Set '%s' to NULL after the first free", ev.Decl.Name)))
	}
	return out
}

var (
	nullAssignRe = regexp.MustCompile(`(?:^|[;{(\s])\**\s*([A-Za-z_]\w*)\s*=\s*NULL\b`)
	assignLhsRe  = regexp.MustCompile(`(?:^|[;{(\s])(\**)\s*([A-Za-z_]\w*)\s*=[^=]`)
)

// derefPatternRe 某个名字的解引用形式
func derefPatternRe(name string) *regexp.Regexp {
	q := regexp.QuoteMeta(name)
	return regexp.MustCompile(`\*\s*` + q + `\b|\b` + q + `\s*->|\b` + q + `\s*\[`)
}

// nullDerefs NULL 指针解引用
// 语句流上的轻量前向扫描：置 NULL 后未经重赋值或判空防护即解引用则报告。
// if/while 中出现该变量即视为防护，宁可漏报
func (d *MemoryDetector) nullDerefs(fc *core.FileContext) []core.Finding {
	var out []core.Finding
	nullAt := make(map[*core.Declaration]int)

	for _, st := range fc.Statements {
		// 判空防护
		if strings.HasPrefix(st.Text, "if") || strings.HasPrefix(st.Text, "while") {
			for decl := range nullAt {
				if wordIn(st.Text, decl.Name) {
					delete(nullAt, decl)
				}
			}
			continue
		}

		// 解引用检查先于本语句的赋值生效（`*p = 1` 本身就是解引用写）
		for decl, setLine := range nullAt {
			if derefPatternRe(decl.Name).MatchString(st.Text) {
				out = append(out, d.NewFinding(core.KindNullPointerDeref, fc.FilePath, st.Line, decl.Name,
					fmt.Sprintf("Null pointer '%s' dereferenced (set to NULL at line %d)", decl.Name, setLine),
					fmt.Sprintf("Check '%s' against NULL before dereferencing", decl.Name)))
				delete(nullAt, decl)
			}
		}

		if m := nullAssignRe.FindStringSubmatch(st.Text); m != nil {
			if decl := fc.Scopes.FindDeclaration(m[1], st.Line); decl != nil && decl.IsPointer {
				nullAt[decl] = st.Line
			}
			continue
		}
		// 其它形式的重赋值解除 NULL 标记
		if m := assignLhsRe.FindStringSubmatch(st.Text); m != nil && m[1] == "" {
			if decl := fc.Scopes.FindDeclaration(m[2], st.Line); decl != nil {
				delete(nullAt, decl)
			}
		}
	}

	return out
}

// leaks 未释放的分配
// 所有权随返回值转移给调用方的分配不算泄漏
func (d *MemoryDetector) leaks(fc *core.FileContext) []core.Finding {
	var out []core.Finding
	for _, rec := range fc.States.Allocs.All() {
		if rec.Freed {
			continue
		}
		if sum, ok := fc.Summaries[rec.Func]; ok && containsName(sum.ReturnsOwned, rec.OwnerName) {
			continue
		}

		src := rec.Kind.String()
		if rec.Kind == core.AllocReturned {
			src = rec.FromCall + "()"
		}
		out = append(out, d.NewFinding(core.KindMemoryLeak, fc.FilePath, rec.Line, rec.OwnerName,
			fmt.Sprintf("Memory allocated by %s at line %d is never released (pointer '%s')", src, rec.Line, rec.OwnerName),
			fmt.Sprintf("Add free(%s) before the pointer goes out of scope", rec.OwnerName)))
	}
	return out
}

// nullCheckWindow 分配行之后认定判空的行数窗口
const nullCheckWindow = 5

// uncheckedAllocs 分配结果未判空
// 分配行起 5 行内出现对持有变量的 if/assert/NULL 比较即认定已检查
func (d *MemoryDetector) uncheckedAllocs(fc *core.FileContext) []core.Finding {
	var out []core.Finding
	for _, rec := range fc.States.Allocs.All() {
		if rec.Kind == core.AllocReturned {
			continue
		}

		checked := false
		for n := rec.Line; n < rec.Line+nullCheckWindow && n <= fc.LineCount(); n++ {
			line := fc.Line(n)
			if !wordIn(line, rec.OwnerName) {
				continue
			}
			if strings.Contains(line, "NULL") || wordIn(line, "if") || wordIn(line, "assert") ||
				strings.Contains(line, "!"+rec.OwnerName) {
				checked = true
				break
			}
		}
		if checked {
			continue
		}

		out = append(out, d.NewFinding(core.KindMallocNullCheck, fc.FilePath, rec.Line, rec.OwnerName,
			fmt.Sprintf("Result of %s at line %d is not checked against NULL", rec.Kind, rec.Line),
			fmt.Sprintf("Check '%s' for NULL before first use", rec.OwnerName)))
	}
	return out
}

// taintedReturns 跨函数污点：接收了可能未初始化的返回值
// 同一接收变量的全部使用点聚合成一条报告，消息点名被调函数
func (d *MemoryDetector) taintedReturns(fc *core.FileContext) []core.Finding {
	var out []core.Finding
	for _, decl := range fc.States.Tainted {
		if len(decl.TaintUses) == 0 {
			continue
		}
		lines := make([]string, len(decl.TaintUses))
		for i, n := range decl.TaintUses {
			lines[i] = fmt.Sprintf("%d", n)
		}
		out = append(out, d.NewFinding(core.KindWildPointerDeref, fc.FilePath, decl.TaintUses[0], decl.Name,
			fmt.Sprintf("Variable '%s' may hold an uninitialized pointer returned by %s() (used at lines %s)",
				decl.Name, decl.TaintSource, strings.Join(lines, ", ")),
			fmt.Sprintf("Initialize the pointer inside %s() on all return paths", decl.TaintSource)))
	}
	return out
}

// wordIn 按标识符边界匹配整词
func wordIn(s, word string) bool {
	idx := strings.Index(s, word)
	for idx >= 0 {
		leftOK := idx == 0 || !isIdentByte(s[idx-1])
		right := idx + len(word)
		rightOK := right >= len(s) || !isIdentByte(s[right])
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

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func containsName(list []string, name string) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}
