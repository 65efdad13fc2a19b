package detectors

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"cscan/internal/core"
)

// NumericDetector 数值与控制流检测器
//  1. 死循环：无条件循环体内没有任何可能的退出路径
//  2. 循环条件变量在循环体内从不变化
//  3. 浮点数作相等比较的循环条件
//  4. 整型字面量超出声明类型的表示范围
type NumericDetector struct {
	core.BaseDetector
}

// NewNumericDetector 创建数值检测器
func NewNumericDetector() *NumericDetector {
	return &NumericDetector{core.NewBaseDetector("numeric-flow", core.DetectorNumeric)}
}

// Run 实现 core.Detector
func (d *NumericDetector) Run(fc *core.FileContext) ([]core.Finding, error) {
	var out []core.Finding
	out = append(out, d.loopChecks(fc)...)
	out = append(out, d.literalOverflows(fc)...)
	return out, nil
}

var (
	infiniteLoopRe = regexp.MustCompile(`\bwhile\s*\(\s*(?:1|true)\s*\)|\bfor\s*\(\s*;\s*;\s*\)`)
	loopCondRe     = regexp.MustCompile(`\b(?:while|if)\s*\((.*)\)|\bfor\s*\([^;]*;([^;]*);`)
	condIdentRe    = regexp.MustCompile(`[A-Za-z_]\w*`)
	eqCompareRe    = regexp.MustCompile(`[^!<>=]==[^=]|!=`)
)

// 循环体内可能退出的关键字
var exitWords = []string{"break", "return", "goto", "exit", "abort", "longjmp"}

// loopChecks 针对循环作用域的检查
// 循环头是循环作用域里的第一条语句，体范围取作用域的行区间;
// break 可达性只看文本出现，不做嵌套深度判断（宁可漏报）
func (d *NumericDetector) loopChecks(fc *core.FileContext) []core.Finding {
	var out []core.Finding

	fc.Scopes.Walk(func(s *core.Scope) {
		if !s.Loop {
			return
		}
		header := headerStatement(fc, s)
		if header == "" {
			return
		}
		body := scopeText(fc, s)

		if infiniteLoopRe.MatchString(header) {
			if !anyWordIn(body, exitWords) {
				out = append(out, d.NewFinding(core.KindDeadLoop, fc.FilePath, s.StartLine, "",
					"Infinite loop has no break, return or exit on any path",
					"Add a termination condition or an explicit break"))
			}
			return
		}

		cond := loopCondition(header)
		if cond == "" {
			return
		}

		// 浮点相等比较
		if eqCompareRe.MatchString(cond) {
			for _, name := range condIdents(cond) {
				decl := fc.Scopes.FindDeclaration(name, s.StartLine)
				if decl != nil && isFloatType(decl.Type) {
					out = append(out, d.NewFinding(core.KindFloatLoopCond, fc.FilePath, s.StartLine, name,
						fmt.Sprintf("Floating-point variable '%s' compared for equality in a loop condition", name),
						"Compare against an epsilon instead of exact equality"))
					break
				}
			}
		}

		// 条件变量是否在循环范围内被修改
		idents := condIdents(cond)
		if len(idents) == 0 {
			return
		}
		for _, name := range idents {
			if modifiedIn(body, name) || anyWordIn(body, exitWords) {
				return
			}
		}
		out = append(out, d.NewFinding(core.KindDeadLoop, fc.FilePath, s.StartLine, idents[0],
			fmt.Sprintf("Loop condition depends on '%s' which never changes inside the loop", strings.Join(idents, "', '")),
			"Update the condition variable inside the loop body"))
	})

	return out
}

// headerStatement 取循环作用域的块头语句文本
func headerStatement(fc *core.FileContext, s *core.Scope) string {
	for _, st := range fc.Statements {
		if st.Scope == s {
			return st.Text
		}
	}
	// 语句流里没有块头（极端残缺输入），退回首行文本
	return fc.Line(s.StartLine)
}

// scopeText 拼接作用域覆盖的净化行（含块头行）
func scopeText(fc *core.FileContext, s *core.Scope) string {
	end := s.EndLine
	if end == 0 || end > fc.LineCount() {
		end = fc.LineCount()
	}
	var b strings.Builder
	for n := s.StartLine; n <= end; n++ {
		b.WriteString(fc.Line(n))
		b.WriteByte('\n')
	}
	return b.String()
}

// loopCondition 从块头文本提取条件表达式
func loopCondition(header string) string {
	if m := loopCondRe.FindStringSubmatch(header); m != nil {
		if m[1] != "" {
			return m[1]
		}
		return strings.TrimSpace(m[2])
	}
	return ""
}

// condIdents 条件表达式里的标识符（去重，跳过关键字与字面量）
func condIdents(cond string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, name := range condIdentRe.FindAllString(cond, -1) {
		switch name {
		case "NULL", "true", "false", "sizeof", "int", "char", "long",
			"short", "unsigned", "signed", "float", "double", "const":
			continue
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// modifiedIn 变量在文本里是否出现写形式：赋值、自增自减、取地址
func modifiedIn(body, name string) bool {
	q := regexp.QuoteMeta(name)
	re := regexp.MustCompile(
		`\b` + q + `\s*(?:=[^=]|\+\+|--|\+=|-=|\*=|/=|%=|&=|\|=|\^=|<<=|>>=)|(?:\+\+|--)\s*` + q + `\b|&\s*` + q + `\b`)
	return re.MatchString(body)
}

func anyWordIn(body string, words []string) bool {
	for _, w := range words {
		if wordIn(body, w) {
			return true
		}
	}
	return false
}

func isFloatType(t string) bool {
	return strings.Contains(t, "float") || strings.Contains(t, "double")
}

// 整型类型的表示范围
type intRange struct {
	min, max int64
}

var typeRanges = map[string]intRange{
	"char":           {-128, 127},
	"signed char":    {-128, 127},
	"unsigned char":  {0, 255},
	"short":          {-32768, 32767},
	"short int":      {-32768, 32767},
	"unsigned short": {0, 65535},
	"int":            {-2147483648, 2147483647},
	"signed":         {-2147483648, 2147483647},
	"signed int":     {-2147483648, 2147483647},
	"unsigned":       {0, 4294967295},
	"unsigned int":   {0, 4294967295},
}

var intLiteralRe = regexp.MustCompile(`^[+-]?(?:0[xX][0-9a-fA-F]+|\d+)[uUlL]*$`)

// literalOverflows 声明初始化字面量超出类型范围
func (d *NumericDetector) literalOverflows(fc *core.FileContext) []core.Finding {
	var out []core.Finding

	fc.Scopes.Walk(func(s *core.Scope) {
		if s.Aggregate {
			return
		}
		for _, decl := range s.Declarations() {
			if decl.IsPointer || decl.IsArray || decl.IsParam {
				continue
			}
			rng, sized := typeRanges[decl.Type]
			if !sized {
				continue
			}
			init := core.DeclInitializer(fc.Line(decl.Line), decl.Name)
			if init == "" || !intLiteralRe.MatchString(init) {
				continue
			}
			v, err := parseIntLiteral(init)
			if err != nil {
				continue
			}
			if v < rng.min || v > rng.max {
				out = append(out, d.NewFinding(core.KindLiteralOverflow, fc.FilePath, decl.Line, decl.Name,
					fmt.Sprintf("Value %s overflows the range of %s ('%s' holds [%d, %d])",
						init, decl.Type, decl.Name, rng.min, rng.max),
					"Use a wider type or adjust the value"))
			}
		}
	})

	return out
}

// parseIntLiteral 解析十进制/十六进制整型字面量，容忍 u/l 后缀
func parseIntLiteral(s string) (int64, error) {
	s = strings.TrimRight(s, "uUlL")
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	s = strings.TrimPrefix(s, "+")

	var v uint64
	var err error
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err = strconv.ParseUint(s[2:], 16, 64)
	} else {
		v, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil {
		return 0, err
	}
	if neg {
		return -int64(v), nil
	}
	if v > 1<<63-1 {
		return 1<<63 - 1, nil
	}
	return int64(v), nil
}
