package detectors

import (
	"fmt"
	"regexp"
	"strings"

	"cscan/internal/core"
)

// LibraryDetector 标准库用法检测器
//  1. 调用了标准库函数但缺少对应头文件
//  2. printf/scanf 族格式串与实参的个数、类型不匹配
//  3. scanf 实参缺少取地址符
//
// 格式检查走词法 Token 流而不是净化行：净化视图里字符串内容已被抹空，
// 格式串只能从原始 Token 取
type LibraryDetector struct {
	core.BaseDetector
}

// NewLibraryDetector 创建标准库检测器
func NewLibraryDetector() *LibraryDetector {
	return &LibraryDetector{core.NewBaseDetector("library-usage", core.DetectorLibrary)}
}

// Run 实现 core.Detector
func (d *LibraryDetector) Run(fc *core.FileContext) ([]core.Finding, error) {
	includes := collectIncludes(fc.Lines)
	out := d.missingHeaders(fc, includes)
	out = append(out, d.formatChecks(fc)...)
	return out, nil
}

// headerFor 标准库函数到头文件的映射
var headerFor = map[string]string{
	// stdio.h
	"printf": "stdio.h", "fprintf": "stdio.h", "sprintf": "stdio.h",
	"snprintf": "stdio.h", "scanf": "stdio.h", "fscanf": "stdio.h",
	"sscanf": "stdio.h", "puts": "stdio.h", "gets": "stdio.h",
	"fgets": "stdio.h", "fputs": "stdio.h", "fopen": "stdio.h",
	"fclose": "stdio.h", "fread": "stdio.h", "fwrite": "stdio.h",
	"fseek": "stdio.h", "ftell": "stdio.h", "getchar": "stdio.h",
	"putchar": "stdio.h", "perror": "stdio.h",
	// stdlib.h
	"malloc": "stdlib.h", "calloc": "stdlib.h", "realloc": "stdlib.h",
	"free": "stdlib.h", "exit": "stdlib.h", "abort": "stdlib.h",
	"atoi": "stdlib.h", "atof": "stdlib.h", "atol": "stdlib.h",
	"rand": "stdlib.h", "srand": "stdlib.h", "abs": "stdlib.h",
	"qsort": "stdlib.h", "bsearch": "stdlib.h", "getenv": "stdlib.h",
	"system": "stdlib.h",
	// string.h
	"strcpy": "string.h", "strncpy": "string.h", "strcat": "string.h",
	"strncat": "string.h", "strcmp": "string.h", "strncmp": "string.h",
	"strlen": "string.h", "strchr": "string.h", "strrchr": "string.h",
	"strstr": "string.h", "strtok": "string.h", "memset": "string.h",
	"memcpy": "string.h", "memmove": "string.h", "memcmp": "string.h",
	// math.h
	"sqrt": "math.h", "pow": "math.h", "sin": "math.h", "cos": "math.h",
	"tan": "math.h", "fabs": "math.h", "floor": "math.h", "ceil": "math.h",
	"log": "math.h", "log10": "math.h", "exp": "math.h",
	// ctype.h
	"isalpha": "ctype.h", "isdigit": "ctype.h", "isalnum": "ctype.h",
	"isspace": "ctype.h", "isupper": "ctype.h", "islower": "ctype.h",
	"toupper": "ctype.h", "tolower": "ctype.h",
	// time.h
	"time": "time.h", "clock": "time.h", "difftime": "time.h",
	// assert.h
	"assert": "assert.h",
}

var includeRe = regexp.MustCompile(`^\s*#\s*include\s*[<"]([^>"]+)[>"]`)

// collectIncludes 从原始行提取已包含的头文件名
func collectIncludes(lines []string) map[string]bool {
	set := make(map[string]bool)
	for _, line := range lines {
		if m := includeRe.FindStringSubmatch(line); m != nil {
			set[m[1]] = true
		}
	}
	return set
}

// missingHeaders 标准库调用缺头文件，同名函数只报第一次
func (d *LibraryDetector) missingHeaders(fc *core.FileContext, includes map[string]bool) []core.Finding {
	var out []core.Finding
	reported := make(map[string]bool)

	toks := fc.Tokens
	for i, t := range toks {
		if t.Kind != core.TokenIdentifier || i+1 >= len(toks) || toks[i+1].Text != "(" {
			continue
		}
		header, known := headerFor[t.Text]
		if !known || includes[header] || reported[t.Text] {
			continue
		}
		// 本文件自己定义了同名函数则不算标准库调用
		if fc.Scopes.FunctionByName(t.Text) != nil {
			continue
		}
		reported[t.Text] = true
		out = append(out, d.NewFinding(core.KindMissingHeader, fc.FilePath, t.PhysicalLine, t.Text,
			fmt.Sprintf("Call to '%s' requires <%s>, which is not included", t.Text, header),
			fmt.Sprintf("Add #include <%s>", header)))
	}
	return out
}

// printf/scanf 族及其格式串实参的位置
var formatArgIndex = map[string]int{
	"printf": 0, "fprintf": 1, "sprintf": 1, "snprintf": 2,
	"scanf": 0, "fscanf": 1, "sscanf": 1,
}

var scanfFuncs = map[string]bool{"scanf": true, "fscanf": true, "sscanf": true}

// formatSpecRe 单个转换说明；%% 在解析时剔除
var formatSpecRe = regexp.MustCompile(`%[-+ #0]*(\*|\d+)?(?:\.(\*|\d+))?(?:hh|h|ll|l|L|z|j|t)?([diouxXeEfFgGaAcspn%])`)

// formatChecks printf/scanf 族调用的格式匹配检查
func (d *LibraryDetector) formatChecks(fc *core.FileContext) []core.Finding {
	var out []core.Finding
	toks := fc.Tokens

	for i, t := range toks {
		if t.Kind != core.TokenIdentifier || i+1 >= len(toks) || toks[i+1].Text != "(" {
			continue
		}
		fmtIdx, ok := formatArgIndex[t.Text]
		if !ok {
			continue
		}

		args, closed := callArgs(toks, i+1)
		if !closed || fmtIdx >= len(args) {
			continue
		}

		literal := firstString(args[fmtIdx])
		if literal == "" {
			// 格式串不是字面量（变量格式串），无从检查
			continue
		}
		specs, extra := parseFormatSpecs(literal)

		expected := len(specs) + extra
		supplied := len(args) - fmtIdx - 1
		if expected != supplied {
			out = append(out, d.NewFinding(core.KindPrintfFormat, fc.FilePath, t.PhysicalLine, t.Text,
				fmt.Sprintf("Format string of %s expects %d value(s) but %d supplied", t.Text, expected, supplied),
				"Match the number of arguments to the conversion specifiers"))
			continue
		}

		// 个数吻合时逐个做类型核对
		isScanf := scanfFuncs[t.Text]
		for k, spec := range specs {
			if fmtIdx+1+k >= len(args) {
				break
			}
			out = append(out, d.checkFormatArg(fc, t.Text, spec, args[fmtIdx+1+k], isScanf)...)
		}
	}
	return out
}

// callArgs 从 "(" 的 Token 下标起切出顶层逗号分隔的实参组
func callArgs(toks []core.Token, open int) ([][]core.Token, bool) {
	var args [][]core.Token
	var cur []core.Token
	depth := 0

	for i := open; i < len(toks); i++ {
		tk := toks[i]
		switch tk.Text {
		case "(", "[":
			if depth > 0 {
				cur = append(cur, tk)
			}
			depth++
		case ")", "]":
			depth--
			if depth == 0 {
				if len(cur) > 0 {
					args = append(args, cur)
				}
				return args, true
			}
			cur = append(cur, tk)
		case ",":
			if depth == 1 {
				args = append(args, cur)
				cur = nil
				continue
			}
			cur = append(cur, tk)
		default:
			if depth > 0 {
				cur = append(cur, tk)
			}
		}
	}
	return args, false
}

// firstString 取实参组里的第一个字符串字面量内容（去掉引号）
func firstString(arg []core.Token) string {
	for _, tk := range arg {
		if tk.Kind == core.TokenString && len(tk.Text) >= 2 {
			return tk.Text[1 : len(tk.Text)-1]
		}
	}
	return ""
}

// parseFormatSpecs 解析格式串，返回转换字母序列与 `*` 动态宽度的额外实参数
func parseFormatSpecs(s string) ([]byte, int) {
	var specs []byte
	extra := 0
	for _, m := range formatSpecRe.FindAllStringSubmatch(s, -1) {
		letter := m[3][0]
		if letter == '%' {
			continue
		}
		if m[1] == "*" {
			extra++
		}
		if m[2] == "*" {
			extra++
		}
		specs = append(specs, letter)
	}
	return specs, extra
}

// checkFormatArg 单个转换说明与实参的类型核对
// 只认形如 `x` 或 `&x` 的简单实参，复杂表达式跳过
func (d *LibraryDetector) checkFormatArg(fc *core.FileContext, callee string, spec byte, arg []core.Token, isScanf bool) []core.Finding {
	name, hasAmp := simpleArg(arg)
	if name == "" {
		return nil
	}
	line := arg[len(arg)-1].PhysicalLine
	decl := fc.Scopes.FindDeclaration(name, line)
	if decl == nil {
		return nil
	}

	var out []core.Finding

	if isScanf && !hasAmp && !decl.IsPointer && !decl.IsArray {
		out = append(out, d.NewFinding(core.KindPrintfFormat, fc.FilePath, line, name,
			fmt.Sprintf("Argument '%s' to %s must be a pointer (missing '&'?)", name, callee),
			fmt.Sprintf("Pass &%s instead of %s", name, name)))
		return out
	}

	isFloat := strings.Contains(decl.Type, "float") || strings.Contains(decl.Type, "double")

	mismatch := ""
	switch spec {
	case 'd', 'i', 'o', 'u', 'x', 'X':
		if isFloat {
			mismatch = fmt.Sprintf("expects an integer but '%s' is %s", name, decl.Type)
		}
	case 'e', 'E', 'f', 'F', 'g', 'G', 'a', 'A':
		if !isFloat {
			mismatch = fmt.Sprintf("expects a floating-point value but '%s' is %s", name, decl.Type)
		}
	case 's':
		if !decl.IsPointer && !decl.IsArray {
			mismatch = fmt.Sprintf("expects a string but '%s' is a plain %s", name, decl.Type)
		}
	}
	if mismatch != "" {
		out = append(out, d.NewFinding(core.KindPrintfFormat, fc.FilePath, line, name,
			fmt.Sprintf("Format specifier '%%%c' %s", spec, mismatch),
			"Change the specifier or the argument type"))
	}
	return out
}

// simpleArg 识别 `x` 与 `&x` 形式的实参
func simpleArg(arg []core.Token) (string, bool) {
	switch len(arg) {
	case 1:
		if arg[0].Kind == core.TokenIdentifier {
			return arg[0].Text, false
		}
	case 2:
		if arg[0].Kind == core.TokenOperator && arg[0].Text == "&" && arg[1].Kind == core.TokenIdentifier {
			return arg[1].Text, true
		}
	}
	return "", false
}
