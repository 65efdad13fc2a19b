package core

import (
	"regexp"
	"strconv"
	"strings"
)

// 行标记指令：`# 12 "foo.c"` 或 `#line 12 "foo.c"`，行号后允许省略文件名
var (
	lineMarkerRe       = regexp.MustCompile(`^\s*#\s*(?:line\s+)?(\d+)\s+"([^"]+)"`)
	lineMarkerSimpleRe = regexp.MustCompile(`^\s*#\s*(?:line\s+)?(\d+)\s*$`)
)

// Lexer 词法扫描器
// 对完整源文本做一次同步扫描，产出 Token 序列；
// 扫描过程中维护逻辑/物理两套行号计数器，遇到行标记只更新计数器不产出 Token。
// 无法归类的字符直接跳过（best-effort，词法失败不致命）。
type Lexer struct {
	lines []string

	logicalFile  string
	logicalLine  int
	physicalLine int

	inComment bool
}

// NewLexer 创建词法扫描器
func NewLexer(source string) *Lexer {
	return &Lexer{
		lines:       strings.Split(source, "\n"),
		logicalFile: "",
		logicalLine: 1,
	}
}

// Tokenize 扫描全部输入并返回 Token 序列
func (l *Lexer) Tokenize() []Token {
	var tokens []Token

	for i, line := range l.lines {
		l.physicalLine = i + 1

		// 行标记：只移动逻辑计数器
		if file, num, ok := parseLineMarker(line); ok {
			l.logicalLine = num
			if file != "" {
				l.logicalFile = file
			}
			continue
		}

		tokens = append(tokens, l.tokenizeLine(line)...)
		l.logicalLine++
	}

	return tokens
}

// parseLineMarker 解析行标记指令，返回 (文件名, 逻辑行号, 是否匹配)
func parseLineMarker(line string) (string, int, bool) {
	if m := lineMarkerRe.FindStringSubmatch(line); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return m[2], n, true
		}
	}
	if m := lineMarkerSimpleRe.FindStringSubmatch(line); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return "", n, true
		}
	}
	return "", 0, false
}

// tokenizeLine 扫描单行
func (l *Lexer) tokenizeLine(line string) []Token {
	var tokens []Token
	pos := 0
	n := len(line)

	for pos < n {
		// 多行注释状态
		if l.inComment {
			end := strings.Index(line[pos:], "*/")
			if end < 0 {
				return tokens
			}
			pos += end + 2
			l.inComment = false
			continue
		}

		c := line[pos]

		// 空白
		if c == ' ' || c == '\t' || c == '\r' {
			pos++
			continue
		}

		// 注释
		if c == '/' && pos+1 < n {
			switch line[pos+1] {
			case '/':
				return tokens
			case '*':
				l.inComment = true
				pos += 2
				continue
			}
		}

		col := pos + 1

		// 标识符/关键字
		if isIdentStart(c) {
			start := pos
			for pos < n && isIdentPart(line[pos]) {
				pos++
			}
			tokens = append(tokens, l.makeToken(TokenIdentifier, line[start:pos], col))
			continue
		}

		// 数字（包括 0x 前缀与小数）
		if c >= '0' && c <= '9' {
			start := pos
			for pos < n && (isIdentPart(line[pos]) || line[pos] == '.') {
				pos++
			}
			tokens = append(tokens, l.makeToken(TokenNumber, line[start:pos], col))
			continue
		}

		// 字符串字面量
		if c == '"' {
			text, width := scanQuoted(line[pos:], '"')
			tokens = append(tokens, l.makeToken(TokenString, text, col))
			pos += width
			continue
		}

		// 字符字面量
		if c == '\'' {
			text, width := scanQuoted(line[pos:], '\'')
			tokens = append(tokens, l.makeToken(TokenChar, text, col))
			pos += width
			continue
		}

		// 标点
		if strings.ContainsRune("{}();,[]", rune(c)) {
			tokens = append(tokens, l.makeToken(TokenPunct, string(c), col))
			pos++
			continue
		}

		// 运算符（贪婪匹配连续运算符字符）
		if strings.ContainsRune("+-*/=<>!&|^%~?:.", rune(c)) {
			start := pos
			for pos < n && strings.ContainsRune("+-*/=<>!&|^%~?:.", rune(line[pos])) {
				pos++
			}
			tokens = append(tokens, l.makeToken(TokenOperator, line[start:pos], col))
			continue
		}

		// 无法识别的字符，跳过
		pos++
	}

	return tokens
}

func (l *Lexer) makeToken(kind TokenKind, text string, col int) Token {
	return Token{
		Kind:          kind,
		Text:          text,
		LogicalFile:   l.logicalFile,
		LogicalLine:   l.logicalLine,
		LogicalColumn: col,
		PhysicalLine:  l.physicalLine,
	}
}

// scanQuoted 扫描引号包围的字面量，返回字面量文本与占用宽度
// 未闭合时吃到行尾
func scanQuoted(s string, quote byte) (string, int) {
	pos := 1
	for pos < len(s) {
		if s[pos] == '\\' && pos+1 < len(s) {
			pos += 2
			continue
		}
		if s[pos] == quote {
			pos++
			return s[:pos], pos
		}
		pos++
	}
	return s, len(s)
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// SanitizeLines 生成用于结构分析的净化行视图：
// 注释、字符串和字符字面量的内容被替换为空格，行数与列位置保持不变。
// 作用域构建和状态回放都在净化视图上进行，避免把字面量里的大括号当成块边界。
func SanitizeLines(lines []string) []string {
	clean := make([]string, len(lines))
	inComment := false

	for i, line := range lines {
		// 预处理指令行整行抹空（#define 的替换体里可能带大括号）
		if !inComment && strings.HasPrefix(strings.TrimSpace(line), "#") {
			clean[i] = ""
			continue
		}

		buf := []byte(line)
		pos := 0
		n := len(buf)

		for pos < n {
			if inComment {
				if pos+1 < n && buf[pos] == '*' && buf[pos+1] == '/' {
					buf[pos], buf[pos+1] = ' ', ' '
					inComment = false
					pos += 2
					continue
				}
				buf[pos] = ' '
				pos++
				continue
			}

			c := buf[pos]
			if c == '/' && pos+1 < n && buf[pos+1] == '/' {
				for j := pos; j < n; j++ {
					buf[j] = ' '
				}
				break
			}
			if c == '/' && pos+1 < n && buf[pos+1] == '*' {
				buf[pos], buf[pos+1] = ' ', ' '
				inComment = true
				pos += 2
				continue
			}
			if c == '"' || c == '\'' {
				_, width := scanQuoted(string(buf[pos:]), c)
				// 保留引号本身，内容抹空，格式检查另行使用原始行
				for j := pos + 1; j < pos+width-1 && j < n; j++ {
					buf[j] = ' '
				}
				pos += width
				continue
			}
			pos++
		}

		clean[i] = string(buf)
	}

	return clean
}
