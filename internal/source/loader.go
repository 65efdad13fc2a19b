// Package source 负责源文件的读入与行视图准备
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Load 读取源文件并返回行切片（1 基行号 = 下标 + 1）
// 统一换行为 \n；非 UTF-8 字节按原样保留，后续词法层只看 ASCII 结构字符
func Load(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return SplitLines(string(data)), nil
}

// SplitLines 把源文本切成行，容忍 CRLF 与孤立 CR
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}

// cExtensions 纳入扫描的文件后缀
var cExtensions = map[string]bool{
	".c": true, ".h": true, ".i": true,
}

// IsCSource 判断路径是否为 C 源文件
func IsCSource(path string) bool {
	return cExtensions[strings.ToLower(filepath.Ext(path))]
}

// Valid 判断文本是否大体为文本文件（粗检：合法 UTF-8 或无 NUL 字节）
// 二进制文件直接跳过，避免词法层在垃圾输入上空转
func Valid(text string) bool {
	if utf8.ValidString(text) {
		return true
	}
	return !strings.ContainsRune(text, 0)
}
