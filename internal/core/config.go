package core

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v2"
)

// Config 扫描配置
// 命令行参数覆盖配置文件，配置文件覆盖缺省值
type Config struct {
	// Detectors 各检测类别的开关，键为类别名（memory/variable/library/numeric）
	// 未出现的类别按启用处理
	Detectors map[string]bool `yaml:"detectors"`

	// Excludes 排除的路径模式（doublestar 语法）
	Excludes []string `yaml:"excludes"`

	// Workers 并发分析的 goroutine 数，0 表示取 CPU 核数
	Workers int `yaml:"workers"`

	// Format 报告格式：text / json / sarif
	Format string `yaml:"format"`

	// UseOracle 是否启用 tree-sitter 语法来源（失败仍会降级到正则）
	UseOracle bool `yaml:"use_syntax_oracle"`
}

// DefaultConfig 缺省配置：全检测器启用，文本报告，语法来源启用
func DefaultConfig() *Config {
	return &Config{
		Detectors: map[string]bool{},
		Excludes:  []string{"**/build/**", "**/.git/**"},
		Workers:   0,
		Format:    "text",
		UseOracle: true,
	}
}

// LoadConfig 从 YAML 文件读取配置并叠加在缺省值之上
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Enabled 判断检测类别是否启用
func (c *Config) Enabled(k DetectorKind) bool {
	if c.Detectors == nil {
		return true
	}
	on, ok := c.Detectors[k.String()]
	if !ok {
		return true
	}
	return on
}

// SyntaxSource 按配置返回作用域来源
func (c *Config) SyntaxSource() SyntaxSource {
	if c.UseOracle {
		return OracleSyntaxSource{}
	}
	return RegexSyntaxSource{}
}
