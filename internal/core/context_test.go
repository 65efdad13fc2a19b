package core

import (
	"errors"
	"testing"
)

// failingSource 总是报错，用于验证降级路径
type failingSource struct{}

func (failingSource) Name() string { return "failing" }

func (failingSource) BuildScopes(clean []string) (*ScopeTree, []Statement, error) {
	return nil, nil, errors.New("parse error")
}

func TestFileContextFallsBackOnSourceFailure(t *testing.T) {
	t.Parallel()

	lines := []string{
		"void main() {",
		"    int x;",
		"    int y = x + 1;",
		"}",
	}
	fc := NewFileContext("fallback.c", lines, failingSource{})

	if fc.Scopes == nil || len(fc.Statements) == 0 {
		t.Fatal("fallback should still build scopes and statements")
	}
	// 降级后状态回放照常进行
	if len(fc.States.UninitUses) != 1 {
		t.Fatalf("uninit uses = %d, want 1", len(fc.States.UninitUses))
	}
	use := fc.States.UninitUses[0]
	if use.Decl.Name != "x" || use.Line != 3 {
		t.Errorf("uninit use = %s@%d, want x@3", use.Decl.Name, use.Line)
	}
}

func TestRunDetectorsSkipsFailingDetector(t *testing.T) {
	t.Parallel()

	fc := NewFileContext("skip.c", []string{"void main() {", "    free(p);", "    free(p);", "}"}, RegexSyntaxSource{})
	findings := RunDetectors(fc, []Detector{
		errDetector{},
		okDetector{},
	})
	if len(findings) != 1 || findings[0].Kind != KindMemoryLeak {
		t.Errorf("findings = %+v, want the surviving detector's finding", findings)
	}
}

type errDetector struct{}

func (errDetector) Name() string                        { return "err" }
func (errDetector) Kind() DetectorKind                  { return DetectorMemory }
func (errDetector) Run(*FileContext) ([]Finding, error) { return nil, errors.New("boom") }

type okDetector struct{}

func (okDetector) Name() string       { return "ok" }
func (okDetector) Kind() DetectorKind { return DetectorMemory }
func (okDetector) Run(fc *FileContext) ([]Finding, error) {
	return []Finding{{Kind: KindMemoryLeak, File: fc.FilePath, Line: 2, Variable: "p", Severity: DefaultSeverity(KindMemoryLeak), Category: Category(DetectorMemory.String())}}, nil
}
