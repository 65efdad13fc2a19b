package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cscan/internal/core"
)

func sampleResult() *ScanResult {
	return &ScanResult{
		StartedAt:    time.Now(),
		Duration:     42 * time.Millisecond,
		FilesScanned: 2,
		Detectors:    []string{"memory-safety", "variable-state"},
		Findings: []core.Finding{
			{
				Category: core.CategoryMemory, Kind: core.KindMemoryLeak,
				Severity: core.SeverityWarning, File: "a.c", Line: 5, Variable: "p",
				Message: "Memory allocated by malloc at line 5 is never released (pointer 'p')",
			},
			{
				Category: core.CategoryVariable, Kind: core.KindUninitVariable,
				Severity: core.SeverityError, File: "a.c", Line: 9, Variable: "x",
				Message: "Variable 'x' used before initialization (declared at line 8)",
			},
		},
	}
}

func TestTextWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := NewTextWriter(&buf).Write(sampleResult()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"cscan analysis results",
		"Total issues: 2",
		"Errors: 1",
		"Warnings: 1",
		"File: a.c",
		"line 5",
		"memory_leak",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTextWriterCleanRun(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	result := &ScanResult{FilesScanned: 3, Duration: time.Second}
	if err := NewTextWriter(&buf).Write(result); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No issues found") {
		t.Errorf("clean run output wrong:\n%s", buf.String())
	}
}

func TestTextWriterFailuresListed(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	result := sampleResult()
	result.FilesFailed = []string{"broken.c"}
	if err := NewTextWriter(&buf).Write(result); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "broken.c") {
		t.Errorf("failed file not listed:\n%s", buf.String())
	}
}

func TestJSONWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := NewJSONWriter(&buf).Write(sampleResult()); err != nil {
		t.Fatal(err)
	}

	var report JSONReport
	if err := json.Unmarshal(buf.Bytes(), &report); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if report.Tool.Name != ToolName {
		t.Errorf("tool name = %q, want %q", report.Tool.Name, ToolName)
	}
	if report.Summary.Total != 2 || report.Summary.FilesScanned != 2 {
		t.Errorf("summary = %+v", report.Summary)
	}
	if report.Summary.BySeverity["error"] != 1 || report.Summary.BySeverity["warning"] != 1 {
		t.Errorf("by_severity = %v", report.Summary.BySeverity)
	}
	if len(report.Findings) != 2 || report.Findings[0].Kind != core.KindMemoryLeak {
		t.Errorf("findings = %+v", report.Findings)
	}
}

func TestJSONWriterEmptyFindingsIsArray(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := NewJSONWriter(&buf).Write(&ScanResult{}); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), `"findings":null`) {
		t.Error("findings serialized as null instead of an empty array")
	}
}

func TestSARIFWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := NewSARIFWriter(&buf).Write(sampleResult()); err != nil {
		t.Fatal(err)
	}

	var sarif SARIF
	if err := json.Unmarshal(buf.Bytes(), &sarif); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if sarif.Version != "2.1.0" {
		t.Errorf("version = %q, want 2.1.0", sarif.Version)
	}
	if len(sarif.Runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(sarif.Runs))
	}
	run := sarif.Runs[0]
	if run.Tool.Driver.Name != ToolName {
		t.Errorf("driver name = %q", run.Tool.Driver.Name)
	}
	if len(run.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(run.Results))
	}
	if run.Results[0].RuleID != core.KindMemoryLeak {
		t.Errorf("ruleId = %q", run.Results[0].RuleID)
	}
	if run.Results[0].Locations[0].PhysicalLocation.Region.StartLine != 5 {
		t.Error("startLine not carried into SARIF region")
	}
	// 规则表去重且有序
	if len(run.Tool.Driver.Rules) != 2 {
		t.Errorf("got %d rules, want 2", len(run.Tool.Driver.Rules))
	}
}

func TestManagerGenerate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := NewManager(WithFormat(FormatJSON), WithOutputDir(dir))
	paths, err := m.Generate(sampleResult())
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 {
		t.Fatalf("got %d paths, want 1", len(paths))
	}
	if filepath.Base(paths[0]) != "cscan_report.json" {
		t.Errorf("filename = %q", filepath.Base(paths[0]))
	}
	if _, err := os.Stat(paths[0]); err != nil {
		t.Errorf("report file not written: %v", err)
	}
}

func TestManagerGenerateAll(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := NewManager(WithFormat(FormatAll), WithOutputDir(dir))
	paths, err := m.Generate(sampleResult())
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 3 {
		t.Fatalf("got %d paths, want 3", len(paths))
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Format{
		"json": FormatJSON, "TEXT": FormatText, "sarif": FormatSARIF, "all": FormatAll,
	} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = (%v, %v), want %v", in, got, err, want)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) should fail")
	}
}
