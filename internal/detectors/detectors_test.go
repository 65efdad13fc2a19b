package detectors

import (
	"strings"
	"testing"

	"cscan/internal/core"
)

func analyze(t *testing.T, src string) []core.Finding {
	t.Helper()
	fc := core.NewFileContext("test.c", strings.Split(src, "\n"), core.RegexSyntaxSource{})
	ds := []core.Detector{
		NewMemoryDetector(),
		NewVariableDetector(),
		NewLibraryDetector(),
		NewNumericDetector(),
	}
	return core.RunDetectors(fc, ds)
}

func findByKind(fs []core.Finding, kind string) []core.Finding {
	var out []core.Finding
	for _, f := range fs {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

func hasKind(fs []core.Finding, kind string) bool {
	return len(findByKind(fs, kind)) > 0
}

func TestWildPointerDereference(t *testing.T) {
	t.Parallel()

	fs := analyze(t, `#include <stdio.h>
#include <stdlib.h>

int main(void) {
    int *p;
    *p = 10;
    return 0;
}`)
	got := findByKind(fs, core.KindWildPointerDeref)
	if len(got) != 1 {
		t.Fatalf("wild pointer findings = %+v, want 1", got)
	}
	if got[0].Line != 6 || got[0].Variable != "p" {
		t.Errorf("finding at line %d var %q, want line 6 var p", got[0].Line, got[0].Variable)
	}
}

func TestUninitializedVariable(t *testing.T) {
	t.Parallel()

	fs := analyze(t, `#include <stdio.h>

int main(void) {
    int x;
    printf("%d\n", x);
    return 0;
}`)
	got := findByKind(fs, core.KindUninitVariable)
	if len(got) != 1 {
		t.Fatalf("uninit findings = %+v, want 1", got)
	}
	if got[0].Line != 5 || got[0].Variable != "x" {
		t.Errorf("finding at line %d var %q, want line 5 var x", got[0].Line, got[0].Variable)
	}
	// 个数与类型都吻合，不应产生格式告警
	if hasKind(fs, core.KindPrintfFormat) {
		t.Errorf("unexpected format finding: %+v", findByKind(fs, core.KindPrintfFormat))
	}
}

func TestPrintfArgumentCountMismatch(t *testing.T) {
	t.Parallel()

	fs := analyze(t, `#include <stdio.h>

int main(void) {
    int a = 1;
    printf("%d %d\n", a);
    return 0;
}`)
	got := findByKind(fs, core.KindPrintfFormat)
	if len(got) != 1 {
		t.Fatalf("format findings = %+v, want 1", got)
	}
	if got[0].Line != 5 {
		t.Errorf("finding at line %d, want 5", got[0].Line)
	}
	if !strings.Contains(got[0].Message, "expects 2") {
		t.Errorf("message %q should name the expected count", got[0].Message)
	}
}

func TestScanfMissingAmpersand(t *testing.T) {
	t.Parallel()

	fs := analyze(t, `#include <stdio.h>

int main(void) {
    int n = 0;
    scanf("%d", n);
    return 0;
}`)
	got := findByKind(fs, core.KindPrintfFormat)
	if len(got) != 1 {
		t.Fatalf("format findings = %+v, want 1", got)
	}
	if got[0].Variable != "n" || !strings.Contains(got[0].Message, "pointer") {
		t.Errorf("finding = %+v, want missing-& diagnosis for n", got[0])
	}
}

func TestPrintfTypeMismatch(t *testing.T) {
	t.Parallel()

	fs := analyze(t, `#include <stdio.h>

int main(void) {
    double d = 1.5;
    printf("%d\n", d);
    return 0;
}`)
	got := findByKind(fs, core.KindPrintfFormat)
	if len(got) != 1 {
		t.Fatalf("format findings = %+v, want 1", got)
	}
	if !strings.Contains(got[0].Message, "integer") {
		t.Errorf("message %q should mention the integer specifier", got[0].Message)
	}
}

func TestMissingHeader(t *testing.T) {
	t.Parallel()

	fs := analyze(t, `int main(void) {
    char buf[16];
    strcpy(buf, "hi");
    return 0;
}`)
	got := findByKind(fs, core.KindMissingHeader)
	if len(got) != 1 {
		t.Fatalf("missing header findings = %+v, want 1", got)
	}
	if got[0].Variable != "strcpy" || !strings.Contains(got[0].Message, "string.h") {
		t.Errorf("finding = %+v, want strcpy needing string.h", got[0])
	}
}

func TestIncludedHeaderNotReported(t *testing.T) {
	t.Parallel()

	fs := analyze(t, `#include <string.h>

int main(void) {
    char buf[16];
    strcpy(buf, "hi");
    return 0;
}`)
	if hasKind(fs, core.KindMissingHeader) {
		t.Errorf("header present but still reported: %+v", findByKind(fs, core.KindMissingHeader))
	}
}

func TestDoubleFreeFinding(t *testing.T) {
	t.Parallel()

	fs := analyze(t, `#include <stdlib.h>

int main(void) {
    char *p = malloc(8);
    if (p == NULL) {
        return 1;
    }
    free(p);
    free(p);
    return 0;
}`)
	got := findByKind(fs, core.KindDoubleFree)
	if len(got) != 1 {
		t.Fatalf("double free findings = %+v, want 1", got)
	}
	if got[0].Line != 9 || got[0].Variable != "p" {
		t.Errorf("finding at line %d var %q, want line 9 var p", got[0].Line, got[0].Variable)
	}
	if hasKind(fs, core.KindMemoryLeak) {
		t.Error("freed allocation reported as leak")
	}
	if hasKind(fs, core.KindMallocNullCheck) {
		t.Error("checked allocation reported as unchecked")
	}
}

func TestUseAfterFreeFinding(t *testing.T) {
	t.Parallel()

	fs := analyze(t, `#include <stdlib.h>

int main(void) {
    char *q = malloc(4);
    if (q == NULL) {
        return 1;
    }
    free(q);
    *q = 'x';
    return 0;
}`)
	got := findByKind(fs, core.KindUseAfterFree)
	if len(got) != 1 {
		t.Fatalf("use-after-free findings = %+v, want 1", got)
	}
	if got[0].Line != 9 || got[0].Variable != "q" {
		t.Errorf("finding at line %d var %q, want line 9 var q", got[0].Line, got[0].Variable)
	}
}

func TestMemoryLeakFinding(t *testing.T) {
	t.Parallel()

	fs := analyze(t, `#include <stdlib.h>
#include <assert.h>

int main(void) {
    char *p = malloc(32);
    assert(p);
    p[0] = 1;
    return 0;
}`)
	got := findByKind(fs, core.KindMemoryLeak)
	if len(got) != 1 {
		t.Fatalf("leak findings = %+v, want 1", got)
	}
	if got[0].Line != 5 || got[0].Variable != "p" {
		t.Errorf("finding at line %d var %q, want line 5 var p", got[0].Line, got[0].Variable)
	}
	if hasKind(fs, core.KindMallocNullCheck) {
		t.Error("asserted allocation reported as unchecked")
	}
}

func TestUncheckedAllocation(t *testing.T) {
	t.Parallel()

	fs := analyze(t, `#include <stdlib.h>

int main(void) {
    char *p = malloc(32);
    p[0] = 1;
    p[1] = 2;
    p[2] = 3;
    free(p);
    return 0;
}`)
	got := findByKind(fs, core.KindMallocNullCheck)
	if len(got) != 1 {
		t.Fatalf("null-check findings = %+v, want 1", got)
	}
	if got[0].Line != 4 || got[0].Variable != "p" {
		t.Errorf("finding at line %d var %q, want line 4 var p", got[0].Line, got[0].Variable)
	}
}

func TestOwnershipTransferNotLeak(t *testing.T) {
	t.Parallel()

	fs := analyze(t, `#include <stdlib.h>

char *make_buf(int n) {
    char *b = malloc(n);
    if (b == NULL) {
        return NULL;
    }
    return b;
}`)
	if len(fs) != 0 {
		t.Errorf("ownership transfer produced findings: %+v", fs)
	}
}

func TestNullPointerDereference(t *testing.T) {
	t.Parallel()

	fs := analyze(t, `#include <stdlib.h>

int main(void) {
    int *p = malloc(4);
    free(p);
    p = NULL;
    *p = 5;
    return 0;
}`)
	got := findByKind(fs, core.KindNullPointerDeref)
	if len(got) != 1 {
		t.Fatalf("null deref findings = %+v, want 1", got)
	}
	if got[0].Line != 7 || got[0].Variable != "p" {
		t.Errorf("finding at line %d var %q, want line 7 var p", got[0].Line, got[0].Variable)
	}
}

func TestGuardedNullNotReported(t *testing.T) {
	t.Parallel()

	fs := analyze(t, `#include <stdlib.h>

int main(void) {
    int *p = malloc(4);
    free(p);
    p = NULL;
    if (p != NULL) {
        *p = 5;
    }
    return 0;
}`)
	if hasKind(fs, core.KindNullPointerDeref) {
		t.Errorf("guarded dereference reported: %+v", findByKind(fs, core.KindNullPointerDeref))
	}
}

func TestDeclarationStyleFindings(t *testing.T) {
	t.Parallel()

	fs := analyze(t, `int main(void) {
    const int limit;
    static int counter;
    counter = counter + 1;
    int unused_value = 3;
    return counter;
}`)
	if got := findByKind(fs, core.KindConstUninit); len(got) != 1 || got[0].Line != 2 {
		t.Errorf("const findings = %+v, want one at line 2", got)
	}
	if got := findByKind(fs, core.KindStaticImplicit); len(got) != 1 || got[0].Line != 3 {
		t.Errorf("static findings = %+v, want one at line 3", got)
	}
	got := findByKind(fs, core.KindUnusedVariable)
	if len(got) != 1 || got[0].Variable != "unused_value" {
		t.Errorf("unused findings = %+v, want only unused_value", got)
	}
}

func TestInfiniteLoopWithoutExit(t *testing.T) {
	t.Parallel()

	fs := analyze(t, `int main(void) {
    while (1) {
        do_work();
    }
    return 0;
}`)
	got := findByKind(fs, core.KindDeadLoop)
	if len(got) != 1 {
		t.Fatalf("dead loop findings = %+v, want 1", got)
	}
	if got[0].Line != 2 {
		t.Errorf("finding at line %d, want 2", got[0].Line)
	}
}

func TestInfiniteLoopWithBreakClean(t *testing.T) {
	t.Parallel()

	fs := analyze(t, `int main(void) {
    while (1) {
        if (done()) {
            break;
        }
    }
    return 0;
}`)
	if hasKind(fs, core.KindDeadLoop) {
		t.Errorf("loop with break reported: %+v", findByKind(fs, core.KindDeadLoop))
	}
}

func TestLoopVariableNeverChanges(t *testing.T) {
	t.Parallel()

	fs := analyze(t, `#include <stdio.h>

int main(void) {
    int i = 0;
    int n = 10;
    while (i < n) {
        printf("%d\n", n);
    }
    return 0;
}`)
	got := findByKind(fs, core.KindDeadLoop)
	if len(got) != 1 {
		t.Fatalf("dead loop findings = %+v, want 1", got)
	}
	if got[0].Line != 6 || got[0].Variable != "i" {
		t.Errorf("finding at line %d var %q, want line 6 var i", got[0].Line, got[0].Variable)
	}
}

func TestFloatEqualityLoopCondition(t *testing.T) {
	t.Parallel()

	fs := analyze(t, `int main(void) {
    double x = 0.0;
    while (x != 1.0) {
        x = x + 0.1;
    }
    return 0;
}`)
	got := findByKind(fs, core.KindFloatLoopCond)
	if len(got) != 1 {
		t.Fatalf("float loop findings = %+v, want 1", got)
	}
	if got[0].Variable != "x" || got[0].Line != 3 {
		t.Errorf("finding = %+v, want x at line 3", got[0])
	}
}

func TestLiteralOverflow(t *testing.T) {
	t.Parallel()

	fs := analyze(t, `int main(void) {
    char c = 200;
    short s = 70000;
    int total = c + s;
    return total;
}`)
	got := findByKind(fs, core.KindLiteralOverflow)
	if len(got) != 2 {
		t.Fatalf("overflow findings = %+v, want 2", got)
	}
	if got[0].Line != 2 || got[0].Variable != "c" {
		t.Errorf("first finding = %+v, want c at line 2", got[0])
	}
	if got[1].Line != 3 || got[1].Variable != "s" {
		t.Errorf("second finding = %+v, want s at line 3", got[1])
	}
}

func TestTaintedReturnAggregated(t *testing.T) {
	t.Parallel()

	fs := analyze(t, `int *make_value(void) {
    int *p;
    return p;
}

int main(void) {
    int *r = make_value();
    int v = *r;
    return v;
}`)
	wild := findByKind(fs, core.KindWildPointerDeref)
	if len(wild) != 1 {
		t.Fatalf("wild findings = %+v, want 1 aggregated", wild)
	}
	if wild[0].Variable != "r" || wild[0].Line != 8 {
		t.Errorf("finding = %+v, want r at line 8", wild[0])
	}
	if !strings.Contains(wild[0].Message, "make_value") {
		t.Errorf("message %q should name the source function", wild[0].Message)
	}

	// 被调函数内部的裸读取单独报告
	uninit := findByKind(fs, core.KindUninitVariable)
	if len(uninit) != 1 || uninit[0].Variable != "p" || uninit[0].Line != 3 {
		t.Errorf("uninit findings = %+v, want p at line 3", uninit)
	}
}

func TestTaintedReturnListsEachUseLine(t *testing.T) {
	t.Parallel()

	// 同一污点变量的多处使用聚合为一条报告，逐行列出各使用点
	fs := analyze(t, `int *make_value(void) {
    int *p;
    return p;
}

int main(void) {
    int *r = make_value();
    int a = *r;
    int b = *r;
    return a + b;
}`)
	wild := findByKind(fs, core.KindWildPointerDeref)
	if len(wild) != 1 {
		t.Fatalf("wild findings = %+v, want 1 aggregated", wild)
	}
	if wild[0].Line != 8 {
		t.Errorf("finding line = %d, want first use line 8", wild[0].Line)
	}
	if !strings.Contains(wild[0].Message, "lines 8, 9") {
		t.Errorf("message %q should list use lines 8, 9", wild[0].Message)
	}
}

func TestLineMarkersUnifyFindingCoordinates(t *testing.T) {
	t.Parallel()

	// 预处理输出带行标记时，状态类与词法类发现必须落在同一套逻辑坐标上
	fs := analyze(t, `#include <stdio.h>
# 20 "unit.c"
int main(void) {
    int x;
    printf("%d %d", x);
    return 0;
}`)
	uninit := findByKind(fs, core.KindUninitVariable)
	if len(uninit) != 1 {
		t.Fatalf("uninit findings = %+v, want 1", uninit)
	}
	format := findByKind(fs, core.KindPrintfFormat)
	if len(format) != 1 {
		t.Fatalf("format findings = %+v, want 1", format)
	}

	// 标记 `# 20` 之后：main 头为逻辑 20 行，printf 调用在逻辑 22 行
	if uninit[0].Line != 22 {
		t.Errorf("uninit line = %d, want logical 22", uninit[0].Line)
	}
	if format[0].Line != 22 {
		t.Errorf("format line = %d, want logical 22", format[0].Line)
	}
	if uninit[0].File != "unit.c" || format[0].File != "unit.c" {
		t.Errorf("files = %q, %q, want both unit.c", uninit[0].File, format[0].File)
	}
}

func TestCleanFileNoFindings(t *testing.T) {
	t.Parallel()

	fs := analyze(t, `#include <stdio.h>
#include <stdlib.h>

int main(void) {
    int count = 3;
    char *buf = malloc(count);
    if (buf == NULL) {
        return 1;
    }
    buf[0] = 'a';
    printf("%d\n", count);
    free(buf);
    return 0;
}`)
	if len(fs) != 0 {
		t.Errorf("clean file produced findings: %+v", fs)
	}
}

func TestForConfig(t *testing.T) {
	t.Parallel()

	all := ForConfig(core.DefaultConfig())
	if len(all) != 4 {
		t.Fatalf("default config built %d detectors, want 4", len(all))
	}

	cfg := core.DefaultConfig()
	cfg.Detectors = map[string]bool{"library": false, "numeric": false}
	some := ForConfig(cfg)
	if len(some) != 2 {
		t.Fatalf("filtered config built %d detectors, want 2", len(some))
	}
	names := Names(some)
	if names[0] != "memory-safety" || names[1] != "variable-state" {
		t.Errorf("names = %v", names)
	}
}
