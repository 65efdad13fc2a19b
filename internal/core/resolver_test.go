package core

import "testing"

func mkFinding(kind string, line int, variable string) Finding {
	return Finding{
		Category: CategoryMemory,
		Kind:     kind,
		Severity: DefaultSeverity(kind),
		File:     "test.c",
		Line:     line,
		Variable: variable,
	}
}

func TestResolverSuppressesLowerRank(t *testing.T) {
	t.Parallel()

	r := NewConflictResolver()
	if !r.Submit(mkFinding(KindMemoryLeak, 10, "p")) {
		t.Fatal("first finding rejected")
	}
	// 同位置的更笼统诊断被抑制
	if r.Submit(mkFinding(KindUnusedVariable, 10, "p")) {
		t.Error("lower-rank finding at same site was admitted")
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
	fs := r.Findings()
	if len(fs) != 1 || fs[0].Kind != KindMemoryLeak {
		t.Errorf("Findings = %+v, want single memory_leak", fs)
	}
}

func TestResolverUpgradesOnHigherRank(t *testing.T) {
	t.Parallel()

	r := NewConflictResolver()
	r.Submit(mkFinding(KindUnusedVariable, 10, "p"))
	if !r.Submit(mkFinding(KindWildPointerDeref, 10, "p")) {
		t.Fatal("higher-rank finding rejected")
	}
	fs := r.Findings()
	if len(fs) != 1 || fs[0].Kind != KindWildPointerDeref {
		t.Errorf("Findings = %+v, want single wild_pointer_dereference", fs)
	}
}

func TestResolverRejectsDuplicates(t *testing.T) {
	t.Parallel()

	r := NewConflictResolver()
	f := mkFinding(KindDoubleFree, 4, "p")
	if !r.Submit(f) {
		t.Fatal("first submit rejected")
	}
	if r.Submit(f) {
		t.Error("duplicate finding admitted")
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestResolverIgnoresSitesWithoutVariable(t *testing.T) {
	t.Parallel()

	r := NewConflictResolver()
	deadLoop := mkFinding(KindDeadLoop, 7, "")
	leak := mkFinding(KindMemoryLeak, 7, "")
	if !r.Submit(leak) || !r.Submit(deadLoop) {
		t.Fatal("variable-less findings should not arbitrate against each other")
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
}

func TestResolverDifferentVariablesCoexist(t *testing.T) {
	t.Parallel()

	r := NewConflictResolver()
	r.Submit(mkFinding(KindMemoryLeak, 10, "p"))
	if !r.Submit(mkFinding(KindUnusedVariable, 10, "q")) {
		t.Error("finding for a different variable was suppressed")
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
}

func TestResolverOrdering(t *testing.T) {
	t.Parallel()

	r := NewConflictResolver()
	r.Submit(mkFinding(KindMemoryLeak, 20, "a"))
	r.Submit(mkFinding(KindDoubleFree, 5, "b"))
	r.Submit(mkFinding(KindUseAfterFree, 5, "c"))

	fs := r.Findings()
	if len(fs) != 3 {
		t.Fatalf("got %d findings, want 3", len(fs))
	}
	if fs[0].Line != 5 || fs[1].Line != 5 || fs[2].Line != 20 {
		t.Errorf("lines = %d, %d, %d; want 5, 5, 20", fs[0].Line, fs[1].Line, fs[2].Line)
	}
	// 同行按提交顺序稳定排列
	if fs[0].Variable != "b" || fs[1].Variable != "c" {
		t.Errorf("same-line order = %s, %s; want b, c", fs[0].Variable, fs[1].Variable)
	}
}

func TestRankOrdering(t *testing.T) {
	t.Parallel()

	ordered := []string{
		KindWildPointerDeref, KindDoubleFree, KindUseAfterFree,
		KindNullPointerDeref, KindMemoryLeak, KindUninitVariable,
		KindConstUninit, KindMallocNullCheck, KindUnusedVariable,
		KindPrintfFormat, KindMissingHeader, KindDeadLoop,
		KindFloatLoopCond, KindLiteralOverflow, KindStaticImplicit,
	}
	for i := 1; i < len(ordered); i++ {
		if RankOf(ordered[i-1]) >= RankOf(ordered[i]) {
			t.Errorf("rank(%s)=%d not below rank(%s)=%d",
				ordered[i-1], RankOf(ordered[i-1]), ordered[i], RankOf(ordered[i]))
		}
	}
	if RankOf("never_seen") <= RankOf(KindStaticImplicit) {
		t.Error("unknown kind should rank last")
	}
}
