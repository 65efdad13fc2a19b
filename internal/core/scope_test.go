package core

import (
	"strings"
	"testing"
)

func buildScopes(t *testing.T, src string) (*ScopeTree, []Statement) {
	t.Helper()
	clean := SanitizeLines(strings.Split(src, "\n"))
	return BuildScopeTree(clean)
}

func TestBuildScopeTree(t *testing.T) {
	t.Parallel()

	src := `int g = 0;
int main(void) {
    int x;
    if (x > 0) {
        int y = 1;
        y = 2;
    }
    while (x < 10) {
        x = x + 1;
    }
    return x;
}`
	tree, stmts := buildScopes(t, src)

	fns := tree.Functions()
	if len(fns) != 1 {
		t.Fatalf("got %d functions, want 1", len(fns))
	}
	fn := fns[0]
	if fn.FuncName != "main" {
		t.Errorf("FuncName = %q, want %q", fn.FuncName, "main")
	}
	if fn.StartLine != 2 || fn.EndLine != 12 {
		t.Errorf("function span = [%d, %d], want [2, 12]", fn.StartLine, fn.EndLine)
	}

	if _, ok := tree.Global.Lookup("g"); !ok {
		t.Error("global g not recorded in global scope")
	}

	ifScope := tree.ScopeAt(5)
	if ifScope.Kind != ScopeBlock || !ifScope.Conditional || ifScope.Loop {
		t.Errorf("scope at line 5: kind=%v conditional=%v loop=%v, want block conditional",
			ifScope.Kind, ifScope.Conditional, ifScope.Loop)
	}
	loopScope := tree.ScopeAt(9)
	if !loopScope.Loop {
		t.Error("scope at line 9 not marked as loop")
	}

	if tree.FindDeclaration("y", 6) == nil {
		t.Error("y not visible inside the if block")
	}
	if tree.FindDeclaration("y", 11) != nil {
		t.Error("y leaked out of the if block")
	}
	if tree.FindDeclaration("x", 9) == nil {
		t.Error("x not visible inside the while body")
	}

	// 块头本身作为语句出现在被控制的作用域里
	var header *Statement
	for i := range stmts {
		if stmts[i].Text == "if (x > 0)" {
			header = &stmts[i]
		}
	}
	if header == nil {
		t.Fatal("if header missing from statement stream")
	}
	if header.Scope != ifScope {
		t.Error("if header not attached to its controlled scope")
	}
}

func TestStatementSplitting(t *testing.T) {
	t.Parallel()

	_, stmts := buildScopes(t, "int x; int y;")
	if len(stmts) != 2 {
		t.Fatalf("got %d statements, want 2: %+v", len(stmts), stmts)
	}
	if stmts[0].Text != "int x;" || stmts[1].Text != "int y;" {
		t.Errorf("statements = %q, %q", stmts[0].Text, stmts[1].Text)
	}
}

func TestMultiLineStatement(t *testing.T) {
	t.Parallel()

	_, stmts := buildScopes(t, "int total =\n    1 + 2;")
	if len(stmts) != 1 {
		t.Fatalf("got %d statements, want 1", len(stmts))
	}
	if stmts[0].Line != 1 {
		t.Errorf("statement line = %d, want 1", stmts[0].Line)
	}
	if !strings.Contains(stmts[0].Text, "1 + 2") {
		t.Errorf("statement text %q lost the continuation", stmts[0].Text)
	}
}

func TestIndentedStatementLines(t *testing.T) {
	t.Parallel()

	// 常规缩进代码：每条语句的起始行必须是自己的行，
	// 不允许沿用上一条语句的行号
	src := `int main(void) {
    int a;
    int b;

    a = 1;
	b = 2;
    return a + b;
}`
	_, stmts := buildScopes(t, src)

	want := map[string]int{
		"int a;":       2,
		"int b;":       3,
		"a = 1;":       5,
		"b = 2;":       6,
		"return a + b;": 7,
	}
	for _, st := range stmts {
		line, ok := want[st.Text]
		if !ok {
			continue
		}
		if st.Line != line {
			t.Errorf("%q at line %d, want %d", st.Text, st.Line, line)
		}
		delete(want, st.Text)
	}
	for text := range want {
		t.Errorf("statement %q missing from stream", text)
	}
}

func TestAggregateScope(t *testing.T) {
	t.Parallel()

	src := `struct point {
    int x;
    int y;
};
int main(void) {
    int x = 1;
    return x;
}`
	tree, _ := buildScopes(t, src)

	agg := tree.ScopeAt(2)
	if !agg.Aggregate {
		t.Fatal("struct body not marked as aggregate")
	}
	// 成员不注册为变量
	if _, ok := agg.Lookup("x"); ok {
		t.Error("struct member x registered as a variable")
	}
	if tree.FindDeclaration("x", 7) == nil {
		t.Error("local x in main not found")
	}
}

func TestShadowing(t *testing.T) {
	t.Parallel()

	src := `int main(void) {
    int v = 1;
    if (v) {
        int v = 2;
        v = 3;
    }
    return v;
}`
	tree, _ := buildScopes(t, src)

	inner := tree.FindDeclaration("v", 5)
	outer := tree.FindDeclaration("v", 7)
	if inner == nil || outer == nil {
		t.Fatal("v not resolvable")
	}
	if inner == outer {
		t.Error("inner v did not shadow outer v")
	}
	if inner.Line != 4 || outer.Line != 2 {
		t.Errorf("decl lines = %d, %d; want 4, 2", inner.Line, outer.Line)
	}
}

func TestUnclosedScopeForcedShut(t *testing.T) {
	t.Parallel()

	tree, _ := buildScopes(t, "int main(void) {\n    int x;")
	fns := tree.Functions()
	if len(fns) != 1 {
		t.Fatalf("got %d functions, want 1", len(fns))
	}
	if fns[0].EndLine != 2 {
		t.Errorf("EndLine = %d, want forced close at 2", fns[0].EndLine)
	}
}
