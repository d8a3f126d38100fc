package profile

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/tools/cover"

	"github.com/unbound-force/tally/internal/taxonomy"
)

func loadTestdata(t *testing.T, ignoreGenerated bool) *Result {
	t.Helper()
	res, err := Load("testdata/cover.out", Options{
		ModuleDir:       "testdata/src",
		IgnoreGenerated: ignoreGenerated,
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return res
}

// --- Conversion ---

func TestLoad_Functions(t *testing.T) {
	res := loadTestdata(t, true)

	if res.Mode != "count" {
		t.Errorf("Mode = %q, want count", res.Mode)
	}
	want := []struct {
		name       string
		complexity int
		blocks     int
	}{
		{"cart.Total", 3, 5},
		{"cart.(*Cart).Empty", 1, 1},
		{"example.com/shop/gen/missing.go", 1, 1},
	}
	if len(res.Functions) != len(want) {
		t.Fatalf("got %d functions, want %d: %+v", len(res.Functions), len(want), res.Functions)
	}
	for i, w := range want {
		fn := res.Functions[i]
		if fn.Name != w.name || fn.Complexity != w.complexity || len(fn.Blocks) != w.blocks {
			t.Errorf("Functions[%d] = %s (complexity %d, %d blocks), want %s (%d, %d)",
				i, fn.Name, fn.Complexity, len(fn.Blocks), w.name, w.complexity, w.blocks)
		}
	}
	if res.Functions[0].Line != 10 {
		t.Errorf("Total line = %d, want 10", res.Functions[0].Line)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "example.com/shop/cart/zz_generated.go" {
		t.Errorf("Skipped = %v, want the generated file", res.Skipped)
	}
}

func TestLoad_Plan(t *testing.T) {
	res := loadTestdata(t, true)
	p := res.Plan

	if p.Name != "cover.out" {
		t.Errorf("plan name = %q, want cover.out", p.Name)
	}
	if p.Universe() != 7 {
		t.Fatalf("Universe() = %d, want 7", p.Universe())
	}
	if len(p.Tests) != 1 || p.Tests[0].Name != DefaultTestName {
		t.Fatalf("Tests = %+v, want one %q test", p.Tests, DefaultTestName)
	}
	counts := p.Tests[0].HitCounts()
	wantCounts := map[taxonomy.BlockID]uint64{0: 2, 1: 5, 3: 5, 4: 2, 6: 1}
	if len(counts) != len(wantCounts) {
		t.Errorf("HitCounts = %v, want %v", counts, wantCounts)
	}
	for b, n := range wantCounts {
		if counts[b] != n {
			t.Errorf("HitCounts[%s] = %d, want %d", b, counts[b], n)
		}
	}

	weights := map[taxonomy.BlockID]float64{0: 6, 1: 3, 4: 3, 5: 1, 6: 1}
	for b, w := range weights {
		if got := p.Weight(b); got != w {
			t.Errorf("Weight(%s) = %v, want %v", b, got, w)
		}
	}
}

func TestLoad_IncludeGenerated(t *testing.T) {
	res := loadTestdata(t, false)
	if res.Plan.Universe() != 8 {
		t.Errorf("Universe() = %d, want 8 with generated code", res.Plan.Universe())
	}
	if len(res.Skipped) != 0 {
		t.Errorf("Skipped = %v, want none", res.Skipped)
	}
	if res.Functions[2].Name != "cart.generated" {
		t.Errorf("Functions[2] = %s, want cart.generated", res.Functions[2].Name)
	}
}

func TestStatementCoverage(t *testing.T) {
	covered, total := loadTestdata(t, true).StatementCoverage()
	if covered != 6 || total != 8 {
		t.Errorf("StatementCoverage() = %d/%d, want 6/8", covered, total)
	}
}

func TestLoad_BadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.out")
	if err := os.WriteFile(path, []byte("not a profile\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, Options{}); err == nil {
		t.Error("Load(bad profile) succeeded, want error")
	}
}

func TestConvert_Empty(t *testing.T) {
	res, err := Convert(nil, Options{ModuleDir: t.TempDir(), TestName: "none"})
	if err != nil {
		t.Fatalf("Convert(nil): %v", err)
	}
	if res.Plan.Universe() != 0 || res.Plan.Tests[0].Name != "none" {
		t.Errorf("plan = %+v, want empty universe with test none", res.Plan)
	}
}

// --- Source helpers ---

func TestOwningFunc(t *testing.T) {
	funcs := []funcExtent{
		{name: "a", startLine: 3, startCol: 1, endLine: 5, endCol: 2},
		{name: "b", startLine: 7, startCol: 1, endLine: 9, endCol: 2},
	}
	tests := []struct {
		block cover.ProfileBlock
		want  int
	}{
		{cover.ProfileBlock{StartLine: 3, StartCol: 10, EndLine: 5, EndCol: 2}, 0},
		{cover.ProfileBlock{StartLine: 8, StartCol: 2, EndLine: 8, EndCol: 9}, 1},
		{cover.ProfileBlock{StartLine: 1, StartCol: 1, EndLine: 2, EndCol: 4}, 2},
		{cover.ProfileBlock{StartLine: 5, StartCol: 2, EndLine: 6, EndCol: 1}, 2},
	}
	for _, tt := range tests {
		if got := owningFunc(funcs, tt.block); got != tt.want {
			t.Errorf("owningFunc(%d.%d) = %d, want %d", tt.block.StartLine, tt.block.StartCol, got, tt.want)
		}
	}
}

func TestRecvTypeString(t *testing.T) {
	sf, err := parseSource("testdata/src/cart/cart.go")
	if err != nil {
		t.Fatalf("parseSource: %v", err)
	}
	if sf.pkgName != "cart" {
		t.Errorf("pkgName = %q, want cart", sf.pkgName)
	}
	if len(sf.funcs) != 2 || sf.funcs[1].name != "(*Cart).Empty" {
		t.Errorf("funcs = %+v, want Total and (*Cart).Empty", sf.funcs)
	}
}

func TestParseSource_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.go")
	if err := os.WriteFile(path, []byte("package x\nfunc {"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := parseSource(path); err == nil {
		t.Error("parseSource(broken) succeeded, want error")
	}
}

func TestResolveFilePath(t *testing.T) {
	if got := resolveFilePath("example.com/shop/cart/cart.go", "testdata/src"); got != filepath.Join("testdata/src", "cart", "cart.go") {
		t.Errorf("resolveFilePath(module relative) = %q", got)
	}
	if got := resolveFilePath("example.com/shopping/cart.go", "testdata/src"); got != "" {
		t.Errorf("resolveFilePath(other module) = %q, want empty", got)
	}
	abs, _ := filepath.Abs("testdata/src/cart/cart.go")
	if got := resolveFilePath(abs, t.TempDir()); got != abs {
		t.Errorf("resolveFilePath(absolute) = %q, want %q", got, abs)
	}
	if got := resolveFilePath("x/y.go", t.TempDir()); got != "" {
		t.Errorf("resolveFilePath(no go.mod) = %q, want empty", got)
	}
}

func TestIsGeneratedFile(t *testing.T) {
	if !isGeneratedFile("testdata/src/cart/zz_generated.go") {
		t.Error("zz_generated.go not detected as generated")
	}
	if isGeneratedFile("testdata/src/cart/cart.go") {
		t.Error("cart.go detected as generated")
	}
	if isGeneratedFile("testdata/nope.go") {
		t.Error("missing file detected as generated")
	}
}
