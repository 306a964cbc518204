package pluginreg

import (
	"testing"
	"unsafe"
)

func TestLoadMissingPlugin(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Load("no-such-plugin-anywhere.so"); err == nil {
		t.Fatal("expected an error for a plugin that cannot be resolved")
	}
}

func TestRequireMatchHookRejectsPluginWithoutMatch(t *testing.T) {
	p := &Plugin{Path: "synthetic"}
	if err := RequireMatchHook(p); err == nil {
		t.Fatal("expected an error: plugin has no match hook")
	}
}

func TestRequireMatchHookAcceptsMatchHook(t *testing.T) {
	p := &Plugin{Path: "synthetic"}
	p.match = func(ctx unsafe.Pointer, addr uint64, raw uintptr, size uint32) int64 { return 7 }
	if err := RequireMatchHook(p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPluginHasHooks(t *testing.T) {
	p := &Plugin{Path: "synthetic"}
	if p.HasInit() || p.HasInstr() || p.HasMatch() || p.HasPatch() || p.HasFini() {
		t.Fatal("a freshly built Plugin should report no hooks")
	}
	p.init = func() unsafe.Pointer { return nil }
	if !p.HasInit() {
		t.Error("HasInit() = false after setting init")
	}
}

func TestPluginMatchRecordsLastResult(t *testing.T) {
	p := &Plugin{Path: "synthetic"}
	p.match = func(ctx unsafe.Pointer, addr uint64, raw uintptr, size uint32) int64 { return 42 }
	got := p.Match(0x1000, 0, 4)
	if got != 42 {
		t.Errorf("Match() = %d, want 42", got)
	}
	if p.LastResult != 42 {
		t.Errorf("LastResult = %d, want 42", p.LastResult)
	}
}

func TestPluginMatchWithoutHookReturnsZero(t *testing.T) {
	p := &Plugin{Path: "synthetic"}
	if got := p.Match(0, 0, 0); got != 0 {
		t.Errorf("Match() without a hook = %d, want 0", got)
	}
}

func TestRegistryInitFiniOrder(t *testing.T) {
	r := NewRegistry()
	var order []string
	mk := func(name string) *Plugin {
		p := &Plugin{Path: name}
		p.init = func() unsafe.Pointer { order = append(order, "init:"+name); return nil }
		p.fini = func(ctx unsafe.Pointer) { order = append(order, "fini:"+name) }
		return p
	}
	a, b := mk("a"), mk("b")
	r.byPath["a"] = a
	r.byPath["b"] = b
	r.order = []*Plugin{a, b}

	r.InitAll()
	r.FiniAll()

	want := []string{"init:a", "init:b", "fini:b", "fini:a"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestRegistryForEachWithInstr(t *testing.T) {
	r := NewRegistry()
	withInstr := &Plugin{Path: "x"}
	withInstr.instr = func(ctx unsafe.Pointer, addr uint64, raw uintptr, size uint32) {}
	withoutInstr := &Plugin{Path: "y"}
	r.order = []*Plugin{withInstr, withoutInstr}

	var seen []string
	r.ForEachWithInstr(func(p *Plugin) { seen = append(seen, p.Path) })
	if len(seen) != 1 || seen[0] != "x" {
		t.Errorf("ForEachWithInstr visited %v, want [x]", seen)
	}
}

func TestCandidateNames(t *testing.T) {
	if got := candidateNames("cov.so"); len(got) != 1 || got[0] != "cov.so" {
		t.Errorf("candidateNames(%q) = %v, want [cov.so]", "cov.so", got)
	}
	got := candidateNames("cov")
	want := []string{"cov", "cov.so"}
	if len(got) != len(want) {
		t.Fatalf("candidateNames(%q) = %v, want %v", "cov", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidateNames(%q)[%d] = %q, want %q", "cov", i, got[i], want[i])
		}
	}
}
