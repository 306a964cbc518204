// Package pluginreg loads native dynamic-library match/instr/patch/init/fini
// plugins, deduplicating by canonical path and exposing lifecycle hooks as
// a capability record rather than an inheritance hierarchy.
package pluginreg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unsafe"

	"github.com/ebitengine/purego"

	"binrewrite/internal/diag"
)

// Hook symbol names, per the plugin ABI: e9_plugin_<hook>_v1.
const (
	symInit  = "e9_plugin_init_v1"
	symInstr = "e9_plugin_instr_v1"
	symMatch = "e9_plugin_match_v1"
	symPatch = "e9_plugin_patch_v1"
	symFini  = "e9_plugin_fini_v1"
)

type initFunc func() unsafe.Pointer
type instrFunc func(ctx unsafe.Pointer, addr uint64, raw uintptr, size uint32)
type matchFunc func(ctx unsafe.Pointer, addr uint64, raw uintptr, size uint32) int64
type patchFunc func(ctx unsafe.Pointer, addr uint64, raw uintptr, size uint32)
type finiFunc func(ctx unsafe.Pointer)

// Plugin is a loaded dynamic library with its resolved lifecycle hooks.
// A nil hook field means the plugin does not implement that hook; callers
// must check before invoking.
type Plugin struct {
	Path       string // canonical, resolved path
	handle     uintptr
	Context    unsafe.Pointer
	LastResult int64

	init  initFunc
	instr instrFunc
	match matchFunc
	patch patchFunc
	fini  finiFunc
}

// HasInit, HasInstr, HasMatch, HasPatch, HasFini report hook availability.
func (p *Plugin) HasInit() bool  { return p.init != nil }
func (p *Plugin) HasInstr() bool { return p.instr != nil }
func (p *Plugin) HasMatch() bool { return p.match != nil }
func (p *Plugin) HasPatch() bool { return p.patch != nil }
func (p *Plugin) HasFini() bool  { return p.fini != nil }

// Init invokes the init hook once, binding the plugin's context for the
// remainder of the run.
func (p *Plugin) Init() {
	if p.init != nil {
		p.Context = p.init()
	}
}

// Instr invokes the instr hook during the notification pass.
func (p *Plugin) Instr(addr uint64, raw uintptr, size uint32) {
	if p.instr != nil {
		p.instr(p.Context, addr, raw, size)
	}
}

// Match invokes the match hook and records the result for MATCH_PLUGIN
// comparisons.
func (p *Plugin) Match(addr uint64, raw uintptr, size uint32) int64 {
	if p.match == nil {
		return 0
	}
	p.LastResult = p.match(p.Context, addr, raw, size)
	return p.LastResult
}

// Patch invokes the patch hook, replacing the built-in patch message for
// plugin-kind actions.
func (p *Plugin) Patch(addr uint64, raw uintptr, size uint32) {
	if p.patch != nil {
		p.patch(p.Context, addr, raw, size)
	}
}

// Fini invokes the fini hook once before back-end shutdown.
func (p *Plugin) Fini() {
	if p.fini != nil {
		p.fini(p.Context)
	}
}

// Registry deduplicates plugins by canonical path and shares one handle
// across all references.
type Registry struct {
	byPath map[string]*Plugin
	order  []*Plugin // deterministic load order, for deterministic init/fini order
}

// NewRegistry builds an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{byPath: make(map[string]*Plugin)}
}

// Load resolves name to a canonical path and loads it, or returns the
// already-loaded Plugin if the canonical path was seen before.
func (r *Registry) Load(name string) (*Plugin, error) {
	path, err := resolve(name)
	if err != nil {
		return nil, diag.New(diag.Resolve, "plugin %q: %v", name, err)
	}
	if p, ok := r.byPath[path]; ok {
		return p, nil
	}

	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, diag.New(diag.Resolve, "plugin %q: dlopen: %v", path, err)
	}

	p := &Plugin{Path: path, handle: handle}
	bindOptional(handle, symInit, &p.init)
	bindOptional(handle, symInstr, &p.instr)
	bindOptional(handle, symMatch, &p.match)
	bindOptional(handle, symPatch, &p.patch)
	bindOptional(handle, symFini, &p.fini)

	if !p.HasInit() && !p.HasInstr() && !p.HasMatch() && !p.HasPatch() && !p.HasFini() {
		return nil, diag.New(diag.Resolve, "plugin %q exposes none of e9_plugin_{init,instr,match,patch,fini}_v1", path)
	}

	r.byPath[path] = p
	r.order = append(r.order, p)
	return p, nil
}

// RequireMatchHook validates that a plugin referenced by a match rule
// implements the match hook.
func RequireMatchHook(p *Plugin) error {
	if !p.HasMatch() {
		return diag.New(diag.Config, "plugin %q is referenced by a match rule but has no e9_plugin_match_v1 hook", p.Path)
	}
	return nil
}

// InitAll invokes init on each registered plugin in canonicalised-path
// load order, which is deterministic across repeated runs.
func (r *Registry) InitAll() {
	for _, p := range r.order {
		p.Init()
	}
}

// FiniAll invokes fini on each registered plugin, reverse of load order.
func (r *Registry) FiniAll() {
	for i := len(r.order) - 1; i >= 0; i-- {
		r.order[i].Fini()
	}
}

// ForEachWithInstr invokes fn for every plugin implementing the instr hook.
func (r *Registry) ForEachWithInstr(fn func(*Plugin)) {
	for _, p := range r.order {
		if p.HasInstr() {
			fn(p)
		}
	}
}

// ForEachWithMatch invokes fn for every plugin implementing the match hook.
func (r *Registry) ForEachWithMatch(fn func(*Plugin)) {
	for _, p := range r.order {
		if p.HasMatch() {
			fn(p)
		}
	}
}

// ForEachWithPatch invokes fn for every plugin implementing the patch hook.
func (r *Registry) ForEachWithPatch(fn func(*Plugin)) {
	for _, p := range r.order {
		if p.HasPatch() {
			fn(p)
		}
	}
}

func bindOptional[T any](handle uintptr, sym string, out *T) {
	ptr, err := purego.Dlsym(handle, sym)
	if err != nil || ptr == 0 {
		return
	}
	purego.RegisterFunc(out, ptr)
}

// resolve canonicalises a plugin reference by basename, mirroring the
// dynamic linker's default search order: a path containing a separator is
// used as-is; otherwise LD_LIBRARY_PATH entries are tried, then the
// current directory. The optional .so suffix may be omitted.
func resolve(name string) (string, error) {
	candidates := candidateNames(name)

	var dirs []string
	if strings.ContainsRune(name, os.PathSeparator) {
		dirs = []string{""}
	} else {
		if ldPath := os.Getenv("LD_LIBRARY_PATH"); ldPath != "" {
			dirs = append(dirs, strings.Split(ldPath, string(os.PathListSeparator))...)
		}
		dirs = append(dirs, ".")
	}

	for _, dir := range dirs {
		for _, cand := range candidates {
			full := cand
			if dir != "" {
				full = filepath.Join(dir, cand)
			}
			if st, err := os.Stat(full); err == nil && !st.IsDir() {
				abs, err := filepath.Abs(full)
				if err != nil {
					return "", err
				}
				resolved, err := filepath.EvalSymlinks(abs)
				if err != nil {
					return abs, nil // fall back to abs if symlink eval fails
				}
				return resolved, nil
			}
		}
	}
	return "", fmt.Errorf("not found (searched %v)", dirs)
}

func candidateNames(name string) []string {
	if strings.HasSuffix(name, ".so") {
		return []string{name}
	}
	return []string{name, name + ".so"}
}
