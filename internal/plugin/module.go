package plugin

import (
	"sync"

	"github.com/vovakirdan/roombot/internal/store"
)

// Lifecycle events emitted by the registry. Modules may also declare hooks
// for arbitrary custom event names.
const (
	HookLoad   = "load"
	HookUnload = "unload"
	HookJoin   = "join"
	HookI18n   = "i18n"
)

// defaultRevisions is assumed when a module declares no supported protocol
// revisions.
var defaultRevisions = []int{6, 7}

// HookContext is handed to module lifecycle hooks.
type HookContext struct {
	Event   string
	Room    string
	Config  map[string]any
	Store   store.LogStore
	Runtime Runtime
	Data    any
}

// Hook is one lifecycle callback.
type Hook func(hc *HookContext)

// ModuleSpec is the loadable definition of a module.
type ModuleSpec struct {
	Name string
	// Protected marks the module as non-unloadable. Only the registry's own
	// self-management module sets it.
	Protected bool
	// Revisions lists supported protocol revisions; nil means {6, 7}.
	Revisions []int
	Commands  []CommandSpec
	Hooks     map[string]Hook
}

// Module is a named bundle of commands plus lifecycle hooks.
type Module struct {
	mu        sync.Mutex
	name      string
	enabled   bool
	protected bool
	revisions map[int]struct{}
	commands  []*Command
	hooks     map[string]Hook
}

func newModule(spec ModuleSpec) *Module {
	revs := spec.Revisions
	if len(revs) == 0 {
		revs = defaultRevisions
	}
	m := &Module{
		name:      spec.Name,
		enabled:   true,
		protected: spec.Protected,
		revisions: make(map[int]struct{}, len(revs)),
		hooks:     spec.Hooks,
	}
	for _, rev := range revs {
		m.revisions[rev] = struct{}{}
	}
	for _, cs := range spec.Commands {
		m.commands = append(m.commands, newCommand(cs, m))
	}
	return m
}

// Name returns the module name.
func (m *Module) Name() string { return m.name }

// Protected reports whether the module refuses unloading.
func (m *Module) Protected() bool { return m.protected }

// Enabled reports the module flag. A disabled module disables all of its
// commands regardless of their own flags.
func (m *Module) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// SetEnabled toggles the module flag.
func (m *Module) SetEnabled(enabled bool) {
	m.mu.Lock()
	m.enabled = enabled
	m.mu.Unlock()
}

// Commands returns the module's registered commands.
func (m *Module) Commands() []*Command {
	return append([]*Command(nil), m.commands...)
}

// SupportsRevision reports whether the module declared the given protocol
// revision.
func (m *Module) SupportsRevision(rev int) bool {
	_, ok := m.revisions[rev]
	return ok
}

// Emit invokes the named hook if the module declares one.
func (m *Module) Emit(event string, hc *HookContext) {
	hook, ok := m.hooks[event]
	if !ok {
		return
	}
	if hc == nil {
		hc = &HookContext{}
	}
	hc.Event = event
	hook(hc)
}
