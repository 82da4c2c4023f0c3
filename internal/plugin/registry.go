// Package plugin owns the set of loaded modules and the flattened command
// index the dispatch pipeline resolves against.
package plugin

import (
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roombot/internal/store"
)

// Registry mediates module load/unload/overwrite and keeps the flattened,
// case-insensitive name→command index consistent with the module set.
type Registry struct {
	mu       sync.RWMutex
	log      *zerolog.Logger
	revision int

	rt           Runtime
	store        store.LogStore
	room         string
	moduleConfig map[string]map[string]any

	modules  map[string]*Module
	commands map[string]*Command
}

// NewRegistry constructs an empty registry configured for one protocol
// revision.
func NewRegistry(logger *zerolog.Logger, revision int) *Registry {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Registry{
		log:      logger,
		revision: revision,
		modules:  make(map[string]*Module),
		commands: make(map[string]*Command),
	}
}

// Attach binds the contextual data handed to module hooks: the owning
// runtime, the persistence handle, the room name, and per-module config.
func (r *Registry) Attach(rt Runtime, st store.LogStore, room string, moduleConfig map[string]map[string]any) {
	r.mu.Lock()
	r.rt = rt
	r.store = st
	r.room = room
	r.moduleConfig = moduleConfig
	r.mu.Unlock()
}

// Load registers a module. A module whose declared protocol revisions exclude
// the registry's configured revision is skipped silently. A same-named module
// already loaded is unloaded first and replaced.
func (r *Registry) Load(spec ModuleSpec) bool {
	m := newModule(spec)
	if !m.SupportsRevision(r.revision) {
		r.log.Debug().Str("module", m.Name()).Int("revision", r.revision).
			Msg("module does not support configured protocol revision, skipping")
		return false
	}

	key := strings.ToLower(m.Name())

	r.mu.Lock()
	old := r.modules[key]
	if old != nil {
		r.evictCommandsLocked(old)
		delete(r.modules, key)
	}
	r.modules[key] = m
	for _, cmd := range m.Commands() {
		cmdKey := strings.ToLower(cmd.Name())
		if existing, ok := r.commands[cmdKey]; ok {
			r.log.Warn().Str("command", cmd.Name()).
				Str("loaded", cmd.FullName()).Str("shadowed", existing.FullName()).
				Msg("command name collision, last loaded wins")
		}
		r.commands[cmdKey] = cmd
	}
	r.mu.Unlock()

	if old != nil {
		old.Emit(HookUnload, r.hookContext(old))
	}
	m.Emit(HookLoad, r.hookContext(m))
	r.log.Info().Str("module", m.Name()).Int("commands", len(m.Commands())).Msg("module loaded")
	return true
}

// Unload removes the named module and its commands from the index. It returns
// false without effect when the module is unknown or protected.
func (r *Registry) Unload(name string) bool {
	key := strings.ToLower(name)

	r.mu.Lock()
	m, ok := r.modules[key]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if m.Protected() {
		r.mu.Unlock()
		r.log.Warn().Str("module", m.Name()).Msg("refusing to unload protected module")
		return false
	}
	r.evictCommandsLocked(m)
	delete(r.modules, key)
	r.mu.Unlock()

	m.Emit(HookUnload, r.hookContext(m))
	r.log.Info().Str("module", m.Name()).Msg("module unloaded")
	return true
}

// evictCommandsLocked removes the module's commands from the flattened index,
// but only entries whose full name still matches. A same-named command
// re-registered by a different module in between stays untouched.
func (r *Registry) evictCommandsLocked(m *Module) {
	for _, cmd := range m.Commands() {
		key := strings.ToLower(cmd.Name())
		if current, ok := r.commands[key]; ok && current.FullName() == cmd.FullName() {
			delete(r.commands, key)
		}
	}
}

// GetCommand resolves a command by bare name, case-insensitively.
func (r *Registry) GetCommand(name string) *Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.commands[strings.ToLower(name)]
}

// GetModule resolves a module by name, case-insensitively.
func (r *Registry) GetModule(name string) *Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.modules[strings.ToLower(name)]
}

// Modules returns the loaded modules sorted by name.
func (r *Registry) Modules() []*Module {
	r.mu.RLock()
	out := make([]*Module, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, m)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// CommandCount returns the size of the flattened index.
func (r *Registry) CommandCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// EmitAll delivers an event to every enabled module.
func (r *Registry) EmitAll(event string, data any) {
	for _, m := range r.Modules() {
		if !m.Enabled() {
			continue
		}
		hc := r.hookContext(m)
		hc.Data = data
		m.Emit(event, hc)
	}
}

func (r *Registry) hookContext(m *Module) *HookContext {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hc := &HookContext{
		Room:    r.room,
		Store:   r.store,
		Runtime: r.rt,
	}
	if m != nil && r.moduleConfig != nil {
		hc.Config = r.moduleConfig[strings.ToLower(m.Name())]
	}
	return hc
}
