package plugin

import (
	"errors"
	"fmt"
	"path/filepath"
	goplugin "plugin"
)

// moduleSymbol is the constructor every plugin file must export.
const moduleSymbol = "Module"

// LoadDir discovers mod_*.so files in dir and loads each exported module
// definition. A broken plugin is skipped with a logged error; one bad file
// never aborts the batch. Returns the number of modules actually loaded.
func (r *Registry) LoadDir(dir string) int {
	paths, err := filepath.Glob(filepath.Join(dir, "mod_*.so"))
	if err != nil {
		r.log.Error().Err(err).Str("dir", dir).Msg("plugin discovery failed")
		return 0
	}

	loaded := 0
	for _, path := range paths {
		spec, err := openPlugin(path)
		if err != nil {
			r.log.Error().Err(err).Str("path", path).Msg("skipping plugin")
			continue
		}
		if r.Load(*spec) {
			loaded++
		}
	}
	return loaded
}

// openPlugin loads one shared object and validates its exported shape before
// handing the definition to the registry. A panicking constructor is
// contained here.
func openPlugin(path string) (spec *ModuleSpec, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			spec = nil
			err = fmt.Errorf("plugin constructor panicked: %v", rec)
		}
	}()

	p, err := goplugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plugin: %w", err)
	}

	sym, err := p.Lookup(moduleSymbol)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", moduleSymbol, err)
	}

	ctor, ok := sym.(func() ModuleSpec)
	if !ok {
		return nil, fmt.Errorf("symbol %s has type %T, want func() ModuleSpec", moduleSymbol, sym)
	}

	s := ctor()
	if s.Name == "" {
		return nil, errors.New("module definition has no name")
	}
	return &s, nil
}
