package plugin

import (
	"fmt"
	"strings"
)

// CoreModule returns the registry's self-management module: master-only
// commands to toggle and unload other modules. It is the only module that
// cannot itself be unloaded.
func CoreModule() ModuleSpec {
	return ModuleSpec{
		Name:      "core",
		Protected: true,
		Commands: []CommandSpec{
			{Name: "enable", MasterOnly: true, NoCooldown: true, Handler: handleEnable},
			{Name: "disable", MasterOnly: true, NoCooldown: true, Handler: handleDisable},
			{Name: "unload", MasterOnly: true, NoCooldown: true, Handler: handleUnload},
			{Name: "modules", MasterOnly: true, NoCooldown: true, Handler: handleModules},
		},
	}
}

func handleEnable(inv *Invocation) (string, error) {
	return setEnabled(inv, true)
}

func handleDisable(inv *Invocation) (string, error) {
	return setEnabled(inv, false)
}

func setEnabled(inv *Invocation, enabled bool) (string, error) {
	if len(inv.Args) == 0 {
		return "usage: " + inv.Head + " <module|command>", nil
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}

	reg := inv.Runtime.Registry()
	name := inv.Args[0]
	if m := reg.GetModule(name); m != nil {
		m.SetEnabled(enabled)
		return fmt.Sprintf("module %s %s", m.Name(), state), nil
	}
	if c := reg.GetCommand(name); c != nil {
		c.SetEnabled(enabled)
		return fmt.Sprintf("command %s %s", c.Name(), state), nil
	}
	return fmt.Sprintf("no module or command named %q", name), nil
}

func handleUnload(inv *Invocation) (string, error) {
	if len(inv.Args) == 0 {
		return "usage: " + inv.Head + " <module>", nil
	}
	name := inv.Args[0]
	if !inv.Runtime.Registry().Unload(name) {
		return fmt.Sprintf("cannot unload %q", name), nil
	}
	return fmt.Sprintf("module %s unloaded", name), nil
}

func handleModules(inv *Invocation) (string, error) {
	var parts []string
	for _, m := range inv.Runtime.Registry().Modules() {
		entry := m.Name()
		if !m.Enabled() {
			entry += " (disabled)"
		}
		parts = append(parts, entry)
	}
	if len(parts) == 0 {
		return "no modules loaded", nil
	}
	return "loaded: " + strings.Join(parts, ", "), nil
}
