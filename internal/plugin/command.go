package plugin

import (
	"errors"
	"sync"
	"time"
)

// DefaultCooldown applies to commands that declare neither a cooldown nor
// NoCooldown.
const DefaultCooldown = 10 * time.Second

// Handler executes one command invocation. A non-empty return value is sent
// through the invocation's reply function; a handler may also use the context
// send/whisper functions directly, and both at once is legal.
type Handler func(inv *Invocation) (string, error)

// CommandSpec declares one command of a module.
type CommandSpec struct {
	Name string
	// Cooldown is the per-user minimum interval between executions. Zero
	// means DefaultCooldown; set NoCooldown for unlimited use.
	Cooldown   time.Duration
	NoCooldown bool
	// MasterOnly restricts the command to the configured master user.
	MasterOnly bool
	Handler    Handler
}

// Command is a registered, cooldown-tracked unit of behavior.
type Command struct {
	mu         sync.Mutex
	name       string
	cooldown   time.Duration
	masterOnly bool
	enabled    bool
	module     *Module
	handler    Handler
	// lastUsed keys on the raw username. Every other lookup in the system is
	// case-insensitive; cooldown bookkeeping deliberately is not, matching
	// historical behavior.
	lastUsed map[string]time.Time
}

func newCommand(spec CommandSpec, owner *Module) *Command {
	cooldown := spec.Cooldown
	if spec.NoCooldown {
		cooldown = 0
	} else if cooldown == 0 {
		cooldown = DefaultCooldown
	}
	return &Command{
		name:       spec.Name,
		cooldown:   cooldown,
		masterOnly: spec.MasterOnly,
		enabled:    true,
		module:     owner,
		handler:    spec.Handler,
		lastUsed:   make(map[string]time.Time),
	}
}

// Name returns the bare command name.
func (c *Command) Name() string { return c.name }

// FullName returns "module.command", the identity used when reconciling the
// flattened registry index.
func (c *Command) FullName() string {
	if c.module == nil {
		return c.name
	}
	return c.module.Name() + "." + c.name
}

// Module returns the owning module, or nil.
func (c *Command) Module() *Module { return c.module }

// MasterOnly reports whether the command is restricted to the master user.
func (c *Command) MasterOnly() bool { return c.masterOnly }

// Cooldown returns the per-user interval; zero means unlimited use.
func (c *Command) Cooldown() time.Duration { return c.cooldown }

// Enabled reports effective enablement: the command's own flag and, when the
// command is owned, the owning module's flag.
func (c *Command) Enabled() bool {
	c.mu.Lock()
	enabled := c.enabled
	c.mu.Unlock()
	if !enabled {
		return false
	}
	return c.module == nil || c.module.Enabled()
}

// SetEnabled toggles the command's own flag.
func (c *Command) SetEnabled(enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()
}

// Remaining returns how long the user must still wait before the command may
// run again, or zero when it may run now.
func (c *Command) Remaining(username string, now time.Time) time.Duration {
	if c.cooldown <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.lastUsed[username]
	if !ok {
		return 0
	}
	wait := c.cooldown - now.Sub(last)
	if wait < 0 {
		return 0
	}
	return wait
}

// MarkUsed records an execution timestamp for the user.
func (c *Command) MarkUsed(username string, now time.Time) {
	c.mu.Lock()
	c.lastUsed[username] = now
	c.mu.Unlock()
}

// Run executes the handler.
func (c *Command) Run(inv *Invocation) (string, error) {
	if c.handler == nil {
		return "", errors.New("command has no handler")
	}
	return c.handler(inv)
}
