// Package gate authorizes action types against caller capabilities
// before anything executes. The check is pure: no side effects, no
// surprises, a structured decision either way.
package gate

import (
	"fmt"

	"github.com/undolab/saferun/internal/action"
	"github.com/undolab/saferun/internal/policy"
)

// Caller is the capability-lookup collaborator: it answers whether the
// current caller holds a named capability.
type Caller interface {
	Can(capability string) bool
}

// StaticCaller is a fixed capability set. Used by tests and by the CLI
// demo mode, where capabilities arrive as flags.
type StaticCaller map[string]bool

// Can implements Caller.
func (c StaticCaller) Can(capability string) bool { return c[capability] }

// Decision is the outcome of a permission check.
type Decision struct {
	Allowed bool
	// Capability is the capability the action requires; set whenever
	// the action type is known to the policy.
	Capability string
	// Reason explains a denial; empty when allowed.
	Reason string
}

// Gate holds the static action-type → required-capability mapping
// compiled from policy.
type Gate struct {
	capabilities map[action.Type]string
}

// New builds a Gate from compiled policy. Only actions in the
// policy's allowed list enter the mapping: a capability entry without
// a matching allowed_actions entry cannot widen the gate.
func New(p *policy.Policy) *Gate {
	caps := make(map[action.Type]string, len(p.AllowedActions))
	for _, t := range p.AllowedActions {
		if c, ok := p.Capabilities[t]; ok {
			caps[t] = c
		}
	}
	return &Gate{capabilities: caps}
}

// Check authorizes one action type for one caller. An action type the
// policy does not know is denied outright: the mapping is the
// allow-list.
func (g *Gate) Check(t action.Type, caller Caller) Decision {
	capability, ok := g.capabilities[t]
	if !ok {
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("action type %q is not permitted by policy", t),
		}
	}
	if caller == nil || !caller.Can(capability) {
		return Decision{
			Allowed:    false,
			Capability: capability,
			Reason:     fmt.Sprintf("caller lacks capability %q required for %s", capability, t),
		}
	}
	return Decision{Allowed: true, Capability: capability}
}
