// Package policy compiles the engine policy from CUE into the
// effective configuration: which action types are allowed, the
// capability each requires, the sandbox deny-list, and the snapshot
// retention bounds.
//
// Policy is authored in CUE rather than plain YAML so malformed
// policies fail at compile time with positions, and so operators can
// constrain their own site policies against the schema.
package policy

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/undolab/saferun/internal/action"
)

//go:embed default_policy.cue
var defaultPolicyCUE string

// Policy is the compiled, validated engine policy.
type Policy struct {
	// AllowedActions is the subset of the vocabulary this deployment
	// permits. Order follows the policy file.
	AllowedActions []action.Type

	// Capabilities maps each allowed action type to the capability a
	// caller must hold.
	Capabilities map[action.Type]string

	// ForbiddenSymbols is the sandbox deny-list: any generated code
	// referencing one of these is rejected before execution.
	ForbiddenSymbols []string

	// CodeTimeoutSeconds bounds generated-code execution.
	CodeTimeoutSeconds int

	// SnapshotRetentionDays bounds snapshot age.
	SnapshotRetentionDays int

	// SnapshotMaxSizeMB bounds cumulative stored snapshot size.
	SnapshotMaxSizeMB int
}

// Allows reports whether the policy permits an action type.
func (p *Policy) Allows(t action.Type) bool {
	_, ok := p.Capabilities[t]
	return ok
}

// Default compiles the embedded default policy. Panics if the
// embedded policy is invalid, which is a build defect.
func Default() *Policy {
	p, err := CompileSource(defaultPolicyCUE, "default_policy.cue")
	if err != nil {
		panic(fmt.Sprintf("embedded default policy invalid: %v", err))
	}
	return p
}

// LoadFile compiles a policy from a CUE file on disk.
func LoadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return CompileSource(string(data), path)
}

// CompileSource compiles CUE source into a Policy.
func CompileSource(source, filename string) (*Policy, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(source, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return Compile(v.LookupPath(cue.ParsePath("policy")))
}
