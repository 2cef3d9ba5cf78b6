// Package sandbox executes free-form generated code inside an
// embedded Lua interpreter with output capture, a deny-list scan, an
// allow-listed environment, and a wall-clock timeout.
//
// The security model is allow-list first: only the base, string,
// table, and math libraries are opened, and the only host
// capabilities are the read-only store accessors injected under the
// `store` global. The configured deny-list runs as a backstop scan
// before execution so generated code referencing os, io, or the load
// family is rejected with the offending symbol name.
//
// The sandbox never rolls anything back itself. Callers wrap it in
// the same capture/snapshot flow as typed actions when the code's
// effect must be undoable.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Shopify/go-lua"

	"github.com/undolab/saferun/internal/audit"
	"github.com/undolab/saferun/internal/content"
	"github.com/undolab/saferun/internal/state"
)

// Diag is one structured diagnostic produced during execution.
// Runtime errors become diagnostics rather than silent failures.
type Diag struct {
	Kind    string `json:"kind"` // "runtime" | "timeout"
	Message string `json:"message"`
}

// RunResult is the outcome of one code execution.
type RunResult struct {
	// Output is everything the code printed, captured instead of
	// streamed.
	Output string `json:"output"`
	// ReturnValue is the chunk's return value, if any.
	ReturnValue state.Value `json:"return_value,omitempty"`
	// Errors lists structured diagnostics; empty on clean runs.
	Errors []Diag `json:"errors,omitempty"`
}

// Runner executes generated code. Each Run builds a fresh interpreter
// state; a Runner is safe for concurrent use.
type Runner struct {
	forbidden []string
	scanner   *scanner
	timeout   time.Duration
	content   content.Store
	audit     *audit.Handler
}

// New creates a Runner. forbidden is the deny-list in policy order;
// timeout bounds wall-clock execution; cs provides the injected
// read capabilities (nil injects nothing).
func New(forbidden []string, timeout time.Duration, cs content.Store, auditor *audit.Handler) *Runner {
	if auditor == nil {
		auditor = audit.NewHandler(nil)
	}
	return &Runner{
		forbidden: append([]string(nil), forbidden...),
		scanner:   newScanner(forbidden),
		timeout:   timeout,
		content:   cs,
		audit:     auditor,
	}
}

// outputBuffer collects printed text under a lock so the watchdog can
// read partial output after a timeout.
type outputBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *outputBuffer) append(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.WriteString(s)
}

func (b *outputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Run validates and executes source.
//
// Pipeline: syntax check, deny-list scan, then execution with print
// captured and the deadline enforced. The returned error is a
// classified *audit.EngineError for syntax, scan, and timeout
// failures; runtime errors inside otherwise-valid code come back as
// diagnostics in RunResult.Errors with a nil error.
func (r *Runner) Run(ctx context.Context, source string) (RunResult, error) {
	output := &outputBuffer{}
	deadline := time.Now().Add(r.timeout)

	l := lua.NewState()
	r.openLibraries(l)
	r.injectPrint(l, output)
	r.injectStore(ctx, l, deadline)

	if err := lua.LoadString(l, source); err != nil {
		classified := audit.NewError(audit.CodeSyntaxError, err.Error(), "", "")
		r.audit.Failure(ctx, classified, "run_code", "", nil)
		return RunResult{}, classified
	}

	if sym := r.scanner.scan(source, r.forbidden); sym != "" {
		err := audit.NewError(audit.CodeForbiddenFunction,
			fmt.Sprintf("forbidden symbol %q", sym), "", "")
		r.audit.Failure(ctx, err, "run_code", "", map[string]any{"symbol": sym})
		return RunResult{}, err
	}

	// go-lua has no preemptive interrupt, so the timeout is enforced
	// two ways: injected host functions check the deadline, and this
	// watchdog abandons the interpreter goroutine once the budget is
	// spent. An abandoned goroutine errors on its next host call and
	// exits; a pure-Lua loop that never calls the host has no exit
	// path and spins until the process ends. Its state is discarded
	// either way.
	type callResult struct {
		err    error
		retval state.Value
	}
	done := make(chan callResult, 1)
	go func() {
		err := l.ProtectedCall(0, lua.MultipleReturns, 0)
		var retval state.Value
		if err == nil && l.Top() > 0 {
			retval = luaToValue(l, 1, 0)
		}
		done <- callResult{err: err, retval: retval}
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		result := RunResult{Output: output.String(), ReturnValue: res.retval}
		if res.err != nil {
			result.Errors = append(result.Errors, Diag{Kind: "runtime", Message: res.err.Error()})
			r.audit.Warn(ctx, "code_runtime_error", map[string]any{"error": res.err.Error()})
		}
		return result, nil

	case <-timer.C:
		classified := audit.NewError(audit.CodeTimeout,
			fmt.Sprintf("code execution exceeded %s", r.timeout), "", "")
		r.audit.Failure(ctx, classified, "run_code", "", nil)
		return RunResult{
			Output: output.String(),
			Errors: []Diag{{Kind: "timeout", Message: classified.Message}},
		}, classified

	case <-ctx.Done():
		classified := audit.NewError(audit.CodeTimeout, ctx.Err().Error(), "", "")
		return RunResult{Output: output.String()}, classified
	}
}

// openLibraries opens only the safe subset: base, string, table,
// math. os, io, debug, and package never enter the environment.
func (r *Runner) openLibraries(l *lua.State) {
	for _, lib := range []struct {
		name string
		open lua.Function
	}{
		{"_G", lua.BaseOpen},
		{"string", lua.StringOpen},
		{"table", lua.TableOpen},
		{"math", lua.MathOpen},
	} {
		lua.Require(l, lib.name, lib.open, true)
		l.Pop(1)
	}

	// The base library still exposes the load family; remove it so
	// the allow-list holds even without the textual scan.
	for _, name := range []string{"load", "loadstring", "loadfile", "dofile", "require"} {
		l.PushNil()
		l.SetGlobal(name)
	}
}

// injectPrint replaces print with a capturing implementation.
func (r *Runner) injectPrint(l *lua.State, output *outputBuffer) {
	l.Register("print", func(l *lua.State) int {
		n := l.Top()
		var line bytes.Buffer
		for i := 1; i <= n; i++ {
			if i > 1 {
				line.WriteByte('\t')
			}
			s, _ := lua.ToStringMeta(l, i)
			line.WriteString(s)
		}
		line.WriteByte('\n')
		output.append(line.String())
		return 0
	})
}

// injectStore exposes the allow-listed read capabilities under the
// `store` global. Every function checks the deadline first so a
// store-heavy loop cannot outlive the budget between watchdog ticks.
func (r *Runner) injectStore(ctx context.Context, l *lua.State, deadline time.Time) {
	if r.content == nil {
		return
	}

	check := func(l *lua.State) {
		if time.Now().After(deadline) {
			lua.Errorf(l, "code execution deadline exceeded")
		}
	}

	functions := []lua.RegistryFunction{
		{Name: "get_post", Function: func(l *lua.State) int {
			check(l)
			target := lua.CheckString(l, 1)
			fields, err := r.content.GetPost(ctx, target)
			if err != nil {
				l.PushNil()
				return 1
			}
			pushValue(l, fields)
			return 1
		}},
		{Name: "get_post_meta", Function: func(l *lua.State) int {
			check(l)
			target := lua.CheckString(l, 1)
			key := lua.CheckString(l, 2)
			value, err := r.content.GetPostMeta(ctx, target, key)
			if err != nil {
				l.PushNil()
				return 1
			}
			pushValue(l, value)
			return 1
		}},
		{Name: "get_option", Function: func(l *lua.State) int {
			check(l)
			key := lua.CheckString(l, 1)
			value, err := r.content.GetOption(ctx, key)
			if err != nil {
				l.PushNil()
				return 1
			}
			pushValue(l, value)
			return 1
		}},
		{Name: "get_widget", Function: func(l *lua.State) int {
			check(l)
			target := lua.CheckString(l, 1)
			fields, err := r.content.GetWidget(ctx, target)
			if err != nil {
				l.PushNil()
				return 1
			}
			pushValue(l, fields)
			return 1
		}},
	}

	l.NewTable()
	lua.SetFunctions(l, functions, 0)
	l.SetGlobal("store")
}
