// Package engine orchestrates one execution attempt end to end:
// permission gate, operation tracking, before-state capture, handler
// dispatch, after-state capture, snapshot persistence.
//
// Control flow for a typed action:
//
//	caller → gate.Check → tracker.Start → before capture →
//	handler → after capture → snapshot.Create → tracker.Complete
//
// Dispatch is a static lookup from action type to handler function,
// resolved at exactly one point. Capturers are registered pairwise
// with handlers; registration refuses an action type missing either
// side, so a new action type cannot forget its capture functions.
//
// Execution is synchronous and single-threaded per request. There is
// no transaction spanning capture → effect → snapshot: if the process
// dies between the effect and the snapshot write, the content store
// is mutated with no reversible record. A per-target advisory lock
// serializes concurrent executions against the same entity from
// before-capture to snapshot persistence, which closes the
// lost-interleaving gap but not the crash gap; the guarantee is
// at-most-once, best-effort.
package engine
