// Package manager owns the native model runtime: one loaded model per process,
// a bounded pool of inference sessions against it, lazy token generation with
// cooperative cancellation, and a memory-pressure monitor. It is structured
// into small files by concern:
//
//   - manager.go: Manager facade and NewWithConfig.
//   - config.go: ManagerConfig and package defaults.
//   - handle.go: runtime handle lifecycle (load, unload, fault).
//   - registry.go: one-live-handle-per-process guard.
//   - pool.go, session.go: session leasing with FIFO waiters.
//   - pipeline.go: requests, token streams, stop sequences, timeouts.
//   - monitor.go, memory.go: health snapshots and pressure escalation.
//   - capabilities.go, status_report.go: host and status reporting.
//   - errors.go: error types and predicates (IsLoadFailed, IsPoolExhausted, ...).
//
// Lock order is stream, pool, session, handle; the pipeline's stream set is
// a leaf. Hooks from the handle run without its lock held. Unload closes every
// open native sequence before it closes the model.
//
// The native runtime comes from package native; build with `-tags=llama` for
// the in-process go-llama.cpp backend.
package manager
