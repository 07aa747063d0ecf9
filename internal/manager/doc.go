// Package manager owns the single backend of the gateway process and its
// lifecycle. It is structured into small files by concern:
//
//   - manager.go: core Manager type, Construct and Start.
//   - config.go: Config and package defaults.
//   - types.go: the lifecycle State enum.
//   - errors.go: error types and helpers (IsTooBusy, IsServiceUnavailable).
//   - admission.go: Acquire, in-flight accounting and the optional limit.
//   - shutdown.go: idempotent drain-then-stop.
//   - status_report.go: Status reporting for /status.
//   - events.go, eventpub_memory.go: lifecycle event publishing.
//
// States move Uninitialized -> Starting -> Ready -> ShuttingDown -> Stopped.
// ShuttingDown may also be entered from Uninitialized or Starting. The state
// is an atomic value written only by the manager; request handlers read it
// without locking.
package manager
