// Package orchestrator supervises adapter lifetimes and routes zone commands.
//
// # Coordinator
//
// The Coordinator is a registry of named adapters. Each registration holds an
// enabled flag, the running task (if any) and a cancellation context derived
// from the coordinator's root context:
//
//	root
//	 ├── roon  (child)
//	 ├── lms   (child)
//	 └── upnp  (child)
//
// Cancelling the root stops everything; cancelling one child stops one adapter.
// A cancelled child is never reused: StopAdapter installs a fresh child before
// it waits for the old task, so a Start racing with the Stop always sees a live
// context.
//
// At most one task runs per adapter. StartAdapter is a no-op for adapters that
// are disabled, not startable or already running.
//
// # Shutdown
//
// Shutdown is two phase. It publishes ShuttingDown and collects one
// AdapterStopped per running adapter until ShutdownTimeout. Whatever arrived, it
// then cancels the root context and joins the remaining tasks with a short
// per-task timeout, abandoning stragglers. Shutdown never hangs on a wedged adapter.
//
// # Command routing
//
// Router resolves a zone ID to the adapter owning it, checks the zone's
// capability flags and calls the adapter's HandleCommand. Each dispatch is
// published as a ControlCommand event, traced and counted.
//
// # Usage Example
//
//	coord := orchestrator.New(ctx, eventBus, orchestrator.DefaultConfig())
//	coord.RegisterAdapter(svc, true)
//	coord.StartAllEnabled()
//	...
//	report := coord.Shutdown("signal")
package orchestrator
