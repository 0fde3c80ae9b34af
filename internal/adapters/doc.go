// Package adapters defines the capabilities every audio-source adapter implements
// and the lifecycle wrapper that runs them.
//
// # Overview
//
// An adapter is a protocol client for one audio technology (Roon, LMS, UPnP, ...).
// It discovers zones, publishes their state on the event bus and executes
// commands for the zones it owns. Zone IDs are namespaced by the adapter prefix:
//
//	"{prefix}:{local_id}"
//
// # Capabilities
//
//   - Logic: the protocol specific part. Prefix, Run and HandleCommand.
//   - Initializer: optional one-shot setup executed before every run attempt.
//   - Startable: what the orchestrator coordinator drives. Service adapts a
//     Logic into a Startable.
//
// # Lifecycle
//
// Handle wraps a Logic and owns its retry loop:
//
//	Init -> Running -> Ok  -> Stopped
//	                -> Err -> Backoff -> Running
//
// Any state moves to Stopped when the context is cancelled or a ShuttingDown
// event is seen on the bus. A shutdown is never reported as an adapter error.
// Failures are retried with exponential backoff; a run that lasted at least
// RetryConfig.StableRunThreshold resets the delay so a long healthy run that
// eventually drops is retried quickly.
//
// Every RunWithRetry call publishes AdapterStopping and then exactly one
// AdapterStopped before it returns. The coordinator relies on the latter as the
// shutdown acknowledgment.
//
// # Usage
//
//	svc := adapters.NewService(logic, eventBus, adapters.DefaultRetryConfig(), true)
//	coordinator.Register(svc.Name(), true)
//	coordinator.StartAdapter(svc.Name(), svc)
package adapters
