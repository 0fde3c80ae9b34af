// Package agent exposes the bridge to AI assistants as Model Context Protocol
// tools, served over SSE.
//
// Tools:
//
//   - list_zones: every zone, optionally filtered by adapter
//   - get_zone: one hydrated zone
//   - control_zone: send a transport or volume command
//   - list_adapters: adapter status as seen by the coordinator
//   - set_adapter_enabled: enable or disable an adapter
package agent
