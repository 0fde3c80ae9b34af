// Package services turns adapter configuration into running services.
//
// Each adapter type registers a Constructor under its config type name. Build
// looks the constructor up, creates the adapter logic and wraps it in an
// adapters.Service so the coordinator can supervise it.
//
// Subpackages hold the concrete adapters:
//
//   - simulated: an in-process source with playlists and seek ticks
package services
