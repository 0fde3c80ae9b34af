// Package api exposes the bridge over HTTP.
//
// The server is a chi router with JSON endpoints for zones, adapters and bus
// statistics, a Prometheus scrape endpoint and a WebSocket stream of bus
// events. Client is the matching HTTP client used by the CLI subcommands.
//
//	GET  /healthz
//	GET  /metrics
//	GET  /api/zones[?adapter=name]
//	GET  /api/zones/{zoneID}
//	POST /api/zones/{zoneID}/command
//	GET  /api/adapters
//	POST /api/adapters/{name}/{enable|disable|start|stop}
//	GET  /api/bus
//	GET  /api/events[?types=zone.seek,zone.volume]
package api
