package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"hifibridge/internal/adapters"
	"hifibridge/internal/bus"
	"hifibridge/internal/observability"
	"hifibridge/internal/zone"
	"hifibridge/pkg/logging"
)

// ZoneLookup is the read side of the aggregator the router needs.
type ZoneLookup interface {
	GetZone(zoneID string) (zone.Zone, bool)
}

// Router dispatches zone commands to the adapter that owns the zone.
type Router struct {
	bus   *bus.Bus
	zones ZoneLookup

	mu    sync.RWMutex
	logic map[string]adapters.Logic
}

// NewRouter creates a router resolving zones through zones.
func NewRouter(b *bus.Bus, zones ZoneLookup) *Router {
	return &Router{
		bus:   b,
		zones: zones,
		logic: make(map[string]adapters.Logic),
	}
}

// Register makes l the handler for zones under its prefix.
func (r *Router) Register(l adapters.Logic) {
	r.mu.Lock()
	r.logic[l.Prefix()] = l
	r.mu.Unlock()
}

// Dispatch validates cmd against the zone and hands it to the owning adapter.
func (r *Router) Dispatch(ctx context.Context, zoneID string, cmd zone.Command) (resp zone.CommandResponse, err error) {
	prefix := zone.PrefixOf(zoneID)
	requestID := uuid.NewString()

	ctx, span := observability.Tracer("router").Start(ctx, "zone.command")
	span.SetAttributes(
		attribute.String("zone.id", zoneID),
		attribute.String("command.action", string(cmd.Action)),
		attribute.String("command.request_id", requestID),
	)
	defer func() {
		result := "ok"
		switch {
		case err != nil:
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case !resp.OK:
			result = "rejected"
		}
		observability.CommandsTotal.WithLabelValues(prefix, string(cmd.Action), result).Inc()
		span.End()
	}()

	if err := cmd.Validate(); err != nil {
		return zone.CommandResponse{}, err
	}

	z, ok := r.zones.GetZone(zoneID)
	if !ok {
		return zone.CommandResponse{}, fmt.Errorf("%w: %s", ErrZoneNotFound, zoneID)
	}
	if !cmd.Allowed(z) {
		return zone.CommandResponse{}, fmt.Errorf("%w: %s on %s", ErrCommandNotAllowed, cmd.Action, zoneID)
	}

	r.mu.RLock()
	logic, ok := r.logic[prefix]
	r.mu.RUnlock()
	if !ok {
		return zone.CommandResponse{}, fmt.Errorf("%w: %q", ErrUnknownAdapter, prefix)
	}

	r.bus.Publish(bus.ControlCommand{RequestID: requestID, ZoneID: zoneID, Command: cmd})
	logging.Debug("Router", "Dispatching %s to %s (request %s)", cmd, zoneID, requestID)

	resp, err = logic.HandleCommand(ctx, zoneID, cmd)
	if err != nil {
		return zone.CommandResponse{}, fmt.Errorf("%s failed on %s: %w", cmd.Action, zoneID, err)
	}
	return resp, nil
}
