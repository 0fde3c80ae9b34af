package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"hifibridge/internal/bus"
	"hifibridge/pkg/logging"
)

const eventWriteTimeout = 5 * time.Second

// LaggedFrame tells a stream client it missed events.
type LaggedFrame struct {
	Type    string `json:"type"`
	Skipped uint64 `json:"skipped"`
}

// parseTypes turns "zone.seek,zone.volume" into a filter. Empty matches all.
func parseTypes(raw string) bus.Filter {
	var kinds []bus.Kind
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			kinds = append(kinds, bus.Kind(part))
		}
	}
	return bus.FilterByKind(kinds...)
}

// handleEvents streams bus events as JSON envelopes until the client goes away,
// the bus closes or the bridge shuts down.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	filter := parseTypes(r.URL.Query().Get("types"))

	// Subscribe before the handshake completes so the client never misses an
	// event published right after Dial returns.
	sub := s.bus.Subscribe()
	defer sub.Close()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		logging.Warn("HTTP", "WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.CloseNow()

	// The stream is write-only; CloseRead handles control frames and cancels
	// ctx when the peer disconnects.
	ctx := conn.CloseRead(r.Context())
	logging.Debug("HTTP", "Event stream opened from %s", r.RemoteAddr)

	err = streamEvents(ctx, sub, filter, func(ctx context.Context, v any) error {
		return write(ctx, conn, v)
	})
	switch {
	case errors.Is(err, bus.ErrClosed):
		conn.Close(websocket.StatusGoingAway, "bus closed")
	case errors.Is(err, errShuttingDown):
		conn.Close(websocket.StatusGoingAway, "shutting down")
	default:
		logging.Debug("HTTP", "Event stream from %s closed: %v", r.RemoteAddr, err)
	}
}

var errShuttingDown = errors.New("bridge shutting down")

// streamEvents forwards matching events to send until an error occurs. A lag
// is reported as a LaggedFrame and the stream continues. ShuttingDown ends the
// stream with errShuttingDown after it is forwarded.
func streamEvents(ctx context.Context, sub *bus.Subscription, filter bus.Filter, send func(context.Context, any) error) error {
	for {
		ev, err := sub.Recv(ctx)
		if skipped, lagged := bus.IsLagged(err); lagged {
			if err := send(ctx, LaggedFrame{Type: "lagged", Skipped: skipped}); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		if filter(ev) {
			if err := send(ctx, bus.Envelope{Type: ev.Kind(), Payload: ev}); err != nil {
				return err
			}
		}
		if ev.Kind() == bus.KindShuttingDown {
			return errShuttingDown
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}
