package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"hifibridge/internal/orchestrator"
	"hifibridge/internal/zone"
	"hifibridge/pkg/logging"
)

type jsonErr struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// BusStats is the body of GET /api/bus.
type BusStats struct {
	Capacity    int   `json:"capacity"`
	Published   int64 `json:"published"`
	Subscribers int64 `json:"subscribers"`
	LagNotices  int64 `json:"lag_notices"`
	Skipped     int64 `json:"skipped"`
}

// CommandRequest is the body of POST /api/zones/{zoneID}/command.
type CommandRequest struct {
	Action   string   `json:"action"`
	Value    *float64 `json:"value,omitempty"`
	Relative bool     `json:"relative,omitempty"`
}

// Command converts the request into a zone command.
func (c CommandRequest) Command() (zone.Command, error) {
	action, err := zone.ParseAction(c.Action)
	if err != nil {
		return zone.Command{}, err
	}
	cmd := zone.Command{Action: action, Value: c.Value, Relative: c.Relative}
	return cmd, cmd.Validate()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, jsonErr{Error: msg, Code: status})
}

// statusFor maps core errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrNotRegistered),
		errors.Is(err, orchestrator.ErrZoneNotFound),
		errors.Is(err, orchestrator.ErrUnknownAdapter):
		return http.StatusNotFound
	case errors.Is(err, zone.ErrInvalidCommand):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrCommandNotAllowed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeCoreError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.Error("HTTP", err, "Request failed")
	}
	writeError(w, status, err.Error())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleListZones(w http.ResponseWriter, r *http.Request) {
	var zones []zone.Zone
	if adapter := strings.TrimSpace(r.URL.Query().Get("adapter")); adapter != "" {
		zones = s.zones.GetZonesByAdapter(adapter)
	} else {
		zones = s.zones.GetZones()
	}
	if zones == nil {
		zones = []zone.Zone{}
	}
	writeJSON(w, http.StatusOK, zones)
}

func (s *Server) handleGetZone(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "zoneID")
	z, ok := s.zones.GetZone(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("zone %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, z)
}

func (s *Server) handleZoneCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "zoneID")

	var req CommandRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	cmd, err := req.Command()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.commands.Dispatch(r.Context(), id, cmd)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListAdapters(w http.ResponseWriter, r *http.Request) {
	status := s.adapters.Status()
	if status == nil {
		status = []orchestrator.AdapterStatus{}
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleAdapterAction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	action := chi.URLParam(r, "action")

	var err error
	switch action {
	case "enable":
		err = s.adapters.SetEnabled(name, true)
	case "disable":
		err = s.adapters.SetEnabled(name, false)
	case "start":
		err = s.adapters.Start(name)
	case "stop":
		err = s.adapters.StopAdapter(name)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown adapter action %q", action))
		return
	}
	if err != nil {
		writeCoreError(w, err)
		return
	}

	logging.Info("HTTP", "Adapter %s: %s", name, action)
	for _, st := range s.adapters.Status() {
		if st.Name == name {
			writeJSON(w, http.StatusOK, st)
			return
		}
	}
	writeJSON(w, http.StatusOK, orchestrator.AdapterStatus{Name: name})
}

func (s *Server) handleBus(w http.ResponseWriter, r *http.Request) {
	m := s.bus.Metrics()
	writeJSON(w, http.StatusOK, BusStats{
		Capacity:    s.bus.Capacity(),
		Published:   m.Published,
		Subscribers: m.Subscribers,
		LagNotices:  m.LagNotices,
		Skipped:     m.Skipped,
	})
}
