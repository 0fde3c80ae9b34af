package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"hifibridge/internal/aggregator"
	"hifibridge/internal/bus"
	"hifibridge/internal/orchestrator"
	"hifibridge/internal/zone"
)

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, zoneID string, cmd zone.Command) (zone.CommandResponse, error) {
	args := m.Called(zoneID, cmd)
	return args.Get(0).(zone.CommandResponse), args.Error(1)
}

// fakeAdapters records actions against a fixed set of adapter names.
type fakeAdapters struct {
	mu      sync.Mutex
	status  map[string]*orchestrator.AdapterStatus
	actions []string
}

func newFakeAdapters(names ...string) *fakeAdapters {
	f := &fakeAdapters{status: make(map[string]*orchestrator.AdapterStatus)}
	for _, n := range names {
		f.status[n] = &orchestrator.AdapterStatus{Name: n, Enabled: true, CanStart: true}
	}
	return f
}

func (f *fakeAdapters) Status() []orchestrator.AdapterStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]orchestrator.AdapterStatus, 0, len(f.status))
	for _, st := range f.status {
		out = append(out, *st)
	}
	return out
}

func (f *fakeAdapters) lookup(name, action string) (*orchestrator.AdapterStatus, error) {
	st, ok := f.status[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", orchestrator.ErrNotRegistered, name)
	}
	f.actions = append(f.actions, name+":"+action)
	return st, nil
}

func (f *fakeAdapters) SetEnabled(name string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, err := f.lookup(name, fmt.Sprintf("enabled=%t", enabled))
	if err == nil {
		st.Enabled = enabled
	}
	return err
}

func (f *fakeAdapters) Start(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, err := f.lookup(name, "start")
	if err == nil {
		st.Running = true
	}
	return err
}

func (f *fakeAdapters) StopAdapter(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, err := f.lookup(name, "stop")
	if err == nil {
		st.Running = false
	}
	return err
}

type testEnv struct {
	bus        *bus.Bus
	agg        *aggregator.Aggregator
	adapters   *fakeAdapters
	dispatcher *mockDispatcher
	server     *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	b := bus.New(64)
	agg := aggregator.New(b)
	agg.Apply(bus.ZoneDiscovered{Zone: zone.Zone{ID: "sim:living", Name: "Living Room", Source: "sim", IsPlayAllowed: true}})
	agg.Apply(bus.ZoneDiscovered{Zone: zone.Zone{ID: "sim:study", Name: "Study", Source: "sim"}})
	agg.Apply(bus.ZoneDiscovered{Zone: zone.Zone{ID: "den:main", Name: "Den", Source: "den"}})

	env := &testEnv{
		bus:        b,
		agg:        agg,
		adapters:   newFakeAdapters("sim", "den"),
		dispatcher: &mockDispatcher{},
	}
	srv := NewServer(Options{
		Bus:      b,
		Zones:    agg,
		Adapters: env.adapters,
		Commands: env.dispatcher,
		Metrics:  http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics\n")) }),

		OriginPatterns: []string{"ui.example"},
	})
	env.server = newHTTPTestServer(t, srv)
	return env
}

func newHTTPTestServer(t *testing.T, srv *Server) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (e *testEnv) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(e.server.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"ok"`)

	resp, body = env.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "# metrics\n", string(body))
}

func TestServer_ListZones(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/api/zones")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var zones []zone.Zone
	require.NoError(t, json.Unmarshal(body, &zones))
	require.Len(t, zones, 3)
	assert.Equal(t, "den:main", zones[0].ID)

	_, body = env.get(t, "/api/zones?adapter=sim")
	zones = nil
	require.NoError(t, json.Unmarshal(body, &zones))
	require.Len(t, zones, 2)
	for _, z := range zones {
		assert.Equal(t, "sim", z.Source)
	}

	_, body = env.get(t, "/api/zones?adapter=nope")
	assert.JSONEq(t, `[]`, string(body))
}

func TestServer_GetZone(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/api/zones/sim:living")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var z zone.Zone
	require.NoError(t, json.Unmarshal(body, &z))
	assert.Equal(t, "Living Room", z.Name)

	resp, body = env.get(t, "/api/zones/sim:garage")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "sim:garage")
}

func TestServer_ZoneCommand(t *testing.T) {
	env := newTestEnv(t)
	vol := 40.0
	env.dispatcher.On("Dispatch", "sim:living", zone.Command{Action: zone.ActionPlay}).
		Return(zone.CommandResponse{OK: true, Message: "play"}, nil)
	env.dispatcher.On("Dispatch", "sim:living", zone.Command{Action: zone.ActionVolume, Value: &vol}).
		Return(zone.CommandResponse{OK: true}, nil)

	resp := env.post(t, "/api/zones/sim:living/command", `{"action":"Play"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var cr zone.CommandResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cr))
	assert.True(t, cr.OK)

	resp = env.post(t, "/api/zones/sim:living/command", `{"action":"volume","value":40}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env.dispatcher.AssertExpectations(t)
}

func TestServer_ZoneCommandErrors(t *testing.T) {
	env := newTestEnv(t)
	env.dispatcher.On("Dispatch", "sim:garage", mock.Anything).
		Return(zone.CommandResponse{}, fmt.Errorf("%w: sim:garage", orchestrator.ErrZoneNotFound))
	env.dispatcher.On("Dispatch", "sim:study", mock.Anything).
		Return(zone.CommandResponse{}, fmt.Errorf("%w: next", orchestrator.ErrCommandNotAllowed))
	env.dispatcher.On("Dispatch", "den:main", mock.Anything).
		Return(zone.CommandResponse{}, fmt.Errorf("adapter den: connection refused"))

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"malformed json", "/api/zones/sim:living/command", `{`, http.StatusBadRequest},
		{"unknown field", "/api/zones/sim:living/command", `{"action":"play","speed":2}`, http.StatusBadRequest},
		{"unknown action", "/api/zones/sim:living/command", `{"action":"rewind"}`, http.StatusBadRequest},
		{"volume without value", "/api/zones/sim:living/command", `{"action":"volume"}`, http.StatusBadRequest},
		{"zone not found", "/api/zones/sim:garage/command", `{"action":"play"}`, http.StatusNotFound},
		{"not allowed", "/api/zones/sim:study/command", `{"action":"next"}`, http.StatusConflict},
		{"adapter failure", "/api/zones/den:main/command", `{"action":"play"}`, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.post(t, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			var e jsonErr
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
			assert.Equal(t, tt.status, e.Code)
			assert.NotEmpty(t, e.Error)
		})
	}
}

func TestServer_AdapterActions(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/adapters/sim/disable", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st orchestrator.AdapterStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "sim", st.Name)
	assert.False(t, st.Enabled)

	assert.Equal(t, http.StatusOK, env.post(t, "/api/adapters/sim/enable", "").StatusCode)
	assert.Equal(t, http.StatusOK, env.post(t, "/api/adapters/den/start", "").StatusCode)
	assert.Equal(t, http.StatusOK, env.post(t, "/api/adapters/den/stop", "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, env.post(t, "/api/adapters/den/restart", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, env.post(t, "/api/adapters/nope/start", "").StatusCode)

	assert.Equal(t, []string{"sim:enabled=false", "sim:enabled=true", "den:start", "den:stop"}, env.adapters.actions)

	resp, body := env.get(t, "/api/adapters")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []orchestrator.AdapterStatus
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list, 2)
}

func TestServer_BusStats(t *testing.T) {
	env := newTestEnv(t)
	env.bus.Publish(bus.HealthCheck{})
	env.bus.Publish(bus.HealthCheck{})

	_, body := env.get(t, "/api/bus")
	var stats BusStats
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, 64, stats.Capacity)
	assert.Equal(t, int64(2), stats.Published)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(fmt.Errorf("x: %w", orchestrator.ErrNotRegistered)))
	assert.Equal(t, http.StatusNotFound, statusFor(orchestrator.ErrUnknownAdapter))
	assert.Equal(t, http.StatusBadRequest, statusFor(zone.ErrInvalidCommand))
	assert.Equal(t, http.StatusConflict, statusFor(orchestrator.ErrCommandNotAllowed))
	assert.Equal(t, http.StatusInternalServerError, statusFor(fmt.Errorf("boom")))
}
