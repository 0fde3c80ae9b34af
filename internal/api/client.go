package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hifibridge/internal/orchestrator"
	"hifibridge/internal/zone"
)

// DefaultBaseURL matches the default listen address.
const DefaultBaseURL = "http://localhost:8088"

// Error is a non-2xx response from the bridge.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("bridge returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to a running bridge.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for baseURL. A nil httpClient uses a 10s timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Zones lists zones, optionally only those of one adapter.
func (c *Client) Zones(ctx context.Context, adapter string) ([]zone.Zone, error) {
	path := "/api/zones"
	if adapter != "" {
		path += "?adapter=" + url.QueryEscape(adapter)
	}
	var zones []zone.Zone
	err := c.do(ctx, http.MethodGet, path, nil, &zones)
	return zones, err
}

// Zone fetches one zone.
func (c *Client) Zone(ctx context.Context, zoneID string) (zone.Zone, error) {
	var z zone.Zone
	err := c.do(ctx, http.MethodGet, "/api/zones/"+url.PathEscape(zoneID), nil, &z)
	return z, err
}

// Command sends a command to a zone.
func (c *Client) Command(ctx context.Context, zoneID string, req CommandRequest) (zone.CommandResponse, error) {
	var resp zone.CommandResponse
	err := c.do(ctx, http.MethodPost, "/api/zones/"+url.PathEscape(zoneID)+"/command", req, &resp)
	return resp, err
}

// Adapters lists adapter status.
func (c *Client) Adapters(ctx context.Context) ([]orchestrator.AdapterStatus, error) {
	var status []orchestrator.AdapterStatus
	err := c.do(ctx, http.MethodGet, "/api/adapters", nil, &status)
	return status, err
}

// AdapterAction runs enable, disable, start or stop on an adapter.
func (c *Client) AdapterAction(ctx context.Context, name, action string) (orchestrator.AdapterStatus, error) {
	var st orchestrator.AdapterStatus
	err := c.do(ctx, http.MethodPost, "/api/adapters/"+url.PathEscape(name)+"/"+url.PathEscape(action), nil, &st)
	return st, err
}

// Bus returns event bus statistics.
func (c *Client) Bus(ctx context.Context) (BusStats, error) {
	var stats BusStats
	err := c.do(ctx, http.MethodGet, "/api/bus", nil, &stats)
	return stats, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach bridge at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e jsonErr
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return &Error{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
