package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// apiClient is a thin HTTP client over the Control API's admin surface.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{baseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *apiClient) do(method, path string, out interface{}) error {
	req, err := http.NewRequest(method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("dropwirectl: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("dropwirectl: decode response: %w", err)
	}
	if !env.Success {
		msg := "request failed"
		if env.Error != nil {
			msg = env.Error.Message
		}
		return fmt.Errorf("dropwirectl: %s", msg)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

type tunnelView struct {
	TunnelID          string `json:"tunnel_id"`
	FilePath          string `json:"file_path"`
	FileSize          int64  `json:"file_size"`
	Status            string `json:"status"`
	BytesServed       int64  `json:"bytes_served"`
	ActiveConnections int    `json:"active_connections"`
}

func (c *apiClient) listTunnels() ([]tunnelView, error) {
	var out struct {
		ActiveTunnels []tunnelView `json:"active_tunnels"`
	}
	if err := c.do(http.MethodGet, "/admin/tunnels", &out); err != nil {
		return nil, err
	}
	return out.ActiveTunnels, nil
}

func (c *apiClient) terminate(tunnelID string) error {
	return c.do(http.MethodDelete, "/admin/tunnels/"+tunnelID, nil)
}

func (c *apiClient) cleanup() error {
	return c.do(http.MethodPost, "/admin/cleanup", nil)
}

type monitorStatusView struct {
	ActiveTunnelsCount  int    `json:"active_tunnels_count"`
	ActiveDownloads     int    `json:"active_downloads"`
	StateStoreConnected bool   `json:"state_store_connected"`
	Uptime              string `json:"uptime"`
	MonitorActive       bool   `json:"monitor_active"`
	ParseErrors         int64  `json:"parse_errors"`
}

func (c *apiClient) monitorStatus() (monitorStatusView, error) {
	var out monitorStatusView
	err := c.do(http.MethodGet, "/admin/monitor/status", &out)
	return out, err
}
