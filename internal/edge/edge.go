// Package edge is the client for the edge provider: the collaborator
// that publishes and unpublishes public HTTPS routes pointing at the
// static file server's staging paths. Implemented against the Caddy
// admin API over a Unix domain socket, following the same dial and
// route-shape conventions a Caddy admin-API integration uses.
package edge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dropwire/dropwire/internal/logging"
)

// Route is one published edge route.
type Route struct {
	Hostname string
	TunnelID string
}

// Provider is the edge-provider contract: publish a
// local path under a tunnel ID, unpublish it, and list what is
// currently published (for reconcile_on_startup).
type Provider interface {
	Publish(ctx context.Context, localPath, tunnelID string) (hostname, publicURL string, err error)
	Unpublish(ctx context.Context, tunnelID string) error
	ListPublished(ctx context.Context) ([]Route, error)
	ValidateConnection(ctx context.Context) error
}

// CaddyProvider implements Provider against Caddy's admin API,
// dialing a Unix socket the way teacher's caddyService does.
type CaddyProvider struct {
	client     *http.Client
	baseDomain string
	mu         sync.Mutex
	routes     map[string]string // tunnelID -> hostname, mirrors what we've published
}

// NewCaddyProvider returns a Provider that talks to Caddy's admin API
// over socketPath, publishing routes under subdomains of baseDomain.
func NewCaddyProvider(socketPath, baseDomain string) *CaddyProvider {
	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(_ context.Context, _, _ string) (net.Conn, error) {
				return net.Dial("unix", socketPath)
			},
		},
		Timeout: 30 * time.Second,
	}
	return &CaddyProvider{client: client, baseDomain: baseDomain, routes: make(map[string]string)}
}

func (p *CaddyProvider) ValidateConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix/config/", nil)
	if err != nil {
		return fmt.Errorf("edge: build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("edge: connect: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("edge: admin api returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Publish configures a reverse-proxy route on hostname <tunnelID>.<baseDomain>
// pointing at the static file server, which actually serves localPath
// under the staging root. Retries are handled by WithRetry in the
// caller (internal/tunnel): up to 4 attempts, 1s/2s/4s backoff.
func (p *CaddyProvider) Publish(ctx context.Context, localPath, tunnelID string) (string, string, error) {
	hostname := fmt.Sprintf("%s.%s", tunnelID, p.baseDomain)

	routeConfig := map[string]interface{}{
		"@id": tunnelID,
		"handle": []map[string]interface{}{
			{
				"handler": "reverse_proxy",
				"upstreams": []map[string]interface{}{
					{"dial": "127.0.0.1:8081"},
				},
				"headers": map[string]interface{}{
					"request": map[string]interface{}{
						"set": map[string]interface{}{
							"Host": []string{"{http.request.host}"},
						},
					},
				},
			},
		},
		"match": []map[string]interface{}{
			{"host": []string{hostname}},
		},
		"terminal": true,
	}

	body, err := json.Marshal(routeConfig)
	if err != nil {
		return "", "", fmt.Errorf("edge: marshal route config: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		"http://unix/config/apps/http/servers/main/routes/"+tunnelID, bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("edge: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("edge: publish request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", "", fmt.Errorf("edge: publish failed (status %d): %s", resp.StatusCode, string(respBody))
	}

	p.mu.Lock()
	p.routes[tunnelID] = hostname
	p.mu.Unlock()

	publicURL := "https://" + hostname
	logging.GetGlobalLogger().Info("edge: published tunnel_id=%s hostname=%s local_path=%s", tunnelID, hostname, localPath)
	return hostname, publicURL, nil
}

func (p *CaddyProvider) Unpublish(ctx context.Context, tunnelID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		"http://unix/config/apps/http/servers/main/routes/"+tunnelID, nil)
	if err != nil {
		return fmt.Errorf("edge: build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("edge: unpublish request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("edge: unpublish failed (status %d): %s", resp.StatusCode, string(body))
	}

	p.mu.Lock()
	delete(p.routes, tunnelID)
	p.mu.Unlock()

	logging.GetGlobalLogger().Info("edge: unpublished tunnel_id=%s", tunnelID)
	return nil
}

type routeListEntry struct {
	ID string `json:"@id"`
}

// ListPublished queries Caddy's current route table, used by
// reconcile_on_startup to detect orphaned routes with no backing
// tunnel record.
func (p *CaddyProvider) ListPublished(ctx context.Context) ([]Route, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"http://unix/config/apps/http/servers/main/routes", nil)
	if err != nil {
		return nil, fmt.Errorf("edge: build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("edge: list request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("edge: list failed (status %d): %s", resp.StatusCode, string(body))
	}

	var entries []routeListEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("edge: decode route list: %w", err)
	}

	out := make([]Route, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			continue
		}
		out = append(out, Route{TunnelID: e.ID, Hostname: fmt.Sprintf("%s.%s", e.ID, p.baseDomain)})
	}
	return out, nil
}
