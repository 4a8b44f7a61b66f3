package edge

import (
	"context"
	"fmt"
	"sync"
)

// FakeProvider is an in-process Provider used by internal/tunnel and
// internal/monitor tests, avoiding any real Caddy admin API or Unix
// socket dependency.
type FakeProvider struct {
	mu         sync.Mutex
	baseDomain string
	published  map[string]string // tunnelID -> hostname

	// FailPublish/FailUnpublish let tests force the retry path.
	FailPublish   bool
	FailUnpublish bool
}

// NewFakeProvider returns an empty FakeProvider.
func NewFakeProvider(baseDomain string) *FakeProvider {
	return &FakeProvider{baseDomain: baseDomain, published: make(map[string]string)}
}

func (f *FakeProvider) Publish(_ context.Context, _ string, tunnelID string) (string, string, error) {
	if f.FailPublish {
		return "", "", fmt.Errorf("edge: fake publish failure")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	hostname := fmt.Sprintf("%s.%s", tunnelID, f.baseDomain)
	f.published[tunnelID] = hostname
	return hostname, "https://" + hostname, nil
}

func (f *FakeProvider) Unpublish(_ context.Context, tunnelID string) error {
	if f.FailUnpublish {
		return fmt.Errorf("edge: fake unpublish failure")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.published, tunnelID)
	return nil
}

func (f *FakeProvider) ListPublished(_ context.Context) ([]Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Route, 0, len(f.published))
	for id, host := range f.published {
		out = append(out, Route{TunnelID: id, Hostname: host})
	}
	return out, nil
}

func (f *FakeProvider) ValidateConnection(_ context.Context) error { return nil }

// IsPublished is a test helper.
func (f *FakeProvider) IsPublished(tunnelID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.published[tunnelID]
	return ok
}
