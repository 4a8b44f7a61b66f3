// Package tunnel implements the Tunnel Manager: allocating tunnel
// IDs, staging files for exposure, driving the edge provider, and
// tracking tunnel records in the state store.
package tunnel

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/dropwire/dropwire/internal/edge"
	"github.com/dropwire/dropwire/internal/library"
	"github.com/dropwire/dropwire/internal/logging"
	"github.com/dropwire/dropwire/internal/models"
	"github.com/dropwire/dropwire/internal/state"
)

// maxIDAttempts bounds the collision-retry loop in CreateTunnel.
const maxIDAttempts = 5

// Manager is the Tunnel Manager. It is the only writer of tunnel
// records and the only caller of the edge provider's publish/unpublish
// operations.
type Manager struct {
	store       state.Store
	edge        edge.Provider
	library     *library.Library
	staging     *staging
	maxTunnelS  int
	gracePeriodS int
}

// Config bundles the knobs Manager needs from internal/config.Config.
type Config struct {
	StagingRoot         string
	MaxTunnelSeconds    int
	GracePeriodSeconds  int
}

// NewManager builds a Tunnel Manager over store (state), provider
// (edge) and lib (library root resolution).
func NewManager(store state.Store, provider edge.Provider, lib *library.Library, cfg Config) *Manager {
	return &Manager{
		store:        store,
		edge:         provider,
		library:      lib,
		staging:      newStaging(cfg.StagingRoot),
		maxTunnelS:   cfg.MaxTunnelSeconds,
		gracePeriodS: cfg.GracePeriodSeconds,
	}
}

func generateTunnelID() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("tunnel: generate id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (m *Manager) save(ctx context.Context, rec *models.TunnelRecord, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("tunnel: marshal record: %w", err)
	}
	return m.store.Set(ctx, state.TunnelKey(rec.TunnelID), raw, ttl)
}

func (m *Manager) load(ctx context.Context, tunnelID string) (*models.TunnelRecord, []byte, error) {
	raw, err := m.store.Get(ctx, state.TunnelKey(tunnelID))
	if err != nil {
		if err == state.ErrNotFound {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("tunnel: load record: %w", err)
	}
	var rec models.TunnelRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, nil, fmt.Errorf("tunnel: unmarshal record: %w", err)
	}
	return &rec, raw, nil
}

// CreateTunnel resolves file_path against the library root, allocates
// a unique tunnel_id, stages a read-only reference, publishes it via
// the edge provider, and returns the active TunnelRecord. On any
// failure after the staging reference is created, the partial tunnel
// is destroyed with reason "failed" before the error is returned.
func (m *Manager) CreateTunnel(ctx context.Context, filePath string, ttl time.Duration) (*models.TunnelRecord, error) {
	resolved, err := m.library.Resolve(filePath)
	if err != nil {
		switch err {
		case library.ErrPathEscape:
			return nil, ErrPathEscape
		case library.ErrNotRegularFile:
			return nil, ErrNotRegularFile
		case library.ErrFileNotFound:
			return nil, ErrFileNotFound
		default:
			return nil, err
		}
	}

	if ttl <= 0 {
		ttl = time.Duration(m.maxTunnelS) * time.Second
	}
	if max := time.Duration(m.maxTunnelS) * time.Second; ttl > max {
		ttl = max
	}

	var tunnelID string
	now := time.Now().UTC()
	rec := &models.TunnelRecord{}
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		tunnelID, err = generateTunnelID()
		if err != nil {
			return nil, err
		}
		rec = &models.TunnelRecord{
			TunnelID:       tunnelID,
			FilePath:       filePath,
			FileSize:       resolved.Size,
			Status:         models.StatusProvisioning,
			CreatedAt:      now,
			ExpiresAt:      now.Add(ttl),
			LastActivityAt: now,
		}
		raw, merr := json.Marshal(rec)
		if merr != nil {
			return nil, fmt.Errorf("tunnel: marshal record: %w", merr)
		}
		err = m.store.SetIfAbsent(ctx, state.TunnelKey(tunnelID), raw, ttl+time.Duration(m.gracePeriodS)*time.Second)
		if err == nil {
			break
		}
		if err != state.ErrAlreadyExists {
			return nil, fmt.Errorf("tunnel: allocate record: %w", err)
		}
	}
	if err != nil {
		return nil, ErrIDExhausted
	}

	basename, err := m.staging.Create(tunnelID, resolved.AbsPath)
	if err != nil {
		m.DestroyTunnel(ctx, tunnelID, "failed")
		return nil, err
	}

	hostname, publicURL, err := m.publishWithRetry(ctx, tunnelID)
	if err != nil {
		logging.GetGlobalLogger().Error("tunnel: publish failed tunnel_id=%s: %v", tunnelID, err)
		m.DestroyTunnel(ctx, tunnelID, "failed")
		return nil, fmt.Errorf("%w: %v", ErrEdgeProvision, err)
	}

	rec.Hostname = hostname
	rec.PublicURL = publicURL + "/download-file/" + tunnelID + "/" + basename
	rec.Status = models.StatusActive
	if err := m.save(ctx, rec, time.Until(rec.ExpiresAt)+time.Duration(m.gracePeriodS)*time.Second); err != nil {
		m.DestroyTunnel(ctx, tunnelID, "failed")
		return nil, err
	}

	return rec, nil
}

func (m *Manager) publishWithRetry(ctx context.Context, tunnelID string) (hostname, publicURL string, err error) {
	err = edge.WithRetry(ctx, func() error {
		var e error
		hostname, publicURL, e = m.edge.Publish(ctx, m.staging.dir(tunnelID), tunnelID)
		return e
	})
	return hostname, publicURL, err
}

// DestroyTunnel CAS-transitions status to a terminal value (idempotent
// — a second call on a record already torn down by a prior
// DestroyTunnel is a no-op), then best-effort unpublishes the edge
// route, removes the staging reference, and appends a history entry.
// A record in StatusCompleted is terminal but not yet torn down — its
// route and staging reference are retained until the monitor calls
// back in here once the grace period elapses — so it still proceeds
// through teardown.
func (m *Manager) DestroyTunnel(ctx context.Context, tunnelID, reason string) error {
	rec, raw, err := m.load(ctx, tunnelID)
	if err != nil {
		if err == ErrNotFound {
			return nil
		}
		return err
	}

	if rec.Status.Destroyed() {
		return nil
	}

	terminalStatus := reasonToStatus(reason)
	updated := *rec
	updated.Status = terminalStatus
	newRaw, err := json.Marshal(&updated)
	if err != nil {
		return fmt.Errorf("tunnel: marshal record: %w", err)
	}
	if err := m.store.CompareAndSet(ctx, state.TunnelKey(tunnelID), raw, newRaw, time.Hour); err != nil {
		if err == state.ErrCASMismatch {
			// Another caller won the race to destroy it first.
			return nil
		}
		return fmt.Errorf("tunnel: cas terminal status: %w", err)
	}

	if unpubErr := edge.WithRetry(ctx, func() error { return m.edge.Unpublish(ctx, tunnelID) }); unpubErr != nil {
		logging.GetGlobalLogger().Error("tunnel: unpublish failed tunnel_id=%s: %v (reconciler will sweep)", tunnelID, unpubErr)
	}

	if err := m.staging.Remove(tunnelID); err != nil {
		logging.GetGlobalLogger().Error("tunnel: remove staging failed tunnel_id=%s: %v", tunnelID, err)
	}

	m.appendHistory(ctx, &updated, reason)

	if err := m.store.Delete(ctx, state.TunnelKey(tunnelID)); err != nil {
		logging.GetGlobalLogger().Error("tunnel: delete record failed tunnel_id=%s: %v", tunnelID, err)
	}

	return nil
}

func reasonToStatus(reason string) models.TunnelStatus {
	switch reason {
	case "completed":
		return models.StatusCompleted
	case "stalled":
		return models.StatusStalled
	case "expired":
		return models.StatusExpired
	case "terminated":
		return models.StatusTerminated
	default:
		return models.StatusFailed
	}
}

func (m *Manager) appendHistory(ctx context.Context, rec *models.TunnelRecord, reason string) {
	entry := models.HistoryEntry{
		TunnelID:    rec.TunnelID,
		FilePath:    rec.FilePath,
		FileSize:    rec.FileSize,
		Status:      rec.Status,
		Reason:      reason,
		CreatedAt:   rec.CreatedAt,
		DestroyedAt: time.Now().UTC(),
		BytesServed: rec.BytesServed,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		logging.GetGlobalLogger().Error("tunnel: marshal history entry: %v", err)
		return
	}
	key := fmt.Sprintf("%s%s", state.HistoryKey, ":"+rec.TunnelID)
	if err := m.store.Set(ctx, key, raw, 30*24*time.Hour); err != nil {
		logging.GetGlobalLogger().Error("tunnel: append history: %v", err)
	}
}

// Get returns the tunnel record for tunnelID, or ErrNotFound.
func (m *Manager) Get(ctx context.Context, tunnelID string) (*models.TunnelRecord, error) {
	rec, _, err := m.load(ctx, tunnelID)
	return rec, err
}

// ListActive returns every tunnel record still held in the store:
// provisioning and active ones, plus completed ones awaiting their
// grace deadline. Torn-down records are deleted and never appear.
func (m *Manager) ListActive(ctx context.Context) ([]*models.TunnelRecord, error) {
	keys, err := m.store.ListByPrefix(ctx, state.TunnelKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("tunnel: list active: %w", err)
	}
	out := make([]*models.TunnelRecord, 0, len(keys))
	for _, key := range keys {
		raw, err := m.store.Get(ctx, key)
		if err != nil {
			continue
		}
		var rec models.TunnelRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		out = append(out, &rec)
	}
	return out, nil
}

// Terminate is an admin-triggered destroy with reason "terminated".
func (m *Manager) Terminate(ctx context.Context, tunnelID string) error {
	return m.DestroyTunnel(ctx, tunnelID, "terminated")
}

// ReconcileOnStartup compares state-store records against the edge
// provider's published routes: records with no matching route are
// marked failed and cleaned; routes with no matching record are
// unpublished. Every mismatch found is logged and aggregated into the
// returned error via multierr, rather than stopping at the first one.
func (m *Manager) ReconcileOnStartup(ctx context.Context) error {
	records, err := m.ListActive(ctx)
	if err != nil {
		return err
	}
	routes, err := m.edge.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("tunnel: reconcile: list published routes: %w", err)
	}

	published := make(map[string]bool, len(routes))
	for _, r := range routes {
		published[r.TunnelID] = true
	}

	recordIDs := make(map[string]bool, len(records))
	var errs error
	for _, rec := range records {
		recordIDs[rec.TunnelID] = true
		if !published[rec.TunnelID] {
			logging.GetGlobalLogger().Warn("tunnel: reconcile: record %s has no matching edge route, marking failed", rec.TunnelID)
			if derr := m.DestroyTunnel(ctx, rec.TunnelID, "failed"); derr != nil {
				errs = multierr.Append(errs, derr)
			}
		}
	}

	for tunnelID := range published {
		if !recordIDs[tunnelID] {
			logging.GetGlobalLogger().Warn("tunnel: reconcile: edge route %s has no matching record, unpublishing", tunnelID)
			if uerr := m.edge.Unpublish(ctx, tunnelID); uerr != nil {
				errs = multierr.Append(errs, uerr)
			}
		}
	}

	return errs
}

// History returns up to limit of the most recently destroyed tunnels,
// backing GET /admin/history.
func (m *Manager) History(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	keys, err := m.store.ListByPrefix(ctx, state.HistoryKey+":")
	if err != nil {
		return nil, fmt.Errorf("tunnel: list history: %w", err)
	}
	entries := make([]models.HistoryEntry, 0, len(keys))
	for _, key := range keys {
		raw, err := m.store.Get(ctx, key)
		if err != nil {
			continue
		}
		var entry models.HistoryEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	sortHistoryDesc(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// TrimHistory deletes the oldest history entries beyond retentionLimit,
// run periodically off TOKEN_SWEEP_CRON alongside the token sweep so
// the history log stays bounded per the retention
// feature.
func (m *Manager) TrimHistory(ctx context.Context, retentionLimit int) (int, error) {
	entries, err := m.History(ctx, 0)
	if err != nil {
		return 0, err
	}
	if retentionLimit <= 0 || len(entries) <= retentionLimit {
		return 0, nil
	}

	trimmed := 0
	for _, entry := range entries[retentionLimit:] {
		key := fmt.Sprintf("%s%s", state.HistoryKey, ":"+entry.TunnelID)
		if err := m.store.Delete(ctx, key); err == nil {
			trimmed++
		}
	}
	return trimmed, nil
}

func sortHistoryDesc(entries []models.HistoryEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].DestroyedAt.After(entries[j-1].DestroyedAt); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}
