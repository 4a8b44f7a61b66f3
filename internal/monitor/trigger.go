package monitor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dropwire/dropwire/internal/logging"
	"github.com/dropwire/dropwire/internal/metrics"
	"github.com/dropwire/dropwire/internal/models"
	"github.com/dropwire/dropwire/internal/state"
)

func (m *Monitor) tickLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.TriggerTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// setPaused records whether the monitor is paused; Tick pauses it when
// the state store is unreachable (StateStoreUnavailable: monitor pauses
// ticking). Resume happens automatically once ListActive succeeds.
func (m *Monitor) setPaused(paused bool) {
	m.mu.Lock()
	m.paused = paused
	m.mu.Unlock()
}

// Paused reports whether the last tick found the state store
// unreachable.
func (m *Monitor) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Tick evaluates every active tunnel's trigger conditions once, in
// the precedence order for terminal states: expired takes
// precedence over stalled takes precedence over completed, and a
// separate grace-elapsed check runs for already-completed tunnels.
// At most one transition fires per tunnel per tick.
func (m *Monitor) Tick(ctx context.Context) {
	records, err := m.manager.ListActive(ctx)
	if err != nil {
		logging.GetGlobalLogger().Error("monitor: tick: state store unavailable: %v", err)
		m.setPaused(true)
		return
	}
	m.setPaused(false)

	nonTerminal := 0
	for _, rec := range records {
		if !rec.Status.Terminal() {
			nonTerminal++
		}
	}
	metrics.ActiveTunnels.Set(float64(nonTerminal))

	now := time.Now().UTC()
	for _, rec := range records {
		m.evaluate(ctx, rec, now)
	}
}

func (m *Monitor) evaluate(ctx context.Context, rec *models.TunnelRecord, now time.Time) {
	switch rec.Status {
	case models.StatusActive:
		if now.After(rec.ExpiresAt) {
			logging.GetGlobalLogger().Info("monitor: tunnel_id=%s expired", rec.TunnelID)
			metrics.TunnelsByStatus.WithLabelValues("expired").Inc()
			m.manager.DestroyTunnel(ctx, rec.TunnelID, "expired")
			return
		}
		stallDeadline := rec.LastActivityAt.Add(time.Duration(m.cfg.StallTimeoutSeconds) * time.Second)
		if rec.BytesServed > 0 && now.After(stallDeadline) {
			logging.GetGlobalLogger().Info("monitor: tunnel_id=%s stalled", rec.TunnelID)
			metrics.TunnelsByStatus.WithLabelValues("stalled").Inc()
			m.manager.DestroyTunnel(ctx, rec.TunnelID, "stalled")
			return
		}
		if rec.BytesServed >= rec.FileSize {
			m.markCompleted(ctx, rec, now)
			return
		}
	case models.StatusCompleted:
		if !rec.GraceDeadline.IsZero() && now.After(rec.GraceDeadline) {
			logging.GetGlobalLogger().Info("monitor: tunnel_id=%s grace period elapsed", rec.TunnelID)
			m.manager.DestroyTunnel(ctx, rec.TunnelID, "completed")
		}
	}
}

func (m *Monitor) markCompleted(ctx context.Context, rec *models.TunnelRecord, now time.Time) {
	updated := *rec
	updated.Status = models.StatusCompleted
	updated.GraceDeadline = now.Add(time.Duration(m.cfg.GracePeriodSeconds) * time.Second)

	oldRaw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	newRaw, err := json.Marshal(&updated)
	if err != nil {
		return
	}
	ttl := time.Until(updated.GraceDeadline) + time.Hour
	if err := m.store.CompareAndSet(ctx, state.TunnelKey(rec.TunnelID), oldRaw, newRaw, ttl); err != nil {
		return
	}
	logging.GetGlobalLogger().Info("monitor: tunnel_id=%s completed, grace_deadline=%s", rec.TunnelID, updated.GraceDeadline)
	metrics.TunnelsByStatus.WithLabelValues("completed").Inc()
}
