// Package monitor implements the Download Monitor: tails the static
// file server's access log, attributes byte-level progress to
// tunnels, and fires completion/stall/expiry triggers.
package monitor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dropwire/dropwire/internal/logging"
	"github.com/dropwire/dropwire/internal/metrics"
	"github.com/dropwire/dropwire/internal/models"
	"github.com/dropwire/dropwire/internal/monitor/accesslog"
	"github.com/dropwire/dropwire/internal/state"
	"github.com/dropwire/dropwire/internal/tunnel"
)

// Config bundles the knobs Monitor needs from internal/config.Config.
type Config struct {
	AccessLogPath           string
	StallTimeoutSeconds     int
	GracePeriodSeconds      int
	TriggerTickInterval     time.Duration
	OffsetCheckpointEvents  int
	OffsetCheckpointInterval time.Duration
}

// Monitor owns the log-tailer task and the periodic trigger-tick task
// both run as long-lived goroutines started
// by Start and stopped by Stop, following the
// internal/tasks/session_cleanup.go Start/Stop/WaitGroup shape from
// established conventions.
type Monitor struct {
	store   state.Store
	manager *tunnel.Manager
	cfg     Config

	done chan struct{}
	wg   sync.WaitGroup

	parseErrors int64
	mu          sync.Mutex
	paused      bool
}

// New builds a Monitor. Call Start to begin tailing and ticking.
func New(store state.Store, manager *tunnel.Manager, cfg Config) *Monitor {
	if cfg.TriggerTickInterval <= 0 {
		cfg.TriggerTickInterval = 5 * time.Second
	}
	if cfg.OffsetCheckpointInterval <= 0 {
		cfg.OffsetCheckpointInterval = 10 * time.Second
	}
	if cfg.OffsetCheckpointEvents <= 0 {
		cfg.OffsetCheckpointEvents = 50
	}
	return &Monitor{store: store, manager: manager, cfg: cfg, done: make(chan struct{})}
}

// Start launches the tailer and trigger-tick goroutines.
// crashRecovery, when true, resumes tailing from the last persisted
// offset instead of seeking to end of file.
func (m *Monitor) Start(ctx context.Context, crashRecovery bool) error {
	startOffset := int64(0)
	if crashRecovery {
		startOffset = m.loadPersistedOffset(ctx)
	}

	t, err := newTailer(m.cfg.AccessLogPath, startOffset)
	if err != nil {
		return err
	}

	m.wg.Add(2)
	go m.tailLoop(ctx, t)
	go m.tickLoop(ctx)
	return nil
}

// Stop signals both loops to exit and waits for them.
func (m *Monitor) Stop() {
	close(m.done)
	m.wg.Wait()
}

func (m *Monitor) loadPersistedOffset(ctx context.Context) int64 {
	raw, err := m.store.Get(ctx, state.OffsetKey)
	if err != nil {
		return 0
	}
	var offset int64
	if err := json.Unmarshal(raw, &offset); err != nil {
		return 0
	}
	return offset
}

func (m *Monitor) persistOffset(ctx context.Context, offset int64) {
	raw, err := json.Marshal(offset)
	if err != nil {
		return
	}
	if err := m.store.Set(ctx, state.OffsetKey, raw, 0); err != nil {
		logging.GetGlobalLogger().Warn("monitor: checkpoint offset: %v", err)
	}
}

func (m *Monitor) tailLoop(ctx context.Context, t *tailer) {
	defer m.wg.Done()
	defer t.Close()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	checkpointTicker := time.NewTicker(m.cfg.OffsetCheckpointInterval)
	defer checkpointTicker.Stop()

	eventsSinceCheckpoint := 0
	for {
		select {
		case <-m.done:
			return
		case <-ctx.Done():
			return
		case <-checkpointTicker.C:
			m.persistOffset(ctx, t.Offset())
			eventsSinceCheckpoint = 0
		case <-t.Events():
			// Directory event (rotation); reopen handled lazily on
			// next ReadLine via reopenIfRotated.
		case <-ticker.C:
			for {
				line, err := t.ReadLine()
				if err != nil {
					logging.GetGlobalLogger().Error("monitor: tail error: %v", err)
					break
				}
				if line == nil {
					break
				}
				m.handleLine(ctx, line)
				eventsSinceCheckpoint++
				if eventsSinceCheckpoint >= m.cfg.OffsetCheckpointEvents {
					m.persistOffset(ctx, t.Offset())
					eventsSinceCheckpoint = 0
				}
			}
		}
	}
}

func (m *Monitor) handleLine(ctx context.Context, line []byte) {
	parsed, err := accesslog.ParseLine(line)
	if err != nil {
		m.mu.Lock()
		m.parseErrors++
		m.mu.Unlock()
		metrics.LogParseErrors.Inc()
		return
	}
	if parsed.Intent != accesslog.IntentDownload {
		// Non-matching or courtesy-page events are ignored for byte
		// accounting rules.
		return
	}
	m.attribute(ctx, parsed)
}

// activeConnectionsWindow bounds the "last N seconds" in the
// active_connections heuristic: distinct request_ids with an
// attributed event inside this window, counted fresh on every
// attributed event. Best-effort and reported, not relied on.
const activeConnectionsWindow = 30 * time.Second

func (m *Monitor) attribute(ctx context.Context, parsed accesslog.Parsed) {
	rec, raw, err := m.loadRecord(ctx, parsed.TunnelID)
	if err != nil {
		return // unknown or already-destroyed tunnel; nothing to attribute to
	}
	if rec.Status != models.StatusActive {
		return
	}

	if parsed.Event.StatusCode == 200 || parsed.Event.StatusCode == 206 {
		rec.BytesServed = accumulateRange(rec.BytesServed, parsed.Event.BodyBytesSent, rec.FileSize)
		metrics.BytesServed.Add(float64(parsed.Event.BodyBytesSent))
	}
	if parsed.Event.Timestamp.After(rec.LastActivityAt) {
		rec.LastActivityAt = parsed.Event.Timestamp
	}
	rec.RequestIDs = appendUnique(rec.RequestIDs, parsed.Event.RequestID, 50)
	rec.RecentRequests = recordSeen(rec.RecentRequests, parsed.Event.RequestID, parsed.Event.Timestamp, 50)
	rec.ActiveConnections = countWithinWindow(rec.RecentRequests, parsed.Event.Timestamp, activeConnectionsWindow)

	m.saveRecord(ctx, rec, raw)
}

// recordSeen upserts id's last-seen timestamp, bounding the slice to
// max entries (oldest dropped first).
func recordSeen(seen []models.RequestSeen, id string, at time.Time, max int) []models.RequestSeen {
	if id == "" {
		return seen
	}
	for i := range seen {
		if seen[i].RequestID == id {
			seen[i].SeenAt = at
			return seen
		}
	}
	seen = append(seen, models.RequestSeen{RequestID: id, SeenAt: at})
	if len(seen) > max {
		seen = seen[len(seen)-max:]
	}
	return seen
}

// countWithinWindow counts distinct request_ids last seen within
// window of now, implementing the active_connections heuristic.
func countWithinWindow(seen []models.RequestSeen, now time.Time, window time.Duration) int {
	count := 0
	for _, s := range seen {
		if now.Sub(s.SeenAt) <= window {
			count++
		}
	}
	return count
}

// accumulateRange applies the byte-accounting rule: overlapping ranges
// §4.3: increment bytes_served by min(body_bytes_sent,
// file_size-bytes_served), clamped at zero, never exceeding
// file_size. Isolated here so the alternative resolution of the
// Open Question (a tracked byte-range set for exactness) is a
// local, swappable change — see DESIGN.md.
func accumulateRange(bytesServed, bodyBytesSent, fileSize int64) int64 {
	remaining := fileSize - bytesServed
	if remaining < 0 {
		remaining = 0
	}
	delta := bodyBytesSent
	if delta > remaining {
		delta = remaining
	}
	if delta < 0 {
		delta = 0
	}
	return bytesServed + delta
}

func appendUnique(ids []string, id string, max int) []string {
	if id == "" {
		return ids
	}
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	ids = append(ids, id)
	if len(ids) > max {
		ids = ids[len(ids)-max:]
	}
	return ids
}

func (m *Monitor) loadRecord(ctx context.Context, tunnelID string) (*models.TunnelRecord, []byte, error) {
	raw, err := m.store.Get(ctx, state.TunnelKey(tunnelID))
	if err != nil {
		return nil, nil, err
	}
	var rec models.TunnelRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, nil, err
	}
	return &rec, raw, nil
}

func (m *Monitor) saveRecord(ctx context.Context, rec *models.TunnelRecord, oldRaw []byte) {
	newRaw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	ttl := time.Until(rec.ExpiresAt) + time.Duration(m.cfg.GracePeriodSeconds)*time.Second
	if err := m.store.CompareAndSet(ctx, state.TunnelKey(rec.TunnelID), oldRaw, newRaw, ttl); err != nil {
		// Lost a race with another writer (the trigger tick, most
		// likely); the next tick will observe the winner's state.
		return
	}
}

// ParseErrorCount returns the number of unparseable lines seen so
// far, for GET /admin/monitor/status.
func (m *Monitor) ParseErrorCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.parseErrors
}
