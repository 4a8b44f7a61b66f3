package monitor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dropwire/dropwire/internal/edge"
	"github.com/dropwire/dropwire/internal/library"
	"github.com/dropwire/dropwire/internal/models"
	"github.com/dropwire/dropwire/internal/monitor/accesslog"
	"github.com/dropwire/dropwire/internal/state"
	"github.com/dropwire/dropwire/internal/tunnel"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestAccumulateRangeClampsAtFileSize(t *testing.T) {
	require.EqualValues(t, 10, accumulateRange(0, 10, 10))
	require.EqualValues(t, 10, accumulateRange(8, 10, 10))
	require.EqualValues(t, 10, accumulateRange(10, 5, 10))
	require.EqualValues(t, 5, accumulateRange(0, 5, 10))
}

func TestCountWithinWindowDropsStaleRequestIDs(t *testing.T) {
	now := time.Now()
	var seen []models.RequestSeen
	seen = recordSeen(seen, "req-1", now.Add(-45*time.Second), 50)
	seen = recordSeen(seen, "req-2", now.Add(-5*time.Second), 50)
	seen = recordSeen(seen, "req-2", now.Add(-1*time.Second), 50)

	require.Equal(t, 1, countWithinWindow(seen, now, activeConnectionsWindow))
}

func TestAttributeSetsActiveConnections(t *testing.T) {
	mon, store, mgr := newTestMonitor(t)
	ctx := context.Background()

	rec, err := mgr.CreateTunnel(ctx, "a.txt", 60*time.Second)
	require.NoError(t, err)

	ts := time.Now().UTC()
	mon.attribute(ctx, accesslog.Parsed{
		TunnelID: rec.TunnelID,
		Intent:   accesslog.IntentDownload,
		Event: models.AccessLogEvent{
			Timestamp:     ts,
			StatusCode:    206,
			BodyBytesSent: 4,
			RequestID:     "req-a",
		},
	})
	mon.attribute(ctx, accesslog.Parsed{
		TunnelID: rec.TunnelID,
		Intent:   accesslog.IntentDownload,
		Event: models.AccessLogEvent{
			Timestamp:     ts.Add(time.Second),
			StatusCode:    206,
			BodyBytesSent: 4,
			RequestID:     "req-b",
		},
	})

	raw, err := store.Get(ctx, state.TunnelKey(rec.TunnelID))
	require.NoError(t, err)
	var fetched models.TunnelRecord
	require.NoError(t, json.Unmarshal(raw, &fetched))
	require.Equal(t, 2, fetched.ActiveConnections)
}

func newTestMonitor(t *testing.T) (*Monitor, state.Store, *tunnel.Manager) {
	t.Helper()
	libDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(libDir, "a.txt"), []byte("hello world!"), 0644))
	lib, err := library.New(libDir)
	require.NoError(t, err)

	store := state.NewMemoryStore()
	provider := edge.NewFakeProvider("share.example.com")
	mgr := tunnel.NewManager(store, provider, lib, tunnel.Config{
		StagingRoot:        t.TempDir(),
		MaxTunnelSeconds:   3600,
		GracePeriodSeconds: 3600,
	})

	mon := New(store, mgr, Config{
		StallTimeoutSeconds: 300,
		GracePeriodSeconds:  3600,
		TriggerTickInterval: 5 * time.Second,
	})
	return mon, store, mgr
}

func TestTickExpiresPastDeadline(t *testing.T) {
	mon, store, mgr := newTestMonitor(t)
	ctx := context.Background()

	rec, err := mgr.CreateTunnel(ctx, "a.txt", 60*time.Second)
	require.NoError(t, err)

	rec.ExpiresAt = time.Now().Add(-time.Second)
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, state.TunnelKey(rec.TunnelID), raw, time.Hour))

	mon.Tick(ctx)

	_, err = mgr.Get(ctx, rec.TunnelID)
	require.ErrorIs(t, err, tunnel.ErrNotFound)
}

func TestTickMarksCompletedThenDestroysAfterGrace(t *testing.T) {
	mon, store, mgr := newTestMonitor(t)
	ctx := context.Background()

	rec, err := mgr.CreateTunnel(ctx, "a.txt", 60*time.Second)
	require.NoError(t, err)

	rec.BytesServed = rec.FileSize
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, state.TunnelKey(rec.TunnelID), raw, time.Hour))

	mon.Tick(ctx)

	fetched, err := mgr.Get(ctx, rec.TunnelID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, fetched.Status)

	fetched.GraceDeadline = time.Now().Add(-time.Second)
	raw, err = json.Marshal(fetched)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, state.TunnelKey(rec.TunnelID), raw, time.Hour))

	mon.Tick(ctx)

	_, err = mgr.Get(ctx, rec.TunnelID)
	require.ErrorIs(t, err, tunnel.ErrNotFound)
}

func TestTickStallsIdleTunnel(t *testing.T) {
	mon, store, mgr := newTestMonitor(t)
	ctx := context.Background()

	rec, err := mgr.CreateTunnel(ctx, "a.txt", 60*time.Second)
	require.NoError(t, err)

	rec.BytesServed = 4
	rec.LastActivityAt = time.Now().Add(-time.Hour)
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, state.TunnelKey(rec.TunnelID), raw, time.Hour))

	mon.Tick(ctx)

	_, err = mgr.Get(ctx, rec.TunnelID)
	require.ErrorIs(t, err, tunnel.ErrNotFound)
}
