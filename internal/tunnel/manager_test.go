package tunnel

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
	"github.com/dropwire/dropwire/internal/state"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestManager(t *testing.T) (*Manager, *edge.FakeProvider) {
	t.Helper()
	libDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(libDir, "a.txt"), []byte("hello world!"), 0644))
	lib, err := library.New(libDir)
	require.NoError(t, err)

	provider := edge.NewFakeProvider("share.example.com")
	mgr := NewManager(state.NewMemoryStore(), provider, lib, Config{
		StagingRoot:        t.TempDir(),
		MaxTunnelSeconds:   3600,
		GracePeriodSeconds: 3600,
	})
	return mgr, provider
}

func TestCreateTunnelHappyPath(t *testing.T) {
	mgr, provider := newTestManager(t)
	ctx := context.Background()

	rec, err := mgr.CreateTunnel(ctx, "a.txt", 60*time.Second)
	require.NoError(t, err)
	require.Equal(t, models.StatusActive, rec.Status)
	require.EqualValues(t, 12, rec.FileSize)
	require.True(t, provider.IsPublished(rec.TunnelID))

	fetched, err := mgr.Get(ctx, rec.TunnelID)
	require.NoError(t, err)
	require.Equal(t, rec.TunnelID, fetched.TunnelID)
}

func TestCreateTunnelRejectsTraversal(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.CreateTunnel(context.Background(), "../etc/passwd", 60*time.Second)
	require.ErrorIs(t, err, ErrPathEscape)
}

func TestCreateTunnelCleansUpOnPublishFailure(t *testing.T) {
	mgr, provider := newTestManager(t)
	provider.FailPublish = true

	_, err := mgr.CreateTunnel(context.Background(), "a.txt", 60*time.Second)
	require.ErrorIs(t, err, ErrEdgeProvision)

	active, err := mgr.ListActive(context.Background())
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestDestroyTunnelIdempotent(t *testing.T) {
	mgr, provider := newTestManager(t)
	ctx := context.Background()

	rec, err := mgr.CreateTunnel(ctx, "a.txt", 60*time.Second)
	require.NoError(t, err)

	require.NoError(t, mgr.DestroyTunnel(ctx, rec.TunnelID, "terminated"))
	require.NoError(t, mgr.DestroyTunnel(ctx, rec.TunnelID, "terminated"))
	require.False(t, provider.IsPublished(rec.TunnelID))

	history, err := mgr.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "terminated", history[0].Reason)
}

func TestDestroyTunnelTearsDownCompletedRecord(t *testing.T) {
	mgr, provider := newTestManager(t)
	ctx := context.Background()

	rec, err := mgr.CreateTunnel(ctx, "a.txt", 60*time.Second)
	require.NoError(t, err)

	rec.Status = models.StatusCompleted
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, mgr.store.Set(ctx, state.TunnelKey(rec.TunnelID), raw, time.Hour))

	require.NoError(t, mgr.DestroyTunnel(ctx, rec.TunnelID, "completed"))

	require.False(t, provider.IsPublished(rec.TunnelID))
	_, err = mgr.Get(ctx, rec.TunnelID)
	require.ErrorIs(t, err, ErrNotFound)

	history, err := mgr.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "completed", history[0].Reason)
}

func TestReconcileOnStartupUnpublishesOrphanRoute(t *testing.T) {
	mgr, provider := newTestManager(t)
	ctx := context.Background()

	_, _, err := provider.Publish(ctx, "", "orphan123")
	require.NoError(t, err)

	require.NoError(t, mgr.ReconcileOnStartup(ctx))
	require.False(t, provider.IsPublished("orphan123"))
}
