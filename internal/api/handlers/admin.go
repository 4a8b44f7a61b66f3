package handlers

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/dropwire/dropwire/internal/api/dto/common"
	tunneldto "github.com/dropwire/dropwire/internal/api/dto/v1/tunnel"
	"github.com/dropwire/dropwire/internal/models"
	"github.com/dropwire/dropwire/internal/monitor"
	"github.com/dropwire/dropwire/internal/state"
	"github.com/dropwire/dropwire/internal/tunnel"
	"github.com/dropwire/dropwire/internal/utils"
)

// AdminHandler serves the operator-facing endpoints: tunnel listing,
// per-tunnel stats, termination, monitor status, forced cleanup, and
// history.
type AdminHandler struct {
	manager   *tunnel.Manager
	mon       *monitor.Monitor
	store     state.Store
	startedAt time.Time
}

func NewAdminHandler(manager *tunnel.Manager, mon *monitor.Monitor, store state.Store) *AdminHandler {
	return &AdminHandler{manager: manager, mon: mon, store: store, startedAt: time.Now()}
}

// uptime reports how long this process has been running, preferring
// the OS-reported process start time (gopsutil) over h.startedAt so it
// reflects the process, not just this handler's construction.
func (h *AdminHandler) uptime() time.Duration {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return time.Since(h.startedAt)
	}
	createdMs, err := p.CreateTime()
	if err != nil {
		return time.Since(h.startedAt)
	}
	return time.Since(time.UnixMilli(createdMs))
}

func toResponse(rec *models.TunnelRecord) tunneldto.Response {
	return tunneldto.Response{
		TunnelID:          rec.TunnelID,
		FilePath:          rec.FilePath,
		FileSize:          rec.FileSize,
		PublicURL:         rec.PublicURL,
		Hostname:          rec.Hostname,
		Status:            string(rec.Status),
		CreatedAt:         rec.CreatedAt,
		ExpiresAt:         rec.ExpiresAt,
		LastActivityAt:    rec.LastActivityAt,
		BytesServed:       rec.BytesServed,
		ActiveConnections: rec.ActiveConnections,
	}
}

// ListTunnels handles GET /admin/tunnels.
func (h *AdminHandler) ListTunnels(c *gin.Context) {
	records, err := h.manager.ListActive(c.Request.Context())
	if err != nil {
		utils.HandleAPIError(c, err, http.StatusInternalServerError, common.ErrCodeInternalServer, "failed to list tunnels")
		return
	}
	out := make([]tunneldto.Response, 0, len(records))
	for _, rec := range records {
		out = append(out, toResponse(rec))
	}
	utils.HandleSuccess(c, gin.H{"active_tunnels": out})
}

// GetTunnelStats handles GET /admin/tunnels/{id}/stats.
func (h *AdminHandler) GetTunnelStats(c *gin.Context) {
	id := c.Param("id")
	rec, err := h.manager.Get(c.Request.Context(), id)
	if err != nil {
		utils.HandleAPIError(c, err, http.StatusNotFound, common.ErrCodeNotFound, "tunnel not found")
		return
	}

	stats := tunneldto.StatsResponse{Response: toResponse(rec)}
	if !rec.GraceDeadline.IsZero() {
		stats.GraceDeadline = &rec.GraceDeadline
	}
	utils.HandleSuccess(c, stats)
}

// DeleteTunnel handles DELETE /admin/tunnels/{id}.
func (h *AdminHandler) DeleteTunnel(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.manager.Get(c.Request.Context(), id); err != nil {
		utils.HandleAPIError(c, err, http.StatusNotFound, common.ErrCodeNotFound, "tunnel not found")
		return
	}
	if err := h.manager.Terminate(c.Request.Context(), id); err != nil {
		utils.HandleAPIError(c, err, http.StatusInternalServerError, common.ErrCodeInternalServer, "failed to terminate tunnel")
		return
	}
	utils.HandleNoContent(c)
}

// MonitorStatus handles GET /admin/monitor/status.
func (h *AdminHandler) MonitorStatus(c *gin.Context) {
	ctx := c.Request.Context()
	records, err := h.manager.ListActive(ctx)
	stateConnected := h.store.Ping(ctx) == nil

	activeDownloads := 0
	for _, rec := range records {
		if rec.Status == models.StatusActive && rec.BytesServed > 0 {
			activeDownloads++
		}
	}

	memStat := ""
	if used, merr := h.store.MemoryUsage(ctx); merr == nil {
		memStat = humanizeBytes(used)
	}

	resp := tunneldto.MonitorStatusResponse{
		ActiveTunnelsCount:  len(records),
		ActiveDownloads:     activeDownloads,
		StateStoreConnected: stateConnected,
		StateStoreMemory:    memStat,
		Uptime:              h.uptime().String(),
		MonitorActive:       !h.mon.Paused(),
		ParseErrors:         h.mon.ParseErrorCount(),
	}
	if err != nil {
		utils.HandleAPIError(c, err, http.StatusInternalServerError, common.ErrCodeInternalServer, "failed to list tunnels")
		return
	}
	utils.HandleSuccess(c, resp)
}

func humanizeBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

// Cleanup handles POST /admin/cleanup: forces an immediate monitor
// tick. It does not sweep the token store; consumed tokens are swept
// only by the scheduled job in cmd/dropwire-server.
func (h *AdminHandler) Cleanup(c *gin.Context) {
	h.mon.Tick(c.Request.Context())
	utils.HandleMessage(c, "cleanup tick executed")
}

// History handles GET /admin/history.
func (h *AdminHandler) History(c *gin.Context) {
	entries, err := h.manager.History(c.Request.Context(), 200)
	if err != nil {
		utils.HandleAPIError(c, err, http.StatusInternalServerError, common.ErrCodeInternalServer, "failed to load history")
		return
	}
	out := make([]tunneldto.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, tunneldto.HistoryEntry{
			TunnelID:    e.TunnelID,
			FilePath:    e.FilePath,
			FileSize:    e.FileSize,
			Status:      string(e.Status),
			Reason:      e.Reason,
			CreatedAt:   e.CreatedAt,
			DestroyedAt: e.DestroyedAt,
			BytesServed: e.BytesServed,
		})
	}
	utils.HandleSuccess(c, gin.H{"history": out})
}
