package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dropwire/dropwire/internal/api/constants"
	"github.com/dropwire/dropwire/internal/api/dto/common"
	tunneldto "github.com/dropwire/dropwire/internal/api/dto/v1/tunnel"
	"github.com/dropwire/dropwire/internal/library"
	"github.com/dropwire/dropwire/internal/logging"
	"github.com/dropwire/dropwire/internal/tunnel"
	"github.com/dropwire/dropwire/internal/token"
	"github.com/dropwire/dropwire/internal/utils"
)

// TunnelHandler serves link generation and the public file listing.
type TunnelHandler struct {
	manager *tunnel.Manager
	tokens  *token.Service
	lib     *library.Library
}

func NewTunnelHandler(manager *tunnel.Manager, tokens *token.Service, lib *library.Library) *TunnelHandler {
	return &TunnelHandler{manager: manager, tokens: tokens, lib: lib}
}

// GenerateLink handles POST /generate-link. The request body is
// already validated by middleware.ValidationMiddleware.
func (h *TunnelHandler) GenerateLink(c *gin.Context) {
	req := c.MustGet(constants.ContextKeyGenerateLink).(tunneldto.GenerateLinkRequest)

	ttl := time.Duration(req.ExpiresInSeconds) * time.Second
	rec, err := h.manager.CreateTunnel(c.Request.Context(), req.FilePath, ttl)
	if err != nil {
		h.handleCreateError(c, err)
		return
	}

	tok, err := h.tokens.Mint(c.Request.Context(), req.FilePath, rec.TunnelID, ttl)
	if err != nil {
		logging.GetGlobalLogger().Error("GenerateLink: mint token failed tunnel_id=%s: %v", rec.TunnelID, err)
		h.manager.DestroyTunnel(c.Request.Context(), rec.TunnelID, "failed")
		utils.HandleAPIError(c, err, http.StatusInternalServerError, common.ErrCodeInternalServer, "failed to mint token")
		return
	}

	utils.HandleCreated(c, tunneldto.GenerateLinkResponse{
		DownloadURL:      rec.PublicURL,
		TunnelID:         rec.TunnelID,
		Token:            tok,
		FilePath:         req.FilePath,
		ExpiresInSeconds: req.ExpiresInSeconds,
	})
}

func (h *TunnelHandler) handleCreateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, tunnel.ErrPathEscape), errors.Is(err, tunnel.ErrNotRegularFile):
		utils.HandleAPIError(c, err, http.StatusBadRequest, common.ErrCodeValidation, "invalid file path")
	case errors.Is(err, tunnel.ErrFileNotFound):
		utils.HandleAPIError(c, err, http.StatusNotFound, common.ErrCodeNotFound, "file not found")
	case errors.Is(err, tunnel.ErrEdgeProvision):
		utils.HandleAPIError(c, err, http.StatusInternalServerError, common.ErrCodeInternalServer, "failed to provision edge route")
	default:
		logging.GetGlobalLogger().Error("GenerateLink: CreateTunnel failed: %v", err)
		utils.HandleAPIError(c, err, http.StatusInternalServerError, common.ErrCodeInternalServer, "failed to create tunnel")
	}
}

// ListFiles handles GET /api/files.
func (h *TunnelHandler) ListFiles(c *gin.Context) {
	files, err := h.lib.List()
	if err != nil {
		utils.HandleAPIError(c, err, http.StatusInternalServerError, common.ErrCodeInternalServer, "failed to list library")
		return
	}
	utils.HandleSuccess(c, gin.H{"files": files})
}

// Download handles GET /download/{token}: consumes the token and
// returns the tunnel's public URL. An invalid token
// is an intentional connection drop with no response body, handled by
// hijacking the connection rather than writing a 4xx response.
func (h *TunnelHandler) Download(c *gin.Context) {
	tok := c.Param("token")
	claims, err := h.tokens.ValidateAndConsume(c.Request.Context(), tok)
	if err != nil {
		dropConnection(c)
		return
	}

	rec, err := h.manager.Get(c.Request.Context(), claims.TunnelID)
	if err != nil {
		dropConnection(c)
		return
	}

	utils.HandleSuccess(c, gin.H{"public_url": rec.PublicURL})
}

// dropConnection hijacks the underlying TCP connection and closes it
// without writing an HTTP response line, per the
// deliberate choice to reduce probing signal on invalid tokens.
func dropConnection(c *gin.Context) {
	hijacker, ok := c.Writer.(http.Hijacker)
	if !ok {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	conn, _, err := hijacker.Hijack()
	if err != nil {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	conn.Close()
}
