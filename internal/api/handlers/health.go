package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dropwire/dropwire/internal/api/dto/common"
	"github.com/dropwire/dropwire/internal/state"
	"github.com/dropwire/dropwire/internal/utils"
)

// HealthHandler backs GET /health: 200 iff the state store is
// reachable.
type HealthHandler struct {
	store state.Store
}

func NewHealthHandler(store state.Store) *HealthHandler {
	return &HealthHandler{store: store}
}

func (h *HealthHandler) Check(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		utils.HandleAPIError(c, err, http.StatusServiceUnavailable, common.ErrCodeUnavailable, "state store unreachable")
		return
	}
	c.JSON(http.StatusOK, common.NewMessageResponse("ok"))
}
