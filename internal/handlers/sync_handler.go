package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/khata-api/internal/services"
)

type SyncHandler struct {
	syncService *services.SyncService
}

func NewSyncHandler(syncService *services.SyncService) *SyncHandler {
	return &SyncHandler{syncService: syncService}
}

// @Summary Sync Snapshot
// @Description Catalog, khatas and sales created since the given time, for terminal replicas
// @Tags Sync
// @Produce json
// @Param since query string false "RFC3339 timestamp"
// @Success 200 {object} models.SyncSnapshot
// @Failure 422 {object} map[string]string
// @Security BearerAuth
// @Router /sync/snapshot [get]
func (h *SyncHandler) Snapshot(c *gin.Context) {
	var since time.Time
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "since must be an RFC3339 timestamp", "field": "since"})
			return
		}
		since = parsed
	}

	snapshot, err := h.syncService.Snapshot(c.Request.Context(), since)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
