package backup

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"clockin-backend/internal/workday"
)

// インポートJSONの上限（異常な巨大ボディで落ちないように）
const maxRestoreBytes = 32 << 20

type Handler struct{ svc *Service }

func RegisterRoutes(guarded gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	guarded.GET("/backup", h.GetBackup)
	guarded.POST("/restore", h.Restore)
	guarded.POST("/wipe", h.Wipe)
}

// ---------- handlers ----------

func (h *Handler) GetBackup(c *gin.Context) {
	doc, err := h.svc.Snapshot()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	name := fmt.Sprintf("clockin_backup_%s.json", workday.DayKey(time.Now().UnixMilli()))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/json", doc)
}

func (h *Handler) Restore(c *gin.Context) {
	doc, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRestoreBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	emps, evs, err := h.svc.Restore(c.Request.Context(), doc)
	if err != nil {
		var de *DomainError
		if errors.As(err, &de) && de.Code == ErrCodeInvalidArgument {
			c.JSON(http.StatusBadRequest, gin.H{"error": de.Message})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"employees": emps, "events": evs})
}

func (h *Handler) Wipe(c *gin.Context) {
	if err := h.svc.Wipe(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
