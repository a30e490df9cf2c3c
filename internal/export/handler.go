package export

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"clockin-backend/internal/ledger"
	"clockin-backend/internal/workday"
)

type Handler struct{ svc *Service }

// RegisterRoutes: エクスポートは全て保護操作（guardedグループに載せる）
func RegisterRoutes(guarded gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	guarded.GET("/export/summary.csv", h.SummaryCSV)
	guarded.GET("/export/events.csv", h.EventsCSV)
	guarded.GET("/export/summary.xlsx", h.SummaryXLSX)
}

// ---------- handlers ----------

func (h *Handler) SummaryCSV(c *gin.Context) {
	now := time.Now().UnixMilli()
	data, err := h.svc.SummaryCSV(now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	serveDownload(c, data, "text/csv; charset=utf-8",
		fmt.Sprintf("clockin_resumen_%s.csv", workday.DayKey(now)))
}

func (h *Handler) EventsCSV(c *gin.Context) {
	q := ledger.HistoryQuery{
		EmpID: c.Query("emp_id"),
		From:  c.Query("from"),
		To:    c.Query("to"),
	}
	data, err := h.svc.EventsCSV(q)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	serveDownload(c, data, "text/csv; charset=utf-8",
		fmt.Sprintf("clockin_eventos_%s.csv", workday.DayKey(time.Now().UnixMilli())))
}

func (h *Handler) SummaryXLSX(c *gin.Context) {
	now := time.Now().UnixMilli()
	data, err := h.svc.SummaryXLSX(now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	serveDownload(c, data,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		fmt.Sprintf("clockin_resumen_%s.xlsx", workday.DayKey(now)))
}

func serveDownload(c *gin.Context, data []byte, contentType, filename string) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}
