package security

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"clockin-backend/internal/state"
)

type Handler struct {
	svc  *Service
	repo *state.Repo
}

// RegisterRoutes: PIN・設定系。PUT/DELETE /pin は保護操作（guarded経由で登録）。
func RegisterRoutes(r gin.IRoutes, guarded gin.IRoutes, svc *Service, repo *state.Repo) {
	h := &Handler{svc: svc, repo: repo}

	r.POST("/pin/verify", h.VerifyPin)
	guarded.PUT("/pin", h.SetPin)
	guarded.DELETE("/pin", h.ClearPin)

	r.GET("/settings", h.GetSettings)
	r.PUT("/settings/geo", h.SetGeo)
}

type verifyPinRequest struct {
	Pin string `json:"pin" binding:"required"`
}

type setPinRequest struct {
	Pin        string `json:"pin" binding:"required"`
	PinConfirm string `json:"pin_confirm" binding:"required"`
}

type setGeoRequest struct {
	Enabled bool `json:"enabled"`
}

// ---------- handlers ----------

func (h *Handler) VerifyPin(c *gin.Context) {
	var req verifyPinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	token, exp, err := h.svc.IssueGraceToken(req.Pin)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": exp.Format(time.RFC3339),
	})
}

func (h *Handler) SetPin(c *gin.Context) {
	var req setPinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json or missing required fields"})
		return
	}
	if err := h.svc.SetPin(c.Request.Context(), req.Pin, req.PinConfirm); err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ClearPin(c *gin.Context) {
	if err := h.svc.ClearPin(c.Request.Context()); err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetSettings(c *gin.Context) {
	var geo, hasPin, integrity bool
	h.repo.View(func(st *state.State) {
		geo = st.Settings.GeoEnabled
		hasPin = st.Settings.HasPin()
		integrity = st.IntegrityOK
	})
	c.JSON(http.StatusOK, gin.H{
		"geo_enabled":  geo,
		"has_pin":      hasPin,
		"integrity_ok": integrity,
	})
}

func (h *Handler) SetGeo(c *gin.Context) {
	var req setGeoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	err := h.repo.Mutate(c.Request.Context(), func(st *state.State) error {
		st.Settings.GeoEnabled = req.Enabled
		return nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"geo_enabled": req.Enabled})
}

// ---------- helpers ----------

func toHTTPStatus(err error) int {
	var de *DomainError
	if errors.As(err, &de) {
		switch de.Code {
		case ErrCodeInvalidArgument:
			return http.StatusBadRequest
		case ErrCodeUnauthorized:
			return http.StatusUnauthorized
		case ErrCodeUnavailable:
			return http.StatusServiceUnavailable
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}

func errorFromErr(err error) gin.H {
	var de *DomainError
	if errors.As(err, &de) {
		return gin.H{"error": gin.H{"code": de.Code, "message": de.Message}}
	}
	return gin.H{"error": gin.H{"code": ErrCodeInternal, "message": err.Error()}}
}
