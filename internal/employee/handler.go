package employee

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.GET("/employees", h.ListEmployees)
	r.POST("/employees", h.CreateEmployee)
	r.PUT("/employees/:id", h.UpdateEmployee)
	r.DELETE("/employees/:id", h.DeleteEmployee)

	// 当日パネル（UIのメイン画面が叩く）
	r.GET("/panel", h.GetPanel)
}

// ---------- handlers ----------

func (h *Handler) ListEmployees(c *gin.Context) {
	includeAll := c.Query("all") == "1" || c.Query("all") == "true"
	rows := h.svc.List(includeAll)
	c.JSON(http.StatusOK, gin.H{"employees": rows, "count": len(rows)})
}

func (h *Handler) CreateEmployee(c *gin.Context) {
	var req CreateEmployeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(ErrCodeInvalidArgument, "invalid json or missing required fields"))
		return
	}
	res, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.Header("Location", "/employees/"+res.ID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) UpdateEmployee(c *gin.Context) {
	var req UpdateEmployeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(ErrCodeInvalidArgument, "invalid json"))
		return
	}
	res, err := h.svc.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) DeleteEmployee(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetPanel(c *gin.Context) {
	res, err := h.svc.Panel(h.svc.clock.Now().UnixMilli())
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// ---------- helpers ----------

func toHTTPStatus(err error) int {
	var de *DomainError
	if errors.As(err, &de) {
		switch de.Code {
		case ErrCodeInvalidArgument:
			return http.StatusBadRequest
		case ErrCodeNotFound:
			return http.StatusNotFound
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}

type errorDTO struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorBody(code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

func errorFromErr(err error) errorDTO {
	var de *DomainError
	if errors.As(err, &de) {
		return errorBody(de.Code, de.Message)
	}
	return errorBody(ErrCodeInternal, err.Error())
}
