package ledger

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	// POST /punches（打刻）
	r.POST("/punches", h.CreatePunch)
	// GET /punches（履歴）
	r.GET("/punches", h.ListPunches)
	// GET /days/:empId/:date（1従業員・1日の導出結果）
	r.GET("/days/:empId/:date", h.GetDay)
	// GET /chain/verify
	r.GET("/chain/verify", h.VerifyChain)
}

// ---------- handlers ----------

func (h *Handler) CreatePunch(c *gin.Context) {
	var req PunchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(ErrCodeInvalidArgument, "invalid json or missing required fields"))
		return
	}

	res, err := h.svc.Punch(c.Request.Context(), req)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) ListPunches(c *gin.Context) {
	q := HistoryQuery{
		EmpID: c.Query("emp_id"),
		From:  c.Query("from"),
		To:    c.Query("to"),
		Limit: parseIntDefault(c.Query("limit"), 0),
	}
	rows, err := h.svc.History(q)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": rows, "count": len(rows)})
}

func (h *Handler) GetDay(c *gin.Context) {
	empID := c.Param("empId")
	date := c.Param("date")
	comp, err := h.svc.ComputeDay(empID, date, h.svc.Now().UnixMilli())
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, comp)
}

func (h *Handler) VerifyChain(c *gin.Context) {
	res, err := h.svc.VerifyChain(c.Request.Context())
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// ---------- helpers ----------

func parseIntDefault(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}

func toHTTPStatus(err error) int {
	var de *DomainError
	if errors.As(err, &de) {
		switch de.Code {
		case ErrCodeInvalidArgument, ErrCodeBadTransition:
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
