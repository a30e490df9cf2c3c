package employee

import (
	"clockin-backend/internal/state"
	"clockin-backend/internal/workday"
)

type CreateEmployeeRequest struct {
	Name     string               `json:"name" binding:"required"`
	Color    string               `json:"color"`
	Schedule state.WeeklySchedule `json:"schedule"`
}

type UpdateEmployeeRequest struct {
	Name     *string              `json:"name,omitempty"`
	Color    *string              `json:"color,omitempty"`
	Active   *bool                `json:"active,omitempty"`
	Schedule state.WeeklySchedule `json:"schedule,omitempty"`
}

type EmployeeResponse struct {
	ID        string               `json:"id"`
	Name      string               `json:"name"`
	Color     string               `json:"color"`
	Active    bool                 `json:"active"`
	Schedule  state.WeeklySchedule `json:"schedule"`
	CreatedAt int64                `json:"created_at"`
}

// PanelRow: 管理パネルの従業員カード1枚分（当日の導出結果つき）
type PanelRow struct {
	Employee     EmployeeResponse    `json:"employee"`
	OnShiftToday bool                `json:"on_shift_today"`
	ShiftLabel   string              `json:"shift_label"` // 例 "09:00–17:00 · pausa 30m"
	Day          workday.Computation `json:"day"`
	InTime       string              `json:"in_time"`  // "HH:MM" or "—"
	OutTime      string              `json:"out_time"`
	BreakHM      string              `json:"break_hm"`
	WorkedHM     string              `json:"worked_hm"`
}

type PanelResponse struct {
	Date        string     `json:"date"`
	OnShift     int        `json:"on_shift"`
	Total       int        `json:"total"`
	IntegrityOK bool       `json:"integrity_ok"`
	Rows        []PanelRow `json:"rows"`
}

func toResponse(e *state.Employee) EmployeeResponse {
	return EmployeeResponse{
		ID:        e.ID,
		Name:      e.Name,
		Color:     e.Color,
		Active:    e.Active,
		Schedule:  e.Schedule,
		CreatedAt: e.CreatedAt,
	}
}
