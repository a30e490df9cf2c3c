package ledger

import (
	"clockin-backend/internal/workday"
)

const (
	DefaultHistoryLimit = 1500
	DateLayout          = workday.DateLayout
)

type PunchRequest struct {
	EmpID string  `json:"emp_id" binding:"required"`
	Type  string  `json:"type" binding:"required"` // IN|OUT|BREAK_START|BREAK_END
	Note  string  `json:"note"`
	Lat   *float64 `json:"lat,omitempty"`
	Lng   *float64 `json:"lng,omitempty"`
}

type EventResponse struct {
	ID        string   `json:"id"`
	EmpID     string   `json:"emp_id"`
	Type      string   `json:"type"`
	TypeLabel string   `json:"type_label"`
	TS        int64    `json:"ts"`
	Date      string   `json:"date"` // ローカル暦日キー
	Time      string   `json:"time"` // "HH:MM"
	Note      string   `json:"note"`
	Lat       *float64 `json:"lat,omitempty"`
	Lng       *float64 `json:"lng,omitempty"`
	PrevHash  string   `json:"prev_hash"`
	Hash      string   `json:"hash"`
}

// PunchResponse: 受理された打刻。BREAK中のOUTでは synthesized に
// 合成された BREAK_END が入る。
type PunchResponse struct {
	Event       EventResponse   `json:"event"`
	Synthesized []EventResponse `json:"synthesized,omitempty"`
	Day         workday.Computation `json:"day"`
}

type HistoryQuery struct {
	EmpID string // 空なら全員
	From  string // "YYYY-MM-DD"（空なら今日）
	To    string
	Limit int
}

type VerifyResponse struct {
	OK          bool   `json:"ok"`
	IntegrityOK bool   `json:"integrity_ok"`
	Checked     int    `json:"checked"`
	Digest      string `json:"digest"`
	WeakDigest  bool   `json:"weak_digest"`
}
