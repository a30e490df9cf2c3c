// 1従業員・1日の打刻列から就労/休憩時間と現在状態を導出する純粋ロジック。
// 台帳にもUIにも依存しない。now は必ず引数で受ける（暗黙の時計読みをしない）。
package workday

import (
	"fmt"
	"time"
)

// ===== 打刻種別 =====

type EventType string

const (
	TypeIn         EventType = "IN"
	TypeOut        EventType = "OUT"
	TypeBreakStart EventType = "BREAK_START"
	TypeBreakEnd   EventType = "BREAK_END"
)

func (t EventType) Valid() bool {
	switch t {
	case TypeIn, TypeOut, TypeBreakStart, TypeBreakEnd:
		return true
	}
	return false
}

// TypeLabel: 履歴・CSV用の表示名
func TypeLabel(t EventType) string {
	switch t {
	case TypeIn:
		return "Entrada"
	case TypeOut:
		return "Salida"
	case TypeBreakStart:
		return "Pausa (inicio)"
	case TypeBreakEnd:
		return "Pausa (fin)"
	}
	return string(t)
}

// ===== フェーズ =====

type Phase string

const (
	PhaseOut   Phase = "OUT"   // 未出勤
	PhaseIn    Phase = "IN"    // 勤務中
	PhaseBreak Phase = "BREAK" // 休憩中
	PhaseDone  Phase = "DONE"  // 退勤済み（入と出が揃った日）
)

func StatusLabel(p Phase) string {
	switch p {
	case PhaseIn:
		return "Trabajando"
	case PhaseBreak:
		return "En pausa"
	case PhaseDone:
		return "Fuera"
	}
	return "Sin fichar"
}

// ===== 日付キー・時間ユーティリティ =====

const DateLayout = "2006-01-02"

// DayKey: epoch-millis → プロセスのローカルTZでの暦日キー。
// 端末間でTZ/時計がずれると同じ打刻が別の日に落ちる既知の制約がある。
func DayKey(tsMillis int64) string {
	return time.UnixMilli(tsMillis).Format(DateLayout)
}

func MinutesFromMs(ms int64) int64 {
	if ms < 0 {
		return 0
	}
	// 四捨五入
	return (ms + 30000) / 60000
}

// FormatHM: 分 → "8h 30m"
func FormatHM(min int64) string {
	if min < 0 {
		min = 0
	}
	return fmt.Sprintf("%dh %02dm", min/60, min%60)
}

func FormatClock(tsMillis int64) string {
	return time.UnixMilli(tsMillis).Format("15:04")
}

// ===== 日次計算 =====

// Punch は計算に必要な最小限の打刻情報
type Punch struct {
	Type EventType
	TS   int64 // epoch-millis
}

type Computation struct {
	FirstIn  *int64 `json:"first_in"`
	LastOut  *int64 `json:"last_out"`
	WorkedMs int64  `json:"worked_ms"`
	BreakMs  int64  `json:"break_ms"`
	Phase    Phase  `json:"phase"`
	Status   string `json:"status"`
}

// Compute は punches（ts昇順・同一従業員・同一日）を1パスで畳み込む。
// dayKey が now の属する日（=今日）で、打刻列が IN/BREAK のまま終わっている場合のみ、
// 最後のフェーズ開始時刻から now までを進行中として加算する。過去日の未終了列は
// 最後の打刻で止まったまま（明示的な仕様）。
func Compute(punches []Punch, dayKey string, nowMillis int64) Computation {
	var (
		firstIn *int64
		lastOut *int64
		workMs  int64
		breakMs int64
	)

	phase := PhaseOut
	var cursor int64 // 現フェーズの開始時刻（IN/BREAK時のみ有効）

	for _, p := range punches {
		switch p.Type {
		case TypeIn:
			if phase == PhaseOut {
				phase = PhaseIn
				cursor = p.TS
				if firstIn == nil {
					ts := p.TS
					firstIn = &ts
				}
			}
		case TypeBreakStart:
			if phase == PhaseIn {
				workMs += clampSpan(p.TS - cursor)
				phase = PhaseBreak
				cursor = p.TS
			}
		case TypeBreakEnd:
			if phase == PhaseBreak {
				breakMs += clampSpan(p.TS - cursor)
				phase = PhaseIn
				cursor = p.TS
			}
		case TypeOut:
			// 休憩中のOUTは休憩を先に締めてから勤務を締める。
			// 打刻忘れでも breakMs/workMs の配分が決定的になる。
			switch phase {
			case PhaseIn:
				workMs += clampSpan(p.TS - cursor)
			case PhaseBreak:
				breakMs += clampSpan(p.TS - cursor)
			default:
				continue // 未出勤のOUTは無視
			}
			phase = PhaseOut
			ts := p.TS
			lastOut = &ts
		}
	}

	// 今日の進行中フェーズは now まで伸ばす
	if DayKey(nowMillis) == dayKey {
		switch phase {
		case PhaseIn:
			workMs += clampSpan(nowMillis - cursor)
		case PhaseBreak:
			breakMs += clampSpan(nowMillis - cursor)
		}
	}

	out := phase
	if phase == PhaseOut && firstIn != nil && lastOut != nil {
		out = PhaseDone
	}

	return Computation{
		FirstIn:  firstIn,
		LastOut:  lastOut,
		WorkedMs: workMs,
		BreakMs:  breakMs,
		Phase:    out,
		Status:   StatusLabel(out),
	}
}

func clampSpan(ms int64) int64 {
	if ms < 0 {
		return 0
	}
	return ms
}

// ValidateTransition: 現フェーズで requested が台帳に意味を持つかを返す。
// UI側でボタンを無効化するための事前チェックであり、Append側でも同じ判定を使う。
// BREAK中のOUTは有効（台帳が BREAK_END を直前に合成して受理する）。
func ValidateTransition(current Phase, requested EventType) bool {
	switch requested {
	case TypeIn:
		return current == PhaseOut || current == PhaseDone
	case TypeBreakStart:
		return current == PhaseIn
	case TypeBreakEnd:
		return current == PhaseBreak
	case TypeOut:
		return current == PhaseIn || current == PhaseBreak
	}
	return false
}
