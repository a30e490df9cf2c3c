package state

import (
	"encoding/json"
)

// Normalize はインポート/復元/レガシー移行で入ってくるドキュメントを信用せずに
// 現行スキーマへ整形する。壊れた従業員・イベントは捨て、欠けた曜日スロットは
// 既定値で埋める。ドキュメント全体が読めない場合はエラー（呼び出し側が判断）。
func Normalize(doc []byte) (*State, error) {
	var raw struct {
		V         int               `json:"v"`
		Settings  json.RawMessage   `json:"settings"`
		Integrity *bool             `json:"integrityOk"`
		Employees []json.RawMessage `json:"employees"`
		Events    []json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(doc, &raw); err != nil {
		return nil, err
	}

	st := Default()

	// settings（v1のフラットなPINフィールドも受ける）
	if len(raw.Settings) > 0 {
		var set struct {
			GeoEnabled bool       `json:"geoEnabled"`
			Pin        *PinRecord `json:"pin"`
			// レガシー(v1)形式
			PinSaltB64 string `json:"pinSaltB64"`
			PinHashB64 string `json:"pinHashB64"`
		}
		if err := json.Unmarshal(raw.Settings, &set); err == nil {
			st.Settings.GeoEnabled = set.GeoEnabled
			switch {
			case set.Pin != nil && set.Pin.SaltB64 != "" && set.Pin.HashB64 != "":
				p := *set.Pin
				if p.Iterations <= 0 {
					p.Iterations = LegacyPinIterations
				}
				st.Settings.Pin = &p
			case set.PinSaltB64 != "" && set.PinHashB64 != "":
				st.Settings.Pin = &PinRecord{
					SaltB64:    set.PinSaltB64,
					Iterations: LegacyPinIterations,
					HashB64:    set.PinHashB64,
				}
			}
		}
	}

	if raw.Integrity != nil {
		st.IntegrityOK = *raw.Integrity
	}

	for _, r := range raw.Employees {
		var e Employee
		if err := json.Unmarshal(r, &e); err != nil {
			continue // 壊れたレコードは捨てる
		}
		if e.ID == "" {
			continue
		}
		normalizeEmployee(&e)
		st.Employees = append(st.Employees, &e)
	}

	for _, r := range raw.Events {
		var ev Event
		if err := json.Unmarshal(r, &ev); err != nil {
			continue
		}
		if ev.ID == "" || ev.EmpID == "" || ev.TS <= 0 || !ev.Type.Valid() {
			continue
		}
		st.Events = append(st.Events, ev)
	}

	return st, nil
}

// v1時代のPINはPBKDF2 150k固定だった
const LegacyPinIterations = 150000

// SanitizeEmployee: 新規作成・更新で受けた従業員レコードに既定値を埋める
// （復元時の正規化と同じ規則）
func SanitizeEmployee(e *Employee) {
	normalizeEmployee(e)
}

func normalizeEmployee(e *Employee) {
	if e.Name == "" {
		e.Name = "Empleado"
	}
	if e.Color == "" {
		e.Color = "#7c5cff"
	}
	if e.Schedule == nil {
		e.Schedule = DefaultSchedule()
		return
	}
	def := DefaultSchedule()
	for _, k := range WeekdayKeys {
		slot, ok := e.Schedule[k]
		if !ok {
			e.Schedule[k] = def[k]
			continue
		}
		if slot.Start == "" {
			slot.Start = "09:00"
		}
		if slot.End == "" {
			slot.End = "17:00"
		}
		slot.BreakMin = clampInt(slot.BreakMin, 0, 240)
		e.Schedule[k] = slot
	}
	// 未知の曜日キーは落とす
	for k := range e.Schedule {
		if !isWeekdayKey(k) {
			delete(e.Schedule, k)
		}
	}
}

func isWeekdayKey(k string) bool {
	for _, w := range WeekdayKeys {
		if w == k {
			return true
		}
	}
	return false
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
