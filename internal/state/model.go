// 永続化される状態ドキュメントのスキーマ。
// 1つのJSONドキュメント（schema version + settings + employees + events）を
// blobストアに丸ごと読み書きする。ドメインサービスは Repo 経由でこの構造を操作する。
package state

import (
	"time"

	"clockin-backend/internal/workday"
)

const (
	SchemaVersion = 2
	StorageKey    = "clockin_v2"
	LegacyKey     = "clockin_v1"
)

// 週の固定キー（月曜始まり）
var WeekdayKeys = []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

type DaySlot struct {
	Enabled  bool   `json:"enabled"`
	Start    string `json:"start"` // "HH:MM"
	End      string `json:"end"`   // "HH:MM"（startより後。日跨ぎは非対応）
	BreakMin int    `json:"breakMin"`
}

type WeeklySchedule map[string]DaySlot

// DefaultSchedule: 月-金 09:00-17:00 休憩30分、土日オフ
func DefaultSchedule() WeeklySchedule {
	sch := make(WeeklySchedule, len(WeekdayKeys))
	for _, k := range WeekdayKeys {
		sch[k] = DaySlot{
			Enabled:  k != "sat" && k != "sun",
			Start:    "09:00",
			End:      "17:00",
			BreakMin: 30,
		}
	}
	return sch
}

// time.Weekday（日曜=0）→ 曜日キー
var weekdayToKey = [7]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

// SlotFor: その曜日のスロット（未設定なら無効スロット）
func (w WeeklySchedule) SlotFor(wd time.Weekday) DaySlot {
	if slot, ok := w[weekdayToKey[int(wd)%7]]; ok {
		return slot
	}
	return DaySlot{Enabled: false, Start: "09:00", End: "17:00", BreakMin: 30}
}

type Employee struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Color     string         `json:"color"`
	Active    bool           `json:"active"`
	Schedule  WeeklySchedule `json:"schedule"`
	CreatedAt int64          `json:"createdAt"` // epoch-millis
}

type Geo struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Event は台帳の1打刻。追記後は不変（訂正は打ち直しで表現する）。
type Event struct {
	ID       string            `json:"id"`
	EmpID    string            `json:"empId"`
	Type     workday.EventType `json:"type"`
	TS       int64             `json:"ts"` // epoch-millis
	Note     string            `json:"note"`
	Lat      *float64          `json:"lat"`
	Lng      *float64          `json:"lng"`
	PrevHash string            `json:"prevHash"`
	Hash     string            `json:"hash"`
}

// PinRecord はPINそのものではなく salted PBKDF2 導出値だけを持つ
type PinRecord struct {
	SaltB64    string `json:"saltB64"`
	Iterations int    `json:"iterations"`
	HashB64    string `json:"hashB64"`
}

type Settings struct {
	GeoEnabled bool       `json:"geoEnabled"`
	Pin        *PinRecord `json:"pin"`
}

type State struct {
	V        int      `json:"v"`
	Settings Settings `json:"settings"`
	// 直近のチェーン検証の結果。台帳そのものは修復しない
	IntegrityOK bool        `json:"integrityOk"`
	Employees   []*Employee `json:"employees"`
	Events      []Event     `json:"events"`
}

func Default() *State {
	return &State{
		V:           SchemaVersion,
		Settings:    Settings{},
		IntegrityOK: true,
		Employees:   []*Employee{},
		Events:      []Event{},
	}
}

// FindEmployee: id一致の従業員（無ければnil）
func (s *State) FindEmployee(id string) *Employee {
	for _, e := range s.Employees {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// LastHash: 台帳全体の末尾イベントのハッシュを畳み込みで求める。
// キャッシュは持たない（正典は常にイベント列そのもの）。
func (s *State) LastHash(genesis string) string {
	if len(s.Events) == 0 {
		return genesis
	}
	return s.Events[len(s.Events)-1].Hash
}

func (s *Settings) HasPin() bool {
	return s.Pin != nil && s.Pin.SaltB64 != "" && s.Pin.HashB64 != ""
}
