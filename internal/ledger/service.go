package ledger

import (
	"context"
	"crypto/rand"
	"log"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"clockin-backend/internal/platform/hashing"
	"clockin-backend/internal/state"
	"clockin-backend/internal/workday"
)

// チェーン最初のイベントの prevHash に入る番兵値
const GenesisHash = "GENESIS"

// ===== インターフェース群 =====

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type IDGen interface {
	New() (string, error)
}

type ulidGen struct{}

func (ulidGen) New() (string, error) {
	t := time.Now().UTC()
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ===== Service本体 =====

type Service struct {
	repo   *state.Repo
	digest hashing.Digest
	clock  Clock
	id     IDGen
}

func NewService(repo *state.Repo, digest hashing.Digest) *Service {
	if digest.Weak() {
		// 弱いダイジェストでも台帳は動かすが、保証低下は起動時に明示する
		log.Printf("[WARN] ledger digest degraded to %s: integrity guarantees reduced", digest.Kind())
	}
	return &Service{
		repo:   repo,
		digest: digest,
		clock:  realClock{},
		id:     ulidGen{},
	}
}

// Punch は打刻を台帳末尾に追記する。
// - prevHash は全従業員横断のグローバルチェーンの末尾（従業員別ではない）
// - BREAK中のOUTは直前に BREAK_END を合成してから受理する
// - 不正遷移は副作用ゼロで却下
// 保存失敗はそのまま返す（メモリ上の追記は巻き戻さない）。
func (s *Service) Punch(ctx context.Context, req PunchRequest) (*PunchResponse, error) {
	t := workday.EventType(strings.ToUpper(strings.TrimSpace(req.Type)))
	if !t.Valid() {
		return nil, NewInvalidArgumentError("type must be IN|OUT|BREAK_START|BREAK_END")
	}
	if req.EmpID == "" {
		return nil, NewInvalidArgumentError("emp_id is required")
	}

	var resp *PunchResponse
	err := s.repo.Mutate(ctx, func(st *state.State) error {
		emp := st.FindEmployee(req.EmpID)
		if emp == nil {
			return NewNotFoundError("employee not found: " + req.EmpID)
		}

		now := s.clock.Now().UnixMilli()
		dayKey := workday.DayKey(now)
		comp := workday.Compute(dayPunches(st, emp.ID, dayKey), dayKey, now)

		if !workday.ValidateTransition(comp.Phase, t) {
			return NewBadTransitionError(string(t) + " not allowed while " + string(comp.Phase))
		}

		lat, lng := geoFromRequest(st, req)

		var synthesized []state.Event
		if t == workday.TypeOut && comp.Phase == workday.PhaseBreak {
			synth, err := s.appendLocked(st, emp.ID, workday.TypeBreakEnd, "", nil, nil, now)
			if err != nil {
				return err
			}
			synthesized = append(synthesized, synth)
		}

		ev, err := s.appendLocked(st, emp.ID, t, req.Note, lat, lng, now)
		if err != nil {
			return err
		}

		day := workday.Compute(dayPunches(st, emp.ID, dayKey), dayKey, now)
		resp = &PunchResponse{
			Event:       toResponse(ev),
			Synthesized: toResponses(synthesized),
			Day:         day,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// appendLocked: Mutate配下でのみ呼ぶ。prevHash は毎回イベント列から畳み込みで
// 求め直す（可変のグローバル「最終ハッシュ」キャッシュは持たない）。
func (s *Service) appendLocked(st *state.State, empID string, t workday.EventType, note string, lat, lng *float64, ts int64) (state.Event, error) {
	id, err := s.id.New()
	if err != nil {
		return state.Event{}, NewInternalError("id generation failed: " + err.Error())
	}

	prev := st.LastHash(GenesisHash)
	ev := state.Event{
		ID:       id,
		EmpID:    empID,
		Type:     t,
		TS:       ts,
		Note:     note,
		Lat:      lat,
		Lng:      lng,
		PrevHash: prev,
	}
	ev.Hash = s.digest.Sum(canonicalPayload(ev))
	st.Events = append(st.Events, ev)
	return ev, nil
}

// canonicalPayload: hash = Digest(prevHash‖id‖empId‖type‖ts‖note‖geo)
func canonicalPayload(ev state.Event) string {
	return strings.Join([]string{
		ev.PrevHash,
		ev.ID,
		ev.EmpID,
		string(ev.Type),
		strconv.FormatInt(ev.TS, 10),
		ev.Note,
		fmtCoord(ev.Lat),
		fmtCoord(ev.Lng),
	}, "|")
}

func fmtCoord(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func geoFromRequest(st *state.State, req PunchRequest) (*float64, *float64) {
	if !st.Settings.GeoEnabled {
		return nil, nil
	}
	if req.Lat == nil || req.Lng == nil {
		// 片方だけの座標は捨てる（タイムアウト・拒否時はクライアントがnullを送る）
		return nil, nil
	}
	lat := math.Round(*req.Lat*1000) / 1000
	lng := math.Round(*req.Lng*1000) / 1000
	return &lat, &lng
}

// VerifyChain は保存順に全イベントを再生し、各ハッシュを記録済み prevHash から
// 再計算して照合する。不一致は integrityOk=false として永続化する。台帳の
// 切り詰めや修復はしない（新しい打刻は壊れた末尾にそのまま繋がる）。
func (s *Service) VerifyChain(ctx context.Context) (*VerifyResponse, error) {
	var resp *VerifyResponse
	err := s.repo.Mutate(ctx, func(st *state.State) error {
		ok := true
		prev := GenesisHash
		for i := range st.Events {
			ev := st.Events[i]
			if ev.PrevHash != prev {
				ok = false
				break
			}
			if !hashing.Equal(s.digest.Sum(canonicalPayload(ev)), ev.Hash) {
				ok = false
				break
			}
			prev = ev.Hash
		}
		st.IntegrityOK = ok
		resp = &VerifyResponse{
			OK:          ok,
			IntegrityOK: st.IntegrityOK,
			Checked:     len(st.Events),
			Digest:      string(s.digest.Kind()),
			WeakDigest:  s.digest.Weak(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ComputeDay: 1従業員・1暦日の導出結果。キャッシュせず毎回計算する。
func (s *Service) ComputeDay(empID, date string, nowMillis int64) (workday.Computation, error) {
	if _, err := time.ParseInLocation(DateLayout, date, time.Local); err != nil {
		return workday.Computation{}, NewInvalidArgumentError("date must be YYYY-MM-DD")
	}
	var comp workday.Computation
	var found bool
	s.repo.View(func(st *state.State) {
		if st.FindEmployee(empID) == nil {
			return
		}
		found = true
		comp = workday.Compute(dayPunches(st, empID, date), date, nowMillis)
	})
	if !found {
		return workday.Computation{}, NewNotFoundError("employee not found: " + empID)
	}
	return comp, nil
}

// DayEvents: 従業員×暦日のイベント列（ts昇順、同時刻は挿入順を維持）
func (s *Service) DayEvents(empID, date string) []state.Event {
	var out []state.Event
	s.repo.View(func(st *state.State) {
		out = dayEvents(st, empID, date)
	})
	return out
}

// History: 任意の従業員フィルタ + 日付範囲。新しい順、上限つき。
func (s *Service) History(q HistoryQuery) ([]EventResponse, error) {
	today := workday.DayKey(s.clock.Now().UnixMilli())
	if q.From == "" {
		q.From = today
	}
	if q.To == "" {
		q.To = today
	}
	fromDay, err := time.ParseInLocation(DateLayout, q.From, time.Local)
	if err != nil {
		return nil, NewInvalidArgumentError("from must be YYYY-MM-DD")
	}
	toDay, err := time.ParseInLocation(DateLayout, q.To, time.Local)
	if err != nil {
		return nil, NewInvalidArgumentError("to must be YYYY-MM-DD")
	}
	fromTs := fromDay.UnixMilli()
	toTs := toDay.Add(24*time.Hour).UnixMilli() - 1
	if toTs < fromTs {
		return nil, NewInvalidArgumentError("to must be >= from")
	}

	limit := q.Limit
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}

	var rows []state.Event
	s.repo.View(func(st *state.State) {
		for _, ev := range st.Events {
			if q.EmpID != "" && ev.EmpID != q.EmpID {
				continue
			}
			if ev.TS < fromTs || ev.TS > toTs {
				continue
			}
			rows = append(rows, ev)
		}
	})

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].TS > rows[j].TS })
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return toResponses(rows), nil
}

func (s *Service) Now() time.Time { return s.clock.Now() }

// ===== helpers =====

func dayEvents(st *state.State, empID, date string) []state.Event {
	var out []state.Event
	for _, ev := range st.Events {
		if ev.EmpID == empID && workday.DayKey(ev.TS) == date {
			out = append(out, ev)
		}
	}
	// 同一ミリ秒の打刻（OUT直前に合成されるBREAK_ENDなど）は元の挿入順を保つ
	sort.SliceStable(out, func(i, j int) bool { return out[i].TS < out[j].TS })
	return out
}

func dayPunches(st *state.State, empID, date string) []workday.Punch {
	evs := dayEvents(st, empID, date)
	out := make([]workday.Punch, len(evs))
	for i, ev := range evs {
		out[i] = workday.Punch{Type: ev.Type, TS: ev.TS}
	}
	return out
}

func toResponse(ev state.Event) EventResponse {
	return EventResponse{
		ID:        ev.ID,
		EmpID:     ev.EmpID,
		Type:      string(ev.Type),
		TypeLabel: workday.TypeLabel(ev.Type),
		TS:        ev.TS,
		Date:      workday.DayKey(ev.TS),
		Time:      workday.FormatClock(ev.TS),
		Note:      ev.Note,
		Lat:       ev.Lat,
		Lng:       ev.Lng,
		PrevHash:  ev.PrevHash,
		Hash:      ev.Hash,
	}
}

func toResponses(evs []state.Event) []EventResponse {
	if len(evs) == 0 {
		return nil
	}
	out := make([]EventResponse, 0, len(evs))
	for _, ev := range evs {
		out = append(out, toResponse(ev))
	}
	return out
}
