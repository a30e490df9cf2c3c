package employee

import (
	"context"
	"crypto/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"clockin-backend/internal/ledger"
	"clockin-backend/internal/state"
	"clockin-backend/internal/workday"
)

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

type Service struct {
	repo   *state.Repo
	ledger *ledger.Service
	clock  Clock
	id     IDGen
}

func NewService(repo *state.Repo, led *ledger.Service) *Service {
	return &Service{
		repo:   repo,
		ledger: led,
		clock:  realClock{},
		id:     ulidGen{},
	}
}

func (s *Service) Create(ctx context.Context, req CreateEmployeeRequest) (*EmployeeResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, NewInvalidArgumentError("name is required")
	}

	id, err := s.id.New()
	if err != nil {
		return nil, NewInternalError("id generation failed: " + err.Error())
	}

	emp := &state.Employee{
		ID:        id,
		Name:      name,
		Color:     strings.TrimSpace(req.Color),
		Active:    true,
		Schedule:  req.Schedule,
		CreatedAt: s.clock.Now().UnixMilli(),
	}
	state.SanitizeEmployee(emp)

	err = s.repo.Mutate(ctx, func(st *state.State) error {
		st.Employees = append(st.Employees, emp)
		return nil
	})
	if err != nil {
		return nil, err
	}
	res := toResponse(emp)
	return &res, nil
}

func (s *Service) Update(ctx context.Context, id string, req UpdateEmployeeRequest) (*EmployeeResponse, error) {
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, NewInvalidArgumentError("name must not be empty")
	}

	var res EmployeeResponse
	err := s.repo.Mutate(ctx, func(st *state.State) error {
		emp := st.FindEmployee(id)
		if emp == nil {
			return NewNotFoundError("employee not found: " + id)
		}
		if req.Name != nil {
			emp.Name = strings.TrimSpace(*req.Name)
		}
		if req.Color != nil {
			emp.Color = strings.TrimSpace(*req.Color)
		}
		if req.Active != nil {
			emp.Active = *req.Active
		}
		if req.Schedule != nil {
			emp.Schedule = req.Schedule
		}
		state.SanitizeEmployee(emp)
		res = toResponse(emp)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Delete は従業員と、その従業員の全イベントをまとめて消す（カスケード）。
// 台帳はグローバルチェーンなので、削除後は VerifyChain が不一致を報告しうる。
// それは仕様通りの挙動で、チェーンは「静かな改変」を目立たせるためにある。
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Mutate(ctx, func(st *state.State) error {
		emp := st.FindEmployee(id)
		if emp == nil {
			return NewNotFoundError("employee not found: " + id)
		}

		kept := st.Events[:0]
		for _, ev := range st.Events {
			if ev.EmpID != id {
				kept = append(kept, ev)
			}
		}
		st.Events = kept

		emps := st.Employees[:0]
		for _, e := range st.Employees {
			if e.ID != id {
				emps = append(emps, e)
			}
		}
		st.Employees = emps
		return nil
	})
}

// List: activeのみ（includeAllで非アクティブも）。名前はスペイン語照合順。
func (s *Service) List(includeAll bool) []EmployeeResponse {
	var out []EmployeeResponse
	s.repo.View(func(st *state.State) {
		for _, e := range st.Employees {
			if !includeAll && !e.Active {
				continue
			}
			out = append(out, toResponse(e))
		}
	})
	sortByName(out, func(r EmployeeResponse) string { return r.Name })
	return out
}

// Panel: 当日パネル。今日シフトが入っている従業員を先に、残りを名前順で。
func (s *Service) Panel(nowMillis int64) (*PanelResponse, error) {
	now := time.UnixMilli(nowMillis)
	today := workday.DayKey(nowMillis)
	wd := now.Weekday()

	var rows []PanelRow
	integrityOK := true
	s.repo.View(func(st *state.State) {
		integrityOK = st.IntegrityOK
		for _, e := range st.Employees {
			if !e.Active {
				continue
			}
			slot := e.Schedule.SlotFor(wd)
			rows = append(rows, PanelRow{
				Employee:     toResponse(e),
				OnShiftToday: slot.Enabled,
				ShiftLabel:   shiftLabel(slot),
			})
		}
	})

	onShift := 0
	for i := range rows {
		comp, err := s.ledger.ComputeDay(rows[i].Employee.ID, today, nowMillis)
		if err != nil {
			return nil, err
		}
		rows[i].Day = comp
		rows[i].InTime = clockOrDash(comp.FirstIn)
		rows[i].OutTime = clockOrDash(comp.LastOut)
		rows[i].BreakHM = workday.FormatHM(workday.MinutesFromMs(comp.BreakMs))
		rows[i].WorkedHM = workday.FormatHM(workday.MinutesFromMs(comp.WorkedMs))
		if rows[i].OnShiftToday {
			onShift++
		}
	}

	// シフトあり→なしの順、同格は名前のスペイン語照合順
	c := collate.New(language.Spanish)
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].OnShiftToday != rows[j].OnShiftToday {
			return rows[i].OnShiftToday
		}
		return c.CompareString(rows[i].Employee.Name, rows[j].Employee.Name) < 0
	})

	return &PanelResponse{
		Date:        today,
		OnShift:     onShift,
		Total:       len(rows),
		IntegrityOK: integrityOK,
		Rows:        rows,
	}, nil
}

// ---------- helpers ----------

func shiftLabel(slot state.DaySlot) string {
	if !slot.Enabled {
		return "Fuera de turno"
	}
	return slot.Start + "–" + slot.End + " · pausa " + strconv.Itoa(slot.BreakMin) + "m"
}

func clockOrDash(ts *int64) string {
	if ts == nil {
		return "—"
	}
	return workday.FormatClock(*ts)
}

func sortByName[T any](rows []T, name func(T) string) {
	c := collate.New(language.Spanish)
	sort.SliceStable(rows, func(i, j int) bool {
		return c.CompareString(name(rows[i]), name(rows[j])) < 0
	})
}
