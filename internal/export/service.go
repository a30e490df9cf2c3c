// CSV/XLSXエクスポート。列順はスプレッドシート側の取り込み互換のために固定。
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"clockin-backend/internal/ledger"
	"clockin-backend/internal/state"
	"clockin-backend/internal/workday"
)

var summaryHeader = []string{"fecha", "empleado", "horario", "entrada", "salida", "pausa_min", "trabajado_min", "estado"}
var eventsHeader = []string{"ts_iso", "fecha", "hora", "empleado", "tipo", "nota", "lat", "lng", "hash", "prevHash"}

type Service struct {
	repo   *state.Repo
	ledger *ledger.Service
}

func NewService(repo *state.Repo, led *ledger.Service) *Service {
	return &Service{repo: repo, ledger: led}
}

// summaryRow: 当日サマリ1行分（CSVとXLSXで共用）
type summaryRow struct {
	Date     string
	Name     string
	Shift    string
	In       string
	Out      string
	BreakMin int64
	WorkMin  int64
	Status   string
}

func (s *Service) summaryRows(nowMillis int64) ([]summaryRow, error) {
	today := workday.DayKey(nowMillis)
	wd := time.UnixMilli(nowMillis).Weekday()

	type empRef struct {
		id   string
		name string
		slot state.DaySlot
	}
	var emps []empRef
	s.repo.View(func(st *state.State) {
		for _, e := range st.Employees {
			if !e.Active {
				continue
			}
			emps = append(emps, empRef{id: e.ID, name: e.Name, slot: e.Schedule.SlotFor(wd)})
		}
	})

	c := collate.New(language.Spanish)
	sort.SliceStable(emps, func(i, j int) bool { return c.CompareString(emps[i].name, emps[j].name) < 0 })

	rows := make([]summaryRow, 0, len(emps))
	for _, e := range emps {
		comp, err := s.ledger.ComputeDay(e.id, today, nowMillis)
		if err != nil {
			return nil, err
		}
		shift := ""
		if e.slot.Enabled {
			shift = fmt.Sprintf("%s-%s pausa %dm", e.slot.Start, e.slot.End, e.slot.BreakMin)
		}
		rows = append(rows, summaryRow{
			Date:     today,
			Name:     e.name,
			Shift:    shift,
			In:       clockOrEmpty(comp.FirstIn),
			Out:      clockOrEmpty(comp.LastOut),
			BreakMin: workday.MinutesFromMs(comp.BreakMs),
			WorkMin:  workday.MinutesFromMs(comp.WorkedMs),
			Status:   comp.Status,
		})
	}
	return rows, nil
}

// SummaryCSV: 当日サマリ（従業員×1行）
func (s *Service) SummaryCSV(nowMillis int64) ([]byte, error) {
	rows, err := s.summaryRows(nowMillis)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(summaryHeader); err != nil {
		return nil, err
	}
	for _, r := range rows {
		rec := []string{
			r.Date,
			r.Name,
			r.Shift,
			r.In,
			r.Out,
			strconv.FormatInt(r.BreakMin, 10),
			strconv.FormatInt(r.WorkMin, 10),
			r.Status,
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// EventsCSV: 生履歴（イベント×1行、ts昇順）
func (s *Service) EventsCSV(q ledger.HistoryQuery) ([]byte, error) {
	rows, err := s.ledger.History(q)
	if err != nil {
		return nil, err
	}
	// History は新しい順で返すので、エクスポートでは古い順に直す
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	names := s.employeeNames()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(eventsHeader); err != nil {
		return nil, err
	}
	for _, ev := range rows {
		name := names[ev.EmpID]
		if name == "" {
			name = ev.EmpID
		}
		rec := []string{
			time.UnixMilli(ev.TS).UTC().Format(time.RFC3339),
			ev.Date,
			ev.Time,
			name,
			ev.TypeLabel,
			ev.Note,
			coordOrEmpty(ev.Lat),
			coordOrEmpty(ev.Lng),
			ev.Hash,
			ev.PrevHash,
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// SummaryXLSX: サマリをワークブックで
func (s *Service) SummaryXLSX(nowMillis int64) ([]byte, error) {
	rows, err := s.summaryRows(nowMillis)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Resumen"
	f.SetSheetName("Sheet1", sheet)

	header := make([]any, len(summaryHeader))
	for i, h := range summaryHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{r.Date, r.Name, r.Shift, r.In, r.Out, r.BreakMin, r.WorkMin, r.Status}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ---------- helpers ----------

func (s *Service) employeeNames() map[string]string {
	names := make(map[string]string)
	s.repo.View(func(st *state.State) {
		for _, e := range st.Employees {
			names[e.ID] = e.Name
		}
	})
	return names
}

func clockOrEmpty(ts *int64) string {
	if ts == nil {
		return ""
	}
	return workday.FormatClock(*ts)
}

func coordOrEmpty(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
