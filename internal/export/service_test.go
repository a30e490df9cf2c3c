package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"
	"testing"
	"time"

	"clockin-backend/internal/ledger"
	"clockin-backend/internal/platform/blob"
	"clockin-backend/internal/platform/hashing"
	"clockin-backend/internal/state"
	"clockin-backend/internal/workday"
)

func newTestService(t *testing.T) (*Service, *state.Repo, *ledger.Service) {
	t.Helper()
	repo := state.NewRepo(blob.NewMemStore())
	if err := repo.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	led := ledger.NewService(repo, hashing.SHA256Digest{})
	return NewService(repo, led), repo, led
}

func addEmployee(t *testing.T, repo *state.Repo, id, name string) {
	t.Helper()
	err := repo.Mutate(context.Background(), func(st *state.State) error {
		st.Employees = append(st.Employees, &state.Employee{
			ID: id, Name: name, Active: true, Schedule: state.DefaultSchedule(),
		})
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func parseCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	recs, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return recs
}

func TestSummaryCSV(t *testing.T) {
	svc, repo, led := newTestService(t)
	ctx := context.Background()

	addEmployee(t, repo, "e1", "Marta")
	addEmployee(t, repo, "e2", "Abel")

	if _, err := led.Punch(ctx, ledger.PunchRequest{EmpID: "e1", Type: "IN"}); err != nil {
		t.Fatal(err)
	}

	nowMillis := led.Now().UnixMilli()
	data, err := svc.SummaryCSV(nowMillis)
	if err != nil {
		t.Fatal(err)
	}
	recs := parseCSV(t, data)

	if len(recs) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(recs))
	}
	wantHeader := []string{"fecha", "empleado", "horario", "entrada", "salida", "pausa_min", "trabajado_min", "estado"}
	for i, h := range wantHeader {
		if recs[0][i] != h {
			t.Errorf("header[%d] = %q, want %q", i, recs[0][i], h)
		}
	}

	// 名前順: Abel が先
	if recs[1][1] != "Abel" || recs[2][1] != "Marta" {
		t.Errorf("row order = %s, %s", recs[1][1], recs[2][1])
	}

	today := workday.DayKey(nowMillis)
	abel, marta := recs[1], recs[2]
	if abel[0] != today {
		t.Errorf("fecha = %q, want %q", abel[0], today)
	}
	if abel[3] != "" || abel[7] != "Sin fichar" {
		t.Errorf("no-punch row = entrada %q estado %q", abel[3], abel[7])
	}
	if marta[3] == "" || marta[7] != "Trabajando" {
		t.Errorf("punched row = entrada %q estado %q", marta[3], marta[7])
	}
	if _, err := strconv.Atoi(marta[6]); err != nil {
		t.Errorf("trabajado_min = %q, not numeric", marta[6])
	}
}

func TestEventsCSV(t *testing.T) {
	svc, repo, led := newTestService(t)
	ctx := context.Background()

	addEmployee(t, repo, "e1", "Marta")
	for _, typ := range []string{"IN", "BREAK_START", "BREAK_END", "OUT"} {
		if _, err := led.Punch(ctx, ledger.PunchRequest{EmpID: "e1", Type: typ}); err != nil {
			t.Fatal(err)
		}
	}

	data, err := svc.EventsCSV(ledger.HistoryQuery{EmpID: "e1"})
	if err != nil {
		t.Fatal(err)
	}
	recs := parseCSV(t, data)

	if len(recs) != 5 {
		t.Fatalf("rows = %d, want header + 4", len(recs))
	}
	wantHeader := []string{"ts_iso", "fecha", "hora", "empleado", "tipo", "nota", "lat", "lng", "hash", "prevHash"}
	for i, h := range wantHeader {
		if recs[0][i] != h {
			t.Errorf("header[%d] = %q, want %q", i, recs[0][i], h)
		}
	}

	// 古い順、種別はスペイン語ラベル
	wantTipo := []string{"Entrada", "Pausa (inicio)", "Pausa (fin)", "Salida"}
	for i, w := range wantTipo {
		if recs[i+1][4] != w {
			t.Errorf("tipo[%d] = %q, want %q", i, recs[i+1][4], w)
		}
	}
	if recs[1][3] != "Marta" {
		t.Errorf("empleado = %q", recs[1][3])
	}
	if _, err := time.Parse(time.RFC3339, recs[1][0]); err != nil {
		t.Errorf("ts_iso = %q, not RFC3339: %v", recs[1][0], err)
	}

	// チェーン列: 先頭はGENESIS、以降は前行のhashに繋がる
	if recs[1][9] != "GENESIS" {
		t.Errorf("first prevHash = %q", recs[1][9])
	}
	for i := 2; i <= 4; i++ {
		if recs[i][9] != recs[i-1][8] {
			t.Errorf("row %d prevHash = %q, want %q", i, recs[i][9], recs[i-1][8])
		}
	}
}

func TestSummaryXLSX(t *testing.T) {
	svc, repo, _ := newTestService(t)
	addEmployee(t, repo, "e1", "Marta")

	data, err := svc.SummaryXLSX(time.Now().UnixMilli())
	if err != nil {
		t.Fatal(err)
	}
	// XLSXはZIPコンテナ
	if len(data) < 4 || data[0] != 'P' || data[1] != 'K' {
		t.Errorf("output is not a zip archive (%d bytes)", len(data))
	}
}
