package state

import (
	"testing"
)

func TestNormalize_DropsMalformedRecords(t *testing.T) {
	doc := []byte(`{
		"v": 2,
		"settings": {"geoEnabled": true},
		"employees": [
			{"id": "e1", "name": "Ana", "active": true},
			"not an object",
			{"name": "sin id"},
			{"id": "e2", "name": "Dani", "active": false}
		],
		"events": [
			{"id": "ev1", "empId": "e1", "type": "IN", "ts": 1000, "prevHash": "GENESIS", "hash": "h1"},
			{"id": "ev2", "empId": "e1", "type": "NAP", "ts": 2000},
			{"id": "ev3", "empId": "", "type": "OUT", "ts": 3000},
			{"id": "ev4", "empId": "e1", "type": "OUT", "ts": 0},
			42,
			{"id": "ev5", "empId": "e1", "type": "OUT", "ts": 4000, "prevHash": "h1", "hash": "h2"}
		]
	}`)

	st, err := Normalize(doc)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Settings.GeoEnabled {
		t.Error("geoEnabled lost")
	}
	if len(st.Employees) != 2 {
		t.Fatalf("employees = %d, want 2", len(st.Employees))
	}
	if len(st.Events) != 2 {
		t.Fatalf("events = %d, want 2 (malformed dropped)", len(st.Events))
	}
	if st.Events[0].ID != "ev1" || st.Events[1].ID != "ev5" {
		t.Errorf("kept events = %s, %s", st.Events[0].ID, st.Events[1].ID)
	}
}

func TestNormalize_WholeDocumentUnreadable(t *testing.T) {
	if _, err := Normalize([]byte(`{"v": `)); err == nil {
		t.Error("truncated json accepted")
	}
	if _, err := Normalize([]byte(`[]`)); err == nil {
		t.Error("non-object document accepted")
	}
}

func TestNormalize_BackfillsSchedule(t *testing.T) {
	doc := []byte(`{
		"employees": [{
			"id": "e1",
			"schedule": {
				"mon": {"enabled": true, "start": "", "end": "", "breakMin": 9999},
				"tue": {"enabled": true, "start": "08:00", "end": "14:00", "breakMin": -5},
				"marte": {"enabled": true}
			}
		}]
	}`)

	st, err := Normalize(doc)
	if err != nil {
		t.Fatal(err)
	}
	e := st.Employees[0]
	if e.Name != "Empleado" {
		t.Errorf("name = %q, want default", e.Name)
	}
	if e.Color != "#7c5cff" {
		t.Errorf("color = %q, want default", e.Color)
	}

	mon := e.Schedule["mon"]
	if mon.Start != "09:00" || mon.End != "17:00" {
		t.Errorf("mon times = %s-%s, want defaults", mon.Start, mon.End)
	}
	if mon.BreakMin != 240 {
		t.Errorf("mon breakMin = %d, want clamped 240", mon.BreakMin)
	}
	if got := e.Schedule["tue"].BreakMin; got != 0 {
		t.Errorf("tue breakMin = %d, want clamped 0", got)
	}
	// 欠けた曜日は既定値、未知キーは落ちる
	if _, ok := e.Schedule["sun"]; !ok {
		t.Error("missing weekday not backfilled")
	}
	if _, ok := e.Schedule["marte"]; ok {
		t.Error("unknown weekday key kept")
	}
	if len(e.Schedule) != 7 {
		t.Errorf("schedule keys = %d, want 7", len(e.Schedule))
	}
}

func TestNormalize_LegacyFlatPin(t *testing.T) {
	doc := []byte(`{
		"v": 1,
		"settings": {"pinSaltB64": "c2FsdA==", "pinHashB64": "aGFzaA=="}
	}`)

	st, err := Normalize(doc)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Settings.HasPin() {
		t.Fatal("legacy pin lost")
	}
	p := st.Settings.Pin
	if p.SaltB64 != "c2FsdA==" || p.HashB64 != "aGFzaA==" {
		t.Errorf("pin record = %+v", p)
	}
	if p.Iterations != LegacyPinIterations {
		t.Errorf("iterations = %d, want %d", p.Iterations, LegacyPinIterations)
	}
}

func TestNormalize_PinRecordMissingIterations(t *testing.T) {
	doc := []byte(`{
		"settings": {"pin": {"saltB64": "c2FsdA==", "hashB64": "aGFzaA=="}}
	}`)

	st, err := Normalize(doc)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Settings.HasPin() || st.Settings.Pin.Iterations != LegacyPinIterations {
		t.Errorf("pin = %+v, want backfilled iterations", st.Settings.Pin)
	}
}

func TestNormalize_EmptyDocumentIsDefault(t *testing.T) {
	st, err := Normalize([]byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if st.V != SchemaVersion {
		t.Errorf("v = %d, want %d", st.V, SchemaVersion)
	}
	if !st.IntegrityOK {
		t.Error("integrityOk default should be true")
	}
	if len(st.Employees) != 0 || len(st.Events) != 0 {
		t.Error("default state not empty")
	}
}
