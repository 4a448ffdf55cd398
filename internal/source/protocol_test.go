package source

import (
	"encoding/json"
	"testing"
)

func TestCommandMarshalSubscribe(t *testing.T) {
	cmd := Command{
		Cmd:     CmdSubscribe,
		Sensors: []string{"accelerometer", "light"},
		Rate:    "game",
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"cmd":"subscribe","sensors":["accelerometer","light"],"rate":"game"}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}
}

func TestCommandOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(Command{Cmd: CmdUnsubscribe})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	if _, ok := raw["sensors"]; ok {
		t.Error("unsubscribe command should omit sensors")
	}
	if _, ok := raw["rate"]; ok {
		t.Error("unsubscribe command should omit rate")
	}
}

func TestResponseSuccess(t *testing.T) {
	j := `{"ok":true,"device":"Pixel 8","sensors":["accelerometer","gyroscope"]}`

	var resp Response
	if err := json.Unmarshal([]byte(j), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.OK {
		t.Error("ok = false, want true")
	}
	if resp.Device != "Pixel 8" {
		t.Errorf("device = %q, want %q", resp.Device, "Pixel 8")
	}
	if len(resp.Sensors) != 2 {
		t.Errorf("sensors len = %d, want 2", len(resp.Sensors))
	}
}

func TestResponseError(t *testing.T) {
	j := `{"ok":false,"error":"no pressure sensor"}`

	var resp Response
	if err := json.Unmarshal([]byte(j), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.OK {
		t.Error("ok = true, want false")
	}
	if resp.Error != "no pressure sensor" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestEventSample(t *testing.T) {
	j := `{"event":"sample","sensor":"magnetic_field","values":[25.5,-10.25,45],"timestamp":123456789012}`

	var ev Event
	if err := json.Unmarshal([]byte(j), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Event != EventSample || ev.Sensor != "magnetic_field" {
		t.Errorf("event = %+v", ev)
	}
	if len(ev.Values) != 3 || ev.Values[1] != -10.25 {
		t.Errorf("values = %v", ev.Values)
	}
	if ev.Timestamp != 123456789012 {
		t.Errorf("timestamp = %d", ev.Timestamp)
	}
}

func TestEventError(t *testing.T) {
	j := `{"event":"error","message":"sensor unavailable"}`

	var ev Event
	if err := json.Unmarshal([]byte(j), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Event != EventError || ev.Message != "sensor unavailable" {
		t.Errorf("event = %+v", ev)
	}
}

func TestNetwork(t *testing.T) {
	cases := map[string]string{
		"192.168.1.20:8765":   "tcp",
		"localhost:8765":      "tcp",
		"/tmp/sensorlog.sock": "unix",
		"./phone.sock":        "unix",
	}
	for addr, want := range cases {
		if got := Network(addr); got != want {
			t.Errorf("Network(%q) = %q, want %q", addr, got, want)
		}
	}
}
