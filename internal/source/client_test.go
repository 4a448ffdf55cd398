package source

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
)

// startMockPhone creates a Unix socket that accepts one connection, reads
// one command, and writes back a canned response.
func startMockPhone(t *testing.T, response Response) (string, func()) {
	t.Helper()

	dir := t.TempDir()
	sockPath := filepath.Join(dir, "phone.sock")

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		// Read one line (the command)
		r := bufio.NewReader(conn)
		if _, err := r.ReadBytes('\n'); err != nil {
			return
		}

		data, _ := json.Marshal(response)
		conn.Write(append(data, '\n'))
	}()

	return sockPath, func() {
		ln.Close()
		os.Remove(sockPath)
	}
}

func TestClientSendCommand(t *testing.T) {
	sockPath, cleanup := startMockPhone(t, Response{OK: true, Device: "Pixel 8"})
	defer cleanup()

	client, err := Connect(sockPath)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	got, err := client.SendCommand(Command{Cmd: CmdStatus})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !got.OK {
		t.Error("ok = false, want true")
	}
	if got.Device != "Pixel 8" {
		t.Errorf("device = %q, want %q", got.Device, "Pixel 8")
	}
}

func TestClientRejectedCommand(t *testing.T) {
	sockPath, cleanup := startMockPhone(t, Response{OK: false, Error: "busy"})
	defer cleanup()

	client, err := Connect(sockPath)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	resp, err := client.SendCommand(Command{Cmd: CmdSubscribe})
	if err == nil {
		t.Fatal("expected error for ok=false response")
	}
	if resp.Error != "busy" {
		t.Errorf("error = %q, want %q", resp.Error, "busy")
	}
}

func TestClientConnectFailure(t *testing.T) {
	_, err := Connect("/nonexistent/path/phone.sock")
	if err == nil {
		t.Error("expected error connecting to nonexistent socket")
	}
}

func TestClientReadEvents(t *testing.T) {
	events := []Event{
		{Event: EventSample, Sensor: "light", Values: []float64{320}, Timestamp: 1000},
		{Event: EventError, Message: "sensor unavailable"},
	}
	phone := startMockStream(t, events)

	client, err := Connect(phone.addr)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	if _, err := client.SendCommand(Command{Cmd: CmdSubscribe, Sensors: []string{"light"}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ev1, err := client.ReadEvent()
	if err != nil {
		t.Fatalf("read event 1: %v", err)
	}
	if ev1.Event != EventSample || ev1.Sensor != "light" || len(ev1.Values) != 1 || ev1.Values[0] != 320 {
		t.Errorf("event1 = %+v", ev1)
	}

	ev2, err := client.ReadEvent()
	if err != nil {
		t.Fatalf("read event 2: %v", err)
	}
	if ev2.Event != EventError || ev2.Message != "sensor unavailable" {
		t.Errorf("event2 = %+v", ev2)
	}
}
