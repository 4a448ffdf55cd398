package source

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/jwulff/sensorlog/internal/sensor"
)

func TestSimulatedEmitsSubscribedKinds(t *testing.T) {
	mock := clock.NewMock()
	sim := NewSimulated(mock, nil)

	var got collector
	kinds := []sensor.Kind{sensor.Accelerometer, sensor.Pressure}
	if err := sim.Subscribe(context.Background(), kinds, sensor.RateGame, got.handle); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(got.snapshot()) < 4 && time.Now().Before(deadline) {
		mock.Add(sensor.RateGame.Interval())
	}
	if err := sim.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}

	evs := got.snapshot()
	if len(evs) < 4 {
		t.Fatalf("got %d events, want at least 4", len(evs))
	}
	for _, ev := range evs {
		if ev.Kind != sensor.Accelerometer && ev.Kind != sensor.Pressure {
			t.Errorf("unexpected kind %v", ev.Kind)
		}
		if len(ev.Values) != ev.Kind.Components() {
			t.Errorf("%v: %d values, want %d", ev.Kind, len(ev.Values), ev.Kind.Components())
		}
	}
	if evs[0].Kind == sensor.Accelerometer && (evs[0].Values[2] < 9 || evs[0].Values[2] > 10.5) {
		t.Errorf("accelerometer z = %v, want about 9.81", evs[0].Values[2])
	}

	n := len(got.snapshot())
	mock.Add(time.Second)
	if after := len(got.snapshot()); after != n {
		t.Errorf("received %d events after Unsubscribe", after-n)
	}
}

func TestSimulatedWaveShapes(t *testing.T) {
	sim := NewSimulated(nil, nil)
	for _, k := range sensor.All {
		if v := sim.wave(k, 10); len(v) != k.Components() {
			t.Errorf("wave(%v) has %d values, want %d", k, len(v), k.Components())
		}
	}
	if v := sim.wave(sensor.Proximity, 0); v[0] != 5 {
		t.Errorf("proximity at step 0 = %v, want 5 (far)", v[0])
	}
	if v := sim.wave(sensor.Proximity, 250); v[0] != 0 {
		t.Errorf("proximity at step 250 = %v, want 0 (near)", v[0])
	}
}

func TestSimulatedSubscribeTwice(t *testing.T) {
	sim := NewSimulated(clock.NewMock(), nil)
	defer sim.Unsubscribe()

	noop := func(sensor.Event) {}
	if err := sim.Subscribe(context.Background(), []sensor.Kind{sensor.Light}, sensor.RateUI, noop); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := sim.Subscribe(context.Background(), []sensor.Kind{sensor.Light}, sensor.RateUI, noop); err == nil {
		t.Error("second Subscribe succeeded")
	}
}

func TestSimulatedStopsOnContextCancel(t *testing.T) {
	mock := clock.NewMock()
	sim := NewSimulated(mock, nil)
	ctx, cancel := context.WithCancel(context.Background())

	var got collector
	if err := sim.Subscribe(ctx, []sensor.Kind{sensor.Light}, sensor.RateFastest, got.handle); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	cancel()
	if err := sim.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
}
