package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jwulff/sensorlog/internal/sensor"
)

// ErrMonitorRunning is returned by Start on a monitor that is already running.
var ErrMonitorRunning = errors.New("live monitor already running")

// Reading is the most recent sample of one kind.
type Reading struct {
	Kind   sensor.Kind
	Values []float64
	At     time.Time
	// Count is the number of samples seen since Start.
	Count int
}

// Monitor shows live readings: it subscribes a source and keeps only the
// latest sample of each kind. Nothing is buffered.
type Monitor struct {
	src Source
	log *zap.Logger

	// startMu is held across Subscribe and Unsubscribe.
	startMu sync.Mutex

	mu      sync.Mutex
	running bool
	kinds   []sensor.Kind
	latest  map[sensor.Kind]Reading
}

// NewMonitor returns an idle monitor for src.
func NewMonitor(src Source, log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{src: src, log: log}
}

// Start subscribes kinds at rate. No kinds means every known kind. A
// cancelled ctx fails before the source is touched.
func (m *Monitor) Start(ctx context.Context, kinds []sensor.Kind, rate sensor.Rate) error {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(kinds) == 0 {
		kinds = sensor.All
	}
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrMonitorRunning
	}
	m.running = true
	m.kinds = append([]sensor.Kind(nil), kinds...)
	m.latest = make(map[sensor.Kind]Reading, len(kinds))
	m.mu.Unlock()

	if err := m.src.Subscribe(ctx, kinds, rate, m.handle); err != nil {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		return fmt.Errorf("subscribe sensors: %w", err)
	}
	m.log.Info("live monitor started", zap.Stringers("kinds", kinds), zap.Stringer("rate", rate))
	return nil
}

func (m *Monitor) handle(ev sensor.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running || !m.watching(ev.Kind) {
		return
	}
	r := m.latest[ev.Kind]
	r.Kind = ev.Kind
	r.Values = append(r.Values[:0], ev.Values...)
	r.At = ev.Timestamp
	r.Count++
	m.latest[ev.Kind] = r
}

func (m *Monitor) watching(k sensor.Kind) bool {
	for _, w := range m.kinds {
		if w == k {
			return true
		}
	}
	return false
}

// Stop unsubscribes the source. Readings stay available until the next
// Start. Stopping an idle monitor is a no-op.
func (m *Monitor) Stop() error {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	if !running {
		return nil
	}

	err := m.src.Unsubscribe()
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("unsubscribe sensors: %w", err)
	}
	m.log.Info("live monitor stopped")
	return nil
}

// Running reports whether the source is subscribed.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Kinds returns the kinds passed to the last Start.
func (m *Monitor) Kinds() []sensor.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sensor.Kind(nil), m.kinds...)
}

// Readings returns a copy of the latest sample of every kind that has
// reported, in Start order.
func (m *Monitor) Readings() []Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Reading, 0, len(m.latest))
	for _, k := range m.kinds {
		r, ok := m.latest[k]
		if !ok {
			continue
		}
		r.Values = append([]float64(nil), r.Values...)
		out = append(out, r)
	}
	return out
}
