package source

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/jwulff/sensorlog/internal/sensor"
)

// FastestInterval is the tick used for sensor.RateFastest.
const FastestInterval = 5 * time.Millisecond

// Simulated produces synthetic waveforms on a clock ticker, one event per
// subscribed kind per tick.
type Simulated struct {
	clk clock.Clock
	log *zap.Logger
	rng *rand.Rand

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSimulated returns a generator driven by clk.
func NewSimulated(clk clock.Clock, log *zap.Logger) *Simulated {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Simulated{clk: clk, log: log, rng: rand.New(rand.NewPCG(1, 2))}
}

// Subscribe starts the generator goroutine.
func (s *Simulated) Subscribe(ctx context.Context, kinds []sensor.Kind, rate sensor.Rate, handle func(sensor.Event)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("simulator already subscribed")
	}

	interval := rate.Interval()
	if interval <= 0 {
		interval = FastestInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	ticker := s.clk.Ticker(interval)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, ticker, append([]sensor.Kind(nil), kinds...), handle, s.done)

	s.log.Info("simulator started", zap.Stringers("kinds", kinds), zap.Duration("interval", interval))
	return nil
}

func (s *Simulated) run(ctx context.Context, ticker *clock.Ticker, kinds []sensor.Kind, handle func(sensor.Event), done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	var step float64
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, k := range kinds {
				handle(sensor.Event{Kind: k, Values: s.wave(k, step), Timestamp: now})
			}
			step++
		}
	}
}

// Unsubscribe stops the generator and waits for it to exit.
func (s *Simulated) Unsubscribe() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	s.log.Info("simulator stopped")
	return nil
}

func (s *Simulated) noise(scale float64) float64 {
	return (s.rng.Float64() - 0.5) * scale
}

// wave returns plausible readings for k at tick step.
func (s *Simulated) wave(k sensor.Kind, step float64) []float64 {
	t := step / 50
	switch k {
	case sensor.Accelerometer:
		return []float64{0.2*math.Sin(t) + s.noise(0.01), 0.1*math.Cos(t) + s.noise(0.01), 9.81 + s.noise(0.04)}
	case sensor.Gyroscope:
		return []float64{0.01 * math.Sin(2*t), 0.01 * math.Cos(2*t), 0.0005 + s.noise(0.0004)}
	case sensor.MagneticField:
		return []float64{25 + s.noise(1), -10 + s.noise(1), 45 + s.noise(1)}
	case sensor.Temperature:
		return []float64{21.5 + s.noise(0.2)}
	case sensor.Light:
		return []float64{320 + 40*math.Sin(t/4)}
	case sensor.Proximity:
		if int(step/200)%2 == 0 {
			return []float64{5}
		}
		return []float64{0}
	case sensor.Pressure:
		return []float64{1013.25 + 0.05*math.Sin(t/8) + s.noise(0.01)}
	}
	return nil
}
