package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/jwulff/sensorlog/internal/sensor"
)

// DefaultCountdown is the pre-roll before samples are kept.
const DefaultCountdown = 5 * time.Second

// ErrAlreadyArmed is returned when Arm is called on a session that has left Idle.
var ErrAlreadyArmed = errors.New("capture session already armed")

// Source delivers hardware events. Handle may be called from any
// goroutine, but never after Unsubscribe has returned.
type Source interface {
	Subscribe(ctx context.Context, kinds []sensor.Kind, rate sensor.Rate, handle func(sensor.Event)) error
	Unsubscribe() error
}

// State is the lifecycle of a capture session.
type State int

const (
	Idle State = iota
	Armed
	Recording
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Recording:
		return "recording"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Options configures a Session. Zero values pick the defaults.
type Options struct {
	Countdown time.Duration
	Rate      sensor.Rate
	Clock     clock.Clock
	Logger    *zap.Logger
}

// Session drives one recording: Idle, then Armed for the countdown, then
// Recording until Stop or Interrupt.
type Session struct {
	src       Source
	clk       clock.Clock
	log       *zap.Logger
	countdown time.Duration
	rate      sensor.Rate

	// armMu is held across Subscribe. halt takes it too, so Unsubscribe
	// always follows a completed Subscribe.
	armMu sync.Mutex

	mu      sync.Mutex
	state   State
	buf     *Buffer
	armedAt time.Time
	start   time.Time
	stopped time.Time
	timer   *clock.Timer
	dropped int
}

// NewSession allocates the buffer for enabled. It fails with a
// configuration error when nothing is selected.
func NewSession(src Source, enabled map[sensor.Kind]sensor.Selection, opts Options) (*Session, error) {
	buf, err := Begin(enabled)
	if err != nil {
		return nil, err
	}
	if opts.Countdown <= 0 {
		opts.Countdown = DefaultCountdown
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Session{
		src:       src,
		clk:       opts.Clock,
		log:       opts.Logger,
		countdown: opts.Countdown,
		rate:      opts.Rate,
		buf:       buf,
	}, nil
}

// Arm subscribes the source for the buffered kinds and starts the
// countdown. Events delivered before the countdown ends are discarded.
func (s *Session) Arm(ctx context.Context) error {
	s.armMu.Lock()
	defer s.armMu.Unlock()

	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return ErrAlreadyArmed
	}
	s.state = Armed
	s.armedAt = s.clk.Now()
	s.mu.Unlock()

	kinds := s.buf.Kinds()
	if err := s.src.Subscribe(ctx, kinds, s.rate, s.handle); err != nil {
		s.mu.Lock()
		s.state = Stopped
		s.stopped = s.clk.Now()
		s.buf.Finalize()
		s.mu.Unlock()
		return fmt.Errorf("subscribe sensors: %w", err)
	}

	s.mu.Lock()
	if s.state == Armed {
		s.timer = s.clk.AfterFunc(s.countdown, s.begin)
	}
	s.mu.Unlock()

	s.log.Info("capture armed",
		zap.Stringers("kinds", kinds),
		zap.Stringer("rate", s.rate),
		zap.Duration("countdown", s.countdown))
	return nil
}

func (s *Session) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Armed {
		return
	}
	s.state = Recording
	s.start = s.clk.Now()
	s.log.Info("capture recording")
}

func (s *Session) handle(ev sensor.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Recording {
		return
	}
	d := ev.Timestamp.Sub(s.start)
	if d < 0 || !s.buf.Ingest(ev.Kind, ev.Values, float64(d.Nanoseconds())/1e6) {
		s.dropped++
	}
}

// Stop unsubscribes the source, then finalizes and returns the buffer.
// Calling it again returns the same buffer.
func (s *Session) Stop() (*Buffer, error) {
	return s.halt("stop")
}

// Interrupt is Stop for when the owner loses focus. The buffer is kept so
// the caller may still save it.
func (s *Session) Interrupt() (*Buffer, error) {
	return s.halt("interrupt")
}

func (s *Session) halt(reason string) (*Buffer, error) {
	s.armMu.Lock()
	defer s.armMu.Unlock()

	s.mu.Lock()
	subscribed := s.state == Armed || s.state == Recording
	s.mu.Unlock()

	// The source must be quiet before the buffer is read.
	var err error
	if subscribed {
		if uerr := s.src.Unsubscribe(); uerr != nil {
			err = fmt.Errorf("unsubscribe sensors: %w", uerr)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Stopped {
		return s.buf, err
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.state = Stopped
	s.stopped = s.clk.Now()
	s.buf.Finalize()

	s.log.Info("capture stopped",
		zap.String("reason", reason),
		zap.Duration("elapsed", s.elapsedLocked()),
		zap.Int("dropped", s.dropped),
		zap.Error(err))
	return s.buf, err
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Remaining returns the countdown time left while Armed.
func (s *Session) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Armed {
		return 0
	}
	left := s.countdown - s.clk.Since(s.armedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Elapsed returns the recording time so far, frozen once stopped.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked()
}

func (s *Session) elapsedLocked() time.Duration {
	if s.start.IsZero() {
		return 0
	}
	if s.state == Stopped {
		return s.stopped.Sub(s.start)
	}
	return s.clk.Since(s.start)
}

// Kinds returns the kinds this session captures.
func (s *Session) Kinds() []sensor.Kind {
	return s.buf.Kinds()
}

// Selection returns the components captured for kind.
func (s *Session) Selection(kind sensor.Kind) sensor.Selection {
	return s.buf.Selection(kind)
}

// Buffer returns the finalized buffer, or nil until stopped.
func (s *Session) Buffer() *Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Stopped {
		return nil
	}
	return s.buf
}

// Dropped returns how many events were rejected while Recording.
func (s *Session) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}
