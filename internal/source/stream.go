package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/jwulff/sensorlog/internal/sensor"
)

// Stream receives samples from a phone companion app over NDJSON.
// Phone timestamps are re-based onto the local clock at the first sample
// so that sample spacing is the phone's own.
type Stream struct {
	addr string
	clk  clock.Clock
	log  *zap.Logger

	mu      sync.Mutex
	client  *Client
	done    chan struct{}
	stopped atomic.Bool
	device  string
}

// NewStream returns a Stream for addr (host:port or Unix socket path).
func NewStream(addr string, clk clock.Clock, log *zap.Logger) *Stream {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Stream{addr: addr, clk: clk, log: log}
}

// Device returns the name the phone reported on subscribe.
func (s *Stream) Device() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

// Subscribe connects, asks the phone for kinds at rate, and delivers
// samples to handle from a reader goroutine until Unsubscribe or ctx ends.
func (s *Stream) Subscribe(ctx context.Context, kinds []sensor.Kind, rate sensor.Rate, handle func(sensor.Event)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return errors.New("stream already subscribed")
	}

	c, err := Connect(s.addr)
	if err != nil {
		return err
	}
	names := make([]string, len(kinds))
	wanted := make(map[sensor.Kind]bool, len(kinds))
	for i, k := range kinds {
		names[i] = k.Slug()
		wanted[k] = true
	}
	resp, err := c.SendCommand(Command{Cmd: CmdSubscribe, Sensors: names, Rate: rate.String()})
	if err != nil {
		c.Close()
		return fmt.Errorf("subscribe: %w", err)
	}

	s.client = c
	s.device = resp.Device
	s.done = make(chan struct{})
	s.stopped.Store(false)
	go s.read(c, wanted, handle, s.done)
	go func(done chan struct{}) {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}(s.done)

	s.log.Info("phone subscribed",
		zap.String("addr", s.addr),
		zap.String("device", resp.Device),
		zap.Strings("sensors", names),
		zap.Stringer("rate", rate))
	return nil
}

func (s *Stream) read(c *Client, wanted map[sensor.Kind]bool, handle func(sensor.Event), done chan struct{}) {
	defer close(done)

	var offset time.Duration
	anchored := false
	for {
		ev, err := c.ReadEvent()
		if err != nil {
			if !s.stopped.Load() {
				s.log.Warn("phone stream ended", zap.Error(err))
			}
			return
		}
		if s.stopped.Load() {
			return
		}

		switch ev.Event {
		case EventSample:
			k, err := sensor.ParseKind(ev.Sensor)
			if err != nil || !wanted[k] {
				s.log.Debug("ignoring sample", zap.String("sensor", ev.Sensor))
				continue
			}
			phone := time.Unix(0, ev.Timestamp)
			if !anchored {
				offset = s.clk.Now().Sub(phone)
				anchored = true
			}
			handle(sensor.Event{Kind: k, Values: ev.Values, Timestamp: phone.Add(offset)})
		case EventError:
			s.log.Warn("phone error", zap.String("message", ev.Message))
		}
	}
}

// Unsubscribe tells the phone to stop, closes the connection and waits
// for the reader goroutine, so handle is never called after it returns.
func (s *Stream) Unsubscribe() error {
	s.mu.Lock()
	c, done := s.client, s.done
	s.client = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	s.stopped.Store(true)
	if err := c.Send(Command{Cmd: CmdUnsubscribe}); err != nil {
		s.log.Debug("send unsubscribe", zap.Error(err))
	}
	err := c.Close()
	<-done
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("close phone connection: %w", err)
	}
	s.log.Info("phone unsubscribed", zap.String("addr", s.addr))
	return nil
}

// QueryStatus connects to addr and returns the phone's status response.
func QueryStatus(addr string) (Response, error) {
	c, err := Connect(addr)
	if err != nil {
		return Response{}, err
	}
	defer c.Close()
	return c.SendCommand(Command{Cmd: CmdStatus})
}
