// Package capture buffers sensor events for one recording session.
package capture

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/jwulff/sensorlog/internal/apperr"
	"github.com/jwulff/sensorlog/internal/sensor"
)

// ErrNoComponents is returned by Begin when nothing is selected.
var ErrNoComponents = apperr.New(apperr.CodeConfiguration, "no sensor components selected")

// Series holds the samples of one kind as parallel sequences. Time and
// every selected entry of Values always have the same length.
type Series struct {
	Selection sensor.Selection
	Time      []float64
	Values    [sensor.MaxComponents][]float64
}

// Len returns the number of samples.
func (s *Series) Len() int {
	return len(s.Time)
}

// Component returns the samples of component c, or nil if c is not selected.
func (s *Series) Component(c sensor.Component) []float64 {
	if int(c) >= sensor.MaxComponents || !s.Selection.Has(c) {
		return nil
	}
	return s.Values[c]
}

func newSeries(sel sensor.Selection) *Series {
	s := &Series{Selection: sel, Time: []float64{}}
	for _, c := range sel.Components() {
		s.Values[c] = []float64{}
	}
	return s
}

// Buffer maps each enabled kind to its Series. It is safe for one
// goroutine to Ingest while another calls Finalize.
type Buffer struct {
	mu     sync.Mutex
	series map[sensor.Kind]*Series
	final  bool
}

// Begin allocates an empty Series for every kind with a non-empty
// selection. Selections with components the kind does not have are
// rejected.
func Begin(enabled map[sensor.Kind]sensor.Selection) (*Buffer, error) {
	b := &Buffer{series: make(map[sensor.Kind]*Series)}
	for k, sel := range enabled {
		if sel.Empty() {
			continue
		}
		if !sel.ValidFor(k) {
			return nil, apperr.New(apperr.CodeConfiguration, fmt.Sprintf("invalid selection %03b for %s", uint8(sel), k))
		}
		b.series[k] = newSeries(sel)
	}
	if len(b.series) == 0 {
		return nil, ErrNoComponents
	}
	return b, nil
}

// Restore builds a finalized buffer from decoded series, checking that
// every kind is known, every selection is non-empty and valid, and every
// sequence has the same length as Time.
func Restore(series map[sensor.Kind]Series) (*Buffer, error) {
	b := &Buffer{series: make(map[sensor.Kind]*Series, len(series)), final: true}
	for k, s := range series {
		if !k.Valid() {
			return nil, fmt.Errorf("unknown sensor kind %d", uint8(k))
		}
		if s.Selection.Empty() || !s.Selection.ValidFor(k) {
			return nil, fmt.Errorf("invalid selection %03b for %s", uint8(s.Selection), k)
		}
		out := &Series{Selection: s.Selection, Time: orEmpty(s.Time)}
		for c := sensor.Component(0); c < sensor.MaxComponents; c++ {
			if !s.Selection.Has(c) {
				if len(s.Values[c]) != 0 {
					return nil, fmt.Errorf("%s: values for unselected component %s", k, k.ComponentKey(c))
				}
				continue
			}
			if len(s.Values[c]) != len(out.Time) {
				return nil, fmt.Errorf("%s: %s has %d samples, time has %d", k, k.ComponentKey(c), len(s.Values[c]), len(out.Time))
			}
			out.Values[c] = orEmpty(s.Values[c])
		}
		b.series[k] = out
	}
	if len(b.series) == 0 {
		return nil, ErrNoComponents
	}
	return b, nil
}

func orEmpty(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}

// Ingest appends one event for kind. Kinds not in the buffer are ignored.
// The event is dropped whole if it carries fewer values than the highest
// selected component needs, if elapsedMs is negative or NaN, or if the
// buffer is finalized. Reports whether the event was appended.
func (b *Buffer) Ingest(kind sensor.Kind, values []float64, elapsedMs float64) bool {
	if elapsedMs < 0 || math.IsNaN(elapsedMs) {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.final {
		return false
	}
	s, ok := b.series[kind]
	if !ok {
		return false
	}
	comps := s.Selection.Components()
	if len(values) <= int(comps[len(comps)-1]) {
		return false
	}
	for _, c := range comps {
		s.Values[c] = append(s.Values[c], values[c])
	}
	s.Time = append(s.Time, elapsedMs)
	return true
}

// Finalize marks the buffer read-only and returns it.
func (b *Buffer) Finalize() *Buffer {
	b.mu.Lock()
	b.final = true
	b.mu.Unlock()
	return b
}

// Finalized reports whether Finalize has been called.
func (b *Buffer) Finalized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.final
}

// Kinds returns the kinds held by the buffer in ascending order.
func (b *Buffer) Kinds() []sensor.Kind {
	b.mu.Lock()
	defer b.mu.Unlock()
	kinds := make([]sensor.Kind, 0, len(b.series))
	for k := range b.series {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Series returns the samples for kind. The returned slices alias the
// buffer and must only be read after Finalize.
func (b *Buffer) Series(kind sensor.Kind) (*Series, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.series[kind]
	return s, ok
}

// Selection returns the components captured for kind.
func (b *Buffer) Selection(kind sensor.Kind) sensor.Selection {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.series[kind]; ok {
		return s.Selection
	}
	return 0
}

// Len returns the sample count for kind, or 0 if absent.
func (b *Buffer) Len(kind sensor.Kind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.series[kind]; ok {
		return len(s.Time)
	}
	return 0
}

// Counts returns the sample count of every kind.
func (b *Buffer) Counts() map[sensor.Kind]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[sensor.Kind]int, len(b.series))
	for k, s := range b.series {
		out[k] = len(s.Time)
	}
	return out
}

// Equal reports whether both buffers hold the same kinds, selections and
// bit-identical samples.
func (b *Buffer) Equal(o *Buffer) bool {
	if b == o {
		return true
	}
	if b == nil || o == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(b.series) != len(o.series) {
		return false
	}
	for k, s := range b.series {
		t, ok := o.series[k]
		if !ok || s.Selection != t.Selection || !sameBits(s.Time, t.Time) {
			return false
		}
		for c := range s.Values {
			if !sameBits(s.Values[c], t.Values[c]) {
				return false
			}
		}
	}
	return true
}

func sameBits(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Float64bits(a[i]) != math.Float64bits(b[i]) {
			return false
		}
	}
	return true
}
