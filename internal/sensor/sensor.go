// Package sensor defines the sensor kinds, components and delivery rates
// shared by capture, storage and export.
package sensor

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies a physical sensor category.
type Kind uint8

const (
	Accelerometer Kind = iota + 1
	Gyroscope
	MagneticField
	Temperature
	Light
	Proximity
	Pressure
)

// Component is one scalar output channel of a sensor.
type Component uint8

const (
	X Component = iota
	Y
	Z
)

// Value is the only component of a scalar sensor.
const Value = X

// MaxComponents is the widest sensor output.
const MaxComponents = 3

// TimeKey is the reserved series key for elapsed time.
const TimeKey = "time"

type kindInfo struct {
	name       string
	slug       string
	components int
	prefKeys   []string
}

var kinds = [...]kindInfo{
	Accelerometer: {"Accelerometer", "accelerometer", 3, []string{"REC_ACCELEROMETER_X", "REC_ACCELEROMETER_Y", "REC_ACCELEROMETER_Z"}},
	Gyroscope:     {"Gyroscope", "gyroscope", 3, []string{"REC_GYROSCOPE_X", "REC_GYROSCOPE_Y", "REC_GYROSCOPE_Z"}},
	MagneticField: {"Magnetic Field", "magnetic_field", 3, []string{"REC_MAGNETIC_X", "REC_MAGNETIC_Y", "REC_MAGNETIC_Z"}},
	Temperature:   {"Temperature", "temperature", 1, []string{"REC_TEMPERATURE"}},
	Light:         {"Light", "light", 1, []string{"REC_AMBIENT_LIGHT"}},
	Proximity:     {"Proximity", "proximity", 1, []string{"REC_PROXIMITY"}},
	Pressure:      {"Pressure", "pressure", 1, []string{"REC_PRESSURE"}},
}

// All lists every supported kind in display order.
var All = []Kind{Accelerometer, Gyroscope, MagneticField, Temperature, Light, Proximity, Pressure}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k >= Accelerometer && k <= Pressure
}

// String returns the display name, e.g. "Magnetic Field".
func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return kinds[k].name
}

// Slug returns the wire name, e.g. "magnetic_field".
func (k Kind) Slug() string {
	if !k.Valid() {
		return ""
	}
	return kinds[k].slug
}

// Components returns how many scalar channels the kind produces.
func (k Kind) Components() int {
	if !k.Valid() {
		return 0
	}
	return kinds[k].components
}

// PrefKey returns the preference key that enables component c of k.
func (k Kind) PrefKey(c Component) string {
	if !k.Valid() || int(c) >= k.Components() {
		return ""
	}
	return kinds[k].prefKeys[c]
}

// ComponentKey returns the series key of component c for kind k:
// "x", "y", "z" for triaxial sensors and "value" for scalar ones.
func (k Kind) ComponentKey(c Component) string {
	if k.Components() == 1 {
		return "value"
	}
	switch c {
	case X:
		return "x"
	case Y:
		return "y"
	case Z:
		return "z"
	}
	return fmt.Sprintf("c%d", uint8(c))
}

// ComponentLabel is the column header used in listings and CSV.
func (k Kind) ComponentLabel(c Component) string {
	if k.Components() == 1 {
		return "Value"
	}
	return strings.ToUpper(k.ComponentKey(c))
}

// ParseKind accepts a slug or a display name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(s)
	for _, k := range All {
		if strings.EqualFold(s, k.Slug()) || strings.EqualFold(s, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown sensor kind %q", s)
}

// Selection is the set of components chosen for one kind.
type Selection uint8

// SelectAll returns a selection holding every component of k.
func SelectAll(k Kind) Selection {
	return Selection(1<<k.Components()) - 1
}

// With returns s plus component c.
func (s Selection) With(c Component) Selection {
	return s | 1<<c
}

// Without returns s minus component c.
func (s Selection) Without(c Component) Selection {
	return s &^ (1 << c)
}

// Has reports whether c is selected.
func (s Selection) Has(c Component) bool {
	return s&(1<<c) != 0
}

// Empty reports whether nothing is selected.
func (s Selection) Empty() bool {
	return s == 0
}

// Count returns the number of selected components.
func (s Selection) Count() int {
	n := 0
	for c := Component(0); c < MaxComponents; c++ {
		if s.Has(c) {
			n++
		}
	}
	return n
}

// Components returns the selected components in index order.
func (s Selection) Components() []Component {
	out := make([]Component, 0, MaxComponents)
	for c := Component(0); c < MaxComponents; c++ {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// ValidFor reports whether every selected component exists on k.
func (s Selection) ValidFor(k Kind) bool {
	return k.Valid() && s&^SelectAll(k) == 0
}

// Event is one hardware sample as delivered by a source.
type Event struct {
	Kind      Kind
	Values    []float64
	Timestamp time.Time
}

// Rate is a named delivery rate requested from the hardware source.
type Rate uint8

const (
	RateUI Rate = iota
	RateNormal
	RateGame
	RateFastest
)

// Rates lists the rates from slowest to fastest. Android's NORMAL delay
// is longer than its UI delay, so NORMAL comes first.
var Rates = []Rate{RateNormal, RateUI, RateGame, RateFastest}

var rateInfo = [...]struct {
	name     string
	label    string
	interval time.Duration
}{
	RateUI:      {"ui", "Medium", 60 * time.Millisecond},
	RateNormal:  {"normal", "Slow", 200 * time.Millisecond},
	RateGame:    {"game", "Fast", 20 * time.Millisecond},
	RateFastest: {"fastest", "Fastest", 0},
}

// String returns the wire name of the rate.
func (r Rate) String() string {
	if int(r) >= len(rateInfo) {
		return fmt.Sprintf("Rate(%d)", uint8(r))
	}
	return rateInfo[r].name
}

// Label is the human name shown next to the rate slider.
func (r Rate) Label() string {
	if int(r) >= len(rateInfo) {
		return "Rate"
	}
	return rateInfo[r].label
}

// Interval is the nominal delay between samples. Zero means as fast as
// the hardware allows.
func (r Rate) Interval() time.Duration {
	if int(r) >= len(rateInfo) {
		return rateInfo[RateNormal].interval
	}
	return rateInfo[r].interval
}

func (r Rate) index() int {
	for i, x := range Rates {
		if x == r {
			return i
		}
	}
	return -1
}

// Next returns the next faster rate, clamped at RateFastest.
func (r Rate) Next() Rate {
	i := r.index()
	if i < 0 || i == len(Rates)-1 {
		return RateFastest
	}
	return Rates[i+1]
}

// Prev returns the next slower rate, clamped at RateNormal.
func (r Rate) Prev() Rate {
	i := r.index()
	if i <= 0 {
		return RateNormal
	}
	return Rates[i-1]
}

// ParseRate accepts a wire name or a label.
func ParseRate(s string) (Rate, error) {
	s = strings.TrimSpace(s)
	for _, r := range Rates {
		if strings.EqualFold(s, r.String()) || strings.EqualFold(s, r.Label()) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown sampling rate %q", s)
}
