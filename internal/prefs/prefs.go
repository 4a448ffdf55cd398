// Package prefs persists which sensor components to record and the
// preferred sampling rate.
package prefs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/jwulff/sensorlog/internal/sensor"
)

// Prefs is a persistent key to bool map, one key per sensor component,
// plus the sampling rate.
type Prefs struct {
	path     string
	Enabled  map[string]bool `yaml:"enabled"`
	RateName string          `yaml:"rate,omitempty"`
}

// Load reads path. A missing file yields empty preferences.
func Load(path string) (*Prefs, error) {
	p := &Prefs{path: path, Enabled: map[string]bool{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read prefs: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse prefs %s: %w", path, err)
	}
	if p.Enabled == nil {
		p.Enabled = map[string]bool{}
	}
	return p, nil
}

// Save writes the preferences back to their file.
func (p *Prefs) Save() error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("replace prefs: %w", err)
	}
	return nil
}

// Clone returns an independent copy backed by the same file.
func (p *Prefs) Clone() *Prefs {
	c := &Prefs{path: p.path, RateName: p.RateName, Enabled: make(map[string]bool, len(p.Enabled))}
	for k, v := range p.Enabled {
		c.Enabled[k] = v
	}
	return c
}

// Path returns the backing file.
func (p *Prefs) Path() string {
	return p.path
}

// Get reports whether component c of k is enabled.
func (p *Prefs) Get(k sensor.Kind, c sensor.Component) bool {
	return p.Enabled[k.PrefKey(c)]
}

// Set enables or disables component c of k.
func (p *Prefs) Set(k sensor.Kind, c sensor.Component, on bool) {
	key := k.PrefKey(c)
	if key == "" {
		return
	}
	if on {
		p.Enabled[key] = true
	} else {
		delete(p.Enabled, key)
	}
}

// Toggle flips component c of k and returns the new value.
func (p *Prefs) Toggle(k sensor.Kind, c sensor.Component) bool {
	on := !p.Get(k, c)
	p.Set(k, c, on)
	return on
}

// Selections builds the per-kind component selections. Kinds with
// nothing enabled are omitted.
func (p *Prefs) Selections() map[sensor.Kind]sensor.Selection {
	out := make(map[sensor.Kind]sensor.Selection)
	for _, k := range sensor.All {
		var sel sensor.Selection
		for c := sensor.Component(0); int(c) < k.Components(); c++ {
			if p.Get(k, c) {
				sel = sel.With(c)
			}
		}
		if !sel.Empty() {
			out[k] = sel
		}
	}
	return out
}

// Rate returns the stored rate, or fallback if none is stored.
func (p *Prefs) Rate(fallback sensor.Rate) sensor.Rate {
	if p.RateName == "" {
		return fallback
	}
	r, err := sensor.ParseRate(p.RateName)
	if err != nil {
		return fallback
	}
	return r
}

// SetRate stores r.
func (p *Prefs) SetRate(r sensor.Rate) {
	p.RateName = r.String()
}
