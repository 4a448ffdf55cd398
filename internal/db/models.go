// Package db provides SQLite storage for saved recording sessions.
package db

import (
	"strconv"
	"strings"
	"time"

	"github.com/jwulff/sensorlog/internal/sensor"
)

// Record is a saved session with its encoded payload.
type Record struct {
	ID        int64
	Title     string
	Notes     string
	CreatedAt time.Time
	Payload   []byte
	Kinds     []sensor.Kind
}

// Summary is a Record without the payload, for listings.
type Summary struct {
	ID        int64
	Title     string
	Notes     string
	CreatedAt time.Time
	Kinds     []sensor.Kind
}

// Summary drops the payload.
func (r Record) Summary() Summary {
	return Summary{ID: r.ID, Title: r.Title, Notes: r.Notes, CreatedAt: r.CreatedAt, Kinds: r.Kinds}
}

// NewRecord holds the fields of a record to insert.
type NewRecord struct {
	Title     string
	Notes     string
	CreatedAt time.Time
	Payload   []byte
	Kinds     []sensor.Kind
}

// formatKinds renders kinds as space-separated ids, e.g. "1 4".
func formatKinds(kinds []sensor.Kind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = strconv.Itoa(int(k))
	}
	return strings.Join(parts, " ")
}

// parseKinds skips tokens that are not known kinds.
func parseKinds(s string) []sensor.Kind {
	var kinds []sensor.Kind
	for _, f := range strings.Fields(s) {
		n, err := strconv.Atoi(f)
		if err != nil {
			continue
		}
		if k := sensor.Kind(n); n > 0 && n < 256 && k.Valid() {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
