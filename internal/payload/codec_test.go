package payload

import (
	"math"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwulff/sensorlog/internal/apperr"
	"github.com/jwulff/sensorlog/internal/capture"
	"github.com/jwulff/sensorlog/internal/sensor"
)

func finalized(t *testing.T, enabled map[sensor.Kind]sensor.Selection, fill func(*capture.Buffer)) *capture.Buffer {
	t.Helper()
	buf, err := capture.Begin(enabled)
	require.NoError(t, err)
	if fill != nil {
		fill(buf)
	}
	return buf.Finalize()
}

func requireCorrupt(t *testing.T, data []byte) {
	t.Helper()
	_, err := Decode(data)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeCorruptData), "got %v", err)
}

func TestRoundTripEmptySingleComponent(t *testing.T) {
	buf := finalized(t, map[sensor.Kind]sensor.Selection{
		sensor.Temperature: sensor.SelectAll(sensor.Temperature),
	}, nil)

	data, err := Encode(buf)
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)

	assert.True(t, buf.Equal(got))
	s, ok := got.Series(sensor.Temperature)
	require.True(t, ok)
	assert.Equal(t, []float64{}, s.Time)
	assert.Equal(t, []float64{}, s.Component(sensor.Value))
	assert.True(t, got.Finalized())
}

func TestRoundTripManyKinds(t *testing.T) {
	special := []float64{
		math.NaN(),
		math.Float64frombits(0x7ff8dead0000beef),
		math.Inf(1),
		math.Inf(-1),
		math.Copysign(0, -1),
		math.SmallestNonzeroFloat64,
		math.MaxFloat64,
		0.1,
	}
	buf := finalized(t, map[sensor.Kind]sensor.Selection{
		sensor.Accelerometer: sensor.SelectAll(sensor.Accelerometer),
		sensor.Gyroscope:     sensor.Selection(0).With(sensor.Y),
		sensor.MagneticField: sensor.Selection(0).With(sensor.X).With(sensor.Z),
		sensor.Light:         sensor.SelectAll(sensor.Light),
		sensor.Pressure:      sensor.SelectAll(sensor.Pressure),
	}, func(b *capture.Buffer) {
		for i := 0; i < 2000; i++ {
			ms := float64(i) * 16.666666
			v := special[i%len(special)]
			b.Ingest(sensor.Accelerometer, []float64{v, float64(i) / 3, -9.80665}, ms)
			b.Ingest(sensor.Gyroscope, []float64{0, math.Sin(float64(i)), 0}, ms)
			b.Ingest(sensor.MagneticField, []float64{48.1, 0, -12.5}, ms+0.5)
			if i%10 == 0 {
				b.Ingest(sensor.Light, []float64{float64(i)}, ms)
			}
		}
	})

	data, err := Encode(buf)
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)

	assert.True(t, buf.Equal(got))
	assert.Equal(t, buf.Counts(), got.Counts())
	assert.Equal(t, buf.Kinds(), got.Kinds())

	s, _ := got.Series(sensor.Accelerometer)
	assert.Equal(t, uint64(0x7ff8dead0000beef), math.Float64bits(s.Component(sensor.X)[1]))
	assert.Equal(t, math.Float64bits(math.Copysign(0, -1)), math.Float64bits(s.Component(sensor.X)[4]))
}

func TestEncodeIsDeterministic(t *testing.T) {
	fill := func(b *capture.Buffer) {
		b.Ingest(sensor.Gyroscope, []float64{1, 2, 3}, 0)
		b.Ingest(sensor.Proximity, []float64{5}, 0)
	}
	enabled := map[sensor.Kind]sensor.Selection{
		sensor.Gyroscope: sensor.SelectAll(sensor.Gyroscope),
		sensor.Proximity: sensor.SelectAll(sensor.Proximity),
	}
	a, err := Encode(finalized(t, enabled, fill))
	require.NoError(t, err)
	b, err := Encode(finalized(t, enabled, fill))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEncodeRequiresFinalizedBuffer(t *testing.T) {
	buf, err := capture.Begin(map[sensor.Kind]sensor.Selection{sensor.Light: sensor.SelectAll(sensor.Light)})
	require.NoError(t, err)

	_, err = Encode(buf)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeSerialization))

	_, err = Encode(nil)
	assert.True(t, apperr.IsCode(err, apperr.CodeSerialization))
}

func TestDecodeRejectsCorruptData(t *testing.T) {
	good, err := Encode(finalized(t, map[sensor.Kind]sensor.Selection{
		sensor.Accelerometer: sensor.SelectAll(sensor.Accelerometer),
	}, func(b *capture.Buffer) {
		b.Ingest(sensor.Accelerometer, []float64{1, 2, 3}, 0)
		b.Ingest(sensor.Accelerometer, []float64{4, 5, 6}, 10)
	}))
	require.NoError(t, err)

	t.Run("empty", func(t *testing.T) { requireCorrupt(t, nil) })
	t.Run("truncated", func(t *testing.T) {
		for _, n := range []int{1, len(good) / 2, len(good) - 1} {
			requireCorrupt(t, good[:n])
		}
	})
	t.Run("trailing bytes", func(t *testing.T) {
		requireCorrupt(t, append(append([]byte{}, good...), 0x00))
	})
	t.Run("untagged", func(t *testing.T) {
		data, err := cbor.Marshal(map[int]int{1: 1})
		require.NoError(t, err)
		requireCorrupt(t, data)
	})

	mustTag := func(t *testing.T, number uint64, content any) []byte {
		t.Helper()
		data, err := cbor.Marshal(cbor.Tag{Number: number, Content: content})
		require.NoError(t, err)
		return data
	}
	valid := func() wirePayload {
		return wirePayload{Version: Version, Series: []wireSeries{{
			Kind:       uint8(sensor.Gyroscope),
			Components: uint8(sensor.Selection(0).With(sensor.X)),
			Time:       []float64{0, 1},
			Values:     [][]float64{{1, 2}},
		}}}
	}

	t.Run("valid control", func(t *testing.T) {
		_, err := Decode(mustTag(t, Tag, valid()))
		require.NoError(t, err)
	})
	t.Run("wrong tag", func(t *testing.T) { requireCorrupt(t, mustTag(t, 55799, valid())) })
	t.Run("type mismatch", func(t *testing.T) { requireCorrupt(t, mustTag(t, Tag, "sensordata")) })
	t.Run("unknown field", func(t *testing.T) {
		requireCorrupt(t, mustTag(t, Tag, map[int]any{1: Version, 2: []any{}, 9: true}))
	})

	mutations := map[string]func(*wirePayload){
		"version":         func(p *wirePayload) { p.Version = 7 },
		"no series":       func(p *wirePayload) { p.Series = nil },
		"unknown kind":    func(p *wirePayload) { p.Series[0].Kind = 42 },
		"empty selection": func(p *wirePayload) { p.Series[0].Components = 0; p.Series[0].Values = nil },
		"bad selection":   func(p *wirePayload) { p.Series[0].Kind = uint8(sensor.Light); p.Series[0].Components = 0b100 },
		"value count":     func(p *wirePayload) { p.Series[0].Values = append(p.Series[0].Values, []float64{3, 4}) },
		"unequal lengths": func(p *wirePayload) { p.Series[0].Values[0] = []float64{1} },
		"duplicate kind":  func(p *wirePayload) { p.Series = append(p.Series, p.Series[0]) },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			p := valid()
			mutate(&p)
			requireCorrupt(t, mustTag(t, Tag, p))
		})
	}
}
