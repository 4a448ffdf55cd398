package capture

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwulff/sensorlog/internal/apperr"
	"github.com/jwulff/sensorlog/internal/sensor"
)

func accelXY() map[sensor.Kind]sensor.Selection {
	return map[sensor.Kind]sensor.Selection{
		sensor.Accelerometer: sensor.Selection(0).With(sensor.X).With(sensor.Y),
	}
}

func TestBeginRejectsEmptySelection(t *testing.T) {
	_, err := Begin(nil)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeConfiguration))

	_, err = Begin(map[sensor.Kind]sensor.Selection{sensor.Gyroscope: 0, sensor.Light: 0})
	assert.ErrorIs(t, err, ErrNoComponents)
}

func TestBeginRejectsComponentsTheKindLacks(t *testing.T) {
	_, err := Begin(map[sensor.Kind]sensor.Selection{sensor.Temperature: sensor.Selection(0).With(sensor.Y)})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeConfiguration))
}

func TestBeginSkipsEmptyKinds(t *testing.T) {
	buf, err := Begin(map[sensor.Kind]sensor.Selection{
		sensor.Gyroscope: 0,
		sensor.Pressure:  sensor.SelectAll(sensor.Pressure),
	})
	require.NoError(t, err)
	assert.Equal(t, []sensor.Kind{sensor.Pressure}, buf.Kinds())
	assert.Equal(t, 0, buf.Len(sensor.Pressure))
}

func TestIngestAccelerometerXY(t *testing.T) {
	buf, err := Begin(accelXY())
	require.NoError(t, err)

	assert.True(t, buf.Ingest(sensor.Accelerometer, []float64{1, 2, 9.8}, 0))
	assert.True(t, buf.Ingest(sensor.Accelerometer, []float64{3, 4, 9.8}, 10))
	assert.True(t, buf.Ingest(sensor.Accelerometer, []float64{5, 6, 9.8}, 20))
	buf.Finalize()

	s, ok := buf.Series(sensor.Accelerometer)
	require.True(t, ok)
	assert.Equal(t, []float64{0, 10, 20}, s.Time)
	assert.Equal(t, []float64{1, 3, 5}, s.Component(sensor.X))
	assert.Equal(t, []float64{2, 4, 6}, s.Component(sensor.Y))
	assert.Nil(t, s.Component(sensor.Z))
}

func TestIngestKeepsSeriesEqualLength(t *testing.T) {
	buf, err := Begin(map[sensor.Kind]sensor.Selection{
		sensor.Gyroscope:     sensor.SelectAll(sensor.Gyroscope),
		sensor.MagneticField: sensor.Selection(0).With(sensor.Z),
		sensor.Light:         sensor.SelectAll(sensor.Light),
	})
	require.NoError(t, err)

	const n = 250
	for i := 0; i < n; i++ {
		ms := float64(i) * 4.5
		buf.Ingest(sensor.Gyroscope, []float64{float64(i), -float64(i), 0.5}, ms)
		buf.Ingest(sensor.MagneticField, []float64{1, 2, float64(i)}, ms)
		if i%2 == 0 {
			buf.Ingest(sensor.Light, []float64{float64(i)}, ms)
		}
	}
	buf.Finalize()

	want := map[sensor.Kind]int{sensor.Gyroscope: n, sensor.MagneticField: n, sensor.Light: n / 2}
	assert.Equal(t, want, buf.Counts())
	for k, count := range want {
		s, _ := buf.Series(k)
		assert.Len(t, s.Time, count, k.String())
		for _, c := range s.Selection.Components() {
			assert.Len(t, s.Component(c), count, "%s %s", k, k.ComponentKey(c))
		}
	}
}

func TestIngestUnknownKindIsIgnored(t *testing.T) {
	buf, err := Begin(accelXY())
	require.NoError(t, err)
	buf.Ingest(sensor.Accelerometer, []float64{1, 2, 3}, 0)

	assert.False(t, buf.Ingest(sensor.Gyroscope, []float64{1, 2, 3}, 1))
	assert.False(t, buf.Ingest(sensor.Kind(99), []float64{1}, 1))

	assert.Equal(t, map[sensor.Kind]int{sensor.Accelerometer: 1}, buf.Counts())
	_, ok := buf.Series(sensor.Gyroscope)
	assert.False(t, ok)
}

func TestIngestDropsMalformedEventsWhole(t *testing.T) {
	buf, err := Begin(map[sensor.Kind]sensor.Selection{
		sensor.Accelerometer: sensor.Selection(0).With(sensor.X).With(sensor.Z),
	})
	require.NoError(t, err)

	assert.False(t, buf.Ingest(sensor.Accelerometer, []float64{1, 2}, 0), "too few values")
	assert.False(t, buf.Ingest(sensor.Accelerometer, []float64{1, 2, 3}, -1), "negative time")
	assert.False(t, buf.Ingest(sensor.Accelerometer, []float64{1, 2, 3}, math.NaN()), "NaN time")
	assert.True(t, buf.Ingest(sensor.Accelerometer, []float64{1, 2, 3, 4}, 0), "extra values are fine")

	s, _ := buf.Series(sensor.Accelerometer)
	assert.Equal(t, []float64{0}, s.Time)
	assert.Equal(t, []float64{1}, s.Component(sensor.X))
	assert.Equal(t, []float64{3}, s.Component(sensor.Z))
}

func TestIngestAfterFinalizeIsNoop(t *testing.T) {
	buf, err := Begin(accelXY())
	require.NoError(t, err)
	buf.Ingest(sensor.Accelerometer, []float64{1, 2, 3}, 0)
	buf.Finalize()

	assert.True(t, buf.Finalized())
	assert.False(t, buf.Ingest(sensor.Accelerometer, []float64{1, 2, 3}, 5))
	assert.Equal(t, 1, buf.Len(sensor.Accelerometer))
}

func TestIngestConcurrentWithFinalize(t *testing.T) {
	buf, err := Begin(map[sensor.Kind]sensor.Selection{sensor.Gyroscope: sensor.SelectAll(sensor.Gyroscope)})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 10000; i++ {
			buf.Ingest(sensor.Gyroscope, []float64{1, 2, 3}, float64(i))
		}
	}()
	buf.Finalize()
	wg.Wait()

	s, _ := buf.Series(sensor.Gyroscope)
	for _, c := range s.Selection.Components() {
		assert.Len(t, s.Component(c), s.Len())
	}
}

func TestRestoreValidates(t *testing.T) {
	x := sensor.Selection(0).With(sensor.X)

	buf, err := Restore(map[sensor.Kind]Series{
		sensor.Temperature: {Selection: x},
	})
	require.NoError(t, err)
	assert.True(t, buf.Finalized())
	s, _ := buf.Series(sensor.Temperature)
	assert.NotNil(t, s.Time)
	assert.NotNil(t, s.Component(sensor.Value))

	cases := map[string]map[sensor.Kind]Series{
		"empty":         {},
		"unknown kind":  {sensor.Kind(0): {Selection: x}},
		"no components": {sensor.Light: {}},
		"bad selection": {sensor.Light: {Selection: sensor.Selection(0b10)}},
		"short series": {sensor.Accelerometer: {
			Selection: x,
			Time:      []float64{0, 1},
			Values:    [sensor.MaxComponents][]float64{{1}},
		}},
		"unselected values": {sensor.Accelerometer: {
			Selection: x,
			Time:      []float64{0},
			Values:    [sensor.MaxComponents][]float64{{1}, {2}},
		}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Restore(in)
			assert.Error(t, err)
		})
	}
}

func TestEqualComparesBits(t *testing.T) {
	mk := func(v float64) *Buffer {
		b, err := Begin(map[sensor.Kind]sensor.Selection{sensor.Proximity: sensor.SelectAll(sensor.Proximity)})
		require.NoError(t, err)
		b.Ingest(sensor.Proximity, []float64{v}, 0)
		return b.Finalize()
	}

	assert.True(t, mk(math.NaN()).Equal(mk(math.NaN())))
	assert.False(t, mk(0).Equal(mk(math.Copysign(0, -1))))
	assert.False(t, mk(1).Equal(mk(2)))
	assert.False(t, mk(1).Equal(nil))

	other, err := Begin(accelXY())
	require.NoError(t, err)
	assert.False(t, mk(1).Equal(other))
}
