package export

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwulff/sensorlog/internal/apperr"
	"github.com/jwulff/sensorlog/internal/capture"
	"github.com/jwulff/sensorlog/internal/sensor"
)

func sample(t *testing.T) *capture.Buffer {
	t.Helper()
	buf, err := capture.Begin(map[sensor.Kind]sensor.Selection{
		sensor.Accelerometer: sensor.Selection(0).With(sensor.X).With(sensor.Y),
		sensor.MagneticField: sensor.Selection(0).With(sensor.Z),
		sensor.Light:         sensor.SelectAll(sensor.Light),
	})
	require.NoError(t, err)
	buf.Ingest(sensor.Accelerometer, []float64{1, 2, 0}, 0)
	buf.Ingest(sensor.Accelerometer, []float64{3, 4, 0}, 10)
	buf.Ingest(sensor.Accelerometer, []float64{5, 6, 0}, 20.5)
	buf.Ingest(sensor.MagneticField, []float64{0, 0, -42.25}, 3)
	buf.Ingest(sensor.Light, []float64{320}, 1)
	return buf.Finalize()
}

func TestFileName(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	assert.Equal(t, "1700000000123_Magnetic Field", FileName(at, sensor.MagneticField))
	assert.Equal(t, "1700000000123_Accelerometer", FileName(at, sensor.Accelerometer))
}

func TestWrite(t *testing.T) {
	buf := sample(t)
	s, _ := buf.Series(sensor.Accelerometer)

	var sb strings.Builder
	w := bufio.NewWriter(&sb)
	require.NoError(t, Write(w, sensor.Accelerometer, s))
	require.NoError(t, w.Flush())

	assert.Equal(t, "Data from Accelerometer\nTime,X,Y\n0,1,2\n10,3,4\n20.5,5,6\n", sb.String())
}

func TestWriteScalar(t *testing.T) {
	s, _ := sample(t).Series(sensor.Light)

	var sb strings.Builder
	w := bufio.NewWriter(&sb)
	require.NoError(t, Write(w, sensor.Light, s))
	require.NoError(t, w.Flush())

	assert.Equal(t, "Data from Light\nTime,Value\n1,320\n", sb.String())
}

func TestExport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "SensorLog_Data")
	at := time.UnixMilli(1700000000123)

	paths, err := New(dir, nil).Export(at, sample(t))
	require.NoError(t, err)
	require.Len(t, paths, 3)

	data, err := os.ReadFile(filepath.Join(dir, "1700000000123_Magnetic Field"))
	require.NoError(t, err)
	assert.Equal(t, "Data from Magnetic Field\nTime,Z\n3,-42.25\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "no temp files left behind")
}

func TestExportRollsBackOnFailure(t *testing.T) {
	dir := t.TempDir()
	at := time.UnixMilli(42)

	// A directory where the light file should go makes its rename fail
	// after the earlier kinds were written.
	require.NoError(t, os.Mkdir(filepath.Join(dir, FileName(at, sensor.Light)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName(at, sensor.Light), "keep"), nil, 0o644))

	_, err := New(dir, nil).Export(at, sample(t))
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeExport))
	assert.Equal(t, "There was an error creating the files!", apperr.UserMessage(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "only the blocking directory remains")
	assert.Equal(t, FileName(at, sensor.Light), entries[0].Name())
}

func TestExportUnwritableDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := New(filepath.Join(file, "out"), nil).Export(time.UnixMilli(1), sample(t))
	assert.True(t, apperr.IsCode(err, apperr.CodeExport))
}
