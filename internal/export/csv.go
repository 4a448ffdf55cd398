// Package export writes recorded sessions as one CSV file per sensor.
package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jwulff/sensorlog/internal/apperr"
	"github.com/jwulff/sensorlog/internal/capture"
	"github.com/jwulff/sensorlog/internal/sensor"
)

// Exporter writes CSV files into a directory.
type Exporter struct {
	dir string
	log *zap.Logger
}

// New returns an Exporter for dir, created on first export.
func New(dir string, log *zap.Logger) *Exporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Exporter{dir: dir, log: log}
}

// Dir returns the output directory.
func (e *Exporter) Dir() string {
	return e.dir
}

// FileName returns the file name for kind in a record created at createdAt,
// e.g. "1700000000123_Magnetic Field".
func FileName(createdAt time.Time, kind sensor.Kind) string {
	return strconv.FormatInt(createdAt.UnixMilli(), 10) + "_" + kind.String()
}

// Export writes every kind in buf and returns the written paths. If any
// file fails, the files already written are removed and one export error
// is returned for the whole operation.
func (e *Exporter) Export(createdAt time.Time, buf *capture.Buffer) ([]string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.CodeExport, "create export dir", err)
	}

	var written []string
	for _, k := range buf.Kinds() {
		s, _ := buf.Series(k)
		path := filepath.Join(e.dir, FileName(createdAt, k))
		if err := writeFile(path, k, s); err != nil {
			for _, p := range written {
				err = multierr.Append(err, os.Remove(p))
			}
			e.log.Error("export failed", zap.String("file", path), zap.Int("rolled_back", len(written)), zap.Error(err))
			return nil, apperr.Wrap(apperr.CodeExport, fmt.Sprintf("export %s", k), err)
		}
		written = append(written, path)
	}
	e.log.Info("export done", zap.String("dir", e.dir), zap.Int("files", len(written)))
	return written, nil
}

// writeFile writes to a temp file in the same directory and renames it
// into place, so a failed write never leaves a partial file behind.
func writeFile(path string, k sensor.Kind, s *capture.Series) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, os.Remove(f.Name()))
		}
	}()

	bw := bufio.NewWriter(f)
	if err := Write(bw, k, s); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// Write renders one series: a "Data from <Sensor>" line, a header of
// Time plus each selected component, then one row per sample.
func Write(w *bufio.Writer, k sensor.Kind, s *capture.Series) error {
	if _, err := fmt.Fprintf(w, "Data from %s\n", k); err != nil {
		return fmt.Errorf("write title: %w", err)
	}

	comps := s.Selection.Components()
	cw := csv.NewWriter(w)
	header := make([]string, 0, len(comps)+1)
	header = append(header, "Time")
	for _, c := range comps {
		header = append(header, k.ComponentLabel(c))
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(header))
	for i, ms := range s.Time {
		row[0] = formatFloat(ms)
		for j, c := range comps {
			row[j+1] = formatFloat(s.Values[c][i])
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
