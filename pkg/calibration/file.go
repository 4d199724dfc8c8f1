package calibration

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

const (
	columnFrequency = "frequency"
	columnCurrent   = "current"
)

// WriteTable writes samples as frequency,current rows with a header.
func WriteTable(w io.Writer, samples []Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{columnFrequency, columnCurrent}); err != nil {
		return err
	}
	for _, s := range samples {
		row := []string{
			strconv.FormatFloat(s.Frequency, 'g', -1, 64),
			strconv.FormatFloat(s.CurrentGet, 'g', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTable reads a calibration table. Columns are located by header name,
// so extra columns such as a leading row index are ignored. The returned
// samples carry Frequency and CurrentGet only.
func ReadTable(r io.Reader) ([]Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, pkgerrors.New("empty calibration table")
		}
		return nil, pkgerrors.Wrap(err, "failed to read header")
	}

	fi, ci := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case columnFrequency:
			fi = i
		case columnCurrent:
			ci = i
		}
	}
	if fi < 0 || ci < 0 {
		return nil, pkgerrors.Errorf("header %q lacks %s and %s columns", header, columnFrequency, columnCurrent)
	}

	var samples []Sample
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to read line %d", line)
		}
		if len(rec) <= fi || len(rec) <= ci {
			return nil, pkgerrors.Errorf("line %d: expected at least %d fields, got %d", line, max(fi, ci)+1, len(rec))
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(rec[fi]), 64)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "line %d: bad frequency", line)
		}
		c, err := strconv.ParseFloat(strings.TrimSpace(rec[ci]), 64)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "line %d: bad current", line)
		}
		samples = append(samples, Sample{Frequency: f, CurrentGet: c})
	}
	return samples, nil
}

func writeTableFile(path string, samples []Sample) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &persistenceError{op: "create directory for", path: path, err: err}
	}
	f, err := os.Create(path)
	if err != nil {
		return &persistenceError{op: "create", path: path, err: err}
	}
	if err := WriteTable(f, samples); err != nil {
		_ = f.Close()
		return &persistenceError{op: "write", path: path, err: err}
	}
	if err := f.Close(); err != nil {
		return &persistenceError{op: "close", path: path, err: err}
	}
	return nil
}

func readTableFile(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &persistenceError{op: "open", path: path, err: err}
	}
	defer f.Close()

	samples, err := ReadTable(f)
	if err != nil {
		return nil, &persistenceError{op: "read", path: path, err: err}
	}
	return samples, nil
}
