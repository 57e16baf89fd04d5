package fit

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Series is an observed time series.
type Series struct {
	Times  []float64
	Values []float64
}

// ReadSeries parses time,value rows. A first row whose value column is not
// numeric is treated as a header.
func ReadSeries(r io.Reader) (Series, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.Comment = '#'
	reader.TrimLeadingSpace = true

	var s Series
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Series{}, err
		}
		line++
		if len(record) < 2 {
			return Series{}, fmt.Errorf("line %d: expected time,value, got %d fields", line, len(record))
		}

		v, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			if line == 1 {
				continue
			}
			return Series{}, fmt.Errorf("line %d: value: %w", line, err)
		}
		t, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
		if err != nil {
			// Times may be dates; keep the row index.
			t = float64(len(s.Times))
		}
		s.Times = append(s.Times, t)
		s.Values = append(s.Values, v)
	}

	if len(s.Values) == 0 {
		return Series{}, fmt.Errorf("%w: no observations", ErrInvalidConfig)
	}
	return s, nil
}

func LoadSeries(path string) (Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return Series{}, err
	}
	defer f.Close()

	s, err := ReadSeries(f)
	if err != nil {
		return Series{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func WriteSeries(w io.Writer, times, values []float64) error {
	if len(times) != len(values) {
		return fmt.Errorf("%w: %d times for %d values", ErrShapeMismatch, len(times), len(values))
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "value"}); err != nil {
		return err
	}
	for i := range values {
		row := []string{
			strconv.FormatFloat(times[i], 'g', -1, 64),
			strconv.FormatFloat(values[i], 'g', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
