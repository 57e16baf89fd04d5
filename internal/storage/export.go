package storage

import (
	"encoding/json"
	"io"
	"os"
	"time"
)

type ExportData struct {
	RunMetadata
	Times  []time.Time `json:"times"`
	Series [][]float64 `json:"series"`
}

// ExportJSON writes a stored run's metadata and series as one document.
func (s *Store) ExportJSON(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	series, err := s.LoadSeries(runID)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(ExportData{
		RunMetadata: *meta,
		Times:       series.Times,
		Series:      series.Values,
	})
}

// ExportCSV copies a stored run's series.csv to w.
func (s *Store) ExportCSV(w io.Writer, runID string) error {
	f, err := os.Open(s.SeriesPath(runID))
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
