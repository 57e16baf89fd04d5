package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/episim/internal/labeled"
	"github.com/san-kum/episim/internal/sim"
)

const (
	metadataFile = "metadata.json"
	seriesFile   = "series.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID           string             `json:"id"`
	Kind         string             `json:"kind"`
	Model        string             `json:"model"`
	Integrator   string             `json:"integrator"`
	Timestamp    time.Time          `json:"timestamp"`
	Start        time.Time          `json:"start"`
	Steps        int                `json:"steps"`
	Inputs       map[string]float64 `json:"inputs"`
	Coords       sim.Coords         `json:"coords"`
	Compartments []string           `json:"compartments"`
	Metrics      map[string]float64 `json:"metrics"`
	Fit          *FitRecord         `json:"fit,omitempty"`
}

// FitRecord is the outcome of a fit stored next to the best-fit run.
type FitRecord struct {
	Target      string    `json:"target"`
	Params      []string  `json:"params"`
	Guess       []float64 `json:"guess"`
	X           []float64 `json:"x"`
	Cost        float64   `json:"cost"`
	Status      string    `json:"status"`
	Converged   bool      `json:"converged"`
	Message     string    `json:"message"`
	Iterations  int       `json:"iterations"`
	Evaluations int       `json:"evaluations"`
	Runtime     string    `json:"runtime"`
	Observed    []float64 `json:"observed"`
	Predicted   []float64 `json:"predicted"`
}

const (
	KindRun = "run"
	KindFit = "fit"
)

// Save stores a run as metadata.json and series.csv, the latter holding the
// compartment totals summed over every stratum.
func (s *Store) Save(setup sim.Setup, out *sim.Output) (string, error) {
	return s.save(KindRun, setup, out, nil)
}

func (s *Store) SaveFit(setup sim.Setup, out *sim.Output, rec FitRecord) (string, error) {
	return s.save(KindFit, setup, out, &rec)
}

func (s *Store) save(kind string, setup sim.Setup, out *sim.Output, rec *FitRecord) (string, error) {
	counts, err := out.Var(sim.VarCounts)
	if err != nil {
		return "", err
	}
	totals, err := counts.SumExcept(sim.DimStep, sim.DimCompartment)
	if err != nil {
		return "", err
	}
	compartments, err := totals.Coords(sim.DimCompartment)
	if err != nil {
		return "", err
	}

	now := time.Now()
	runID := fmt.Sprintf("%s_%s_%d", kind, setup.Model, now.UnixNano())
	runDir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	inputs := make(map[string]float64, len(setup.Inputs))
	for k, v := range setup.Inputs {
		inputs[k.String()] = v
	}
	meta := RunMetadata{
		ID:           runID,
		Kind:         kind,
		Model:        setup.Model,
		Integrator:   setup.Integrator,
		Timestamp:    now,
		Steps:        len(out.Times),
		Inputs:       inputs,
		Coords:       setup.Coords,
		Compartments: compartments,
		Metrics:      out.Metrics,
		Fit:          rec,
	}
	if len(out.Times) > 0 {
		meta.Start = out.Times[0]
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := writeSeries(filepath.Join(runDir, seriesFile), out.Times, compartments, totals); err != nil {
		return "", err
	}
	return runID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeSeries(path string, times []time.Time, compartments []string, totals *labeled.Array) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(append([]string{"time"}, compartments...)); err != nil {
		return err
	}
	for i, t := range times {
		row := []string{t.Format(sim.ClockLayout)}
		for _, v := range totals.Slab(i) {
			row = append(row, strconv.FormatFloat(v, 'f', 6, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns stored runs, oldest first. Unreadable entries are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Series is the per-compartment totals of a stored run.
type Series struct {
	Times        []time.Time
	Compartments []string
	// Values[i][j] is compartment j at Times[i].
	Values [][]float64
}

// Column returns the series of one compartment.
func (s *Series) Column(compartment string) ([]float64, error) {
	for j, c := range s.Compartments {
		if c == compartment {
			col := make([]float64, len(s.Values))
			for i, row := range s.Values {
				col[i] = row[j]
			}
			return col, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", labeled.ErrNoSuchLabel, compartment)
}

func (s *Store) SeriesPath(runID string) string {
	return filepath.Join(s.baseDir, runID, seriesFile)
}

func (s *Store) LoadSeries(runID string) (*Series, error) {
	file, err := os.Open(s.SeriesPath(runID))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: empty series", runID)
	}

	series := &Series{Compartments: records[0][1:]}
	for n, record := range records[1:] {
		t, err := time.Parse(sim.ClockLayout, record[0])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", runID, n+2, err)
		}
		row := make([]float64, len(record)-1)
		for j, field := range record[1:] {
			if row[j], err = strconv.ParseFloat(field, 64); err != nil {
				return nil, fmt.Errorf("%s line %d: %w", runID, n+2, err)
			}
		}
		series.Times = append(series.Times, t)
		series.Values = append(series.Values, row)
	}
	return series, nil
}
