// Package storage persists simulation and inverse-kinematics runs under a
// data directory, one sub-directory per run.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/san-kum/natkin/internal/ik"
	"github.com/san-kum/natkin/internal/model"
	"github.com/san-kum/natkin/internal/sim"
)

type Kind string

const (
	KindSimulation Kind = "simulation"
	KindIK         Kind = "ik"
)

const (
	metadataFile = "metadata.json"
	dataFile     = "data.csv"
	reportsFile  = "reports.json"
	modelFile    = "model.json"
)

var ErrNotFound = errors.New("storage: run not found")

type RunMetadata struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Model     string    `json:"model"`
	Timestamp time.Time `json:"timestamp"`

	Dt          float64 `json:"dt,omitempty"`
	Duration    float64 `json:"duration,omitempty"`
	Integrator  string  `json:"integrator,omitempty"`
	Controller  string  `json:"controller,omitempty"`
	Steps       int     `json:"steps,omitempty"`
	EnergyDrift float64 `json:"energy_drift,omitempty"`

	Frames    int `json:"frames,omitempty"`
	Converged int `json:"converged,omitempty"`

	// Columns names the data columns after the leading time column.
	Columns []string           `json:"columns"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
	Errors  []string           `json:"errors,omitempty"`
}

type Store struct {
	baseDir string
	logger  *zap.SugaredLogger
}

func New(baseDir string, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{baseDir: baseDir, logger: logger}
}

func (s *Store) Init() error {
	return errors.Wrap(os.MkdirAll(s.baseDir, 0o755), "create data directory")
}

func (s *Store) Dir() string { return s.baseDir }

// SaveSimulation records a simulation result. Missing column names default
// to x0, x1, ...
func (s *Store) SaveSimulation(meta RunMetadata, res *sim.Result) (string, error) {
	meta.Kind = KindSimulation
	meta.Steps = res.StepsTaken
	meta.EnergyDrift = res.EnergyDrift
	meta.Metrics = s.finite(res.Metrics)
	for _, err := range res.Errors {
		meta.Errors = append(meta.Errors, err.Error())
	}
	rows := make([][]float64, len(res.States))
	for i, x := range res.States {
		rows[i] = x
	}
	return s.save(meta, res.Times, rows, nil)
}

// SaveIK records the coordinates of every frame, indexed by frame number in
// the time column, together with the per-frame reports. Frames without a
// solution are written as NaN rows.
func (s *Store) SaveIK(meta RunMetadata, sol *ik.Solution) (string, error) {
	meta.Kind = KindIK
	meta.Frames = len(sol.Q)
	meta.Converged = 0
	for _, r := range sol.Reports {
		if r.Converged {
			meta.Converged++
		}
	}
	width := len(meta.Columns)
	for _, q := range sol.Q {
		if len(q) > width {
			width = len(q)
		}
	}
	times := make([]float64, len(sol.Q))
	rows := make([][]float64, len(sol.Q))
	for i, q := range sol.Q {
		times[i] = float64(i)
		if q == nil {
			q = make([]float64, width)
			for j := range q {
				q[j] = math.NaN()
			}
		}
		rows[i] = q
	}
	return s.save(meta, times, rows, sol.Reports)
}

func (s *Store) save(meta RunMetadata, times []float64, rows [][]float64, reports []ik.Report) (string, error) {
	meta.ID = fmt.Sprintf("%s-%s", meta.Kind, uuid.NewString())
	meta.Timestamp = time.Now().UTC()
	if len(meta.Columns) == 0 && len(rows) > 0 {
		meta.Columns = make([]string, len(rows[0]))
		for i := range meta.Columns {
			meta.Columns[i] = fmt.Sprintf("x%d", i)
		}
	}

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", errors.Wrap(err, "create run directory")
	}
	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := writeCSV(filepath.Join(runDir, dataFile), meta.Columns, times, rows); err != nil {
		return "", err
	}
	if reports != nil {
		if err := writeJSON(filepath.Join(runDir, reportsFile), reports); err != nil {
			return "", err
		}
	}
	s.logger.Debugw("run saved", "id", meta.ID, "kind", meta.Kind, "rows", len(rows))
	return meta.ID, nil
}

// SaveModel stores the model description next to a run.
func (s *Store) SaveModel(runID string, m *model.Model) error {
	return model.SaveFile(filepath.Join(s.baseDir, runID, modelFile), m)
}

func (s *Store) LoadModel(runID string) (*model.Model, error) {
	path := filepath.Join(s.baseDir, runID, modelFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, errors.Wrapf(ErrNotFound, "%s has no model", runID)
	}
	return model.LoadFile(path, s.logger)
}

// finite drops metrics that JSON cannot encode.
func (s *Store) finite(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			s.logger.Warnw("metric is not finite, not stored", "metric", k, "value", v)
			continue
		}
		out[k] = v
	}
	return out
}

// List returns every readable run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, errors.Wrap(err, "list runs")
	}

	runs := make([]RunMetadata, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			s.logger.Debugw("skipping directory", "name", entry.Name(), "error", err)
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	var meta RunMetadata
	if err := readJSON(filepath.Join(s.baseDir, runID, metadataFile), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadReports(runID string) ([]ik.Report, error) {
	var reports []ik.Report
	if err := readJSON(filepath.Join(s.baseDir, runID, reportsFile), &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

// Table is the data of a run: one row per recorded time.
type Table struct {
	Columns []string
	Times   []float64
	Rows    [][]float64
}

// Column returns the series of the named column, or "time".
func (t *Table) Column(name string) ([]float64, bool) {
	if name == "time" {
		return t.Times, true
	}
	for j, c := range t.Columns {
		if c != name {
			continue
		}
		out := make([]float64, len(t.Rows))
		for i, row := range t.Rows {
			out[i] = row[j]
		}
		return out, true
	}
	return nil, false
}

func (s *Store) LoadData(runID string) (*Table, error) {
	path := filepath.Join(s.baseDir, runID, dataFile)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "%s", runID)
		}
		return nil, errors.Wrap(err, "open run data")
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	if len(records) == 0 {
		return &Table{}, nil
	}

	t := &Table{
		Columns: records[0][1:],
		Times:   make([]float64, 0, len(records)-1),
		Rows:    make([][]float64, 0, len(records)-1),
	}
	for line, record := range records[1:] {
		values := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "%s line %d", path, line+2)
			}
			values[j] = v
		}
		t.Times = append(t.Times, values[0])
		t.Rows = append(t.Rows, values[1:])
	}
	return t, nil
}

func writeJSON(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create file")
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return errors.Wrapf(enc.Encode(v), "encode %s", filepath.Base(path))
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(ErrNotFound, "%s", path)
		}
		return errors.Wrap(err, "read file")
	}
	return errors.Wrapf(json.Unmarshal(data, v), "decode %s", filepath.Base(path))
}

func writeCSV(path string, columns []string, times []float64, rows [][]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create data file")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(append([]string{"time"}, columns...)); err != nil {
		return errors.Wrap(err, "write header")
	}
	record := make([]string, len(columns)+1)
	for i, row := range rows {
		if len(row) != len(columns) {
			return errors.Errorf("row %d has %d values, expected %d", i, len(row), len(columns))
		}
		record[0] = strconv.FormatFloat(times[i], 'g', -1, 64)
		for j, v := range row {
			record[j+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := w.Write(record); err != nil {
			return errors.Wrap(err, "write row")
		}
	}
	w.Flush()
	return errors.Wrap(w.Error(), "flush data")
}
