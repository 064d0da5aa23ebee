package storage

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest"

	"github.com/san-kum/natkin/internal/ik"
	"github.com/san-kum/natkin/internal/model"
	"github.com/san-kum/natkin/internal/natural"
	"github.com/san-kum/natkin/internal/segment"
	"github.com/san-kum/natkin/internal/sim"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	st := New(dir, zaptest.NewLogger(t).Sugar())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	return st, dir
}

func TestStoreSaveSimulation(t *testing.T) {
	st, dir := newStore(t)

	result := &sim.Result{
		States:      []sim.State{{1.0, 0.0}, {0.9, -0.1}},
		Times:       []float64{0.0, 0.01},
		StepsTaken:  1,
		EnergyDrift: 1e-3,
		Metrics:     map[string]float64{"energy": 1.5, "constraint_drift": math.Inf(1)},
		Errors:      []error{sim.SimError{Step: 1, Time: 0.01, Message: "invalid state"}},
	}

	runID, err := st.SaveSimulation(RunMetadata{Model: "test", Dt: 0.01, Integrator: "rk4", Columns: []string{"q", "qdot"}}, result)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !strings.HasPrefix(runID, "simulation-") {
		t.Errorf("unexpected run id %q", runID)
	}
	for _, name := range []string{metadataFile, dataFile} {
		if _, err := os.Stat(filepath.Join(dir, runID, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Model != "test" || meta.Kind != KindSimulation || meta.Steps != 1 {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if meta.Metrics["energy"] != 1.5 {
		t.Errorf("expected energy 1.5, got %f", meta.Metrics["energy"])
	}
	if _, ok := meta.Metrics["constraint_drift"]; ok {
		t.Error("non-finite metric should not be stored")
	}
	if len(meta.Errors) != 1 {
		t.Errorf("expected 1 error, got %v", meta.Errors)
	}

	table, err := st.LoadData(runID)
	if err != nil {
		t.Fatalf("load data failed: %v", err)
	}
	if len(table.Rows) != 2 || len(table.Times) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(table.Rows))
	}
	qdot, ok := table.Column("qdot")
	if !ok || qdot[1] != -0.1 {
		t.Errorf("qdot column = %v", qdot)
	}
	if times, _ := table.Column("time"); times[1] != 0.01 {
		t.Errorf("time column = %v", times)
	}
	if _, ok := table.Column("missing"); ok {
		t.Error("unknown column reported present")
	}
}

func TestStoreDefaultColumns(t *testing.T) {
	st, _ := newStore(t)
	runID, err := st.SaveSimulation(RunMetadata{Model: "m"}, &sim.Result{
		States: []sim.State{{1, 2, 3}},
		Times:  []float64{0},
	})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if strings.Join(meta.Columns, ",") != "x0,x1,x2" {
		t.Errorf("columns = %v", meta.Columns)
	}
}

func TestStoreSaveIK(t *testing.T) {
	st, _ := newStore(t)

	q := natural.NewCoordinates(segment.New("arm", math.Pi/2, math.Pi/2, math.Pi/2, 1).ReferenceQ())
	sol := &ik.Solution{
		Q: []natural.Coordinates{q, nil},
		Reports: []ik.Report{
			{Frame: 0, Converged: true, Visible: 3, Determinants: []float64{1}},
			{Frame: 1},
		},
	}
	m := model.New("arm")
	if err := m.AddSegment(segment.New("arm", math.Pi/2, math.Pi/2, math.Pi/2, 1)); err != nil {
		t.Fatal(err)
	}

	runID, err := st.SaveIK(RunMetadata{Model: "arm", Columns: m.CoordinateNames()}, sol)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := st.SaveModel(runID, m); err != nil {
		t.Fatalf("save model failed: %v", err)
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Frames != 2 || meta.Converged != 1 {
		t.Errorf("frames=%d converged=%d", meta.Frames, meta.Converged)
	}

	table, err := st.LoadData(runID)
	if err != nil {
		t.Fatalf("load data failed: %v", err)
	}
	rdY, _ := table.Column("arm.rd.y")
	if rdY[0] != -1 || !math.IsNaN(rdY[1]) {
		t.Errorf("arm.rd.y = %v", rdY)
	}

	reports, err := st.LoadReports(runID)
	if err != nil {
		t.Fatalf("load reports failed: %v", err)
	}
	if len(reports) != 2 || !reports[0].Converged {
		t.Errorf("reports = %+v", reports)
	}

	loaded, err := st.LoadModel(runID)
	if err != nil {
		t.Fatalf("load model failed: %v", err)
	}
	if loaded.NbSegments() != 1 {
		t.Errorf("expected 1 segment, got %d", loaded.NbSegments())
	}
}

func TestStoreList(t *testing.T) {
	st, dir := newStore(t)

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}

	result := &sim.Result{States: []sim.State{{1.0}}, Times: []float64{0.0}}
	first, err := st.SaveSimulation(RunMetadata{Model: "a"}, result)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	second, err := st.SaveSimulation(RunMetadata{Model: "b"}, result)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "stray"), 0o755); err != nil {
		t.Fatal(err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != first || runs[1].ID != second {
		t.Errorf("runs out of order: %s, %s", runs[0].ID, runs[1].ID)
	}
}

func TestStoreMissingRun(t *testing.T) {
	st, _ := newStore(t)
	if _, err := st.Load("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load: expected ErrNotFound, got %v", err)
	}
	if _, err := st.LoadData("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadData: expected ErrNotFound, got %v", err)
	}
	if _, err := st.LoadModel("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadModel: expected ErrNotFound, got %v", err)
	}

	runs, err := New(filepath.Join(t.TempDir(), "absent"), nil).List()
	if err != nil || len(runs) != 0 {
		t.Errorf("List on absent dir = %v, %v", runs, err)
	}
}
