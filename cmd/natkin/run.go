package main

import (
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/san-kum/natkin/internal/experiment"
	"github.com/san-kum/natkin/internal/ik"
	"github.com/san-kum/natkin/internal/model"
	"github.com/san-kum/natkin/internal/natural"
	"github.com/san-kum/natkin/internal/segment"
	"github.com/san-kum/natkin/internal/storage"
	"github.com/san-kum/natkin/internal/viz"
)

const sparkWidth = 60

// stateColumns names the entries of a [Q; Q̇] state.
func stateColumns(m *model.Model) []string {
	q := m.CoordinateNames()
	cols := make([]string, 0, 2*len(q))
	cols = append(cols, q...)
	for _, name := range q {
		cols = append(cols, name+"_dot")
	}
	return cols
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("integrator") {
		cfg.Simulation.Integrator = integrator
	}
	if flags.Changed("controller") {
		cfg.Simulation.Controller = controller
	}
	if flags.Changed("dt") {
		cfg.Simulation.Dt = dt
	}
	if flags.Changed("time") {
		cfg.Simulation.Duration = duration
	}
	if flags.Changed("adaptive") {
		cfg.Simulation.Adaptive = adaptive
	}

	exp, err := experiment.New(cfg, logger)
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}

	start := time.Now()
	result, err := exp.Run(cmd.Context())
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	meta := storage.RunMetadata{
		Model:      exp.Model().Name(),
		Dt:         cfg.Simulation.Dt,
		Duration:   cfg.Simulation.Duration,
		Integrator: cfg.Simulation.Integrator,
		Controller: cfg.Simulation.Controller,
		Columns:    stateColumns(exp.Model()),
	}
	runID, err := st.SaveSimulation(meta, result)
	if err != nil {
		return err
	}
	if err := st.SaveModel(runID, exp.Model()); err != nil {
		return err
	}

	fmt.Println(styles.Heading("simulate " + exp.Model().Name()))
	fmt.Println(styles.KeyValue("run id", runID))
	fmt.Println(styles.KeyValue("elapsed", elapsed.Round(time.Millisecond).String()))
	fmt.Println(styles.KeyValue("steps", result.StepsTaken))
	fmt.Println(styles.KeyValue("energy drift", result.EnergyDrift))
	printMetrics(result.Metrics)

	sys := exp.System()
	residuals := make([]float64, len(result.States))
	energies := make([]float64, len(result.States))
	for i, x := range result.States {
		residuals[i] = sys.ConstraintResidual(x)
		energies[i] = sys.Energy(x)
	}
	fmt.Println(styles.KeyValue("constraint |Φ|", viz.Sparkline(residuals, sparkWidth)))
	fmt.Println(styles.KeyValue("energy", viz.Sparkline(energies, sparkWidth)))

	for _, e := range result.Errors {
		fmt.Println(styles.Status(false, e.Error()))
	}
	return nil
}

func printMetrics(metrics map[string]float64) {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Println(styles.KeyValue(name, metrics[name]))
	}
}

func runIK(cmd *cobra.Command, args []string) error {
	cfg, m, err := buildModel()
	if err != nil {
		return err
	}
	f, err := os.Open(args[0])
	if err != nil {
		return errors.Wrap(err, "open markers")
	}
	names, frames, err := storage.ReadMarkers(f)
	f.Close()
	if err != nil {
		return err
	}

	opts := cfg.IK
	if cmd.Flags().Changed("anatomical") {
		opts.Anatomical = anatomical
	}
	if maxIter > 0 {
		opts.MaxIterations = maxIter
	}
	filter := segment.TechnicalMarkers
	if opts.Anatomical {
		filter = segment.AllMarkers
	}
	reportCoverage(m.MarkerNames(filter), names)

	start := time.Now()
	sol, solveErr := ik.New(m, opts, ik.WithLogger(logger)).Solve(cmd.Context(), frames)
	if sol == nil {
		return solveErr
	}
	for _, e := range multierr.Errors(solveErr) {
		logger.Warnw("frame failed", "error", e)
	}
	elapsed := time.Since(start)

	st, err := openStore()
	if err != nil {
		return err
	}
	runID, err := st.SaveIK(storage.RunMetadata{Model: m.Name(), Columns: m.CoordinateNames()}, sol)
	if err != nil {
		return err
	}
	if err := st.SaveModel(runID, m); err != nil {
		return err
	}

	converged, worst := 0, ik.Report{}
	rms := make([]float64, len(sol.Reports))
	for i, r := range sol.Reports {
		rms[i] = r.MarkerRMS
		if sol.Q[i] == nil {
			rms[i] = math.NaN()
		}
		if r.Converged {
			converged++
		}
		if r.WorstDistance > worst.WorstDistance {
			worst = r
		}
	}

	fmt.Println(styles.Heading("ik " + m.Name()))
	fmt.Println(styles.KeyValue("run id", runID))
	fmt.Println(styles.KeyValue("elapsed", elapsed.Round(time.Millisecond).String()))
	fmt.Println(styles.KeyValue("frames", len(frames)))
	fmt.Println(styles.Status(converged == len(frames), fmt.Sprintf("%d/%d frames converged", converged, len(frames))))
	fmt.Println(styles.KeyValue("marker rms", viz.Sparkline(rms, sparkWidth)))
	if worst.WorstMarker != "" {
		fmt.Println(styles.KeyValue("worst marker", fmt.Sprintf("%s at frame %d (%.4g)", worst.WorstMarker, worst.Frame, worst.WorstDistance)))
	}
	if solveErr != nil {
		return errors.Errorf("%d frame(s) failed", len(multierr.Errors(solveErr)))
	}
	return nil
}

// reportCoverage logs model markers missing from the file and file columns
// the model does not track.
func reportCoverage(tracked, columns []string) {
	inFile := make(map[string]bool, len(columns))
	for _, name := range columns {
		inFile[name] = true
	}
	known := make(map[string]bool, len(tracked))
	for _, name := range tracked {
		known[name] = true
		if !inFile[name] {
			logger.Warnw("tracked marker missing from file", "marker", name)
		}
	}
	for _, name := range columns {
		if !known[name] {
			logger.Debugw("ignoring untracked marker", "marker", name)
		}
	}
}

// virtualMarkers places every model marker on the coordinates leading each
// row.
func virtualMarkers(m *model.Model, rows [][]float64) ([]string, []natural.MarkerFrame, error) {
	names := m.MarkerNames(segment.AllMarkers)
	frames := make([]natural.MarkerFrame, len(rows))
	for i, x := range rows {
		if len(x) < m.NbQ() {
			return nil, nil, natural.CheckDim(fmt.Sprintf("row %d", i), m.NbQ(), len(x))
		}
		positions, err := m.MarkersPositions(natural.Coordinates(x[:m.NbQ()]), segment.AllMarkers)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "row %d", i)
		}
		frame := make(natural.MarkerFrame, len(names))
		for j, name := range names {
			frame[name] = positions[j]
		}
		frames[i] = frame
	}
	return names, frames, nil
}
