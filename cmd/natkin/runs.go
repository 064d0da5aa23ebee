package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/san-kum/natkin/internal/config"
	"github.com/san-kum/natkin/internal/experiment"
	"github.com/san-kum/natkin/internal/integrators"
	"github.com/san-kum/natkin/internal/natural"
	"github.com/san-kum/natkin/internal/segment"
	"github.com/san-kum/natkin/internal/storage"
	"github.com/san-kum/natkin/internal/viz"
)

const maxDefaultPlots = 3

func listRuns(cmd *cobra.Command, args []string) error {
	fmt.Println(styles.KeyValue("presets", config.ListPresets()))
	fmt.Println(styles.KeyValue("integrators", integrators.Names()))
	fmt.Println(styles.KeyValue("controllers", experiment.ControllerNames()))
	fmt.Println(styles.KeyValue("themes", viz.ThemeNames()))
	fmt.Println()

	runs, err := storage.New(dataDir, logger).List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println(styles.Muted.Render("no runs found in " + dataDir))
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		detail := fmt.Sprintf("%d/%d converged", run.Converged, run.Frames)
		if run.Kind == storage.KindSimulation {
			detail = fmt.Sprintf("%s %gs dt=%g %s", run.Integrator, run.Duration, run.Dt, run.Controller)
		}
		rows = append(rows, []string{
			run.ID,
			string(run.Kind),
			run.Model,
			run.Timestamp.Local().Format("2006-01-02 15:04:05"),
			detail,
		})
	}
	fmt.Println(styles.Table([]string{"ID", "KIND", "MODEL", "TIME", "DETAIL"}, rows))
	return nil
}

// plotRun plots the named columns, or the first few when none are given.
func plotRun(cmd *cobra.Command, args []string) error {
	runID, columns := args[0], args[1:]

	st := storage.New(dataDir, logger)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	table, err := st.LoadData(runID)
	if err != nil {
		return err
	}
	if len(table.Rows) == 0 {
		return errors.New("no data to plot")
	}
	if len(columns) == 0 {
		columns = table.Columns[:min(maxDefaultPlots, len(table.Columns))]
	}

	fmt.Println(styles.Heading(fmt.Sprintf("%s (%s)", meta.ID, meta.Model)))
	fmt.Println(styles.KeyValue("samples", len(table.Rows)))
	fmt.Println()

	opts := viz.DefaultPlotOptions()
	opts.Height, opts.Width = plotHeight, plotWidth
	for _, name := range columns {
		series, ok := table.Column(name)
		if !ok {
			return errors.Errorf("run %s has no column %q", runID, name)
		}
		opts.Caption = name
		graph := viz.Plot([][]float64{series}, opts)
		if graph == "" {
			fmt.Println(styles.Muted.Render(name + ": no finite samples"))
			continue
		}
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) (err error) {
	runID := args[0]
	st := storage.New(dataDir, logger)

	var w io.Writer = os.Stdout
	if output != "" {
		f, cerr := os.Create(output)
		if cerr != nil {
			return errors.Wrap(cerr, "create output")
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}

	switch format {
	case "json":
		meta, err := st.Load(runID)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	case "csv":
		table, err := st.LoadData(runID)
		if err != nil {
			return err
		}
		return writeTable(w, table)
	case "markers":
		m, err := st.LoadModel(runID)
		if err != nil {
			return err
		}
		table, err := st.LoadData(runID)
		if err != nil {
			return err
		}
		names, frames, err := virtualMarkers(m, table.Rows)
		if err != nil {
			return err
		}
		return storage.WriteMarkers(w, names, frames)
	case "svg":
		svg, err := stickFigure(st, runID)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, svg)
		return err
	}
	return errors.Errorf("unknown format %q (json, csv, markers, svg)", format)
}

// stickFigure draws the segments and markers of one row of a run.
func stickFigure(st *storage.Store, runID string) (string, error) {
	p, err := viz.ParsePlane(plane)
	if err != nil {
		return "", err
	}
	m, err := st.LoadModel(runID)
	if err != nil {
		return "", err
	}
	table, err := st.LoadData(runID)
	if err != nil {
		return "", err
	}
	i := frame
	if i < 0 {
		i += len(table.Rows)
	}
	if i < 0 || i >= len(table.Rows) {
		return "", errors.Errorf("frame %d out of range [0, %d)", frame, len(table.Rows))
	}
	_, frames, err := virtualMarkers(m, table.Rows[i:i+1])
	if err != nil {
		return "", err
	}

	q := natural.Coordinates(table.Rows[i][:m.NbQ()])
	bones := make([]viz.Bone, m.NbSegments())
	for j, s := range m.Segments() {
		b := q.Segment(j)
		bones[j] = viz.Bone{Name: s.Name(), Proximal: b.Rp(), Distal: b.Rd()}
	}
	markers := make([]r3.Vector, 0, len(frames[0]))
	for _, name := range m.MarkerNames(segment.AllMarkers) {
		markers = append(markers, frames[0][name])
	}
	return viz.StickFigureSVG(bones, markers, p, 600, 600, styles.Theme), nil
}

func writeTable(w io.Writer, t *storage.Table) error {
	if _, err := fmt.Fprint(w, "time"); err != nil {
		return err
	}
	for _, c := range t.Columns {
		fmt.Fprint(w, ",", c)
	}
	fmt.Fprintln(w)
	for i, row := range t.Rows {
		fmt.Fprint(w, strconv.FormatFloat(t.Times[i], 'g', -1, 64))
		for _, v := range row {
			fmt.Fprint(w, ",", strconv.FormatFloat(v, 'g', -1, 64))
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}
