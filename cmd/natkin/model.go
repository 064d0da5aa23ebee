package main

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/natkin/internal/config"
	"github.com/san-kum/natkin/internal/dynamics"
	"github.com/san-kum/natkin/internal/model"
	"github.com/san-kum/natkin/internal/segment"
)

const checkTolerance = 1e-9

var errCheckFailed = errors.New("model check failed")

func errUnknownPreset(name string) error {
	return errors.Errorf("unknown preset: %s (available: %v)", name, config.ListPresets())
}

func buildModel() (*config.Config, *model.Model, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	m, err := cfg.BuildModel(logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, m, nil
}

func inspectModel(cmd *cobra.Command, args []string) error {
	_, m, err := buildModel()
	if err != nil {
		return err
	}

	fmt.Println(styles.Heading("model " + m.Name()))
	fmt.Println(styles.KeyValue("segments", m.NbSegments()))
	fmt.Println(styles.KeyValue("joints", m.NbJoints()))
	fmt.Println(styles.KeyValue("coordinates", m.NbQ()))
	fmt.Println(styles.KeyValue("rigid constraints", m.NbRigidBodyConstraints()))
	fmt.Println(styles.KeyValue("joint constraints", m.NbJointConstraints()))
	fmt.Println(styles.KeyValue("technical markers", m.NbMarkers(segment.TechnicalMarkers)))
	fmt.Println(styles.KeyValue("anatomical markers", m.NbMarkers(segment.AnatomicalMarkers)))
	g := m.Gravity()
	fmt.Println(styles.KeyValue("gravity", fmt.Sprintf("(%g, %g, %g)", g.X, g.Y, g.Z)))
	fmt.Println()

	rows := make([][]string, 0, m.NbSegments())
	for _, s := range m.Segments() {
		mass := "-"
		if v, ok := s.Mass(); ok {
			mass = fmtFloat(v)
		}
		rows = append(rows, []string{
			strconv.Itoa(s.Index()), s.Name(), fmtFloat(s.Length()),
			fmtFloat(s.Alpha()), fmtFloat(s.Beta()), fmtFloat(s.Gamma()),
			mass, strconv.Itoa(s.NbMarkers()),
		})
	}
	fmt.Println(styles.Table([]string{"#", "SEGMENT", "LENGTH", "ALPHA", "BETA", "GAMMA", "MASS", "MARKERS"}, rows))

	if m.NbJoints() > 0 {
		rows = rows[:0]
		for i, j := range m.Joints() {
			rows = append(rows, []string{
				strconv.Itoa(j.Index()), j.Name(), j.Kind().String(), j.Parent(), j.Child(),
				strconv.Itoa(m.JointRowOffset(i)), strconv.Itoa(j.NbConstraints()),
			})
		}
		fmt.Println(styles.Table([]string{"#", "JOINT", "KIND", "PARENT", "CHILD", "ROW", "EQS"}, rows))
	}

	if markers := m.Markers(segment.AllMarkers); len(markers) > 0 {
		rows = rows[:0]
		for _, mk := range markers {
			p := mk.LocalPosition()
			rows = append(rows, []string{
				mk.Name(), mk.Parent(), yesNo(mk.IsTechnical()), yesNo(mk.IsAnatomical()),
				fmt.Sprintf("(%.3f, %.3f, %.3f)", p.X, p.Y, p.Z),
			})
		}
		fmt.Println(styles.Table([]string{"MARKER", "SEGMENT", "TECH", "ANAT", "LOCAL"}, rows))
	}
	return nil
}

// checkModel verifies that the reference pose satisfies the constraints, that
// every segment frame is right-handed and, when inertia is available, that
// the forward dynamics solve.
func checkModel(cmd *cobra.Command, args []string) error {
	cfg, m, err := buildModel()
	if err != nil {
		return err
	}
	fmt.Println(styles.Heading("check " + m.Name()))

	ok := true
	q := dynamics.ReferencePose(m)
	rigid, err := m.RigidBodyConstraints(q)
	if err != nil {
		return err
	}
	joints, err := m.JointConstraints(q)
	if err != nil {
		return err
	}
	rigidNorm, jointNorm := floats.Norm(rigid, 2), floats.Norm(joints, 2)
	fmt.Println(styles.KeyValue("rigid residual", styles.Residual(rigidNorm, checkTolerance)))
	fmt.Println(styles.KeyValue("joint residual", styles.Residual(jointNorm, checkTolerance)))
	ok = ok && rigidNorm < checkTolerance

	if jointNorm >= checkTolerance {
		projected, err := dynamics.Project(m, q)
		if err != nil {
			fmt.Println(styles.Status(false, "reference pose cannot be assembled: "+err.Error()))
			ok = false
		} else {
			q = projected
			fmt.Println(styles.Status(true, "assembled by projection"))
		}
	}

	for i, s := range m.Segments() {
		det := s.Determinant(q.Segment(i))
		fmt.Println(styles.Status(det > 0, fmt.Sprintf("%s frame determinant %.4f", s.Name(), det)))
		ok = ok && det > 0
	}

	if _, err := m.MassMatrix(); err != nil {
		fmt.Println(styles.Muted.Render("dynamics skipped: " + err.Error()))
	} else {
		sys := dynamics.New(m, dynamics.WithStabilization(cfg.Simulation.Stabilization), dynamics.WithLogger(logger))
		x, err := sys.State(q, nil)
		if err != nil {
			return err
		}
		qddot, lambda, err := sys.Accelerations(x, nil)
		if err != nil {
			fmt.Println(styles.Status(false, "forward dynamics: "+err.Error()))
			ok = false
		} else {
			fmt.Println(styles.KeyValue("energy", sys.Energy(x)))
			fmt.Println(styles.KeyValue("|Q̈|", floats.Norm(qddot, 2)))
			fmt.Println(styles.KeyValue("multipliers", len(lambda)))
		}
	}

	if !ok {
		return errCheckFailed
	}
	fmt.Println(styles.Status(true, "model is consistent"))
	return nil
}

func fmtFloat(v float64) string { return strconv.FormatFloat(v, 'g', 6, 64) }

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
