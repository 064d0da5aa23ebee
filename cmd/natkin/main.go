package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/natkin/internal/config"
	"github.com/san-kum/natkin/internal/logging"
	"github.com/san-kum/natkin/internal/storage"
	"github.com/san-kum/natkin/internal/viz"
)

var (
	dataDir    string
	logLevel   string
	themeName  string
	configFile string
	preset     string

	// simulate
	integrator string
	controller string
	dt         float64
	duration   float64
	adaptive   bool

	// ik
	anatomical bool
	maxIter    int

	// plot / export
	plotHeight int
	plotWidth  int
	format     string
	output     string
	frame      int
	plane      string

	logger *zap.SugaredLogger
	styles *viz.Styles
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "natkin",
		Short:        "natural-coordinates multibody kinematics",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if logger, err = logging.NewLogger("natkin", logLevel); err != nil {
				return err
			}
			theme, err := viz.LookupTheme(themeName)
			if err != nil {
				return err
			}
			styles = viz.NewStyles(theme)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", config.DefaultDataDir, "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&themeName, "theme", viz.ThemeOcean.Name, "output theme")

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "describe a model",
		Args:  cobra.NoArgs,
		RunE:  inspectModel,
	}
	modelFlags(inspectCmd)

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "evaluate constraints and dynamics at the reference pose",
		Args:  cobra.NoArgs,
		RunE:  checkModel,
	}
	modelFlags(checkCmd)

	ikCmd := &cobra.Command{
		Use:   "ik [markers.csv]",
		Short: "reconstruct coordinates from marker trajectories",
		Args:  cobra.ExactArgs(1),
		RunE:  runIK,
	}
	modelFlags(ikCmd)
	ikCmd.Flags().BoolVar(&anatomical, "anatomical", false, "also track anatomical markers")
	ikCmd.Flags().IntVar(&maxIter, "max-iter", 0, "iteration limit per frame (0 keeps the configured value)")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "run a forward-dynamics simulation",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	modelFlags(simulateCmd)
	simulateCmd.Flags().StringVar(&integrator, "integrator", config.DefaultIntegrator, "integrator")
	simulateCmd.Flags().StringVar(&controller, "controller", config.DefaultController, "controller")
	simulateCmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "timestep")
	simulateCmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "duration")
	simulateCmd.Flags().BoolVar(&adaptive, "adaptive", false, "adaptive step size")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs, presets and integrators",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id] [column...]",
		Short: "plot run columns against time",
		Args:  cobra.MinimumNArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().IntVar(&plotHeight, "height", 10, "plot height")
	plotCmd.Flags().IntVar(&plotWidth, "width", 80, "plot width")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run metadata, data or marker trajectories",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVar(&format, "format", "json", "json, csv, markers or svg")
	exportCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	exportCmd.Flags().IntVar(&frame, "frame", -1, "row drawn by svg (negative counts from the end)")
	exportCmd.Flags().StringVar(&plane, "plane", string(viz.PlaneYZ), "svg projection plane (xy, xz, yz)")

	rootCmd.AddCommand(inspectCmd, checkCmd, ikCmd, simulateCmd, listCmd, plotCmd, exportCmd)
	return rootCmd
}

func modelFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "pendulum", "built-in configuration")
}

// loadConfig reads --config when given and falls back to --preset.
func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	cfg := config.GetPreset(preset)
	if cfg == nil {
		return nil, errUnknownPreset(preset)
	}
	return cfg, nil
}

func openStore() (*storage.Store, error) {
	st := storage.New(dataDir, logger)
	return st, st.Init()
}
