package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/san-kum/episim/internal/config"
	"github.com/san-kum/episim/internal/experiment"
	"github.com/san-kum/episim/internal/fit"
	"github.com/san-kum/episim/internal/logger"
	"github.com/san-kum/episim/internal/sim"
	"github.com/san-kum/episim/internal/storage"
	"github.com/san-kum/episim/internal/tui"
)

var (
	dataDir    string
	configFile string
	preset     string
	logLevel   string
	logFormat  string

	integrator string
	start      string
	end        string
	freq       string
	params     []string
	outputs    []string

	plot       bool
	observe    string
	observeOut string

	target         string
	fitParams      []string
	guess          []float64
	method         string
	xtol           float64
	ftol           float64
	gtol           float64
	maxIterations  int
	maxEvaluations int
	verbosity      int
	observedFile   string
	grid           []string
	useGrid        bool
	watch          bool

	sweepValues string
	workers     int

	compartments []string
	outFile      string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "episim",
		Short:        "stratified epidemic simulation and model fitting",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".episim", "data directory")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "use preset configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "text or json")

	scenarioFlags := func(cmd *cobra.Command) {
		cmd.Flags().StringVar(&integrator, "integrator", config.DefaultIntegrator, "integrator (euler, rk4, rk45)")
		cmd.Flags().StringVar(&start, "start", config.DefaultStart, "first clock tick")
		cmd.Flags().StringVar(&end, "end", config.DefaultEnd, "last clock tick")
		cmd.Flags().StringVar(&freq, "freq", config.DefaultFreq, "clock step, e.g. 1d or 12h")
		cmd.Flags().StringArrayVar(&params, "param", nil, "model input as process__name=value (repeatable)")
	}

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "run simulation",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	scenarioFlags(runCmd)
	runCmd.Flags().StringSliceVar(&outputs, "output", nil, "output variables (counts, prevalence)")
	runCmd.Flags().BoolVar(&plot, "plot", true, "plot prevalence")
	runCmd.Flags().StringVar(&observe, "observe", "", "compartment to write as a time,value series")
	runCmd.Flags().StringVar(&observeOut, "observe-out", "", "file for --observe (default stdout)")

	fitCmd := &cobra.Command{
		Use:   "fit [model]",
		Short: "fit model inputs to an observed series",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runFit,
	}
	scenarioFlags(fitCmd)
	fitCmd.Flags().StringVar(&target, "target", "", "compartment compared against the observations")
	fitCmd.Flags().StringSliceVar(&fitParams, "fit-param", nil, "inputs to estimate, process__name")
	fitCmd.Flags().Float64SliceVar(&guess, "guess", nil, "initial values, one per fitted input")
	fitCmd.Flags().StringVar(&method, "method", fit.MethodLBFGS, "optimizer: "+strings.Join(fit.Methods(), ", "))
	fitCmd.Flags().Float64Var(&xtol, "xtol", 1e-8, "step tolerance")
	fitCmd.Flags().Float64Var(&ftol, "ftol", 1e-8, "cost tolerance")
	fitCmd.Flags().Float64Var(&gtol, "gtol", 1e-8, "gradient tolerance")
	fitCmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "iteration cap (0 = none)")
	fitCmd.Flags().IntVar(&maxEvaluations, "max-evaluations", 0, "simulation cap (0 = none)")
	fitCmd.Flags().IntVarP(&verbosity, "verbose", "v", 0, "optimizer verbosity (0-2)")
	fitCmd.Flags().StringVar(&observedFile, "observed", "", "time,value csv of observations")
	fitCmd.Flags().StringArrayVar(&grid, "grid-range", nil, "grid for an input, process__name=lo:hi:n (repeatable)")
	fitCmd.Flags().BoolVar(&useGrid, "grid", false, "seed the guess with a grid search")
	fitCmd.Flags().BoolVar(&watch, "watch", false, "show fit progress")

	sweepCmd := &cobra.Command{
		Use:   "sweep [process__name]",
		Short: "run one simulation per value of an input",
		Args:  cobra.ExactArgs(1),
		RunE:  runSweep,
	}
	scenarioFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepValues, "values", "0.1:0.5:5", "values as lo:hi:n or a,b,c")
	sweepCmd.Flags().IntVar(&workers, "workers", 4, "concurrent runs")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run results",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringSliceVar(&compartments, "compartment", nil, "compartments to plot (default all)")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run data to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default stdout)")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default stdout)")

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list available presets for a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for model: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "list models and their inputs",
		RunE:  listModels,
	}

	rootCmd.AddCommand(runCmd, fitCmd, sweepCmd, listCmd, plotCmd, exportCSVCmd, exportJSONCmd, presetsCmd, modelsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig layers defaults, preset, config file, model argument and
// explicitly set flags, in that order.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		model := cfg.Model
		if len(args) > 0 {
			model = args[0]
		}
		p := config.GetPreset(model, preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(model))
		}
		cfg = p
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if len(args) > 0 {
		cfg.Model = args[0]
	}

	flags := cmd.Flags()
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("start") {
		cfg.Clock.Start = start
	}
	if flags.Changed("end") {
		cfg.Clock.End = end
	}
	if flags.Changed("freq") {
		cfg.Clock.Freq = freq
	}
	if len(params) > 0 {
		if cfg.Params == nil {
			cfg.Params = make(map[string]float64)
		}
		for _, p := range params {
			name, value, err := parseAssignment(p)
			if err != nil {
				return nil, err
			}
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("--param %s: %w", p, err)
			}
			cfg.Params[name] = v
		}
	}
	if flags.Changed("output") {
		cfg.Outputs = outputs
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = logFormat
	}

	logger.Configure(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	return cfg, nil
}

func parseAssignment(s string) (string, string, error) {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" || value == "" {
		return "", "", fmt.Errorf("expected process__name=value, got %q", s)
	}
	return strings.TrimSpace(name), strings.TrimSpace(value), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func newRunner() *experiment.Runner {
	return experiment.NewRunner(experiment.NewRegistry(), logger.Default)
}

func sortedMetricNames(m map[string]float64) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	setup, err := cfg.ToSetup()
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	fmt.Fprintf(os.Stderr, "running %s simulation...\n", setup.Model)
	started := time.Now()
	out, err := newRunner().Run(ctx, setup)
	if err != nil {
		return err
	}
	elapsed := time.Since(started)

	if observe != "" {
		return writeObservation(out, observe, observeOut)
	}

	runID, err := st.Save(setup, out)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("steps: %d\n", len(out.Times))
	fmt.Println("\nmetrics:")
	fmt.Print(tui.MetricsReport(sortedMetricNames(out.Metrics), out.Metrics))

	if plot {
		def, err := newRunner().Registry().GetModel(setup.Model)
		if err != nil {
			return err
		}
		var series [][]float64
		counts, err := out.Var(sim.VarCounts)
		if err != nil {
			return err
		}
		for _, c := range def.Prevalence {
			s, err := fit.Extract(counts, fit.ExtractOptions{Target: c})
			if err != nil {
				return err
			}
			series = append(series, s)
		}
		fmt.Println()
		fmt.Println(tui.Plot(strings.Join(def.Prevalence, ", ")+" vs day", series...))
	}
	return nil
}

func writeObservation(out *sim.Output, compartment, path string) error {
	counts, err := out.Var(sim.VarCounts)
	if err != nil {
		return err
	}
	values, err := fit.Extract(counts, fit.ExtractOptions{Target: compartment})
	if err != nil {
		return err
	}
	times := make([]float64, len(values))
	for i := range times {
		times[i] = out.Times[i].Sub(out.Times[0]).Hours() / 24
	}

	w := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return fit.WriteSeries(w, times, values)
}

func applyFitFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("target") {
		cfg.Fit.Target = target
	}
	if flags.Changed("fit-param") {
		cfg.Fit.Params = fitParams
	}
	if flags.Changed("guess") {
		cfg.Fit.Guess = guess
	}
	if flags.Changed("method") {
		cfg.Fit.Method = method
	}
	if flags.Changed("xtol") {
		cfg.Fit.XTol = xtol
	}
	if flags.Changed("ftol") {
		cfg.Fit.FTol = ftol
	}
	if flags.Changed("gtol") {
		cfg.Fit.GTol = gtol
	}
	if flags.Changed("max-iterations") {
		cfg.Fit.MaxIterations = maxIterations
	}
	if flags.Changed("max-evaluations") {
		cfg.Fit.MaxEvaluations = maxEvaluations
	}
	if flags.Changed("verbose") {
		cfg.Fit.Verbosity = verbosity
	}
	if flags.Changed("observed") {
		cfg.Fit.Observed = observedFile
	}
}

func runFit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	applyFitFlags(cmd, cfg)

	for _, g := range grid {
		name, spec, err := parseAssignment(g)
		if err != nil {
			return err
		}
		if cfg.Fit.Grid == nil {
			cfg.Fit.Grid = make(map[string]string)
		}
		cfg.Fit.Grid[name] = spec
	}

	if cfg.Fit.Observed == "" {
		return fmt.Errorf("no observations: pass --observed or set fit.observed")
	}
	observed, err := fit.LoadSeries(cfg.Fit.Observed)
	if err != nil {
		return err
	}
	setup, err := cfg.ToSetup()
	if err != nil {
		return err
	}
	keys, err := cfg.FitParams()
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runner := newRunner()
	fitCfg := fit.Config{
		Setup:    setup,
		Params:   keys,
		Guess:    cfg.Fit.Guess,
		Observed: observed.Values,
		Target:   cfg.Fit.Target,
		Options:  cfg.FitOptions(),
		Logger:   logger.Default,
	}

	var progress *tea.Program
	if watch {
		progress = tea.NewProgram(tui.NewFitProgress(cfg.Fit.Params, cancel))
		fitCfg.OnEvaluation = func(e fit.Evaluation) { progress.Send(tui.EvaluationMsg(e)) }
	}

	fitter, err := fit.New(runner, fitCfg)
	if err != nil {
		return err
	}

	ranges, err := cfg.GridRanges()
	if err != nil {
		return err
	}
	if !useGrid && len(grid) == 0 {
		ranges = nil
	}

	solve := func() (fit.Solution, error) {
		if ranges != nil {
			gs := fit.NewGridSearch(ranges)
			logger.Info("grid search", "points", gs.Size())
			best, cost, err := gs.Search(ctx, fitter.EvaluateResidual)
			if err != nil {
				return fit.Solution{}, err
			}
			logger.Info("grid best", "x", best, "cost", cost)
			if err := fitter.SetGuess(best); err != nil {
				return fit.Solution{}, err
			}
		}
		return fitter.Fit(ctx)
	}

	var sol fit.Solution
	if progress != nil {
		go func() {
			s, err := solve()
			progress.Send(tui.DoneMsg{Solution: s, Err: err})
		}()
		final, err := progress.Run()
		if err != nil {
			return err
		}
		done := final.(tui.FitProgress).Result()
		if done.Err != nil {
			return done.Err
		}
		sol = done.Solution
	} else {
		sol, err = solve()
		if err != nil {
			return err
		}
	}

	best, err := setup.WithAll(keys, sol.X)
	if err != nil {
		return err
	}
	out, err := runner.Run(ctx, best)
	if err != nil {
		return err
	}
	counts, err := out.Var(sim.VarCounts)
	if err != nil {
		return err
	}
	predicted, err := fit.Extract(counts, fit.ExtractOptions{Target: cfg.Fit.Target})
	if err != nil {
		return err
	}

	runID, err := st.SaveFit(best, out, storage.FitRecord{
		Target:      cfg.Fit.Target,
		Params:      cfg.Fit.Params,
		Guess:       fitter.Guess(),
		X:           sol.X,
		Cost:        sol.Cost,
		Status:      sol.Status,
		Converged:   sol.Converged,
		Message:     sol.Message,
		Iterations:  sol.Iterations,
		Evaluations: sol.Evaluations,
		Runtime:     sol.Runtime.String(),
		Observed:    observed.Values,
		Predicted:   predicted,
	})
	if err != nil {
		return err
	}

	fmt.Println(tui.FitReport(cfg.Fit.Params, fitter.Guess(), sol))
	fmt.Printf("run id: %s\n\n", runID)
	fmt.Println(tui.Plot(cfg.Fit.Target+" fitted vs observed", predicted, observed.Values))
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	key, err := sim.ParseVarKey(args[0])
	if err != nil {
		return err
	}
	values, err := fit.ParseRange(sweepValues)
	if err != nil {
		return err
	}
	base, err := cfg.ToSetup()
	if err != nil {
		return err
	}

	setups := make([]sim.Setup, len(values))
	for i, v := range values {
		setups[i] = base.With(key, v)
	}

	ctx, stop := signalContext()
	defer stop()

	started := time.Now()
	outs, err := sim.Batch(ctx, newRunner(), setups, workers)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%d runs in %v\n", len(outs), time.Since(started))

	if len(outs) == 0 {
		return fmt.Errorf("no values to sweep")
	}
	names := sortedMetricNames(outs[0].Metrics)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(key.String())+"\t"+strings.ToUpper(strings.Join(names, "\t")))
	for i, out := range outs {
		row := []string{strconv.FormatFloat(values[i], 'g', 6, 64)}
		for _, name := range names {
			row = append(row, strconv.FormatFloat(out.Metrics[name], 'g', 6, 64))
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return w.Flush()
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tMODEL\tTIME\tSTEPS\tINTEG\tPEAK")

	for _, run := range runs {
		integ := run.Integrator
		if integ == "" {
			integ = experiment.DefaultIntegrator
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%.1f\n",
			run.ID,
			run.Kind,
			run.Model,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Steps,
			integ,
			run.Metrics["peak_prevalence"],
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	series, err := st.LoadSeries(runID)
	if err != nil {
		return err
	}
	if len(series.Values) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s\n", meta.Model)
	fmt.Printf("samples: %d\n\n", len(series.Values))

	selected := compartments
	if len(selected) == 0 {
		selected = series.Compartments
	}
	for _, c := range selected {
		data, err := series.Column(c)
		if err != nil {
			return err
		}
		fmt.Println(tui.Plot(c+" vs day", data))
		fmt.Println()
	}

	if meta.Fit != nil && len(meta.Fit.Observed) > 0 {
		fmt.Println(tui.Plot(meta.Fit.Target+" fitted vs observed", meta.Fit.Predicted, meta.Fit.Observed))
	}
	return nil
}

func outputFile() (*os.File, func() error, error) {
	if outFile == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(outFile)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	f, closeFn, err := outputFile()
	if err != nil {
		return err
	}
	if err := storage.New(dataDir).ExportCSV(f, args[0]); err != nil {
		closeFn()
		return err
	}
	return closeFn()
}

func exportJSON(cmd *cobra.Command, args []string) error {
	f, closeFn, err := outputFile()
	if err != nil {
		return err
	}
	if err := storage.New(dataDir).ExportJSON(f, args[0]); err != nil {
		closeFn()
		return err
	}
	return closeFn()
}

func listModels(cmd *cobra.Command, args []string) error {
	registry := experiment.NewRegistry()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, name := range registry.ListModels() {
		def, err := registry.GetModel(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\n", name, strings.Join(def.Compartments, " "))
		for _, in := range def.Inputs {
			dflt := strconv.FormatFloat(in.Default, 'g', 6, 64)
			if in.Required {
				dflt = "required"
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\n", in.Key, dflt, in.Doc)
		}
	}
	fmt.Fprintf(w, "\nintegrators\t%s\n", strings.Join(registry.ListIntegrators(), " "))
	return w.Flush()
}
