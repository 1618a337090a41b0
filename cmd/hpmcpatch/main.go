package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/hpmcpatch/internal/compute"
	"github.com/san-kum/hpmcpatch/internal/config"
	"github.com/san-kum/hpmcpatch/internal/experiment"
	"github.com/san-kum/hpmcpatch/internal/jit"
	"github.com/san-kum/hpmcpatch/internal/kernel"
	"github.com/san-kum/hpmcpatch/internal/optim"
	"github.com/san-kum/hpmcpatch/internal/patch"
	"github.com/san-kum/hpmcpatch/internal/storage"
	"github.com/san-kum/hpmcpatch/internal/viz"
)

var (
	dataDir     string
	configFile  string
	preset      string
	device      string
	compiler    string
	settings    string
	steps       int
	seed        int64
	kT          float64
	moveSize    float64
	perSide     int
	storeKind   string
	storePath   string
	recordsDB   string
	recordsKind string
	target      string
	scanFrom    float64
	scanTo      float64
	scanPoints  int
	exportOut   string
	exportStore string
	sweepRanges []string
	sweepMetric string
)

// main registers the commands and flags and executes the root command. It
// exits with status 1 when the command fails.
func main() {
	rootCmd := &cobra.Command{
		Use:           "hpmcpatch",
		Short:         "runtime-compiled patch potentials for hard particle monte carlo",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".hpmcpatch", "data directory")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "compile a potential, attach it and run the move engine",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	runCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	runCmd.Flags().StringVar(&preset, "preset", "square_well", "potential preset")
	runCmd.Flags().StringVar(&device, "device", "auto", "device (cpu, gpu, auto)")
	runCmd.Flags().StringVar(&compiler, "compiler", "go", "compiler (go, toolchain)")
	runCmd.Flags().StringVar(&settings, "settings", "", "compiler settings file (ini)")
	runCmd.Flags().IntVar(&steps, "steps", config.DefaultSteps, "monte carlo sweeps")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "random seed")
	runCmd.Flags().Float64Var(&kT, "kt", config.DefaultKT, "temperature")
	runCmd.Flags().Float64Var(&moveSize, "move", config.DefaultMoveSize, "maximum displacement per trial")
	runCmd.Flags().IntVar(&perSide, "per-side", config.DefaultPerSide, "particles per lattice side")
	runCmd.Flags().StringVar(&storeKind, "store", "memory", "record store (memory, sqlite)")
	runCmd.Flags().StringVar(&storePath, "db", "", "sqlite database path (default <data>/records.db)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot the energy trace of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a run with its energies as json",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVar(&exportOut, "out", "", "write to this file instead of stdout")
	exportCmd.Flags().StringVar(&exportStore, "store", "", "include the potential record from this store (memory, sqlite)")
	exportCmd.Flags().StringVar(&recordsDB, "db", "", "sqlite database path (default <data>/records.db)")

	sourceCmd := &cobra.Command{
		Use:   "source [preset]",
		Short: "print the generated translation units of a preset",
		Args:  cobra.ExactArgs(1),
		RunE:  printSource,
	}
	sourceCmd.Flags().StringVar(&target, "target", "cpu", "target (cpu, gpu)")
	sourceCmd.Flags().StringVar(&settings, "settings", "", "compiler settings file (ini)")

	scanCmd := &cobra.Command{
		Use:   "scan [preset]",
		Short: "plot a preset's pair energy against separation",
		Args:  cobra.ExactArgs(1),
		RunE:  scanPreset,
	}
	scanCmd.Flags().Float64Var(&scanFrom, "from", 0.8, "smallest separation")
	scanCmd.Flags().Float64Var(&scanTo, "to", 3.0, "largest separation")
	scanCmd.Flags().IntVar(&scanPoints, "points", 80, "number of samples")
	scanCmd.Flags().StringVar(&settings, "settings", "", "compiler settings file (ini)")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "grid search run parameters for the smallest metric",
		Args:  cobra.NoArgs,
		RunE:  sweepParams,
	}
	sweepCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	sweepCmd.Flags().StringVar(&preset, "preset", "square_well", "potential preset")
	sweepCmd.Flags().IntVar(&steps, "steps", config.DefaultSteps, "monte carlo sweeps per point")
	sweepCmd.Flags().StringArrayVar(&sweepRanges, "range", nil, "parameter range name=v1,v2,... (kt, move, param.N, constituent.N)")
	sweepCmd.Flags().StringVar(&sweepMetric, "metric", "mean_energy", "metric to minimize")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list potential presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tKIND\tRANGE\tDESCRIPTION")
			for _, name := range config.ListPresets() {
				p := config.GetPreset(name)
				rcut := p.Potential.RCut
				if p.Potential.Kind == patch.KindUnion {
					rcut = p.Potential.RCutConstituent
				}
				fmt.Fprintf(w, "%s\t%s\t%g\t%s\n", name, p.Potential.Kind, rcut, p.Description)
			}
			return w.Flush()
		},
	}

	recordsCmd := &cobra.Command{
		Use:   "records [id]",
		Short: "list stored potential records, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showRecords,
	}
	recordsCmd.Flags().StringVar(&recordsKind, "store", "sqlite", "record store (memory, sqlite)")
	recordsCmd.Flags().StringVar(&recordsDB, "db", "", "sqlite database path (default <data>/records.db)")

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "show compute devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tAVAILABLE\tGPU\tARCH")
			for _, d := range []compute.Device{compute.NewCPU(), compute.NewCUDA()} {
				fmt.Fprintf(w, "%s\t%v\t%v\t%d\n", d.Name(), d.Available(), d.GPU(), d.Arch())
				d.Cleanup()
			}
			return w.Flush()
		},
	}

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "write a default run config, or the example compiler settings with --settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if writeSettings, _ := cmd.Flags().GetBool("settings"); writeSettings {
				return os.WriteFile(args[0], []byte(config.ExampleSettingsFile), 0644)
			}
			return config.Save(args[0], config.DefaultConfig())
		},
	}
	initCmd.Flags().Bool("settings", false, "write compiler settings instead of a run config")

	rootCmd.AddCommand(runCmd, listCmd, plotCmd, exportCmd, sourceCmd, scanCmd, sweepCmd, presetsCmd, recordsCmd, devicesCmd, initCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, viz.Failure(err))
		os.Exit(1)
	}
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	// CLI flags override config
	flags := cmd.Flags()
	if configFile == "" || flags.Changed("preset") {
		cfg.Preset = preset
		if flags.Changed("preset") {
			cfg.Potential = config.PotentialConfig{}
		}
	}
	if configFile == "" || flags.Changed("device") {
		cfg.Device = device
	}
	if configFile == "" || flags.Changed("compiler") {
		cfg.Compiler = compiler
	}
	if flags.Changed("settings") {
		cfg.Settings = settings
	}
	if configFile == "" || flags.Changed("steps") {
		cfg.Steps = steps
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if configFile == "" || flags.Changed("kt") {
		cfg.KT = kT
	}
	if configFile == "" || flags.Changed("move") {
		cfg.MoveSize = moveSize
	}
	if configFile == "" || flags.Changed("per-side") {
		cfg.Lattice.PerSide = perSide
	}
	if configFile == "" || flags.Changed("store") {
		cfg.Store.Backend = storeKind
	}
	if flags.Changed("db") {
		cfg.Store.Path = storePath
	}

	store, err := openStore(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer storage.CloseIfSupported(store)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, meta, err := experiment.Execute(ctx, cfg, store)
	if err != nil {
		return err
	}

	runDir := cfg.Store.RunDir
	if runDir == "" {
		runDir = filepath.Join(dataDir, "runs")
	}
	archive := storage.NewRunArchive(runDir)
	if err := archive.Init(); err != nil {
		return err
	}
	runID, err := archive.Save(meta, res.Energies)
	if err != nil {
		return err
	}
	meta.ID = runID

	fmt.Println(viz.Summary(meta, res.Energies))
	fmt.Println(viz.Success(fmt.Sprintf("saved run %s", runID)))
	return nil
}

func openStore(kind, path string) (storage.Store, error) {
	if path == "" {
		path = filepath.Join(dataDir, "records.db")
	}
	if kind == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
	}
	store, err := storage.NewStore(kind, path)
	if err != nil {
		return nil, err
	}
	if err := store.Init(context.Background()); err != nil {
		return nil, err
	}
	return store, nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	archive := storage.NewRunArchive(filepath.Join(dataDir, "runs"))
	runs, err := archive.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPRESET\tTIME\tSTEPS\tKT\tDEVICE\tENERGY")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%g\t%s\t%.6g\n",
			run.ID,
			run.Preset,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Steps,
			run.KT,
			run.Device,
			run.FinalEnergy,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	archive := storage.NewRunArchive(filepath.Join(dataDir, "runs"))
	meta, err := archive.Load(args[0])
	if err != nil {
		return err
	}
	energies, err := archive.LoadEnergies(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("preset: %s\n", meta.Preset)
	fmt.Printf("steps: %d\n\n", len(energies))
	fmt.Println(viz.EnergyPlot(energies, "patch energy vs step"))
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	archive := storage.NewRunArchive(filepath.Join(dataDir, "runs"))
	meta, err := archive.Load(args[0])
	if err != nil {
		return err
	}
	energies, err := archive.LoadEnergies(args[0])
	if err != nil {
		return err
	}

	var rec *storage.Record
	if meta.RecordID != "" && exportStore != "" {
		store, err := openStore(exportStore, recordsDB)
		if err != nil {
			return err
		}
		defer storage.CloseIfSupported(store)
		if r, ok, err := store.GetRecord(context.Background(), meta.RecordID); err != nil {
			return err
		} else if ok {
			rec = &r
		}
	}

	if exportOut != "" {
		return storage.ExportJSONFile(exportOut, *meta, energies, rec)
	}
	return storage.ExportJSON(os.Stdout, *meta, energies, rec)
}

func printSource(cmd *cobra.Command, args []string) error {
	p := config.GetPreset(args[0])
	if p == nil {
		return fmt.Errorf("unknown preset: %s (available: %v)", args[0], config.ListPresets())
	}
	tgt, err := kernel.ParseTarget(target)
	if err != nil {
		return err
	}
	s, err := experiment.LoadSettings(settings)
	if err != nil {
		return err
	}

	var opts []kernel.Option
	for _, inc := range s.For(tgt).EngineIncludes {
		opts = append(opts, kernel.WithInclude(inc))
	}

	units := map[string]string{"energy": p.Potential.Code}
	if p.Potential.Kind == patch.KindUnion {
		units = map[string]string{
			"constituent": p.Potential.CodeConstituent,
			"isotropic":   p.Potential.CodeIsotropic,
		}
		if tgt == kernel.GPU {
			opts = append(opts, kernel.WithDefine(kernel.UnionEval))
		}
	}

	for _, role := range []string{"energy", "constituent", "isotropic"} {
		code, ok := units[role]
		if !ok {
			continue
		}
		if strings.TrimSpace(code) == "" {
			code = jit.ZeroBody
		}
		fmt.Println(viz.Subtle.Render(fmt.Sprintf("// %s_%s (%s)", args[0], role, tgt)))
		fmt.Println(kernel.Build(code, tgt, opts...))
	}
	return nil
}

func scanPreset(cmd *cobra.Command, args []string) error {
	p := config.GetPreset(args[0])
	if p == nil {
		return fmt.Errorf("unknown preset: %s (available: %v)", args[0], config.ListPresets())
	}
	s, err := experiment.LoadSettings(settings)
	if err != nil {
		return err
	}
	c, cleanup, err := experiment.NewRegistry().GetCompiler("go")
	if err != nil {
		return err
	}
	defer cleanup()

	energies, err := experiment.Scan(p.Potential, c, s, scanFrom, scanTo, scanPoints)
	if err != nil {
		return err
	}
	fmt.Println(viz.Profile(energies, scanFrom, scanTo, args[0]))
	return nil
}

func showRecords(cmd *cobra.Command, args []string) error {
	store, err := openStore(recordsKind, recordsDB)
	if err != nil {
		return err
	}
	defer storage.CloseIfSupported(store)

	ctx := context.Background()
	if len(args) == 1 {
		rec, ok, err := store.GetRecord(ctx, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no record %s", args[0])
		}
		fmt.Println(viz.Title.Render(rec.Kind + " " + rec.ID))
		for _, k := range rec.Keys() {
			fmt.Printf("%s = %s\n", viz.MetricLabel.Render(k), rec.Fields[k])
		}
		return nil
	}

	recs, err := store.ListRecords(ctx)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("no records found")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tCREATED\tFIELDS")
	for _, rec := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", rec.ID, rec.Kind, rec.Created.Format("2006-01-02 15:04:05"), len(rec.Fields))
	}
	return w.Flush()
}

func sweepParams(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if configFile == "" || cmd.Flags().Changed("preset") {
		cfg.Preset = preset
		if cmd.Flags().Changed("preset") {
			cfg.Potential = config.PotentialConfig{}
		}
	}
	if configFile == "" || cmd.Flags().Changed("steps") {
		cfg.Steps = steps
	}
	if len(sweepRanges) == 0 {
		return fmt.Errorf("at least one --range is required")
	}

	var names []string
	var ranges [][]float64
	for _, r := range sweepRanges {
		name, vals, err := optim.ParseRange(r)
		if err != nil {
			return err
		}
		names = append(names, name)
		ranges = append(ranges, vals)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	best, val, err := optim.NewGridSearch(names, ranges).Search(ctx, optim.RunMetric(cfg, sweepMetric))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PARAMETER\tBEST")
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%g\n", name, best[name])
	}
	fmt.Fprintf(w, "%s\t%.6g\n", sweepMetric, val)
	return w.Flush()
}
