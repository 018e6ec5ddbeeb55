package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/pose.report/internal/api"
	"github.com/banshee-data/pose.report/internal/config"
	"github.com/banshee-data/pose.report/internal/db"
	"github.com/banshee-data/pose.report/internal/pipeline"
	"github.com/banshee-data/pose.report/internal/report"
	"github.com/banshee-data/pose.report/internal/storage/sqlite"
	"github.com/banshee-data/pose.report/internal/version"
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "calibrate":
		handleCalibrate(args)
	case "predict":
		handlePredict(args)
	case "sweep":
		handleSweep(args)
	case "report":
		handleReport(args)
	case "serve":
		handleServe(args)
	case "migrate":
		handleMigrate(args)
	case "version":
		fmt.Printf("pose-report version %s\n", version.String())
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`pose-report - Conformal pose uncertainty runs and reports

Usage: pose-report <command> [options]

Commands:
  calibrate  Calibrate a nonconformity threshold and check held-out coverage
  predict    Run the full pipeline: calibrate, search regions, store results
  sweep      Calibrate and evaluate across an epsilon grid
  report     Render HTML and PNG artifacts for a stored run or sweep
  serve      Serve the JSON API and admin endpoints over the results database
  migrate    Manage database schema migrations
  version    Show pose-report version
  help       Show this help message

Common Flags:
  -config <file>   Tuning config JSON; omitted fields keep their defaults
  -db <path>       SQLite results database (overrides config db_path)
  -data <dir>      Dataset root directory (overrides config data_dir)

Examples:
  # Calibrate with the default configuration
  pose-report calibrate -epsilon 0.05

  # Full prediction run against a dataset export
  pose-report predict -config tuning.json -db results.db

  # Sweep the default grid and store the points
  pose-report sweep -func normalized_max_Rt

  # Render artifacts for a stored run
  pose-report report -db results.db -run <run-id> -out reports

  # Serve the API on port 8080
  pose-report serve -listen :8080 -db results.db

  # Apply pending schema migrations
  pose-report migrate -db-path results.db up

For more information, see: https://github.com/banshee-data/pose.report`)
}

// loadRunConfig loads the tuning config file, or the built-in defaults
// when no path is given.
func loadRunConfig(path string) *config.TuningConfig {
	if path == "" {
		return config.DefaultTuningConfig()
	}
	cfg, err := config.LoadTuningConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// applyOverrides folds the common CLI flag overrides into the config and
// re-validates the result.
func applyOverrides(cfg *config.TuningConfig, dbPath, dataDir string) {
	if dbPath != "" {
		cfg.DBPath = &dbPath
	}
	if dataDir != "" {
		cfg.DataDir = &dataDir
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
}

func openResultsDB(path string) *db.DB {
	database, err := db.NewDB(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	return database
}

func handleCalibrate(args []string) {
	fs := flag.NewFlagSet("calibrate", flag.ExitOnError)
	configPath := fs.String("config", "", "Tuning config JSON")
	dbPath := fs.String("db", "", "SQLite results database (overrides config db_path)")
	dataDir := fs.String("data", "", "Dataset root directory (overrides config data_dir)")
	funcName := fs.String("func", "", "Nonconformity function (overrides config)")
	epsilon := fs.Float64("epsilon", 0, "Target miscoverage rate (overrides config)")
	noDB := fs.Bool("no-db", false, "Skip recording the calibration as a run")
	fs.Parse(args)

	cfg := loadRunConfig(*configPath)
	if *funcName != "" {
		cfg.NonconformityFunc = funcName
	}
	if *epsilon > 0 {
		cfg.Epsilon = epsilon
	}
	applyOverrides(cfg, *dbPath, *dataDir)

	predictor := pipeline.NewPredictor(cfg, nil, nil)
	th, coverage, err := predictor.Calibrate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Calibration failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Calibrated %s at epsilon %g over %d scores: threshold %.6g\n",
		th.Func, th.Epsilon, th.SetSize, th.Value)
	if th.RRatio != 0 || th.TRatio != 0 {
		fmt.Printf("Joint normalization ratios: R=%.6g t=%.6g\n", th.RRatio, th.TRatio)
	}
	fmt.Printf("Held-out coverage: %d/%d covered, empirical miscoverage %.4f\n",
		coverage.Covered, coverage.Evaluated, coverage.Miscoverage)

	if *noDB {
		return
	}

	database := openResultsDB(cfg.GetDBPath())
	defer database.Close()

	manager := pipeline.NewRunManager(database.DB)
	runID, err := manager.StartRun(pipeline.RunParamsFromTuning(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to record run: %v\n", err)
		os.Exit(1)
	}
	if err := manager.RecordCalibration(th.Value, th.RRatio, th.TRatio, th.SetSize, coverage.Evaluated); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to record calibration: %v\n", err)
		os.Exit(1)
	}
	if err := manager.CompleteRun(coverage.Miscoverage); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to complete run: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Recorded calibration run %s in %s\n", runID, cfg.GetDBPath())
}

func handlePredict(args []string) {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	configPath := fs.String("config", "", "Tuning config JSON")
	dbPath := fs.String("db", "", "SQLite results database (overrides config db_path)")
	dataDir := fs.String("data", "", "Dataset root directory (overrides config data_dir)")
	noDB := fs.Bool("no-db", false, "Run without persisting results")
	fs.Parse(args)

	cfg := loadRunConfig(*configPath)
	applyOverrides(cfg, *dbPath, *dataDir)

	var manager *pipeline.RunManager
	if !*noDB {
		database := openResultsDB(cfg.GetDBPath())
		defer database.Close()
		manager = pipeline.NewRunManager(database.DB)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	predictor := pipeline.NewPredictor(cfg, nil, manager)
	result, err := predictor.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Prediction run failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Threshold %.6g (%s, epsilon %g)\n",
		result.Threshold.Value, result.Threshold.Func, result.Threshold.Epsilon)
	fmt.Printf("Certified %d of %d test samples in %s\n",
		result.CertifiedCount, len(result.Samples), result.Elapsed.Round(time.Millisecond))
	fmt.Printf("Empirical miscoverage %.4f\n", result.Coverage.Miscoverage)
	if result.RunID != "" {
		fmt.Printf("Stored as run %s in %s\n", result.RunID, cfg.GetDBPath())
	}
}

func handleSweep(args []string) {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	configPath := fs.String("config", "", "Tuning config JSON")
	dbPath := fs.String("db", "", "SQLite results database (overrides config db_path)")
	dataDir := fs.String("data", "", "Dataset root directory (overrides config data_dir)")
	funcName := fs.String("func", "", "Nonconformity function (overrides config)")
	epsilons := fs.String("epsilons", "0.02,0.05,0.1,0.15,0.2", "Comma-separated epsilon grid")
	noDB := fs.Bool("no-db", false, "Run without persisting sweep points")
	fs.Parse(args)

	grid, err := parseEpsilonList(*epsilons)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		os.Exit(1)
	}

	cfg := loadRunConfig(*configPath)
	if *funcName != "" {
		cfg.NonconformityFunc = funcName
	}
	applyOverrides(cfg, *dbPath, *dataDir)

	var manager *pipeline.RunManager
	if !*noDB {
		database := openResultsDB(cfg.GetDBPath())
		defer database.Close()
		manager = pipeline.NewRunManager(database.DB)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	predictor := pipeline.NewPredictor(cfg, nil, manager)
	reports, err := predictor.SweepEpsilons(ctx, grid)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sweep failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%-10s %-12s %-12s %s\n", "epsilon", "threshold", "miscoverage", "covered")
	for _, rep := range reports {
		fmt.Printf("%-10g %-12.6g %-12.4f %d/%d\n",
			rep.TargetEpsilon, rep.Threshold, rep.Miscoverage, rep.Covered, rep.Evaluated)
	}
	if manager != nil {
		fmt.Printf("Recorded %d sweep points in %s\n", len(reports), cfg.GetDBPath())
	}
}

func handleReport(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	dbPath := fs.String("db", "pose.db", "SQLite results database")
	runID := fs.String("run", "", "Run to render")
	funcName := fs.String("func", "", "Render the epsilon sweep for this function instead of a run")
	outDir := fs.String("out", "reports", "Output directory for artifacts")
	fs.Parse(args)

	if *runID == "" && *funcName == "" {
		fmt.Fprintln(os.Stderr, "Error: provide -run <run-id> or -func <name>")
		fs.Usage()
		os.Exit(1)
	}

	database := openResultsDB(*dbPath)
	defer database.Close()

	var dir string
	var files []string
	var err error
	if *runID != "" {
		run, getErr := sqlite.NewRunStore(database.DB).Get(*runID)
		if getErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to load run: %v\n", getErr)
			os.Exit(1)
		}
		regions, listErr := sqlite.NewRegionStore(database.DB).ListByRun(run.RunID)
		if listErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to load regions: %v\n", listErr)
			os.Exit(1)
		}
		sweeps, sweepErr := sqlite.NewSweepStore(database.DB).ListByRun(run.RunID)
		if sweepErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to load sweeps: %v\n", sweepErr)
			os.Exit(1)
		}
		dir = report.MakeReportOutputDir(*outDir, run.RunID)
		files, err = report.WriteArtifacts(dir, report.Artifacts{Run: run, Regions: regions, Sweeps: sweeps})
	} else {
		sweeps, listErr := sqlite.NewSweepStore(database.DB).ListByFunc(*funcName)
		if listErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to load sweeps: %v\n", listErr)
			os.Exit(1)
		}
		if len(sweeps) == 0 {
			fmt.Fprintf(os.Stderr, "No sweep points for function %q\n", *funcName)
			os.Exit(1)
		}
		dir = report.MakeReportOutputDir(*outDir, "")
		files, err = report.WriteSweepArtifacts(dir, *funcName, sweeps)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Report generation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Wrote %d artifacts to %s\n", len(files), dir)
	for _, f := range files {
		fmt.Printf("  %s\n", f)
	}
}

func handleServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	listen := fs.String("listen", ":8080", "HTTP listen address")
	configPath := fs.String("config", "", "Tuning config JSON for triggered runs")
	dbPath := fs.String("db", "", "SQLite results database (overrides config db_path)")
	fs.Parse(args)

	cfg := loadRunConfig(*configPath)
	applyOverrides(cfg, *dbPath, "")

	database, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	manager := pipeline.NewRunManager(database.DB)
	launcher := pipeline.NewLauncher(cfg, nil, manager)

	server := api.NewServer(api.Config{
		Address: *listen,
		DB:      database,
		Manager: manager,
		Runner:  launcher,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

func handleMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dbPath := fs.String("db-path", "pose.db", "Path to database file")
	fs.Parse(args)

	db.RunMigrateCommand(fs.Args(), *dbPath)
}

// parseEpsilonList parses a comma-separated list of epsilon values.
func parseEpsilonList(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid epsilon %q: %v", part, err)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty epsilon list")
	}
	return out, nil
}
