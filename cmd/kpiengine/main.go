package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wareflow/kpiengine/internal/config"
	"github.com/wareflow/kpiengine/internal/dataset"
	"github.com/wareflow/kpiengine/internal/features"
	"github.com/wareflow/kpiengine/internal/model"
	"github.com/wareflow/kpiengine/internal/monitoring"
	"github.com/wareflow/kpiengine/internal/preprocess"
	"github.com/wareflow/kpiengine/internal/storage"
	"github.com/wareflow/kpiengine/pkg/logger"
	"github.com/wareflow/kpiengine/pkg/metrics"
)

const usage = `usage: kpiengine <command> [flags]

commands:
  train     train candidate models from a dataset and persist the best
  predict   score a dataset with the latest trained model
  report    print the monitoring report
`

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	app := &application{cfg: cfg, logger: zapLogger}

	switch os.Args[1] {
	case "train":
		err = app.train(os.Args[2:])
	case "predict":
		err = app.predict(os.Args[2:])
	case "report":
		err = app.report(os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		zapLogger.Fatal("command failed", zap.String("command", os.Args[1]), zap.Error(err))
	}
}

type application struct {
	cfg    config.Config
	logger *zap.Logger
}

// openMonitoring wires the sqlite-backed monitoring stack shared by every
// command.
func (a *application) openMonitoring() (*storage.Store, *metrics.Collectors, error) {
	store, err := storage.Open(a.cfg.Data.MonitoringDB)
	if err != nil {
		return nil, nil, err
	}
	collectors := metrics.New(prometheus.NewRegistry())
	return store, collectors, nil
}

func (a *application) train(args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	datasetPath := fs.String("dataset", a.cfg.Data.DatasetPath, "training dataset CSV")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, collectors, err := a.openMonitoring()
	if err != nil {
		return err
	}

	raw, err := dataset.LoadCSV(*datasetPath)
	if err != nil {
		return err
	}
	a.logger.Info("dataset loaded", zap.String("path", *datasetPath), zap.Int("rows", raw.Rows()))

	engineered, err := features.Engineer(raw)
	if err != nil {
		return err
	}

	pre := preprocess.New()
	x, y, err := pre.FitTransform(engineered)
	if err != nil {
		return err
	}
	if y == nil {
		return fmt.Errorf("dataset %s has no %s column, cannot train", *datasetPath, dataset.ColTarget)
	}

	if a.cfg.Training.FilterOutliers {
		before, _ := x.Dims()
		x, y, err = preprocess.FilterOutliers(x, y)
		if err != nil {
			return err
		}
		after, _ := x.Dims()
		a.logger.Info("outliers filtered", zap.Int("before", before), zap.Int("after", after))
	}

	trainer := model.NewTrainer(a.cfg.Training, a.logger)
	result, err := trainer.Run(x, y, model.DefaultCandidates(a.cfg.Training))
	if err != nil {
		return err
	}

	version, err := model.SaveArtifact(a.cfg.Data.ModelDir, result.Best, pre)
	if err != nil {
		return err
	}
	a.logger.Info("model artifact saved",
		zap.String("version", version),
		zap.String("model", result.BestName),
		zap.String("dir", a.cfg.Data.ModelDir))

	detector := monitoring.NewDriftDetector(
		a.cfg.Monitoring.DriftPThreshold, a.cfg.Monitoring.DriftEscalationPct, store, a.logger)
	if err := detector.SetReference(engineered); err != nil {
		return err
	}

	perf := monitoring.NewPerformanceMonitor(a.cfg.Monitoring, store, collectors, a.logger)
	if _, err := perf.Evaluate(result.TestTargets, result.TestPredictions, "holdout"); err != nil {
		return err
	}

	return json.NewEncoder(os.Stdout).Encode(result)
}

func (a *application) predict(args []string) error {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	inputPath := fs.String("input", a.cfg.Data.DatasetPath, "dataset CSV to score")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, collectors, err := a.openMonitoring()
	if err != nil {
		return err
	}

	est, pre, version, err := model.LoadLatest(a.cfg.Data.ModelDir)
	if err != nil {
		return err
	}
	a.logger.Info("model loaded", zap.String("version", version), zap.String("model", est.Name()))

	raw, err := dataset.LoadCSV(*inputPath)
	if err != nil {
		return err
	}
	engineered, err := features.Engineer(raw)
	if err != nil {
		return err
	}

	start := time.Now()
	x, err := pre.Transform(engineered)
	if err != nil {
		return err
	}
	preds, err := est.Predict(x)
	if err != nil {
		return err
	}
	elapsedMS := float64(time.Since(start).Milliseconds())

	detector := monitoring.NewDriftDetector(
		a.cfg.Monitoring.DriftPThreshold, a.cfg.Monitoring.DriftEscalationPct, store, a.logger)
	drift := detector.Detect(engineered)
	collectors.DriftChecksTotal.Inc()
	collectors.DriftedFeatures.Set(float64(len(drift.DriftedFeatures)))

	names, err := pre.FeatureNames()
	if err != nil {
		return err
	}
	itemIDs, err := raw.String(dataset.ColItemID)
	if err != nil {
		return err
	}
	categories, err := raw.String(dataset.ColCategory)
	if err != nil {
		return err
	}
	stockLevels, err := raw.Numeric("stock_level")
	if err != nil {
		return err
	}

	audit := monitoring.NewPredictionLogger(store, collectors, a.logger)
	perRowMS := 0.0
	if len(preds) > 0 {
		perRowMS = elapsedMS / float64(len(preds))
	}
	for i, p := range preds {
		audit.Log(monitoring.PredictionEntry{
			ItemID:         itemIDs[i],
			Category:       categories[i],
			StockLevel:     stockLevels[i],
			PredictedKPI:   p,
			Confidence:     confidenceLabel(p),
			ResponseTimeMS: perRowMS,
			ModelVersion:   version,
			FeaturesUsed:   len(names),
		})
	}

	out := struct {
		ModelVersion string                 `json:"model_version"`
		Predictions  []float64              `json:"predictions"`
		Drift        monitoring.DriftResult `json:"drift"`
	}{ModelVersion: version, Predictions: preds, Drift: drift}
	return json.NewEncoder(os.Stdout).Encode(out)
}

func (a *application) report(args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	window := fs.Duration("window", 24*time.Hour, "trailing window to report on")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, collectors, err := a.openMonitoring()
	if err != nil {
		return err
	}

	audit := monitoring.NewPredictionLogger(store, collectors, a.logger)
	perf := monitoring.NewPerformanceMonitor(a.cfg.Monitoring, store, collectors, a.logger)
	health := monitoring.NewHealthChecker(a.cfg.Data.ModelDir, audit, perf, a.logger)

	report := monitoring.BuildReport(*window, audit, perf, health)
	blob, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(blob))
	return nil
}

// confidenceLabel is a coarse plausibility label: scores inside the unit
// interval the model was trained on are high confidence, anything outside is
// extrapolation.
func confidenceLabel(pred float64) string {
	if pred >= 0 && pred <= 1 {
		return "high"
	}
	return "low"
}
