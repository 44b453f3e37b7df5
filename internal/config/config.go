// Package config loads and validates the pipeline configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config carries every tunable of the pipeline and monitoring layer.
// Defaults match the deployed model contract; override via config.yaml or
// KPIENGINE_* environment variables.
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	Data       DataConfig       `mapstructure:"data"`
	Training   TrainingConfig   `mapstructure:"training"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// DataConfig locates input data and persisted artifacts.
type DataConfig struct {
	DatasetPath  string `mapstructure:"dataset_path"`
	ModelDir     string `mapstructure:"model_dir"`
	MonitoringDB string `mapstructure:"monitoring_db"`
}

// TrainingConfig controls the training orchestration.
type TrainingConfig struct {
	TestFraction   float64 `mapstructure:"test_fraction" validate:"gt=0,lt=1"`
	Seed           int64   `mapstructure:"seed"`
	CVFolds        int     `mapstructure:"cv_folds" validate:"gte=2"`
	RidgeAlpha     float64 `mapstructure:"ridge_alpha" validate:"gte=0"`
	FilterOutliers bool    `mapstructure:"filter_outliers"`
}

// MonitoringConfig holds alerting thresholds for the monitoring subsystem.
type MonitoringConfig struct {
	R2Min              float64       `mapstructure:"r2_min" validate:"gte=0,lte=1"`
	RMSEMax            float64       `mapstructure:"rmse_max" validate:"gt=0"`
	MAEMax             float64       `mapstructure:"mae_max" validate:"gt=0"`
	ResponseTimeMax    time.Duration `mapstructure:"response_time_max"`
	DriftPThreshold    float64       `mapstructure:"drift_p_threshold" validate:"gt=0,lt=1"`
	DriftEscalationPct float64       `mapstructure:"drift_escalation_pct" validate:"gte=0,lte=100"`
	HistoryCap         int           `mapstructure:"history_cap" validate:"gt=0"`
}

// Default returns the documented default configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Data: DataConfig{
			DatasetPath:  "data/logistics_dataset.csv",
			ModelDir:     "models",
			MonitoringDB: "monitoring.db",
		},
		Training: TrainingConfig{
			TestFraction:   0.2,
			Seed:           42,
			CVFolds:        5,
			RidgeAlpha:     1.0,
			FilterOutliers: false,
		},
		Monitoring: MonitoringConfig{
			R2Min:              0.95,
			RMSEMax:            0.01,
			MAEMax:             0.01,
			ResponseTimeMax:    time.Second,
			DriftPThreshold:    0.05,
			DriftEscalationPct: 20.0,
			HistoryCap:         100,
		},
	}
}

// Load reads config.yaml from dir (when present), merges environment
// overrides and validates the result. A missing config file is not an error;
// defaults apply.
func Load(dir string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.SetEnvPrefix("KPIENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("data.dataset_path", cfg.Data.DatasetPath)
	v.SetDefault("data.model_dir", cfg.Data.ModelDir)
	v.SetDefault("data.monitoring_db", cfg.Data.MonitoringDB)
	v.SetDefault("training.test_fraction", cfg.Training.TestFraction)
	v.SetDefault("training.seed", cfg.Training.Seed)
	v.SetDefault("training.cv_folds", cfg.Training.CVFolds)
	v.SetDefault("training.ridge_alpha", cfg.Training.RidgeAlpha)
	v.SetDefault("training.filter_outliers", cfg.Training.FilterOutliers)
	v.SetDefault("monitoring.r2_min", cfg.Monitoring.R2Min)
	v.SetDefault("monitoring.rmse_max", cfg.Monitoring.RMSEMax)
	v.SetDefault("monitoring.mae_max", cfg.Monitoring.MAEMax)
	v.SetDefault("monitoring.response_time_max", cfg.Monitoring.ResponseTimeMax)
	v.SetDefault("monitoring.drift_p_threshold", cfg.Monitoring.DriftPThreshold)
	v.SetDefault("monitoring.drift_escalation_pct", cfg.Monitoring.DriftEscalationPct)
	v.SetDefault("monitoring.history_cap", cfg.Monitoring.HistoryCap)
}
