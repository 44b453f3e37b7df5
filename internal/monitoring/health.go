package monitoring

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// HealthStatus is the overall system classification.
type HealthStatus int

const (
	HealthHealthy HealthStatus = iota
	HealthDegraded
	HealthUnhealthy
)

func (h HealthStatus) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthDegraded:
		return "degraded"
	default:
		return "unhealthy"
	}
}

// CheckStatus is the outcome of one individual check.
type CheckStatus int

const (
	CheckPass CheckStatus = iota
	CheckWarning
	CheckFail
)

func (c CheckStatus) String() string {
	switch c {
	case CheckPass:
		return "pass"
	case CheckWarning:
		return "warning"
	default:
		return "fail"
	}
}

// CheckResult is one named health check with a human-readable message.
type CheckResult struct {
	Name    string      `json:"name"`
	Status  CheckStatus `json:"status"`
	Message string      `json:"message"`
}

// HealthReport aggregates all checks under an overall status.
type HealthReport struct {
	Timestamp time.Time     `json:"timestamp"`
	Overall   HealthStatus  `json:"overall_status"`
	Checks    []CheckResult `json:"checks"`
}

// HealthChecker classifies system health from model artifacts, recent
// prediction activity and the latest evaluation. Any failing check makes the
// system unhealthy; any warning-only check degrades it.
type HealthChecker struct {
	modelDir string
	preds    *PredictionLogger
	perf     *PerformanceMonitor
	logger   *zap.Logger
}

// NewHealthChecker wires a checker over the monitoring components.
func NewHealthChecker(modelDir string, preds *PredictionLogger, perf *PerformanceMonitor, logger *zap.Logger) *HealthChecker {
	return &HealthChecker{modelDir: modelDir, preds: preds, perf: perf, logger: logger}
}

// Check runs every health check and aggregates by ordered severity.
func (h *HealthChecker) Check() HealthReport {
	report := HealthReport{Timestamp: time.Now().UTC()}

	report.Checks = append(report.Checks, h.checkModelFiles())
	report.Checks = append(report.Checks, h.checkRecentActivity())
	if c, ok := h.checkResponseTimes(); ok {
		report.Checks = append(report.Checks, c)
	}
	if c, ok := h.checkModelPerformance(); ok {
		report.Checks = append(report.Checks, c)
	}

	report.Overall = HealthHealthy
	for _, c := range report.Checks {
		switch c.Status {
		case CheckFail:
			report.Overall = HealthUnhealthy
		case CheckWarning:
			if report.Overall == HealthHealthy {
				report.Overall = HealthDegraded
			}
		}
	}

	switch report.Overall {
	case HealthHealthy:
		h.logger.Info("health check passed", zap.String("status", report.Overall.String()))
	case HealthDegraded:
		h.logger.Warn("health check degraded", zap.String("status", report.Overall.String()))
	default:
		h.logger.Error("health check failed", zap.String("status", report.Overall.String()))
	}
	return report
}

func (h *HealthChecker) checkModelFiles() CheckResult {
	matches, err := filepath.Glob(filepath.Join(h.modelDir, "artifact_*.json"))
	if err != nil || len(matches) == 0 {
		if _, statErr := os.Stat(h.modelDir); statErr != nil || len(matches) == 0 {
			return CheckResult{Name: "model_files", Status: CheckFail, Message: "model artifacts missing"}
		}
	}
	return CheckResult{
		Name:    "model_files",
		Status:  CheckPass,
		Message: fmt.Sprintf("%d model artifact(s) found", len(matches)),
	}
}

func (h *HealthChecker) checkRecentActivity() CheckResult {
	count := len(h.preds.Recent(time.Hour))
	return CheckResult{
		Name:    "recent_activity",
		Status:  CheckPass,
		Message: fmt.Sprintf("%d predictions in last hour", count),
	}
}

func (h *HealthChecker) checkResponseTimes() (CheckResult, bool) {
	stats := h.preds.Stats(time.Hour)
	if stats.Total == 0 {
		return CheckResult{}, false
	}
	status := CheckPass
	switch {
	case stats.AvgResponseTimeMS >= 2000:
		status = CheckFail
	case stats.AvgResponseTimeMS >= 1000:
		status = CheckWarning
	}
	return CheckResult{
		Name:    "response_time",
		Status:  status,
		Message: fmt.Sprintf("avg %.0fms, max %.0fms", stats.AvgResponseTimeMS, stats.MaxResponseTimeMS),
	}, true
}

func (h *HealthChecker) checkModelPerformance() (CheckResult, bool) {
	history, err := h.perf.History(1)
	if err != nil {
		h.logger.Error("read evaluation history failed", zap.Error(err))
		return CheckResult{}, false
	}
	if len(history) == 0 {
		return CheckResult{}, false
	}
	latest := history[len(history)-1]
	status := CheckPass
	switch {
	case latest.R2 < 0.85:
		status = CheckFail
	case latest.R2 < 0.95:
		status = CheckWarning
	}
	return CheckResult{
		Name:    "model_performance",
		Status:  status,
		Message: fmt.Sprintf("R2=%.4f RMSE=%.6f", latest.R2, latest.RMSE),
	}, true
}
