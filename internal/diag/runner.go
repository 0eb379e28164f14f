package diag

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/MimoJanra/SSOPulse/internal/config"
	"github.com/MimoJanra/SSOPulse/internal/models"
)

// Category names in their fixed execution order.
const (
	CategoryIdentity    = "identity"
	CategorySession     = "session"
	CategoryPerformance = "performance"
	CategorySystem      = "system"
)

var categoryOrder = []string{CategoryIdentity, CategorySession, CategoryPerformance, CategorySystem}

// healthProbeTimeout bounds the fast health check's TCP probe,
// independently of the configured per-call timeout.
const healthProbeTimeout = 2 * time.Second

// Runner composes the four diagnostic modules and executes them
// sequentially with per-module fault isolation. A Runner is not safe for
// concurrent use; concurrent callers need distinct instances.
type Runner struct {
	cfg *config.Settings
	log *logrus.Logger

	identity    *IdentityDiagnostics
	session     *SessionDiagnostics
	performance *PerformanceDiagnostics
	system      *SystemCollector
}

func NewRunner(cfg *config.Settings, log *logrus.Logger) *Runner {
	if log == nil {
		log = logrus.New()
	}
	return &Runner{
		cfg:         cfg,
		log:         log,
		identity:    NewIdentityDiagnostics(cfg, log),
		session:     NewSessionDiagnostics(cfg, log),
		performance: NewPerformanceDiagnostics(cfg, log),
		system:      NewSystemCollector(cfg, log),
	}
}

// RunAll executes every diagnostic module in order and assembles the
// report. A failure inside one module never prevents the others from
// running.
func (r *Runner) RunAll(ctx context.Context) models.Report {
	r.log.Info("Starting diagnostic checks...")
	start := time.Now().UTC()

	report := models.Report{
		ReportID:  uuid.NewString(),
		StartedAt: start,
		Checks:    make(map[string]models.CategoryResult, len(categoryOrder)),
		Summary:   make(map[string]models.Summary, len(categoryOrder)),
	}

	r.runCategory(ctx, &report, CategoryIdentity, r.identity)
	r.runCategory(ctx, &report, CategorySession, r.session)
	r.runCategory(ctx, &report, CategoryPerformance, r.performance)
	r.runCategory(ctx, &report, CategorySystem, r.system)

	report.OverallStatus = overallStatus(report.Summary)

	end := time.Now().UTC()
	report.CompletedAt = end
	report.DurationSeconds = end.Sub(start).Seconds()
	report.Recommendations = collectRecommendations(&report)

	r.log.Infof("Diagnostic checks completed in %.2fs", report.DurationSeconds)
	r.log.Infof("Overall status: %s", report.OverallStatus)
	return report
}

// runCategory is the fault boundary around one module: a panic becomes
// an error placeholder for that category only.
func (r *Runner) runCategory(ctx context.Context, report *models.Report, name string, m Module) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithField("category", name).Errorf("Diagnostic module failed: %v", rec)
			report.Checks[name] = models.CategoryResult{Err: fmt.Sprint(rec)}
		}
	}()

	r.log.Infof("Running %s diagnostics...", name)
	results := m.RunChecks(ctx)
	report.Checks[name] = models.CategoryResult{Results: results}
	report.Summary[name] = m.Summary()
}

func overallStatus(summaries map[string]models.Summary) models.Level {
	status := models.LevelSuccess
	for _, s := range summaries {
		if worst := s.Worst(); worst == models.LevelError || worst == models.LevelWarning || worst == models.LevelCritical {
			status = status.Worst(worst)
		}
	}
	return status
}

// collectRecommendations flattens every result carrying a recommendation
// across all categories, tagged with its origin, and prepends a general
// critical recommendation when the overall status is critical.
func collectRecommendations(report *models.Report) []models.Recommendation {
	recs := []models.Recommendation{}

	if report.OverallStatus == models.LevelCritical {
		recs = append(recs, models.Recommendation{
			Priority: models.LevelCritical,
			Category: "general",
			Message:  "Critical issues detected. Address these immediately before proceeding.",
		})
	}

	for _, category := range categoryOrder {
		cat, ok := report.Checks[category]
		if !ok || cat.Err != "" {
			continue
		}
		for _, res := range cat.Results {
			if res.Recommendation == "" {
				continue
			}
			recs = append(recs, models.Recommendation{
				Priority:  res.Level,
				Category:  category,
				Message:   res.Recommendation,
				CheckName: res.Name,
			})
		}
	}
	return recs
}

// GenerateReport runs all checks and optionally appends a bounded log
// search.
func (r *Runner) GenerateReport(ctx context.Context, includeLogs bool) models.Report {
	report := r.RunAll(ctx)
	if includeLogs {
		errors, err := r.system.SearchLogs(nil, nil, 50)
		if err != nil {
			r.log.WithError(err).Warn("Log search failed while generating report")
		} else {
			report.LogAnalysis = &models.LogAnalysis{Errors: errors}
		}
	}
	return report
}

// RunIdentityChecks runs only the identity-service diagnostics.
func (r *Runner) RunIdentityChecks(ctx context.Context) models.ModuleReport {
	return moduleReport(ctx, r.identity)
}

// RunSessionChecks runs only the session diagnostics.
func (r *Runner) RunSessionChecks(ctx context.Context) models.ModuleReport {
	return moduleReport(ctx, r.session)
}

// RunPerformanceChecks runs only the performance diagnostics.
func (r *Runner) RunPerformanceChecks(ctx context.Context) models.ModuleReport {
	return moduleReport(ctx, r.performance)
}

// RunSystemChecks runs only the system data collection.
func (r *Runner) RunSystemChecks(ctx context.Context) models.ModuleReport {
	return moduleReport(ctx, r.system)
}

func moduleReport(ctx context.Context, m Module) models.ModuleReport {
	return models.ModuleReport{
		Checks:  m.RunChecks(ctx),
		Summary: m.Summary(),
	}
}

// ValidateToken validates a single SSO token.
func (r *Runner) ValidateToken(ctx context.Context, token string) models.TokenValidation {
	r.log.Info("Validating SSO token...")
	return r.identity.ValidateToken(ctx, token)
}

// TestSessionPersistence probes session continuity across numRequests
// sequential requests.
func (r *Runner) TestSessionPersistence(ctx context.Context, testURL, token string, numRequests int) models.SessionTestResult {
	r.log.Infof("Testing session persistence with %d requests...", numRequests)
	return r.session.TestPersistence(ctx, testURL, token, numRequests)
}

// AnalyzeSessionTimeout runs iterative timeout discovery.
func (r *Runner) AnalyzeSessionTimeout(ctx context.Context, testURL, token string, intervals []int) models.TimeoutAnalysis {
	r.log.Info("Analyzing session timeout behavior...")
	return r.session.AnalyzeTimeout(ctx, testURL, token, intervals)
}

// BenchmarkEndpoint benchmarks a single endpoint, optionally
// authenticated with the given token.
func (r *Runner) BenchmarkEndpoint(ctx context.Context, url string, numRequests int, token string) models.BenchmarkResult {
	r.log.Infof("Benchmarking %s with %d requests...", url, numRequests)
	cookies := map[string]string{}
	if token != "" {
		cookies[r.cfg.TokenCookieName] = token
	}
	return r.performance.Benchmark(ctx, url, numRequests, nil, cookies)
}

// SweepEndpoints probes the configured well-known endpoints.
func (r *Runner) SweepEndpoints(ctx context.Context, token string) map[string]models.EndpointResult {
	return r.performance.SweepEndpoints(ctx, token)
}

// AnalyzeTLSTiming breaks down connect and handshake timing.
func (r *Runner) AnalyzeTLSTiming(ctx context.Context) models.TLSTiming {
	return r.performance.AnalyzeTLSTiming(ctx)
}

// SearchLogs scans operational logs for correlated failures. Directories
// must already have passed allow-list validation.
func (r *Runner) SearchLogs(ctx context.Context, searchDirs, patterns []string, maxMatches int) ([]models.LogMatch, error) {
	r.log.Info("Searching logs for errors...")
	return r.system.SearchLogs(searchDirs, patterns, maxMatches)
}

// HealthStatus is a fast liveness probe: a bounded TCP connect plus a
// required-configuration presence check. Intentionally much cheaper than
// RunAll.
func (r *Runner) HealthStatus(ctx context.Context) models.HealthStatus {
	status := models.HealthStatus{
		Healthy:   true,
		Checks:    map[string]any{},
		Timestamp: time.Now().UTC(),
	}

	addr := net.JoinHostPort(r.cfg.Host, strconv.Itoa(r.cfg.Port))
	dialer := &net.Dialer{Timeout: healthProbeTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		status.Checks["identity_connectivity"] = false
		status.Checks["identity_connectivity_error"] = err.Error()
		status.Healthy = false
	} else {
		_ = conn.Close()
		status.Checks["identity_connectivity"] = true
	}

	configOK := len(r.cfg.MissingKeys()) == 0
	status.Checks["configuration"] = configOK
	if !configOK {
		status.Healthy = false
	}

	return status
}
