// Package diag implements the SSOPulse diagnostic engine: the check
// framework, the four diagnostic modules, and the runner that composes
// them into a report.
package diag

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MimoJanra/SSOPulse/internal/models"
)

// Module is the capability shared by all diagnostic modules. RunChecks
// resets the module's result set before executing, so repeated
// invocations on one instance never leak stale results. Module instances
// are not safe for concurrent use; concurrent callers need distinct
// instances.
type Module interface {
	RunChecks(ctx context.Context) []models.Result
	Summary() models.Summary
	Clear()
}

// recorder accumulates results for one module instance. It never fails:
// modules convert their own internal errors into ERROR-level results.
type recorder struct {
	log     *logrus.Logger
	results []models.Result
}

func newRecorder(log *logrus.Logger) recorder {
	if log == nil {
		log = logrus.New()
	}
	return recorder{log: log}
}

// add appends a result and logs it at the mapped level. Nil details
// become an empty map so results always serialize with a details object.
func (r *recorder) add(name string, level models.Level, message string, details map[string]any, recommendation string) models.Result {
	if details == nil {
		details = map[string]any{}
	}
	res := models.Result{
		Name:           name,
		Level:          level,
		Message:        message,
		Details:        details,
		Recommendation: recommendation,
		Timestamp:      time.Now().UTC(),
	}
	r.results = append(r.results, res)

	entry := r.log.WithFields(logrus.Fields{"check": name, "severity": string(level)})
	switch level {
	case models.LevelWarning:
		entry.Warn(message)
	case models.LevelError, models.LevelCritical:
		entry.Error(message)
	default:
		entry.Info(message)
	}
	return res
}

// Results returns the accumulated results of the current run.
func (r *recorder) Results() []models.Result {
	return r.results
}

// Summary counts the accumulated results by severity.
func (r *recorder) Summary() models.Summary {
	s := models.NewSummary()
	for _, res := range r.results {
		s[res.Level]++
	}
	return s
}

// Clear empties the result set. Called at the start of every RunChecks.
func (r *recorder) Clear() {
	r.results = nil
}
