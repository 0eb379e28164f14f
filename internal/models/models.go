package models

import (
	"encoding/json"
	"time"
)

// Level is the severity of a diagnostic finding. Levels have a total
// order: success < info < warning < error < critical.
type Level string

const (
	LevelSuccess  Level = "success"
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

// Levels lists all severities in ascending order.
var Levels = []Level{LevelSuccess, LevelInfo, LevelWarning, LevelError, LevelCritical}

var levelRank = map[Level]int{
	LevelSuccess:  0,
	LevelInfo:     1,
	LevelWarning:  2,
	LevelError:    3,
	LevelCritical: 4,
}

// Rank returns the ordinal of the level; unknown levels rank below success.
func (l Level) Rank() int {
	if r, ok := levelRank[l]; ok {
		return r
	}
	return -1
}

// Valid reports whether l is one of the five known severities.
func (l Level) Valid() bool {
	_, ok := levelRank[l]
	return ok
}

// Worst returns the higher-severity of the two levels.
func (l Level) Worst(other Level) Level {
	if other.Rank() > l.Rank() {
		return other
	}
	return l
}

// Result is a single diagnostic check outcome. Results are created once
// and never mutated.
type Result struct {
	Name           string         `json:"name"`
	Level          Level          `json:"level"`
	Message        string         `json:"message"`
	Details        map[string]any `json:"details"`
	Recommendation string         `json:"recommendation,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Summary counts results by severity. Every known level is present,
// including zero counts.
type Summary map[Level]int

// NewSummary returns a summary with all five levels zeroed.
func NewSummary() Summary {
	s := make(Summary, len(Levels))
	for _, l := range Levels {
		s[l] = 0
	}
	return s
}

// Total returns the number of results counted.
func (s Summary) Total() int {
	n := 0
	for _, c := range s {
		n += c
	}
	return n
}

// Worst returns the highest severity with a non-zero count, or success.
func (s Summary) Worst() Level {
	worst := LevelSuccess
	for l, c := range s {
		if c > 0 {
			worst = worst.Worst(l)
		}
	}
	return worst
}

// CategoryResult holds one category's results in a report, or the error
// placeholder when the producing module failed outright. It marshals as
// either a result array or {"error": "..."}.
type CategoryResult struct {
	Results []Result
	Err     string
}

func (c CategoryResult) MarshalJSON() ([]byte, error) {
	if c.Err != "" {
		return json.Marshal(map[string]string{"error": c.Err})
	}
	results := c.Results
	if results == nil {
		results = []Result{}
	}
	return json.Marshal(results)
}

// Recommendation is an operator action extracted from a result, tagged
// with its origin.
type Recommendation struct {
	Priority  Level  `json:"priority"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	CheckName string `json:"check_name,omitempty"`
}

// LogAnalysis is the optional log-search section of a report.
type LogAnalysis struct {
	Errors []LogMatch `json:"errors"`
}

// Report is the aggregate output of a full diagnostic run. It is built
// fresh per invocation and never persisted.
type Report struct {
	ReportID        string                    `json:"report_id"`
	StartedAt       time.Time                 `json:"started_at"`
	CompletedAt     time.Time                 `json:"completed_at"`
	DurationSeconds float64                   `json:"duration_seconds"`
	OverallStatus   Level                     `json:"overall_status"`
	Checks          map[string]CategoryResult `json:"checks"`
	Summary         map[string]Summary        `json:"summary"`
	Recommendations []Recommendation          `json:"recommendations"`
	LogAnalysis     *LogAnalysis              `json:"log_analysis,omitempty"`
}

// ModuleReport is the output of a single-module run.
type ModuleReport struct {
	Checks  []Result `json:"checks"`
	Summary Summary  `json:"summary"`
}

// BenchmarkStats are latency statistics over successful requests.
type BenchmarkStats struct {
	MeanMS   float64 `json:"mean_ms"`
	MedianMS float64 `json:"median_ms"`
	MinMS    float64 `json:"min_ms"`
	MaxMS    float64 `json:"max_ms"`
	StddevMS float64 `json:"stddev_ms"`
	P95MS    float64 `json:"p95_ms"`
	P99MS    float64 `json:"p99_ms"`
}

// BenchmarkResult is the outcome of an N-request benchmark. Statistics
// is nil when no request succeeded.
type BenchmarkResult struct {
	URL           string          `json:"url"`
	TotalRequests int             `json:"total_requests"`
	Successful    int             `json:"successful"`
	Failed        int             `json:"failed"`
	ResponseTimes []float64       `json:"response_times"`
	Statistics    *BenchmarkStats `json:"statistics,omitempty"`
}

// SessionProbe is one request of a session-persistence test.
type SessionProbe struct {
	RequestNum     int      `json:"request_num"`
	Success        bool     `json:"success"`
	StatusCode     int      `json:"status_code,omitempty"`
	ResponseTimeMS float64  `json:"response_time_ms"`
	SessionCookies []string `json:"session_cookies,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// SessionTestResult is the outcome of a session-persistence test.
// Latency fields cover successful probes only.
type SessionTestResult struct {
	TotalRequests     int            `json:"total_requests"`
	Successful        int            `json:"successful"`
	Failed            int            `json:"failed"`
	Requests          []SessionProbe `json:"requests"`
	SessionStable     bool           `json:"session_stable"`
	AvgResponseTimeMS float64        `json:"average_response_time_ms"`
	MinResponseTimeMS float64        `json:"min_response_time_ms,omitempty"`
	MaxResponseTimeMS float64        `json:"max_response_time_ms,omitempty"`
	Error             string         `json:"error,omitempty"`
}

// TimeoutProbe is one observation of a session-timeout analysis.
type TimeoutProbe struct {
	ElapsedSeconds int       `json:"elapsed_seconds"`
	Timestamp      time.Time `json:"timestamp"`
	Success        bool      `json:"success"`
	StatusCode     int       `json:"status_code,omitempty"`
	Message        string    `json:"message"`
	Error          string    `json:"error,omitempty"`
}

// TimeoutAnalysis is the outcome of iterative session-timeout discovery.
// EstimatedTimeoutSeconds is only meaningful when TimeoutDetected is true
// and a prior probe succeeded.
type TimeoutAnalysis struct {
	Checks                  []TimeoutProbe `json:"checks"`
	TimeoutDetected         bool           `json:"timeout_detected"`
	EstimatedTimeoutSeconds int            `json:"estimated_timeout_seconds,omitempty"`
	Error                   string         `json:"error,omitempty"`
}

// TokenCheck is a single assertion of a token validation.
type TokenCheck struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// TokenValidation is the outcome of validating a single SSO token. Valid
// is set strictly from the identity service's verdict.
type TokenValidation struct {
	Valid   bool           `json:"valid"`
	Checks  []TokenCheck   `json:"checks"`
	Details map[string]any `json:"details"`
}

// LogMatch is one matching line from a log search. Timestamp is the
// file's modification time, used as a proxy since lines are not parsed.
type LogMatch struct {
	File       string    `json:"file"`
	LineNumber int       `json:"line_number"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

// LogFileInfo describes a discovered log file.
type LogFileInfo struct {
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	Modified  time.Time `json:"modified"`
	Readable  bool      `json:"readable"`
}

// TLSTiming is a connect/handshake timing breakdown for one connection.
type TLSTiming struct {
	Host        string  `json:"host"`
	Port        int     `json:"port"`
	TCPTimeMS   float64 `json:"tcp_time_ms"`
	TLSTimeMS   float64 `json:"tls_time_ms"`
	TotalTimeMS float64 `json:"total_time_ms"`
	Protocol    string  `json:"protocol,omitempty"`
	Cipher      string  `json:"cipher,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// EndpointResult is one endpoint of a multi-endpoint sweep.
type EndpointResult struct {
	URL            string  `json:"url"`
	Accessible     bool    `json:"accessible"`
	StatusCode     int     `json:"status_code,omitempty"`
	ResponseTimeMS float64 `json:"response_time_ms"`
	Error          string  `json:"error,omitempty"`
}

// HealthStatus is the fast liveness probe result.
type HealthStatus struct {
	Healthy   bool           `json:"healthy"`
	Checks    map[string]any `json:"checks"`
	Timestamp time.Time      `json:"timestamp"`
}
