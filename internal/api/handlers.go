package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/MimoJanra/SSOPulse/internal/auth"
	"github.com/MimoJanra/SSOPulse/internal/config"
	"github.com/MimoJanra/SSOPulse/internal/diag"
	"github.com/MimoJanra/SSOPulse/internal/security"
)

// Server holds the handler dependencies.
type Server struct {
	cfg      *config.Settings
	log      *logrus.Logger
	runner   *diag.Runner
	auth     *auth.Manager
	validate *validator.Validate
}

func NewServer(cfg *config.Settings, log *logrus.Logger, runner *diag.Runner, authMgr *auth.Manager) *Server {
	if log == nil {
		log = logrus.New()
	}
	return &Server{
		cfg:      cfg,
		log:      log,
		runner:   runner,
		auth:     authMgr,
		validate: validator.New(),
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeAndValidate parses a JSON body into v and runs struct
// validation. An empty body is allowed so requests can rely on defaults.
func (s *Server) decodeAndValidate(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errors.New("invalid request body")
	}
	if err := s.validate.Struct(v); err != nil {
		return err
	}
	return nil
}

// Health is the fast liveness probe.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	status := s.runner.HealthStatus(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// Whoami echoes the authenticated identity.
func (s *Server) Whoami(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

type runRequest struct {
	IncludeLogs bool `json:"include_logs"`
}

// RunDiagnostics executes the full diagnostic run.
func (s *Server) RunDiagnostics(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.runner.GenerateReport(r.Context(), req.IncludeLogs))
}

// RunCategory executes a single diagnostic module.
func (s *Server) RunCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch chi.URLParam(r, "category") {
	case diag.CategoryIdentity:
		writeJSON(w, http.StatusOK, s.runner.RunIdentityChecks(ctx))
	case diag.CategorySession:
		writeJSON(w, http.StatusOK, s.runner.RunSessionChecks(ctx))
	case diag.CategoryPerformance:
		writeJSON(w, http.StatusOK, s.runner.RunPerformanceChecks(ctx))
	case diag.CategorySystem:
		writeJSON(w, http.StatusOK, s.runner.RunSystemChecks(ctx))
	default:
		writeError(w, http.StatusNotFound, "unknown diagnostic category")
	}
}

type tokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// ValidateToken runs structural and delegated validation on a token.
func (s *Server) ValidateToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.runner.ValidateToken(r.Context(), req.Token))
}

type sessionTestRequest struct {
	URL      string `json:"url" validate:"required,url"`
	Token    string `json:"token" validate:"required"`
	Requests int    `json:"requests" validate:"omitempty,min=1,max=100"`
}

// SessionTest probes session persistence against a target URL.
func (s *Server) SessionTest(w http.ResponseWriter, r *http.Request) {
	var req sessionTestRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := security.ValidateURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Requests == 0 {
		req.Requests = 5
	}
	writeJSON(w, http.StatusOK, s.runner.TestSessionPersistence(r.Context(), req.URL, req.Token, req.Requests))
}

type sessionTimeoutRequest struct {
	URL       string `json:"url" validate:"required,url"`
	Token     string `json:"token" validate:"required"`
	Intervals []int  `json:"intervals" validate:"omitempty,max=10,dive,min=0,max=3600"`
}

// SessionTimeout runs iterative session-timeout discovery. Long waits
// are bounded by the per-interval cap; callers own the total duration.
func (s *Server) SessionTimeout(w http.ResponseWriter, r *http.Request) {
	var req sessionTimeoutRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := security.ValidateURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.runner.AnalyzeSessionTimeout(r.Context(), req.URL, req.Token, req.Intervals))
}

type benchmarkRequest struct {
	URL      string `json:"url" validate:"required,url"`
	Requests int    `json:"requests" validate:"omitempty,min=1,max=100"`
	Token    string `json:"token"`
}

// Benchmark runs an N-request benchmark against a target URL.
func (s *Server) Benchmark(w http.ResponseWriter, r *http.Request) {
	var req benchmarkRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := security.ValidateURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Requests == 0 {
		req.Requests = 10
	}
	writeJSON(w, http.StatusOK, s.runner.BenchmarkEndpoint(r.Context(), req.URL, req.Requests, req.Token))
}

type sweepRequest struct {
	Token string `json:"token"`
}

// SweepEndpoints probes the configured well-known console endpoints.
func (s *Server) SweepEndpoints(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"endpoints": s.runner.SweepEndpoints(r.Context(), req.Token),
	})
}

// TLSTiming returns the connect/handshake timing breakdown for the
// configured identity service.
func (s *Server) TLSTiming(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runner.AnalyzeTLSTiming(r.Context()))
}

type logSearchRequest struct {
	SearchDirs []string `json:"search_dirs"`
	Patterns   []string `json:"patterns"`
	MaxMatches int      `json:"max_matches" validate:"omitempty,min=1,max=1000"`
}

// LogSearch scans operational logs for error patterns. Caller-supplied
// directories are filtered through the allow-list before the collector
// sees them.
func (s *Server) LogSearch(w http.ResponseWriter, r *http.Request) {
	var req logSearchRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	dirs := req.SearchDirs
	if len(dirs) > 0 {
		dirs = security.ValidateLogDirs(dirs, s.cfg.LogLocations)
		if dirs == nil {
			writeError(w, http.StatusBadRequest, "no supplied directory is on the allow-list")
			return
		}
	}
	if req.MaxMatches == 0 {
		req.MaxMatches = 100
	}

	matches, err := s.runner.SearchLogs(r.Context(), dirs, req.Patterns, req.MaxMatches)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches, "total": len(matches)})
}
