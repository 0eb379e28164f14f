package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SetupRouter wires the diagnostic endpoints. /healthz stays
// unprotected for liveness probing; everything else requires a valid SSO
// token, and the diagnostic routes additionally require an admin role.
func SetupRouter(s *Server) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.Health)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth(nil))
		r.Get("/whoami", s.Whoami)
	})

	r.Route("/diagnostics", func(r chi.Router) {
		r.Use(s.requireAuth(s.cfg.AdminRoles))

		r.Post("/run", s.RunDiagnostics)
		r.Get("/{category}", s.RunCategory)
		r.Post("/token", s.ValidateToken)
		r.Post("/session-test", s.SessionTest)
		r.Post("/session-timeout", s.SessionTimeout)
		r.Post("/benchmark", s.Benchmark)
		r.Post("/endpoints", s.SweepEndpoints)
		r.Get("/tls-timing", s.TLSTiming)
		r.Post("/logs/search", s.LogSearch)
	})

	return r
}
