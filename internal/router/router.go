package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
)

// Deps are the collaborators the router mounts.
type Deps struct {
	Logger *zap.SugaredLogger
	Users  *user.Handler
	// Gate guards the identity route; see internal/auth.
	Gate       func(http.Handler) http.Handler
	Registry   *prometheus.Registry
	CORSOrigin string
}

// RegisterRoutes mounts HTTP handlers using the standard library's http.ServeMux.
func RegisterRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Hello to the JWT based authentication system."))
	})

	// health
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	reg := d.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	metrics := NewMetrics(reg)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	// auth routes
	mux.HandleFunc("POST /auth/signup", d.Users.Signup)
	mux.HandleFunc("POST /auth/login", d.Users.Login)
	mux.HandleFunc("DELETE /auth/logout", d.Users.Logout)
	mux.HandleFunc("POST /auth/refresh", d.Users.Refresh)
	mux.Handle("GET /auth/{$}", d.Gate(http.HandlerFunc(d.Users.Me)))

	// outermost first: request id, cors, logging+metrics, security headers
	var handler http.Handler = mux
	handler = SecurityHeadersMiddleware()(handler)
	handler = metrics.Middleware()(handler)
	handler = LoggingMiddleware(d.Logger)(handler)
	handler = CORSMiddleware(d.CORSOrigin)(handler)
	handler = RequestIDMiddleware()(handler)
	return handler
}
