// Package api defines the HTTP API of the incentive layer.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	v1 "github.com/verilayer/verilayer/api/v1"
	"github.com/verilayer/verilayer/events"
	"github.com/verilayer/verilayer/incentive"
	"github.com/verilayer/verilayer/log"
	"github.com/verilayer/verilayer/metrics"
)

const (
	moduleName = "api"

	readHeaderTimeout = 5 * time.Second
	readTimeout       = 10 * time.Second
	// Verification games are played inside the request.
	writeTimeout = 60 * time.Second
)

// APIHandler is a handler that handles API requests.
type APIHandler interface {
	// RegisterRoutes registers routes for this API Handler
	RegisterRoutes(chi.Router)

	// Name returns the name of this API handler.
	Name() string
}

// IncentiveAPI is the HTTP API of the incentive layer.
type IncentiveAPI struct {
	router   *chi.Mux
	handlers []APIHandler
	logger   *log.Logger
}

// NewIncentiveAPI creates the API. dev may be nil; when set, the /v1/dev
// routes that drive the in-memory substrate are exposed.
func NewIncentiveAPI(layer *incentive.Layer, evs *events.Reader, dev v1.DevChain, l *log.Logger) *IncentiveAPI {
	logger := l.WithModule(moduleName)
	r := chi.NewRouter()
	r.Use(MetricsMiddleware(metrics.NewDefaultRequestMetrics(moduleName), *logger))
	r.Use(middleware.Recoverer)
	r.Use(CorsMiddleware)
	r.Use(CallerMiddleware)

	handlers := []APIHandler{
		v1.NewHandler(layer, evs, dev, l),
	}
	for _, handler := range handlers {
		handler.RegisterRoutes(r)
		logger.Debug("registered api handler", "handler", handler.Name())
	}

	return &IncentiveAPI{
		router:   r,
		handlers: handlers,
		logger:   logger,
	}
}

// Router gets the router for this Handler.
func (a *IncentiveAPI) Router() *chi.Mux {
	return a.router
}

// Server returns an HTTP server for the API listening on endpoint.
func (a *IncentiveAPI) Server(endpoint string) *http.Server {
	return &http.Server{
		Addr:              endpoint,
		Handler:           a.router,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		MaxHeaderBytes:    1 << 20,
	}
}
