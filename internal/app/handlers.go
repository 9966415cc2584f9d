package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"firebase-output/internal/input"
	"firebase-output/internal/metrics"
	"firebase-output/pkg/tracing"
	"firebase-output/pkg/types"

	"github.com/gorilla/mux"
)

// metricsMiddleware records response time for all HTTP endpoints
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		metrics.RecordResponseTime(path, r.Method, time.Since(start))
	})
}

// registerHandlers configures HTTP routes and applies middleware to the router.
//
// Endpoints:
//   - GET /health: output health, 503 when the sink is closed or the breaker is open
//   - GET /stats: dispatch and write counters
//   - GET /config: running configuration with the secret redacted
//   - POST /config/reload: re-read the config file (hot reload only)
//   - POST /admin/refresh-auth: force a new auth token on the next write
//   - POST /v1/events: event ingest (http input only)
func (app *App) registerHandlers(router *mux.Router) {
	middleware := metricsMiddleware

	if app.tracingManager != nil {
		traceMiddleware := tracing.TraceHandler(app.tracingManager.GetTracer(), "http_request")
		middleware = func(h http.Handler) http.Handler {
			return traceMiddleware(metricsMiddleware(h))
		}
	}

	router.Handle("/health", middleware(http.HandlerFunc(app.healthHandler))).Methods("GET")
	router.Handle("/stats", middleware(http.HandlerFunc(app.statsHandler))).Methods("GET")
	router.Handle("/config", middleware(http.HandlerFunc(app.configHandler))).Methods("GET")
	router.Handle("/config/reload", middleware(http.HandlerFunc(app.configReloadHandler))).Methods("POST")
	router.Handle("/admin/refresh-auth", middleware(http.HandlerFunc(app.refreshAuthHandler))).Methods("POST")

	if ingest, ok := app.input.(*input.HTTPInput); ok {
		router.Handle("/v1/events", middleware(ingest)).Methods("POST")
	}
}

func (app *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	healthy := app.output.IsHealthy()

	components := map[string]interface{}{
		"output": map[string]interface{}{
			"status": getStatusString(healthy),
		},
		"input": map[string]interface{}{
			"status": "healthy",
			"type":   app.currentConfig().Input.Type,
		},
	}
	var issues []string
	if !healthy {
		issues = append(issues, "firebase output is not accepting writes")
	}
	if sinkStats, ok := app.output.SinkStats(); ok && sinkStats.Breaker != nil {
		components["circuit_breaker"] = map[string]interface{}{
			"state":    sinkStats.Breaker.State,
			"failures": sinkStats.Breaker.Failures,
		}
	}
	if app.reloader != nil {
		components["hot_reload"] = app.reloader.GetStats()
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, types.HealthStatus{
		Status:     getStatusString(healthy),
		Components: components,
		Issues:     issues,
		CheckTime:  time.Now(),
	})
}

func (app *App) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"application": map[string]interface{}{
			"name":       app.currentConfig().App.Name,
			"version":    app.currentConfig().App.Version,
			"uptime":     time.Since(app.startTime).String(),
			"goroutines": runtime.NumGoroutine(),
		},
		"output": app.output.Stats(),
	}
	if sinkStats, ok := app.output.SinkStats(); ok {
		stats["sink"] = sinkStats
	}
	if app.reloader != nil {
		stats["hot_reload"] = app.reloader.GetStats()
	}

	writeJSON(w, http.StatusOK, stats)
}

// configHandler returns the running configuration without credentials.
func (app *App) configHandler(w http.ResponseWriter, r *http.Request) {
	cfg := *app.currentConfig()
	cfg.Firebase.Secret = redact(cfg.Firebase.Secret)
	if len(cfg.Tracing.Headers) > 0 {
		headers := make(map[string]string, len(cfg.Tracing.Headers))
		for k, v := range cfg.Tracing.Headers {
			headers[k] = redact(v)
		}
		cfg.Tracing.Headers = headers
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"app":        cfg.App,
		"logging":    cfg.Logging,
		"server":     cfg.Server,
		"metrics":    cfg.Metrics,
		"tracing":    cfg.Tracing,
		"input":      cfg.Input,
		"firebase":   cfg.Firebase,
		"hot_reload": cfg.HotReload,
	})
}

func (app *App) configReloadHandler(w http.ResponseWriter, r *http.Request) {
	if app.reloader == nil {
		http.Error(w, "Hot reload is not enabled", http.StatusServiceUnavailable)
		return
	}
	if err := app.reloader.TriggerReload(); err != nil {
		http.Error(w, fmt.Sprintf("Failed to reload configuration: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Configuration reloaded.",
	})
}

func (app *App) refreshAuthHandler(w http.ResponseWriter, r *http.Request) {
	app.output.RefreshAuth()
	app.logger.Info("Auth token refresh requested via API")
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
