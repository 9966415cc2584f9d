// Package app initialization methods for component setup and configuration
package app

import (
	"fmt"
	"net/http"
	"os"
	"reflect"
	"time"

	"firebase-output/internal/input"
	"firebase-output/internal/metrics"
	"firebase-output/internal/output"
	"firebase-output/pkg/hotreload"
	"firebase-output/pkg/tracing"
	"firebase-output/pkg/types"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// newLogger builds the process logger from the logging block. Logs go to
// stderr so that stdout stays free for piping.
func newLogger(cfg types.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	applyLogging(logger, cfg)
	return logger
}

func applyLogging(logger *logrus.Logger, cfg types.LoggingConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
}

// initTracing sets up the tracer provider. When tracing is disabled the
// manager hands out the global no-op tracer.
func (app *App) initTracing() error {
	tm, err := tracing.NewTracingManager(app.config.Tracing, app.config.App.Environment, app.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	app.tracingManager = tm
	return nil
}

// initOutput builds the Firebase output. Nothing touches the network until
// Start.
func (app *App) initOutput() {
	opts := append([]output.Option{output.WithTracer(app.tracingManager.GetTracer())}, app.outputOpts...)
	app.output = output.New(app.config.Firebase, app.logger, opts...)
}

func (app *App) initInput() error {
	if app.input != nil {
		return nil
	}
	in, err := input.New(app.config.Input, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create input: %w", err)
	}
	app.input = in
	return nil
}

// initReloader watches the config file when hot reload is enabled.
func (app *App) initReloader() error {
	if !app.config.HotReload.Enabled {
		app.logger.Debug("Hot reload disabled")
		return nil
	}
	if app.configFile == "" {
		app.logger.Warn("Hot reload enabled but no config file given; ignoring")
		return nil
	}

	reloader, err := hotreload.NewConfigReloader(app.config.HotReload, app.configFile, app.config, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create config reloader: %w", err)
	}
	reloader.SetCallbacks(app.handleConfigReload, func(err error) {
		metrics.RecordConfigReload(false)
		app.logger.WithError(err).Error("Configuration reload rejected")
	})
	app.reloader = reloader
	app.logger.Info("Hot reload enabled")
	return nil
}

// handleConfigReload applies the logging block live. Every other block is
// bound to resources created at startup, so changes there are only reported.
func (app *App) handleConfigReload(_, newConfig *types.Config) error {
	applyLogging(app.logger, newConfig.Logging)

	running := app.currentConfig()

	var restartRequired []string
	if !reflect.DeepEqual(running.Firebase, newConfig.Firebase) {
		restartRequired = append(restartRequired, "firebase")
	}
	if !reflect.DeepEqual(running.Input, newConfig.Input) {
		restartRequired = append(restartRequired, "input")
	}
	if !reflect.DeepEqual(running.Server, newConfig.Server) {
		restartRequired = append(restartRequired, "server")
	}
	if !reflect.DeepEqual(running.Metrics, newConfig.Metrics) {
		restartRequired = append(restartRequired, "metrics")
	}
	if !reflect.DeepEqual(running.Tracing, newConfig.Tracing) {
		restartRequired = append(restartRequired, "tracing")
	}

	app.configMux.Lock()
	// Only the logging block takes effect; the rest keeps describing what is running
	updated := *running
	updated.Logging = newConfig.Logging
	app.config = &updated
	app.configMux.Unlock()

	metrics.RecordConfigReload(true)

	entry := app.logger.WithFields(logrus.Fields{
		"log_level":  newConfig.Logging.Level,
		"log_format": newConfig.Logging.Format,
	})
	if len(restartRequired) > 0 {
		entry.WithField("restart_required", restartRequired).Warn("Configuration reloaded; some changes need a restart")
	} else {
		entry.Info("Configuration reloaded")
	}
	return nil
}

// initHTTPServer configures the API server. The router is always built so
// handlers can be exercised without a listener.
func (app *App) initHTTPServer() {
	app.router = mux.NewRouter()
	app.registerHandlers(app.router)

	if !app.config.Server.Enabled {
		app.logger.Debug("HTTP server disabled in configuration")
		return
	}

	addr := fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port)
	app.httpServer = &http.Server{
		Addr:              addr,
		Handler:           app.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       parseDurationSafe(app.config.Server.ReadTimeout, 15*time.Second),
		WriteTimeout:      parseDurationSafe(app.config.Server.WriteTimeout, 15*time.Second),
	}
	app.logger.WithField("addr", addr).Info("HTTP server initialized")
}

// initMetricsServer configures the Prometheus metrics server on its own port.
func (app *App) initMetricsServer() {
	metrics.Register()
	if !app.config.Metrics.Enabled {
		return
	}
	addr := fmt.Sprintf(":%d", app.config.Metrics.Port)
	app.metricsServer = metrics.NewMetricsServer(addr, app.config.Metrics.Path, app.logger)
}
