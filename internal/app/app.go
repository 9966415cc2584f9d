package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"firebase-output/internal/config"
	"firebase-output/internal/metrics"
	"firebase-output/internal/output"
	"firebase-output/pkg/hotreload"
	"firebase-output/pkg/tracing"
	"firebase-output/pkg/types"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Option customizes an App before its components are built.
type Option func(*App)

// WithInput replaces the configured input, e.g. with a reader in tests.
func WithInput(in types.Input) Option {
	return func(app *App) { app.input = in }
}

// WithOutputOptions forwards options to the Firebase output.
func WithOutputOptions(opts ...output.Option) Option {
	return func(app *App) { app.outputOpts = append(app.outputOpts, opts...) }
}

// WithLogger replaces the logger built from the logging config.
func WithLogger(logger *logrus.Logger) Option {
	return func(app *App) { app.logger = logger }
}

// App representa a aplicação principal
type App struct {
	config     *types.Config
	configFile string
	logger     *logrus.Logger
	configMux  sync.RWMutex

	input      types.Input
	output     *output.FirebaseOutput
	outputOpts []output.Option

	tracingManager *tracing.TracingManager
	reloader       *hotreload.ConfigReloader

	router        *mux.Router
	httpServer    *http.Server
	metricsServer *metrics.MetricsServer

	startTime time.Time
	inputDone chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New cria uma nova instância da aplicação a partir do arquivo de configuração
func New(configFile string, opts ...Option) (*App, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return NewWithConfig(cfg, configFile, opts...)
}

// NewWithConfig builds the application from an already validated config.
// configFile is only used for hot reload and may be empty.
func NewWithConfig(cfg *types.Config, configFile string, opts ...Option) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		config:     cfg,
		configFile: configFile,
		inputDone:  make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil {
		app.logger = newLogger(cfg.Logging)
	}

	if err := app.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeComponents inicializa todos os componentes da aplicação
func (app *App) initializeComponents() error {
	if err := app.initTracing(); err != nil {
		return err
	}
	app.initOutput()
	if err := app.initInput(); err != nil {
		return err
	}
	if err := app.initReloader(); err != nil {
		return err
	}
	app.initHTTPServer()
	app.initMetricsServer()
	return nil
}

// Start inicia a aplicação. A setup failure of the output aborts startup and
// releases whatever was already started.
func (app *App) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":     app.config.App.Version,
		"environment": app.config.App.Environment,
		"input":       app.config.Input.Type,
	}).Info("Starting firebase-output")
	app.startTime = time.Now()

	metrics.SetBuildInfo(app.config.App.Version)

	if app.metricsServer != nil {
		if err := app.metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	if err := app.output.Start(app.ctx); err != nil {
		app.logger.WithError(err).Error("Firebase output setup failed")
		app.shutdownAuxiliary()
		return fmt.Errorf("failed to start output: %w", err)
	}

	events, err := app.input.Events(app.ctx)
	if err != nil {
		_ = app.output.Stop()
		app.shutdownAuxiliary()
		return fmt.Errorf("failed to start input: %w", err)
	}

	app.wg.Add(1)
	go app.pump(events)

	if app.reloader != nil {
		if err := app.reloader.Start(); err != nil {
			app.logger.WithError(err).Warn("Hot reload could not be started")
			app.reloader = nil
		}
	}

	if app.httpServer != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.logger.WithField("addr", app.httpServer.Addr).Info("Starting HTTP server")
			if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				app.logger.WithError(err).Error("HTTP server error")
			}
		}()
	}

	app.logger.Info("firebase-output started successfully")
	return nil
}

// pump forwards events to the output until the input is exhausted or the
// app stops. On stop, events already buffered by the input are still handed
// over before returning.
func (app *App) pump(events <-chan types.Event) {
	defer app.wg.Done()
	defer close(app.inputDone)

	for {
		select {
		case event, ok := <-events:
			if !ok {
				app.logger.Info("Input exhausted")
				return
			}
			app.output.Handle(app.ctx, event)
		case <-app.ctx.Done():
			for {
				select {
				case event, ok := <-events:
					if !ok {
						return
					}
					app.output.Handle(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

// Done is closed once the input is exhausted or the app is stopping.
func (app *App) Done() <-chan struct{} {
	return app.inputDone
}

// Stop para a aplicação. Pending writes are drained by the output before it
// returns; only the first call has any effect.
func (app *App) Stop() error {
	var stopErr error
	app.stopOnce.Do(func() {
		app.logger.Info("Stopping firebase-output")

		// Parar HTTP server primeiro para não aceitar novos eventos
		if app.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := app.httpServer.Shutdown(ctx); err != nil {
				app.logger.WithError(err).Warn("HTTP server shutdown error")
			}
			cancel()
		}

		if err := app.input.Close(); err != nil {
			app.logger.WithError(err).Warn("Failed to close input")
		}
		app.cancel()
		app.wg.Wait()

		app.output.Handle(context.Background(), types.ShutdownEvent())
		if err := app.output.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop output")
			stopErr = err
		}

		app.shutdownAuxiliary()
		app.logger.Info("firebase-output stopped")
	})
	return stopErr
}

func (app *App) shutdownAuxiliary() {
	if app.reloader != nil {
		if err := app.reloader.Stop(); err != nil {
			app.logger.WithError(err).Warn("Failed to stop config reloader")
		}
	}

	if app.tracingManager != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := app.tracingManager.Shutdown(ctx); err != nil {
			app.logger.WithError(err).Warn("Failed to flush traces")
		}
		cancel()
	}

	if app.metricsServer != nil {
		if err := app.metricsServer.Stop(); err != nil {
			app.logger.WithError(err).Warn("Failed to stop metrics server")
		}
	}
}

// Run executa a aplicação com graceful shutdown. It returns when a signal is
// received or the input is exhausted.
func (app *App) Run() error {
	if err := app.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		app.logger.WithField("signal", sig.String()).Info("Shutdown signal received")
	case <-app.Done():
	}

	return app.Stop()
}

func (app *App) currentConfig() *types.Config {
	app.configMux.RLock()
	defer app.configMux.RUnlock()
	return app.config
}
