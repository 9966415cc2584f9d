package hotreload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"firebase-output/internal/config"
	"firebase-output/pkg/types"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ConfigReloader observa o arquivo de configuração e recarrega quando muda
type ConfigReloader struct {
	logger     *logrus.Logger
	configFile string

	debounce      time.Duration
	watchInterval time.Duration

	watcher     *fsnotify.Watcher
	currentHash string

	// Callbacks
	onConfigChanged func(oldConfig, newConfig *types.Config) error
	onReloadError   func(error)

	currentConfig atomic.Value // *types.Config
	reloadMux     sync.Mutex

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	stats    Stats
	statsMux sync.RWMutex
}

// Stats estatísticas do config reloader
type Stats struct {
	TotalReloads      int64     `json:"total_reloads"`
	SuccessfulReloads int64     `json:"successful_reloads"`
	FailedReloads     int64     `json:"failed_reloads"`
	LastReloadTime    time.Time `json:"last_reload_time"`
	LastError         string    `json:"last_error,omitempty"`
	ConfigVersion     string    `json:"config_version"`
	IsWatching        bool      `json:"is_watching"`
}

// NewConfigReloader creates a reloader for configFile. current is the
// configuration the process started with.
func NewConfigReloader(cfg types.HotReloadConfig, configFile string, current *types.Config, logger *logrus.Logger) (*ConfigReloader, error) {
	if configFile == "" {
		return nil, fmt.Errorf("hot reload requires a config file")
	}
	absPath, err := filepath.Abs(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	debounce, err := parseInterval(cfg.DebounceInterval, time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid debounce_interval: %w", err)
	}
	watchInterval, err := parseInterval(cfg.WatchInterval, 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid watch_interval: %w", err)
	}

	cr := &ConfigReloader{
		logger:        logger,
		configFile:    absPath,
		debounce:      debounce,
		watchInterval: watchInterval,
	}
	cr.currentConfig.Store(current)

	if _, hash, err := cr.readConfigFile(); err == nil {
		cr.currentHash = hash
		cr.stats.ConfigVersion = shortHash(hash)
	} else {
		logger.WithError(err).Warn("Failed to calculate initial config hash")
	}

	return cr, nil
}

// SetCallbacks define callbacks para eventos de reload. onChanged runs with
// the previous and the new, validated configuration.
func (cr *ConfigReloader) SetCallbacks(onChanged func(oldConfig, newConfig *types.Config) error, onError func(error)) {
	cr.onConfigChanged = onChanged
	cr.onReloadError = onError
}

// Start begins watching. The config directory is watched rather than the file
// so that editors replacing the file by rename are noticed.
func (cr *ConfigReloader) Start() error {
	if cr.running.Load() {
		return fmt.Errorf("config reloader already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(cr.configFile)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	cr.watcher = watcher
	cr.ctx, cr.cancel = context.WithCancel(context.Background())

	cr.wg.Add(2)
	go cr.watchFileChanges()
	go cr.periodicCheck()

	cr.running.Store(true)
	cr.setWatching(true)

	cr.logger.WithFields(logrus.Fields{
		"config_file":       cr.configFile,
		"debounce_interval": cr.debounce,
		"watch_interval":    cr.watchInterval,
	}).Info("Config reloader started")

	return nil
}

// Stop para o config reloader
func (cr *ConfigReloader) Stop() error {
	if !cr.running.CompareAndSwap(true, false) {
		return nil
	}

	cr.cancel()
	err := cr.watcher.Close()
	cr.wg.Wait()
	cr.setWatching(false)

	cr.logger.Info("Config reloader stopped")
	return err
}

func (cr *ConfigReloader) watchFileChanges() {
	defer cr.wg.Done()

	debounceTimer := time.NewTimer(0)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}
	defer debounceTimer.Stop()

	pendingReload := false

	for {
		select {
		case <-cr.ctx.Done():
			return

		case event, ok := <-cr.watcher.Events:
			if !ok {
				return
			}
			if !cr.shouldProcessEvent(event) {
				continue
			}

			cr.logger.WithFields(logrus.Fields{
				"file":      event.Name,
				"operation": event.Op.String(),
			}).Debug("Config file change detected")

			// Debounce: reset timer
			if !debounceTimer.Stop() {
				select {
				case <-debounceTimer.C:
				default:
				}
			}
			debounceTimer.Reset(cr.debounce)
			pendingReload = true

		case err, ok := <-cr.watcher.Errors:
			if !ok {
				return
			}
			cr.logger.WithError(err).Error("File watcher error")

		case <-debounceTimer.C:
			if pendingReload {
				pendingReload = false
				if err := cr.checkForChanges(); err != nil {
					cr.logger.WithError(err).Error("Config reload failed")
				}
			}
		}
	}
}

func (cr *ConfigReloader) periodicCheck() {
	defer cr.wg.Done()

	ticker := time.NewTicker(cr.watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cr.ctx.Done():
			return
		case <-ticker.C:
			if err := cr.checkForChanges(); err != nil {
				cr.logger.WithError(err).Error("Periodic config check failed")
			}
		}
	}
}

func (cr *ConfigReloader) shouldProcessEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	absPath, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return absPath == cr.configFile
}

// checkForChanges reloads only when the file content hash changed.
func (cr *ConfigReloader) checkForChanges() error {
	data, newHash, err := cr.readConfigFile()
	if err != nil {
		return err
	}

	cr.reloadMux.Lock()
	defer cr.reloadMux.Unlock()

	if newHash == cr.currentHash {
		return nil
	}
	return cr.performReload(data, newHash)
}

// performReload applies data, whose content hash is hash. It must be called
// with reloadMux held.
func (cr *ConfigReloader) performReload(data []byte, hash string) error {
	start := time.Now()
	cr.statsMux.Lock()
	cr.stats.TotalReloads++
	cr.stats.LastReloadTime = start
	cr.statsMux.Unlock()

	newConfig, err := config.LoadConfigData(data)
	if err == nil {
		err = config.ValidateConfig(newConfig)
	}
	if err == nil && cr.onConfigChanged != nil {
		err = cr.onConfigChanged(cr.GetCurrentConfig(), newConfig)
	}
	if err != nil {
		cr.fail(err, hash)
		return err
	}

	cr.currentConfig.Store(newConfig)
	cr.currentHash = hash

	cr.statsMux.Lock()
	cr.stats.SuccessfulReloads++
	cr.stats.ConfigVersion = shortHash(cr.currentHash)
	cr.stats.LastError = ""
	cr.statsMux.Unlock()

	cr.logger.WithFields(logrus.Fields{
		"reload_time":    time.Since(start),
		"config_version": shortHash(cr.currentHash),
	}).Info("Config reload completed successfully")

	return nil
}

func (cr *ConfigReloader) fail(err error, hash string) {
	// Hash do conteúdo rejeitado; evita repetir o mesmo erro a cada verificação
	cr.currentHash = hash

	cr.statsMux.Lock()
	cr.stats.FailedReloads++
	cr.stats.LastError = err.Error()
	cr.statsMux.Unlock()

	if cr.onReloadError != nil {
		cr.onReloadError(err)
	}
}

// readConfigFile returns the file content and its hash. The same bytes are
// parsed and recorded so a later edit is always seen as a change.
func (cr *ConfigReloader) readConfigFile() ([]byte, string, error) {
	data, err := os.ReadFile(cr.configFile)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read config file: %w", err)
	}
	return data, hashConfig(data), nil
}

func hashConfig(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// GetCurrentConfig retorna a configuração atual
func (cr *ConfigReloader) GetCurrentConfig() *types.Config {
	if current, ok := cr.currentConfig.Load().(*types.Config); ok {
		return current
	}
	return nil
}

// GetStats retorna as estatísticas atuais
func (cr *ConfigReloader) GetStats() Stats {
	cr.statsMux.RLock()
	defer cr.statsMux.RUnlock()
	return cr.stats
}

// TriggerReload força um reload imediato
func (cr *ConfigReloader) TriggerReload() error {
	if !cr.running.Load() {
		return fmt.Errorf("config reloader is not running")
	}
	cr.logger.Info("Manual config reload triggered")

	data, hash, err := cr.readConfigFile()
	if err != nil {
		return err
	}

	cr.reloadMux.Lock()
	defer cr.reloadMux.Unlock()
	return cr.performReload(data, hash)
}

func (cr *ConfigReloader) setWatching(watching bool) {
	cr.statsMux.Lock()
	cr.stats.IsWatching = watching
	cr.statsMux.Unlock()
}

func parseInterval(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return fallback, nil
	}
	return d, nil
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
