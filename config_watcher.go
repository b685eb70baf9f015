// config_watcher.go: Hot reload of node configuration with Argus
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/argus"
)

// ConfigWatcherOptions tunes the Argus watcher behind a ConfigWatcher.
type ConfigWatcherOptions struct {
	PollInterval time.Duration
	CacheTTL     time.Duration
	// OnReload is called after a reload has been applied.
	OnReload func(cfg Config)
}

// DefaultConfigWatcherOptions returns options suited to a single node config file.
func DefaultConfigWatcherOptions() ConfigWatcherOptions {
	return ConfigWatcherOptions{
		PollInterval: 2 * time.Second,
		CacheTTL:     time.Second,
	}
}

// ConfigWatcher reloads the runtime-adjustable parts of a node configuration
// into a Deployer when the file changes: the enabled switch, the remote
// allow-list and the host base settings. Root, subsystem and pool size need a
// restart.
type ConfigWatcher struct {
	path     string
	deployer *Deployer
	options  ConfigWatcherOptions
	logger   Logger

	watcher *argus.Watcher
	current atomic.Pointer[Config]

	mu       sync.Mutex
	running  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once
}

// NewConfigWatcher creates a watcher for path applying changes to d.
func NewConfigWatcher(path string, d *Deployer, options ConfigWatcherOptions, logger any) (*ConfigWatcher, error) {
	if path == "" {
		return nil, NewConfigValidationError("config path cannot be empty")
	}
	if d == nil {
		return nil, NewConfigValidationError("deployer cannot be nil")
	}
	defaults := DefaultConfigWatcherOptions()
	if options.PollInterval <= 0 {
		options.PollInterval = defaults.PollInterval
	}
	if options.CacheTTL <= 0 {
		options.CacheTTL = defaults.CacheTTL
	}

	cw := &ConfigWatcher{
		path:     filepath.Clean(path),
		deployer: d,
		options:  options,
		logger:   NewLogger(logger).With("component", "config_watcher"),
	}
	cw.watcher = argus.New(argus.Config{
		PollInterval:         options.PollInterval,
		CacheTTL:             options.CacheTTL,
		MaxWatchedFiles:      1,
		OptimizationStrategy: argus.OptimizationSingleEvent,
		ErrorHandler: func(err error, file string) {
			cw.logger.Error("Config file watching error", "error", err, "file", file)
		},
	})
	return cw, nil
}

// Start loads the file once, applies it and begins watching.
func (cw *ConfigWatcher) Start() error {
	if cw.stopped.Load() {
		return NewConfigWatcherError("config watcher has been stopped", nil)
	}
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if !cw.running.CompareAndSwap(false, true) {
		return NewConfigWatcherError("config watcher is already running", nil)
	}

	cfg, err := LoadConfigFromFile(cw.path)
	if err != nil {
		cw.running.Store(false)
		return NewConfigWatcherError("failed to load initial configuration", err)
	}
	cw.apply(cfg, "initial_load")

	if err := cw.watcher.Watch(cw.path, cw.handleChange); err != nil {
		cw.running.Store(false)
		return NewConfigWatcherError("failed to watch config file", err)
	}
	if err := cw.watcher.Start(); err != nil {
		cw.running.Store(false)
		return NewConfigWatcherError("failed to start config watcher", err)
	}
	cw.logger.Info("Config watcher started", "path", cw.path, "poll_interval", cw.options.PollInterval)
	return nil
}

// Stop ends watching. A stopped watcher cannot be restarted.
func (cw *ConfigWatcher) Stop() error {
	var stopErr error
	cw.stopOnce.Do(func() {
		cw.mu.Lock()
		defer cw.mu.Unlock()
		cw.stopped.Store(true)
		if !cw.running.CompareAndSwap(true, false) {
			return
		}
		if err := cw.watcher.Stop(); err != nil {
			stopErr = NewConfigWatcherError("failed to stop config watcher", err)
			return
		}
		cw.logger.Info("Config watcher stopped", "path", cw.path)
	})
	return stopErr
}

// IsRunning reports whether the watcher is active.
func (cw *ConfigWatcher) IsRunning() bool { return cw.running.Load() }

// Current returns the last applied configuration.
func (cw *ConfigWatcher) Current() (Config, bool) {
	cfg := cw.current.Load()
	if cfg == nil {
		return Config{}, false
	}
	return *cfg, true
}

func (cw *ConfigWatcher) handleChange(event argus.ChangeEvent) {
	if event.IsDelete {
		cw.logger.Warn("Config file was deleted, keeping current configuration", "path", event.Path)
		return
	}
	// Argus may call back while Watch is still registering the file.
	go func() {
		defer withStackRecover(cw.logger)()
		cw.reload(event.Path)
	}()
}

func (cw *ConfigWatcher) reload(path string) {
	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		cw.logger.Error("Failed to reload configuration", "path", path, "error", err)
		return
	}
	cw.apply(cfg, "file_change")
}

func (cw *ConfigWatcher) apply(cfg Config, source string) {
	previous := cw.current.Load()
	d := cw.deployer

	d.SetEnabled(cfg.IsEnabled())
	d.SetAllowedDomains(cfg.AllowedDomains)
	d.UpdateSettings(NewSettings(cfg.Settings))

	if previous != nil && (previous.Root != cfg.Root || previous.Subsystem != cfg.Subsystem || previous.PoolSize != cfg.PoolSize) {
		cw.logger.Warn("Changes to root, subsystem or pool size need a restart", "path", cw.path)
	}
	cw.current.Store(&cfg)

	changedDomains := previous == nil || !slices.Equal(previous.AllowedDomains, cfg.AllowedDomains)
	d.audit.Record(AuditConfigReloaded, "Node configuration applied", map[string]interface{}{
		"path":            cw.path,
		"source":          source,
		"enabled":         cfg.IsEnabled(),
		"domains_changed": changedDomains,
		"allowed_domains": len(cfg.AllowedDomains),
	})
	cw.logger.Info("Configuration applied", "source", source, "enabled", cfg.IsEnabled(),
		"allowed_domains", len(cfg.AllowedDomains))

	if cw.options.OnReload != nil {
		cw.options.OnReload(cfg)
	}
}
