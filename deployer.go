// deployer.go: Deploy orchestration from request to registered module
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-timecache"
	"github.com/google/uuid"
)

// DeployerOptions wires a Deployer. Only Config is required.
type DeployerOptions struct {
	Config Config
	Logger any

	// Catalog holds the entry types compiled into the host. When set, a
	// CatalogOpener for *.unit files is registered ahead of Openers.
	Catalog *Catalog
	Openers []UnitOpener

	// BaseContext holds host-provided entry types visible to every module.
	BaseContext *LoadingContext
	// HostExtensions holds host services visible to every module.
	HostExtensions *ExtensionContext

	Fetcher Fetcher
	Metrics MetricsCollector
	Audit   *AuditTrail
}

// Deployer runs deploys on one node.
type Deployer struct {
	nodeID     string
	pluginsDir string

	settingsMu sync.RWMutex
	settings   Settings
	enabled    atomic.Bool

	guard        *DomainGuard
	fetcher      Fetcher
	extractor    *ArchiveExtractor
	loader       *ModuleLoader
	instantiator *PluginInstantiator
	wirer        *ModuleWirer
	lifecycle    *LifecycleManager
	registry     *Registry
	pool         *ManagementPool
	audit        *AuditTrail
	metrics      MetricsCollector
	events       *eventBus
	logger       Logger

	closed atomic.Bool
}

// NewDeployer validates opts.Config and assembles a Deployer.
func NewDeployer(opts DeployerOptions) (*Deployer, error) {
	cfg := opts.Config
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := NewLogger(opts.Logger).With("node", cfg.NodeID)
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewDefaultMetricsCollector()
	}
	audit := opts.Audit
	if audit == nil {
		var err error
		if audit, err = NewAuditTrail(cfg.Audit); err != nil {
			return nil, err
		}
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = NewHTTPFetcher(5 * time.Minute)
	}

	openers := make([]UnitOpener, 0, len(opts.Openers)+2)
	if opts.Catalog != nil {
		openers = append(openers, NewCatalogOpener(opts.Catalog))
	}
	openers = append(openers, opts.Openers...)
	if len(openers) == 0 {
		openers = append(openers, SharedObjectOpener{})
	}

	d := &Deployer{
		nodeID:       cfg.NodeID,
		pluginsDir:   cfg.PluginsDir(),
		settings:     NewSettings(cfg.Settings),
		guard:        NewDomainGuard(cfg.AllowedDomains),
		fetcher:      fetcher,
		extractor:    NewArchiveExtractor(logger.With("component", "extractor")),
		loader:       NewModuleLoader(opts.BaseContext, cfg.Scan, logger.With("component", "loader"), openers...),
		instantiator: NewPluginInstantiator(logger.With("component", "instantiator")),
		wirer:        NewModuleWirer(opts.HostExtensions, logger.With("component", "wirer"), metrics),
		lifecycle:    NewLifecycleManager(logger.With("component", "lifecycle")),
		registry:     NewRegistry(),
		pool:         NewManagementPool(cfg.PoolSize, logger.With("component", "pool")),
		audit:        audit,
		metrics:      metrics,
		events:       &eventBus{logger: logger},
		logger:       logger,
	}
	d.enabled.Store(cfg.IsEnabled())
	return d, nil
}

// NodeID returns the node identifier used in results.
func (d *Deployer) NodeID() string { return d.nodeID }

// PluginsDir returns the directory holding one subdirectory per module.
func (d *Deployer) PluginsDir() string { return d.pluginsDir }

// Registry returns the module registry.
func (d *Deployer) Registry() *Registry { return d.registry }

// Metrics returns the metrics collector.
func (d *Deployer) Metrics() MetricsCollector { return d.metrics }

// AddEventHandler registers a handler for deploy events.
func (d *Deployer) AddEventHandler(h DeployEventHandler) { d.events.add(h) }

// Settings returns a copy of the host base settings.
func (d *Deployer) Settings() Settings {
	d.settingsMu.RLock()
	defer d.settingsMu.RUnlock()
	return d.settings.Merge(nil)
}

// UpdateSettings replaces the host base settings used by later deploys.
func (d *Deployer) UpdateSettings(s Settings) {
	d.settingsMu.Lock()
	d.settings = s.Merge(nil)
	d.settingsMu.Unlock()
}

// SetAllowedDomains replaces the remote source allow-list.
func (d *Deployer) SetAllowedDomains(domains []string) { d.guard.Set(domains) }

// AllowedDomains returns the remote source allow-list.
func (d *Deployer) AllowedDomains() []string { return d.guard.Domains() }

// SetEnabled turns deploys on or off.
func (d *Deployer) SetEnabled(enabled bool) { d.enabled.Store(enabled) }

// Enabled reports whether deploys are accepted.
func (d *Deployer) Enabled() bool { return d.enabled.Load() }

func newDeployID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// Deploy installs req on this node, replacing any module of the same name.
//
// Validation and source resolution happen before the request enters the
// management pool, so a rejected request touches neither the disk nor the
// registry.
func (d *Deployer) Deploy(ctx context.Context, req DeployRequest) (NodeResult, error) {
	result := NodeResult{Node: d.nodeID, Name: req.Name}
	deployID := newDeployID()
	logger := d.logger.With("module", req.Name, "deploy_id", deployID)
	started := time.Now()

	fail := func(err error) (NodeResult, error) {
		result.Error = err.Error()
		d.metrics.IncrementCounter("deploy_failures_total", map[string]string{"kind": string(KindOf(err))}, 1)
		d.audit.Record(AuditDeployFailed, "Module deploy failed", map[string]interface{}{
			"module":    req.Name,
			"deploy_id": deployID,
			"kind":      string(KindOf(err)),
			"error":     err.Error(),
		})
		d.events.emit(DeployEvent{Type: EventDeployFailed, Module: req.Name, DeployID: deployID, Error: err})
		logger.Error("Deploy failed", "kind", KindOf(err), "error", err)
		return result, err
	}

	if d.closed.Load() {
		return fail(NewPoolClosedError())
	}
	if !d.enabled.Load() {
		return fail(NewDeployDisabledError())
	}
	if err := ValidateModuleName(req.Name); err != nil {
		return fail(err)
	}

	src, err := resolveSource(ctx, req, d.guard, d.fetcher)
	if err != nil {
		if HasCode(err, ErrCodeDomainNotAllowed) {
			d.audit.Record(AuditAccessDenied, "Remote deploy source rejected", map[string]interface{}{
				"module": req.Name,
				"source": req.SourceLocator,
			})
		}
		return fail(err)
	}

	d.audit.Record(AuditDeployStarted, "Module deploy started", map[string]interface{}{
		"module":    req.Name,
		"deploy_id": deployID,
		"origin":    src.origin,
		"file":      src.fileName,
		"bytes":     len(src.payload),
	})
	d.events.emit(DeployEvent{Type: EventDeployStarted, Module: req.Name, DeployID: deployID})
	logger.Info("Deploy started", "origin", src.origin, "file", src.fileName, "bytes", len(src.payload))

	var module *LoadedModule
	err = d.pool.Run(ctx, func() error {
		var runErr error
		module, runErr = d.deployLocked(ctx, req.Name, deployID, src)
		return runErr
	})
	if err != nil {
		return fail(err)
	}

	elapsed := time.Since(started)
	d.metrics.IncrementCounter("deploys_total", map[string]string{"module": req.Name}, 1)
	d.metrics.RecordHistogram("deploy_duration_seconds", map[string]string{"module": req.Name}, elapsed.Seconds())
	d.audit.Record(AuditDeploySucceeded, "Module deployed", map[string]interface{}{
		"module":     req.Name,
		"deploy_id":  deployID,
		"generation": module.Generation,
		"entry":      module.Descriptor.Entry,
		"warnings":   len(module.Warnings()),
	})
	d.events.emit(DeployEvent{
		Type:       EventDeploySucceeded,
		Module:     req.Name,
		DeployID:   deployID,
		Generation: module.Generation,
		State:      module.State(),
	})
	logger.Info("Deploy succeeded",
		"generation", module.Generation,
		"entry", module.Descriptor.Entry,
		"warnings", len(module.Warnings()),
		"duration", elapsed)

	result.Success = true
	return result, nil
}

// deployLocked runs the replace sequence for name under its lock.
func (d *Deployer) deployLocked(ctx context.Context, name, deployID string, src *resolvedSource) (*LoadedModule, error) {
	unlock := d.registry.Lock(name)
	defer unlock()

	d.retire(ctx, name)

	dir := filepath.Join(d.pluginsDir, name)
	if err := os.RemoveAll(dir); err != nil {
		return nil, NewPersistFailedError(dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, NewPersistFailedError(dir, err)
	}
	target := filepath.Join(dir, src.fileName)
	if err := os.WriteFile(target, src.payload, 0o644); err != nil {
		return nil, NewPersistFailedError(target, err)
	}

	return d.install(ctx, name, deployID, target)
}

// install takes a persisted package through extraction, loading, wiring and
// start, then publishes it. The caller holds the name lock.
func (d *Deployer) install(ctx context.Context, name, deployID, path string) (*LoadedModule, error) {
	root, err := d.extractor.Extract(path)
	if err != nil {
		return nil, err
	}
	if info, statErr := os.Stat(root); statErr == nil && !info.IsDir() {
		root = filepath.Dir(root)
	}

	result, err := d.loader.Load(ctx, name, root)
	if err != nil {
		return nil, err
	}
	module, err := d.instantiator.Instantiate(result, d.Settings())
	if err != nil {
		return nil, err
	}
	module.DeployID = deployID

	if err := d.wirer.Wire(module); err != nil {
		return nil, err
	}

	entry := &RegistryEntry{Name: name, Module: module, Extensions: module.Extensions()}
	if err := d.lifecycle.Start(ctx, module); err != nil {
		// No rollback: the partially started module stays published so it
		// can be inspected and replaced.
		d.registry.Put(entry)
		d.updateActiveGauge()
		return nil, err
	}
	d.registry.Put(entry)
	d.updateActiveGauge()
	return module, nil
}

// retire unpublishes and stops the module registered under name, if any.
// The entry is removed before it is stopped, so from here until the
// replacement is published readers see no entry for name, never a stopped
// one. The caller holds the name lock.
func (d *Deployer) retire(ctx context.Context, name string) *RegistryEntry {
	old, ok := d.registry.Remove(name)
	if !ok {
		return nil
	}
	d.updateActiveGauge()

	if err := d.lifecycle.Stop(ctx, old.Module); err != nil {
		d.logger.Warn("Previous module did not stop cleanly", "module", name,
			"generation", old.Module.Generation, "error", err)
	}
	d.audit.Record(AuditModuleStopped, "Module stopped", map[string]interface{}{
		"module":     name,
		"generation": old.Module.Generation,
		"deploy_id":  old.Module.DeployID,
	})
	d.events.emit(DeployEvent{
		Type:       EventModuleStopped,
		Module:     name,
		DeployID:   old.Module.DeployID,
		Generation: old.Module.Generation,
		State:      old.Module.State(),
	})
	return old
}

func (d *Deployer) updateActiveGauge() {
	d.metrics.SetGauge("modules_active", nil, float64(d.registry.Len()))
}

// Start re-deploys every module directory found under the plugins root.
// A module that fails to load is logged and skipped.
func (d *Deployer) Start(ctx context.Context) error {
	if err := os.MkdirAll(d.pluginsDir, 0o755); err != nil {
		return NewPersistFailedError(d.pluginsDir, err)
	}
	entries, err := os.ReadDir(d.pluginsDir)
	if err != nil {
		return NewSourceUnreadableError(d.pluginsDir, err)
	}

	var wg sync.WaitGroup
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if err := ValidateModuleName(name); err != nil {
			d.logger.Warn("Skipping installed module with invalid name", "dir", name, "error", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer withStackRecover(d.logger)()
			deployID := newDeployID()
			err := d.pool.Run(ctx, func() error {
				unlock := d.registry.Lock(name)
				defer unlock()
				_, installErr := d.install(ctx, name, deployID, filepath.Join(d.pluginsDir, name))
				return installErr
			})
			if err != nil {
				d.logger.Error("Failed to load installed module", "module", name, "error", err)
				return
			}
			d.logger.Info("Installed module loaded", "module", name, "deploy_id", deployID)
		}()
	}
	wg.Wait()
	return nil
}

// Undeploy stops and removes name and deletes its directory.
func (d *Deployer) Undeploy(ctx context.Context, name string) error {
	if err := ValidateModuleName(name); err != nil {
		return err
	}
	return d.pool.Run(ctx, func() error {
		unlock := d.registry.Lock(name)
		defer unlock()

		old := d.retire(ctx, name)
		if old == nil {
			return NewModuleNotFoundError(name)
		}
		dir := filepath.Join(d.pluginsDir, name)
		if err := os.RemoveAll(dir); err != nil {
			return NewPersistFailedError(dir, err)
		}
		d.audit.Record(AuditUndeploy, "Module undeployed", map[string]interface{}{"module": name})
		d.events.emit(DeployEvent{Type: EventModuleRemoved, Module: name, Generation: old.Module.Generation})
		return nil
	})
}

// Get returns the registry entry for name.
func (d *Deployer) Get(name string) (*RegistryEntry, bool) {
	return d.registry.Get(name)
}

// Read returns a summary of every registered module.
func (d *Deployer) Read() map[string]ModuleSummary {
	out := make(map[string]ModuleSummary)
	for _, e := range d.registry.List() {
		out[e.Name] = e.Module.Summary()
	}
	return out
}

// Attributes returns the node attributes advertised for deployed modules.
func (d *Deployer) Attributes() map[string]string {
	return map[string]string{"plugins": strings.Join(d.registry.Names(), ",")}
}

// Close drains the pool, stops every module and closes the audit trail.
func (d *Deployer) Close(ctx context.Context) error {
	if d.closed.Swap(true) {
		return nil
	}
	d.pool.Close()
	for _, name := range d.registry.Names() {
		unlock := d.registry.Lock(name)
		d.retire(ctx, name)
		unlock()
	}
	d.logger.Info("Deployer closed", "at", timecache.CachedTime())
	return d.audit.Close()
}
