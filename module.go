// module.go: Loaded module handle and its state
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"sync"
	"time"

	"github.com/agilira/go-timecache"
)

// WiredComponent is a component constructed for a module, with its tag.
type WiredComponent struct {
	Capability string
	Component  Component
}

// LoadedModule is one instantiated version of a deployed module.
type LoadedModule struct {
	Name       string
	Generation uint64
	Descriptor Descriptor
	Bundle     ExtractedBundle
	Settings   Settings
	Plugin     Plugin
	Context    *LoadingContext
	DeployID   string
	DeployedAt time.Time

	mu         sync.RWMutex
	state      ModuleState
	components []WiredComponent
	extensions *ExtensionContext
	warnings   []error
	started    []startedService
}

type startedService struct {
	key     ServiceKey
	service Service
}

func newLoadedModule(result *LoadResult, settings Settings, p Plugin) *LoadedModule {
	return &LoadedModule{
		Name:       result.Name,
		Generation: result.Generation,
		Descriptor: result.Descriptor,
		Bundle:     result.Bundle,
		Settings:   settings,
		Plugin:     p,
		Context:    result.Context,
		DeployedAt: timecache.CachedTime(),
		state:      StateUnloaded,
	}
}

// State returns the current lifecycle state.
func (m *LoadedModule) State() ModuleState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *LoadedModule) transition(to ModuleState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.canTransitionTo(to) {
		return NewInvalidTransitionError(m.Name, m.state, to)
	}
	m.state = to
	return nil
}

// Extensions returns the module extension context, nil before wiring.
func (m *LoadedModule) Extensions() *ExtensionContext {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.extensions
}

// Components returns the wired components in declaration order.
func (m *LoadedModule) Components() []WiredComponent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]WiredComponent(nil), m.components...)
}

// Warnings returns the wiring warnings recorded for this module.
func (m *LoadedModule) Warnings() []error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]error(nil), m.warnings...)
}

// StartedServices returns the keys of services whose Start succeeded.
func (m *LoadedModule) StartedServices() []ServiceKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]ServiceKey, len(m.started))
	for i, s := range m.started {
		keys[i] = s.key
	}
	return keys
}

func (m *LoadedModule) bundleInfo() BundleInfo {
	return BundleInfo{Name: m.Name, Root: m.Bundle.Root, Units: append([]string(nil), m.Bundle.Units...)}
}

// Summary returns the read-side view of the module.
func (m *LoadedModule) Summary() ModuleSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	services := make([]string, 0)
	if m.Plugin != nil {
		for _, key := range m.Plugin.Services() {
			services = append(services, string(key))
		}
	}
	s := ModuleSummary{
		Name:       m.Name,
		Entry:      m.Descriptor.Entry,
		Version:    m.Descriptor.Version,
		State:      m.state.String(),
		Services:   services,
		Units:      append([]string(nil), m.Bundle.Units...),
		Generation: m.Generation,
		Warnings:   len(m.warnings),
		DeployedAt: m.DeployedAt,
	}
	if m.Plugin != nil {
		s.Plugin = m.Plugin.Name()
		s.Description = m.Plugin.Description()
	}
	return s
}
