// lifecycle.go: Ordered start and stop of module services
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"context"
	"errors"
	"fmt"
)

// LifecycleManager starts and stops the services a module declares.
//
// Start and Stop both walk Plugin.Services in declared order. Stop does not
// reverse it. A failed start leaves the services already started running and
// marks the module StateFailed; there is no rollback.
type LifecycleManager struct {
	logger Logger
}

// NewLifecycleManager creates a lifecycle manager.
func NewLifecycleManager(logger any) *LifecycleManager {
	return &LifecycleManager{logger: NewLogger(logger)}
}

// Start resolves and starts each declared service. Services implementing
// Initializer receive the merged settings before Start.
func (lm *LifecycleManager) Start(ctx context.Context, m *LoadedModule) error {
	if err := m.transition(StateStarting); err != nil {
		return err
	}
	logger := lm.logger.With("module", m.Name, "generation", m.Generation)
	ext := m.Extensions()

	for _, key := range m.Plugin.Services() {
		svc, err := lm.resolveService(ext, m.Name, key)
		if err == nil {
			err = lm.startService(ctx, m, key, svc)
		}
		if err != nil {
			logger.Error("Service failed to start", "service", key, "error", err)
			_ = m.transition(StateFailed)
			return err
		}

		m.mu.Lock()
		m.started = append(m.started, startedService{key: key, service: svc})
		m.mu.Unlock()
		logger.Debug("Service started", "service", key)
	}

	if err := m.transition(StateStarted); err != nil {
		return err
	}
	logger.Info("Module started", "services", len(m.Plugin.Services()))
	return nil
}

func (lm *LifecycleManager) resolveService(ext *ExtensionContext, module string, key ServiceKey) (Service, error) {
	if ext == nil {
		return nil, NewServiceUnresolvableError(module, key, fmt.Errorf("module is not wired"))
	}
	inst, err := ext.Resolve(key)
	if err != nil {
		return nil, NewServiceUnresolvableError(module, key, err)
	}
	svc, ok := inst.(Service)
	if !ok {
		return nil, NewServiceUnresolvableError(module, key, fmt.Errorf("%T does not implement Service", inst))
	}
	return svc, nil
}

func (lm *LifecycleManager) startService(ctx context.Context, m *LoadedModule, key ServiceKey, svc Service) error {
	if init, ok := svc.(Initializer); ok {
		if err := safeCall(func() error { return init.Init(m.Settings, m.bundleInfo()) }); err != nil {
			return NewServiceStartError(m.Name, key, fmt.Errorf("init: %w", err))
		}
	}
	if err := safeCall(func() error { return svc.Start(ctx) }); err != nil {
		return NewServiceStartError(m.Name, key, err)
	}
	return nil
}

// Stop stops every started service in declared order. Each stop is attempted
// even when an earlier one fails; failures are joined into one error.
func (lm *LifecycleManager) Stop(ctx context.Context, m *LoadedModule) error {
	if err := m.transition(StateStopping); err != nil {
		return err
	}
	logger := lm.logger.With("module", m.Name, "generation", m.Generation)

	m.mu.Lock()
	started := m.started
	m.started = nil
	m.mu.Unlock()

	var errs []error
	for _, s := range started {
		svc := s.service
		if err := safeCall(func() error { return svc.Stop(ctx) }); err != nil {
			logger.Warn("Service failed to stop", "service", s.key, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.key, err))
			continue
		}
		logger.Debug("Service stopped", "service", s.key)
	}

	if err := m.transition(StateStopped); err != nil {
		return err
	}
	if len(errs) > 0 {
		return NewServiceStopError(m.Name, errors.Join(errs...))
	}
	logger.Info("Module stopped", "services", len(started))
	return nil
}
