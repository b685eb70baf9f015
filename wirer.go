// wirer.go: Component construction and typed hook dispatch
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import "errors"

var errNilComponent = errors.New("component constructor returned nil")

// ModuleWirer constructs the components a module declares, dispatches them to
// the module's hooks and derives the module extension context.
type ModuleWirer struct {
	base    *ExtensionContext
	logger  Logger
	metrics MetricsCollector
}

// NewModuleWirer creates a wirer whose extension contexts derive from base.
// A nil base gets an empty root context.
func NewModuleWirer(base *ExtensionContext, logger any, metrics MetricsCollector) *ModuleWirer {
	if base == nil {
		base, _ = NewExtensionContext("host", nil)
	}
	if metrics == nil {
		metrics = NewNoOpMetricsCollector()
	}
	return &ModuleWirer{base: base, logger: NewLogger(logger), metrics: metrics}
}

// Base returns the host extension context.
func (w *ModuleWirer) Base() *ExtensionContext {
	return w.base
}

// Wire constructs components and runs hooks. A failing or panicking hook is
// recorded as a warning on the module and never fails Wire.
func (w *ModuleWirer) Wire(m *LoadedModule) error {
	logger := w.logger.With("module", m.Name, "generation", m.Generation)

	var hooks []Hook
	if hp, ok := m.Plugin.(HookProvider); ok {
		hooks = hp.Hooks()
	}
	processor, _ := m.Plugin.(ComponentProcessor)

	binder := newBinder()
	components := make([]WiredComponent, 0, len(m.Plugin.Components()))
	var warnings []error

	for _, desc := range m.Plugin.Components() {
		var c Component
		err := safeCall(func() error {
			var cerr error
			c, cerr = desc.New(m.Settings)
			return cerr
		})
		if err == nil && c == nil {
			err = errNilComponent
		}
		if err != nil {
			return NewComponentCreationError(desc.Capability, err)
		}

		if processor != nil {
			if perr := safeCall(func() error {
				processor.ProcessComponent(desc.Capability, c)
				return nil
			}); perr != nil {
				warning := NewHookFailedError(desc.Capability, perr)
				logger.Warn("Component processing failed", "capability", desc.Capability, "error", warning)
				warnings = append(warnings, warning)
			}
		}

		for _, hook := range hooks {
			if hook.Capability != desc.Capability || hook.Invoke == nil {
				continue
			}
			if herr := safeCall(func() error { return hook.Invoke(c) }); herr != nil {
				warning := NewHookFailedError(desc.Capability, herr)
				logger.Warn("Hook invocation failed", "capability", desc.Capability, "error", warning)
				warnings = append(warnings, warning)
			}
		}

		if cerr := safeCall(func() error {
			c.Configure(binder)
			return nil
		}); cerr != nil {
			return NewComponentCreationError(desc.Capability, cerr)
		}
		components = append(components, WiredComponent{Capability: desc.Capability, Component: c})
	}

	ext, err := w.base.Child(m.Name, binder)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.components = components
	m.extensions = ext
	m.warnings = append(m.warnings, warnings...)
	m.mu.Unlock()

	if len(warnings) > 0 {
		w.metrics.IncrementCounter("wiring_warnings_total", map[string]string{"module": m.Name}, int64(len(warnings)))
	}
	if err := m.transition(StateWired); err != nil {
		return err
	}
	logger.Debug("Module wired", "components", len(components), "warnings", len(warnings))
	return nil
}
