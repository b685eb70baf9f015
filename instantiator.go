// instantiator.go: Entry type construction with merged settings
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"fmt"
)

// PluginInstantiator constructs the entry object of a loaded bundle.
type PluginInstantiator struct {
	logger Logger
}

// NewPluginInstantiator creates an instantiator.
func NewPluginInstantiator(logger any) *PluginInstantiator {
	return &PluginInstantiator{logger: NewLogger(logger)}
}

// MergeSettings overlays the bundle configuration at configPath, if any, on
// base. Bundle values win.
func (i *PluginInstantiator) MergeSettings(base Settings, configPath string) (Settings, error) {
	if base == nil {
		base = Settings{}
	}
	if configPath == "" {
		return base.Merge(nil), nil
	}
	bundle, err := LoadSettingsFile(configPath)
	if err != nil {
		return nil, err
	}
	return base.Merge(bundle), nil
}

// Instantiate constructs the entry type of result. The settings constructor
// is preferred over the no-argument one.
func (i *PluginInstantiator) Instantiate(result *LoadResult, base Settings) (*LoadedModule, error) {
	merged, err := i.MergeSettings(base, result.ConfigPath)
	if err != nil {
		return nil, err
	}

	entry := result.Entry
	var p Plugin
	switch {
	case entry.NewWithSettings != nil:
		err = safeCall(func() error {
			var cerr error
			p, cerr = entry.NewWithSettings(merged)
			return cerr
		})
	case entry.New != nil:
		err = safeCall(func() error {
			var cerr error
			p, cerr = entry.New()
			return cerr
		})
	default:
		return nil, NewNoUsableConstructorError(entry.ID)
	}
	if err != nil {
		return nil, NewInstantiationError(entry.ID, err)
	}
	if p == nil {
		return nil, NewInstantiationError(entry.ID, fmt.Errorf("constructor returned a nil plugin"))
	}

	i.logger.Debug("Plugin instantiated",
		"module", result.Name,
		"entry", entry.ID,
		"plugin", p.Name(),
		"settings", len(merged))
	return newLoadedModule(result, merged, p), nil
}
