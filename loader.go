// loader.go: Module loading into isolated contexts
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"context"
	"fmt"
	"sync/atomic"
)

// LoadResult is the output of ModuleLoader.Load.
type LoadResult struct {
	Name       string
	Generation uint64
	Context    *LoadingContext
	Descriptor Descriptor
	Entry      *EntryType
	Bundle     ExtractedBundle
	// ConfigPath is the embedded bundle configuration, empty when absent.
	ConfigPath string
}

// ModuleLoader builds a fresh LoadingContext for a bundle and resolves the
// entry type its descriptor declares.
type ModuleLoader struct {
	base       *LoadingContext
	openers    []UnitOpener
	scan       ScanConfig
	logger     Logger
	generation atomic.Uint64
}

// NewModuleLoader creates a loader. With no openers, only SharedObjectOpener
// is registered.
func NewModuleLoader(base *LoadingContext, scan ScanConfig, logger any, openers ...UnitOpener) *ModuleLoader {
	if base == nil {
		base = NewBaseContext()
	}
	if len(openers) == 0 {
		openers = []UnitOpener{SharedObjectOpener{}}
	}
	scan.applyDefaults()
	return &ModuleLoader{
		base:    base,
		openers: openers,
		scan:    scan,
		logger:  NewLogger(logger),
	}
}

// BaseContext returns the host context every module context is chained to.
func (l *ModuleLoader) BaseContext() *LoadingContext {
	return l.base
}

// Load scans rootDir and resolves the declared entry type.
func (l *ModuleLoader) Load(ctx context.Context, name, rootDir string) (*LoadResult, error) {
	scanner := &bundleScanner{config: l.scan, matches: l.matchesUnit, logger: l.logger}
	found, err := scanner.scan(ctx, rootDir)
	if err != nil {
		return nil, err
	}

	gen := l.generation.Add(1)
	lc := l.base.NewChild(fmt.Sprintf("%s#%d", name, gen))
	logger := l.logger.With("module", name, "context", lc.ID())

	units := make([]openedUnit, 0, len(found.Units))
	for _, unitPath := range found.Units {
		unit, err := l.openerFor(unitPath).Open(unitPath)
		if err != nil {
			logger.Warn("Skipping unreadable unit", "unit", unitPath, "error", NewUnitOpenError(unitPath, err))
			continue
		}
		lc.addUnit(unitPath)
		units = append(units, openedUnit{path: unitPath, unit: unit})
	}

	desc, err := l.descriptor(rootDir, found.Descriptors, units)
	if err != nil {
		return nil, err
	}

	resolved := 0
	for _, u := range units {
		entry, ok, err := u.unit.Lookup(desc.Entry)
		if err != nil {
			logger.Warn("Unit lookup failed", "unit", u.path, "entry", desc.Entry, "error", err)
			continue
		}
		if !ok {
			continue
		}
		if lc.register(entry, u.path) {
			logger.Debug("Entry type resolved", "unit", u.path, "entry", desc.Entry)
		} else {
			logger.Debug("Entry type already resolved by an earlier unit", "unit", u.path, "entry", desc.Entry)
		}
		resolved++
	}

	entry, ok := lc.ResolveLocal(desc.Entry)
	if resolved == 0 || !ok {
		return nil, NewEntryNotResolvableError(desc.Entry, len(found.Units))
	}

	result := &LoadResult{
		Name:       name,
		Generation: gen,
		Context:    lc,
		Descriptor: desc,
		Entry:      entry,
		Bundle:     ExtractedBundle{Root: rootDir, Units: found.Units},
	}
	if len(found.Configs) > 0 {
		result.ConfigPath = found.Configs[0]
		if len(found.Configs) > 1 {
			logger.Warn("Multiple bundle configuration files, using the first",
				"used", found.Configs[0], "count", len(found.Configs))
		}
	}
	return result, nil
}

type openedUnit struct {
	path string
	unit Unit
}

// descriptor picks the bundle descriptor. A descriptor file wins. Without
// one, exactly one unit must describe itself.
func (l *ModuleLoader) descriptor(rootDir string, files []string, units []openedUnit) (Descriptor, error) {
	switch len(files) {
	case 0:
	case 1:
		return ParseDescriptorFile(files[0])
	default:
		return Descriptor{}, NewDescriptorInvalidError(files[1],
			fmt.Sprintf("bundle declares %d descriptors", len(files)), nil)
	}

	var embedded []Descriptor
	for _, u := range units {
		if du, ok := u.unit.(DescribedUnit); ok {
			if desc, ok := du.Descriptor(); ok {
				embedded = append(embedded, desc)
			}
		}
	}
	switch len(embedded) {
	case 0:
		return Descriptor{}, NewDescriptorMissingError(rootDir)
	case 1:
		return embedded[0], nil
	default:
		return Descriptor{}, NewDescriptorInvalidError(embedded[1].Path,
			fmt.Sprintf("%d units describe themselves", len(embedded)), nil)
	}
}

func (l *ModuleLoader) matchesUnit(path string) bool {
	return l.openerFor(path) != nil
}

func (l *ModuleLoader) openerFor(path string) UnitOpener {
	for _, o := range l.openers {
		if o.Match(path) {
			return o
		}
	}
	return nil
}
