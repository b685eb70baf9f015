// loading_context.go: Isolated per-module namespaces for entry types
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"sort"
	"sync"
)

// LoadingContext resolves entry types for one module version.
//
// A context sees its own symbols first and then its parent's. Parents keep no
// reference to children, so the host base context never sees module-private
// types, and two modules never see each other's.
type LoadingContext struct {
	id     string
	parent *LoadingContext

	mu      sync.RWMutex
	symbols map[string]*resolvedSymbol
	units   []string
}

type resolvedSymbol struct {
	entry *EntryType
	unit  string
}

// NewBaseContext creates a root context holding host-provided types.
func NewBaseContext() *LoadingContext {
	return &LoadingContext{
		id:      "base",
		symbols: make(map[string]*resolvedSymbol),
	}
}

// NewChild creates an empty context chained to c.
func (c *LoadingContext) NewChild(id string) *LoadingContext {
	return &LoadingContext{
		id:      id,
		parent:  c,
		symbols: make(map[string]*resolvedSymbol),
	}
}

// ID returns the context identifier.
func (c *LoadingContext) ID() string { return c.id }

// Parent returns the parent context, nil for a base context.
func (c *LoadingContext) Parent() *LoadingContext { return c.parent }

// Provide registers a host type on c. It is meant for base contexts.
func (c *LoadingContext) Provide(entry *EntryType) {
	c.register(entry, "")
}

// register adds entry under its ID. The first registration of an ID wins so
// a later unit cannot shadow an earlier one.
func (c *LoadingContext) register(entry *EntryType, unit string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.symbols[entry.ID]; exists {
		return false
	}
	c.symbols[entry.ID] = &resolvedSymbol{entry: entry, unit: unit}
	return true
}

func (c *LoadingContext) addUnit(unit string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.units = append(c.units, unit)
}

// Resolve looks id up in c, then in its ancestors.
func (c *LoadingContext) Resolve(id string) (*EntryType, bool) {
	for ctx := c; ctx != nil; ctx = ctx.parent {
		ctx.mu.RLock()
		sym, ok := ctx.symbols[id]
		ctx.mu.RUnlock()
		if ok {
			return sym.entry, true
		}
	}
	return nil, false
}

// ResolveLocal looks id up in c only.
func (c *LoadingContext) ResolveLocal(id string) (*EntryType, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sym, ok := c.symbols[id]
	if !ok {
		return nil, false
	}
	return sym.entry, true
}

// UnitOf returns the unit that provided id in c.
func (c *LoadingContext) UnitOf(id string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if sym, ok := c.symbols[id]; ok {
		return sym.unit
	}
	return ""
}

// Symbols returns the sorted IDs registered directly on c.
func (c *LoadingContext) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.symbols))
	for id := range c.symbols {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Units returns the units opened into c.
func (c *LoadingContext) Units() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.units...)
}
