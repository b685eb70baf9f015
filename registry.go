// registry.go: Name-keyed directory of live modules with per-name locking
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"sort"
	"sync"
	"sync/atomic"
)

// RegistryEntry is a published module.
type RegistryEntry struct {
	Name       string
	Module     *LoadedModule
	Extensions *ExtensionContext
}

// Registry maps names to live modules.
//
// Reads use an immutable snapshot swapped atomically on every write, so
// lookups never wait on a deploy in progress. Writers serialize briefly on
// writeMu. Callers replacing a module hold the name lock from Lock for the
// whole stop-old, start-new sequence.
type Registry struct {
	snapshot atomic.Pointer[map[string]*RegistryEntry]
	writeMu  sync.Mutex

	locksMu sync.Mutex
	locks   map[string]*nameLock
}

type nameLock struct {
	mu   sync.Mutex
	refs int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{locks: make(map[string]*nameLock)}
	empty := make(map[string]*RegistryEntry)
	r.snapshot.Store(&empty)
	return r
}

// Lock acquires the exclusive lock for name and returns its release func.
// Locks for distinct names are independent.
func (r *Registry) Lock(name string) (unlock func()) {
	r.locksMu.Lock()
	l, ok := r.locks[name]
	if !ok {
		l = &nameLock{}
		r.locks[name] = l
	}
	l.refs++
	r.locksMu.Unlock()

	l.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			r.locksMu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(r.locks, name)
			}
			r.locksMu.Unlock()
		})
	}
}

// Put publishes entry under its name, replacing any previous entry.
func (r *Registry) Put(entry *RegistryEntry) {
	r.update(func(m map[string]*RegistryEntry) {
		m[entry.Name] = entry
	})
}

// Get returns the entry registered under name.
func (r *Registry) Get(name string) (*RegistryEntry, bool) {
	entry, ok := (*r.snapshot.Load())[name]
	return entry, ok
}

// Remove unpublishes name and returns the entry that was registered.
func (r *Registry) Remove(name string) (*RegistryEntry, bool) {
	var removed *RegistryEntry
	r.update(func(m map[string]*RegistryEntry) {
		if e, ok := m[name]; ok {
			removed = e
			delete(m, name)
		}
	})
	return removed, removed != nil
}

// List returns all entries sorted by name.
func (r *Registry) List() []*RegistryEntry {
	current := *r.snapshot.Load()
	entries := make([]*RegistryEntry, 0, len(current))
	for _, e := range current {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	current := *r.snapshot.Load()
	names := make([]string, 0, len(current))
	for name := range current {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered entries.
func (r *Registry) Len() int {
	return len(*r.snapshot.Load())
}

func (r *Registry) update(mutate func(m map[string]*RegistryEntry)) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current := *r.snapshot.Load()
	next := make(map[string]*RegistryEntry, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	mutate(next)
	r.snapshot.Store(&next)
}
