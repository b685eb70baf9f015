// extension_context.go: Service bindings shared between host and modules
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Provider builds the instance bound to a key. It may resolve other keys
// through ec.
type Provider func(ec *ExtensionContext) (any, error)

// Binder collects the bindings a module's components contribute.
type Binder struct {
	bindings map[ServiceKey]Provider
	order    []ServiceKey
	conflict []ServiceKey
}

func newBinder() *Binder {
	return &Binder{bindings: make(map[ServiceKey]Provider)}
}

// Bind registers a provider for key.
func (b *Binder) Bind(key ServiceKey, p Provider) {
	if _, exists := b.bindings[key]; exists {
		b.conflict = append(b.conflict, key)
		return
	}
	b.bindings[key] = p
	b.order = append(b.order, key)
}

// BindInstance registers a ready-made instance for key.
func (b *Binder) BindInstance(key ServiceKey, instance any) {
	b.Bind(key, func(*ExtensionContext) (any, error) { return instance, nil })
}

// ExtensionContext is a graph of lazily built singletons. Misses fall back to
// the parent context.
//
// Concurrent first resolutions of one key share a single build. A resolution
// that would wait on a build already waiting on it fails with a dependency
// cycle error instead of blocking.
type ExtensionContext struct {
	*extensionScope

	// building is the build a provider view resolves on behalf of, nil for
	// the context handed out to callers.
	building *build
}

type extensionScope struct {
	name   string
	parent *ExtensionContext

	mu        sync.Mutex
	bindings  map[ServiceKey]Provider
	instances map[ServiceKey]any
	inflight  map[ServiceKey]*build
}

// build is one in-progress provider call.
type build struct {
	key  ServiceKey
	done chan struct{}
	inst any
	err  error

	// waitsFor is the build this one is blocked on, guarded by waitMu.
	waitsFor *build
}

// waitMu guards the wait-for edges between builds of every context, so a
// cycle spanning a module context and the host context is still seen.
var waitMu sync.Mutex

// NewExtensionContext creates a root context. configure may be nil.
func NewExtensionContext(name string, configure func(b *Binder)) (*ExtensionContext, error) {
	b := newBinder()
	if configure != nil {
		configure(b)
	}
	return newExtensionContext(name, nil, b)
}

func newExtensionContext(name string, parent *ExtensionContext, b *Binder) (*ExtensionContext, error) {
	if len(b.conflict) > 0 {
		return nil, NewBindingConflictError(b.conflict[0])
	}
	if parent != nil {
		parent = parent.root()
	}
	return &ExtensionContext{extensionScope: &extensionScope{
		name:      name,
		parent:    parent,
		bindings:  b.bindings,
		instances: make(map[ServiceKey]any),
		inflight:  make(map[ServiceKey]*build),
	}}, nil
}

// root returns the caller-facing context of ec's scope.
func (ec *ExtensionContext) root() *ExtensionContext {
	if ec.building == nil {
		return ec
	}
	return &ExtensionContext{extensionScope: ec.extensionScope}
}

// Child creates a context whose misses fall back to ec.
func (ec *ExtensionContext) Child(name string, b *Binder) (*ExtensionContext, error) {
	if b == nil {
		b = newBinder()
	}
	return newExtensionContext(name, ec, b)
}

// Name returns the context name.
func (ec *ExtensionContext) Name() string { return ec.name }

// Parent returns the parent context, nil for a root.
func (ec *ExtensionContext) Parent() *ExtensionContext { return ec.parent }

// Has reports whether key is bound in ec or an ancestor.
func (ec *ExtensionContext) Has(key ServiceKey) bool {
	for c := ec; c != nil; c = c.parent {
		c.mu.Lock()
		_, ok := c.bindings[key]
		c.mu.Unlock()
		if ok {
			return true
		}
	}
	return false
}

// Keys returns the sorted keys bound directly in ec.
func (ec *ExtensionContext) Keys() []ServiceKey {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	keys := make([]ServiceKey, 0, len(ec.bindings))
	for k := range ec.bindings {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Resolve returns the instance bound to key, building it on first use. A key
// bound in the parent is built and cached by the parent. Failed builds are
// not cached.
func (ec *ExtensionContext) Resolve(key ServiceKey) (any, error) {
	return ec.resolve(key, ec.building)
}

func (ec *ExtensionContext) resolve(key ServiceKey, from *build) (any, error) {
	ec.mu.Lock()
	if inst, ok := ec.instances[key]; ok {
		ec.mu.Unlock()
		return inst, nil
	}
	provider, ok := ec.bindings[key]
	if !ok {
		ec.mu.Unlock()
		if ec.parent == nil {
			return nil, NewBindingMissingError(ec.name, key)
		}
		return ec.parent.resolve(key, from)
	}
	if running, ok := ec.inflight[key]; ok {
		ec.mu.Unlock()
		return running.wait(from)
	}
	b := &build{key: key, done: make(chan struct{})}
	ec.inflight[key] = b
	ec.mu.Unlock()

	// A nested build blocks the build that asked for it.
	setWaitsFor(from, b)
	var inst any
	err := safeCall(func() error {
		var perr error
		inst, perr = provider(&ExtensionContext{extensionScope: ec.extensionScope, building: b})
		return perr
	})
	setWaitsFor(from, nil)
	if err != nil {
		inst, err = nil, NewProviderFailedError(key, err)
	}

	ec.mu.Lock()
	delete(ec.inflight, key)
	if err == nil {
		ec.instances[key] = inst
	}
	ec.mu.Unlock()

	b.inst, b.err = inst, err
	close(b.done)
	return inst, err
}

// wait blocks until b finishes. from is the build of the caller, nil for a
// top-level resolution.
func (b *build) wait(from *build) (any, error) {
	if from != nil {
		waitMu.Lock()
		for w := b; w != nil; w = w.waitsFor {
			if w == from {
				waitMu.Unlock()
				return nil, NewDependencyCycleError(b.key)
			}
		}
		from.waitsFor = b
		waitMu.Unlock()
		defer setWaitsFor(from, nil)
	}
	<-b.done
	return b.inst, b.err
}

func setWaitsFor(from, target *build) {
	if from == nil {
		return
	}
	waitMu.Lock()
	from.waitsFor = target
	waitMu.Unlock()
}

// ResolveAs resolves key and asserts it to T.
func ResolveAs[T any](ec *ExtensionContext, key ServiceKey) (T, error) {
	var zero T
	inst, err := ec.Resolve(key)
	if err != nil {
		return zero, err
	}
	typed, ok := inst.(T)
	if !ok {
		return zero, NewBindingTypeError(key, fmt.Sprintf("%T", inst), reflect.TypeOf((*T)(nil)).Elem().String())
	}
	return typed, nil
}
