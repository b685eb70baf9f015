// plugin.go: Contracts implemented by deployable modules
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"context"
	"fmt"
)

// Plugin is the entry object of a deployable module.
//
// Components lists the sub-services the wirer constructs and binds into the
// module's extension context. Services lists, in start order, the keys the
// lifecycle manager resolves from that context and starts.
type Plugin interface {
	Name() string
	Description() string
	Components() []ComponentDescriptor
	Services() []ServiceKey
}

// ComponentProcessor is implemented by plugins that want to see every
// constructed component before hooks run.
type ComponentProcessor interface {
	ProcessComponent(capability string, c Component)
}

// HookProvider is implemented by plugins that declare typed hooks.
type HookProvider interface {
	Hooks() []Hook
}

// ServiceKey names a binding in an extension context.
type ServiceKey string

// Component is a sub-service object constructed during wiring. It contributes
// service bindings to the module's extension context.
type Component interface {
	Configure(b *Binder)
}

// ComponentDescriptor declares one component of a module.
type ComponentDescriptor struct {
	// Capability is the tag hooks are matched against.
	Capability string
	New        func(settings Settings) (Component, error)
}

// Hook binds a handler to a component capability tag.
type Hook struct {
	Capability string
	Invoke     func(c Component) error
}

// OnComponent builds a Hook whose handler receives the component as T.
// A component of another type makes the hook fail, which the wirer reports
// as a wiring warning.
func OnComponent[T Component](capability string, fn func(T) error) Hook {
	return Hook{
		Capability: capability,
		Invoke: func(c Component) error {
			typed, ok := c.(T)
			if !ok {
				var zero T
				return fmt.Errorf("component %T does not satisfy hook type %T", c, zero)
			}
			return fn(typed)
		},
	}
}

// Service is a lifecycle-managed object resolved from an extension context.
// The context passed to Start and Stop is the caller's; no deadline is added.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Initializer is implemented by services that need the merged settings and
// bundle location before they start.
type Initializer interface {
	Init(settings Settings, bundle BundleInfo) error
}

// BundleInfo describes where a module was loaded from.
type BundleInfo struct {
	Name  string
	Root  string
	Units []string
}

// EntryType is a constructible plugin type. At least one constructor must be
// set for the type to be instantiable; NewWithSettings is preferred.
type EntryType struct {
	ID              string
	NewWithSettings func(settings Settings) (Plugin, error)
	New             func() (Plugin, error)
}
