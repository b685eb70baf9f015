// types.go: Shared data types for deploy requests, bundles and module state
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"time"
)

// ModuleState is the lifecycle state of a loaded module.
type ModuleState int

const (
	StateUnloaded ModuleState = iota
	StateWired
	StateStarting
	StateStarted
	StateStopping
	StateStopped
	// StateFailed marks a module whose start sequence failed part way. Services
	// started before the failure keep running.
	StateFailed
)

func (s ModuleState) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateWired:
		return "wired"
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var validTransitions = map[ModuleState][]ModuleState{
	StateUnloaded: {StateWired},
	StateWired:    {StateStarting, StateStopping},
	StateStarting: {StateStarted, StateFailed},
	StateStarted:  {StateStopping},
	StateFailed:   {StateStopping},
	StateStopping: {StateStopped},
}

func (s ModuleState) canTransitionTo(next ModuleState) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// DeployRequest asks a node to deploy a package under Name.
type DeployRequest struct {
	Name string `json:"name" yaml:"name"`
	// SourceLocator is a local path or an http(s) URL. When Content is set
	// only its base name is used, as the persisted file name.
	SourceLocator string `json:"source,omitempty" yaml:"source,omitempty"`
	Content       []byte `json:"-" yaml:"-"`
	ContentType   string `json:"content_type,omitempty" yaml:"content_type,omitempty"`
}

// NodeResult is the outcome of a deploy on one node.
type NodeResult struct {
	Node    string `json:"node"`
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ClusterResponse aggregates node results. Deployed is true only when every
// node succeeded.
type ClusterResponse struct {
	Nodes    []NodeResult `json:"nodes"`
	Deployed bool         `json:"deployed"`
}

// ExtractedBundle is the on-disk result of extracting a package.
type ExtractedBundle struct {
	Root  string
	Units []string
}

// Descriptor declares the entry type of a bundle.
type Descriptor struct {
	Entry       string `json:"plugin" yaml:"plugin"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Version     string `json:"version,omitempty" yaml:"version,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Path        string `json:"-" yaml:"-"`
}

// ModuleSummary is the read-side view of a registered module.
type ModuleSummary struct {
	Name        string    `json:"name"`
	Plugin      string    `json:"plugin"`
	Description string    `json:"description,omitempty"`
	Entry       string    `json:"entry"`
	Version     string    `json:"version,omitempty"`
	State       string    `json:"state"`
	Services    []string  `json:"services"`
	Units       []string  `json:"units"`
	Generation  uint64    `json:"generation"`
	Warnings    int       `json:"warnings"`
	DeployedAt  time.Time `json:"deployed_at"`
}
