// events.go: Deploy lifecycle events
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

// Deploy event types.
const (
	EventDeployStarted   = "deploy.started"
	EventDeploySucceeded = "deploy.succeeded"
	EventDeployFailed    = "deploy.failed"
	EventModuleStopped   = "module.stopped"
	EventModuleRemoved   = "module.removed"
)

// DeployEvent describes one step of a module's life on this node.
type DeployEvent struct {
	Type       string                 `json:"type"`
	Timestamp  time.Time              `json:"timestamp"`
	Module     string                 `json:"module"`
	DeployID   string                 `json:"deploy_id,omitempty"`
	Generation uint64                 `json:"generation,omitempty"`
	State      ModuleState            `json:"state"`
	Error      error                  `json:"error,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// DeployEventHandler receives deploy events. Handlers run on their own
// goroutine; a panicking handler is logged and discarded.
type DeployEventHandler func(event DeployEvent)

type eventBus struct {
	mu       sync.RWMutex
	handlers []DeployEventHandler
	logger   Logger
}

func (b *eventBus) add(h DeployEventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

func (b *eventBus) emit(event DeployEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = timecache.CachedTime()
	}
	b.mu.RLock()
	handlers := make([]DeployEventHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, handler := range handlers {
		go func(h DeployEventHandler) {
			defer withStackRecover(b.logger)()
			h(event)
		}(handler)
	}
}
