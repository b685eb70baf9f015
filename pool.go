// pool.go: Bounded worker pool for management tasks
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ManagementPool runs deploy and undeploy work on a fixed number of slots,
// apart from whatever serves the host's primary traffic.
//
// The context passed to Run only gates admission. Once a task holds a slot it
// runs to completion.
type ManagementPool struct {
	sem    *semaphore.Weighted
	size   int64
	logger Logger

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
	active   atomic.Int64
	done     atomic.Int64
}

// NewManagementPool creates a pool with size slots. size <= 0 uses 5.
func NewManagementPool(size int, logger any) *ManagementPool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	return &ManagementPool{
		sem:    semaphore.NewWeighted(int64(size)),
		size:   int64(size),
		logger: NewLogger(logger),
	}
}

// Run executes task on a pool slot and returns its error. It blocks until a
// slot is free or ctx is done.
func (p *ManagementPool) Run(ctx context.Context, task func() error) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return NewPoolClosedError()
	}
	p.inflight.Add(1)
	p.mu.RUnlock()
	defer p.inflight.Done()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return NewPoolRejectedError(err)
	}
	p.active.Add(1)
	defer func() {
		p.active.Add(-1)
		p.done.Add(1)
		p.sem.Release(1)
	}()
	return safeCall(task)
}

// Size returns the number of slots.
func (p *ManagementPool) Size() int { return int(p.size) }

// Active returns the number of tasks currently running.
func (p *ManagementPool) Active() int64 { return p.active.Load() }

// Completed returns the number of tasks that finished.
func (p *ManagementPool) Completed() int64 { return p.done.Load() }

// Close stops admitting tasks and waits for admitted ones to finish.
func (p *ManagementPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.inflight.Wait()
	p.logger.Debug("Management pool closed", "completed", p.done.Load())
}
