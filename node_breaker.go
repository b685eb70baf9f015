// node_breaker.go: Circuit breaker guarding remote cluster nodes
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-timecache"
)

// BreakerState is the state of a node circuit breaker.
type BreakerState int32

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a node circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of transport failures that opens the circuit.
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold"`
	// RecoveryTimeout is how long the circuit stays open before a trial call is allowed.
	RecoveryTimeout time.Duration `json:"recovery_timeout" yaml:"recovery_timeout"`
	// SuccessThreshold is the number of trial successes that closes the circuit.
	SuccessThreshold int `json:"success_threshold" yaml:"success_threshold"`
}

// DefaultBreakerConfig returns thresholds suited to deploy traffic, which is
// rare and bursty.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 1,
	}
}

// BreakerStats is a snapshot of breaker counters.
type BreakerStats struct {
	State        BreakerState `json:"state"`
	FailureCount int64        `json:"failure_count"`
	SuccessCount int64        `json:"success_count"`
	LastFailure  time.Time    `json:"last_failure"`
}

// BreakerNode wraps a Node so that an unreachable member fails fast instead
// of holding every cluster deploy until its transport timeout.
//
// Only transport failures count against the node. A deploy the remote node
// rejected, for example an invalid package, is the package's fault and leaves
// the circuit closed.
type BreakerNode struct {
	node   Node
	config BreakerConfig

	state           atomic.Int32
	failureCount    atomic.Int64
	successCount    atomic.Int64
	trials          atomic.Int64
	lastFailureTime atomic.Int64

	mu sync.Mutex
}

// NewBreakerNode guards node with a breaker. Zero config fields take the
// DefaultBreakerConfig values.
func NewBreakerNode(node Node, config BreakerConfig) *BreakerNode {
	defaults := DefaultBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = defaults.RecoveryTimeout
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = defaults.SuccessThreshold
	}
	b := &BreakerNode{node: node, config: config}
	b.state.Store(int32(BreakerClosed))
	return b
}

// ID implements Node
func (b *BreakerNode) ID() string { return b.node.ID() }

// Deploy implements Node
func (b *BreakerNode) Deploy(ctx context.Context, req DeployRequest) (NodeResult, error) {
	if !b.allow() {
		err := NewNodeUnavailableError(b.node.ID(), b.config.RecoveryTimeout)
		return NodeResult{Node: b.node.ID(), Name: req.Name, Error: err.Error()}, err
	}
	res, err := b.node.Deploy(ctx, req)
	b.record(err)
	return res, err
}

// Read implements Node
func (b *BreakerNode) Read(ctx context.Context) (map[string]ModuleSummary, error) {
	if !b.allow() {
		return nil, NewNodeUnavailableError(b.node.ID(), b.config.RecoveryTimeout)
	}
	modules, err := b.node.Read(ctx)
	b.record(err)
	return modules, err
}

// State returns the current breaker state.
func (b *BreakerNode) State() BreakerState {
	return BreakerState(b.state.Load())
}

// Stats returns the breaker counters.
func (b *BreakerNode) Stats() BreakerStats {
	stats := BreakerStats{
		State:        b.State(),
		FailureCount: b.failureCount.Load(),
		SuccessCount: b.successCount.Load(),
	}
	if last := b.lastFailureTime.Load(); last != 0 {
		stats.LastFailure = time.Unix(0, last)
	}
	return stats
}

// Reset closes the circuit and clears the counters.
func (b *BreakerNode) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Store(int32(BreakerClosed))
	b.resetCounters()
}

func (b *BreakerNode) allow() bool {
	switch BreakerState(b.state.Load()) {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if !b.recoveryElapsed() {
			return false
		}
		b.mu.Lock()
		if BreakerState(b.state.Load()) == BreakerOpen && b.recoveryElapsed() {
			b.state.Store(int32(BreakerHalfOpen))
			b.resetCounters()
		}
		b.mu.Unlock()
		return b.allow()
	case BreakerHalfOpen:
		return b.trials.Add(1) <= int64(b.config.SuccessThreshold)
	default:
		return false
	}
}

func (b *BreakerNode) record(err error) {
	if err != nil && KindOf(err) == KindTransport && !HasCode(err, ErrCodeRemoteFailure) {
		b.failureCount.Add(1)
		b.lastFailureTime.Store(timecache.CachedTimeNano())

		b.mu.Lock()
		defer b.mu.Unlock()
		switch BreakerState(b.state.Load()) {
		case BreakerHalfOpen:
			b.state.Store(int32(BreakerOpen))
		case BreakerClosed:
			if b.failureCount.Load() >= int64(b.config.FailureThreshold) {
				b.state.Store(int32(BreakerOpen))
			}
		}
		return
	}

	b.successCount.Add(1)
	if BreakerState(b.state.Load()) != BreakerHalfOpen {
		b.failureCount.Store(0)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if BreakerState(b.state.Load()) == BreakerHalfOpen && b.successCount.Load() >= int64(b.config.SuccessThreshold) {
		b.state.Store(int32(BreakerClosed))
		b.resetCounters()
	}
}

func (b *BreakerNode) recoveryElapsed() bool {
	last := b.lastFailureTime.Load()
	if last == 0 {
		return true
	}
	return time.Since(time.Unix(0, last)) >= b.config.RecoveryTimeout
}

// resetCounters must be called with mu held.
func (b *BreakerNode) resetCounters() {
	b.failureCount.Store(0)
	b.successCount.Store(0)
	b.trials.Store(0)
}
