// audit.go: Deploy audit trail backed by the argus audit logger
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"sync"
	"time"

	"github.com/agilira/argus"
	"github.com/agilira/go-timecache"
)

// AuditOptions configures the deploy audit trail.
type AuditOptions struct {
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	OutputFile    string        `json:"output_file,omitempty" yaml:"output_file,omitempty"`
	BufferSize    int           `json:"buffer_size,omitempty" yaml:"buffer_size,omitempty"`
	FlushInterval time.Duration `json:"flush_interval,omitempty" yaml:"flush_interval,omitempty"`
}

// Audit event types.
const (
	AuditDeployStarted   = "deploy_started"
	AuditDeploySucceeded = "deploy_succeeded"
	AuditDeployFailed    = "deploy_failed"
	AuditModuleStopped   = "module_stopped"
	AuditUndeploy        = "module_undeployed"
	AuditAccessDenied    = "source_access_denied"
	AuditConfigReloaded  = "config_reloaded"
)

// AuditTrail records deploy security events. A disabled trail drops events.
type AuditTrail struct {
	mu     sync.Mutex
	logger *argus.AuditLogger
	closed bool
}

// NewAuditTrail opens the audit trail described by opts.
func NewAuditTrail(opts AuditOptions) (*AuditTrail, error) {
	if !opts.Enabled {
		return &AuditTrail{}, nil
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}
	logger, err := argus.NewAuditLogger(argus.AuditConfig{
		Enabled:       true,
		OutputFile:    opts.OutputFile,
		MinLevel:      argus.AuditInfo,
		BufferSize:    opts.BufferSize,
		FlushInterval: opts.FlushInterval,
	})
	if err != nil {
		return nil, NewAuditError("failed to create audit logger", err)
	}
	return &AuditTrail{logger: logger}, nil
}

// Enabled reports whether events are recorded.
func (a *AuditTrail) Enabled() bool {
	return a != nil && a.logger != nil
}

// Record writes one event. Context keys are copied; a timestamp is added.
func (a *AuditTrail) Record(eventType, message string, context map[string]interface{}) {
	if !a.Enabled() {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	fields := make(map[string]interface{}, len(context)+1)
	for k, v := range context {
		fields[k] = v
	}
	fields["timestamp"] = timecache.CachedTime().UTC().Format(time.RFC3339Nano)
	a.logger.LogSecurityEvent(eventType, message, fields)
}

// Close flushes and closes the trail.
func (a *AuditTrail) Close() error {
	if !a.Enabled() {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.logger.Close()
}
