// metrics.go: Deploy metrics collection
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"sort"
	"strings"
	"sync"
)

// MetricsCollector receives deploy metrics. Labels are optional.
//
//	collector.IncrementCounter("deploys_total", map[string]string{"module": "demo"}, 1)
//	collector.SetGauge("modules_active", nil, 3)
//	collector.RecordHistogram("deploy_duration_seconds", map[string]string{"module": "demo"}, 0.42)
type MetricsCollector interface {
	IncrementCounter(name string, labels map[string]string, value int64)
	SetGauge(name string, labels map[string]string, value float64)
	RecordHistogram(name string, labels map[string]string, value float64)
	GetMetrics() map[string]interface{}
}

// DefaultMetricsCollector keeps metrics in memory.
type DefaultMetricsCollector struct {
	mu         sync.RWMutex
	counters   map[string]int64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewDefaultMetricsCollector creates a new in-memory collector.
func NewDefaultMetricsCollector() *DefaultMetricsCollector {
	return &DefaultMetricsCollector{
		counters:   make(map[string]int64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

// IncrementCounter implements MetricsCollector
func (c *DefaultMetricsCollector) IncrementCounter(name string, labels map[string]string, value int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[metricKey(name, labels)] += value
}

// SetGauge implements MetricsCollector
func (c *DefaultMetricsCollector) SetGauge(name string, labels map[string]string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[metricKey(name, labels)] = value
}

// RecordHistogram implements MetricsCollector
func (c *DefaultMetricsCollector) RecordHistogram(name string, labels map[string]string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := metricKey(name, labels)
	c.histograms[key] = append(c.histograms[key], value)
	// keep the last 1000 samples
	if len(c.histograms[key]) > 1000 {
		c.histograms[key] = c.histograms[key][len(c.histograms[key])-1000:]
	}
}

// GetMetrics implements MetricsCollector
func (c *DefaultMetricsCollector) GetMetrics() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]interface{}, len(c.counters)+len(c.gauges)+2*len(c.histograms))
	for k, v := range c.counters {
		out[k] = v
	}
	for k, v := range c.gauges {
		out[k] = v
	}
	for k, v := range c.histograms {
		sum := 0.0
		for _, s := range v {
			sum += s
		}
		out[k+"_count"] = len(v)
		out[k+"_sum"] = sum
	}
	return out
}

// Counter returns the counter value for name and labels.
func (c *DefaultMetricsCollector) Counter(name string, labels map[string]string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counters[metricKey(name, labels)]
}

// Gauge returns the gauge value for name and labels.
func (c *DefaultMetricsCollector) Gauge(name string, labels map[string]string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gauges[metricKey(name, labels)]
}

func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(labels[k])
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

// NoOpMetricsCollector discards metrics.
type NoOpMetricsCollector struct{}

// NewNoOpMetricsCollector creates a collector that discards everything.
func NewNoOpMetricsCollector() *NoOpMetricsCollector { return &NoOpMetricsCollector{} }

func (NoOpMetricsCollector) IncrementCounter(string, map[string]string, int64) {}
func (NoOpMetricsCollector) SetGauge(string, map[string]string, float64)       {}
func (NoOpMetricsCollector) RecordHistogram(string, map[string]string, float64) {}
func (NoOpMetricsCollector) GetMetrics() map[string]interface{}                { return map[string]interface{}{} }
