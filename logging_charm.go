// logging_charm.go: Logger adapter for charmbracelet/log
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"io"
	"strings"

	"github.com/charmbracelet/log"
)

// CharmLogger adapts a *log.Logger from charmbracelet/log to Logger.
type CharmLogger struct {
	l *log.Logger
}

// NewCharmLogger wraps an existing charmbracelet logger.
func NewCharmLogger(l *log.Logger) *CharmLogger {
	return &CharmLogger{l: l}
}

// NewCharmLoggerWithLevel builds a timestamped charmbracelet logger writing to w.
// Unknown level names fall back to info.
func NewCharmLoggerWithLevel(w io.Writer, prefix, level string) *CharmLogger {
	l := log.NewWithOptions(w, log.Options{
		Prefix:          prefix,
		ReportTimestamp: true,
	})
	if lvl, err := log.ParseLevel(strings.ToLower(level)); err == nil {
		l.SetLevel(lvl)
	} else {
		l.SetLevel(log.InfoLevel)
	}
	return &CharmLogger{l: l}
}

func (c *CharmLogger) Debug(msg string, args ...any) { c.l.Debug(msg, args...) }
func (c *CharmLogger) Info(msg string, args ...any)  { c.l.Info(msg, args...) }
func (c *CharmLogger) Warn(msg string, args ...any)  { c.l.Warn(msg, args...) }
func (c *CharmLogger) Error(msg string, args ...any) { c.l.Error(msg, args...) }

// With implements Logger interface
func (c *CharmLogger) With(args ...any) Logger {
	return &CharmLogger{l: c.l.With(args...)}
}
