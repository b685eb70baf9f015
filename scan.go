// scan.go: Recursive bundle scanning for units, descriptors and configuration
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScanConfig controls how a bundle directory is walked.
type ScanConfig struct {
	// DescriptorNames are file names recognized as a bundle descriptor.
	DescriptorNames []string `json:"descriptor_names,omitempty" yaml:"descriptor_names,omitempty"`

	// ConfigNames are file names recognized as embedded bundle configuration.
	ConfigNames []string `json:"config_names,omitempty" yaml:"config_names,omitempty"`

	// MaxDepth bounds recursion below the bundle root.
	MaxDepth int `json:"max_depth,omitempty" yaml:"max_depth,omitempty"`

	// ExcludePaths skips any directory below the bundle root whose name
	// contains one of these fragments. The root and its ancestors are never
	// matched.
	ExcludePaths []string `json:"exclude_paths,omitempty" yaml:"exclude_paths,omitempty"`
}

// DefaultScanConfig returns the scan defaults.
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		DescriptorNames: []string{"plugin.yaml", "plugin.yml", "plugin.json", "plugin.properties", "plugin.toml"},
		ConfigNames:     []string{"config.yaml", "config.yml", "config.json", "config.properties", "config.toml"},
		MaxDepth:        8,
		ExcludePaths:    []string{".git", "__MACOSX"},
	}
}

func (c *ScanConfig) applyDefaults() {
	def := DefaultScanConfig()
	if len(c.DescriptorNames) == 0 {
		c.DescriptorNames = def.DescriptorNames
	}
	if len(c.ConfigNames) == 0 {
		c.ConfigNames = def.ConfigNames
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = def.MaxDepth
	}
	if c.ExcludePaths == nil {
		c.ExcludePaths = def.ExcludePaths
	}
}

// scanResult is what a walk of one bundle found. All slices are sorted.
type scanResult struct {
	Units       []string
	Descriptors []string
	Configs     []string
}

type bundleScanner struct {
	config  ScanConfig
	matches func(path string) bool
	logger  Logger
}

func (s *bundleScanner) scan(ctx context.Context, root string) (*scanResult, error) {
	result := &scanResult{}
	if err := s.scanDirectory(ctx, root, "", 0, result); err != nil {
		return nil, err
	}
	sort.Strings(result.Units)
	sort.Strings(result.Descriptors)
	sort.Strings(result.Configs)
	return result, nil
}

// scanDirectory walks path. rel is path relative to the bundle root, empty
// for the root itself.
func (s *bundleScanner) scanDirectory(ctx context.Context, path, rel string, depth int, result *scanResult) error {
	if !s.shouldScanPath(rel, depth) {
		return nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return NewSourceUnreadableError(path, err)
	}

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return NewLoadCancelledError(path, ctx.Err())
		default:
		}

		fullPath := filepath.Join(path, entry.Name())
		if entry.IsDir() {
			if err := s.scanDirectory(ctx, fullPath, filepath.Join(rel, entry.Name()), depth+1, result); err != nil {
				if HasCode(err, ErrCodeLoadCancelled) {
					return err
				}
				s.logger.Warn("Failed to scan bundle directory", "path", fullPath, "error", err)
			}
			continue
		}
		s.classify(entry.Name(), fullPath, result)
	}
	return nil
}

func (s *bundleScanner) shouldScanPath(rel string, depth int) bool {
	if depth > s.config.MaxDepth {
		return false
	}
	if rel == "" {
		return true
	}
	for _, segment := range strings.Split(filepath.ToSlash(rel), "/") {
		for _, exclude := range s.config.ExcludePaths {
			if exclude != "" && strings.Contains(segment, exclude) {
				return false
			}
		}
	}
	return true
}

func (s *bundleScanner) classify(name, fullPath string, result *scanResult) {
	switch {
	case containsFold(s.config.DescriptorNames, name):
		result.Descriptors = append(result.Descriptors, fullPath)
	case containsFold(s.config.ConfigNames, name):
		result.Configs = append(result.Configs, fullPath)
	case s.matches != nil && s.matches(fullPath):
		result.Units = append(result.Units, fullPath)
	}
}

func containsFold(list []string, name string) bool {
	for _, candidate := range list {
		if strings.EqualFold(candidate, name) {
			return true
		}
	}
	return false
}
