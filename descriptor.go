// descriptor.go: Bundle descriptor parsing
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"os"
	"path/filepath"
	"strings"
)

// ParseDescriptorFile reads a descriptor in any format argus or yaml.v3 can
// parse. The "plugin" key names the entry type.
func ParseDescriptorFile(path string) (Descriptor, error) {
	// #nosec G304 -- path was found by scanning the bundle root
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Descriptor{}, NewDescriptorInvalidError(path, "unreadable", err)
	}
	raw, err := parseConfigBytes(data, path)
	if err != nil {
		return Descriptor{}, NewDescriptorInvalidError(path, "unparsable", err)
	}

	s := NewSettings(raw)
	desc := Descriptor{
		Entry:       strings.TrimSpace(s.String("plugin", "")),
		Name:        s.String("name", ""),
		Version:     s.String("version", ""),
		Description: s.String("description", ""),
		Path:        path,
	}
	if desc.Entry == "" {
		return Descriptor{}, NewDescriptorInvalidError(path, "no plugin entry declared", nil)
	}
	return desc, nil
}
