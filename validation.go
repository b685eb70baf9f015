// validation.go: Module name validation
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"strings"
)

var dangerousNameCharacters = []string{"~", "|", "&", ";", "$", "`", "(", ")", "[", "]", "{", "}", "<", ">", "*", "?", ":"}

// ValidateModuleName checks that name can be used as a registry key and a
// directory name under the plugins root.
func ValidateModuleName(name string) error {
	if strings.TrimSpace(name) == "" {
		return NewMissingNameError()
	}
	if name == "." || strings.Contains(name, "..") {
		return NewInvalidNameError(name, "path traversal")
	}
	if strings.ContainsAny(name, `/\`) {
		return NewInvalidNameError(name, "path separator")
	}
	for _, r := range name {
		if r < 32 || r == 127 {
			return NewInvalidNameError(name, "control character")
		}
	}
	for _, c := range dangerousNameCharacters {
		if strings.Contains(name, c) {
			return NewInvalidNameError(name, "character "+c+" not allowed")
		}
	}
	if len(name) > 255 {
		return NewInvalidNameError(name, "longer than 255 bytes")
	}
	return nil
}
