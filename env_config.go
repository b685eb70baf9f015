// env_config.go: Environment variable expansion and overrides for configuration
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// EnvPrefix is the prefix of every environment variable go-deploy reads.
const EnvPrefix = "GO_DEPLOY_"

// EnvConfigOptions configures ${VAR} expansion.
type EnvConfigOptions struct {
	// Prefix is tried before the bare variable name.
	Prefix string `json:"prefix" yaml:"prefix"`

	// FailOnMissing makes an unresolved variable without default an error.
	FailOnMissing bool `json:"fail_on_missing" yaml:"fail_on_missing"`

	// Defaults apply when neither the environment nor an inline default sets a value.
	Defaults map[string]string `json:"defaults,omitempty" yaml:"defaults,omitempty"`
}

// DefaultEnvConfigOptions returns the expansion defaults.
func DefaultEnvConfigOptions() EnvConfigOptions {
	return EnvConfigOptions{
		Prefix:   EnvPrefix,
		Defaults: make(map[string]string),
	}
}

var envVariablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnvironmentVariables expands ${VAR} and ${VAR:-default} in input.
//
// Resolution order: prefixed variable, bare variable, inline default,
// configured default. With FailOnMissing an unresolved variable is an error,
// otherwise it expands to the empty string.
func ExpandEnvironmentVariables(input string, options EnvConfigOptions) (string, error) {
	if input == "" {
		return input, nil
	}

	var missing []string
	result := envVariablePattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := envVariablePattern.FindStringSubmatch(match)
		name := sub[1]
		hasInline := sub[2] != ""

		if options.Prefix != "" && !strings.HasPrefix(name, options.Prefix) {
			if v, ok := os.LookupEnv(options.Prefix + name); ok {
				return v
			}
		}
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		if hasInline {
			return sub[3]
		}
		if v, ok := options.Defaults[name]; ok {
			return v
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 && options.FailOnMissing {
		return "", fmt.Errorf("unresolved environment variables: %s", strings.Join(missing, ", "))
	}
	return result, nil
}

// applyEnvOverrides lets GO_DEPLOY_* variables override file configuration.
func applyEnvOverrides(cfg *Config) error {
	if v, ok := os.LookupEnv(EnvPrefix + "ROOT"); ok && v != "" {
		cfg.Root = v
	}
	if v, ok := os.LookupEnv(EnvPrefix + "SUBSYSTEM"); ok && v != "" {
		cfg.Subsystem = v
	}
	if v, ok := os.LookupEnv(EnvPrefix + "ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return NewConfigValidationError(EnvPrefix + "ENABLED must be a boolean")
		}
		cfg.Enabled = &b
	}
	if v, ok := os.LookupEnv(EnvPrefix + "ALLOWED_DOMAINS"); ok {
		cfg.AllowedDomains = Settings{"d": v}.Strings("d")
	}
	if v, ok := os.LookupEnv(EnvPrefix + "POOL_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return NewConfigValidationError(EnvPrefix + "POOL_SIZE must be an integer")
		}
		cfg.PoolSize = n
	}
	if v, ok := os.LookupEnv(EnvPrefix + "GRPC_ADDRESS"); ok && v != "" {
		cfg.GRPCAddress = v
	}
	if v, ok := os.LookupEnv(EnvPrefix + "NODE_ID"); ok && v != "" {
		cfg.NodeID = v
	}
	if v, ok := os.LookupEnv(EnvPrefix + "LOG_LEVEL"); ok && v != "" {
		cfg.LogLevel = v
	}
	return nil
}
