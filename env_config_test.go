// env_config_test.go: environment expansion tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnvironmentVariables(t *testing.T) {
	t.Setenv("DEPLOY_TEST_HOST", "bare.example.com")
	t.Setenv("GO_DEPLOY_DEPLOY_TEST_PORT", "7401")
	t.Setenv("DEPLOY_TEST_PORT", "9999")

	options := DefaultEnvConfigOptions()
	options.Defaults["DEPLOY_TEST_REGION"] = "eu-west"

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"Empty", "", ""},
		{"NoReferences", "root: /srv", "root: /srv"},
		{"Bare", "host: ${DEPLOY_TEST_HOST}", "host: bare.example.com"},
		{"PrefixedWins", "port: ${DEPLOY_TEST_PORT}", "port: 7401"},
		{"InlineDefault", "level: ${DEPLOY_TEST_LEVEL:-warn}", "level: warn"},
		{"EmptyInlineDefault", "x: ${DEPLOY_TEST_LEVEL:-}", "x: "},
		{"ConfiguredDefault", "region: ${DEPLOY_TEST_REGION}", "region: eu-west"},
		{"MissingExpandsEmpty", "v: ${DEPLOY_TEST_NOPE}", "v: "},
		{"Multiple", "${DEPLOY_TEST_HOST}:${DEPLOY_TEST_PORT}", "bare.example.com:7401"},
		{"NotAVariable", "cost: $5 {x}", "cost: $5 {x}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandEnvironmentVariables(tt.input, options)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpandEnvironmentVariables_FailOnMissing(t *testing.T) {
	options := DefaultEnvConfigOptions()
	options.FailOnMissing = true

	_, err := ExpandEnvironmentVariables("a: ${DEPLOY_TEST_ABSENT_A}\nb: ${DEPLOY_TEST_ABSENT_B}", options)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEPLOY_TEST_ABSENT_A")
	assert.Contains(t, err.Error(), "DEPLOY_TEST_ABSENT_B")

	got, err := ExpandEnvironmentVariables("a: ${DEPLOY_TEST_ABSENT_A:-ok}", options)
	require.NoError(t, err)
	assert.Equal(t, "a: ok", got)
}

func TestApplyEnvOverrides_InvalidValues(t *testing.T) {
	cfg := DefaultConfig("/r")
	t.Setenv("GO_DEPLOY_ENABLED", "sometimes")
	err := applyEnvOverrides(&cfg)
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeConfigValidationError))
}
