// settings_test.go: flattened settings tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSettings_Flattens(t *testing.T) {
	s := NewSettings(map[string]any{
		"cluster": map[string]any{
			"name": "prod",
			"index": map[any]any{
				"shards": 2,
			},
		},
		"enabled": true,
	})

	assert.Equal(t, []string{"cluster.index.shards", "cluster.name", "enabled"}, s.Keys())
	assert.Equal(t, "prod", s.String("cluster.name", ""))
	assert.Equal(t, 2, s.Int("cluster.index.shards", 0))
	assert.True(t, s.Bool("enabled", false))
}

func TestSettings_TypedAccessors(t *testing.T) {
	s := Settings{
		"str":      "value",
		"num":      42,
		"num64":    int64(7),
		"float":    3.0,
		"numstr":   " 12 ",
		"badnum":   "twelve",
		"boolstr":  "true",
		"badbool":  "maybe",
		"list":     []any{"a", 1},
		"typed":    []string{"x", "y"},
		"csv":      "a, b,,c",
		"nilvalue": nil,
	}

	assert.Equal(t, "value", s.String("str", "def"))
	assert.Equal(t, "42", s.String("num", "def"))
	assert.Equal(t, "def", s.String("missing", "def"))
	assert.Equal(t, "def", s.String("nilvalue", "def"))

	assert.Equal(t, 42, s.Int("num", 0))
	assert.Equal(t, 7, s.Int("num64", 0))
	assert.Equal(t, 3, s.Int("float", 0))
	assert.Equal(t, 12, s.Int("numstr", 0))
	assert.Equal(t, -1, s.Int("badnum", -1))

	assert.True(t, s.Bool("boolstr", false))
	assert.True(t, s.Bool("badbool", true))
	assert.False(t, s.Bool("missing", false))

	assert.Equal(t, []string{"a", "1"}, s.Strings("list"))
	assert.Equal(t, []string{"x", "y"}, s.Strings("typed"))
	assert.Equal(t, []string{"a", "b", "c"}, s.Strings("csv"))
	assert.Nil(t, s.Strings("num"))

	v, ok := s.Get("str")
	assert.True(t, ok)
	assert.Equal(t, "value", v)
}

func TestSettings_MergeOverlayWins(t *testing.T) {
	base := Settings{"a": 1, "b": 2}
	merged := base.Merge(Settings{"b": 3, "c": 4})

	assert.Equal(t, Settings{"a": 1, "b": 3, "c": 4}, merged)
	assert.Equal(t, Settings{"a": 1, "b": 2}, base, "merge must not mutate the receiver")
}

func TestLoadSettingsFile(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"config.yaml": "index:\n  shards: 3\nlabel: v2\n",
		"config.json": `{"index": {"replicas": 1}}`,
		"broken.yaml": "index: [unterminated\n",
	})

	s, err := LoadSettingsFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 3, s.Int("index.shards", 0))
	assert.Equal(t, "v2", s.String("label", ""))

	s, err = LoadSettingsFile(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Int("index.replicas", 0))

	_, err = LoadSettingsFile(filepath.Join(dir, "missing.yaml"))
	assert.True(t, HasCode(err, ErrCodeConfigNotFound))

	_, err = LoadSettingsFile(filepath.Join(dir, "broken.yaml"))
	assert.True(t, HasCode(err, ErrCodeConfigParseError))
}
