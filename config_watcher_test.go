// config_watcher_test.go: configuration hot reload tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeNodeConfig(t *testing.T, path, root, extra string) {
	t.Helper()
	content := "root: " + root + "\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestConfigWatcher_RejectsBadArguments(t *testing.T) {
	td := newTestDeployer(t, nil)

	_, err := NewConfigWatcher("", td.Deployer, ConfigWatcherOptions{}, nil)
	assert.True(t, HasCode(err, ErrCodeConfigValidationError))

	_, err = NewConfigWatcher("/tmp/node.yaml", nil, ConfigWatcherOptions{}, nil)
	assert.True(t, HasCode(err, ErrCodeConfigValidationError))
}

func TestConfigWatcher_StartAppliesInitialConfig(t *testing.T) {
	td := newTestDeployer(t, nil)
	path := filepath.Join(t.TempDir(), "node.yaml")
	writeNodeConfig(t, path, td.root, `enabled: false
allowed_domains: [artifacts.example.com]
settings:
  cluster:
    name: prod
`)

	reloaded := make(chan Config, 4)
	cw, err := NewConfigWatcher(path, td.Deployer, ConfigWatcherOptions{
		PollInterval: 50 * time.Millisecond,
		OnReload:     func(cfg Config) { reloaded <- cfg },
	}, td.logger)
	require.NoError(t, err)

	require.NoError(t, cw.Start())
	defer func() { _ = cw.Stop() }()
	assert.True(t, cw.IsRunning())

	assert.False(t, td.Enabled())
	assert.Equal(t, []string{"artifacts.example.com"}, td.AllowedDomains())
	assert.Equal(t, "prod", td.Settings().String("cluster.name", ""))

	current, ok := cw.Current()
	require.True(t, ok)
	assert.False(t, current.IsEnabled())

	select {
	case cfg := <-reloaded:
		assert.False(t, cfg.IsEnabled())
	default:
		t.Fatal("OnReload was not called for the initial load")
	}
	assert.True(t, td.logger.HasMessage("INFO", "Configuration applied"))
	assert.ErrorContains(t, cw.Start(), "already running")
}

func TestConfigWatcher_ReloadsOnChange(t *testing.T) {
	td := newTestDeployer(t, nil)
	path := filepath.Join(t.TempDir(), "node.yaml")
	writeNodeConfig(t, path, td.root, "allowed_domains: [one.example.com]\n")

	cw, err := NewConfigWatcher(path, td.Deployer, ConfigWatcherOptions{
		PollInterval: 50 * time.Millisecond,
		CacheTTL:     10 * time.Millisecond,
	}, td.logger)
	require.NoError(t, err)
	require.NoError(t, cw.Start())
	defer func() { _ = cw.Stop() }()

	// Ensure the modification time moves on coarse-grained filesystems.
	time.Sleep(1100 * time.Millisecond)
	writeNodeConfig(t, path, td.root, "allowed_domains: [two.example.com]\nenabled: false\n")

	assert.Eventually(t, func() bool {
		domains := td.AllowedDomains()
		return len(domains) == 1 && domains[0] == "two.example.com" && !td.Enabled()
	}, 5*time.Second, 25*time.Millisecond)
}

func TestConfigWatcher_InitialLoadFailure(t *testing.T) {
	td := newTestDeployer(t, nil)
	cw, err := NewConfigWatcher(filepath.Join(t.TempDir(), "missing.yaml"), td.Deployer, ConfigWatcherOptions{}, nil)
	require.NoError(t, err)

	err = cw.Start()
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeConfigWatcherError))
	assert.False(t, cw.IsRunning())
}

func TestConfigWatcher_StopIsFinal(t *testing.T) {
	td := newTestDeployer(t, nil)
	path := filepath.Join(t.TempDir(), "node.yaml")
	writeNodeConfig(t, path, td.root, "")

	cw, err := NewConfigWatcher(path, td.Deployer, ConfigWatcherOptions{PollInterval: 50 * time.Millisecond}, nil)
	require.NoError(t, err)
	require.NoError(t, cw.Start())

	require.NoError(t, cw.Stop())
	require.NoError(t, cw.Stop())
	assert.False(t, cw.IsRunning())

	err = cw.Start()
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeConfigWatcherError))
}
