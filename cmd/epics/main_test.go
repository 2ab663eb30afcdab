package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("EPICS_WALLET_RPC", "http://127.0.0.1:9999")
	t.Setenv("EPICS_NODE_WS", "ws://127.0.0.1:8546")

	saved := globalFlags
	t.Cleanup(func() { globalFlags = saved })
	globalFlags = GlobalFlags{
		EnvFile:   filepath.Join(t.TempDir(), "missing.env"),
		WalletRPC: "http://127.0.0.1:1248",
		LogLevel:  "debug",
	}

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:1248", cfg.WalletRPC)
	assert.Equal(t, "ws://127.0.0.1:8546", cfg.NodeWS)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_Invalid(t *testing.T) {
	saved := globalFlags
	t.Cleanup(func() { globalFlags = saved })
	globalFlags = GlobalFlags{
		EnvFile:  filepath.Join(t.TempDir(), "missing.env"),
		Contract: "not-an-address",
	}

	_, err := loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestNewApp_Wires(t *testing.T) {
	saved := globalFlags
	t.Cleanup(func() { globalFlags = saved })
	globalFlags = GlobalFlags{
		EnvFile:  filepath.Join(t.TempDir(), "missing.env"),
		LogLevel: "error",
	}

	cfg, err := loadConfig()
	require.NoError(t, err)

	a, err := newApp(cfg)
	require.NoError(t, err)
	defer a.close()

	assert.False(t, a.ctrl.Snapshot().Connected())
	assert.Equal(t, cfg.DefaultMaxMint, a.ctrl.Snapshot().MaxSupply)
}

func TestRootCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"ui", "status", "connect", "mint", "gallery", "watch"} {
		assert.True(t, names[want], want)
	}
}

func TestStartSpinner(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	spinner := startSpinner(zap.New(core), "working")
	require.NotNil(t, spinner)
	require.NoError(t, spinner.Stop())

	assert.Zero(t, logs.FilterMessage("spinner unavailable").Len())
}
