package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Empty(t, cfg.Servers)
	require.Equal(t, DefaultScrolloff, cfg.UI.Scrolloff)
	require.Equal(t, DefaultLogInterval, cfg.UI.LogInterval)
	require.Equal(t, DefaultPingInterval, cfg.UI.PingInterval)
}

func TestLoadParsesServersAndUIOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /home/user/.grove
servers:
  - domain: euphoria.leet.nu
    tls: true
    autojoin: [test, lobby]
ui:
  scrolloff: 5
  log_interval: 30s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/home/user/.grove", cfg.DataDir)
	require.Len(t, cfg.Servers, 1)
	require.Equal(t, "euphoria.leet.nu", cfg.Servers[0].Domain)
	require.True(t, cfg.Servers[0].TLS)
	require.Equal(t, []string{"test", "lobby"}, cfg.Servers[0].Autojoin)
	require.Equal(t, 5, cfg.UI.Scrolloff)
	require.Equal(t, 30*time.Second, cfg.UI.LogInterval)
	require.Equal(t, DefaultPingInterval, cfg.UI.PingInterval, "unset knob still defaults")

	srv, ok := cfg.ServerByDomain("euphoria.leet.nu")
	require.True(t, ok)
	require.True(t, srv.TLS)

	_, ok = cfg.ServerByDomain("nowhere.example")
	require.False(t, ok)
}
