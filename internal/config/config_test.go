package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	require.Equal(t, ":9011", cfg.Listen)
	require.Equal(t, uint64(300), cfg.LatencyMs)
	require.Equal(t, "tcp", cfg.Transport)
}

func TestServerConfigEnvOverridesDefault(t *testing.T) {
	t.Setenv("SYNC_SERVER_LISTEN", ":7777")
	t.Setenv("SYNC_SERVER_LATENCY_MS", "50")

	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	require.Equal(t, ":7777", cfg.Listen)
	require.Equal(t, uint64(50), cfg.LatencyMs)
}

func TestServerConfigFileOverlayWinsOverEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":8001\"\nplaylist: /srv/playlist.txt\n"), 0o600))

	t.Setenv("SYNC_SERVER_LISTEN", ":7777")
	t.Setenv("SYNC_SERVER_CONFIG_FILE", path)

	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	require.Equal(t, ":8001", cfg.Listen, "file keys win over environment")
	require.Equal(t, "/srv/playlist.txt", cfg.Playlist)
	require.Equal(t, "tcp", cfg.Transport, "keys absent from the file keep env/default values")
}

func TestClientConfigMissingFileIsIgnored(t *testing.T) {
	t.Setenv("SYNC_CLIENT_CONFIG_FILE", filepath.Join(t.TempDir(), "no-such.yaml"))
	t.Setenv("SYNC_CLIENT_ID", "wall-3")

	cfg, err := LoadClientConfig()
	require.NoError(t, err)
	require.Equal(t, "wall-3", cfg.ClientID)
	require.Equal(t, "127.0.0.1:9011", cfg.ServerAddr)
}
