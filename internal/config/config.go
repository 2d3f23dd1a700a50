// Package config defines the process-bootstrap configuration for both
// binaries: envconfig structs with .env support, plus an optional YAML
// file overlay for deployments that prefer files over environment.
package config

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// ServerConfig configures cmd/sync-server. None of these fields are part
// of the wire protocol; they are purely local process bootstrap.
type ServerConfig struct {
	Listen             string `envconfig:"SYNC_SERVER_LISTEN" yaml:"listen" default:":9011"`
	Playlist           string `envconfig:"SYNC_SERVER_PLAYLIST" yaml:"playlist" default:"playlist.txt"`
	ClockAddress       string `envconfig:"SYNC_SERVER_CLOCK_ADDRESS" yaml:"clock-address" default:"127.0.0.1"`
	ClockPort          uint16 `envconfig:"SYNC_SERVER_CLOCK_PORT" yaml:"clock-port" default:"0"`
	LatencyMs          uint64 `envconfig:"SYNC_SERVER_LATENCY_MS" yaml:"latency-ms" default:"300"`
	StreamStartDelayMs uint64 `envconfig:"SYNC_SERVER_STREAM_START_DELAY_MS" yaml:"stream-start-delay-ms" default:"3000"`
	Transport          string `envconfig:"SYNC_SERVER_TRANSPORT" yaml:"transport" default:"tcp"`
}

// ClientConfig configures cmd/sync-client.
type ClientConfig struct {
	ServerAddr string `envconfig:"SYNC_CLIENT_SERVER_ADDR" yaml:"server-addr" default:"127.0.0.1:9011"`
	ClientID   string `envconfig:"SYNC_CLIENT_ID" yaml:"client-id"`
	Transport  string `envconfig:"SYNC_CLIENT_TRANSPORT" yaml:"transport" default:"tcp"`
}

// LoadServerConfig loads .env (if present), processes ServerConfig from
// the environment, then overlays the YAML file named by
// SYNC_SERVER_CONFIG_FILE if one is set. Keys present in the file win
// over the environment; absent keys keep their env/default values.
func LoadServerConfig() (ServerConfig, error) {
	_ = godotenv.Load()

	var cfg ServerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return ServerConfig{}, err
	}
	if err := overlayFile(os.Getenv("SYNC_SERVER_CONFIG_FILE"), &cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// LoadClientConfig is the client counterpart of LoadServerConfig, with
// SYNC_CLIENT_CONFIG_FILE naming the optional YAML overlay.
func LoadClientConfig() (ClientConfig, error) {
	_ = godotenv.Load()

	var cfg ClientConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return ClientConfig{}, err
	}
	if err := overlayFile(os.Getenv("SYNC_CLIENT_CONFIG_FILE"), &cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func overlayFile(path string, out any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, out)
}
