package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tanq16/chunkrelay/internal/chunk"
)

const sample = `
device:
  serial: dev-0042
  hardware_version: dvt
  software_type: main
  software_version: 1.0.0
collector:
  base_url: https://collector.example.com
  project_key: pk-live
  oauth:
    token_url: https://auth.example.com/token
    client_id: fleet
    client_secret: s3cret
    scopes: [chunks.write]
store:
  path: /var/lib/chunkrelay
  compress: true
uplink:
  chunk_size: 512
  channel: s3
ota:
  buffer_size: 128
  source: s3://firmware/main/app.bin
s3:
  bucket: crash-chunks
  prefix: fleet
  region: eu-west-1
http:
  timeout: 15s
  headers:
    - "X-Fleet: blue"
`

func writeFile(t *testing.T, name, body string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "chunkrelay.yaml", sample), true, "")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "dev-0042", cfg.Device.Serial)
	require.Equal(t, "1.0.0", cfg.Device.SoftwareVersion)
	require.Equal(t, "pk-live", cfg.Collector.ProjectKey)
	require.Equal(t, []string{"chunks.write"}, cfg.Collector.OAuth.Scopes)
	require.True(t, cfg.Store.Compress)
	require.Equal(t, 512, cfg.Uplink.ChunkSize)
	require.Equal(t, "s3", cfg.Uplink.Channel)
	require.Equal(t, 128, cfg.OTA.BufferSize)
	require.Equal(t, "crash-chunks", cfg.S3.Bucket)
	require.Equal(t, 15*time.Second, cfg.HTTP.Timeout)
	// untouched sections keep defaults
	require.Equal(t, ":8745", cfg.Serve.Listen)
	require.Equal(t, ".", cfg.OTA.OutputDir)

	hc := cfg.HTTPClientConfig()
	require.Equal(t, "blue", hc.Headers["X-Fleet"])
	require.Equal(t, "fleet", hc.OAuth.ClientID)
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.yaml")
	cfg, err := Load(missing, false, "")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	_, err = Load(missing, true, "")
	require.Error(t, err)
}

func TestEnvOverridesFileAndDotenv(t *testing.T) {
	dotenv := writeFile(t, ".env", "CHUNKRELAY_DEVICE_SERIAL=from-dotenv\nCHUNKRELAY_CHUNK_SIZE=256\nCHUNKRELAY_OAUTH_CLIENT_SECRET=rotated\n")
	t.Setenv("CHUNKRELAY_CHUNK_SIZE", "2048")
	t.Setenv("CHUNKRELAY_STORE_COMPRESS", "false")
	t.Setenv("CHUNKRELAY_HTTP_TIMEOUT", "5s")

	cfg, err := Load(writeFile(t, "c.yaml", sample), true, dotenv)
	require.NoError(t, err)
	require.Equal(t, "from-dotenv", cfg.Device.Serial)
	require.Equal(t, 2048, cfg.Uplink.ChunkSize)
	require.False(t, cfg.Store.Compress)
	require.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
	require.Equal(t, "rotated", cfg.Collector.OAuth.ClientSecret)
	require.Equal(t, "fleet", cfg.Collector.OAuth.ClientID)
}

func TestEnvRejectsBadNumbers(t *testing.T) {
	t.Setenv("CHUNKRELAY_OTA_BUFFER_SIZE", "lots")
	_, err := Load("", false, "")
	require.ErrorIs(t, err, chunk.ErrInvalidArgument)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero chunk size", mutate: func(c *Config) { c.Uplink.ChunkSize = 0 }},
		{name: "chunk size below store minimum", mutate: func(c *Config) { c.Uplink.ChunkSize = 8 }},
		{name: "zero ota buffer", mutate: func(c *Config) { c.OTA.BufferSize = 0 }},
		{name: "unknown channel", mutate: func(c *Config) { c.Uplink.Channel = "carrier-pigeon" }},
		{name: "header without colon", mutate: func(c *Config) { c.HTTP.Headers = []string{"X-Fleet blue"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), chunk.ErrInvalidArgument)
		})
	}
	require.NoError(t, Default().Validate())
}
