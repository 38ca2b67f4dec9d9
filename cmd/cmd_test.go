package cmd

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tanq16/chunkrelay/internal/chunk"
	"github.com/tanq16/chunkrelay/internal/config"
	"github.com/tanq16/chunkrelay/internal/export"
	"github.com/tanq16/chunkrelay/internal/ota"
	"github.com/tanq16/chunkrelay/internal/output"
	"github.com/tanq16/chunkrelay/internal/uplink"
	"github.com/tanq16/chunkrelay/internal/utils"
)

func TestProxyCredentialsMovedOutOfURL(t *testing.T) {
	cfg = config.Default()
	cmd := newPostCmd()
	cmd.Flags().AddFlagSet(rootCmd.PersistentFlags())
	require.NoError(t, cmd.Flags().Set("proxy", "http://alice:pw@proxy.local:3128"))
	applyFlagOverrides(cmd)

	require.Equal(t, "http://proxy.local:3128", cfg.HTTP.Proxy)
	require.Equal(t, "alice", cfg.HTTP.ProxyUsername)
	require.Equal(t, "pw", cfg.HTTP.ProxyPassword)
}

func TestBuildResolver(t *testing.T) {
	cfg = config.Default()
	cfg.Device.Serial = "dev01"
	ctx := context.Background()

	r, err := buildResolver(ctx, "collector", "")
	require.NoError(t, err)
	require.IsType(t, &ota.HTTPResolver{}, r)

	r, err = buildResolver(ctx, "https://updates.example.com", "")
	require.NoError(t, err)
	require.IsType(t, &ota.HTTPResolver{}, r)

	r, err = buildResolver(ctx, "file:///tmp/app.bin", "1.0.0")
	require.NoError(t, err)
	require.IsType(t, &ota.FileResolver{}, r)
}

func TestBuildChannel(t *testing.T) {
	cfg = config.Default()
	cfg.Device.Serial = "dev01"
	ctx := context.Background()

	ch, err := buildChannel(ctx, "http")
	require.NoError(t, err)
	require.IsType(t, &uplink.HTTPChannel{}, ch)

	ch, err = buildChannel(ctx, "export")
	require.NoError(t, err)
	require.IsType(t, &export.Exporter{}, ch)

	_, err = buildChannel(ctx, "pigeon")
	require.Error(t, err)
}

func TestDeviceInfoPrints(t *testing.T) {
	cfg = config.Default()
	cfg.Device.Serial = "dev-77"
	var buf bytes.Buffer
	restore := setOutput(&buf)
	defer restore()
	require.NoError(t, newDeviceInfoCmd().RunE(nil, nil))
	require.Contains(t, buf.String(), "dev-77")
}

func TestFailedOTAStillWritesMetricsAndLog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "release feed down", http.StatusBadGateway)
	}))
	defer srv.Close()

	dir := t.TempDir()
	metricsPath := filepath.Join(dir, "chunkrelay.prom")
	logPath := filepath.Join(dir, "chunkrelay.log")
	t.Setenv("CHUNKRELAY_DEVICE_SERIAL", "dev-ota")
	var buf bytes.Buffer
	restore := setOutput(&buf)
	defer restore()
	defer func() {
		metricsFile, logFile = "", ""
		utils.InitLogger(false)
	}()

	err := run([]string{"ota",
		"--source", srv.URL,
		"--proxy", "",
		"--output-dir", dir,
		"--env-file", filepath.Join(dir, "missing.env"),
		"--metrics-file", metricsPath,
		"--log-file", logPath,
	})
	require.Error(t, err)
	require.Equal(t, http.StatusBadGateway, chunk.TransportCode(err))
	require.Nil(t, logCloser)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	require.Contains(t, string(data), `chunkrelay_ota_sessions_total{status="failed"}`)
	_, err = os.Stat(logPath)
	require.NoError(t, err)
}

func TestOpenStoreFailureIsReturned(t *testing.T) {
	cfg = config.Default()
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))
	cfg.Store.Path = filepath.Join(blocker, "queue")

	_, err := openStore()
	require.ErrorContains(t, err, "Could not open queue")
}

func setOutput(w io.Writer) func() {
	prev := output.Out
	output.Out = w
	return func() { output.Out = prev }
}
