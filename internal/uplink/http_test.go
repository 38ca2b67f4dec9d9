package uplink

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tanq16/chunkrelay/internal/chunk"
	"github.com/tanq16/chunkrelay/internal/utils"
)

func TestHTTPChannelPostsChunk(t *testing.T) {
	var mu sync.Mutex
	var got []byte
	var path, key, ctype string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		got, _ = io.ReadAll(r.Body)
		path = r.URL.EscapedPath()
		key = r.Header.Get(utils.ProjectKeyHeader)
		ctype = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := utils.NewRelayHTTPClient(utils.HTTPClientConfig{})
	ch, err := NewHTTPChannel(client, srv.URL+"/", "dev 01", "secret")
	require.NoError(t, err)
	require.Equal(t, "http", ch.Name())
	require.NoError(t, ch.Send(context.Background(), []byte{0x02, 0x0f}))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []byte{0x02, 0x0f}, got)
	require.Equal(t, "/api/v0/chunks/dev%2001", path)
	require.Equal(t, "secret", key)
	require.Equal(t, "application/octet-stream", ctype)
}

func TestHTTPChannelStatusBecomesTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ch, err := NewHTTPChannel(utils.NewRelayHTTPClient(utils.HTTPClientConfig{}), srv.URL, "dev", "")
	require.NoError(t, err)
	err = ch.Send(context.Background(), []byte("x"))
	require.Error(t, err)
	require.True(t, IsTransportError(err))
	require.Equal(t, http.StatusServiceUnavailable, chunk.TransportCode(err))
	require.Contains(t, err.Error(), "busy")
}

func TestHTTPChannelUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	ch, err := NewHTTPChannel(utils.NewRelayHTTPClient(utils.HTTPClientConfig{}), url, "dev", "")
	require.NoError(t, err)
	err = ch.Send(context.Background(), []byte("x"))
	require.True(t, IsTransportError(err))
	require.Zero(t, chunk.TransportCode(err))
}

func TestNewHTTPChannelValidation(t *testing.T) {
	tests := []struct {
		name   string
		base   string
		serial string
	}{
		{name: "empty serial", base: "http://localhost", serial: " "},
		{name: "bad scheme", base: "ftp://localhost", serial: "dev"},
		{name: "no scheme", base: "localhost:8080", serial: "dev"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHTTPChannel(utils.NewRelayHTTPClient(utils.HTTPClientConfig{}), tt.base, tt.serial, "")
			require.ErrorIs(t, err, chunk.ErrInvalidArgument)
		})
	}
}
