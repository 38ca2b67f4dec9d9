package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/tanq16/chunkrelay/internal/export"
	"github.com/tanq16/chunkrelay/internal/ota"
	"github.com/tanq16/chunkrelay/internal/store"
	"github.com/tanq16/chunkrelay/internal/uplink"
	"github.com/tanq16/chunkrelay/internal/utils"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openStore() (*store.Store, error) {
	s, err := store.Open(store.Options{Path: cfg.Store.Path, Compress: cfg.Store.Compress})
	if err != nil {
		return nil, fail("Could not open queue at "+cfg.Store.Path, err)
	}
	return s, nil
}

// fail labels err for the user; Execute prints it once post-run work is done.
func fail(msg string, err error) error {
	return fmt.Errorf("%s: %w", msg, err)
}

func buildChannel(ctx context.Context, name string) (uplink.Channel, error) {
	switch name {
	case "http":
		client := utils.NewRelayHTTPClient(cfg.HTTPClientConfig())
		return uplink.NewHTTPChannel(client, cfg.Collector.BaseURL, cfg.Device.Serial, cfg.Collector.ProjectKey)
	case "s3":
		client, err := utils.NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return uplink.NewS3Channel(client, cfg.S3.Bucket, cfg.S3.Prefix, cfg.Device.Serial)
	case "export":
		return export.NewExporter(nil, os.Stdout, cfg.Uplink.ChunkSize)
	}
	return nil, fmt.Errorf("unknown channel %q", name)
}

// buildResolver maps an ota source onto a resolver: "collector", an http(s)
// base URL, s3://bucket/key or a local image path.
func buildResolver(ctx context.Context, source, imageVersion string) (ota.Resolver, error) {
	switch {
	case source == "" || source == "collector":
		client := utils.NewRelayHTTPClient(cfg.HTTPClientConfig())
		return ota.NewHTTPResolver(client, cfg.Collector.BaseURL, cfg.Device, cfg.Collector.ProjectKey)
	case strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://"):
		client := utils.NewRelayHTTPClient(cfg.HTTPClientConfig())
		return ota.NewHTTPResolver(client, source, cfg.Device, cfg.Collector.ProjectKey)
	case strings.HasPrefix(source, "s3://"):
		bucket, key, _ := strings.Cut(strings.TrimPrefix(source, "s3://"), "/")
		client, err := utils.NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return ota.NewS3Resolver(client, bucket, key, cfg.Device.SoftwareVersion)
	default:
		return ota.NewFileResolver(source, imageVersion)
	}
}
