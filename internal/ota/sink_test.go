package ota

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tanq16/chunkrelay/internal/chunk"
	"github.com/tanq16/chunkrelay/internal/utils"
)

func TestImageName(t *testing.T) {
	tests := []struct {
		info chunk.UpdateInfo
		want string
	}{
		{info: chunk.UpdateInfo{URL: "https://host/artifacts/app-1.2.bin?sig=x"}, want: "app-1.2.bin"},
		{info: chunk.UpdateInfo{URL: "s3://bucket/main/app.bin"}, want: "app.bin"},
		{info: chunk.UpdateInfo{Version: "1.2.0"}, want: "firmware-1.2.0.bin"},
		{info: chunk.UpdateInfo{}, want: "firmware.bin"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			require.Equal(t, tt.want, imageName(tt.info))
		})
	}
}

func TestFileSinkRenewsExistingImage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fw.bin"), []byte("old"), 0644))

	s := NewFileSink(dir, "fw.bin")
	ctx := context.Background()
	require.True(t, s.UpdateAvailable(ctx, chunk.UpdateInfo{TotalSize: 3}))
	require.True(t, s.Consume(ctx, []byte("new")))
	require.NoError(t, s.Complete(ctx))
	require.Equal(t, filepath.Join(dir, "fw-(1).bin"), s.Path())

	old, err := os.ReadFile(filepath.Join(dir, "fw.bin"))
	require.NoError(t, err)
	require.Equal(t, "old", string(old))
}

func TestFileSinkAbortRemovesPart(t *testing.T) {
	dir := t.TempDir()
	s := NewFileSink(dir, "fw.bin")
	ctx := context.Background()
	require.True(t, s.UpdateAvailable(ctx, chunk.UpdateInfo{TotalSize: 10}))
	require.True(t, s.Consume(ctx, []byte("half")))
	part := utils.TempPartPath(filepath.Join(dir, "fw.bin"))
	_, err := os.Stat(part)
	require.NoError(t, err)

	s.Abort(ctx, errors.New("stopped"))
	_, err = os.Stat(part)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "fw.bin"))
	require.True(t, os.IsNotExist(err))
	require.False(t, s.Consume(ctx, []byte("late")))
}

func TestFileSinkCompleteReportsSyncFailure(t *testing.T) {
	dir := t.TempDir()
	s := NewFileSink(dir, "fw.bin")
	ctx := context.Background()
	require.True(t, s.UpdateAvailable(ctx, chunk.UpdateInfo{TotalSize: 4}))
	require.True(t, s.Consume(ctx, []byte("data")))
	// a closed descriptor makes Sync fail the way a full or vanished disk would
	require.NoError(t, s.file.Close())

	err := s.Complete(ctx)
	require.ErrorContains(t, err, "syncing part file")
	_, err = os.Stat(filepath.Join(dir, "fw.bin"))
	require.True(t, os.IsNotExist(err))

	s.Abort(ctx, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestFileSinkFailedSessionLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDriver(make([]byte, 64))
	require.NoError(t, err)
	_, err = d.Run(context.Background(), staticResolver(200, &sliceFetcher{data: payload(100)}), NewFileSink(dir, "fw.bin"))
	require.ErrorIs(t, err, chunk.ErrIncompleteTransfer)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestDiscardSink(t *testing.T) {
	d, err := NewDriver(make([]byte, 64))
	require.NoError(t, err)
	s := NewDiscardSink()
	res, err := d.Run(context.Background(), staticResolver(150, &sliceFetcher{data: payload(150)}), s)
	require.NoError(t, err)
	require.Equal(t, StatusApplied, res.Status)
	require.Equal(t, int64(150), s.Received)
}
