package ota

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tanq16/chunkrelay/internal/chunk"
)

// FileResolver sideloads a local image, mostly for bench testing.
type FileResolver struct {
	path    string
	version string
}

func NewFileResolver(path, version string) (*FileResolver, error) {
	path = strings.TrimPrefix(path, "file://")
	if path == "" {
		return nil, fmt.Errorf("%w: image path is required", chunk.ErrInvalidArgument)
	}
	return &FileResolver{path: path, version: version}, nil
}

func (r *FileResolver) Resolve(ctx context.Context) (*Update, error) {
	info, err := os.Stat(r.path)
	if err != nil {
		return nil, chunk.NewTransportError("ota/file", 0, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", chunk.ErrInvalidArgument, r.path)
	}
	abs, _ := filepath.Abs(r.path)
	return &Update{
		Info: chunk.UpdateInfo{
			TotalSize: info.Size(),
			Version:   r.version,
			URL:       "file://" + abs,
		},
		Fetcher: newRangeFetcher("ota/file", r.open),
	}, nil
}

func (r *FileResolver) open(ctx context.Context, offset int64) (io.ReadCloser, bool, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, false, chunk.NewTransportError("ota/file", 0, err)
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, false, chunk.NewTransportError("ota/file", 0, err)
	}
	return f, true, nil
}
