package ota

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/tanq16/chunkrelay/internal/chunk"
	"github.com/tanq16/chunkrelay/internal/utils"
)

// FileSink writes the image into a part file under the temp dir and moves it
// into place on Complete.
type FileSink struct {
	dir     string
	name    string
	part    string
	final   string
	file    *os.File
	written int64
	log     zerolog.Logger
}

// NewFileSink stores images in dir. An empty name derives one from the
// update URL.
func NewFileSink(dir, name string) *FileSink {
	return &FileSink{dir: dir, name: name, log: utils.GetLogger("ota")}
}

// Path is the final image path once the session completed.
func (s *FileSink) Path() string { return s.final }

func imageName(info chunk.UpdateInfo) string {
	if u, err := url.Parse(info.URL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" && base != "" {
			return base
		}
	}
	if info.Version != "" {
		return fmt.Sprintf("firmware-%s.bin", info.Version)
	}
	return "firmware.bin"
}

func (s *FileSink) UpdateAvailable(ctx context.Context, info chunk.UpdateInfo) bool {
	name := s.name
	if name == "" {
		name = imageName(info)
	}
	s.final = filepath.Join(s.dir, name)
	s.part = utils.TempPartPath(s.final)
	s.written = 0
	if err := os.MkdirAll(filepath.Dir(s.part), 0755); err != nil {
		s.log.Error().Str("op", "ota/file-sink").Err(err).Msg("error creating temp directory")
		return false
	}
	f, err := os.OpenFile(s.part, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		s.log.Error().Str("op", "ota/file-sink").Err(err).Msg("error creating part file")
		return false
	}
	s.file = f
	s.log.Debug().Str("op", "ota/file-sink").Str("part", s.part).Int64("size", info.TotalSize).Msg("writing image")
	return true
}

func (s *FileSink) Consume(ctx context.Context, data []byte) bool {
	if s.file == nil {
		return false
	}
	if _, err := s.file.Write(data); err != nil {
		s.log.Error().Str("op", "ota/file-sink").Err(err).Msg("error writing part file")
		return false
	}
	s.written += int64(len(data))
	return true
}

func (s *FileSink) Complete(ctx context.Context) error {
	if s.file == nil {
		return fmt.Errorf("file sink was not opened")
	}
	if err := s.file.Sync(); err != nil {
		s.file.Close()
		s.file = nil
		return fmt.Errorf("error syncing part file: %v", err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("error closing part file: %v", err)
	}
	s.file = nil
	if _, err := os.Stat(s.final); err == nil {
		s.final = utils.RenewOutputPath(s.final)
	}
	if err := os.Rename(s.part, s.final); err != nil {
		return fmt.Errorf("error renaming (finalizing) image: %v", err)
	}
	if err := utils.CleanTemp(s.dir); err != nil {
		s.log.Warn().Str("op", "ota/file-sink").Err(err).Msg("error cleaning temp directory")
	}
	s.log.Info().Str("op", "ota/file-sink").Str("path", s.final).Int64("bytes", s.written).Msg("image stored")
	return nil
}

// Abort drops the part file.
func (s *FileSink) Abort(ctx context.Context, reason error) {
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
	if s.part != "" {
		os.Remove(s.part)
		utils.CleanTemp(s.dir)
	}
	s.log.Debug().Str("op", "ota/file-sink").Err(reason).Msg("part file removed")
}

// DiscardSink accepts every image and drops the bytes.
type DiscardSink struct {
	Received int64
	log      zerolog.Logger
}

func NewDiscardSink() *DiscardSink {
	return &DiscardSink{log: utils.GetLogger("ota")}
}

func (s *DiscardSink) UpdateAvailable(ctx context.Context, info chunk.UpdateInfo) bool {
	s.Received = 0
	s.log.Info().Str("op", "ota/discard-sink").Str("version", info.Version).Int64("size", info.TotalSize).Msg("update available")
	return true
}

func (s *DiscardSink) Consume(ctx context.Context, data []byte) bool {
	s.Received += int64(len(data))
	return true
}

func (s *DiscardSink) Complete(ctx context.Context) error {
	s.log.Info().Str("op", "ota/discard-sink").Int64("bytes", s.Received).Msg("update received")
	return nil
}
