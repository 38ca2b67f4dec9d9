package ota

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/tanq16/chunkrelay/internal/chunk"
	"github.com/tanq16/chunkrelay/internal/utils"
)

const maxResumes = 3

// opener starts a stream at offset. It reports whether the body really starts
// there; when it does not the fetcher skips the prefix itself.
type opener func(ctx context.Context, offset int64) (body io.ReadCloser, ranged bool, err error)

// rangeFetcher streams one object and reconnects from the current offset
// when the body fails mid-read.
type rangeFetcher struct {
	op      string
	open    opener
	body    io.ReadCloser
	offset  int64
	resumes int
	backoff time.Duration
	log     zerolog.Logger
}

func newRangeFetcher(op string, open opener) *rangeFetcher {
	return &rangeFetcher{
		op:      op,
		open:    open,
		backoff: 500 * time.Millisecond,
		log:     utils.GetLogger("ota").With().Str("op", op).Logger(),
	}
}

func (f *rangeFetcher) connect(ctx context.Context) error {
	body, ranged, err := f.open(ctx, f.offset)
	if err != nil {
		return err
	}
	if f.offset > 0 && !ranged {
		f.log.Warn().Int64("offset", f.offset).Msg("source does not support resume, skipping delivered prefix")
		if _, err := io.CopyN(io.Discard, body, f.offset); err != nil {
			body.Close()
			return chunk.NewTransportError(f.op, 0, fmt.Errorf("error skipping to offset %d: %v", f.offset, err))
		}
	}
	f.body = body
	return nil
}

func (f *rangeFetcher) Fetch(ctx context.Context, p []byte) (int, error) {
	for {
		if f.body == nil {
			if err := f.connect(ctx); err != nil {
				return 0, err
			}
		}
		n, err := f.body.Read(p)
		f.offset += int64(n)
		if err == nil || errors.Is(err, io.EOF) {
			return n, err
		}
		f.body.Close()
		f.body = nil
		if n > 0 {
			// hand over what arrived, reconnect on the next call
			return n, nil
		}
		if f.resumes >= maxResumes || ctx.Err() != nil {
			return 0, chunk.NewTransportError(f.op, 0, fmt.Errorf("error reading stream: %w", err))
		}
		f.resumes++
		f.log.Warn().Err(err).Int64("offset", f.offset).Msgf("stream broke, resuming (attempt %d/%d)", f.resumes, maxResumes)
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Duration(f.resumes) * f.backoff):
		}
	}
}

func (f *rangeFetcher) Close() error {
	if f.body == nil {
		return nil
	}
	err := f.body.Close()
	f.body = nil
	return err
}
