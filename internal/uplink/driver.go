package uplink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tanq16/chunkrelay/internal/chunk"
	"github.com/tanq16/chunkrelay/internal/metrics"
	"github.com/tanq16/chunkrelay/internal/utils"
)

// Channel moves one filled chunk off the device.
type Channel interface {
	Name() string
	Send(ctx context.Context, data []byte) error
}

type Status int

const (
	StatusNothingToSend Status = iota
	StatusSent
	StatusTransportError
	// StatusFailed covers errors that are not the channel's: a rejected Fill or
	// a cancelled context.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusTransportError:
		return "transport-error"
	case StatusFailed:
		return "failed"
	default:
		return "nothing-to-send"
	}
}

type Result struct {
	Status Status
	Chunks int
	Bytes  int64
}

// Driver drains a chunk.Source into a Channel. One Run at a time.
type Driver struct {
	source    chunk.Source
	channel   Channel
	chunkSize int
	log       zerolog.Logger
	mu        sync.Mutex
}

func NewDriver(source chunk.Source, channel Channel, chunkSize int) (*Driver, error) {
	if source == nil || channel == nil {
		return nil, fmt.Errorf("%w: source and channel are required", chunk.ErrInvalidArgument)
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d", chunk.ErrInvalidArgument, chunkSize)
	}
	return &Driver{
		source:    source,
		channel:   channel,
		chunkSize: chunkSize,
		log:       utils.GetLogger("uplink").With().Str("channel", channel.Name()).Logger(),
	}, nil
}

// Run pulls chunks while the source has data. A Fill that produces nothing ends
// the run quietly, a Fill error ends it with StatusFailed and a failed Send with
// StatusTransportError. When the source is a chunk.Acknowledger the chunk is
// acked after Send and rewound on failure, so it is delivered again on the
// next trigger.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	if !d.mu.TryLock() {
		return Result{}, chunk.ErrSessionInProgress
	}
	defer d.mu.Unlock()

	ack, _ := d.source.(chunk.Acknowledger)
	buf := make([]byte, d.chunkSize)
	var res Result
	for d.source.HasData() {
		if err := ctx.Err(); err != nil {
			return d.fail(res, err), err
		}
		n, ok, err := d.source.Fill(buf)
		if err != nil {
			err = fmt.Errorf("fill: %w", err)
			return d.fail(res, err), err
		}
		if !ok || n == 0 {
			d.log.Debug().Str("op", "uplink/driver").Msg("source reported data but produced none, stopping")
			break
		}
		if err := d.channel.Send(ctx, buf[:n]); err != nil {
			if ack != nil {
				ack.Rewind()
			}
			metrics.UplinkErrors.WithLabelValues(d.channel.Name()).Inc()
			d.log.Error().Str("op", "uplink/driver").Err(err).Int("sent", res.Chunks).Msg("send failed")
			res.Status = StatusTransportError
			return res, chunk.NewTransportError("uplink/"+d.channel.Name(), chunk.TransportCode(err), err)
		}
		if ack != nil {
			if err := ack.Ack(); err != nil {
				// the chunk left the device; a failed commit means it may be sent twice
				d.log.Warn().Str("op", "uplink/driver").Err(err).Msg("ack failed")
			}
		}
		res.Chunks++
		res.Bytes += int64(n)
		metrics.UplinkChunks.WithLabelValues(d.channel.Name()).Inc()
		metrics.UplinkBytes.WithLabelValues(d.channel.Name()).Add(float64(n))
		d.log.Debug().Str("op", "uplink/driver").Int("size", n).Int("chunk", res.Chunks).Msg("chunk sent")
	}
	return d.finish(res), nil
}

func (d *Driver) fail(res Result, err error) Result {
	res.Status = StatusFailed
	d.log.Error().Str("op", "uplink/driver").Err(err).Int("sent", res.Chunks).Msg("uplink stopped")
	return res
}

func (d *Driver) finish(res Result) Result {
	if res.Chunks > 0 {
		res.Status = StatusSent
		d.log.Info().Str("op", "uplink/driver").Int("chunks", res.Chunks).Int64("bytes", res.Bytes).Msg("uplink drained")
	} else {
		res.Status = StatusNothingToSend
	}
	return res
}

// IsTransportError reports whether err ended a run because the channel failed.
func IsTransportError(err error) bool {
	var te *chunk.TransportError
	return errors.As(err, &te)
}
