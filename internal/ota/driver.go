package ota

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/tanq16/chunkrelay/internal/chunk"
	"github.com/tanq16/chunkrelay/internal/metrics"
	"github.com/tanq16/chunkrelay/internal/utils"
)

// Fetcher streams an image. Fetch behaves like io.Reader.Read; io.EOF or
// (0, nil) means the stream ended.
type Fetcher interface {
	Fetch(ctx context.Context, p []byte) (int, error)
	Close() error
}

// Update is a resolved image ready to stream.
type Update struct {
	Info    chunk.UpdateInfo
	Fetcher Fetcher
}

// Resolver looks up the image the device should run. A nil Update means the
// device is up to date.
type Resolver interface {
	Resolve(ctx context.Context) (*Update, error)
}

type ResolverFunc func(ctx context.Context) (*Update, error)

func (f ResolverFunc) Resolve(ctx context.Context) (*Update, error) { return f(ctx) }

// Aborter is implemented by sinks that hold resources which must be released
// when an accepted session does not complete.
type Aborter interface {
	Abort(ctx context.Context, reason error)
}

type Status int

const (
	StatusUpToDate Status = iota
	StatusApplied
	StatusDeclined
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusDeclined:
		return "declined"
	case StatusFailed:
		return "failed"
	default:
		return "up-to-date"
	}
}

// Result of one session. Err holds the reason for Declined and Failed.
type Result struct {
	Status    Status
	State     chunk.State
	Delivered int64
	Info      chunk.UpdateInfo
	Err       error
}

type Option func(*Driver)

// WithProgress registers a callback run after every consumed window.
func WithProgress(fn func(delivered, total int64)) Option {
	return func(d *Driver) { d.progress = fn }
}

// Driver runs downlink sessions over a caller-owned working buffer.
type Driver struct {
	buf      []byte
	busy     atomic.Bool
	state    atomic.Int32
	progress func(delivered, total int64)
	log      zerolog.Logger
}

func NewDriver(buf []byte, opts ...Option) (*Driver, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: working buffer is empty", chunk.ErrInvalidArgument)
	}
	d := &Driver{buf: buf, log: utils.GetLogger("ota")}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// State is the state of the current or last session.
func (d *Driver) State() chunk.State {
	return chunk.State(d.state.Load())
}

func (d *Driver) transition(to chunk.State) {
	from := d.State()
	if from != to && !chunk.CanTransition(from, to) {
		d.log.Warn().Str("op", "ota/driver").Str("from", from.String()).Str("to", to.String()).Msg("unexpected transition")
	}
	d.state.Store(int32(to))
}

// Run resolves an update and streams it into sink. Each window requested from
// the fetcher is min(len(buf), remaining) bytes and the sink only sees full
// windows. Complete is called once exactly TotalSize bytes were consumed.
func (d *Driver) Run(ctx context.Context, resolver Resolver, sink chunk.Sink) (Result, error) {
	if resolver == nil || sink == nil {
		return Result{Status: StatusFailed}, fmt.Errorf("%w: resolver and sink are required", chunk.ErrInvalidArgument)
	}
	if !d.busy.CompareAndSwap(false, true) {
		return Result{Status: StatusFailed, State: d.State()}, chunk.ErrSessionInProgress
	}
	defer d.busy.Store(false)
	d.state.Store(int32(chunk.StateIdle))

	res := d.session(ctx, resolver, sink)
	res.State = d.State()
	if res.State.Terminal() {
		clear(d.buf)
	}
	metrics.OTASessions.WithLabelValues(res.Status.String()).Inc()
	var event *zerolog.Event
	if res.Status == StatusFailed {
		event = d.log.Error().Err(res.Err)
	} else {
		event = d.log.Info()
	}
	event.Str("op", "ota/driver").Str("status", res.Status.String()).Str("state", res.State.String()).
		Int64("delivered", res.Delivered).Int64("total", res.Info.TotalSize).Msg("session finished")
	if res.Status == StatusFailed {
		return res, res.Err
	}
	return res, nil
}

func (d *Driver) session(ctx context.Context, resolver Resolver, sink chunk.Sink) Result {
	update, err := resolver.Resolve(ctx)
	if err != nil {
		return Result{Status: StatusFailed, Err: chunk.NewTransportError("ota/resolve", chunk.TransportCode(err), err)}
	}
	if update == nil {
		d.log.Debug().Str("op", "ota/driver").Msg("no update available")
		return Result{Status: StatusUpToDate}
	}
	if update.Fetcher != nil {
		defer update.Fetcher.Close()
	}
	res := Result{Info: update.Info}
	total := update.Info.TotalSize
	if total < 0 || (total > 0 && update.Fetcher == nil) {
		res.Status = StatusFailed
		res.Err = fmt.Errorf("%w: update of %d bytes has no usable fetcher", chunk.ErrInvalidArgument, total)
		return res
	}

	d.transition(chunk.StateAwaitingAcceptance)
	if !sink.UpdateAvailable(ctx, update.Info) {
		d.transition(chunk.StateAborted)
		res.Status = StatusDeclined
		res.Err = chunk.ErrAbortedByConsumer
		return res
	}
	d.transition(chunk.StateFetching)
	d.log.Debug().Str("op", "ota/driver").Str("version", update.Info.Version).Int64("total", total).Msg("update accepted")

	abort := func(state chunk.State, status Status, err error) Result {
		d.transition(state)
		if a, ok := sink.(Aborter); ok {
			a.Abort(ctx, err)
		}
		res.Status = status
		res.Err = err
		return res
	}

	for res.Delivered < total {
		window := d.buf[:min(int64(len(d.buf)), total-res.Delivered)]
		n, err := readWindow(ctx, update.Fetcher, window)
		if err != nil {
			return abort(chunk.StateFailed, StatusFailed,
				chunk.NewTransportError("ota/fetch", chunk.TransportCode(err), err))
		}
		if n < len(window) {
			return abort(chunk.StateFailed, StatusFailed,
				fmt.Errorf("%w: stream ended at %d of %d bytes", chunk.ErrIncompleteTransfer, res.Delivered+int64(n), total))
		}
		if !sink.Consume(ctx, window) {
			return abort(chunk.StateAborted, StatusDeclined, chunk.ErrAbortedByConsumer)
		}
		res.Delivered += int64(n)
		metrics.OTABytes.Add(float64(n))
		d.transition(chunk.StateFetching)
		if d.progress != nil {
			d.progress(res.Delivered, total)
		}
	}

	// Every byte has been delivered, so the transfer is Complete even when the
	// sink fails to finalize; that failure is reported through Status and Err.
	d.transition(chunk.StateComplete)
	if err := sink.Complete(ctx); err != nil {
		if a, ok := sink.(Aborter); ok {
			a.Abort(ctx, err)
		}
		res.Status = StatusFailed
		res.Err = fmt.Errorf("complete: %w", err)
		return res
	}
	res.Status = StatusApplied
	return res
}

// readWindow fills p from f. A short count with a nil error means the stream
// ended early.
func readWindow(ctx context.Context, f Fetcher, p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		m, err := f.Fetch(ctx, p[n:])
		n += m
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if m == 0 {
			return n, nil
		}
	}
	return n, nil
}
