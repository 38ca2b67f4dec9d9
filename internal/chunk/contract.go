package chunk

import "context"

// Source produces uplink chunks. Capacity is len(buf).
//
// HasData is a side-effect-free query and may be polled repeatedly. Fill writes
// at most len(buf) bytes and reports how many it wrote; (0, false, nil) means
// nothing could be produced even if HasData just returned true.
type Source interface {
	HasData() bool
	Fill(buf []byte) (int, bool, error)
}

// Acknowledger is implemented by sources that retain a filled chunk until the
// caller confirms it left the device.
type Acknowledger interface {
	// Ack commits the chunk returned by the last successful Fill.
	Ack() error
	// Rewind makes the chunk returned by the last successful Fill deliverable again.
	Rewind()
}

// UpdateInfo describes an available firmware image. TotalSize is fixed for a session.
type UpdateInfo struct {
	TotalSize int64  `json:"total_size"`
	Version   string `json:"version,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Sink consumes a downlink session.
type Sink interface {
	// UpdateAvailable decides whether the session proceeds.
	UpdateAvailable(ctx context.Context, info UpdateInfo) bool
	// Consume receives a filled working buffer. The slice is only valid for the
	// duration of the call; returning false aborts the session.
	Consume(ctx context.Context, data []byte) bool
	// Complete signals that exactly TotalSize bytes were delivered.
	Complete(ctx context.Context) error
}

// SinkFuncs adapts three plain functions into a Sink. Nil fields accept.
type SinkFuncs struct {
	OnAvailable func(ctx context.Context, info UpdateInfo) bool
	OnData      func(ctx context.Context, data []byte) bool
	OnComplete  func(ctx context.Context) error
}

func (s SinkFuncs) UpdateAvailable(ctx context.Context, info UpdateInfo) bool {
	if s.OnAvailable == nil {
		return true
	}
	return s.OnAvailable(ctx, info)
}

func (s SinkFuncs) Consume(ctx context.Context, data []byte) bool {
	if s.OnData == nil {
		return true
	}
	return s.OnData(ctx, data)
}

func (s SinkFuncs) Complete(ctx context.Context) error {
	if s.OnComplete == nil {
		return nil
	}
	return s.OnComplete(ctx)
}
