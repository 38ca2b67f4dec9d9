package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pierrec/lz4/v4"
)

// Kind tags a diagnostic message with the subsystem that captured it.
type Kind uint8

const (
	KindCoredump Kind = 1
	KindLog      Kind = 2
	KindMetrics  Kind = 3
	KindTrace    Kind = 4
)

var kindNames = map[Kind]string{
	KindCoredump: "coredump",
	KindLog:      "log",
	KindMetrics:  "metrics",
	KindTrace:    "trace",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	switch s {
	case "core", "coredumps":
		return KindCoredump, nil
	case "logs":
		return KindLog, nil
	case "heartbeat":
		return KindMetrics, nil
	case "events", "trace-event":
		return KindTrace, nil
	}
	return 0, fmt.Errorf("unknown message kind %q", s)
}

// Chunk header byte layout.
const (
	flagContinuation = 0x80
	flagMore         = 0x40
	flagLZ4          = 0x20
	kindMask         = 0x1f

	// MinChunkSize leaves room for the header, a full uvarint length and payload.
	MinChunkSize = 16
)

var ErrMalformedChunk = errors.New("malformed chunk")

// Message is one reassembled diagnostic payload.
type Message struct {
	Kind    Kind
	Payload []byte
}

func compress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	return out, nil
}

// Reassembler turns a chunk stream back into messages. Chunks must arrive in
// pull order.
type Reassembler struct {
	header  byte
	total   uint64
	payload []byte
	active  bool
}

// Write consumes one chunk and returns the message it completed, if any.
func (r *Reassembler) Write(chunk []byte) (*Message, error) {
	if len(chunk) < 2 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedChunk, len(chunk))
	}
	header := chunk[0]
	body := chunk[1:]
	if header&flagContinuation == 0 {
		total, n := binary.Uvarint(body)
		if n <= 0 {
			return nil, fmt.Errorf("%w: bad length prefix", ErrMalformedChunk)
		}
		r.header = header
		r.total = total
		r.payload = make([]byte, 0, min(total, 1<<20))
		r.active = true
		body = body[n:]
	} else if !r.active {
		return nil, fmt.Errorf("%w: continuation without start", ErrMalformedChunk)
	}
	r.payload = append(r.payload, body...)
	if uint64(len(r.payload)) > r.total {
		r.active = false
		return nil, fmt.Errorf("%w: message overflow", ErrMalformedChunk)
	}
	more := header&flagMore != 0
	if uint64(len(r.payload)) < r.total {
		if !more {
			r.active = false
			return nil, fmt.Errorf("%w: message truncated", ErrMalformedChunk)
		}
		return nil, nil
	}
	r.active = false
	msg := &Message{Kind: Kind(r.header & kindMask), Payload: r.payload}
	if r.header&flagLZ4 != 0 {
		plain, err := decompress(r.payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = plain
	}
	return msg, nil
}
