package export

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tanq16/chunkrelay/internal/chunk"
	"github.com/tanq16/chunkrelay/internal/uplink"
	"github.com/tanq16/chunkrelay/internal/utils"
)

const (
	linePrefix = "MC:"
	lineSuffix = ":"
)

// Exporter writes chunks as MC:<base64>: lines so they can be lifted out of a
// console log and replayed into a collector.
type Exporter struct {
	source    chunk.Source
	w         io.Writer
	chunkSize int
	log       zerolog.Logger
	mu        sync.Mutex
}

// NewExporter builds an exporter over w. source may be nil when the exporter
// is only used as an uplink.Channel.
func NewExporter(source chunk.Source, w io.Writer, chunkSize int) (*Exporter, error) {
	if w == nil {
		return nil, fmt.Errorf("%w: export writer is required", chunk.ErrInvalidArgument)
	}
	if chunkSize <= 0 {
		chunkSize = utils.DefaultChunkSize
	}
	return &Exporter{
		source:    source,
		w:         w,
		chunkSize: chunkSize,
		log:       utils.GetLogger("export"),
	}, nil
}

func (e *Exporter) Name() string { return "export" }

// Send writes one encoded line.
func (e *Exporter) Send(ctx context.Context, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := io.WriteString(e.w, EncodeLine(data)+"\n"); err != nil {
		return chunk.NewTransportError("export/write", 0, err)
	}
	return nil
}

// Dump drains the source into the writer and returns the number of lines
// written. It shares the uplink driver loop, so retention behaves the same.
func (e *Exporter) Dump(ctx context.Context) (int, error) {
	if e.source == nil {
		return 0, fmt.Errorf("%w: export has no source", chunk.ErrInvalidArgument)
	}
	d, err := uplink.NewDriver(e.source, e, e.chunkSize)
	if err != nil {
		return 0, err
	}
	res, err := d.Run(ctx)
	e.log.Debug().Str("op", "export/dump").Int("lines", res.Chunks).Str("status", res.Status.String()).Msg("export finished")
	return res.Chunks, err
}

func EncodeLine(data []byte) string {
	return linePrefix + base64.StdEncoding.EncodeToString(data) + lineSuffix
}

// DecodeLine returns the chunk carried by an MC line. Surrounding log noise
// (timestamps, shell prompts) before the prefix is ignored.
func DecodeLine(line string) ([]byte, bool, error) {
	start := strings.Index(line, linePrefix)
	if start < 0 {
		return nil, false, nil
	}
	body := line[start+len(linePrefix):]
	end := strings.Index(body, lineSuffix)
	if end < 0 {
		return nil, false, fmt.Errorf("%w: unterminated export line", chunk.ErrInvalidArgument)
	}
	data, err := base64.StdEncoding.DecodeString(body[:end])
	if err != nil {
		return nil, false, fmt.Errorf("%w: bad export payload: %v", chunk.ErrInvalidArgument, err)
	}
	return data, true, nil
}

// Scan reads r line by line and calls fn for every chunk found.
func Scan(r io.Reader, fn func([]byte) error) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	count := 0
	for sc.Scan() {
		data, ok, err := DecodeLine(sc.Text())
		if err != nil {
			return count, err
		}
		if !ok {
			continue
		}
		if err := fn(data); err != nil {
			return count, err
		}
		count++
	}
	return count, sc.Err()
}
