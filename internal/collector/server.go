package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/tanq16/chunkrelay/internal/export"
	"github.com/tanq16/chunkrelay/internal/metrics"
	"github.com/tanq16/chunkrelay/internal/ota"
	"github.com/tanq16/chunkrelay/internal/store"
	"github.com/tanq16/chunkrelay/internal/utils"
)

const (
	maxChunkBody      = 1 << 20
	defaultMaxDevices = 1024
)

type Options struct {
	ProjectKey   string
	ImagePath    string
	ImageVersion string
	// MaxDevices bounds the per-device state kept in memory; the least
	// recently seen device is dropped first.
	MaxDevices int
}

type image struct {
	name    string
	version string
	data    []byte
	modTime time.Time
}

type device struct {
	reassembler store.Reassembler
	chunks      int
	bytes       int64
	messages    []store.Message
	malformed   int
}

// DeviceSummary is what GET /api/v0/devices reports per serial.
type DeviceSummary struct {
	Chunks    int            `json:"chunks"`
	Bytes     int64          `json:"bytes"`
	Messages  map[string]int `json:"messages"`
	Malformed int            `json:"malformed"`
}

// Server is a small collector for bench work: it reassembles uplinked chunks
// per device and serves one firmware image.
type Server struct {
	projectKey string
	image      *image
	mu         sync.Mutex
	devices    *lru.Cache[string, *device]
	log        zerolog.Logger
}

func New(opts Options) (*Server, error) {
	if opts.MaxDevices <= 0 {
		opts.MaxDevices = defaultMaxDevices
	}
	devices, err := lru.New[string, *device](opts.MaxDevices)
	if err != nil {
		return nil, err
	}
	s := &Server{
		projectKey: opts.ProjectKey,
		devices:    devices,
		log:        utils.GetLogger("collector"),
	}
	if opts.ImagePath != "" {
		info, err := os.Stat(opts.ImagePath)
		if err != nil {
			return nil, fmt.Errorf("error reading image: %v", err)
		}
		data, err := os.ReadFile(opts.ImagePath)
		if err != nil {
			return nil, fmt.Errorf("error reading image: %v", err)
		}
		s.image = &image{
			name:    filepath.Base(opts.ImagePath),
			version: opts.ImageVersion,
			data:    data,
			modTime: info.ModTime(),
		}
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/artifacts/{name}", s.serveArtifact).Methods(http.MethodGet, http.MethodHead)

	api := r.PathPrefix("/api/v0").Subrouter()
	api.Use(s.requireProjectKey)
	api.HandleFunc("/chunks/{serial}", s.postChunk).Methods(http.MethodPost)
	api.HandleFunc("/exports/{serial}", s.postExport).Methods(http.MethodPost)
	api.HandleFunc("/devices", s.listDevices).Methods(http.MethodGet)
	api.HandleFunc("/releases/latest", s.latestRelease).Methods(http.MethodGet)
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("op", "collector/serve").Str("addr", addr).Msg("collector listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Messages returns the messages reassembled for serial so far.
func (s *Server) Messages(serial string) []store.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices.Peek(serial)
	if !ok {
		return nil
	}
	return append([]store.Message(nil), d.messages...)
}

func (s *Server) ingest(serial string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices.Get(serial)
	if !ok {
		d = &device{}
		if s.devices.Add(serial, d) {
			s.log.Debug().Str("op", "collector/ingest").Msg("device table full, evicted oldest device")
		}
	}
	metrics.CollectorDevices.Set(float64(s.devices.Len()))
	d.chunks++
	d.bytes += int64(len(data))
	msg, err := d.reassembler.Write(data)
	if err != nil {
		d.malformed++
		metrics.CollectorChunks.WithLabelValues("malformed").Inc()
		return err
	}
	metrics.CollectorChunks.WithLabelValues("accepted").Inc()
	if msg != nil {
		d.messages = append(d.messages, *msg)
		s.log.Info().Str("op", "collector/ingest").Str("device", serial).Str("kind", msg.Kind.String()).
			Int("size", len(msg.Payload)).Msg("message reassembled")
	}
	return nil
}

func (s *Server) postChunk(w http.ResponseWriter, r *http.Request) {
	serial := mux.Vars(r)["serial"]
	data, err := io.ReadAll(io.LimitReader(r.Body, maxChunkBody+1))
	if err != nil {
		http.Error(w, "error reading body", http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		http.Error(w, "empty chunk", http.StatusBadRequest)
		return
	}
	if len(data) > maxChunkBody {
		http.Error(w, "chunk too large", http.StatusRequestEntityTooLarge)
		return
	}
	if err := s.ingest(serial, data); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// postExport accepts a console capture holding MC lines.
func (s *Server) postExport(w http.ResponseWriter, r *http.Request) {
	serial := mux.Vars(r)["serial"]
	n, err := export.Scan(io.LimitReader(r.Body, 16*maxChunkBody), func(data []byte) error {
		return s.ingest(serial, data)
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("line %d: %v", n+1, err), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"chunks": n})
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make(map[string]DeviceSummary, s.devices.Len())
	for _, serial := range s.devices.Keys() {
		d, ok := s.devices.Peek(serial)
		if !ok {
			continue
		}
		sum := DeviceSummary{Chunks: d.chunks, Bytes: d.bytes, Malformed: d.malformed, Messages: map[string]int{}}
		for _, m := range d.messages {
			sum.Messages[m.Kind.String()]++
		}
		out[serial] = sum
	}
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (s *Server) latestRelease(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("device_serial") == "" {
		http.Error(w, "device_serial is required", http.StatusBadRequest)
		return
	}
	if s.image == nil || (s.image.version != "" && q.Get("current_version") == s.image.version) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ota.Release{
		Version: s.image.version,
		Artifacts: []ota.Artifact{{
			URL:      "/artifacts/" + s.image.name,
			FileSize: int64(len(s.image.data)),
		}},
	})
}

func (s *Server) serveArtifact(w http.ResponseWriter, r *http.Request) {
	if s.image == nil || mux.Vars(r)["name"] != s.image.name {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeContent(w, r, s.image.name, s.image.modTime, bytes.NewReader(s.image.data))
}

// DeviceSerials lists the devices seen so far in sorted order.
func (s *Server) DeviceSerials() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	serials := s.devices.Keys()
	sort.Strings(serials)
	return serials
}
