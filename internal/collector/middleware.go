package collector

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/tanq16/chunkrelay/internal/utils"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rw, r)
		if rw.status == 0 {
			rw.status = http.StatusOK
		}
		var event *zerolog.Event
		if rw.status >= 500 {
			event = s.log.Error()
		} else {
			event = s.log.Debug()
		}
		event.Str("op", "collector/http").Str("method", r.Method).Str("url", r.URL.Path).
			Int("status", rw.status).Str("remote", r.RemoteAddr).Int64("dur_ms", time.Since(start).Milliseconds()).
			Int("bytes", rw.bytes).Msg("request")
	})
}

// requireProjectKey rejects API calls without the configured key. An empty
// key disables the check.
func (s *Server) requireProjectKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.projectKey != "" && r.Header.Get(utils.ProjectKeyHeader) != s.projectKey {
			http.Error(w, "invalid project key", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
