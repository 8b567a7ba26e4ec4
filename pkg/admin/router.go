// Package admin implements nexusd's read-only HTTP surface: liveness,
// Prometheus scraping, and JSON status for nexuses, their children, and
// in-flight rebuilds. Every mutating operation (add/remove/fault/online/
// offline child, start/pause/stop rebuild) is reached only through the CLI
// acting as an in-process client of the engine; this router never writes.
package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nexusd/nexusd/internal/logger"
	"github.com/nexusd/nexusd/pkg/child"
	"github.com/nexusd/nexusd/pkg/engine"
	"github.com/nexusd/nexusd/pkg/metrics"
	"github.com/nexusd/nexusd/pkg/nexus"
	"github.com/nexusd/nexusd/pkg/rebuild"
)

// NewRouter builds the chi router serving eng's read-only status surface.
func NewRouter(eng *engine.Engine) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", handleHealthz)

	if reg := metrics.GetRegistry(); reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	r.Route("/v1/nexus/{name}", func(r chi.Router) {
		r.Get("/", handleNexus(eng))
		r.Get("/children", handleChildren(eng))
		r.Get("/rebuilds", handleRebuilds(eng))
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debug("admin request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		)
	})
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type childStatus struct {
	Name   string            `json:"name"`
	URI    string            `json:"uri"`
	State  child.State       `json:"state"`
	Reason child.FaultReason `json:"fault_reason,omitempty"`
}

type nexusStatus struct {
	Name       string        `json:"name"`
	BlockSize  uint32        `json:"block_size"`
	NumBlocks  uint64        `json:"num_blocks"`
	DataOffset uint64        `json:"data_offset"`
	Status     nexus.Status  `json:"status"`
	Children   []childStatus `json:"children"`
}

func handleNexus(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		n, err := eng.Nexus(name)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}

		status := nexusStatus{
			Name:       n.Name,
			BlockSize:  n.BlockSize(),
			NumBlocks:  n.NumBlocks(),
			DataOffset: n.DataOffset(),
			Status:     n.Status(),
		}
		for _, c := range n.Children() {
			status.Children = append(status.Children, childStatus{
				Name:   c.Name,
				URI:    c.URI,
				State:  c.State(),
				Reason: c.FaultReason(),
			})
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func handleChildren(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		n, err := eng.Nexus(name)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}

		out := make([]childStatus, 0, len(n.Children()))
		for _, c := range n.Children() {
			out = append(out, childStatus{
				Name:   c.Name,
				URI:    c.URI,
				State:  c.State(),
				Reason: c.FaultReason(),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type rebuildStatus struct {
	SourceURI string       `json:"source_uri"`
	DestURI   string       `json:"dest_uri"`
	State     rebuild.State `json:"state"`
	Copied    uint64       `json:"copied"`
	Total     uint64       `json:"total"`
}

func handleRebuilds(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		jobs, err := eng.RebuildsForNexus(name)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}

		out := make([]rebuildStatus, 0, len(jobs))
		for _, j := range jobs {
			copied, total := j.Progress()
			out = append(out, rebuildStatus{
				SourceURI: j.SourceURI,
				DestURI:   j.DestURI,
				State:     j.State(),
				Copied:    copied,
				Total:     total,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
