package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/zimmermanc/radarr-mvp-sub001/internal/logging"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/resilience"
)

// healthServer exposes the daemon's diagnostic HTTP surface: a JSON health
// report on /healthz and Prometheus metrics on /metrics.
type healthServer struct {
	bind   string
	daemon *Daemon
	logger *slog.Logger

	server   *http.Server
	listener net.Listener
}

func newHealthServer(bind string, d *Daemon, logger *slog.Logger) *healthServer {
	return &healthServer{
		bind:   bind,
		daemon: d,
		logger: logging.NewComponentLogger(logger, "http"),
	}
}

type healthResponse struct {
	Status       string                `json:"status"`
	Queue        healthQueue           `json:"queue"`
	Dependencies []resilience.Snapshot `json:"dependencies"`
}

type healthQueue struct {
	Total       int `json:"total"`
	Queued      int `json:"queued"`
	Downloading int `json:"downloading"`
	Paused      int `json:"paused"`
	Retrying    int `json:"retrying"`
	Completed   int `json:"completed"`
	Failed      int `json:"failed"`
}

func (h *healthServer) Start() error {
	if h.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", h.bind)
	if err != nil {
		return err
	}
	h.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", h.metricsHandler())

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	h.server = server
	go func() {
		if serveErr := server.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			h.logger.Error("health server stopped", logging.Error(serveErr))
		}
	}()
	h.logger.Info("health endpoint listening", logging.String("addr", listener.Addr().String()))
	return nil
}

func (h *healthServer) Stop() {
	if h.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		h.logger.Warn("health server shutdown", logging.Error(err))
	}
	h.server = nil
	h.listener = nil
}

// Addr returns the bound address, useful when the bind port is 0.
func (h *healthServer) Addr() string {
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

func (h *healthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	summary, err := h.daemon.store.Health(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := healthResponse{
		Status: "ok",
		Queue: healthQueue{
			Total:       summary.Total,
			Queued:      summary.Queued,
			Downloading: summary.Downloading,
			Paused:      summary.Paused,
			Retrying:    summary.Retrying,
			Completed:   summary.Completed,
			Failed:      summary.Failed,
		},
	}
	if h.daemon.indexerClient != nil {
		resp.Dependencies = append(resp.Dependencies, h.daemon.indexerClient.Health())
	}
	if h.daemon.downloaderClient != nil {
		resp.Dependencies = append(resp.Dependencies, h.daemon.downloaderClient.Health())
	}
	for _, dep := range resp.Dependencies {
		if dep.State == resilience.StateOpen {
			resp.Status = "degraded"
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Warn("encode health response", logging.Error(err))
	}
}

// metricsHandler refreshes the queue depth gauges on each scrape before
// delegating to the Prometheus handler.
func (h *healthServer) metricsHandler() http.Handler {
	inner := h.daemon.metrics.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if stats, err := h.daemon.store.Stats(r.Context()); err == nil {
			counts := make(map[string]int, len(stats))
			for status, count := range stats {
				counts[string(status)] = count
			}
			h.daemon.metrics.SetQueueDepth(counts)
		}
		inner.ServeHTTP(w, r)
	})
}
