// File: control/control.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package control exposes operational endpoints for a running
// process: a JSON varz snapshot and a Prometheus scrape target.
package control

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/momentics/fibrio/stats"
)

// NewHandler builds the debug mux: /varz serves the varz registry as
// JSON, /metrics serves it in Prometheus exposition format.
func NewHandler(metricPrefix string) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(stats.NewCollector(metricPrefix))

	mux := http.NewServeMux()
	mux.HandleFunc("/varz", func(w http.ResponseWriter, r *http.Request) {
		data, err := stats.Snapshot()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

// ListenAndServe starts the debug endpoint on addr in a background
// goroutine and returns the server for shutdown.
func ListenAndServe(addr, metricPrefix string, log *slog.Logger) *http.Server {
	srv := &http.Server{Addr: addr, Handler: NewHandler(metricPrefix)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("debug endpoint failed", slog.Any("error", err))
		}
	}()
	return srv
}
