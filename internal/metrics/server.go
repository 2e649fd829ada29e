package metrics

import (
	"net/http"
	"time"

	"codeberg.org/mutker/gpuheald/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readHeaderTimeout = 5 * time.Second

// Serve exposes /metrics on addr. Disabled when addr is empty; errors
// are logged, never fatal — observability must not take the daemon down.
func Serve(addr string, log logger.Logger) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Metrics listener started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics listener failed")
		}
	}()
}
