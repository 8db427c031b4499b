package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/custodia-labs/legalvault/internal/logger"
)

// StartServer serves /metrics on addr in the background and returns its
// shutdown function.
func (m *Metrics) StartServer(addr string) (shutdown func(context.Context) error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	log := logger.WithComponent("metrics")
	go func() {
		log.Info("metrics server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "error", err)
		}
	}()

	return server.Shutdown
}
