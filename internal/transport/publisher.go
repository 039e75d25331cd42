package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPPublisher starts the chi.Mux returned by NewRouter listening in the
// background, standing in for the real parcel/FFI registration step the
// source performs on SystemAbility start. It satisfies service.Router.
type HTTPPublisher struct {
	srv *http.Server
	log *slog.Logger
}

// NewHTTPPublisher builds a publisher bound to addr, mounting handler
// under "/" and metricsPath as a Prometheus exposition endpoint,
// grounded on the teacher's runAPI http.Server construction.
func NewHTTPPublisher(addr, metricsPath string, handler http.Handler, reg *prometheus.Registry, log *slog.Logger) *HTTPPublisher {
	mux := http.NewServeMux()
	mux.Handle("/", handler)
	mux.Handle(metricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &HTTPPublisher{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log: log,
	}
}

// Publish starts the listener in a goroutine and returns immediately;
// it satisfies service.Router.
func (p *HTTPPublisher) Publish(ctx context.Context) error {
	go func() {
		p.log.Info("transport listening", "addr", p.srv.Addr)
		if err := p.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.log.Error("transport listener stopped", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the listener.
func (p *HTTPPublisher) Shutdown(ctx context.Context) error {
	return p.srv.Shutdown(ctx)
}
