package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drblury/ssoflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/ssoflow/internal/runtime/logging"
)

const defaultInspectorPort = 8081

// InspectorHandler serves the dispatch tables and statistics as JSON, and the
// Prometheus metrics when they are enabled.
func (d *Dispatcher) InspectorHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/services", func(w http.ResponseWriter, r *http.Request) {
		d.writeInspectorJSON(w, r, d.Services())
	})
	mux.HandleFunc("/api/subscriptions", func(w http.ResponseWriter, r *http.Request) {
		d.writeInspectorJSON(w, r, d.Subscriptions())
	})
	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		d.writeInspectorJSON(w, r, d.Stats())
	})
	mux.HandleFunc("/api/process", func(w http.ResponseWriter, r *http.Request) {
		d.writeInspectorJSON(w, r, d.Process())
	})
	if d.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// StartInspector serves InspectorHandler until ctx is cancelled. It returns
// immediately when the inspector is disabled.
func (d *Dispatcher) StartInspector(ctx context.Context) error {
	if !d.Conf.InspectorEnabled {
		return nil
	}

	port := d.Conf.InspectorPort
	if port == 0 {
		port = defaultInspectorPort
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           d.InspectorHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		d.Logger.Info("Starting inspector", loggingpkg.LogFields{"address": srv.Addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		d.Logger.Error("Failed to start inspector", err, loggingpkg.LogFields{"address": srv.Addr})
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (d *Dispatcher) writeInspectorJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")

	if origin := d.allowedCORSOrigin(r.Header.Get("Origin")); origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	}

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet, http.MethodHead:
	default:
		w.Header().Set("Allow", "GET, OPTIONS")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := jsoncodec.Encode(w, v); err != nil {
		d.Logger.Error("Failed to encode inspector response", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// allowedCORSOrigin returns the Access-Control-Allow-Origin value for the
// request origin, or "" when it is not allowed.
func (d *Dispatcher) allowedCORSOrigin(requestOrigin string) string {
	for _, allowed := range d.Conf.InspectorCORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if requestOrigin != "" && strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
