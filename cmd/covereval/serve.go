package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricesearch/covereval/internal/evaluation"
	"github.com/ricesearch/covereval/internal/metrics"
	"github.com/ricesearch/covereval/internal/pkg/logger"
	"github.com/ricesearch/covereval/internal/pkg/middleware"
	"github.com/ricesearch/covereval/internal/web"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored runs, reports and metrics over HTTP",
		Long: `Start the HTTP server:
- run listing, run details and per-query rankings
- HTML run reports
- ad-hoc metrics over posted collections
- live run events from the bus (server-sent events)
- Prometheus metrics on /metrics`,
		RunE: runServe,
	}

	cmd.Flags().IntP("port", "p", 0, "HTTP server port (default from config)")
	cmd.Flags().String("host", "", "HTTP server host (default from config)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		a.cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("host") {
		a.cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	log := a.log

	results, err := a.openStore()
	if err != nil {
		return err
	}
	defer a.closeQuietly("result store", results)

	eventBus, err := a.openBus()
	if err != nil {
		return err
	}
	defer a.closeQuietly("event bus", eventBus)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	webHandler := web.NewHandler(results, log)
	if a.cfg.Bus.Journal != "" {
		webHandler.WithJournal(a.cfg.Bus.Journal)
	}
	if err := webHandler.Subscribe(ctx, eventBus, a.cfg.Bus.Topic); err != nil {
		return fmt.Errorf("subscribing to run events: %w", err)
	}

	var ready atomic.Bool
	mux := http.NewServeMux()
	webHandler.RegisterRoutes(mux)
	evaluation.NewHandler().RegisterRoutes(mux)
	mux.Handle("GET /metrics", metrics.Handler())
	registerHealthRoutes(mux, &ready)

	var rateLimiter *middleware.RateLimiter
	if a.cfg.Server.RateLimit > 0 {
		rateLimiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RequestsPerSecond: a.cfg.Server.RateLimit,
			Burst:             a.cfg.Server.Burst,
		})
		defer rateLimiter.Stop()
	}

	httpSrv := &http.Server{
		Addr:        a.cfg.Address(),
		Handler:     buildHandler(mux, log, rateLimiter),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: the event stream is long-lived.
		IdleTimeout: 120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		ready.Store(true)
		log.Info("Starting HTTP server", "addr", httpSrv.Addr, "bus", a.cfg.Bus.Type, "store", a.cfg.Store.Type)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	ready.Store(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown error", "error", err)
	}

	log.Info("Server stopped")
	return nil
}

// buildHandler wraps mux with the middleware chain. rl may be nil.
func buildHandler(mux http.Handler, log *logger.Logger, rl *middleware.RateLimiter) http.Handler {
	mws := []middleware.Middleware{metrics.HTTPMiddleware, middleware.Logging(log)}
	if rl != nil {
		mws = append(mws, rl.Middleware)
	}
	mws = append(mws, middleware.Recovery(log), middleware.RequestID)
	return middleware.Chain(mux, mws...)
}

func registerHealthRoutes(mux *http.ServeMux, ready *atomic.Bool) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			writeStatus(w, http.StatusServiceUnavailable, "not ready")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
