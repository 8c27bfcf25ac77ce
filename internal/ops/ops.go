// Package ops serves health and profiling endpoints on a separate port so
// they never share a listener with user traffic.
package ops

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"biomark/ports"
)

// Info is reported by /healthz
type Info struct {
	Predictor string
	Version   string
	Started   time.Time
}

// NewRouter builds the ops router
func NewRouter(info Info, sessions ports.SessionRepository) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "ok",
			"predictor": info.Predictor,
			"version":   info.Version,
			"uptime":    time.Since(info.Started).Round(time.Second).String(),
			"sessions":  sessions.Count(req.Context()),
		})
	})
	r.Mount("/debug", middleware.Profiler())
	return r
}

// Serve runs the ops listener until ctx is cancelled
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Ops] health and pprof listening on http://%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
