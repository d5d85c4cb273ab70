package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/neboloop/architect/internal/handler"
	"github.com/neboloop/architect/internal/handler/tasks"
	"github.com/neboloop/architect/internal/logging"
	"github.com/neboloop/architect/internal/middleware"
	"github.com/neboloop/architect/internal/svc"
)

// ServerOptions holds optional server settings
type ServerOptions struct {
	Quiet       bool   // Suppress startup messages for clean CLI output
	RequestLogs bool   // Log every request through chi's logger
	Secret      string // Bearer token key for /api/v1; empty disables auth
}

// NewRouter builds the HTTP API
func NewRouter(svcCtx *svc.ServiceContext, opts ServerOptions) http.Handler {
	r := chi.NewRouter()

	if opts.RequestLogs {
		r.Use(chimw.Logger)
	}
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(corsMiddleware())

	r.Get("/health", handler.HealthCheckHandler(svcCtx))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.Timeout(30 * time.Second))
		r.Use(middleware.BearerAuth(opts.Secret))

		r.Post("/tasks", tasks.SubmitTaskHandler(svcCtx))
		r.Get("/tasks", tasks.ListTasksHandler(svcCtx))
		r.Get("/tasks/{id}", tasks.GetTaskHandler(svcCtx))
		r.Get("/scheduler", tasks.SchedulerStatsHandler(svcCtx))
	})

	return r
}

// Run serves the API on listen until ctx is cancelled, then shuts down
// gracefully. A listen failure is returned immediately.
func Run(ctx context.Context, svcCtx *svc.ServiceContext, listen string, opts ServerOptions) error {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listen, err)
	}

	httpServer := &http.Server{
		Handler:           NewRouter(svcCtx, opts),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if !opts.Quiet {
		fmt.Printf("Task API ready at http://%s\n", ln.Addr())
	}
	logging.Infof("[Server] Listening on %s", ln.Addr())

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Infof("[Server] Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return <-errCh
}

// corsMiddleware only lets localhost origins through; the API is local
func corsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && isLocalhostOrigin(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
