// Package server serves the HTTP API, including the MCP endpoint.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/adrianliechti/glimpse/config"
	"github.com/adrianliechti/glimpse/pkg/auth"
	"github.com/adrianliechti/glimpse/pkg/auth/static"
	"github.com/adrianliechti/glimpse/pkg/otel"
	"github.com/adrianliechti/glimpse/pkg/provider"
	"github.com/adrianliechti/glimpse/server/api"
	"github.com/adrianliechti/glimpse/server/mcp"
	"github.com/adrianliechti/glimpse/server/openai/chat"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// JobTTL is how long finished jobs stay retrievable.
const JobTTL = time.Hour

type Server struct {
	*config.Config
	http.Handler
}

func New(cfg *config.Config, r provider.Recognizer, version string) (*Server, error) {
	authorizer, err := static.New(cfg.Token)

	if err != nil {
		return nil, err
	}

	apiHandler := api.New(cfg, r, api.NewJobs(JobTTL))

	chatHandler := chat.New(cfg, cfg.Extractor(r))

	mcpHandler, err := mcp.New(cfg.Extractor(r), version)

	if err != nil {
		return nil, err
	}

	mux := chi.NewRouter()

	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)

	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Location", "X-Job-Id", "Content-Disposition", "Mcp-Session-Id"},
	}))

	mux.Get("/healthz", apiHandler.HandleHealth)

	mux.Group(func(r chi.Router) {
		r.Use(auth.Middleware(authorizer, func(w http.ResponseWriter, err error) {
			api.WriteError(w, http.StatusUnauthorized, err)
		}))

		r.Route("/v1", func(r chi.Router) {
			apiHandler.Attach(r)
			chatHandler.Attach(r)
		})

		r.Handle("/mcp", mcpHandler)
	})

	return &Server{
		Config:  cfg,
		Handler: otel.Handler(mux, "glimpse"),
	}, nil
}

// ListenAndServe serves until ctx is done and shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.Address,
		Handler: s.Handler,

		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)

	go func() {
		slog.Info("server listening", "address", s.Address)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err

	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdown); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
