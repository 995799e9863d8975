package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/corpuslabs/corpusd/internal/api"
	"github.com/corpuslabs/corpusd/internal/api/handlers"
	"github.com/corpuslabs/corpusd/internal/api/middleware"
)

type RouterConfig struct {
	KnowledgeHandler *handlers.KnowledgeHandler
	SearchHandler    *handlers.SearchHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/knowledge", func(r chi.Router) {
		r.Post("/", cfg.KnowledgeHandler.Create)
		r.Get("/", cfg.KnowledgeHandler.List)
		r.Get("/{id}", cfg.KnowledgeHandler.Get)
		r.Delete("/{id}", cfg.KnowledgeHandler.Delete)

		r.Post("/{id}/sources", cfg.KnowledgeHandler.AddSource)
		r.Delete("/{id}/sources/{sourceID}", cfg.KnowledgeHandler.DeleteSource)

		r.Post("/{id}/process", cfg.KnowledgeHandler.Process)
		r.Post("/{id}/search", cfg.SearchHandler.Search)
	})

	return r
}
