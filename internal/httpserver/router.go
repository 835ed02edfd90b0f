package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"promptvector/internal/handlers"
	"promptvector/internal/metrics"
	"promptvector/internal/middleware"
)

func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, embedHandler *handlers.EmbedHandler, searchHandler *handlers.SearchHandler) {

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())               // panic recovery
	r.Use(middleware.Timeout(60 * time.Second)) // request timeout; local warm-ups are slow
	r.Use(middleware.MaxBodySize(512 * 1024))   // 512 KB max body

	// routes
	r.Route("/v1", func(r chi.Router) {
		r.Post("/embeddings", embedHandler.Embeddings)
		r.Get("/dimension", embedHandler.GetDimension)
		r.Post("/index", searchHandler.Upsert)
		r.Post("/search", searchHandler.Search)
	})

	// health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())
}
