package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter はAPIのルーティングを構築する
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Get("/healthz", handler.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handler.Health)

		r.Post("/ask", handler.Ask)
		r.Post("/checklist", handler.GenerateChecklist)

		r.Route("/resources", func(r chi.Router) {
			r.Get("/", handler.ListResources)
			r.Post("/", handler.CreateResource)
			r.Post("/upload", handler.UploadResource)
			r.Post("/import", handler.BulkImport)

			r.Route("/{resourceID}", func(r chi.Router) {
				r.Get("/", handler.GetResource)
				r.Patch("/", handler.UpdateResource)
				r.Delete("/", handler.DeleteResource)
				r.Post("/favorite", handler.ToggleFavorite)
				r.Post("/read", handler.MarkAsRead)
			})
		})
	})

	return r
}
