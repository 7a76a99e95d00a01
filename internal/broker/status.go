package broker

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	response "github.com/deskline/deskline-messenger/internal/lib"
)

// StatusRouter exposes the broker's observability surface.
func StatusRouter(hub *Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		response.WriteError(w, req, http.StatusNotFound, "not_found", "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		response.WriteError(w, req, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, response.OK())
	})

	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, hub.Stats())
	})

	return r
}
