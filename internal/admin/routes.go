package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/adityalohuni/tabcart/internal/httpx"
)

// Mount registers the admin endpoints under /admin, guarded by token.
func (h *Handlers) Mount(r chi.Router, token string) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(httpx.RequireToken(token))
		r.Get("/status", h.Status)
		r.Get("/tabs", h.TabsList)
		r.Post("/tabs/disconnect", h.DisconnectTab)
		r.Get("/catalog", h.Catalog)
		r.Get("/config", h.ConfigGet)
		r.Put("/config", h.ConfigSet)
	})
}

// Routes returns a standalone router serving only the admin endpoints.
func (h *Handlers) Routes(token string) http.Handler {
	r := chi.NewRouter()
	h.Mount(r, token)
	return r
}
