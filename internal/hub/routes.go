package hub

import (
	"github.com/go-chi/chi/v5"

	"github.com/adityalohuni/tabcart/internal/httpx"
)

// Mount registers the websocket endpoint on r, guarded by token.
func (h *Hub) Mount(r chi.Router, token string) {
	r.With(httpx.RequireToken(token)).Get("/ws", h.HandleWS)
}
