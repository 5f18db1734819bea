package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func SetupRoutes(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/state", GetState(d.Mirror))
	r.Get("/choices", GetChoices(d.Mirror))
	r.Get("/connection", GetConnection(d.Conn))
	r.Post("/connection", Connect(d.Conn, d.Log))
	r.Post("/sync", Sync(d.Sender, d.Mirror))
	r.Get("/ws", Stream(d))
	return r
}
