package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func (c controller) GetMux() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(c.requestIdMw)
	r.Use(c.requestLoggingMw)
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/guest", c.issueGuestToken)
		r.Get("/version", c.getVersion)
		r.Get("/rooms", c.listRooms)
		r.Get("/songs/top", c.topSongs)

		r.Group(func(r chi.Router) {
			r.Use(c.authMw)
			r.Post("/rooms", c.createRoom)
			r.Get("/rooms/{room-id}", c.getRoomState)
			r.Get("/songs/{video-id}/likes", c.getLikes)
		})
	})

	r.Route("/ws", func(r chi.Router) {
		r.Get("/host/{room-id}", c.serveHost)
		r.Get("/remote/{room-id}", c.serveRemote)
	})

	return r
}
