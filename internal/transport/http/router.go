package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpmw "github.com/akkhan00/m5Chat/internal/transport/http/middleware"
	"github.com/akkhan00/m5Chat/internal/transport/ws"
)

func NewRouter(h *Handler, wsServer *ws.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)
	r.Use(httpmw.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// WS endpoint stays outside the group below: the upgrade needs to hijack
	// the raw ResponseWriter, and the connection outlives any timeout
	r.Get("/ws", wsServer.HandleWS)

	r.Group(func(pr chi.Router) {
		pr.Use(httpmw.Logging)
		pr.Use(httpmw.Metrics)
		pr.Use(middlewareChi.Timeout(30 * time.Second))

		pr.Get("/", h.Banner)

		pr.Route("/rooms", func(rm chi.Router) {
			rm.Post("/", h.CreateRoom)
			rm.Get("/", h.ListRooms)

			rm.Route("/{name}", func(rr chi.Router) {
				rr.Get("/messages", h.GetMessages)
				rr.Get("/members", h.GetMembers)
			})
		})

		pr.Get("/healthz", h.Healthz)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
