package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"vouchgraph/internal/metrics"
)

// Router wires handlers into an HTTP route tree
type Router struct {
	Graph   *GraphHandler
	Layout  *LayoutHandler
	Notify  *NotifyHandler
	Embed   *EmbedHandler
	Events  http.Handler
	Metrics *metrics.Collector

	CORSOrigins []string
	Logger      *zap.Logger
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(Logger(rt.Logger))
	if rt.Metrics != nil {
		router.Use(rt.Metrics.Middleware)
	}

	origins := rt.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, rt.Logger, map[string]string{"status": "ok"}, http.StatusOK)
	})

	router.Route("/api", func(r chi.Router) {
		if g := rt.Graph; g != nil {
			r.Get("/graph", g.GetGraph)
			r.Get("/graph/filtered", g.GetFilteredGraph)
			r.Post("/graph/refresh", g.Refresh)
			r.Get("/state", g.GetState)
			r.Put("/search", g.SetSearch)
			r.Post("/selection/{id}", g.ToggleSelection)
			r.Delete("/selection", g.ClearSelection)
			r.Get("/connections", g.GetConnections)
			r.Get("/stats", g.GetStats)
			r.Get("/rate-limit", g.GetRateLimit)
			r.Post("/rate-limit/retry", g.RetryRateLimit)
			r.Get("/export/{format}", g.Export)
		}

		if l := rt.Layout; l != nil {
			r.Get("/render.svg", l.RenderSVG)
			r.Get("/layout/positions", l.GetPositions)
			r.Delete("/layout/pins/{id}", l.Unpin)
		}

		if n := rt.Notify; n != nil {
			r.Post("/webhook", n.Webhook)
			r.Post("/notifications", n.Send)
			r.Put("/notifications", n.Broadcast)
		}
	})

	if rt.Layout != nil {
		router.Get("/ws/layout", rt.Layout.Socket)
	}
	if rt.Embed != nil {
		router.Get("/embed", rt.Embed.ServeEmbed)
	}
	if rt.Events != nil {
		router.Handle("/events", rt.Events)
	}
	if rt.Metrics != nil {
		router.Handle("/metrics", rt.Metrics.Handler())
	}

	return router
}
