package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	sentryhttp "github.com/getsentry/sentry-go/http"

	"github.com/m1shkaJavaDeveloper/activeMqWildfy/internal/config"
	"github.com/m1shkaJavaDeveloper/activeMqWildfy/internal/handlers"
	"github.com/m1shkaJavaDeveloper/activeMqWildfy/internal/middleware"
	"github.com/m1shkaJavaDeveloper/activeMqWildfy/internal/sentry"
)

// Router is the HTTP handler plus the background resources it owns.
type Router struct {
	http.Handler
	connectRateLimiter *middleware.RateLimiter
}

// Close stops background work started by New.
func (r *Router) Close() {
	r.connectRateLimiter.Stop()
}

func New(cfg *config.Config, sessions handlers.SessionService, schemes []string) *Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	if sentry.Enabled() {
		r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	}
	r.Use(middleware.RequestContextMiddleware)
	r.Use(middleware.CORSMiddleware(cfg.CORSAllowedOrigins))

	// Handlers
	configHandler := handlers.NewConfigHandler(schemes)
	messagingHandler := handlers.NewMessagingHandler(sessions)

	// Rate limiter for broker dials
	connectRateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)

	r.Get("/simple-test", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("Simpler test"))
	})

	// Routes
	r.Route("/api", func(r chi.Router) {
		// Health check
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		})

		// Liveness text probe
		r.Get("/test", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Write([]byte("Broker API is working!"))
		})

		// Public configuration (supported schemes, defaults)
		r.Get("/config", configHandler.PublicConfig)

		// Broker session
		r.With(connectRateLimiter.Middleware).Post("/connect", messagingHandler.Connect)
		r.Post("/disconnect", messagingHandler.Disconnect)
		r.Get("/status", messagingHandler.Status)

		// Messaging
		r.Post("/send", messagingHandler.Send)
		r.Get("/receive", messagingHandler.Receive)
	})

	return &Router{Handler: r, connectRateLimiter: connectRateLimiter}
}
