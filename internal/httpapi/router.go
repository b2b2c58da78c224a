// Package httpapi exposes the queue engine and admin accounts over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"smartq/internal/auth"
	"smartq/internal/models"
	"smartq/internal/queue"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// QueueService is the part of the queue engine the HTTP layer drives.
type QueueService interface {
	Join(ctx context.Context, in queue.JoinInput) (queue.JoinResult, error)
	Status(ctx context.Context, ticketID string) (queue.StatusResult, error)
	Delete(ctx context.Context, ticketID string) (queue.TransitionResult, error)
	DisplayFeed(ctx context.Context) (queue.DisplayFeed, error)
	Services() []models.Service

	ListTickets(ctx context.Context, q queue.TicketQuery) ([]models.Ticket, error)
	CallNext(ctx context.Context, preferredCounterID string) (queue.CallResult, error)
	CallTicket(ctx context.Context, ticketID, preferredCounterID string) (queue.CallResult, error)
	Start(ctx context.Context, ticketID string) (queue.TransitionResult, error)
	Serve(ctx context.Context, ticketID string) (queue.TransitionResult, error)
	Skip(ctx context.Context, ticketID string) (queue.TransitionResult, error)
	Recall(ctx context.Context, ticketID, preferredCounterID string) (queue.TransitionResult, error)
	Counters(ctx context.Context) ([]models.Counter, error)
	SetCounterOnline(ctx context.Context, counterID string, online bool) (models.Counter, error)
	Activity(ctx context.Context, limit int) ([]models.Activity, error)
}

type AdminAuth interface {
	Setup(ctx context.Context, username, password string) (auth.Session, error)
	Login(ctx context.Context, username, password string) (auth.Session, error)
	Authenticate(ctx context.Context, token string) (models.Admin, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Queue     QueueService
	Auth      AdminAuth
	Health    Pinger
	SockJS    http.Handler
	WebSocket http.Handler
	Origins   []string
	RateLimit RateLimitConfig
	Logger    zerolog.Logger
}

type Handler struct {
	queue   QueueService
	auth    AdminAuth
	health  Pinger
	limiter *RateLimiter
	opts    Options
}

func NewHandler(opts Options) *Handler {
	return &Handler{
		queue:   opts.Queue,
		auth:    opts.Auth,
		health:  opts.Health,
		limiter: NewRateLimiter(opts.RateLimit),
		opts:    opts,
	}
}

const healthTimeout = 2 * time.Second

// Routes mounts the public queue API, the admin API and the realtime endpoints.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.opts.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(h.opts.Origins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.healthz)
	r.Handle("/metrics", promhttp.Handler())
	if h.opts.SockJS != nil {
		r.Handle("/realtime/*", h.opts.SockJS)
	}
	if h.opts.WebSocket != nil {
		r.Handle("/ws", h.opts.WebSocket)
	}

	r.Route("/api/queue", func(r chi.Router) {
		r.With(h.limiter.Middleware).Post("/join", h.join)
		r.Get("/status/{id}", h.status)
		r.Delete("/ticket/{id}", h.leave)
		r.Get("/display-feed", h.displayFeed)
		r.Get("/services", h.services)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.With(h.limiter.Middleware).Post("/setup", h.setup)
		r.With(h.limiter.Middleware).Post("/login", h.login)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAdmin)
			r.Get("/queue", h.listTickets)
			r.Post("/queue/call-next", h.callNext)
			r.Post("/queue/{id}/call", h.callTicket)
			r.Post("/queue/{id}/start", h.start)
			r.Post("/queue/{id}/serve", h.serve)
			r.Post("/queue/{id}/skip", h.skip)
			r.Post("/queue/{id}/recall", h.recall)
			r.Get("/counters", h.counters)
			r.Patch("/counters/{id}", h.updateCounter)
			r.Get("/activity", h.activity)
		})
	})

	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := h.health.Ping(ctx); err != nil {
			h.opts.Logger.Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
