package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/campuspulse/campuspulse/internal/clock"
	"github.com/campuspulse/campuspulse/internal/handler"
	"github.com/campuspulse/campuspulse/internal/lifecycle"
	"github.com/campuspulse/campuspulse/internal/middleware"
	"github.com/campuspulse/campuspulse/internal/push"
	"github.com/campuspulse/campuspulse/internal/store"
	ws "github.com/campuspulse/campuspulse/internal/websocket"
)

// Options carries the already-parsed settings the server wires together.
type Options struct {
	Lifecycle      lifecycle.Config
	Dispatch       push.DispatchConfig
	Scheduler      push.SchedulerConfig
	Verifier       middleware.TokenVerifier
	VAPIDPublicKey string
	// OriginPatterns are the extra origins allowed to open the live feed.
	OriginPatterns []string
}

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	eventH        *handler.EventHandler
	userH         *handler.UserHandler
	notificationH *handler.NotificationHandler
	schedulerH    *handler.SchedulerHandler
	healthH       *handler.HealthHandler
	verifier      middleware.TokenVerifier
	origins       []string
	rateLimiter   *middleware.RateLimiter
	scheduler     *push.Scheduler
	logger        *slog.Logger
}

func New(db *sql.DB, transport push.Transport, clk clock.Clock, opts Options, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger)

	eventStore := store.NewEventStore(db)
	userStore := store.NewUserStore(db)
	tokenStore := store.NewDeviceTokenStore(db)
	notificationStore := store.NewNotificationStore(db)

	svc := lifecycle.NewService(eventStore, userStore, clk, opts.Lifecycle, logger)

	dispatcher := push.NewDispatcher(transport, userStore, tokenStore, notificationStore, clk, opts.Dispatch, logger)
	dispatcher.SetLiveFeed(hub)

	outbox := push.NewOutbox(notificationStore, dispatcher, clk, logger)
	svc.SetNotifier(outbox)

	sched := push.NewScheduler(svc, eventStore, notificationStore, dispatcher, clk, opts.Scheduler, logger)

	return &Server{
		db:            db,
		hub:           hub,
		eventH:        handler.NewEventHandler(svc, eventStore, logger.With("component", "event")),
		userH:         handler.NewUserHandler(userStore, tokenStore, clk, opts.VAPIDPublicKey, logger.With("component", "user")),
		notificationH: handler.NewNotificationHandler(notificationStore, outbox, svc, clk, logger.With("component", "notification")),
		schedulerH:    handler.NewSchedulerHandler(sched, logger.With("component", "scheduler_handler")),
		healthH:       handler.NewHealthHandler(db),
		verifier:      opts.Verifier,
		origins:       opts.OriginPatterns,
		rateLimiter:   middleware.NewRateLimiter(clk),
		scheduler:     sched,
		logger:        logger,
	}
}

// Scheduler returns the reminder scheduler so the caller controls its lifetime.
func (s *Server) Scheduler() *push.Scheduler {
	return s.scheduler
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Hub returns the live notification hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /healthz", s.healthH.Check)

	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.verifier)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

// perUser limits a handler to limit calls per user per minute.
func (s *Server) perUser(h http.HandlerFunc, limit int) http.Handler {
	return middleware.RateLimit(s.rateLimiter, middleware.UserOrIPKey, limit, time.Minute)(h)
}

func staff(h http.HandlerFunc) http.Handler {
	return middleware.RequireStaff(h)
}

func admin(h http.HandlerFunc) http.Handler {
	return middleware.RequireAdmin(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Current user
	mux.HandleFunc("GET /api/me", s.userH.Me)
	mux.HandleFunc("GET /api/me/wallet", s.userH.Wallet)
	mux.HandleFunc("GET /api/me/devices", s.userH.ListDevices)
	mux.HandleFunc("POST /api/me/devices", s.userH.RegisterDevice)
	mux.HandleFunc("DELETE /api/me/devices", s.userH.RemoveDevice)
	mux.HandleFunc("GET /api/me/preferences", s.userH.GetPreferences)
	mux.HandleFunc("PUT /api/me/preferences", s.userH.UpdatePreferences)
	mux.HandleFunc("GET /api/push/vapid-key", s.userH.VAPIDKey)

	// Events
	mux.HandleFunc("GET /api/events", s.eventH.List)
	mux.HandleFunc("GET /api/events/{id}", s.eventH.Get)
	mux.Handle("POST /api/events", staff(s.eventH.Create))
	mux.Handle("POST /api/events/{id}/status", staff(s.eventH.Transition))
	mux.Handle("POST /api/events/{id}/attendance", staff(s.eventH.MarkAttendance))
	mux.Handle("POST /api/events/{id}/register", s.perUser(s.eventH.Register, 20))
	mux.Handle("DELETE /api/events/{id}/register", s.perUser(s.eventH.Unregister, 20))
	mux.HandleFunc("GET /api/events/{id}/feedback/eligibility", s.eventH.FeedbackEligibility)
	mux.Handle("POST /api/events/{id}/feedback", s.perUser(s.eventH.SubmitFeedback, 10))

	// Notifications
	mux.HandleFunc("GET /api/notifications", s.notificationH.Inbox)
	mux.HandleFunc("POST /api/notifications/{id}/read", s.notificationH.MarkRead)
	mux.Handle("GET /ws", ws.HandleWebSocket(s.hub, s.origins, s.logger))

	// Administration
	mux.Handle("POST /api/admin/users", admin(s.userH.Create))
	mux.Handle("POST /api/admin/notifications", staff(s.notificationH.Announce))
	mux.Handle("GET /api/scheduler/status", staff(s.schedulerH.Status))
	mux.Handle("POST /api/scheduler/run", admin(s.schedulerH.Run))
}
