// Package server provides the HTTP server and routing for Electro Caja.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/mvalderrama/electrocaja/internal/auth"
	authhandlers "github.com/mvalderrama/electrocaja/internal/auth/handlers"
	"github.com/mvalderrama/electrocaja/internal/config"
	"github.com/mvalderrama/electrocaja/internal/database"
	"github.com/mvalderrama/electrocaja/internal/evidence"
	evidencehandlers "github.com/mvalderrama/electrocaja/internal/evidence/handlers"
	"github.com/mvalderrama/electrocaja/internal/modules/cashbox"
	cashboxhandlers "github.com/mvalderrama/electrocaja/internal/modules/cashbox/handlers"
	"github.com/mvalderrama/electrocaja/internal/modules/display"
	"github.com/mvalderrama/electrocaja/internal/modules/inventory"
	inventoryhandlers "github.com/mvalderrama/electrocaja/internal/modules/inventory/handlers"
	"github.com/mvalderrama/electrocaja/internal/modules/ledger"
	ledgerhandlers "github.com/mvalderrama/electrocaja/internal/modules/ledger/handlers"
	"github.com/mvalderrama/electrocaja/internal/modules/rates"
	rateshandlers "github.com/mvalderrama/electrocaja/internal/modules/rates/handlers"
	"github.com/mvalderrama/electrocaja/internal/modules/reports"
	reportshandlers "github.com/mvalderrama/electrocaja/internal/modules/reports/handlers"
	"github.com/mvalderrama/electrocaja/internal/modules/sales"
	saleshandlers "github.com/mvalderrama/electrocaja/internal/modules/sales/handlers"
	"github.com/mvalderrama/electrocaja/internal/modules/services"
	serviceshandlers "github.com/mvalderrama/electrocaja/internal/modules/services/handlers"
	"github.com/mvalderrama/electrocaja/internal/notify"
	notifyhandlers "github.com/mvalderrama/electrocaja/internal/notify/handlers"
	"github.com/mvalderrama/electrocaja/internal/realtime"
)

// Config holds server configuration.
type Config struct {
	Log            zerolog.Logger
	Config         *config.Config
	PosDB          *database.DB
	CacheDB        *database.DB
	Tokens         *auth.TokenService
	Users          *auth.UserRepository
	Registry       *auth.SessionRegistry
	Cashbox        *cashbox.Service
	Ledger         *ledger.Repository
	Inventory      *inventory.Service
	Sales          *sales.Service
	Services       *services.Repository
	Rates          *rates.Service
	Reports        *reports.Service
	Evidence       *evidence.Service
	Queue          *notify.Queue
	Hub            *realtime.Hub
	DisplayManager *display.StateManager
	SystemHandlers *SystemHandlers
}

// Server is the HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    Config
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		cfg:    cfg,
	}

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	authHandler := authhandlers.NewHandler(s.cfg.Users, s.cfg.Tokens, s.cfg.Registry, s.cfg.Log)
	cashboxHandler := cashboxhandlers.NewHandler(s.cfg.Cashbox, s.cfg.Log)
	ledgerHandler := ledgerhandlers.NewHandler(s.cfg.Ledger, s.cfg.Log)
	inventoryHandler := inventoryhandlers.NewHandler(s.cfg.Inventory, s.cfg.Log)
	salesHandler := saleshandlers.NewHandler(s.cfg.Sales, s.cfg.Log)
	servicesHandler := serviceshandlers.NewHandler(s.cfg.Services, s.cfg.Log)
	ratesHandler := rateshandlers.NewHandler(s.cfg.Rates, s.cfg.Log)
	reportsHandler := reportshandlers.NewHandler(s.cfg.Reports, s.cfg.Queue, s.cfg.Log)
	notifyHandler := notifyhandlers.NewHandler(s.cfg.Queue, s.cfg.Log)
	evidenceHandler := evidencehandlers.NewHandler(s.cfg.Evidence, s.cfg.Log)

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Public routes: login and the customer ticket lookup.
		authHandler.RegisterPublicRoutes(r)
		servicesHandler.RegisterPublicRoutes(r)

		// Everything else requires a valid session token. The websocket
		// endpoint sits inside the auth group too; terminals pass the token
		// as a query parameter.
		r.Group(func(r chi.Router) {
			r.Use(s.cfg.Tokens.Middleware)

			r.Get("/ws", s.cfg.Hub.ServeHTTP)
			r.Get("/display/estado", s.cfg.DisplayManager.ServeHTTP)

			authHandler.RegisterRoutes(r)
			cashboxHandler.RegisterRoutes(r)
			ledgerHandler.RegisterRoutes(r)
			evidenceHandler.RegisterRoutes(r)
			inventoryHandler.RegisterRoutes(r)
			salesHandler.RegisterRoutes(r)
			servicesHandler.RegisterRoutes(r)
			ratesHandler.RegisterRoutes(r)
			reportsHandler.RegisterRoutes(r)
			notifyHandler.RegisterRoutes(r)

			if s.cfg.SystemHandlers != nil {
				s.cfg.SystemHandlers.RegisterRoutes(r)
			}
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Config.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
