package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/Guilhem-Bonnet/subseek/internal/app"
	"github.com/Guilhem-Bonnet/subseek/internal/domain"
	"github.com/Guilhem-Bonnet/subseek/internal/ports"
)

type Server struct {
	logger   zerolog.Logger
	catalogs *app.Registry
	settings *app.SettingsService
	bus      ports.EventBus
	// requestLimiter est optionnel et permet d'appliquer maxConcurrentRequests à chaud.
	requestLimiter *app.DynamicLimiter
	// onSettingsUpdated est optionnel.
	onSettingsUpdated func(domain.Settings)

	requestTimeout time.Duration
}

func NewServer(logger zerolog.Logger, catalogs *app.Registry, settings *app.SettingsService, bus ports.EventBus, requestLimiter *app.DynamicLimiter, onSettingsUpdated func(domain.Settings)) *Server {
	return &Server{
		logger:            logger,
		catalogs:          catalogs,
		settings:          settings,
		bus:               bus,
		requestLimiter:    requestLimiter,
		onSettingsUpdated: onSettingsUpdated,
		requestTimeout:    defaultRequestTimeout,
	}
}

// WithRequestTimeout borne la durée des requêtes hors flux SSE.
func (s *Server) WithRequestTimeout(d time.Duration) *Server {
	if d > 0 {
		s.requestTimeout = d
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("request_id", "Request-Id"))
	r.Use(hlog.RemoteAddrHandler("remote_ip"))
	r.Use(hlog.UserAgentHandler("user_agent"))
	r.Use(hlog.AccessHandler(accessLogFn))

	r.Route("/api/v1", func(r chi.Router) {
		// Le flux SSE échappe au timeout.
		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.requestTimeout))

			r.Get("/health", s.handleHealth)
			r.Get("/version", s.handleVersion)
			r.Get("/openapi.json", s.handleOpenAPI)

			if s.catalogs != nil {
				NewCatalogsHandler(s.catalogs, s.batchWorkers).Routes(r)
			}
			if s.settings != nil {
				NewSettingsHandler(s.settings, func(updated domain.Settings) {
					if s.requestLimiter != nil && updated.MaxConcurrentRequests > 0 {
						s.requestLimiter.SetLimit(updated.MaxConcurrentRequests)
					}
					if s.onSettingsUpdated != nil {
						s.onSettingsUpdated(updated)
					}
				}).Routes(r)
			}
		})
	})

	return r
}

func (s *Server) batchWorkers(r *http.Request) int {
	if s.settings == nil {
		return 0
	}
	st, err := s.settings.Get(r.Context())
	if err != nil {
		return 0
	}
	return st.MaxBatchWorkers
}
