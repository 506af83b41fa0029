package api

import (
	"context"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/opd-scribe/internal/config"
	"github.com/snarg/opd-scribe/internal/metrics"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// ServerOptions holds the collaborators the HTTP layer is wired to.
type ServerOptions struct {
	Processor Processor
	Engine    EngineInfo
	Styles    StyleDefaults
	Sessions  SessionStore
	WebFiles  fs.FS // nil = no UI
	OpenAPI   []byte
}

func NewServer(cfg *config.Config, opts ServerOptions, version string, startTime time.Time, log zerolog.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      NewRouter(cfg, opts, version, startTime, log),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

// NewRouter builds the full route tree.
func NewRouter(cfg *config.Config, opts ServerOptions, version string, startTime time.Time, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(metrics.InstrumentHandler)

	r.Handle("/metrics", promhttp.Handler())

	health := NewHealthHandler(opts.Engine, opts.Styles, opts.Sessions, cfg.GeminiAPIKey != "", version, startTime)
	consultations := NewConsultationHandler(opts.Processor, opts.Styles, cfg.GeminiAPIKey, cfg.MaxAudioBytes)
	sessions := NewSessionHandler(opts.Sessions, cfg.SessionCookieSecure)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(NoStore)
		r.Get("/health", health.ServeHTTP)
		r.Get("/style/defaults", consultations.GetStyleDefaults)
		if len(opts.OpenAPI) > 0 {
			r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/yaml")
				w.Write(opts.OpenAPI)
			})
		}

		// Session-scoped routes
		r.Group(func(r chi.Router) {
			r.Use(Sessions(opts.Sessions, cfg.SessionCookieSecure))
			r.Post("/consultations", consultations.Submit)
			r.Get("/case-note", consultations.GetCaseNote)
			r.Put("/case-note", consultations.PutCaseNote)
			r.Delete("/case-note", consultations.ResetCaseNote)
			r.Delete("/session", sessions.End)
		})
	})

	if opts.WebFiles != nil {
		r.Handle("/*", http.FileServer(http.FS(opts.WebFiles)))
	}

	return r
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
