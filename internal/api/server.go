// Package api serves the scraped tables and the waiting-times data source
// as a read-only JSON API.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/comparethewait/ctw/internal/datasource"
	"github.com/comparethewait/ctw/internal/store"
	"github.com/comparethewait/ctw/pkg/models"
)

// Options configures the API server
type Options struct {
	// AllowedOrigins are the CORS origins, e.g. the site's own origin
	AllowedOrigins []string
	// Timeout bounds every request
	Timeout time.Duration
}

// Server answers API requests from data loaded once at start
type Server struct {
	data    *store.Dataset
	source  *datasource.Dataset
	opts    Options
	started time.Time

	procedures map[string]models.Procedure
	cities     map[string]models.City
}

// New indexes the dataset for lookups. source may be nil, in which case the
// waiting-times endpoints answer with an error and comparisons omit
// regional figures.
func New(data *store.Dataset, source *datasource.Dataset, opts Options) *Server {
	if data == nil {
		data = &store.Dataset{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"http://localhost:*", "https://localhost:*"}
	}

	s := &Server{
		data:       data,
		source:     source,
		opts:       opts,
		started:    time.Now(),
		procedures: make(map[string]models.Procedure, len(data.Procedures)),
		cities:     make(map[string]models.City, len(data.Cities)),
	}
	for _, p := range data.Procedures {
		s.procedures[p.ID] = p
	}
	for _, c := range data.Cities {
		s.cities[c.Slug] = c
	}
	return s
}

// Handler returns the router with middleware and routes mounted
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.Timeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/procedures", s.listProcedures)
		r.Get("/procedures/{id}", s.getProcedure)
		r.Get("/cities", s.listCities)
		r.Get("/comparisons/{procedure}/{city}", s.comparison)
		r.Get("/faq", s.faq)
		r.Get("/waiting-times/{procedure}", s.waitingTimes)
	})

	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.opts.Timeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("API server starting")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("API server stopped")
	return nil
}

// requestLogger logs each request through zerolog
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			log.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("API request")
		}()
		next.ServeHTTP(ww, r)
	})
}
