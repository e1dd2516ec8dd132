// Package server exposes the orchestrator over http: submitting, querying and canceling pipelines, answering manual
// approvals and serving prometheus metrics.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/estafette/estafette-ci-orchestrator/clients/approval"
	"github.com/estafette/estafette-ci-orchestrator/services/pipeline"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	requestTimeout  = 60 * time.Second
	shutdownTimeout = 20 * time.Second
	maxBodyBytes    = 1 << 20
)

// Server routes http requests to the pipeline service
type Server struct {
	router          chi.Router
	baseCtx         context.Context
	pipelineService pipeline.Service
	approvalClient  approval.Client
	gatherer        prometheus.Gatherer
}

// NewServer returns a Server; pipelines submitted through it run under baseCtx rather than the request context, so they
// outlive the request that created them
func NewServer(baseCtx context.Context, pipelineService pipeline.Service, approvalClient approval.Client, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		baseCtx:         baseCtx,
		pipelineService: pipelineService,
		approvalClient:  approvalClient,
		gatherer:        gatherer,
	}

	s.setupRouter()

	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/liveness", s.handleLiveness)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(requestTimeout))

		r.Route("/pipelines", func(r chi.Router) {
			r.Get("/", s.handleGetPipelines)
			r.Post("/", s.handleSubmitPipeline)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetPipeline)
				r.Get("/jobs", s.handleGetJobs)
				r.Get("/artifacts", s.handleGetArtifacts)
				r.Get("/jobs/{jobID}/artifacts", s.handleGetArtifacts)
				r.Post("/cancel", s.handleCancelPipeline)
				r.Post("/approvals/{step}", s.handleApprove)
				r.Post("/approvals/{step}/reject", s.handleReject)
			})
		})

		r.Get("/approvals", s.handleGetPendingApprovals)
	})

	s.router = r
}

// Handler returns the http.Handler serving all routes
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on address until ctx is done, then drains in-flight requests
func (s *Server) ListenAndServe(ctx context.Context, address string) error {

	httpServer := &http.Server{
		Addr:              address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Info().Msgf("Listening on %v...", address)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down http server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("requestId", chimiddleware.GetReqID(r.Context())).
				Msg("Request completed")
		}()

		next.ServeHTTP(ww, r)
	})
}
