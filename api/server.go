// Package api exposes the insider analysis pipeline over HTTP.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"form4-sentinel/app"
	"form4-sentinel/database"
	"form4-sentinel/edgar"
	"form4-sentinel/realtime"
)

// Server handles HTTP API requests. The repository is the process-wide store
// resource: until it is attached, every data endpoint answers 503.
type Server struct {
	repo        *database.InsiderRepository
	edgarClient *edgar.Client
	analyzer    *app.Analyzer
	composite   *app.CompositeEngine
	sentiment   app.FilingSentimentProvider
	alertSvc    *app.AlertService
	broker      *realtime.Broker
	universe    []string

	httpServer *http.Server
}

// NewServer creates a new API server instance. The sentiment provider may be
// nil; signal responses then blend against a zero filing score.
func NewServer(repo *database.InsiderRepository, edgarClient *edgar.Client, analyzer *app.Analyzer,
	composite *app.CompositeEngine, sentiment app.FilingSentimentProvider,
	alertSvc *app.AlertService, broker *realtime.Broker, universe []string) *Server {
	if sentiment == nil {
		sentiment = app.NullSentimentProvider{}
	}
	return &Server{
		repo:        repo,
		edgarClient: edgarClient,
		analyzer:    analyzer,
		composite:   composite,
		sentiment:   sentiment,
		alertSvc:    alertSvc,
		broker:      broker,
		universe:    universe,
	}
}

// Start starts the HTTP server on the given port. Blocks until Stop or a
// listener error.
func (s *Server) Start(port string) error {
	mux := http.NewServeMux()

	mux.Handle("GET /insider/events", s.broker) // SSE endpoint
	mux.HandleFunc("POST /insider/ingest", s.handleIngest)
	mux.HandleFunc("GET /insider/anomalies/{ticker}", s.handleTickerAnomalies)
	mux.HandleFunc("GET /insider/anomalies", s.handleAllAnomalies)
	mux.HandleFunc("GET /insider/profile/{ticker}/{insider}", s.handleProfile)
	mux.HandleFunc("GET /insider/signal/{ticker}", s.handleSignal)
	mux.HandleFunc("GET /insider/alerts", s.handleAlerts)

	mux.HandleFunc("GET /health", s.handleHealth)

	handler := s.corsMiddleware(s.loggingMiddleware(mux))

	addr := fmt.Sprintf("0.0.0.0:%s", port)
	s.httpServer = &http.Server{Addr: addr, Handler: handler}

	log.Printf("🚀 API server starting on %s", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// store returns the repository, or nil after answering 503 when the store is
// not initialized yet.
func (s *Server) store(w http.ResponseWriter) *database.InsiderRepository {
	if s.repo == nil {
		respondWithError(w, http.StatusServiceUnavailable, "store not initialized", nil)
		return nil
	}
	return s.repo
}

// Middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}
