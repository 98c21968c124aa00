package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
)

type ingestRequest struct {
	Tickers  []string `json:"tickers"`
	DaysBack int      `json:"days_back"`
}

// handleIngest triggers Form 4 ingestion for the requested tickers, or the
// whole universe when none are given.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	repo := s.store(w)
	if repo == nil {
		return
	}

	var req ingestRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
	}
	if req.DaysBack == 0 {
		req.DaysBack = 90
	}
	if req.DaysBack < 1 || req.DaysBack > 365 {
		respondWithError(w, http.StatusBadRequest, "days_back must be in [1,365]", nil)
		return
	}

	tickers := ingestTickers(req.Tickers, s.universe)
	if len(tickers) == 0 {
		respondWithError(w, http.StatusBadRequest, "no tickers given and universe is empty", nil)
		return
	}

	results, err := s.edgarClient.BatchFetch(r.Context(), tickers, req.DaysBack)
	if err != nil {
		respondWithError(w, http.StatusBadGateway, "fetch failed", err)
		return
	}

	fetched, inserted := 0, 0
	for _, txns := range results {
		fetched += len(txns)
		n, err := repo.UpsertTransactions(txns)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "store failed", err)
			return
		}
		inserted += n
	}

	respondWithJSON(w, http.StatusOK, map[string]int{
		"tickers": len(tickers),
		"fetched": fetched,
		"new":     inserted,
	})
}

// ingestTickers picks the requested tickers or, when none are given, a copy
// of the universe. The copy keeps the normalization from writing into the
// slice shared across requests. Always uppercased.
func ingestTickers(requested, universe []string) []string {
	src := requested
	if len(src) == 0 {
		src = universe
	}
	tickers := make([]string, len(src))
	for i, t := range src {
		tickers[i] = strings.ToUpper(t)
	}
	return tickers
}

func (s *Server) handleTickerAnomalies(w http.ResponseWriter, r *http.Request) {
	repo := s.store(w)
	if repo == nil {
		return
	}

	ticker := strings.ToUpper(r.PathValue("ticker"))
	anomalies, err := repo.GetAnomalies(ticker, 0.0, 100)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to load anomalies", err)
		return
	}
	respondWithJSON(w, http.StatusOK, anomalies)
}

func (s *Server) handleAllAnomalies(w http.ResponseWriter, r *http.Request) {
	repo := s.store(w)
	if repo == nil {
		return
	}

	minScore := getFloatParam(r, "min_score", 0.0, floatPtr(0.0), floatPtr(1.0))
	limit := getIntParam(r, "limit", 100, intPtr(1), intPtr(1000))

	anomalies, err := repo.GetAnomalies("", minScore, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to load anomalies", err)
		return
	}
	respondWithJSON(w, http.StatusOK, anomalies)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	repo := s.store(w)
	if repo == nil {
		return
	}

	ticker := strings.ToUpper(r.PathValue("ticker"))
	insider := r.PathValue("insider")

	profile, err := repo.GetProfile(ticker, insider)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to load profile", err)
		return
	}
	if profile == nil {
		respondWithError(w, http.StatusNotFound, "profile not found", nil)
		return
	}
	respondWithJSON(w, http.StatusOK, profile)
}

// handleSignal runs anomaly analysis and returns the composite alpha signal.
func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	repo := s.store(w)
	if repo == nil {
		return
	}

	ticker := strings.ToUpper(r.PathValue("ticker"))
	insiderSignal, err := s.analyzer.AnalyzeTicker(ticker)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "analysis failed", err)
		return
	}

	// The filing side is optional; without it the blend runs insider-only.
	filing, err := s.sentiment.FilingSentiment(r.Context(), ticker)
	if err != nil {
		log.Printf("⚠️ Filing signal unavailable for %s, using insider-only: %v", ticker, err)
		filing = nil
	}

	signal := s.composite.Compose(r.Context(), ticker, filing, insiderSignal)
	respondWithJSON(w, http.StatusOK, signal)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	repo := s.store(w)
	if repo == nil {
		return
	}

	limit := getIntParam(r, "limit", 50, intPtr(1), intPtr(500))
	alerts, err := s.alertSvc.GetActive(limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to load alerts", err)
		return
	}
	respondWithJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if s.repo == nil {
		status["store"] = "uninitialized"
	} else if err := s.repo.Ping(); err != nil {
		status["status"] = "degraded"
		status["store"] = err.Error()
	} else {
		status["store"] = "ok"
	}
	respondWithJSON(w, http.StatusOK, status)
}
