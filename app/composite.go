package app

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	models "form4-sentinel/database/models_pkg"
)

// FilingSentiment is a document-drift sentiment signal produced outside this
// pipeline (for example by a filing-text analysis service).
type FilingSentiment struct {
	Score      float64
	Confidence float64
	Summary    string
}

// FilingSentimentProvider supplies the filing-side signal for a ticker. The
// composite engine depends only on this interface, never on how the signal
// is produced.
type FilingSentimentProvider interface {
	FilingSentiment(ctx context.Context, ticker string) (*FilingSentiment, error)
}

// NullSentimentProvider reports no filing analysis for any ticker.
type NullSentimentProvider struct{}

// FilingSentiment always returns nil, nil.
func (NullSentimentProvider) FilingSentiment(ctx context.Context, ticker string) (*FilingSentiment, error) {
	return nil, nil
}

// Narrator turns a prompt into a short natural-language recommendation.
type Narrator interface {
	Analyze(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// RecommendationCache avoids repeated narrator calls for unchanged inputs.
// InCooldown throttles regeneration per ticker even when the payload changed.
type RecommendationCache interface {
	Get(ctx context.Context, ticker, dataHash string) (string, bool)
	Set(ctx context.Context, ticker, dataHash, recommendation string)
	InCooldown(ctx context.Context, ticker string) bool
}

// CompositeEngine merges the filing sentiment signal with the insider
// anomaly signal into a unified recommendation.
type CompositeEngine struct {
	narrator Narrator
	cache    RecommendationCache

	// Now is injectable for deterministic tests.
	Now func() time.Time
}

// NewCompositeEngine creates a composite engine. Both narrator and cache are
// optional; without a narrator every recommendation uses the deterministic
// fallback template.
func NewCompositeEngine(narrator Narrator, cache RecommendationCache) *CompositeEngine {
	return &CompositeEngine{narrator: narrator, cache: cache, Now: time.Now}
}

// Compose combines the filing and insider signals. A nil insider signal is
// treated as a fresh zero signal for the ticker; a nil filing signal
// contributes a zero filing score. The returned signal carries the composite
// alpha score and a recommendation.
func (e *CompositeEngine) Compose(ctx context.Context, ticker string, filing *FilingSentiment, insider *models.InsiderSignal) *models.InsiderSignal {
	base := insider
	if base == nil {
		now := e.Now().UTC()
		base = models.NewInsiderSignal(ticker, time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC))
	}

	filingScore := 0.0
	if filing != nil {
		filingScore = filing.Score
	}

	composite := blendScores(filingScore, base.AnomalyScore)
	base.CompositeAlphaScore = &composite
	base.Recommendation = e.generateRecommendation(ctx, ticker, filing, base, composite)
	return base
}

// blendScores is a weighted blend with a conviction boost when both signals
// agree and are strong. Rounded to 4 decimal places.
func blendScores(filingScore, insiderScore float64) float64 {
	blended := 0.5*filingScore + 0.5*insiderScore
	if filingScore > 0.5 && insiderScore > 0.5 {
		blended = math.Min(1.0, blended*1.2)
	}
	return math.Round(blended*10000) / 10000
}

func (e *CompositeEngine) generateRecommendation(ctx context.Context, ticker string, filing *FilingSentiment, insider *models.InsiderSignal, composite float64) string {
	filingSummary := "No filing analysis available."
	if filing != nil {
		filingSummary = fmt.Sprintf("Filing drift score: %.2f (confidence %.2f). Summary: %s",
			filing.Score, filing.Confidence, filing.Summary)
	}

	var descs []string
	for _, a := range insider.Anomalies {
		descs = append(descs, fmt.Sprintf("- [%s] %s (severity %.2f)", a.AnomalyType, a.Description, a.SeverityScore))
	}
	anomalyDescriptions := "No anomalies detected."
	if len(descs) > 0 {
		anomalyDescriptions = strings.Join(descs, "\n")
	}

	userPrompt := fmt.Sprintf(
		"Ticker: %s\nComposite Alpha Score: %.2f\nInsider Sentiment: %s\nInsider Anomaly Score: %.2f\nAnomalies:\n%s\n\nFiling Analysis:\n%s",
		ticker, composite, insider.InsiderSentiment, insider.AnomalyScore, anomalyDescriptions, filingSummary)

	if e.narrator == nil {
		return fallbackRecommendation(ticker, insider, composite)
	}

	dataHash := ""
	if e.cache != nil {
		dataHash = hashPayload(userPrompt)
		if rec, ok := e.cache.Get(ctx, ticker, dataHash); ok {
			return rec
		}
		if e.cache.InCooldown(ctx, ticker) {
			return fallbackRecommendation(ticker, insider, composite)
		}
	}

	rec, err := e.narrator.Analyze(ctx, recommendationSystemPrompt, userPrompt)
	if err != nil {
		log.Printf("⚠️ Failed to generate recommendation for %s: %v", ticker, err)
		return fallbackRecommendation(ticker, insider, composite)
	}
	if e.cache != nil {
		e.cache.Set(ctx, ticker, dataHash, rec)
	}
	return rec
}

const recommendationSystemPrompt = "You are a senior quantitative analyst. Produce a concise recommendation " +
	"combining SEC filing sentiment analysis with insider trading anomaly data. " +
	"Include: (1) what the insiders did, (2) what the filings say, " +
	"(3) suggested position, (4) confidence and time horizon, (5) key risk caveats. " +
	"Output plain text, 3-5 sentences."

// fallbackRecommendation is the deterministic template used when the
// narrator is unavailable or fails.
func fallbackRecommendation(ticker string, signal *models.InsiderSignal, composite float64) string {
	action := "No immediate action"
	if composite > 0.7 {
		action = "Strong sell signal"
	} else if composite > 0.4 {
		action = "Elevated caution"
	}
	return fmt.Sprintf("%s for %s. Composite score: %.2f, insider sentiment: %s, anomalies detected: %d.",
		action, ticker, composite, signal.InsiderSentiment, len(signal.Anomalies))
}

// hashPayload fingerprints the prompt payload for cache keying.
func hashPayload(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
