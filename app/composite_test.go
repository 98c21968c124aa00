package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	models "form4-sentinel/database/models_pkg"
)

type fakeNarrator struct {
	reply string
	err   error
	calls int
}

func (f *fakeNarrator) Analyze(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.calls++
	return f.reply, f.err
}

type memoryCache struct {
	entries  map[string]string
	cooldown bool
}

func (m *memoryCache) Get(ctx context.Context, ticker, dataHash string) (string, bool) {
	v, ok := m.entries[ticker+":"+dataHash]
	return v, ok
}

func (m *memoryCache) Set(ctx context.Context, ticker, dataHash, recommendation string) {
	if m.entries == nil {
		m.entries = make(map[string]string)
	}
	m.entries[ticker+":"+dataHash] = recommendation
}

func (m *memoryCache) InCooldown(ctx context.Context, ticker string) bool {
	return m.cooldown
}

func signalWithScore(ticker string, score float64) *models.InsiderSignal {
	sig := models.NewInsiderSignal(ticker, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC))
	sig.AnomalyScore = score
	return sig
}

func TestBlendScores(t *testing.T) {
	tests := []struct {
		name    string
		filing  float64
		insider float64
		want    float64
	}{
		{"plain average", 0.4, 0.2, 0.3},
		{"zero both", 0, 0, 0},
		{"convergence boost", 0.8, 0.8, 0.96},
		{"boost capped at one", 1.0, 1.0, 1.0},
		{"no boost when one side weak", 0.9, 0.3, 0.6},
		{"boost needs both above half", 0.5, 0.9, 0.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := blendScores(tt.filing, tt.insider)
			if got != tt.want {
				t.Errorf("blendScores(%v, %v) = %v, want %v", tt.filing, tt.insider, got, tt.want)
			}
		})
	}
}

func TestBlendBoostNeverDecreases(t *testing.T) {
	for _, pair := range [][2]float64{{0.51, 0.51}, {0.6, 0.9}, {0.99, 0.99}} {
		plain := 0.5*pair[0] + 0.5*pair[1]
		if blendScores(pair[0], pair[1]) < plain {
			t.Errorf("boost decreased the blend for %v", pair)
		}
	}
}

func TestComposeWithNarrator(t *testing.T) {
	narrator := &fakeNarrator{reply: "Reduce exposure given clustered executive selling."}
	e := NewCompositeEngine(narrator, nil)

	filing := &FilingSentiment{Score: 0.8, Confidence: 0.9, Summary: "Negative drift in risk factors."}
	sig := e.Compose(context.Background(), "AAPL", filing, signalWithScore("AAPL", 0.8))

	if sig.CompositeAlphaScore == nil || *sig.CompositeAlphaScore != 0.96 {
		t.Errorf("composite = %v, want 0.96", sig.CompositeAlphaScore)
	}
	if sig.Recommendation != narrator.reply {
		t.Errorf("recommendation = %q", sig.Recommendation)
	}
}

func TestComposeFallbackOnNarratorFailure(t *testing.T) {
	tests := []struct {
		name      string
		insider   float64
		wantPiece string
	}{
		{"strong sell above 0.7", 0.9, "sell"},
		{"caution above 0.4", 0.5, "caution"},
		{"no action otherwise", 0.1, "No immediate action"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewCompositeEngine(&fakeNarrator{err: errors.New("llm down")}, nil)
			filing := &FilingSentiment{Score: tt.insider}
			sig := e.Compose(context.Background(), "AAPL", filing, signalWithScore("AAPL", tt.insider))

			if !strings.Contains(strings.ToLower(sig.Recommendation), strings.ToLower(tt.wantPiece)) {
				t.Errorf("recommendation %q missing %q", sig.Recommendation, tt.wantPiece)
			}
			if !strings.Contains(sig.Recommendation, "AAPL") {
				t.Errorf("recommendation %q missing ticker", sig.Recommendation)
			}
		})
	}
}

func TestComposeNilSignals(t *testing.T) {
	e := NewCompositeEngine(nil, nil)
	e.Now = func() time.Time { return time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC) }

	sig := e.Compose(context.Background(), "XYZ", nil, nil)
	if sig.Ticker != "XYZ" {
		t.Errorf("ticker = %q", sig.Ticker)
	}
	if sig.CompositeAlphaScore == nil || *sig.CompositeAlphaScore != 0 {
		t.Errorf("composite = %v, want 0", sig.CompositeAlphaScore)
	}
	if sig.InsiderSentiment != models.SentimentNeutral {
		t.Errorf("sentiment = %s", sig.InsiderSentiment)
	}
	if sig.Recommendation == "" {
		t.Error("fallback recommendation expected")
	}
}

func TestComposeUsesCache(t *testing.T) {
	narrator := &fakeNarrator{reply: "Hold."}
	cache := &memoryCache{}
	e := NewCompositeEngine(narrator, cache)

	filing := &FilingSentiment{Score: 0.2}
	insider := signalWithScore("AAPL", 0.3)

	e.Compose(context.Background(), "AAPL", filing, insider)
	e.Compose(context.Background(), "AAPL", filing, signalWithScore("AAPL", 0.3))

	if narrator.calls != 1 {
		t.Errorf("narrator called %d times, want 1 (second hit cached)", narrator.calls)
	}
}

func TestComposeCooldownSkipsNarrator(t *testing.T) {
	narrator := &fakeNarrator{reply: "Hold."}
	cache := &memoryCache{cooldown: true}
	e := NewCompositeEngine(narrator, cache)

	sig := e.Compose(context.Background(), "AAPL", &FilingSentiment{Score: 0.2}, signalWithScore("AAPL", 0.3))

	if narrator.calls != 0 {
		t.Errorf("narrator called %d times during cooldown, want 0", narrator.calls)
	}
	if sig.Recommendation == "" {
		t.Error("fallback recommendation expected during cooldown")
	}
}
