package api

import "testing"

func TestIngestTickersDoesNotMutateUniverse(t *testing.T) {
	universe := []string{"aapl", "msft"}

	got := ingestTickers(nil, universe)

	if len(got) != 2 || got[0] != "AAPL" || got[1] != "MSFT" {
		t.Errorf("tickers = %v", got)
	}
	if universe[0] != "aapl" || universe[1] != "msft" {
		t.Errorf("shared universe slice was modified: %v", universe)
	}
}

func TestIngestTickersPrefersRequested(t *testing.T) {
	got := ingestTickers([]string{"tsla"}, []string{"aapl"})
	if len(got) != 1 || got[0] != "TSLA" {
		t.Errorf("tickers = %v", got)
	}
}

func TestIngestTickersEmptyBoth(t *testing.T) {
	if got := ingestTickers(nil, nil); len(got) != 0 {
		t.Errorf("tickers = %v, want empty", got)
	}
}
