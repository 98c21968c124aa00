package universe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	tickers, err := Load(filepath.Join(t.TempDir(), "nope.csv"))
	if err != nil {
		t.Fatalf("missing file should not error, got %v", err)
	}
	if len(tickers) != 0 {
		t.Errorf("expected empty universe, got %v", tickers)
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "universe.csv")
	entries := []Entry{
		{Ticker: "AAPL", CompanyName: "Apple Inc.", Sector: "Information Technology"},
		{Ticker: "msft", CompanyName: "Microsoft"},
		{Ticker: "XOM"},
	}

	if err := Save(path, entries); err != nil {
		t.Fatalf("Save: %v", err)
	}

	tickers, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"AAPL", "MSFT", "XOM"}
	if len(tickers) != len(want) {
		t.Fatalf("got %v, want %v", tickers, want)
	}
	for i := range want {
		if tickers[i] != want[i] {
			t.Errorf("tickers[%d] = %s, want %s (uppercased)", i, tickers[i], want[i])
		}
	}
}

func TestLoadSkipsBlankTickers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "universe.csv")
	content := "ticker,company_name\nAAPL,Apple\n,Empty Row\nGOOG,Alphabet\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	tickers, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(tickers) != 2 {
		t.Errorf("got %v, want 2 tickers", tickers)
	}
}

func TestLoadRejectsMissingTickerColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "universe.csv")
	if err := os.WriteFile(path, []byte("symbol,name\nAAPL,Apple\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for CSV without ticker column")
	}
}

func TestRefresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ticker,company_name,sector,sub_industry\nAAPL,Apple Inc.,Tech,Hardware\nMSFT,Microsoft,Tech,Software\n"))
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "universe.csv")
	n, err := Refresh(context.Background(), server.URL, path)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if n != 2 {
		t.Errorf("refreshed %d entries, want 2", n)
	}

	tickers, err := Load(path)
	if err != nil {
		t.Fatalf("Load after refresh: %v", err)
	}
	if len(tickers) != 2 || tickers[0] != "AAPL" {
		t.Errorf("persisted universe = %v", tickers)
	}
}

func TestRefreshNoSource(t *testing.T) {
	if _, err := Refresh(context.Background(), "", "x.csv"); err == nil {
		t.Error("expected error without a source URL")
	}
}
