// Package universe manages the CSV-backed ticker universe the monitor and
// batch ingest operate over.
package universe

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Entry is one company in the ticker universe.
type Entry struct {
	Ticker      string
	CompanyName string
	Sector      string
	SubIndustry string
}

var csvHeader = []string{"ticker", "company_name", "sector", "sub_industry"}

// Load reads ticker symbols from the universe CSV. A missing file is not an
// error: it logs a warning and returns an empty universe.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		log.Printf("⚠️ Universe file not found: %s", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}

	tickerCol := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), "ticker") {
			tickerCol = i
			break
		}
	}
	if tickerCol < 0 {
		return nil, fmt.Errorf("Load: no ticker column in %s", path)
	}

	var tickers []string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("Load: %w", err)
		}
		if tickerCol >= len(row) {
			continue
		}
		ticker := strings.ToUpper(strings.TrimSpace(row[tickerCol]))
		if ticker != "" {
			tickers = append(tickers, ticker)
		}
	}

	log.Printf("✅ Loaded universe: %d tickers from %s", len(tickers), path)
	return tickers, nil
}

// Save writes universe entries to the CSV file, creating parent directories
// as needed.
func Save(path string, entries []Entry) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("Save: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	for _, e := range entries {
		if err := writer.Write([]string{e.Ticker, e.CompanyName, e.Sector, e.SubIndustry}); err != nil {
			return fmt.Errorf("Save: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("Save: %w", err)
	}

	log.Printf("✅ Saved universe: %d entries to %s", len(entries), path)
	return nil
}

// Refresh downloads the universe CSV from a remote source and persists it to
// path. The remote file must carry a ticker column; the remaining descriptive
// columns are kept when present.
func Refresh(ctx context.Context, sourceURL, path string) (int, error) {
	if sourceURL == "" {
		return 0, fmt.Errorf("Refresh: no source URL configured")
	}

	client := &http.Client{Timeout: 60 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return 0, fmt.Errorf("Refresh: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("Refresh: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("Refresh: source returned status %d", resp.StatusCode)
	}

	reader := csv.NewReader(resp.Body)
	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("Refresh: %w", err)
	}

	col := func(name string) int {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
		return -1
	}
	tickerCol := col("ticker")
	if tickerCol < 0 {
		return 0, fmt.Errorf("Refresh: no ticker column in source")
	}
	nameCol := col("company_name")
	sectorCol := col("sector")
	subCol := col("sub_industry")

	get := func(row []string, i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var entries []Entry
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("Refresh: %w", err)
		}
		ticker := strings.ToUpper(get(row, tickerCol))
		if ticker == "" {
			continue
		}
		entries = append(entries, Entry{
			Ticker:      ticker,
			CompanyName: get(row, nameCol),
			Sector:      get(row, sectorCol),
			SubIndustry: get(row, subCol),
		})
	}

	if err := Save(path, entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}
