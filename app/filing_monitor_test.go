package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"form4-sentinel/config"
	models "form4-sentinel/database/models_pkg"
	"form4-sentinel/edgar"
)

const monitorFeed = `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
	<entry>
		<title>4 - ACME CORP</title>
		<link href="https://www.sec.gov/Archives/edgar/data/111111/000011111124000002-index.htm"/>
		<id>urn:tag:sec.gov,2008:accession-number=0000111111-24-000002</id>
	</entry>
	<entry>
		<title>4 - WIDGET INC</title>
		<link href="https://www.sec.gov/Archives/edgar/data/222222/000022222224000001-index.htm"/>
		<id>urn:tag:sec.gov,2008:accession-number=0000222222-24-000001</id>
	</entry>
</feed>`

// fakeSource is a scripted FilingSource.
type fakeSource struct {
	feed       []byte
	feedErr    error
	accessions map[string]accessionResult
	batch      map[string][]models.InsiderTransaction
}

type accessionResult struct {
	ticker string
	txns   []models.InsiderTransaction
	err    error
}

func (f *fakeSource) FetchFeed(ctx context.Context) ([]byte, error) {
	return f.feed, f.feedErr
}

func (f *fakeSource) FetchByAccession(ctx context.Context, entry edgar.FeedEntry) (string, []models.InsiderTransaction, error) {
	res := f.accessions[entry.Accession]
	return res.ticker, res.txns, res.err
}

func (f *fakeSource) BatchFetch(ctx context.Context, tickers []string, daysBack int) (map[string][]models.InsiderTransaction, error) {
	return f.batch, nil
}

// fakeMonitorStore records upserts and watermark writes. Rows are deduplicated
// on the same identity tuple the store's unique index uses, so replayed
// batches count zero new rows.
type fakeMonitorStore struct {
	watermark string
	upserted  []models.InsiderTransaction
	setCalls  []string
	seen      map[string]bool
}

func (f *fakeMonitorStore) UpsertTransactions(txns []models.InsiderTransaction) (int, error) {
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	inserted := 0
	for _, tx := range txns {
		key := fmt.Sprintf("%s|%s|%s|%v|%s",
			tx.Ticker, tx.InsiderName, tx.TransactionDate.Format("2006-01-02"), tx.Shares, tx.TransactionCode)
		if f.seen[key] {
			continue
		}
		f.seen[key] = true
		f.upserted = append(f.upserted, tx)
		inserted++
	}
	return inserted, nil
}

func (f *fakeMonitorStore) GetWatermark(feedName string) (string, error) {
	return f.watermark, nil
}

func (f *fakeMonitorStore) SetWatermark(feedName, accession string) error {
	f.watermark = accession
	f.setCalls = append(f.setCalls, accession)
	return nil
}

func monitorConfig() config.MonitorConfig {
	return config.MonitorConfig{
		AtomPollIntervalMarket: 300,
		AtomPollIntervalOff:    1800,
		BatchIntervalMinutes:   60,
		BatchOverlapHours:      24,
		MarketOpen:             "09:30",
		MarketClose:            "16:00",
	}
}

func sampleSaleTx(ticker string) models.InsiderTransaction {
	price := 100.0
	return models.InsiderTransaction{
		Ticker:          ticker,
		InsiderName:     "DOE JANE",
		TransactionDate: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
		TransactionCode: models.CodeSale,
		Shares:          1000,
		PricePerShare:   &price,
		FilingDate:      time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
	}
}

func TestPollInterval(t *testing.T) {
	tests := []struct {
		name string
		hour int
		min  int
		want time.Duration
	}{
		{"before open", 8, 0, 1800 * time.Second},
		{"at open", 9, 30, 300 * time.Second},
		{"midday", 12, 0, 300 * time.Second},
		{"at close", 16, 0, 300 * time.Second},
		{"after close", 17, 30, 1800 * time.Second},
	}

	m := NewFilingMonitor(&fakeMonitorStore{}, &fakeSource{}, nil, monitorConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m.Now = func() time.Time {
				return time.Date(2024, 6, 3, tt.hour, tt.min, 0, 0, time.Local)
			}
			if got := m.pollInterval(); got != tt.want {
				t.Errorf("pollInterval = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPollAtomFeedAdvancesWatermark(t *testing.T) {
	store := &fakeMonitorStore{}
	source := &fakeSource{
		feed: []byte(monitorFeed),
		accessions: map[string]accessionResult{
			"0000111111-24-000002": {ticker: "ACME", txns: []models.InsiderTransaction{sampleSaleTx("ACME")}},
			"0000222222-24-000001": {ticker: "WDGT", txns: []models.InsiderTransaction{sampleSaleTx("WDGT")}},
		},
	}

	m := NewFilingMonitor(store, source, []string{"ACME", "WDGT"}, monitorConfig())
	if err := m.pollAtomFeed(context.Background()); err != nil {
		t.Fatalf("pollAtomFeed: %v", err)
	}

	if store.watermark != "0000111111-24-000002" {
		t.Errorf("watermark = %q, want newest accession", store.watermark)
	}
	if len(store.upserted) != 2 {
		t.Errorf("upserted %d transactions, want 2", len(store.upserted))
	}
}

func TestPollAtomFeedHoldsWatermarkOnFailure(t *testing.T) {
	store := &fakeMonitorStore{watermark: ""}
	source := &fakeSource{
		feed: []byte(monitorFeed),
		accessions: map[string]accessionResult{
			"0000111111-24-000002": {ticker: "ACME", txns: []models.InsiderTransaction{sampleSaleTx("ACME")}},
			"0000222222-24-000001": {err: errors.New("edgar 503")},
		},
	}

	m := NewFilingMonitor(store, source, []string{"ACME", "WDGT"}, monitorConfig())
	if err := m.pollAtomFeed(context.Background()); err != nil {
		t.Fatalf("pollAtomFeed: %v", err)
	}

	// One entry failed, so the whole range is retried next cycle.
	if len(store.setCalls) != 0 {
		t.Errorf("watermark advanced to %q despite a failed entry", store.watermark)
	}
	// The successful entry is still stored; upserts make the retry safe.
	if len(store.upserted) != 1 {
		t.Errorf("upserted %d transactions, want 1", len(store.upserted))
	}
}

func TestPollAtomFeedFiltersUniverse(t *testing.T) {
	store := &fakeMonitorStore{}
	source := &fakeSource{
		feed: []byte(monitorFeed),
		accessions: map[string]accessionResult{
			"0000111111-24-000002": {ticker: "ACME", txns: []models.InsiderTransaction{sampleSaleTx("ACME")}},
			"0000222222-24-000001": {ticker: "OTHR", txns: []models.InsiderTransaction{sampleSaleTx("OTHR")}},
		},
	}

	m := NewFilingMonitor(store, source, []string{"ACME"}, monitorConfig())
	if err := m.pollAtomFeed(context.Background()); err != nil {
		t.Fatalf("pollAtomFeed: %v", err)
	}

	if len(store.upserted) != 1 || store.upserted[0].Ticker != "ACME" {
		t.Errorf("universe filter failed, upserted: %+v", store.upserted)
	}
	// Off-universe entries still count as processed.
	if store.watermark != "0000111111-24-000002" {
		t.Errorf("watermark = %q", store.watermark)
	}
}

func TestPollAtomFeedStopsAtWatermark(t *testing.T) {
	store := &fakeMonitorStore{watermark: "0000111111-24-000002"}
	source := &fakeSource{feed: []byte(monitorFeed)}

	m := NewFilingMonitor(store, source, []string{"ACME"}, monitorConfig())
	if err := m.pollAtomFeed(context.Background()); err != nil {
		t.Fatalf("pollAtomFeed: %v", err)
	}
	if len(store.upserted) != 0 {
		t.Errorf("nothing above the watermark should be processed, got %d", len(store.upserted))
	}
	if len(store.setCalls) != 0 {
		t.Error("empty page must not rewrite the watermark")
	}
}

func TestMonitorStartStopIdempotent(t *testing.T) {
	store := &fakeMonitorStore{}
	source := &fakeSource{feed: []byte(`<feed></feed>`)}
	m := NewFilingMonitor(store, source, nil, monitorConfig())

	m.Start(context.Background())
	m.Start(context.Background()) // no-op on a running monitor
	m.Stop()
	m.Stop() // no-op on a stopped monitor
}

func TestRunBatchSweepInvokesHook(t *testing.T) {
	store := &fakeMonitorStore{}
	source := &fakeSource{
		batch: map[string][]models.InsiderTransaction{
			"ACME": {sampleSaleTx("ACME")},
			"WDGT": nil,
		},
	}

	m := NewFilingMonitor(store, source, []string{"ACME", "WDGT"}, monitorConfig())
	var hooked []models.InsiderTransaction
	m.OnNewFilings = func(txns []models.InsiderTransaction) { hooked = txns }

	m.runBatchSweep(context.Background())

	if len(store.upserted) != 1 {
		t.Errorf("upserted %d, want 1", len(store.upserted))
	}
	if len(hooked) != 1 {
		t.Errorf("hook received %d transactions, want 1", len(hooked))
	}
}

func TestRunBatchSweepReplayInsertsNothing(t *testing.T) {
	store := &fakeMonitorStore{}
	source := &fakeSource{
		batch: map[string][]models.InsiderTransaction{
			"ACME": {sampleSaleTx("ACME")},
			"WDGT": {sampleSaleTx("WDGT")},
		},
	}

	m := NewFilingMonitor(store, source, []string{"ACME", "WDGT"}, monitorConfig())
	hookCalls := 0
	m.OnNewFilings = func(txns []models.InsiderTransaction) { hookCalls++ }

	// Overlapping sweeps refetch the same window; duplicates must not
	// produce new rows or re-fire the hook.
	m.runBatchSweep(context.Background())
	m.runBatchSweep(context.Background())

	if len(store.upserted) != 2 {
		t.Errorf("stored %d rows after replay, want 2", len(store.upserted))
	}
	if hookCalls != 1 {
		t.Errorf("hook fired %d times, want 1 (replay inserted nothing)", hookCalls)
	}
}

func TestUpsertReplayCountsZeroNew(t *testing.T) {
	store := &fakeMonitorStore{}
	batch := []models.InsiderTransaction{sampleSaleTx("ACME"), sampleSaleTx("WDGT")}

	n, err := store.UpsertTransactions(batch)
	if err != nil || n != 2 {
		t.Fatalf("first pass: n=%d err=%v, want 2", n, err)
	}
	n, err = store.UpsertTransactions(batch)
	if err != nil || n != 0 {
		t.Errorf("second pass: n=%d err=%v, want 0", n, err)
	}
}
