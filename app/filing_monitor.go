package app

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"form4-sentinel/config"
	models "form4-sentinel/database/models_pkg"
	"form4-sentinel/edgar"
)

// MonitorStore is the slice of the repository the monitor needs. All writes
// are idempotent upserts, so overlapping cycles never double-count.
type MonitorStore interface {
	UpsertTransactions(txns []models.InsiderTransaction) (int, error)
	GetWatermark(feedName string) (string, error)
	SetWatermark(feedName, accession string) error
}

// FilingSource abstracts the EDGAR client for the monitor.
type FilingSource interface {
	FetchFeed(ctx context.Context) ([]byte, error)
	FetchByAccession(ctx context.Context, entry edgar.FeedEntry) (string, []models.InsiderTransaction, error)
	BatchFetch(ctx context.Context, tickers []string, daysBack int) (map[string][]models.InsiderTransaction, error)
}

// FilingMonitor is the dual-path ingestion worker for Form 4 filings.
//
// Path A polls the recent-filings ATOM feed for near-real-time detection.
// Path B runs a scheduled batch sweep over the whole universe as a safety
// net. Both paths converge on the same idempotent store writes.
type FilingMonitor struct {
	store    MonitorStore
	source   FilingSource
	universe map[string]bool
	cfg      config.MonitorConfig

	// OnNewFilings is invoked after a cycle that inserted new rows, with
	// the newly inserted transactions. Optional.
	OnNewFilings func([]models.InsiderTransaction)

	// Now is injectable for deterministic market-hours tests.
	Now func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewFilingMonitor creates a monitor over the given universe of tickers.
func NewFilingMonitor(store MonitorStore, source FilingSource, universe []string, cfg config.MonitorConfig) *FilingMonitor {
	set := make(map[string]bool, len(universe))
	for _, t := range universe {
		set[strings.ToUpper(t)] = true
	}
	return &FilingMonitor{
		store:    store,
		source:   source,
		universe: set,
		cfg:      cfg,
		Now:      time.Now,
	}
}

// Start launches both background loops. Calling Start on a running monitor
// is a no-op.
func (m *FilingMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true

	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(2)
	go m.atomLoop(ctx)
	go m.batchLoop(ctx)

	log.Printf("🚀 FilingMonitor started (universe=%d, atom_market=%ds, batch=%dmin)",
		len(m.universe), m.cfg.AtomPollIntervalMarket, m.cfg.BatchIntervalMinutes)
}

// Stop cancels both loops and waits for them to finish. Idempotent.
func (m *FilingMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()
	log.Println("🛑 FilingMonitor stopped")
}

// ============================================================================
// Path A: ATOM feed poller
// ============================================================================

func (m *FilingMonitor) atomLoop(ctx context.Context) {
	defer m.wg.Done()

	timer := time.NewTimer(0) // first poll immediately
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if err := m.pollAtomFeed(ctx); err != nil && ctx.Err() == nil {
				log.Printf("⚠️ ATOM poll error: %v", err)
			}
			// Interval is re-evaluated every cycle so the cadence
			// follows market hours.
			timer.Reset(m.pollInterval())
		}
	}
}

// pollAtomFeed fetches the feed, resolves entries above the watermark and
// upserts matching transactions. The watermark only advances after every
// entry on the page processed cleanly; a partial failure leaves it untouched
// so the next cycle retries the whole range.
func (m *FilingMonitor) pollAtomFeed(ctx context.Context) error {
	data, err := m.source.FetchFeed(ctx)
	if err != nil {
		return err
	}

	watermark, err := m.store.GetWatermark(edgar.FeedName)
	if err != nil {
		return err
	}

	entries, err := edgar.ParseFeed(data, watermark)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	log.Printf("📊 ATOM feed: %d new Form 4 entries", len(entries))

	newest := entries[0].Accession
	allProcessed := true
	var newTxns []models.InsiderTransaction

	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ticker, txns, err := m.source.FetchByAccession(ctx, entry)
		if err != nil {
			log.Printf("⚠️ Failed to resolve accession %s: %v", entry.Accession, err)
			allProcessed = false
			continue
		}
		if len(txns) == 0 {
			continue
		}
		if len(m.universe) > 0 && !m.universe[strings.ToUpper(ticker)] {
			continue
		}
		inserted, err := m.store.UpsertTransactions(txns)
		if err != nil {
			log.Printf("⚠️ Failed to store accession %s: %v", entry.Accession, err)
			allProcessed = false
			continue
		}
		if inserted > 0 {
			newTxns = append(newTxns, txns...)
		}
	}

	if allProcessed {
		if err := m.store.SetWatermark(edgar.FeedName, newest); err != nil {
			return err
		}
	}
	if len(newTxns) > 0 && m.OnNewFilings != nil {
		m.OnNewFilings(newTxns)
	}
	return nil
}

// pollInterval returns the market-hours-aware ATOM cadence.
func (m *FilingMonitor) pollInterval() time.Duration {
	if m.inMarketHours() {
		return time.Duration(m.cfg.AtomPollIntervalMarket) * time.Second
	}
	return time.Duration(m.cfg.AtomPollIntervalOff) * time.Second
}

func (m *FilingMonitor) inMarketHours() bool {
	now := m.Now()
	open, err1 := time.Parse("15:04", m.cfg.MarketOpen)
	closing, err2 := time.Parse("15:04", m.cfg.MarketClose)
	if err1 != nil || err2 != nil {
		return false
	}
	minutes := now.Hour()*60 + now.Minute()
	openMin := open.Hour()*60 + open.Minute()
	closeMin := closing.Hour()*60 + closing.Minute()
	return minutes >= openMin && minutes <= closeMin
}

// ============================================================================
// Path B: scheduled batch sweep
// ============================================================================

func (m *FilingMonitor) batchLoop(ctx context.Context) {
	defer m.wg.Done()

	interval := time.Duration(m.cfg.BatchIntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// First sweep immediately so a fresh deployment backfills without
	// waiting a full interval.
	m.runBatchSweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runBatchSweep(ctx)
		}
	}
}

// runBatchSweep fetches the whole universe over an overlapping window. The
// overlap makes the sweep re-fetch recent days; upserts absorb the repeats.
func (m *FilingMonitor) runBatchSweep(ctx context.Context) {
	overlapDays := m.cfg.BatchOverlapHours/24 + 1
	if overlapDays < 1 {
		overlapDays = 1
	}

	tickers := make([]string, 0, len(m.universe))
	for t := range m.universe {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	log.Printf("📊 Starting batch sweep (%d tickers, %dd overlap)", len(tickers), overlapDays)

	results, err := m.source.BatchFetch(ctx, tickers, overlapDays)
	if err != nil && ctx.Err() == nil {
		log.Printf("⚠️ Batch sweep error: %v", err)
	}

	fetched, inserted := 0, 0
	var newTxns []models.InsiderTransaction
	for _, txns := range results {
		if len(txns) == 0 {
			continue
		}
		fetched += len(txns)
		n, err := m.store.UpsertTransactions(txns)
		if err != nil {
			log.Printf("⚠️ Batch sweep store error: %v", err)
			continue
		}
		if n > 0 {
			inserted += n
			newTxns = append(newTxns, txns...)
		}
	}

	log.Printf("✅ Batch sweep complete: %d fetched, %d new", fetched, inserted)

	if inserted > 0 && m.OnNewFilings != nil {
		m.OnNewFilings(newTxns)
	}
}
