// Package edgar fetches and parses SEC Form 4 insider filings from EDGAR.
//
// All requests carry the configured User-Agent (the SEC rejects anonymous
// clients) and share a single rate limiter honouring the fair-access budget.
package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	models "form4-sentinel/database/models_pkg"
)

const (
	companyTickersURL = "https://www.sec.gov/files/company_tickers.json"
	submissionsURL    = "https://data.sec.gov/submissions/CIK%010d.json"
	archivesBaseURL   = "https://www.sec.gov/Archives/edgar/data"
)

// Client is a rate-limited SEC EDGAR client
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string

	// ticker -> CIK map, lazily fetched from company_tickers.json
	cikMu    sync.Mutex
	cikCache map[string]int64

	// Now is injectable for deterministic cutoffs in tests.
	Now func() time.Time
}

// NewClient creates an EDGAR client with the given User-Agent and request
// budget in requests per second.
func NewClient(userAgent string, requestsPerSecond float64) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		userAgent:  userAgent,
		Now:        time.Now,
	}
}

// get performs a rate-limited GET and returns the response body.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	// Accept-Encoding is left to the transport, which negotiates gzip and
	// decompresses transparently.
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// ResolveCIK maps a ticker symbol to its SEC Central Index Key. The mapping
// file is fetched once and cached for the client's lifetime.
func (c *Client) ResolveCIK(ctx context.Context, ticker string) (int64, error) {
	c.cikMu.Lock()
	defer c.cikMu.Unlock()

	if c.cikCache == nil {
		body, err := c.get(ctx, companyTickersURL)
		if err != nil {
			return 0, fmt.Errorf("ResolveCIK: %w", err)
		}
		// Keyed by arbitrary string indexes ("0", "1", ...).
		var raw map[string]struct {
			CIK    int64  `json:"cik_str"`
			Ticker string `json:"ticker"`
			Title  string `json:"title"`
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return 0, fmt.Errorf("ResolveCIK: parse company_tickers: %w", err)
		}
		c.cikCache = make(map[string]int64, len(raw))
		for _, entry := range raw {
			c.cikCache[strings.ToUpper(entry.Ticker)] = entry.CIK
		}
		log.Printf("✅ Loaded %d ticker->CIK mappings from SEC", len(c.cikCache))
	}

	cik, ok := c.cikCache[strings.ToUpper(ticker)]
	if !ok {
		return 0, fmt.Errorf("ResolveCIK: unknown ticker %s", ticker)
	}
	return cik, nil
}

// recentFilingsIndex holds the parallel arrays of a company's recent
// submissions as data.sec.gov serves them.
type recentFilingsIndex struct {
	AccessionNumber []string `json:"accessionNumber"`
	FilingDate      []string `json:"filingDate"`
	Form            []string `json:"form"`
	PrimaryDocument []string `json:"primaryDocument"`
}

// submissionsResponse mirrors the shape of data.sec.gov/submissions.
type submissionsResponse struct {
	Filings struct {
		Recent recentFilingsIndex `json:"recent"`
	} `json:"filings"`
}

// Filing identifies one Form 4 filing in a company's submission history.
type Filing struct {
	Accession   string
	FilingDate  time.Time
	DocumentURL string
}

// FetchLatest returns URLs and dates for the most recent Form 4 filings of a
// ticker, newest first, up to limit.
func (c *Client) FetchLatest(ctx context.Context, ticker string, limit int) ([]Filing, error) {
	cik, err := c.ResolveCIK(ctx, ticker)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, fmt.Sprintf(submissionsURL, cik))
	if err != nil {
		return nil, fmt.Errorf("FetchLatest %s: %w", ticker, err)
	}

	var subs submissionsResponse
	if err := json.Unmarshal(body, &subs); err != nil {
		return nil, fmt.Errorf("FetchLatest %s: parse submissions: %w", ticker, err)
	}

	return form4Filings(subs.Filings.Recent, cik, limit), nil
}

// form4Filings extracts the Form 4 entries from the recent submissions index.
// The arrays are parallel; a truncated payload is cut at the shortest one so
// a malformed response degrades to fewer filings instead of a panic.
func form4Filings(recent recentFilingsIndex, cik int64, limit int) []Filing {
	n := len(recent.Form)
	for _, l := range []int{len(recent.AccessionNumber), len(recent.FilingDate), len(recent.PrimaryDocument)} {
		if l < n {
			n = l
		}
	}
	if n < len(recent.Form) {
		log.Printf("⚠️ Truncated submissions index for CIK %d: %d of %d entries usable", cik, n, len(recent.Form))
	}

	var filings []Filing
	for i := 0; i < n; i++ {
		if recent.Form[i] != "4" && recent.Form[i] != "4/A" {
			continue
		}
		filingDate, err := time.Parse("2006-01-02", recent.FilingDate[i])
		if err != nil {
			continue
		}
		accNoDash := strings.ReplaceAll(recent.AccessionNumber[i], "-", "")
		filings = append(filings, Filing{
			Accession:  recent.AccessionNumber[i],
			FilingDate: filingDate,
			DocumentURL: fmt.Sprintf("%s/%d/%s/%s",
				archivesBaseURL, cik, accNoDash, recent.PrimaryDocument[i]),
		})
		if limit > 0 && len(filings) >= limit {
			break
		}
	}
	return filings
}

// FetchTransactions fetches and parses the recent Form 4 filings of a ticker,
// keeping transactions dated on or after the cutoff. Individual document
// failures are logged and skipped; the result covers whatever parsed cleanly.
func (c *Client) FetchTransactions(ctx context.Context, ticker string, daysBack int) ([]models.InsiderTransaction, error) {
	filings, err := c.FetchLatest(ctx, ticker, 40)
	if err != nil {
		return nil, err
	}

	today := c.Now().UTC().Truncate(24 * time.Hour)
	cutoff := today.AddDate(0, 0, -daysBack)

	var txns []models.InsiderTransaction
	for _, filing := range filings {
		if filing.FilingDate.Before(cutoff) {
			// Submissions are newest first; everything past here is older.
			break
		}
		body, err := c.get(ctx, filing.DocumentURL)
		if err != nil {
			log.Printf("⚠️ Skipping filing %s for %s: %v", filing.Accession, ticker, err)
			continue
		}
		parsed, err := ParseForm4(body, ticker, filing.FilingDate)
		if err != nil {
			log.Printf("⚠️ Failed to parse filing %s for %s: %v", filing.Accession, ticker, err)
			continue
		}
		for _, tx := range parsed {
			if !tx.TransactionDate.Before(cutoff) {
				txns = append(txns, tx)
			}
		}
	}
	return txns, nil
}

// BatchFetch fetches transactions for multiple tickers behind the shared rate
// limiter. Per-ticker failures are logged and yield an empty slice so one bad
// ticker never aborts the sweep.
func (c *Client) BatchFetch(ctx context.Context, tickers []string, daysBack int) (map[string][]models.InsiderTransaction, error) {
	sorted := make([]string, len(tickers))
	copy(sorted, tickers)
	sort.Strings(sorted)

	results := make(map[string][]models.InsiderTransaction, len(sorted))
	for _, ticker := range sorted {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		txns, err := c.FetchTransactions(ctx, ticker, daysBack)
		if err != nil {
			log.Printf("⚠️ Batch fetch failed for %s: %v", ticker, err)
			results[ticker] = nil
			continue
		}
		results[ticker] = txns
	}
	return results, nil
}

// directoryIndex mirrors the shape of an Archives directory index.json.
type directoryIndex struct {
	Directory struct {
		Item []struct {
			Name string `json:"name"`
		} `json:"item"`
	} `json:"directory"`
}

// FetchByAccession resolves one feed entry to its Form 4 XML document, parses
// it and returns the issuer ticker read from the document together with the
// transactions. The ticker comes from issuerTradingSymbol, so callers can
// filter against their universe without a separate lookup.
func (c *Client) FetchByAccession(ctx context.Context, entry FeedEntry) (string, []models.InsiderTransaction, error) {
	accNoDash := strings.ReplaceAll(entry.Accession, "-", "")
	dirURL := fmt.Sprintf("%s/%s/%s", archivesBaseURL, entry.CIK, accNoDash)

	body, err := c.get(ctx, dirURL+"/index.json")
	if err != nil {
		return "", nil, fmt.Errorf("FetchByAccession %s: %w", entry.Accession, err)
	}
	var index directoryIndex
	if err := json.Unmarshal(body, &index); err != nil {
		return "", nil, fmt.Errorf("FetchByAccession %s: parse index: %w", entry.Accession, err)
	}

	docName := ""
	for _, item := range index.Directory.Item {
		name := strings.ToLower(item.Name)
		if strings.HasSuffix(name, ".xml") && !strings.Contains(name, "index") {
			docName = item.Name
			break
		}
	}
	if docName == "" {
		return "", nil, fmt.Errorf("FetchByAccession %s: no ownership XML in directory", entry.Accession)
	}

	body, err = c.get(ctx, dirURL+"/"+docName)
	if err != nil {
		return "", nil, fmt.Errorf("FetchByAccession %s: %w", entry.Accession, err)
	}

	// Empty ticker means take the issuerTradingSymbol from the document.
	txns, err := ParseForm4(body, "", time.Time{})
	if err != nil {
		return "", nil, fmt.Errorf("FetchByAccession %s: %w", entry.Accession, err)
	}
	if len(txns) == 0 {
		return "", nil, nil
	}
	return txns[0].Ticker, txns, nil
}
