package edgar

import (
	"context"
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
)

// FeedName identifies the ATOM path's watermark row.
const FeedName = "form4_atom"

const atomFeedURL = "https://www.sec.gov/cgi-bin/browse-edgar?action=getcurrent&type=4&company=&dateb=&owner=include&count=100&output=atom"

// FeedEntry is one Form 4 accession announced by the recent-filings feed.
type FeedEntry struct {
	Accession string
	CIK       string
	Title     string
}

type atomFeed struct {
	XMLName xml.Name `xml:"feed"`
	Entries []struct {
		Title string `xml:"title"`
		ID    string `xml:"id"`
		Link  struct {
			Href string `xml:"href,attr"`
		} `xml:"link"`
	} `xml:"entry"`
}

// Feed entry IDs look like
// urn:tag:sec.gov,2008:accession-number=0001234567-24-000123
var accessionRe = regexp.MustCompile(`accession-number=(\d{10}-\d{2}-\d{6})`)

// Entry links point at /Archives/edgar/data/{cik}/{accession}-index.htm
var cikRe = regexp.MustCompile(`/Archives/edgar/data/(\d+)/`)

// FetchFeed downloads the current recent-filings ATOM page.
func (c *Client) FetchFeed(ctx context.Context) ([]byte, error) {
	body, err := c.get(ctx, atomFeedURL)
	if err != nil {
		return nil, fmt.Errorf("FetchFeed: %w", err)
	}
	return body, nil
}

// ParseFeed extracts accessions from an ATOM page, newest first, stopping at
// the watermark. An empty watermark returns the whole page. Entries missing
// an accession or CIK are skipped.
func ParseFeed(data []byte, watermark string) ([]FeedEntry, error) {
	var feed atomFeed
	if err := xml.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("ParseFeed: %w", err)
	}

	var entries []FeedEntry
	for _, raw := range feed.Entries {
		m := accessionRe.FindStringSubmatch(raw.ID)
		if m == nil {
			continue
		}
		accession := m[1]
		if watermark != "" && accession == watermark {
			// Everything below the watermark was processed in an
			// earlier cycle.
			break
		}
		cm := cikRe.FindStringSubmatch(raw.Link.Href)
		if cm == nil {
			continue
		}
		entries = append(entries, FeedEntry{
			Accession: accession,
			CIK:       cm[1],
			Title:     strings.TrimSpace(raw.Title),
		})
	}
	return entries, nil
}
