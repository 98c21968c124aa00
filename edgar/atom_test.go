package edgar

import "testing"

const sampleFeed = `<?xml version="1.0" encoding="ISO-8859-1"?>
<feed xmlns="http://www.w3.org/2005/Atom">
	<title>Latest Filings - Form 4</title>
	<entry>
		<title>4 - ACME CORP (0000111111) (Issuer)</title>
		<link rel="alternate" type="text/html" href="https://www.sec.gov/Archives/edgar/data/111111/000011111124000003-index.htm"/>
		<id>urn:tag:sec.gov,2008:accession-number=0000111111-24-000003</id>
	</entry>
	<entry>
		<title>4 - WIDGET INC (0000222222) (Reporting)</title>
		<link rel="alternate" type="text/html" href="https://www.sec.gov/Archives/edgar/data/222222/000022222224000002-index.htm"/>
		<id>urn:tag:sec.gov,2008:accession-number=0000222222-24-000002</id>
	</entry>
	<entry>
		<title>4 - OLDCO LLC (0000333333) (Issuer)</title>
		<link rel="alternate" type="text/html" href="https://www.sec.gov/Archives/edgar/data/333333/000033333324000001-index.htm"/>
		<id>urn:tag:sec.gov,2008:accession-number=0000333333-24-000001</id>
	</entry>
</feed>`

func TestParseFeed(t *testing.T) {
	t.Run("empty watermark returns whole page", func(t *testing.T) {
		entries, err := ParseFeed([]byte(sampleFeed), "")
		if err != nil {
			t.Fatalf("ParseFeed returned error: %v", err)
		}
		if len(entries) != 3 {
			t.Fatalf("expected 3 entries, got %d", len(entries))
		}
		if entries[0].Accession != "0000111111-24-000003" {
			t.Errorf("first accession = %s, want newest", entries[0].Accession)
		}
		if entries[0].CIK != "111111" {
			t.Errorf("CIK = %s, want 111111", entries[0].CIK)
		}
	})

	t.Run("stops at watermark", func(t *testing.T) {
		entries, err := ParseFeed([]byte(sampleFeed), "0000222222-24-000002")
		if err != nil {
			t.Fatalf("ParseFeed returned error: %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("expected 1 entry above watermark, got %d", len(entries))
		}
		if entries[0].Accession != "0000111111-24-000003" {
			t.Errorf("got %s", entries[0].Accession)
		}
	})

	t.Run("watermark at top yields nothing", func(t *testing.T) {
		entries, err := ParseFeed([]byte(sampleFeed), "0000111111-24-000003")
		if err != nil {
			t.Fatalf("ParseFeed returned error: %v", err)
		}
		if len(entries) != 0 {
			t.Fatalf("expected 0 entries, got %d", len(entries))
		}
	})

	t.Run("unknown watermark returns whole page", func(t *testing.T) {
		entries, err := ParseFeed([]byte(sampleFeed), "9999999999-24-999999")
		if err != nil {
			t.Fatalf("ParseFeed returned error: %v", err)
		}
		if len(entries) != 3 {
			t.Fatalf("expected 3 entries, got %d", len(entries))
		}
	})

	t.Run("garbage is an error", func(t *testing.T) {
		if _, err := ParseFeed([]byte("<<< nope"), ""); err == nil {
			t.Error("expected error")
		}
	})
}
