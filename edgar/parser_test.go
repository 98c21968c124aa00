package edgar

import (
	"testing"
	"time"

	models "form4-sentinel/database/models_pkg"
)

const sampleForm4 = `<?xml version="1.0"?>
<ownershipDocument>
	<periodOfReport>2024-03-15</periodOfReport>
	<aff10b5One>1</aff10b5One>
	<issuer>
		<issuerCik>0000320193</issuerCik>
		<issuerName>Apple Inc.</issuerName>
		<issuerTradingSymbol>AAPL</issuerTradingSymbol>
	</issuer>
	<reportingOwner>
		<reportingOwnerId>
			<rptOwnerName>DOE JANE</rptOwnerName>
		</reportingOwnerId>
		<reportingOwnerRelationship>
			<isOfficer>1</isOfficer>
			<isDirector>0</isDirector>
			<officerTitle>Chief Financial Officer</officerTitle>
		</reportingOwnerRelationship>
	</reportingOwner>
	<nonDerivativeTable>
		<nonDerivativeTransaction>
			<transactionDate><value>2024-03-15</value></transactionDate>
			<transactionCoding><transactionCode>S</transactionCode></transactionCoding>
			<transactionAmounts>
				<transactionShares><value>1000</value></transactionShares>
				<transactionPricePerShare><value>172.50</value></transactionPricePerShare>
			</transactionAmounts>
			<postTransactionAmounts>
				<sharesOwnedFollowingTransaction><value>9000</value></sharesOwnedFollowingTransaction>
			</postTransactionAmounts>
		</nonDerivativeTransaction>
		<nonDerivativeTransaction>
			<transactionDate><value>2024-03-15</value></transactionDate>
			<transactionCoding><transactionCode>G</transactionCode></transactionCoding>
			<transactionAmounts>
				<transactionShares><value>500</value></transactionShares>
				<transactionPricePerShare><value></value></transactionPricePerShare>
			</transactionAmounts>
			<postTransactionAmounts>
				<sharesOwnedFollowingTransaction><value>8500</value></sharesOwnedFollowingTransaction>
			</postTransactionAmounts>
		</nonDerivativeTransaction>
		<nonDerivativeTransaction>
			<transactionDate><value>not-a-date</value></transactionDate>
			<transactionCoding><transactionCode>S</transactionCode></transactionCoding>
			<transactionAmounts>
				<transactionShares><value>100</value></transactionShares>
			</transactionAmounts>
		</nonDerivativeTransaction>
	</nonDerivativeTable>
</ownershipDocument>`

func TestParseForm4(t *testing.T) {
	filingDate := time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC)
	txns, err := ParseForm4([]byte(sampleForm4), "AAPL", filingDate)
	if err != nil {
		t.Fatalf("ParseForm4 returned error: %v", err)
	}

	// The malformed third row is skipped, not fatal.
	if len(txns) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txns))
	}

	sale := txns[0]
	if sale.TransactionCode != models.CodeSale {
		t.Errorf("code = %s, want S", sale.TransactionCode)
	}
	if sale.InsiderName != "DOE JANE" {
		t.Errorf("insider = %q", sale.InsiderName)
	}
	if !sale.IsOfficer || sale.IsDirector {
		t.Errorf("relationship flags wrong: officer=%v director=%v", sale.IsOfficer, sale.IsDirector)
	}
	if sale.InsiderTitle != "Chief Financial Officer" {
		t.Errorf("title = %q", sale.InsiderTitle)
	}
	if sale.Shares != 1000 {
		t.Errorf("shares = %v", sale.Shares)
	}
	if sale.PricePerShare == nil || *sale.PricePerShare != 172.50 {
		t.Errorf("price = %v", sale.PricePerShare)
	}
	if sale.TotalValue == nil || *sale.TotalValue != 172500.0 {
		t.Errorf("total value = %v", sale.TotalValue)
	}
	if sale.SharesOwnedAfter == nil || *sale.SharesOwnedAfter != 9000 {
		t.Errorf("shares owned after = %v", sale.SharesOwnedAfter)
	}
	if !sale.Is10b51 {
		t.Error("aff10b5One flag should set Is10b51")
	}
	if !sale.FilingDate.Equal(filingDate) {
		t.Errorf("filing date = %v", sale.FilingDate)
	}

	// Unknown code maps to OTHER; missing price leaves value fields nil.
	grant := txns[1]
	if grant.TransactionCode != models.CodeOther {
		t.Errorf("unknown code should map to O, got %s", grant.TransactionCode)
	}
	if grant.PricePerShare != nil {
		t.Errorf("empty price should stay nil, got %v", grant.PricePerShare)
	}
	if grant.TotalValue != nil {
		t.Errorf("total value should stay nil without price, got %v", grant.TotalValue)
	}
}

func TestParseForm4TickerFromDocument(t *testing.T) {
	txns, err := ParseForm4([]byte(sampleForm4), "", time.Time{})
	if err != nil {
		t.Fatalf("ParseForm4 returned error: %v", err)
	}
	if len(txns) == 0 {
		t.Fatal("expected transactions")
	}
	if txns[0].Ticker != "AAPL" {
		t.Errorf("ticker = %q, want AAPL from issuerTradingSymbol", txns[0].Ticker)
	}
	if txns[0].FilingDate.IsZero() {
		t.Error("zero filing date should fall back to today")
	}
}

func TestParseForm4Invalid(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		ticker string
	}{
		{"not xml", "this is not xml at all <<<", "AAPL"},
		{"no owner", `<ownershipDocument><issuer><issuerTradingSymbol>X</issuerTradingSymbol></issuer></ownershipDocument>`, "AAPL"},
		{"no symbol anywhere", `<ownershipDocument><reportingOwner><reportingOwnerId><rptOwnerName>A</rptOwnerName></reportingOwnerId></reportingOwner></ownershipDocument>`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseForm4([]byte(tt.data), tt.ticker, time.Time{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}
