package edgar

import (
	"encoding/xml"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	models "form4-sentinel/database/models_pkg"
)

// Form 4 ownership documents wrap most scalars in <value> elements and report
// booleans inconsistently ("1", "true", sometimes empty). The types below
// absorb that.

type valueElem struct {
	Value string `xml:"value"`
}

func (v valueElem) float() (*float64, bool) {
	s := strings.TrimSpace(v.Value)
	if s == "" {
		return nil, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, false
	}
	return &f, true
}

func xmlBool(s string) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	return s == "1" || s == "true"
}

type ownershipDocument struct {
	XMLName    xml.Name `xml:"ownershipDocument"`
	PeriodOf   string   `xml:"periodOfReport"`
	Aff10b5One string   `xml:"aff10b5One"`
	Issuer     struct {
		TradingSymbol string `xml:"issuerTradingSymbol"`
	} `xml:"issuer"`
	ReportingOwners []struct {
		ID struct {
			Name string `xml:"rptOwnerName"`
		} `xml:"reportingOwnerId"`
		Relationship struct {
			IsOfficer    string `xml:"isOfficer"`
			IsDirector   string `xml:"isDirector"`
			OfficerTitle string `xml:"officerTitle"`
		} `xml:"reportingOwnerRelationship"`
	} `xml:"reportingOwner"`
	NonDerivative struct {
		Transactions []form4Transaction `xml:"nonDerivativeTransaction"`
	} `xml:"nonDerivativeTable"`
}

type form4Transaction struct {
	Date   valueElem `xml:"transactionDate"`
	Coding struct {
		Code string `xml:"transactionCode"`
	} `xml:"transactionCoding"`
	Amounts struct {
		Shares valueElem `xml:"transactionShares"`
		Price  valueElem `xml:"transactionPricePerShare"`
	} `xml:"transactionAmounts"`
	PostAmounts struct {
		SharesOwned valueElem `xml:"sharesOwnedFollowingTransaction"`
	} `xml:"postTransactionAmounts"`
}

var knownCodes = map[string]bool{
	models.CodePurchase:    true,
	models.CodeSale:        true,
	models.CodeAward:       true,
	models.CodeDisposition: true,
	models.CodeConversion:  true,
	models.CodeExercise:    true,
}

// ParseForm4 parses an ownership document into transactions. An empty ticker
// means take issuerTradingSymbol from the document; a zero filingDate falls
// back to today. Malformed transaction rows are skipped with a warning so one
// bad row never drops a whole filing.
func ParseForm4(data []byte, ticker string, filingDate time.Time) ([]models.InsiderTransaction, error) {
	var doc ownershipDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("ParseForm4: %w", err)
	}

	if ticker == "" {
		ticker = strings.ToUpper(strings.TrimSpace(doc.Issuer.TradingSymbol))
	}
	if ticker == "" {
		return nil, fmt.Errorf("ParseForm4: no issuer trading symbol")
	}

	insiderName := ""
	isOfficer, isDirector := false, false
	title := ""
	if len(doc.ReportingOwners) > 0 {
		owner := doc.ReportingOwners[0]
		insiderName = strings.TrimSpace(owner.ID.Name)
		isOfficer = xmlBool(owner.Relationship.IsOfficer)
		isDirector = xmlBool(owner.Relationship.IsDirector)
		title = strings.TrimSpace(owner.Relationship.OfficerTitle)
	}
	if insiderName == "" {
		return nil, fmt.Errorf("ParseForm4: no reporting owner")
	}

	if filingDate.IsZero() {
		now := time.Now().UTC()
		filingDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}

	is10b51 := xmlBool(doc.Aff10b5One)

	var txns []models.InsiderTransaction
	for i, row := range doc.NonDerivative.Transactions {
		txDate, err := time.Parse("2006-01-02", strings.TrimSpace(row.Date.Value))
		if err != nil {
			log.Printf("⚠️ Skipping transaction %d for %s: bad date %q", i, ticker, row.Date.Value)
			continue
		}
		shares, ok := row.Amounts.Shares.float()
		if !ok {
			log.Printf("⚠️ Skipping transaction %d for %s: missing shares", i, ticker)
			continue
		}

		code := strings.ToUpper(strings.TrimSpace(row.Coding.Code))
		if !knownCodes[code] {
			code = models.CodeOther
		}

		tx := models.InsiderTransaction{
			Ticker:          ticker,
			InsiderName:     insiderName,
			InsiderTitle:    title,
			IsOfficer:       isOfficer,
			IsDirector:      isDirector,
			TransactionDate: txDate,
			TransactionCode: code,
			Shares:          *shares,
			Is10b51:         is10b51,
			FilingDate:      filingDate,
		}

		// Price is often absent on grants and exercises. Total value is
		// only meaningful when the price is known.
		if price, ok := row.Amounts.Price.float(); ok {
			tx.PricePerShare = price
			total := *shares * *price
			tx.TotalValue = &total
		}
		if owned, ok := row.PostAmounts.SharesOwned.float(); ok {
			tx.SharesOwnedAfter = owned
		}

		txns = append(txns, tx)
	}
	return txns, nil
}
